package orchestrator

import "errors"

var (
	errInvalidMaxConcurrent = errors.New("max_concurrent must be positive")
	errInvalidMaxAttempts   = errors.New("max_attempts must be positive")
	errNegativeRetryDelay   = errors.New("retry_delay cannot be negative")
	errInvalidTimeout       = errors.New("attempt_timeout must be positive")
	errInvalidBudget        = errors.New("device_budget must be positive")
	errBudgetBelowAttempt   = errors.New("device_budget cannot be shorter than attempt_timeout")
	errNegativeTolerance    = errors.New("time_sync_tolerance cannot be negative")
)
