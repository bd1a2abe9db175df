package report

import "errors"

// ErrOutcomeCount reports a mismatch between targeted devices and collected
// outcomes. It signals a bug in the fan-out, never a device-side failure.
var ErrOutcomeCount = errors.New("outcome count does not match targeted devices")
