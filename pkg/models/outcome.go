/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import "time"

// ErrorKind classifies a device failure for retry decisions and reporting.
type ErrorKind string

const (
	ErrKindNetwork   ErrorKind = "network"
	ErrKindTimeout   ErrorKind = "timeout"
	ErrKindTransient ErrorKind = "transient"
	ErrKindAuth      ErrorKind = "auth"
	ErrKindConfig    ErrorKind = "config"
	ErrKindNotFound  ErrorKind = "not_found"
	ErrKindInternal  ErrorKind = "internal"
)

// Retryable reports whether another attempt against the device can succeed.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrKindNetwork, ErrKindTimeout, ErrKindTransient:
		return true
	default:
		return false
	}
}

// DeviceOutcome is the terminal result of one device's execution of one
// operation. Exactly one is produced per targeted device per run; ownership
// passes to the aggregator on handoff.
type DeviceOutcome struct {
	Device   string        `json:"device"`
	Class    DeviceClass   `json:"class"`
	OK       bool          `json:"ok"`
	Artifact string        `json:"artifact,omitempty"`
	Time     time.Time     `json:"time,omitzero"`
	Kind     ErrorKind     `json:"error_kind,omitempty"`
	Message  string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Verdict is the run-level result across all targeted devices.
type Verdict string

const (
	VerdictAllSucceeded   Verdict = "all_succeeded"
	VerdictPartialFailure Verdict = "partial_failure"
	VerdictAllFailed      Verdict = "all_failed"
)

// RunReport collects every device outcome for one run, ordered by registry
// order so reports are deterministic regardless of completion order.
type RunReport struct {
	RunID       string          `json:"run_id"`
	Operation   OperationKind   `json:"operation"`
	StartedAt   time.Time       `json:"started_at"`
	Elapsed     time.Duration   `json:"elapsed_ns"`
	Concurrency int             `json:"concurrency"`
	Outcomes    []DeviceOutcome `json:"outcomes"`
	Verdict     Verdict         `json:"verdict"`
	Failed      int             `json:"failed"`
}
