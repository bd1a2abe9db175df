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

// OperationKind names one fleet-wide operation.
type OperationKind string

const (
	OpCaptureImage OperationKind = "capture-image"
	OpCaptureVideo OperationKind = "capture-video"
	OpVerifyTime   OperationKind = "verify-time"
	OpSetEnabled   OperationKind = "set-enabled"
	OpProbe        OperationKind = "probe"
)

// OperationRequest carries the operation kind and its parameters. It is
// constructed once per invocation and shared read-only across all concurrent
// units of work.
type OperationRequest struct {
	Kind      OperationKind `json:"kind"`
	Delay     Duration      `json:"delay,omitempty"`
	Duration  Duration      `json:"duration,omitempty"`
	Enabled   bool          `json:"enabled,omitempty"`
	OutputDir string        `json:"output_dir,omitempty"`

	// Timestamp is the shared filename timestamp for this run so artifacts
	// from all devices sort together.
	Timestamp string `json:"timestamp,omitempty"`
}
