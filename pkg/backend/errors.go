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

package backend

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/carverauto/camfleet/pkg/models"
)

var errUnknownDeviceClass = errors.New("no backend for device class")

// Error is a classified device operation failure. The kind drives the retry
// decision; the wrapped error keeps the transport detail.
type Error struct {
	Kind   models.ErrorKind
	Device string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Device, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a classification for the named device operation.
func NewError(kind models.ErrorKind, device, op string, err error) *Error {
	return &Error{Kind: kind, Device: device, Op: op, Err: err}
}

// Errorf is NewError with a formatted message.
func Errorf(kind models.ErrorKind, device, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Device: device, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf classifies an arbitrary error. Backend errors carry their own kind;
// deadline and net timeouts map to Timeout; anything else is Transient so an
// unknown transport fault still gets its retries.
func KindOf(err error) models.ErrorKind {
	if err == nil {
		return ""
	}

	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrKindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return models.ErrKindTimeout
		}

		return models.ErrKindNetwork
	}

	if errors.Is(err, models.ErrCredentialNotSet) {
		return models.ErrKindAuth
	}

	return models.ErrKindTransient
}
