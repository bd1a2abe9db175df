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

package orchestrator

import (
	"time"

	"github.com/carverauto/camfleet/pkg/models"
)

// Policy decides whether a failed attempt is retried and after what delay.
// It is pure; all timing is executed by the runner.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Decision is the policy's answer for one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Decide evaluates a failure. attempt is 1-based. Only network, timeout and
// transient failures are retried; auth, config and not-found failures are
// terminal because repeating them cannot change the answer.
func (p Policy) Decide(attempt int, kind models.ErrorKind) Decision {
	if attempt >= p.MaxAttempts {
		return Decision{}
	}

	if !kind.Retryable() {
		return Decision{}
	}

	return Decision{Retry: true, Delay: p.Delay}
}
