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

// Package report turns collected device outcomes into deterministic,
// registry-ordered run reports and renders them for humans and machines.
package report

import (
	"fmt"

	"github.com/carverauto/camfleet/pkg/models"
)

// Aggregate reorders collected outcomes into target order and computes the
// run verdict. Every targeted device must have produced exactly one outcome;
// a mismatch is an orchestrator defect, not a device failure.
func Aggregate(targets []models.DeviceConfig, collected []models.DeviceOutcome) ([]models.DeviceOutcome, models.Verdict, int, error) {
	if len(collected) != len(targets) {
		return nil, "", 0, fmt.Errorf("%w: expected %d outcomes, collected %d",
			ErrOutcomeCount, len(targets), len(collected))
	}

	byDevice := make(map[string]models.DeviceOutcome, len(collected))

	for _, o := range collected {
		if _, dup := byDevice[o.Device]; dup {
			return nil, "", 0, fmt.Errorf("%w: duplicate outcome for %s", ErrOutcomeCount, o.Device)
		}

		byDevice[o.Device] = o
	}

	ordered := make([]models.DeviceOutcome, 0, len(targets))
	failed := 0

	for _, dev := range targets {
		o, ok := byDevice[dev.Name]
		if !ok {
			return nil, "", 0, fmt.Errorf("%w: missing outcome for %s", ErrOutcomeCount, dev.Name)
		}

		if !o.OK {
			failed++
		}

		ordered = append(ordered, o)
	}

	return ordered, verdict(len(ordered), failed), failed, nil
}

func verdict(total, failed int) models.Verdict {
	switch {
	case failed == 0:
		return models.VerdictAllSucceeded
	case failed == total:
		return models.VerdictAllFailed
	default:
		return models.VerdictPartialFailure
	}
}
