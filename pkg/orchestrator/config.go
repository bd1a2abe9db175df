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

	"github.com/carverauto/camfleet/pkg/backend"
	"github.com/carverauto/camfleet/pkg/logger"
	"github.com/carverauto/camfleet/pkg/models"
)

const (
	defaultMaxConcurrent  = 16
	defaultMaxAttempts    = 3
	defaultRetryDelay     = time.Second
	defaultAttemptTimeout = 30 * time.Second
	defaultDeviceBudget   = 2 * time.Minute
	defaultTolerance      = 5 * time.Second
	defaultOutputDir      = "captures"
)

// Config is the camfleet application configuration.
type Config struct {
	Devices []models.DeviceConfig `json:"devices" yaml:"devices"`
	Capture backend.Settings      `json:"capture" yaml:"capture"`

	// MaxConcurrent bounds in-flight devices. The effective ceiling is the
	// smaller of this and the fleet size.
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	// MaxAttempts counts the first try plus retries per device.
	MaxAttempts int             `json:"max_attempts" yaml:"max_attempts"`
	RetryDelay  models.Duration `json:"retry_delay" yaml:"retry_delay"`

	// AttemptTimeout bounds one attempt; DeviceBudget bounds all attempts
	// and backoff for a device together. The budget wins when they collide.
	AttemptTimeout models.Duration `json:"attempt_timeout" yaml:"attempt_timeout"`
	DeviceBudget   models.Duration `json:"device_budget" yaml:"device_budget"`

	OutputDir         string          `json:"output_dir" yaml:"output_dir"`
	TimeSyncTolerance models.Duration `json:"time_sync_tolerance" yaml:"time_sync_tolerance"`

	Logging *logger.Config `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// Validate applies defaults and rejects nonsensical settings. Device-level
// validation happens when the registry is built.
func (c *Config) Validate() error {
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}

	if c.MaxConcurrent < 0 {
		return errInvalidMaxConcurrent
	}

	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}

	if c.MaxAttempts < 0 {
		return errInvalidMaxAttempts
	}

	if c.RetryDelay == 0 {
		c.RetryDelay = models.Duration(defaultRetryDelay)
	}

	if c.RetryDelay < 0 {
		return errNegativeRetryDelay
	}

	if c.AttemptTimeout == 0 {
		c.AttemptTimeout = models.Duration(defaultAttemptTimeout)
	}

	if c.AttemptTimeout < 0 {
		return errInvalidTimeout
	}

	if c.DeviceBudget == 0 {
		c.DeviceBudget = models.Duration(defaultDeviceBudget)
	}

	if c.DeviceBudget < 0 {
		return errInvalidBudget
	}

	if c.DeviceBudget < c.AttemptTimeout {
		return errBudgetBelowAttempt
	}

	if c.TimeSyncTolerance == 0 {
		c.TimeSyncTolerance = models.Duration(defaultTolerance)
	}

	if c.TimeSyncTolerance < 0 {
		return errNegativeTolerance
	}

	if c.OutputDir == "" {
		c.OutputDir = defaultOutputDir
	}

	c.Capture.ApplyDefaults()

	return nil
}
