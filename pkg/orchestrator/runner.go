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

// Package orchestrator fans one operation out across the device fleet,
// bounded by a concurrency ceiling, retries transient failures per policy,
// and fans per-device outcomes back in for aggregation.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/carverauto/camfleet/pkg/backend"
	"github.com/carverauto/camfleet/pkg/logger"
	"github.com/carverauto/camfleet/pkg/models"
	"github.com/carverauto/camfleet/pkg/registry"
	"github.com/carverauto/camfleet/pkg/report"
)

// Runner executes fleet operations. One Runner serves many runs; each run is
// independent and carries its own semaphore so ceilings never leak across
// invocations.
type Runner struct {
	cfg      *Config
	registry *registry.Registry
	backend  backend.Capability
	policy   Policy
	clock    Clock
	logger   logger.Logger
}

// NewRunner wires a runner over the registry and capability backend.
func NewRunner(cfg *Config, reg *registry.Registry, capability backend.Capability, log logger.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		registry: reg,
		backend:  capability,
		policy: Policy{
			MaxAttempts: cfg.MaxAttempts,
			Delay:       time.Duration(cfg.RetryDelay),
		},
		clock:  realClock{},
		logger: log,
	}
}

// SetClock replaces the runner's clock. Test hook.
func (r *Runner) SetClock(c Clock) {
	r.clock = c
}

// Run resolves the selector and executes the request against every targeted
// device. Selector errors fail before any device is touched. Device failures
// never fail the run; they are carried as outcomes in the report.
func (r *Runner) Run(ctx context.Context, selector []string, req *models.OperationRequest) (*models.RunReport, error) {
	targets, err := r.registry.Targets(selector)
	if err != nil {
		return nil, err
	}

	if req.OutputDir == "" {
		req.OutputDir = r.cfg.OutputDir
	}

	// One timestamp per run so every device's artifact carries the same
	// filename stamp.
	if req.Timestamp == "" {
		req.Timestamp = r.cfg.Capture.FilenameTimestamp(r.clock.Now().UTC())
	}

	started := r.clock.Now()
	runID := uuid.NewString()

	ceiling := r.cfg.MaxConcurrent
	if fleet := r.registry.Len(); fleet < ceiling {
		ceiling = fleet
	}

	r.logger.Info().
		Str("run_id", runID).
		Str("operation", string(req.Kind)).
		Int("devices", len(targets)).
		Int("concurrency", ceiling).
		Msg("Starting fleet run")

	sem := semaphore.NewWeighted(int64(ceiling))
	results := make(chan models.DeviceOutcome, len(targets))

	var wg sync.WaitGroup

	for i := range targets {
		dev := targets[i]

		wg.Add(1)

		go func() {
			defer wg.Done()

			results <- r.runDevice(ctx, sem, &dev, req)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]models.DeviceOutcome, 0, len(targets))
	for outcome := range results {
		collected = append(collected, outcome)
	}

	ordered, verdict, failed, err := report.Aggregate(targets, collected)
	if err != nil {
		return nil, err
	}

	rep := &models.RunReport{
		RunID:       runID,
		Operation:   req.Kind,
		StartedAt:   started.UTC(),
		Elapsed:     r.clock.Now().Sub(started),
		Concurrency: ceiling,
		Outcomes:    ordered,
		Verdict:     verdict,
		Failed:      failed,
	}

	r.logger.Info().
		Str("run_id", runID).
		Str("verdict", string(verdict)).
		Int("failed", failed).
		Dur("elapsed", rep.Elapsed).
		Msg("Fleet run finished")

	return rep, nil
}

// runDevice holds a semaphore permit for the device's whole execution,
// including retries and backoff, and always produces exactly one outcome.
func (r *Runner) runDevice(ctx context.Context, sem *semaphore.Weighted, dev *models.DeviceConfig, req *models.OperationRequest) models.DeviceOutcome {
	if err := sem.Acquire(ctx, 1); err != nil {
		return models.DeviceOutcome{
			Device:   dev.Name,
			Class:    dev.Class,
			Kind:     models.ErrKindTimeout,
			Message:  "run canceled before device started: " + err.Error(),
			Attempts: 0,
		}
	}
	defer sem.Release(1)

	return r.executeWithRetry(ctx, dev, req)
}

func (r *Runner) executeWithRetry(ctx context.Context, dev *models.DeviceConfig, req *models.OperationRequest) models.DeviceOutcome {
	started := r.clock.Now()

	budgetCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.DeviceBudget))
	defer cancel()

	log := r.logger.With().Str("device", dev.Name).Str("operation", string(req.Kind)).Logger()

	var (
		lastErr  error
		lastKind models.ErrorKind
		attempts int
	)

	for attempt := 1; ; attempt++ {
		attempts = attempt

		artifact, devTime, err := r.attempt(budgetCtx, dev, req)
		if err == nil {
			return models.DeviceOutcome{
				Device:   dev.Name,
				Class:    dev.Class,
				OK:       true,
				Artifact: artifact,
				Time:     devTime,
				Attempts: attempts,
				Elapsed:  r.clock.Now().Sub(started),
			}
		}

		lastErr = err
		lastKind = backend.KindOf(err)

		// A spent budget overrides the attempt's own classification; the
		// device ran out of wall clock, whatever the last attempt said.
		if budgetCtx.Err() != nil {
			lastKind = models.ErrKindTimeout

			log.Warn().Err(err).Int("attempts", attempts).Msg("Device budget exhausted")

			break
		}

		decision := r.policy.Decide(attempt, lastKind)
		if !decision.Retry {
			log.Warn().Err(err).
				Str("error_kind", string(lastKind)).
				Int("attempts", attempts).
				Msg("Device operation failed")

			break
		}

		log.Debug().Err(err).
			Str("error_kind", string(lastKind)).
			Int("attempt", attempt).
			Dur("backoff", decision.Delay).
			Msg("Retrying device operation")

		select {
		case <-budgetCtx.Done():
			lastKind = models.ErrKindTimeout

			return models.DeviceOutcome{
				Device:   dev.Name,
				Class:    dev.Class,
				Kind:     lastKind,
				Message:  lastErr.Error(),
				Attempts: attempts,
				Elapsed:  r.clock.Now().Sub(started),
			}
		case <-r.clock.After(decision.Delay):
		}
	}

	return models.DeviceOutcome{
		Device:   dev.Name,
		Class:    dev.Class,
		Kind:     lastKind,
		Message:  lastErr.Error(),
		Attempts: attempts,
		Elapsed:  r.clock.Now().Sub(started),
	}
}

// attempt runs one bounded try of the operation against the device. The
// attempt timeout nests inside the device budget, so whichever is shorter
// cuts the attempt off.
func (r *Runner) attempt(ctx context.Context, dev *models.DeviceConfig, req *models.OperationRequest) (artifact string, devTime time.Time, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.AttemptTimeout))
	defer cancel()

	switch req.Kind {
	case models.OpCaptureImage:
		art, opErr := r.backend.CaptureStill(attemptCtx, dev, req)
		if opErr != nil {
			return "", time.Time{}, opErr
		}

		return art.Path, time.Time{}, nil

	case models.OpCaptureVideo:
		art, opErr := r.backend.CaptureStream(attemptCtx, dev, req)
		if opErr != nil {
			return "", time.Time{}, opErr
		}

		return art.Path, time.Time{}, nil

	case models.OpVerifyTime:
		ts, opErr := r.backend.QueryTime(attemptCtx, dev)
		if opErr != nil {
			return "", time.Time{}, opErr
		}

		return "", ts, nil

	case models.OpSetEnabled:
		return "", time.Time{}, r.backend.SetEnabled(attemptCtx, dev, req.Enabled)

	case models.OpProbe:
		return "", time.Time{}, r.backend.Probe(attemptCtx, dev)

	default:
		return "", time.Time{}, backend.Errorf(models.ErrKindInternal, dev.Name, "dispatch",
			"unknown operation kind %q", req.Kind)
	}
}
