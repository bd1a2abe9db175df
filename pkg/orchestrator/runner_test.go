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
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/camfleet/pkg/backend"
	"github.com/carverauto/camfleet/pkg/logger"
	"github.com/carverauto/camfleet/pkg/models"
	"github.com/carverauto/camfleet/pkg/registry"
)

// fakeClock advances instantly through backoff so retry tests never sleep.
type fakeClock struct {
	mu     sync.Mutex
	waited []time.Duration
}

func (f *fakeClock) Now() time.Time { return time.Now() }

func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.waited = append(f.waited, d)
	f.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- time.Now()

	return ch
}

func (f *fakeClock) waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]time.Duration, len(f.waited))
	copy(out, f.waited)

	return out
}

// fakeBackend drives every capability from per-device scripts and counts
// invocations.
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	// fail maps device name to a list of errors returned per attempt; a nil
	// entry means success on that attempt. Devices beyond their script
	// succeed.
	fail map[string][]error

	// inFlight tracks the concurrency high-water mark.
	inFlight, highWater int

	// delay makes each call take real time so concurrency overlaps.
	delay time.Duration

	queryTime func(dev *models.DeviceConfig) (time.Time, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls: make(map[string]int),
		fail:  make(map[string][]error),
	}
}

func (f *fakeBackend) step(ctx context.Context, dev *models.DeviceConfig) error {
	f.mu.Lock()
	f.calls[dev.Name]++
	attempt := f.calls[dev.Name]
	f.inFlight++

	if f.inFlight > f.highWater {
		f.highWater = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.delay):
		}
	}

	script := f.fail[dev.Name]
	if attempt <= len(script) && script[attempt-1] != nil {
		return script[attempt-1]
	}

	return nil
}

func (f *fakeBackend) callCount(device string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[device]
}

func (f *fakeBackend) CaptureStill(ctx context.Context, dev *models.DeviceConfig, _ *models.OperationRequest) (*backend.Artifact, error) {
	if err := f.step(ctx, dev); err != nil {
		return nil, err
	}

	return &backend.Artifact{Path: "/tmp/" + dev.Name + ".jpg", Bytes: 1}, nil
}

func (f *fakeBackend) CaptureStream(ctx context.Context, dev *models.DeviceConfig, _ *models.OperationRequest) (*backend.Artifact, error) {
	if err := f.step(ctx, dev); err != nil {
		return nil, err
	}

	return &backend.Artifact{Path: "/tmp/" + dev.Name + ".rtp", Bytes: 1}, nil
}

func (f *fakeBackend) QueryTime(ctx context.Context, dev *models.DeviceConfig) (time.Time, error) {
	if err := f.step(ctx, dev); err != nil {
		return time.Time{}, err
	}

	if f.queryTime != nil {
		return f.queryTime(dev)
	}

	return time.Now().UTC(), nil
}

func (f *fakeBackend) SetEnabled(ctx context.Context, dev *models.DeviceConfig, _ bool) error {
	return f.step(ctx, dev)
}

func (f *fakeBackend) Probe(ctx context.Context, dev *models.DeviceConfig) error {
	return f.step(ctx, dev)
}

func testConfig(devices []models.DeviceConfig) *Config {
	cfg := &Config{
		Devices:        devices,
		MaxConcurrent:  16,
		MaxAttempts:    3,
		RetryDelay:     models.Duration(time.Second),
		AttemptTimeout: models.Duration(5 * time.Second),
		DeviceBudget:   models.Duration(30 * time.Second),
		OutputDir:      "/tmp/camfleet-test",
	}
	cfg.Capture.ApplyDefaults()

	return cfg
}

func cameraFleet(n int) []models.DeviceConfig {
	names := []string{"camera1", "camera2", "camera3", "camera4", "camera5", "camera6", "camera7", "camera8"}

	devices := make([]models.DeviceConfig, 0, n)
	for i := 0; i < n; i++ {
		devices = append(devices, models.DeviceConfig{
			Name:    names[i],
			Class:   models.ClassIPCamera,
			Address: "10.0.0.1",
		})
	}

	return devices
}

func newTestRunner(t *testing.T, devices []models.DeviceConfig, fb *fakeBackend) (*Runner, *fakeClock) {
	t.Helper()

	cfg := testConfig(devices)

	reg, err := registry.New(devices, logger.NewTestLogger())
	require.NoError(t, err)

	runner := NewRunner(cfg, reg, fb, logger.NewTestLogger())
	clock := &fakeClock{}
	runner.SetClock(clock)

	return runner, clock
}

func TestRunner_AllSucceed(t *testing.T) {
	fb := newFakeBackend()
	runner, _ := newTestRunner(t, cameraFleet(3), fb)

	rep, err := runner.Run(context.Background(), nil, &models.OperationRequest{Kind: models.OpCaptureImage})
	require.NoError(t, err)

	assert.Equal(t, models.VerdictAllSucceeded, rep.Verdict)
	assert.Equal(t, 0, rep.Failed)
	require.Len(t, rep.Outcomes, 3)

	for _, o := range rep.Outcomes {
		assert.True(t, o.OK)
		assert.Equal(t, 1, o.Attempts)
		assert.NotEmpty(t, o.Artifact)
	}
}

func TestRunner_OneOutcomePerDeviceUnderFailures(t *testing.T) {
	errBoom := errors.New("boom")

	fb := newFakeBackend()
	fb.fail["camera2"] = []error{
		backend.NewError(models.ErrKindAuth, "camera2", "capture-still", errBoom),
	}
	fb.fail["camera4"] = []error{
		backend.NewError(models.ErrKindTransient, "camera4", "capture-still", errBoom),
		backend.NewError(models.ErrKindTransient, "camera4", "capture-still", errBoom),
		backend.NewError(models.ErrKindTransient, "camera4", "capture-still", errBoom),
	}

	runner, _ := newTestRunner(t, cameraFleet(5), fb)

	rep, err := runner.Run(context.Background(), nil, &models.OperationRequest{Kind: models.OpCaptureImage})
	require.NoError(t, err)

	require.Len(t, rep.Outcomes, 5)
	assert.Equal(t, models.VerdictPartialFailure, rep.Verdict)
	assert.Equal(t, 2, rep.Failed)

	seen := make(map[string]int)
	for _, o := range rep.Outcomes {
		seen[o.Device]++
	}

	for _, dev := range cameraFleet(5) {
		assert.Equal(t, 1, seen[dev.Name], "device %s should have exactly one outcome", dev.Name)
	}
}

func TestRunner_RetriesTransientThenSucceeds(t *testing.T) {
	errFlaky := errors.New("connection reset")

	fb := newFakeBackend()
	fb.fail["camera2"] = []error{
		backend.NewError(models.ErrKindNetwork, "camera2", "capture-still", errFlaky),
		backend.NewError(models.ErrKindNetwork, "camera2", "capture-still", errFlaky),
		nil,
	}

	runner, clock := newTestRunner(t, cameraFleet(3), fb)

	rep, err := runner.Run(context.Background(), nil, &models.OperationRequest{Kind: models.OpCaptureImage})
	require.NoError(t, err)

	assert.Equal(t, models.VerdictAllSucceeded, rep.Verdict)

	var camera2 models.DeviceOutcome

	for _, o := range rep.Outcomes {
		if o.Device == "camera2" {
			camera2 = o
		}
	}

	assert.True(t, camera2.OK)
	assert.Equal(t, 3, camera2.Attempts)
	assert.Equal(t, 3, fb.callCount("camera2"))
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.waits())
}

func TestRunner_NonRetryableFailsOnce(t *testing.T) {
	fb := newFakeBackend()
	fb.fail["camera1"] = []error{
		backend.Errorf(models.ErrKindAuth, "camera1", "capture-still", "401 unauthorized"),
	}

	runner, clock := newTestRunner(t, cameraFleet(1), fb)

	rep, err := runner.Run(context.Background(), nil, &models.OperationRequest{Kind: models.OpCaptureImage})
	require.NoError(t, err)

	assert.Equal(t, models.VerdictAllFailed, rep.Verdict)
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, 1, rep.Outcomes[0].Attempts)
	assert.Equal(t, models.ErrKindAuth, rep.Outcomes[0].Kind)
	assert.Equal(t, 1, fb.callCount("camera1"))
	assert.Empty(t, clock.waits())
}

func TestRunner_ExhaustsAttemptsOnPersistentFailure(t *testing.T) {
	errDown := errors.New("no route to host")

	fb := newFakeBackend()
	fb.fail["camera1"] = []error{
		backend.NewError(models.ErrKindNetwork, "camera1", "probe", errDown),
		backend.NewError(models.ErrKindNetwork, "camera1", "probe", errDown),
		backend.NewError(models.ErrKindNetwork, "camera1", "probe", errDown),
	}

	runner, _ := newTestRunner(t, cameraFleet(1), fb)

	rep, err := runner.Run(context.Background(), nil, &models.OperationRequest{Kind: models.OpProbe})
	require.NoError(t, err)

	assert.Equal(t, models.VerdictAllFailed, rep.Verdict)
	assert.Equal(t, 3, rep.Outcomes[0].Attempts)
	assert.Equal(t, models.ErrKindNetwork, rep.Outcomes[0].Kind)
	assert.Equal(t, 3, fb.callCount("camera1"))
}

func TestRunner_ConcurrencyCeiling(t *testing.T) {
	fb := newFakeBackend()
	fb.delay = 20 * time.Millisecond

	devices := cameraFleet(8)
	cfg := testConfig(devices)
	cfg.MaxConcurrent = 2

	reg, err := registry.New(devices, logger.NewTestLogger())
	require.NoError(t, err)

	runner := NewRunner(cfg, reg, fb, logger.NewTestLogger())
	runner.SetClock(&fakeClock{})

	rep, err := runner.Run(context.Background(), nil, &models.OperationRequest{Kind: models.OpProbe})
	require.NoError(t, err)

	assert.Equal(t, models.VerdictAllSucceeded, rep.Verdict)
	assert.Equal(t, 2, rep.Concurrency)
	assert.LessOrEqual(t, fb.highWater, 2)
	assert.Positive(t, fb.highWater)
}

func TestRunner_CeilingClampsToFleetSize(t *testing.T) {
	fb := newFakeBackend()

	devices := cameraFleet(3)
	cfg := testConfig(devices)
	cfg.MaxConcurrent = 64

	reg, err := registry.New(devices, logger.NewTestLogger())
	require.NoError(t, err)

	runner := NewRunner(cfg, reg, fb, logger.NewTestLogger())
	runner.SetClock(&fakeClock{})

	rep, err := runner.Run(context.Background(), nil, &models.OperationRequest{Kind: models.OpProbe})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Concurrency)
}

func TestRunner_ReportFollowsRegistryOrder(t *testing.T) {
	fb := newFakeBackend()

	// Random per-call latency scrambles completion order; the report must
	// come back in registry order regardless.
	fb.delay = time.Duration(rand.Intn(5)+1) * time.Millisecond

	devices := cameraFleet(8)
	runner, _ := newTestRunner(t, devices, fb)

	for i := 0; i < 3; i++ {
		rep, err := runner.Run(context.Background(), nil, &models.OperationRequest{Kind: models.OpProbe})
		require.NoError(t, err)

		require.Len(t, rep.Outcomes, len(devices))

		for j, o := range rep.Outcomes {
			assert.Equal(t, devices[j].Name, o.Device)
		}
	}
}

func TestRunner_SelectorSubsetInRegistryOrder(t *testing.T) {
	fb := newFakeBackend()
	runner, _ := newTestRunner(t, cameraFleet(4), fb)

	rep, err := runner.Run(context.Background(), []string{"camera3", "camera1"},
		&models.OperationRequest{Kind: models.OpProbe})
	require.NoError(t, err)

	require.Len(t, rep.Outcomes, 2)
	assert.Equal(t, "camera1", rep.Outcomes[0].Device)
	assert.Equal(t, "camera3", rep.Outcomes[1].Device)
	assert.Equal(t, 0, fb.callCount("camera2"))
	assert.Equal(t, 0, fb.callCount("camera4"))
}

func TestRunner_UnknownDeviceFailsBeforeAnyInvocation(t *testing.T) {
	fb := newFakeBackend()
	runner, _ := newTestRunner(t, cameraFleet(3), fb)

	rep, err := runner.Run(context.Background(), []string{"camera1", "nosuch"},
		&models.OperationRequest{Kind: models.OpCaptureImage})

	require.Error(t, err)
	require.ErrorIs(t, err, registry.ErrUnknownDevice)
	assert.Nil(t, rep)
	assert.Equal(t, 0, fb.callCount("camera1"))
}

func TestRunner_VerifyTimeCollectsClocks(t *testing.T) {
	devTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fb := newFakeBackend()
	fb.queryTime = func(dev *models.DeviceConfig) (time.Time, error) {
		return devTime, nil
	}

	runner, _ := newTestRunner(t, cameraFleet(2), fb)

	rep, err := runner.Run(context.Background(), nil, &models.OperationRequest{Kind: models.OpVerifyTime})
	require.NoError(t, err)

	for _, o := range rep.Outcomes {
		assert.True(t, o.OK)
		assert.Equal(t, devTime, o.Time)
		assert.Empty(t, o.Artifact)
	}
}

func TestRunner_VerifyTimeIsIdempotent(t *testing.T) {
	fb := newFakeBackend()
	runner, _ := newTestRunner(t, cameraFleet(2), fb)

	req := &models.OperationRequest{Kind: models.OpVerifyTime}

	first, err := runner.Run(context.Background(), nil, req)
	require.NoError(t, err)

	second, err := runner.Run(context.Background(), nil, req)
	require.NoError(t, err)

	assert.Equal(t, first.Verdict, second.Verdict)
	assert.Equal(t, 4, fb.callCount("camera1")+fb.callCount("camera2"))
}

func TestRunner_DeviceBudgetCapsRetries(t *testing.T) {
	fb := newFakeBackend()
	fb.delay = 50 * time.Millisecond

	devices := cameraFleet(1)
	cfg := testConfig(devices)
	cfg.AttemptTimeout = models.Duration(20 * time.Millisecond)
	cfg.DeviceBudget = models.Duration(30 * time.Millisecond)

	reg, err := registry.New(devices, logger.NewTestLogger())
	require.NoError(t, err)

	runner := NewRunner(cfg, reg, fb, logger.NewTestLogger())
	runner.SetClock(&fakeClock{})

	rep, err := runner.Run(context.Background(), nil, &models.OperationRequest{Kind: models.OpProbe})
	require.NoError(t, err)

	assert.Equal(t, models.VerdictAllFailed, rep.Verdict)
	assert.Equal(t, models.ErrKindTimeout, rep.Outcomes[0].Kind)
	assert.Less(t, rep.Outcomes[0].Attempts, 3)
}

func TestRunner_UnknownOperationIsInternal(t *testing.T) {
	fb := newFakeBackend()
	runner, _ := newTestRunner(t, cameraFleet(1), fb)

	rep, err := runner.Run(context.Background(), nil, &models.OperationRequest{Kind: "reboot"})
	require.NoError(t, err)

	assert.Equal(t, models.VerdictAllFailed, rep.Verdict)
	assert.Equal(t, models.ErrKindInternal, rep.Outcomes[0].Kind)
	assert.Equal(t, 1, rep.Outcomes[0].Attempts)
}

func TestRunner_SharedTimestampAcrossDevices(t *testing.T) {
	fb := newFakeBackend()
	runner, _ := newTestRunner(t, cameraFleet(2), fb)

	req := &models.OperationRequest{Kind: models.OpCaptureImage}

	_, err := runner.Run(context.Background(), nil, req)
	require.NoError(t, err)

	assert.NotEmpty(t, req.Timestamp)
}
