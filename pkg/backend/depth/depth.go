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

// Package depth implements the capability backend for USB depth sensors,
// shelling out to the vendor capture tool addressed by serial number.
package depth

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/carverauto/camfleet/pkg/backend"
	"github.com/carverauto/camfleet/pkg/logger"
	"github.com/carverauto/camfleet/pkg/models"
)

const defaultCaptureTool = "rs-capture"

// Backend operates depth sensors through an external capture tool. Sensors
// have no network clock and no remotely switchable feed, so QueryTime answers
// with the host clock and SetEnabled reports not found.
type Backend struct {
	settings backend.Settings
	logger   logger.Logger
	now      func() time.Time
}

var _ backend.Capability = (*Backend)(nil)

// New creates a depth sensor backend with the given capture settings.
func New(settings backend.Settings, log logger.Logger) *Backend {
	settings.ApplyDefaults()

	return &Backend{
		settings: settings,
		logger:   log,
		now:      time.Now,
	}
}

func (b *Backend) captureTool(dev *models.DeviceConfig) string {
	if dev.CaptureTool != "" {
		return dev.CaptureTool
	}

	return defaultCaptureTool
}

// CaptureStill runs the capture tool once and verifies the expected artifact
// appeared.
func (b *Backend) CaptureStill(ctx context.Context, dev *models.DeviceConfig, req *models.OperationRequest) (*backend.Artifact, error) {
	if delay := time.Duration(req.Delay); delay > 0 {
		select {
		case <-ctx.Done():
			return nil, backend.NewError(models.ErrKindTimeout, dev.Name, "capture-still", ctx.Err())
		case <-time.After(delay):
		}
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, backend.NewError(models.ErrKindConfig, dev.Name, "capture-still", err)
	}

	filename := fmt.Sprintf("%s_%s.%s", dev.Name, req.Timestamp, b.settings.ImageFormat)
	path := filepath.Join(req.OutputDir, filename)

	tool := b.captureTool(dev)
	args := []string{"--serial", dev.SerialNumber, "--output", path}

	cmd := exec.CommandContext(ctx, tool, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, backend.NewError(models.ErrKindTimeout, dev.Name, "capture-still", ctx.Err())
		}

		b.logger.Debug().
			Str("device", dev.Name).
			Str("tool", tool).
			Str("output", string(output)).
			Msg("Capture tool failed")

		return nil, backend.Errorf(models.ErrKindTransient, dev.Name, "capture-still",
			"capture tool %s: %w", tool, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, backend.Errorf(models.ErrKindTransient, dev.Name, "capture-still",
			"capture tool produced no artifact at %s: %w", path, err)
	}

	b.logger.Info().
		Str("device", dev.Name).
		Str("path", path).
		Int64("bytes", info.Size()).
		Msg("Saved depth frame")

	return &backend.Artifact{Path: path, Bytes: info.Size()}, nil
}

// CaptureStream is not supported; depth sensors record through the capture
// tool in still mode only.
func (b *Backend) CaptureStream(_ context.Context, dev *models.DeviceConfig, _ *models.OperationRequest) (*backend.Artifact, error) {
	return nil, backend.Errorf(models.ErrKindNotFound, dev.Name, "capture-stream",
		"depth sensors do not support stream capture")
}

// QueryTime answers with the host clock. USB sensors have no clock of their
// own; the host they hang off is the authority.
func (b *Backend) QueryTime(_ context.Context, _ *models.DeviceConfig) (time.Time, error) {
	return b.now().UTC(), nil
}

// SetEnabled is not supported; there is no persistent feed to switch.
func (b *Backend) SetEnabled(_ context.Context, dev *models.DeviceConfig, _ bool) error {
	return backend.Errorf(models.ErrKindNotFound, dev.Name, "set-enabled",
		"depth sensors have no switchable feed")
}

// Probe checks that the capture tool is present on the host.
func (b *Backend) Probe(_ context.Context, dev *models.DeviceConfig) error {
	tool := b.captureTool(dev)

	if _, err := exec.LookPath(tool); err != nil {
		return backend.Errorf(models.ErrKindConfig, dev.Name, "probe",
			"capture tool not found: %w", err)
	}

	return nil
}
