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
	"time"

	"github.com/carverauto/camfleet/pkg/models"
)

// Dispatcher routes capability calls to the backend for the device's class.
// The class set is closed; adding a class means registering a backend here.
type Dispatcher struct {
	backends map[models.DeviceClass]Capability
}

// NewDispatcher builds a dispatcher over the given class backends.
func NewDispatcher(backends map[models.DeviceClass]Capability) *Dispatcher {
	return &Dispatcher{backends: backends}
}

var _ Capability = (*Dispatcher)(nil)

func (d *Dispatcher) forDevice(dev *models.DeviceConfig, op string) (Capability, error) {
	b, ok := d.backends[dev.Class]
	if !ok {
		// Registry validation makes this unreachable; classify as internal
		// so it is surfaced as a defect rather than retried.
		return nil, Errorf(models.ErrKindInternal, dev.Name, op, "%w: %s", errUnknownDeviceClass, dev.Class)
	}

	return b, nil
}

func (d *Dispatcher) CaptureStill(ctx context.Context, dev *models.DeviceConfig, req *models.OperationRequest) (*Artifact, error) {
	b, err := d.forDevice(dev, "capture-still")
	if err != nil {
		return nil, err
	}

	return b.CaptureStill(ctx, dev, req)
}

func (d *Dispatcher) CaptureStream(ctx context.Context, dev *models.DeviceConfig, req *models.OperationRequest) (*Artifact, error) {
	b, err := d.forDevice(dev, "capture-stream")
	if err != nil {
		return nil, err
	}

	return b.CaptureStream(ctx, dev, req)
}

func (d *Dispatcher) QueryTime(ctx context.Context, dev *models.DeviceConfig) (time.Time, error) {
	b, err := d.forDevice(dev, "query-time")
	if err != nil {
		return time.Time{}, err
	}

	return b.QueryTime(ctx, dev)
}

func (d *Dispatcher) SetEnabled(ctx context.Context, dev *models.DeviceConfig, enabled bool) error {
	b, err := d.forDevice(dev, "set-enabled")
	if err != nil {
		return err
	}

	return b.SetEnabled(ctx, dev, enabled)
}

func (d *Dispatcher) Probe(ctx context.Context, dev *models.DeviceConfig) error {
	b, err := d.forDevice(dev, "probe")
	if err != nil {
		return err
	}

	return b.Probe(ctx, dev)
}
