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

// Package registry holds the immutable in-memory set of fleet devices for one
// run. Device order is configuration order and is the order reports follow.
package registry

import (
	"fmt"
	"strings"

	"github.com/carverauto/camfleet/pkg/logger"
	"github.com/carverauto/camfleet/pkg/models"
)

// Registry is the read-only device set. Safe for concurrent use.
type Registry struct {
	devices []models.DeviceConfig
	byName  map[string]int
}

// New builds a registry from loaded device configs. Names must be unique and
// non-empty; classes must be known.
func New(devices []models.DeviceConfig, log logger.Logger) (*Registry, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}

	r := &Registry{
		devices: make([]models.DeviceConfig, 0, len(devices)),
		byName:  make(map[string]int, len(devices)),
	}

	for _, dev := range devices {
		if dev.Name == "" {
			return nil, ErrEmptyDeviceName
		}

		if _, exists := r.byName[dev.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, dev.Name)
		}

		if !dev.Class.Valid() {
			return nil, fmt.Errorf("%w: %q for device %s", ErrUnknownClass, dev.Class, dev.Name)
		}

		r.byName[dev.Name] = len(r.devices)
		r.devices = append(r.devices, dev)
	}

	log.Debug().Int("devices", len(r.devices)).Msg("Device registry initialized")

	return r, nil
}

// Len returns the fleet size.
func (r *Registry) Len() int {
	return len(r.devices)
}

// All returns every device in registry order.
func (r *Registry) All() []models.DeviceConfig {
	out := make([]models.DeviceConfig, len(r.devices))
	copy(out, r.devices)

	return out
}

// Targets resolves a selector to an ordered device subset. A nil or empty
// selector targets the whole fleet. Unknown names fail before any device
// operation starts.
func (r *Registry) Targets(selector []string) ([]models.DeviceConfig, error) {
	if len(selector) == 0 {
		return r.All(), nil
	}

	wanted := make(map[string]bool, len(selector))

	for _, name := range selector {
		if _, ok := r.byName[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, name)
		}

		wanted[name] = true
	}

	// Registry order, not selector order, so reports stay deterministic.
	out := make([]models.DeviceConfig, 0, len(wanted))

	for _, dev := range r.devices {
		if wanted[dev.Name] {
			out = append(out, dev)
		}
	}

	return out, nil
}

// ParseSelector splits a comma-separated device list from the CLI. Empty
// entries are dropped; an empty string selects the whole fleet.
func ParseSelector(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
