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

import (
	"fmt"
	"os"
	"strings"
)

// DeviceClass identifies which capability backend serves a device. The set is
// closed: adding a class means extending the backend dispatcher, not runtime
// type inspection.
type DeviceClass string

const (
	ClassIPCamera    DeviceClass = "ip-camera"
	ClassDepthSensor DeviceClass = "depth-sensor"
)

// Valid reports whether the class is one of the known device classes.
func (c DeviceClass) Valid() bool {
	switch c {
	case ClassIPCamera, ClassDepthSensor:
		return true
	default:
		return false
	}
}

const (
	defaultHTTPPort = 80
	defaultRTSPPort = 554
)

// DeviceConfig describes one device in the fleet. Immutable once loaded;
// credentials are referenced by environment variable name and resolved at
// call time, never stored here.
type DeviceConfig struct {
	Name         string      `json:"name" yaml:"name"`
	Class        DeviceClass `json:"class" yaml:"class"`
	Address      string      `json:"address,omitempty" yaml:"address,omitempty"`
	HTTPPort     int         `json:"http_port,omitempty" yaml:"http_port,omitempty"`
	RTSPPort     int         `json:"rtsp_port,omitempty" yaml:"rtsp_port,omitempty"`
	Username     string      `json:"username,omitempty" yaml:"username,omitempty"`
	PasswordEnv  string      `json:"password_env,omitempty" yaml:"password_env,omitempty"`
	RTSPPath     string      `json:"rtsp_path,omitempty" yaml:"rtsp_path,omitempty"`
	SerialNumber string      `json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
	CaptureTool  string      `json:"capture_tool,omitempty" yaml:"capture_tool,omitempty"`
}

// CredentialEnv returns the environment variable holding the device password.
// Defaults to <NAME>_PASSWORD with the name uppercased and dashes replaced.
func (d *DeviceConfig) CredentialEnv() string {
	if d.PasswordEnv != "" {
		return d.PasswordEnv
	}

	name := strings.ToUpper(strings.ReplaceAll(d.Name, "-", "_"))

	return name + "_PASSWORD"
}

// Password resolves the device credential from the environment. The secret is
// returned to the caller and must never be logged or persisted.
func (d *DeviceConfig) Password() (string, error) {
	envVar := d.CredentialEnv()

	pass, ok := os.LookupEnv(envVar)
	if !ok {
		return "", fmt.Errorf("%w: %s for device %q", ErrCredentialNotSet, envVar, d.Name)
	}

	return pass, nil
}

// ControlPort returns the HTTP CGI port, defaulting to 80.
func (d *DeviceConfig) ControlPort() int {
	if d.HTTPPort != 0 {
		return d.HTTPPort
	}

	return defaultHTTPPort
}

// StreamPort returns the RTSP port, defaulting to 554.
func (d *DeviceConfig) StreamPort() int {
	if d.RTSPPort != 0 {
		return d.RTSPPort
	}

	return defaultRTSPPort
}
