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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"90s"`), &d))
	assert.Equal(t, Duration(90*time.Second), d)

	require.NoError(t, json.Unmarshal([]byte(`1000000000`), &d))
	assert.Equal(t, Duration(time.Second), d)

	err := json.Unmarshal([]byte(`"ninety seconds"`), &d)
	require.ErrorIs(t, err, ErrInvalidDuration)

	err = json.Unmarshal([]byte(`true`), &d)
	require.ErrorIs(t, err, ErrInvalidDuration)
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	var cfg struct {
		Delay Duration `yaml:"delay"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("delay: 2m30s"), &cfg))
	assert.Equal(t, Duration(2*time.Minute+30*time.Second), cfg.Delay)

	require.NoError(t, yaml.Unmarshal([]byte("delay: 5000000000"), &cfg))
	assert.Equal(t, Duration(5*time.Second), cfg.Delay)

	err := yaml.Unmarshal([]byte("delay: [1, 2]"), &cfg)
	require.Error(t, err)
}

func TestErrorKind_Retryable(t *testing.T) {
	assert.True(t, ErrKindNetwork.Retryable())
	assert.True(t, ErrKindTimeout.Retryable())
	assert.True(t, ErrKindTransient.Retryable())
	assert.False(t, ErrKindAuth.Retryable())
	assert.False(t, ErrKindConfig.Retryable())
	assert.False(t, ErrKindNotFound.Retryable())
	assert.False(t, ErrKindInternal.Retryable())
}

func TestDeviceClass_Valid(t *testing.T) {
	assert.True(t, ClassIPCamera.Valid())
	assert.True(t, ClassDepthSensor.Valid())
	assert.False(t, DeviceClass("thermal").Valid())
	assert.False(t, DeviceClass("").Valid())
}

func TestDeviceConfig_CredentialEnv(t *testing.T) {
	dev := DeviceConfig{Name: "front-door"}
	assert.Equal(t, "FRONT_DOOR_PASSWORD", dev.CredentialEnv())

	dev.PasswordEnv = "CUSTOM_SECRET"
	assert.Equal(t, "CUSTOM_SECRET", dev.CredentialEnv())
}

func TestDeviceConfig_Password(t *testing.T) {
	dev := DeviceConfig{Name: "camera1"}

	t.Setenv("CAMERA1_PASSWORD", "s3cret")

	pass, err := dev.Password()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pass)
}

func TestDeviceConfig_PasswordMissing(t *testing.T) {
	dev := DeviceConfig{Name: "camera-without-credentials"}

	_, err := dev.Password()
	require.ErrorIs(t, err, ErrCredentialNotSet)
	assert.Contains(t, err.Error(), "CAMERA_WITHOUT_CREDENTIALS_PASSWORD")
}

func TestDeviceConfig_PortDefaults(t *testing.T) {
	dev := DeviceConfig{Name: "camera1"}
	assert.Equal(t, 80, dev.ControlPort())
	assert.Equal(t, 554, dev.StreamPort())

	dev.HTTPPort = 8080
	dev.RTSPPort = 8554
	assert.Equal(t, 8080, dev.ControlPort())
	assert.Equal(t, 8554, dev.StreamPort())
}
