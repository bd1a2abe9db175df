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

// Package backend defines the capability interface the orchestrator calls to
// operate a device, and the per-class dispatcher over the closed set of
// device classes. Wire protocols live in the class subpackages.
package backend

import (
	"context"
	"time"

	"github.com/carverauto/camfleet/pkg/models"
)

// Artifact references a file produced by a capture operation.
type Artifact struct {
	Path  string
	Bytes int64
}

// Capability is the operation surface every device class implements. Calls
// are bounded by the caller's context; implementations must not outlive it.
type Capability interface {
	// CaptureStill grabs a single image, honoring the request delay.
	CaptureStill(ctx context.Context, dev *models.DeviceConfig, req *models.OperationRequest) (*Artifact, error)

	// CaptureStream records the device stream for the request duration.
	CaptureStream(ctx context.Context, dev *models.DeviceConfig, req *models.OperationRequest) (*Artifact, error)

	// QueryTime reads the device's current clock.
	QueryTime(ctx context.Context, dev *models.DeviceConfig) (time.Time, error)

	// SetEnabled switches the device's video feed on or off.
	SetEnabled(ctx context.Context, dev *models.DeviceConfig, enabled bool) error

	// Probe checks device reachability without touching media.
	Probe(ctx context.Context, dev *models.DeviceConfig) error
}

// Settings carries capture parameters shared across devices.
type Settings struct {
	ImageFormat     string          `json:"image_format" yaml:"image_format"`
	VideoFormat     string          `json:"video_format" yaml:"video_format"`
	TimestampLayout string          `json:"filename_timestamp_layout" yaml:"filename_timestamp_layout"`
	TimeCGIPath     string          `json:"cgi_time_path" yaml:"cgi_time_path"`
	SnapshotCGIPath string          `json:"cgi_snapshot_path" yaml:"cgi_snapshot_path"`
	ControlCGIPath  string          `json:"cgi_control_path" yaml:"cgi_control_path"`
	DefaultDuration models.Duration `json:"video_duration_default" yaml:"video_duration_default"`
}

const (
	defaultImageFormat     = "jpg"
	defaultVideoFormat     = "rtp"
	defaultTimestampLayout = "2006y01m02d15h04m05s"
	defaultTimeCGIPath     = "/cgi-bin/global.cgi?action=getCurrentTime"
	defaultSnapshotCGIPath = "/cgi-bin/snapshot.cgi?channel=1"
	defaultControlCGIPath  = "/cgi-bin/configManager.cgi?action=setConfig&VideoEnable[0].Enable"
	defaultVideoDuration   = 5 * time.Minute
)

// ApplyDefaults fills zero-valued settings.
func (s *Settings) ApplyDefaults() {
	if s.ImageFormat == "" {
		s.ImageFormat = defaultImageFormat
	}

	if s.VideoFormat == "" {
		s.VideoFormat = defaultVideoFormat
	}

	if s.TimestampLayout == "" {
		s.TimestampLayout = defaultTimestampLayout
	}

	if s.TimeCGIPath == "" {
		s.TimeCGIPath = defaultTimeCGIPath
	}

	if s.SnapshotCGIPath == "" {
		s.SnapshotCGIPath = defaultSnapshotCGIPath
	}

	if s.ControlCGIPath == "" {
		s.ControlCGIPath = defaultControlCGIPath
	}

	if s.DefaultDuration == 0 {
		s.DefaultDuration = models.Duration(defaultVideoDuration)
	}
}

// FilenameTimestamp renders t in the configured filename layout.
func (s *Settings) FilenameTimestamp(t time.Time) string {
	return t.Format(s.TimestampLayout)
}
