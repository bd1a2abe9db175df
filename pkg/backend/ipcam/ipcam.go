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

// Package ipcam implements the capability backend for IP cameras speaking
// HTTP CGI (digest auth) for control and RTSP for streaming.
package ipcam

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/icholy/digest"

	"github.com/carverauto/camfleet/pkg/backend"
	"github.com/carverauto/camfleet/pkg/logger"
	"github.com/carverauto/camfleet/pkg/models"
)

const (
	cgiTimeLayout   = "2006-01-02 15:04:05"
	defaultRTSPPath = "/cam/realmonitor?channel=1&subtype=0"
)

// Backend operates IP cameras. Safe for concurrent use across devices; each
// call builds its own authenticated HTTP client because credentials differ
// per device.
type Backend struct {
	settings backend.Settings
	logger   logger.Logger
}

var _ backend.Capability = (*Backend)(nil)

// New creates an IP camera backend with the given capture settings.
func New(settings backend.Settings, log logger.Logger) *Backend {
	settings.ApplyDefaults()

	return &Backend{
		settings: settings,
		logger:   log,
	}
}

func (b *Backend) httpClient(dev *models.DeviceConfig) (*http.Client, error) {
	pass, err := dev.Password()
	if err != nil {
		return nil, backend.NewError(models.ErrKindAuth, dev.Name, "credentials", err)
	}

	return &http.Client{
		Transport: &digest.Transport{
			Username: dev.Username,
			Password: pass,
		},
	}, nil
}

func (b *Backend) controlURL(dev *models.DeviceConfig, cgiPath string) string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(dev.Address, fmt.Sprintf("%d", dev.ControlPort())), cgiPath)
}

// rtspURL builds the stream URL with credentials and the configured path
// override, falling back to the common Dahua live path.
func (b *Backend) rtspURL(dev *models.DeviceConfig) (string, error) {
	pass, err := dev.Password()
	if err != nil {
		return "", backend.NewError(models.ErrKindAuth, dev.Name, "credentials", err)
	}

	path := dev.RTSPPath
	if path == "" {
		path = defaultRTSPPath
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u := url.URL{
		Scheme: "rtsp",
		User:   url.UserPassword(dev.Username, pass),
		Host:   net.JoinHostPort(dev.Address, fmt.Sprintf("%d", dev.StreamPort())),
	}

	return u.String() + path, nil
}

func (b *Backend) get(ctx context.Context, dev *models.DeviceConfig, op, rawURL string) ([]byte, error) {
	client, err := b.httpClient(dev)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, backend.NewError(models.ErrKindConfig, dev.Name, op, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, backend.NewError(backend.KindOf(err), dev.Name, op, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			b.logger.Warn().Err(closeErr).Str("device", dev.Name).Msg("Error closing response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, backend.Errorf(classifyStatus(resp.StatusCode), dev.Name, op,
			"unexpected HTTP status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backend.NewError(models.ErrKindNetwork, dev.Name, op, err)
	}

	return body, nil
}

func classifyStatus(code int) models.ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return models.ErrKindAuth
	case code == http.StatusNotFound:
		return models.ErrKindNotFound
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return models.ErrKindTimeout
	default:
		return models.ErrKindTransient
	}
}

// CaptureStill grabs one snapshot via the camera's CGI endpoint and writes it
// under the request output directory.
func (b *Backend) CaptureStill(ctx context.Context, dev *models.DeviceConfig, req *models.OperationRequest) (*backend.Artifact, error) {
	if delay := time.Duration(req.Delay); delay > 0 {
		select {
		case <-ctx.Done():
			return nil, backend.NewError(models.ErrKindTimeout, dev.Name, "capture-still", ctx.Err())
		case <-time.After(delay):
		}
	}

	body, err := b.get(ctx, dev, "capture-still", b.controlURL(dev, b.settings.SnapshotCGIPath))
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("%s_%s.%s", dev.Name, req.Timestamp, b.settings.ImageFormat)
	path := filepath.Join(req.OutputDir, filename)

	if err := writeArtifact(path, body); err != nil {
		return nil, backend.NewError(models.ErrKindConfig, dev.Name, "capture-still", err)
	}

	b.logger.Info().
		Str("device", dev.Name).
		Str("path", path).
		Int("bytes", len(body)).
		Msg("Saved snapshot")

	return &backend.Artifact{Path: path, Bytes: int64(len(body))}, nil
}

// QueryTime reads the camera clock from its CGI time endpoint. Responses look
// like `var sys_time="2023-10-27 10:30:00";` or `result=2023-10-27 10:30:00`.
func (b *Backend) QueryTime(ctx context.Context, dev *models.DeviceConfig) (time.Time, error) {
	body, err := b.get(ctx, dev, "query-time", b.controlURL(dev, b.settings.TimeCGIPath))
	if err != nil {
		return time.Time{}, err
	}

	ts, err := parseCGITime(string(body))
	if err != nil {
		return time.Time{}, backend.NewError(models.ErrKindTransient, dev.Name, "query-time", err)
	}

	return ts, nil
}

func parseCGITime(body string) (time.Time, error) {
	raw := strings.TrimSpace(body)

	if idx := strings.LastIndex(raw, "="); idx >= 0 {
		raw = raw[idx+1:]
	}

	raw = strings.Trim(strings.TrimSpace(raw), `";`)

	ts, err := time.ParseInLocation(cgiTimeLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable camera time %q: %w", raw, err)
	}

	return ts, nil
}

// SetEnabled switches the camera feed through its config CGI.
func (b *Backend) SetEnabled(ctx context.Context, dev *models.DeviceConfig, enabled bool) error {
	u := fmt.Sprintf("%s=%t", b.controlURL(dev, b.settings.ControlCGIPath), enabled)

	if _, err := b.get(ctx, dev, "set-enabled", u); err != nil {
		return err
	}

	b.logger.Info().Str("device", dev.Name).Bool("enabled", enabled).Msg("Camera feed toggled")

	return nil
}

// Probe dials the control and stream ports to confirm reachability.
func (b *Backend) Probe(ctx context.Context, dev *models.DeviceConfig) error {
	var d net.Dialer

	for _, port := range []int{dev.ControlPort(), dev.StreamPort()} {
		addr := net.JoinHostPort(dev.Address, fmt.Sprintf("%d", port))

		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return backend.NewError(backend.KindOf(err), dev.Name, "probe", err)
		}

		if err := conn.Close(); err != nil {
			b.logger.Warn().Err(err).Str("device", dev.Name).Msg("Error closing probe connection")
		}
	}

	return nil
}

func writeArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	return nil
}
