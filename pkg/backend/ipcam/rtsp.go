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

package ipcam

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v5"
	"github.com/bluenviron/gortsplib/v5/pkg/base"
	"github.com/bluenviron/gortsplib/v5/pkg/description"
	"github.com/bluenviron/gortsplib/v5/pkg/format"
	"github.com/pion/rtp"

	"github.com/carverauto/camfleet/pkg/backend"
	"github.com/carverauto/camfleet/pkg/models"
)

// PacketSink receives RTP packets from a capture session. Codec and container
// work is delegated; the default sink writes a raw timestamped packet dump
// suitable for offline remuxing.
type PacketSink interface {
	WritePacket(pkt *rtp.Packet) error
	Bytes() int64
	Close() error
}

// CaptureStream records the camera's RTSP stream for the request duration,
// delivering every RTP packet to a file-backed sink.
func (b *Backend) CaptureStream(ctx context.Context, dev *models.DeviceConfig, req *models.OperationRequest) (*backend.Artifact, error) {
	rawURL, err := b.rtspURL(dev)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(req.Duration)
	if duration <= 0 {
		duration = time.Duration(b.settings.DefaultDuration)
	}

	filename := fmt.Sprintf("%s_%s.%s", dev.Name, req.Timestamp, b.settings.VideoFormat)
	path := filepath.Join(req.OutputDir, filename)

	sink, err := newFileSink(path)
	if err != nil {
		return nil, backend.NewError(models.ErrKindConfig, dev.Name, "capture-stream", err)
	}

	if err := b.recordStream(ctx, dev, rawURL, duration, sink); err != nil {
		_ = sink.Close()
		_ = os.Remove(path)

		return nil, err
	}

	if err := sink.Close(); err != nil {
		return nil, backend.NewError(models.ErrKindConfig, dev.Name, "capture-stream", err)
	}

	b.logger.Info().
		Str("device", dev.Name).
		Str("path", path).
		Int64("bytes", sink.Bytes()).
		Dur("duration", duration).
		Msg("Recorded stream")

	return &backend.Artifact{Path: path, Bytes: sink.Bytes()}, nil
}

func (b *Backend) recordStream(ctx context.Context, dev *models.DeviceConfig, rawURL string, duration time.Duration, sink PacketSink) error {
	u, err := base.ParseURL(rawURL)
	if err != nil {
		return backend.NewError(models.ErrKindConfig, dev.Name, "capture-stream", err)
	}

	client := &gortsplib.Client{
		Scheme: u.Scheme,
		Host:   u.Host,
	}

	if err := client.Start(); err != nil {
		return backend.NewError(backend.KindOf(err), dev.Name, "capture-stream", err)
	}
	defer client.Close()

	desc, _, err := client.Describe(u)
	if err != nil {
		return backend.NewError(backend.KindOf(err), dev.Name, "capture-stream", err)
	}

	if err := client.SetupAll(desc.BaseURL, desc.Medias); err != nil {
		return backend.NewError(backend.KindOf(err), dev.Name, "capture-stream", err)
	}

	var sinkErr error

	var sinkErrOnce sync.Once

	client.OnPacketRTPAny(func(_ *description.Media, _ format.Format, pkt *rtp.Packet) {
		if err := sink.WritePacket(pkt); err != nil {
			sinkErrOnce.Do(func() { sinkErr = err })
		}
	})

	if _, err := client.Play(nil); err != nil {
		return backend.NewError(backend.KindOf(err), dev.Name, "capture-stream", err)
	}

	select {
	case <-ctx.Done():
		return backend.NewError(models.ErrKindTimeout, dev.Name, "capture-stream", ctx.Err())
	case err := <-waitDone(client, duration):
		if err != nil {
			return backend.NewError(backend.KindOf(err), dev.Name, "capture-stream", err)
		}
	}

	if sinkErr != nil {
		return backend.NewError(models.ErrKindConfig, dev.Name, "capture-stream", sinkErr)
	}

	return nil
}

// waitDone resolves when the session errors out or the recording window
// elapses, whichever comes first.
func waitDone(client *gortsplib.Client, duration time.Duration) <-chan error {
	sessionErr := make(chan error, 1)

	go func() {
		sessionErr <- client.Wait()
	}()

	ch := make(chan error, 1)

	go func() {
		timer := time.NewTimer(duration)
		defer timer.Stop()

		select {
		case err := <-sessionErr:
			ch <- err
		case <-timer.C:
			ch <- nil
		}
	}()

	return ch
}

// fileSink writes length-prefixed marshaled RTP packets.
type fileSink struct {
	mu    sync.Mutex
	f     *os.File
	w     *bufio.Writer
	bytes int64
}

func newFileSink(path string) (*fileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}

	return &fileSink{f: f, w: bufio.NewWriter(f)}, nil
}

func (s *fileSink) WritePacket(pkt *rtp.Packet) error {
	buf, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal RTP packet: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var prefix [4]byte

	binary.BigEndian.PutUint32(prefix[:], uint32(len(buf)))

	if _, err := s.w.Write(prefix[:]); err != nil {
		return err
	}

	n, err := s.w.Write(buf)
	if err != nil {
		return err
	}

	s.bytes += int64(n) + int64(len(prefix))

	return nil
}

func (s *fileSink) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bytes
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Flush(); err != nil {
		_ = s.f.Close()
		return err
	}

	return s.f.Close()
}
