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

package report

import (
	"fmt"
	"io"
	"os"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// minFreeBytes is the disk headroom below which captures are likely to fail
// mid-run. Roughly one long video capture across a small fleet.
const minFreeBytes = 512 << 20

// Preflight describes host capacity relevant to a capture run.
type Preflight struct {
	OutputDir     string `json:"output_dir"`
	DiskFreeBytes uint64 `json:"disk_free_bytes"`
	MemFreeBytes  uint64 `json:"mem_free_bytes"`
	LowDisk       bool   `json:"low_disk"`
}

// CheckHost inspects the host before a capture run. Errors are advisory; a
// host that cannot answer capacity queries can still run captures.
func CheckHost(outputDir string) (*Preflight, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("output directory unusable: %w", err)
	}

	usage, err := disk.Usage(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat output volume: %w", err)
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to read host memory: %w", err)
	}

	return &Preflight{
		OutputDir:     outputDir,
		DiskFreeBytes: usage.Free,
		MemFreeBytes:  vm.Available,
		LowDisk:       usage.Free < minFreeBytes,
	}, nil
}

// Render writes the preflight summary.
func (p *Preflight) Render(w io.Writer) {
	fmt.Fprintf(w, "host: %s free on %s, %s memory available\n",
		humanBytes(p.DiskFreeBytes), p.OutputDir, humanBytes(p.MemFreeBytes))

	if p.LowDisk {
		fmt.Fprintln(w, "WARNING: output volume is low on space; captures may fail")
	}
}

func humanBytes(n uint64) string {
	const unit = 1024

	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := uint64(unit), 0

	for n/div >= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
