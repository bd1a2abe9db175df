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
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/carverauto/camfleet/pkg/models"
)

// Options tunes the human rendering.
type Options struct {
	// HostTime is the reference clock for verify-time drift analysis.
	HostTime time.Time

	// Tolerance is the acceptable clock drift. Drift beyond it is flagged
	// in the summary but does not fail the device.
	Tolerance time.Duration
}

// Render writes the human-readable run summary.
func Render(w io.Writer, rep *models.RunReport, opts Options) error {
	fmt.Fprintf(w, "run %s: %s across %d device(s), concurrency %d, took %s\n",
		rep.RunID, rep.Operation, len(rep.Outcomes), rep.Concurrency, rep.Elapsed.Round(time.Millisecond))

	for i := range rep.Outcomes {
		o := &rep.Outcomes[i]

		switch {
		case o.OK && o.Artifact != "":
			fmt.Fprintf(w, "  ok   %-20s %s (attempts=%d, %s)\n",
				o.Device, o.Artifact, o.Attempts, o.Elapsed.Round(time.Millisecond))
		case o.OK && !o.Time.IsZero():
			fmt.Fprintf(w, "  ok   %-20s reports %s%s (attempts=%d)\n",
				o.Device, o.Time.Format(time.RFC3339), driftNote(o.Time, opts), o.Attempts)
		case o.OK:
			fmt.Fprintf(w, "  ok   %-20s (attempts=%d, %s)\n",
				o.Device, o.Attempts, o.Elapsed.Round(time.Millisecond))
		default:
			fmt.Fprintf(w, "  FAIL %-20s %s: %s (attempts=%d)\n",
				o.Device, o.Kind, o.Message, o.Attempts)
		}
	}

	if rep.Operation == models.OpVerifyTime {
		renderSpread(w, rep, opts)
	}

	fmt.Fprintf(w, "verdict: %s (%d/%d failed)\n", rep.Verdict, rep.Failed, len(rep.Outcomes))

	return nil
}

func driftNote(deviceTime time.Time, opts Options) string {
	if opts.HostTime.IsZero() {
		return ""
	}

	drift := deviceTime.Sub(opts.HostTime)

	rounded := drift.Round(time.Millisecond)

	sign := ""
	if rounded > 0 {
		sign = "+"
	}

	note := fmt.Sprintf(", drift %s%s from host", sign, rounded)
	if opts.Tolerance > 0 && absDuration(drift) > opts.Tolerance {
		note += " [EXCEEDS TOLERANCE]"
	}

	return note
}

// renderSpread reports the widest gap between any two device clocks that
// answered. Spread beyond tolerance is a sync warning, not a failure.
func renderSpread(w io.Writer, rep *models.RunReport, opts Options) {
	var times []time.Time

	for i := range rep.Outcomes {
		if rep.Outcomes[i].OK && !rep.Outcomes[i].Time.IsZero() {
			times = append(times, rep.Outcomes[i].Time)
		}
	}

	if len(times) < 2 {
		return
	}

	earliest, latest := times[0], times[0]

	for _, t := range times[1:] {
		if t.Before(earliest) {
			earliest = t
		}

		if t.After(latest) {
			latest = t
		}
	}

	spread := latest.Sub(earliest)

	if opts.Tolerance > 0 && spread > opts.Tolerance {
		fmt.Fprintf(w, "clock spread: %s across fleet [EXCEEDS TOLERANCE %s]\n",
			spread.Round(time.Millisecond), opts.Tolerance)
	} else {
		fmt.Fprintf(w, "clock spread: %s across fleet\n", spread.Round(time.Millisecond))
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}

	return d
}

// RenderJSON writes the machine-readable report.
func RenderJSON(w io.Writer, rep *models.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(rep)
}

// Exit codes for the CLI. Device failures are data, not errors, so they map
// to codes instead of non-nil error returns.
const (
	ExitOK             = 0
	ExitConfigError    = 1
	ExitPartialFailure = 2
	ExitAllFailed      = 3
)

// ExitCode maps a run verdict to the process exit code.
func ExitCode(rep *models.RunReport) int {
	switch rep.Verdict {
	case models.VerdictAllSucceeded:
		return ExitOK
	case models.VerdictPartialFailure:
		return ExitPartialFailure
	default:
		return ExitAllFailed
	}
}
