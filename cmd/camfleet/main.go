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

// camfleet runs one operation across a configured fleet of cameras and depth
// sensors and reports per-device outcomes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/camfleet/pkg/backend"
	"github.com/carverauto/camfleet/pkg/backend/depth"
	"github.com/carverauto/camfleet/pkg/backend/ipcam"
	"github.com/carverauto/camfleet/pkg/config"
	"github.com/carverauto/camfleet/pkg/logger"
	"github.com/carverauto/camfleet/pkg/models"
	"github.com/carverauto/camfleet/pkg/orchestrator"
	"github.com/carverauto/camfleet/pkg/registry"
	"github.com/carverauto/camfleet/pkg/report"
)

const usage = `Usage: camfleet <command> [flags]

Commands:
  capture-image   capture one still image from each targeted device
  capture-video   record video from each targeted device
  verify-time     read and compare device clocks
  control         enable or disable device video feeds
  test            probe device reachability and host capacity

Run "camfleet <command> -h" for command flags.
`

var errUsage = errors.New("usage")

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		} else {
			fmt.Fprintf(os.Stderr, "camfleet: %v\n", err)
		}

		os.Exit(report.ExitConfigError)
	}

	os.Exit(code)
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	configPath string
	devices    string
	outputDir  string
	jsonOut    bool
	debug      bool
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}

	fs.StringVar(&cf.configPath, "config", "/etc/camfleet/camfleet.yaml", "Path to fleet config file")
	fs.StringVar(&cf.devices, "devices", "", "Comma-separated device names (default: whole fleet)")
	fs.StringVar(&cf.outputDir, "output", "", "Artifact output directory (overrides config)")
	fs.BoolVar(&cf.jsonOut, "json", false, "Emit the run report as JSON")
	fs.BoolVar(&cf.debug, "debug", false, "Enable debug logging")

	return cf
}

func run(args []string) (int, error) {
	if len(args) == 0 {
		return 0, errUsage
	}

	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	cf := registerCommon(fs)

	req := &models.OperationRequest{}

	var enable bool

	switch cmd {
	case "capture-image":
		req.Kind = models.OpCaptureImage
		fs.DurationVar((*time.Duration)(&req.Delay), "delay", 0, "Delay before capture")
	case "capture-video":
		req.Kind = models.OpCaptureVideo
		fs.DurationVar((*time.Duration)(&req.Duration), "duration", 0, "Recording duration (default from config)")
	case "verify-time":
		req.Kind = models.OpVerifyTime
	case "control":
		req.Kind = models.OpSetEnabled
		fs.BoolVar(&enable, "enable", true, "Enable (true) or disable (false) the video feed")
	case "test":
		req.Kind = models.OpProbe
	case "-h", "--help", "help":
		return 0, errUsage
	default:
		return 0, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	if err := fs.Parse(rest); err != nil {
		return 0, fmt.Errorf("parsing flags: %w", err)
	}

	req.Enabled = enable

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return execute(ctx, cf, req)
}

func execute(ctx context.Context, cf *commonFlags, req *models.OperationRequest) (int, error) {
	var cfg orchestrator.Config
	if err := config.NewConfig(nil).LoadAndValidate(ctx, cf.configPath, &cfg); err != nil {
		return 0, fmt.Errorf("failed to load config: %w", err)
	}

	if cf.outputDir != "" {
		cfg.OutputDir = cf.outputDir
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = &logger.Config{Level: "info"}
	}

	if cf.debug {
		logCfg.Debug = true
		logCfg.Level = "debug"
	}

	log, err := logger.New(logCfg)
	if err != nil {
		return 0, fmt.Errorf("failed to initialize logger: %w", err)
	}

	reg, err := registry.New(cfg.Devices, log)
	if err != nil {
		return 0, fmt.Errorf("invalid device configuration: %w", err)
	}

	dispatcher := backend.NewDispatcher(map[models.DeviceClass]backend.Capability{
		models.ClassIPCamera:    ipcam.New(cfg.Capture, log),
		models.ClassDepthSensor: depth.New(cfg.Capture, log),
	})

	runner := orchestrator.NewRunner(&cfg, reg, dispatcher, log)

	if req.Kind == models.OpProbe {
		if pf, pfErr := report.CheckHost(cfg.OutputDir); pfErr != nil {
			log.Warn().Err(pfErr).Msg("Host preflight check failed")
		} else if !cf.jsonOut {
			pf.Render(os.Stdout)
		}
	}

	hostTime := time.Now().UTC()

	rep, err := runner.Run(ctx, registry.ParseSelector(cf.devices), req)
	if err != nil {
		return 0, err
	}

	if cf.jsonOut {
		if err := report.RenderJSON(os.Stdout, rep); err != nil {
			return 0, fmt.Errorf("failed to encode report: %w", err)
		}
	} else {
		opts := report.Options{}
		if req.Kind == models.OpVerifyTime {
			opts.HostTime = hostTime
			opts.Tolerance = time.Duration(cfg.TimeSyncTolerance)
		}

		if err := report.Render(os.Stdout, rep, opts); err != nil {
			return 0, fmt.Errorf("failed to render report: %w", err)
		}
	}

	return report.ExitCode(rep), nil
}
