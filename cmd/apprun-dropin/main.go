// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

// Apprun-dropin keeps launcher descriptor files in sync with the
// application bundles installed on the system. Every reconciliation
// pass scans the global probe roots and each user's bundle directory,
// asks the external validator utility which candidates are real
// bundles, writes a descriptor per bundle into the matching
// applications directory, and deletes descriptors whose bundle has
// disappeared. A registry file records which descriptors the daemon
// owns, so it never touches files it did not create.
//
// Two scheduling backends are available: a fixed-interval polling loop
// (the default) and a filesystem-notification loop with a debounce
// window. Both run the same idempotent pass.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/apprun-project/dropin/lib/bundle"
	"github.com/apprun-project/dropin/lib/clock"
	"github.com/apprun-project/dropin/lib/config"
	"github.com/apprun-project/dropin/lib/dropin"
	"github.com/apprun-project/dropin/lib/process"
	"github.com/apprun-project/dropin/lib/registry"
	"github.com/apprun-project/dropin/lib/scanner"
	"github.com/apprun-project/dropin/lib/scheduler"
	"github.com/apprun-project/dropin/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		backend     string
		showVersion bool
	)

	pflag.StringVar(&configPath, "config", "", "path to the YAML config file (default: APPRUN_DROPIN_CONFIG, or built-in defaults)")
	pflag.StringVar(&backend, "backend", "poll", "scheduling backend: poll or inotify")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("apprun-dropin %s\n", version.Info())
		return nil
	}

	if configPath == "" {
		configPath = os.Getenv("APPRUN_DROPIN_CONFIG")
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := registry.NewStore(cfg.RegistryPath(), logger)
	engine := dropin.New(dropin.Options{
		Scanner: &scanner.Scanner{
			GlobalTargets:       cfg.GlobalProbeTargets,
			BaseDirectory:       cfg.BaseDirectory,
			ApplicationsDirname: cfg.ApplicationsDirname,
			MakeDirectories:     cfg.MakeDirectories,
			Logger:              logger,
		},
		Validator:             &bundle.ExecValidator{Command: cfg.ValidatorCommand},
		Store:                 store,
		Registry:              store.Load(),
		SystemApplicationsDir: cfg.SystemApplicationsDir,
		Clock:                 clock.Real(),
		Logger:                logger,
	})

	if cfg.ControlSocket != "" {
		control := &controlServer{
			engine:  engine,
			backend: backend,
			logger:  logger,
		}
		listener, err := listenControl(cfg.ControlSocket)
		if err != nil {
			return fmt.Errorf("control socket: %w", err)
		}
		go control.serve(ctx, listener)
		logger.Info("control socket listening", "path", cfg.ControlSocket)
	}

	var sched scheduler.Scheduler
	switch backend {
	case "poll":
		sched = &scheduler.Poll{
			Runner:   engine,
			Interval: cfg.PollInterval.Std(),
			Clock:    clock.Real(),
			Logger:   logger,
		}
	case "inotify":
		watcher, err := scheduler.NewInotify(engine, cfg.BaseDirectory, cfg.DebounceInterval.Std(), clock.Real(), logger)
		if err != nil {
			return err
		}
		sched = watcher
	default:
		return fmt.Errorf("unknown backend %q (expected poll or inotify)", backend)
	}

	logger.Info("starting reconciliation",
		"backend", backend,
		"base_directory", cfg.BaseDirectory,
		"registry", store.Path(),
		"version", version.Short())
	return sched.Run(ctx)
}
