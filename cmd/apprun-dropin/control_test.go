// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apprun-project/dropin/lib/bundle"
	"github.com/apprun-project/dropin/lib/clock"
	"github.com/apprun-project/dropin/lib/codec"
	"github.com/apprun-project/dropin/lib/dropin"
	"github.com/apprun-project/dropin/lib/registry"
	"github.com/apprun-project/dropin/lib/scanner"
)

type acceptAllValidator struct{}

func (acceptAllValidator) Validate(context.Context, string) (bool, error) { return true, nil }

// newTestEngine builds an engine over empty temp directories and runs
// one pass so the stats snapshot is populated.
func newTestEngine(t *testing.T) *dropin.Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stateDir := t.TempDir()

	var validator bundle.Validator = acceptAllValidator{}
	store := registry.NewStore(filepath.Join(stateDir, "desktop-links.json"), logger)
	engine := dropin.New(dropin.Options{
		Scanner: &scanner.Scanner{
			GlobalTargets:       []string{filepath.Join(stateDir, "applications")},
			BaseDirectory:       filepath.Join(stateDir, "home"),
			ApplicationsDirname: "applications",
			Logger:              logger,
		},
		Validator:             validator,
		Store:                 store,
		Registry:              store.Load(),
		SystemApplicationsDir: filepath.Join(stateDir, "share"),
		Clock:                 clock.Real(),
		Logger:                logger,
	})

	if _, err := engine.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass() error: %v", err)
	}
	return engine
}

// startControl runs a control server on a unix socket and returns the
// socket path.
func startControl(t *testing.T, server *controlServer) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "control.sock")
	listener, err := listenControl(socketPath)
	if err != nil {
		t.Fatalf("listenControl() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.serve(ctx, listener)
	return socketPath
}

func query(t *testing.T, socketPath, action string, response any) {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("DialTimeout() error: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if err := json.NewEncoder(conn).Encode(controlRequest{Action: action}); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	if err := codec.NewDecoder(conn).Decode(response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestControlStatus(t *testing.T) {
	engine := newTestEngine(t)
	server := &controlServer{
		engine:  engine,
		backend: "poll",
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	socketPath := startControl(t, server)

	var status statusResponse
	query(t, socketPath, "status", &status)

	if status.Backend != "poll" {
		t.Errorf("Backend = %q, want poll", status.Backend)
	}
	if status.PassesCompleted != 1 {
		t.Errorf("PassesCompleted = %d, want 1", status.PassesCompleted)
	}
	if status.BundlesTracked != 0 {
		t.Errorf("BundlesTracked = %d, want 0", status.BundlesTracked)
	}
	if status.LastPassAt.IsZero() {
		t.Error("LastPassAt is zero, want the pass timestamp")
	}
}

func TestControlUnknownAction(t *testing.T) {
	server := &controlServer{
		engine:  newTestEngine(t),
		backend: "poll",
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	socketPath := startControl(t, server)

	var failure errorResponse
	query(t, socketPath, "restart", &failure)
	if failure.Error == "" {
		t.Error("expected an error message for an unknown action")
	}
}

func TestListenControlReplacesStaleSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "control.sock")

	first, err := listenControl(socketPath)
	if err != nil {
		t.Fatalf("listenControl() error: %v", err)
	}
	// Simulate an unclean shutdown: the socket file survives the
	// listener.
	first.Close()
	if err := os.WriteFile(socketPath, nil, 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	second, err := listenControl(socketPath)
	if err != nil {
		t.Fatalf("listenControl() after stale socket error: %v", err)
	}
	second.Close()
}
