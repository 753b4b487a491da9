// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/apprun-project/dropin/lib/clock"
	"github.com/apprun-project/dropin/lib/testutil"
)

// recordingRunner signals each pass on a channel and returns a
// configurable scanned-directory list.
type recordingRunner struct {
	passes chan struct{}

	mu      sync.Mutex
	scanned []string
	err     error
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{passes: make(chan struct{}, 16)}
}

func (r *recordingRunner) RunPass(context.Context) ([]string, error) {
	r.mu.Lock()
	scanned, err := r.scanned, r.err
	r.mu.Unlock()
	r.passes <- struct{}{}
	return scanned, err
}

func (r *recordingRunner) setScanned(dirs []string) {
	r.mu.Lock()
	r.scanned = dirs
	r.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPollRunsPassesOnInterval(t *testing.T) {
	runner := newRecordingRunner()
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	poll := &Poll{
		Runner:   runner,
		Interval: 3 * time.Second,
		Clock:    fakeClock,
		Logger:   testLogger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		poll.Run(ctx)
		close(done)
	}()

	// First pass runs immediately, before any interval elapses.
	testutil.RequireReceive(t, runner.passes, 5*time.Second, "first pass")

	// Each interval triggers exactly one more pass.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(3 * time.Second)
	testutil.RequireReceive(t, runner.passes, 5*time.Second, "second pass")

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(3 * time.Second)
	testutil.RequireReceive(t, runner.passes, 5*time.Second, "third pass")

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "poll loop exit")
}

func TestPollNoPassBeforeIntervalElapses(t *testing.T) {
	runner := newRecordingRunner()
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	poll := &Poll{
		Runner:   runner,
		Interval: 3 * time.Second,
		Clock:    fakeClock,
		Logger:   testLogger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poll.Run(ctx)

	testutil.RequireReceive(t, runner.passes, 5*time.Second, "first pass")
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(2 * time.Second)
	testutil.RequireNoReceive(t, runner.passes, 200*time.Millisecond, "pass before interval")
}

func TestPollContinuesAfterPassFailure(t *testing.T) {
	runner := newRecordingRunner()
	runner.err = errors.New("pass failed")
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	poll := &Poll{
		Runner:   runner,
		Interval: time.Second,
		Clock:    fakeClock,
		Logger:   testLogger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poll.Run(ctx)

	testutil.RequireReceive(t, runner.passes, 5*time.Second, "first pass")
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(time.Second)
	testutil.RequireReceive(t, runner.passes, 5*time.Second, "pass after failure")
}
