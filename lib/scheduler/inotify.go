// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/apprun-project/dropin/lib/clock"
)

// watchMask selects the child events that can change reconciliation
// outcome: entries appearing, disappearing, moving, or finishing a
// write.
const watchMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_MOVED_TO |
	unix.IN_MOVED_FROM | unix.IN_CLOSE_WRITE

// Inotify runs one pass at startup, then re-runs it when filesystem
// change notifications arrive, coalesced via a debounce window.
// Notifications inside the window are dropped, not queued: the next
// pass is full and idempotent, so a dropped notification loses
// nothing once any later trigger fires.
//
// The watch set starts with the directories scanned by the initial
// pass plus the base user-home directory (to notice new users), and
// extends itself with newly discovered directories after every pass.
type Inotify struct {
	runner        Runner
	baseDirectory string
	debounce      time.Duration
	clk           clock.Clock
	logger        *slog.Logger

	fd       int
	watched  map[string]bool
	lastPass time.Time
}

// NewInotify creates the event-driven scheduler. When the kernel's
// change-notification capability is unavailable the constructor fails;
// the caller exits with a diagnostic rather than silently degrading
// to polling.
func NewInotify(runner Runner, baseDirectory string, debounce time.Duration, clk clock.Clock, logger *slog.Logger) (*Inotify, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify unavailable (inotify_init1): %w", err)
	}
	return &Inotify{
		runner:        runner,
		baseDirectory: baseDirectory,
		debounce:      debounce,
		clk:           clk,
		logger:        logger,
		fd:            fd,
		watched:       make(map[string]bool),
	}, nil
}

// Run executes the initial pass, registers watches, and then loops on
// the inotify descriptor until the context is cancelled.
func (w *Inotify) Run(ctx context.Context) error {
	defer unix.Close(w.fd)

	scanned, err := w.runner.RunPass(ctx)
	if err != nil {
		w.logger.Error("initial reconciliation pass failed", "error", err)
	}
	w.lastPass = w.clk.Now()
	w.watch(w.baseDirectory)
	for _, directory := range scanned {
		w.watch(directory)
	}

	buffer := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// poll(2) with a 100ms timeout keeps the loop responsive to
		// context cancellation without spinning.
		descriptors := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
		count, err := unix.Poll(descriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("polling inotify descriptor: %w", err)
		}
		if count == 0 {
			continue
		}

		bytesRead, err := unix.Read(w.fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reading inotify events: %w", err)
		}

		if !containsRelevantEvent(buffer[:bytesRead]) {
			continue
		}
		if w.clk.Now().Sub(w.lastPass) < w.debounce {
			// Dropped, not queued. Safe: the pass triggered by the
			// next notification outside the window is full, not
			// incremental.
			continue
		}

		scanned, err := w.runner.RunPass(ctx)
		if err != nil {
			w.logger.Error("reconciliation pass failed", "error", err)
		}
		w.lastPass = w.clk.Now()
		for _, directory := range scanned {
			w.watch(directory)
		}
	}
}

// watch registers an inotify watch on directory. Idempotent: an
// already-watched directory is a no-op. Registration failure is
// logged and skipped — the polling fallback for that directory is the
// next pass triggered by activity elsewhere.
func (w *Inotify) watch(directory string) {
	if w.watched[directory] {
		return
	}
	if _, err := unix.InotifyAddWatch(w.fd, directory, watchMask); err != nil {
		w.logger.Warn("could not watch directory", "dir", directory, "error", err)
		return
	}
	w.watched[directory] = true
	w.logger.Debug("watching directory", "dir", directory)
}

// containsRelevantEvent reports whether any event in the buffer names
// a non-hidden entry. Hidden names (dot-prefixed) are temp-file churn
// — including this daemon's own atomic-write temporaries — and must
// not re-trigger passes. Event layout from inotify(7):
//
//	struct inotify_event {
//	    int32_t  wd;     // offset 0
//	    uint32_t mask;   // offset 4
//	    uint32_t cookie; // offset 8
//	    uint32_t len;    // offset 12
//	    char     name[]; // offset 16, null-padded to alignment
//	};
func containsRelevantEvent(buffer []byte) bool {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		eventSize := unix.SizeofInotifyEvent + nameLength
		if offset+eventSize > len(buffer) {
			break
		}

		if nameLength == 0 {
			// An event on the watched directory itself.
			return true
		}
		name := nullTerminatedString(buffer[offset+unix.SizeofInotifyEvent : offset+eventSize])
		if name != "" && !strings.HasPrefix(name, ".") {
			return true
		}

		offset += eventSize
	}
	return false
}

// nullTerminatedString extracts a string from a null-padded byte
// slice, stopping at the first null byte.
func nullTerminatedString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}
