// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler drives the reconciliation engine. Two backends
// implement the same Scheduler contract and are selected at startup,
// never mixed: Poll re-runs the pass on a fixed interval; Inotify
// re-runs it on filesystem change notifications, coalesced through a
// debounce window.
package scheduler

import "context"

// Runner runs one reconciliation pass and reports the root
// directories it scanned.
type Runner interface {
	RunPass(ctx context.Context) ([]string, error)
}

// Scheduler drives a Runner according to some trigger policy until
// the context is cancelled.
type Scheduler interface {
	Run(ctx context.Context) error
}
