// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/apprun-project/dropin/lib/clock"
)

// Poll re-runs the pass on a fixed interval, forever. No jitter, no
// backoff: a slow or failing pass simply delays the next one, and
// because passes are idempotent the next interval is the retry
// mechanism.
type Poll struct {
	Runner   Runner
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Run loops until the context is cancelled. A pass in flight runs to
// its natural end; cancellation is only observed between passes.
func (p *Poll) Run(ctx context.Context) error {
	for {
		if _, err := p.Runner.RunPass(ctx); err != nil {
			p.Logger.Error("reconciliation pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-p.Clock.After(p.Interval):
		}
	}
}
