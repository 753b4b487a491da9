// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

// Package dropin implements the reconciliation engine: one pass scans
// for bundles, materializes their launcher descriptors, removes stale
// descriptors, and persists the registry. Passes are idempotent — a
// pass over an unchanged filesystem performs no writes and no
// deletions — so schedulers may re-run them freely.
package dropin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/apprun-project/dropin/lib/atomicfile"
	"github.com/apprun-project/dropin/lib/bundle"
	"github.com/apprun-project/dropin/lib/clock"
	"github.com/apprun-project/dropin/lib/desktop"
	"github.com/apprun-project/dropin/lib/ownership"
	"github.com/apprun-project/dropin/lib/registry"
	"github.com/apprun-project/dropin/lib/scanner"
)

// descriptorMode is the permission mode of generated descriptor files.
const descriptorMode = 0644

// userApplicationsDir is where per-user descriptors land, relative to
// the user's home directory.
var userApplicationsDir = filepath.Join(".local", "share", "applications")

// Options configures an Engine.
type Options struct {
	Scanner   *scanner.Scanner
	Validator bundle.Validator
	Store     *registry.Store

	// Registry is the state loaded at startup. The engine owns it from
	// here on and mutates it in place every pass.
	Registry registry.Registry

	// SystemApplicationsDir receives descriptors for bundles found
	// under the global probe roots.
	SystemApplicationsDir string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Engine runs reconciliation passes. Not safe for concurrent passes;
// the schedulers guarantee a single logical thread of control. Stats
// may be read concurrently.
type Engine struct {
	scanner               *scanner.Scanner
	validator             bundle.Validator
	store                 *registry.Store
	registry              registry.Registry
	systemApplicationsDir string
	clock                 clock.Clock
	logger                *slog.Logger

	// statsMu guards stats, which the control socket reads while a
	// pass updates it.
	statsMu sync.Mutex
	stats   Stats
}

// Stats is an operational snapshot for the control socket.
type Stats struct {
	PassesCompleted  uint64
	LastPassAt       time.Time
	BundlesTracked   int
	DescriptorsOwned int
}

// New returns an Engine ready to run passes.
func New(options Options) *Engine {
	reg := options.Registry
	if reg == nil {
		reg = registry.Registry{}
	}
	return &Engine{
		scanner:               options.Scanner,
		validator:             options.Validator,
		store:                 options.Store,
		registry:              reg,
		systemApplicationsDir: options.SystemApplicationsDir,
		clock:                 options.Clock,
		logger:                options.Logger,
	}
}

// RunPass executes one full reconciliation pass: scan, validate,
// generate, write, diff against the registry, delete stale
// descriptors, persist. Returns the root directories scanned, for
// watch-set extension by the event-driven scheduler.
//
// Per-candidate failures are logged and skipped; the pass always runs
// to completion. Only a registry persistence failure is returned as an
// error.
func (e *Engine) RunPass(ctx context.Context) ([]string, error) {
	candidates, scannedDirs := e.scanner.Scan()

	// links records, per observed bundle, the descriptor paths
	// produced this pass. An observed bundle without a Name property
	// gets an entry with zero paths, which is what expires its old
	// descriptors in the diff below.
	links := make(map[string][]string)

	for _, candidate := range candidates {
		valid, err := e.validator.Validate(ctx, candidate.Path)
		if err != nil {
			e.logger.Warn("validator failed", "bundle", candidate.Path, "error", err)
			continue
		}
		if !valid {
			continue
		}
		if _, observed := links[candidate.Path]; !observed {
			links[candidate.Path] = nil
		}

		properties, err := bundle.LoadProperties(candidate.Path)
		if err != nil {
			e.logger.Warn("degraded property read", "bundle", candidate.Path, "error", err)
		}
		name, ok := properties.Name()
		if !ok {
			continue
		}

		destination, err := e.destinationPath(candidate, name)
		if err != nil {
			e.logger.Warn("resolving descriptor destination", "bundle", candidate.Path, "error", err)
			continue
		}

		document := desktop.Render(properties)
		wrote, err := atomicfile.WriteIfChanged(destination, []byte(document), descriptorMode)
		if err != nil {
			e.logger.Warn("writing descriptor", "path", destination, "error", err)
			continue
		}
		if wrote {
			e.logger.Info("wrote descriptor", "path", destination, "bundle", candidate.Path)
		}

		// Per-user descriptors belong to the user, not to the daemon's
		// uid. Failure to chown is logged, not fatal.
		if candidate.UserHome != "" {
			if err := ownership.Inherit(destination, candidate.UserHome); err != nil {
				e.logger.Warn("could not chown descriptor", "path", destination, "error", err)
			}
		}

		links[candidate.Path] = append(links[candidate.Path], destination)
	}

	e.reconcileRegistry(links)

	if err := e.store.Save(e.registry); err != nil {
		return scannedDirs, fmt.Errorf("persisting registry: %w", err)
	}

	e.recordPass()
	return scannedDirs, nil
}

// destinationPath computes where a bundle's descriptor lands and makes
// sure the destination directory exists. Per-user destinations are
// created with ownership inherited from the user's home.
func (e *Engine) destinationPath(candidate scanner.Target, name string) (string, error) {
	if candidate.UserHome == "" {
		if err := os.MkdirAll(e.systemApplicationsDir, 0755); err != nil {
			return "", fmt.Errorf("creating %s: %w", e.systemApplicationsDir, err)
		}
		return filepath.Join(e.systemApplicationsDir, desktop.Filename(name)), nil
	}

	applicationsDir := filepath.Join(candidate.UserHome, userApplicationsDir)
	if _, err := os.Stat(applicationsDir); err != nil {
		if err := os.MkdirAll(applicationsDir, 0755); err != nil {
			return "", fmt.Errorf("creating %s: %w", applicationsDir, err)
		}
		if err := ownership.Inherit(applicationsDir, candidate.UserHome); err != nil {
			return "", err
		}
	}
	return filepath.Join(applicationsDir, desktop.Filename(name)), nil
}

// reconcileRegistry diffs this pass's link table against the registry:
// stale descriptors of still-present bundles are deleted, entries are
// replaced with the sorted paths produced this pass, and bundles that
// disappeared (or stopped validating) lose all their descriptors and
// their registry entry.
func (e *Engine) reconcileRegistry(links map[string][]string) {
	for bundlePath, produced := range links {
		producedSet := make(map[string]bool, len(produced))
		for _, path := range produced {
			producedSet[path] = true
		}

		if previous := e.registry[bundlePath]; previous != nil {
			for _, path := range previous.DesktopFiles {
				if !producedSet[path] {
					e.removeDescriptor(path)
				}
			}
		}

		sorted := make([]string, 0, len(produced))
		for path := range producedSet {
			sorted = append(sorted, path)
		}
		sort.Strings(sorted)
		e.registry[bundlePath] = &registry.Entry{DesktopFiles: sorted}
	}

	for bundlePath, entry := range e.registry {
		if _, observed := links[bundlePath]; observed {
			continue
		}
		for _, path := range entry.DesktopFiles {
			e.removeDescriptor(path)
		}
		delete(e.registry, bundlePath)
	}
}

// removeDescriptor deletes a stale descriptor file. Best effort: a
// file that is already gone is fine, anything else is logged and the
// pass continues.
func (e *Engine) removeDescriptor(path string) {
	if err := atomicfile.Remove(path); err != nil {
		e.logger.Warn("could not remove stale descriptor", "path", path, "error", err)
		return
	}
	e.logger.Info("removed stale descriptor", "path", path)
}

// recordPass updates the stats snapshot after a completed pass.
func (e *Engine) recordPass() {
	descriptors := 0
	for _, entry := range e.registry {
		descriptors += len(entry.DesktopFiles)
	}

	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.stats.PassesCompleted++
	e.stats.LastPassAt = e.clock.Now()
	e.stats.BundlesTracked = len(e.registry)
	e.stats.DescriptorsOwned = descriptors
}

// Stats returns a snapshot of the engine's operational counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}
