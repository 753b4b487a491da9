// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry persists the mapping from bundle path to the
// descriptor files the daemon currently owns. The registry is the sole
// record of "what did we previously create": descriptor destination
// directories also contain unrelated files this daemon must never
// touch.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"

	"github.com/apprun-project/dropin/lib/atomicfile"
)

// Entry records the descriptor files attributed to one bundle.
type Entry struct {
	// DesktopFiles is sorted for deterministic persistence. It may be
	// empty: a valid bundle without a Name property owns no
	// descriptors but stays registered while it exists.
	DesktopFiles []string `json:"desktop_files"`
}

// Registry maps bundle path to its entry. Serialized with stable key
// ordering (encoding/json sorts map keys).
type Registry map[string]*Entry

// Store loads and saves the registry file.
type Store struct {
	path   string
	logger *slog.Logger

	// lastSaved is the blake3 digest of the last successfully saved
	// serialization. Save suppresses the disk write when the digest is
	// unchanged. Instance state, not a package global, so independent
	// stores and tests do not interfere.
	lastSaved [32]byte
	haveSaved bool
}

// NewStore returns a Store persisting to the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the registry file path.
func (s *Store) Path() string { return s.path }

// Load reads the registry from disk. A missing file yields an empty
// registry. Malformed content yields an empty registry with a warning
// — never a fatal error: the next pass rebuilds the registry from
// what it observes, at the cost of possibly orphaning descriptors
// from the lost state. Content is passed through a JSONC filter so a
// hand-edited file with comments or trailing commas still loads.
func (s *Store) Load() Registry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("could not read registry", "path", s.path, "error", err)
		}
		return Registry{}
	}

	var reg Registry
	if err := json.Unmarshal(jsonc.ToJSON(data), &reg); err != nil {
		s.logger.Warn("could not parse registry", "path", s.path, "error", err)
		return Registry{}
	}
	if reg == nil {
		reg = Registry{}
	}
	// A hand-edited file can carry a null entry value. Normalize it so
	// the engine never sees a nil entry; the bundle stays tracked and
	// reconciles normally on the next pass.
	for bundlePath, entry := range reg {
		if entry == nil {
			s.logger.Warn("registry entry is null, treating as empty", "bundle", bundlePath)
			reg[bundlePath] = &Entry{}
		}
	}
	return reg
}

// Save serializes the registry deterministically and writes it through
// the atomic write protocol. The write is suppressed when the
// serialized form matches the last successful save. The registry
// directory is created on demand.
func (s *Store) Save(reg Registry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing registry: %w", err)
	}
	data = append(data, '\n')

	digest := blake3.Sum256(data)
	if s.haveSaved && digest == s.lastSaved {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}
	if _, err := atomicfile.WriteIfChanged(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}

	s.lastSaved = digest
	s.haveSaved = true
	return nil
}
