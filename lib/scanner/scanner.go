// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

// Package scanner enumerates candidate bundle directories across the
// configured system probe roots and each user's bundle directory.
package scanner

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/apprun-project/dropin/lib/ownership"
)

// Target is a candidate bundle directory. Username and UserHome are
// empty for candidates found under a system-wide probe root.
type Target struct {
	// Path is the candidate directory, the bundle identity key.
	Path string

	// Username is the owning user for per-user candidates.
	Username string

	// UserHome is the user's home directory, used as the ownership
	// reference and the anchor for the per-user applications
	// directory.
	UserHome string
}

// Scanner discovers candidate bundle directories.
type Scanner struct {
	// GlobalTargets are the system-wide probe roots. Roots that do not
	// exist are silently skipped.
	GlobalTargets []string

	// BaseDirectory holds one subdirectory per user (typically /home).
	BaseDirectory string

	// ApplicationsDirname is the per-user bundle directory name under
	// each user's home.
	ApplicationsDirname string

	// MakeDirectories creates missing per-user bundle directories with
	// ownership inherited from the user's home.
	MakeDirectories bool

	Logger *slog.Logger
}

// Scan returns the candidate targets and the list of root directories
// visited. Global targets come first, then per-user targets, matching
// the order descriptors are generated in a pass. The visited roots
// seed the change watcher's watch set.
func (s *Scanner) Scan() (candidates []Target, scannedDirs []string) {
	for _, root := range s.GlobalTargets {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		scannedDirs = append(scannedDirs, root)
		for _, path := range subdirectories(root) {
			candidates = append(candidates, Target{Path: path})
		}
	}

	for _, user := range s.userDirectories() {
		scannedDirs = append(scannedDirs, user.bundleDir)
		for _, path := range subdirectories(user.bundleDir) {
			candidates = append(candidates, Target{
				Path:     path,
				Username: user.name,
				UserHome: user.home,
			})
		}
	}

	return candidates, scannedDirs
}

// userDirectory is a resolved per-user bundle root.
type userDirectory struct {
	name      string
	home      string
	bundleDir string
}

// userDirectories resolves the per-user bundle directory for every
// user under the base directory, creating missing directories with
// inherited ownership when configured. A user whose directory cannot
// be created or owned is logged and skipped for this pass.
func (s *Scanner) userDirectories() []userDirectory {
	entries, err := os.ReadDir(s.BaseDirectory)
	if err != nil {
		s.Logger.Warn("reading base directory", "dir", s.BaseDirectory, "error", err)
		return nil
	}

	var users []userDirectory
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		home := filepath.Join(s.BaseDirectory, entry.Name())
		bundleDir := filepath.Join(home, s.ApplicationsDirname)

		if _, err := os.Stat(bundleDir); err != nil {
			if !s.MakeDirectories {
				continue
			}
			if err := os.MkdirAll(bundleDir, 0755); err != nil {
				s.Logger.Warn("creating user bundle directory", "dir", bundleDir, "error", err)
				continue
			}
			if err := ownership.Inherit(bundleDir, home); err != nil {
				s.Logger.Warn("owning user bundle directory", "dir", bundleDir, "error", err)
				continue
			}
		}

		users = append(users, userDirectory{
			name:      entry.Name(),
			home:      home,
			bundleDir: bundleDir,
		})
	}
	return users
}

// subdirectories returns the immediate subdirectories of root. Any
// directory entry is a candidate, irrespective of name or extension.
func subdirectories(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			paths = append(paths, filepath.Join(root, entry.Name()))
		}
	}
	return paths
}
