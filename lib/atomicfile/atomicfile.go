// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile provides change-detecting atomic file writes.
//
// Files are written to a temporary location in the destination
// directory, fsynced for durability, and renamed into place. Readers
// never see a partial write. Writing content identical to what is
// already on disk is a no-op: no write, no permission change, no
// mtime disturbance.
package atomicfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// TempPrefix is the prefix of temporary files created during atomic
// writes. A crashed process can leave such files behind; they are
// hidden (dot-prefixed) so directory consumers and the change watcher
// ignore them.
const TempPrefix = ".apprun-tmp-"

// WriteIfChanged writes content to path atomically, unless the file
// already holds exactly that content. Returns true when a write
// happened. The parent directory must exist.
func WriteIfChanged(path string, content []byte, mode os.FileMode) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return false, nil
	}

	temporary, err := os.CreateTemp(filepath.Dir(path), TempPrefix+"*")
	if err != nil {
		return false, fmt.Errorf("creating temporary file for %s: %w", path, err)
	}
	temporaryPath := temporary.Name()

	// Write, sync, close — in that order. If any step fails, remove
	// the temporary file and report the first error.
	if _, err := temporary.Write(content); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return false, fmt.Errorf("writing temporary file for %s: %w", path, err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return false, fmt.Errorf("syncing temporary file for %s: %w", path, err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return false, fmt.Errorf("closing temporary file for %s: %w", path, err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return false, fmt.Errorf("renaming %s into place: %w", path, err)
	}

	if err := os.Chmod(path, mode); err != nil {
		return true, fmt.Errorf("setting mode on %s: %w", path, err)
	}

	// Sync the parent directory so the rename survives power loss
	// between the rename and the OS flushing directory metadata.
	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return true, nil
}

// Remove deletes path. A file that is already gone is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}
