// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

package ownership

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	uid, gid, err := Lookup(path)
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if uid != uint32(os.Getuid()) {
		t.Errorf("uid = %d, want %d", uid, os.Getuid())
	}
	if gid != uint32(os.Getgid()) {
		t.Errorf("gid = %d, want %d", gid, os.Getgid())
	}
}

func TestLookupMissingPath(t *testing.T) {
	if _, _, err := Lookup(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestInherit(t *testing.T) {
	directory := t.TempDir()
	reference := filepath.Join(directory, "reference")
	target := filepath.Join(directory, "target")
	for _, path := range []string{reference, target} {
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile() error: %v", err)
		}
	}

	// Both files are already owned by the current user, so Inherit is
	// a no-op chown. Running unprivileged, chown to one's own uid/gid
	// is the only chown that succeeds; the test verifies the plumbing,
	// not a privilege transition.
	if err := Inherit(target, reference); err != nil {
		t.Fatalf("Inherit() error: %v", err)
	}
}
