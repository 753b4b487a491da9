// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

// Package ownership reads and applies file ownership. It is the single
// chown path in the daemon: every per-user write goes through Inherit
// so that failures surface as errors instead of silently swallowed
// side effects.
package ownership

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Lookup returns the owning uid and gid of path.
func Lookup(path string) (uid, gid uint32, err error) {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return 0, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return stat.Uid, stat.Gid, nil
}

// Apply sets the owning uid and gid of path.
func Apply(path string, uid, gid uint32) error {
	if err := unix.Chown(path, int(uid), int(gid)); err != nil {
		return fmt.Errorf("chown %s to %d:%d: %w", path, uid, gid, err)
	}
	return nil
}

// Inherit makes target owned by the same uid and gid as reference.
func Inherit(target, reference string) error {
	uid, gid, err := Lookup(reference)
	if err != nil {
		return err
	}
	return Apply(target, uid, gid)
}
