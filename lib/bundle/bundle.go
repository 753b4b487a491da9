// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundle validates application bundle directories and loads
// their descriptor property sets.
//
// Validation is delegated to an external utility: the bundle format is
// owned by the AppRun runtime, and this daemon only consumes its
// verdict. Properties come from files under the bundle's
// AppRunMeta/DesktopLink directory — one file per property, filename
// as the name, trimmed content as the value.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Well-known property names.
const (
	// PropertyBundlePath is always present: the bundle's own absolute
	// directory path, the identity key throughout the daemon.
	PropertyBundlePath = "BundlePath"

	// PropertyName drives descriptor creation. A bundle without it is
	// valid but produces no descriptor.
	PropertyName = "Name"
)

// metaDirectory and linkDirectory locate the property files inside a
// bundle.
const (
	metaDirectory = "AppRunMeta"
	linkDirectory = "DesktopLink"
)

// validateAction is the fixed first argument passed to the validator
// utility.
const validateAction = "BundleInfo"

// Properties is a bundle's property set.
type Properties map[string]string

// Name returns the Name property and whether it is set.
func (p Properties) Name() (string, bool) {
	name, ok := p[PropertyName]
	return name, ok
}

// Validator decides whether a candidate directory is a bundle.
type Validator interface {
	// Validate reports whether path is a valid bundle. A negative
	// verdict is not an error; errors mean the verdict could not be
	// obtained at all.
	Validate(ctx context.Context, path string) (bool, error)
}

// ExecValidator invokes an external utility as
// "<command> BundleInfo <path>". Exit status zero means valid bundle;
// any non-zero exit means "not a bundle". Output is ignored.
type ExecValidator struct {
	// Command is the validator executable path.
	Command string
}

// Validate runs the validator utility against path.
func (v *ExecValidator) Validate(ctx context.Context, path string) (bool, error) {
	command := exec.CommandContext(ctx, v.Command, validateAction, path)
	if err := command.Run(); err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return false, nil
		}
		return false, fmt.Errorf("running validator %s: %w", v.Command, err)
	}
	return true, nil
}

// LoadProperties reads the property set of a validated bundle. The
// returned set always contains BundlePath, even when the DesktopLink
// directory is missing (a valid bundle with zero descriptors) or
// partially unreadable. A non-nil error reports a degraded read; the
// caller may still use the returned set.
func LoadProperties(bundlePath string) (Properties, error) {
	properties := Properties{PropertyBundlePath: bundlePath}

	linkPath := filepath.Join(bundlePath, metaDirectory, linkDirectory)
	entries, err := os.ReadDir(linkPath)
	if err != nil {
		if os.IsNotExist(err) {
			return properties, nil
		}
		return properties, fmt.Errorf("reading %s: %w", linkPath, err)
	}

	var readErrors []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		propertyPath := filepath.Join(linkPath, entry.Name())
		data, err := os.ReadFile(propertyPath)
		if err != nil {
			readErrors = append(readErrors, err)
			continue
		}
		if utf8.Valid(data) {
			properties[entry.Name()] = strings.TrimSpace(string(data))
		} else {
			// Binary property file: fall back to the file's own path
			// as the value.
			properties[entry.Name()] = propertyPath
		}
	}

	return properties, errors.Join(readErrors...)
}
