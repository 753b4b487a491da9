// Copyright 2026 The AppRun Authors
// SPDX-License-Identifier: Apache-2.0

// Package desktop renders launcher descriptor documents from bundle
// property sets.
package desktop

import "strings"

// Template is the descriptor document skeleton. Placeholders are the
// property name between two dollar signs.
const Template = `[Desktop Entry]
Version=$Version$
Name=$Name$
Comment=$Comment$
Exec=/usr/local/sbin/apprun.sh "$BundlePath$" $Args$
Icon=$Icon.png$
Terminal=$Terminal$
Type=$Type$
Categories=$Categories$;
`

// fallbacks fill placeholders the property set leaves unset. Every
// placeholder in Template except Name and BundlePath has an entry, so
// no literal placeholder token survives in output; Name and BundlePath
// resolve to the empty string when absent.
var fallbacks = map[string]string{
	"Version":    "1.0",
	"Comment":    "",
	"Args":       "",
	"Icon.png":   "/usr/local/AppRun/unknown-app-icon.png",
	"Terminal":   "false",
	"Type":       "Application",
	"Categories": "Utility",
}

// Render substitutes the property set into Template. The template is
// scanned exactly once: each placeholder resolves to the property
// value, then the fallback, then the empty string. Property values are
// emitted verbatim — a value that itself contains a placeholder-shaped
// token is never re-substituted.
func Render(properties map[string]string) string {
	var output strings.Builder
	rest := Template
	for {
		start := strings.IndexByte(rest, '$')
		if start < 0 {
			output.WriteString(rest)
			break
		}
		length := strings.IndexByte(rest[start+1:], '$')
		if length < 0 {
			output.WriteString(rest)
			break
		}

		output.WriteString(rest[:start])
		key := rest[start+1 : start+1+length]
		if value, ok := properties[key]; ok {
			output.WriteString(value)
		} else {
			output.WriteString(fallbacks[key])
		}
		rest = rest[start+length+2:]
	}
	return output.String()
}

// Filename derives the descriptor filename from a bundle's Name
// property. Path separators and null bytes are replaced, leading dots
// stripped (a hidden descriptor would be invisible to launchers and to
// the change watcher). An empty result falls back to "App".
func Filename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', 0:
			return '-'
		}
		return r
	}, strings.TrimSpace(name))
	cleaned = strings.TrimLeft(cleaned, ".")
	if cleaned == "" {
		cleaned = "App"
	}
	return cleaned + ".desktop"
}
