// SPDX-License-Identifier: MPL-2.0

// Package pyname normalizes Python distribution names, version strings and
// extra names into the canonical forms used inside package metadata and
// archive filenames.
//
// Three escaping regimes coexist in Python packaging and they are not
// interchangeable:
//   - distribution names in metadata records use '-' as the separator
//   - filenames (wheel stems, dist-info directories) use '_' instead,
//     because '-' is the field separator inside a wheel filename
//   - extra names are lowercased and use '_' as the separator
//
// The functions here are pure and idempotent: applying one twice yields the
// same result as applying it once.
package pyname

import (
	"regexp"
	"strings"
)

// unsafeNameRuns matches runs of characters that are not valid inside a
// normalized distribution name. Dots survive normalization; everything else
// outside [A-Za-z0-9] collapses to a single '-'.
var unsafeNameRuns = regexp.MustCompile(`[^A-Za-z0-9.]+`)

// unsafeExtraRuns matches runs of characters that are not valid inside a
// normalized extra name. Dots and dashes survive; everything else collapses
// to a single '_'.
var unsafeExtraRuns = regexp.MustCompile(`[^A-Za-z0-9.-]+`)

// SafeName converts an arbitrary project name to a standard distribution
// name. Any run of characters outside [A-Za-z0-9.] is replaced with a
// single '-'.
func SafeName(name string) string {
	return unsafeNameRuns.ReplaceAllString(name, "-")
}

// SafeExtra converts an arbitrary string to a standard extra name. Any run
// of characters outside [A-Za-z0-9.-] is replaced with a single '_' and the
// result is lowercased.
func SafeExtra(extra string) string {
	return strings.ToLower(unsafeExtraRuns.ReplaceAllString(extra, "_"))
}

// ToFilename converts a distribution name or version to its filename-escaped
// form by replacing every '-' with '_'. Filenames built from the result keep
// '-' free for use as the wheel filename field separator.
func ToFilename(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// NameVer builds the "<name>-<version>" stem shared by wheel filenames and
// the .dist-info / .data directory names. Only the name is filename-escaped;
// normalized versions contain no '-'.
func NameVer(safeName, version string) string {
	return ToFilename(safeName) + "-" + version
}
