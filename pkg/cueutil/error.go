// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// FormatError rewrites a CUE error for terminal display. Each underlying
// error renders as "<json-path>: <message>" behind the file name:
//
//	config.cue: ui.color_scheme: conflicting values ...
//	config.cue: jobs: invalid value 0 (out of bound >=1)
//
// Multiple errors fold into one indented list under a "validation failed"
// banner. A non-CUE error is wrapped with the file name and left intact.
func FormatError(err error, filename string) error {
	if err == nil {
		return nil
	}
	details := cueerrors.Errors(err)
	if len(details) == 0 {
		return fmt.Errorf("%s: %w", filename, err)
	}
	lines := make([]string, len(details))
	for i, detail := range details {
		lines[i] = renderDetail(detail)
	}
	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", filename, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", filename, strings.Join(lines, "\n  "))
}

func renderDetail(e cueerrors.Error) string {
	path := jsonPath(cueerrors.Path(e))
	if path == "" {
		return e.Error()
	}
	// CUE often repeats the path at the head of the message; keep one copy.
	msg := e.Error()
	if trimmed := strings.TrimPrefix(msg, path); trimmed != msg {
		msg = strings.TrimSpace(strings.TrimPrefix(trimmed, ":"))
	}
	return path + ": " + msg
}

// jsonPath renders a CUE error path such as ["prebuild", "0", "command"] in
// the bracketed notation users know from JSON tooling: "prebuild[0].command".
func jsonPath(parts []string) string {
	var b strings.Builder
	for i, part := range parts {
		switch {
		case i > 0 && isIndex(part):
			b.WriteString("[")
			b.WriteString(part)
			b.WriteString("]")
		case i > 0:
			b.WriteString(".")
			b.WriteString(part)
		default:
			b.WriteString(part)
		}
	}
	return b.String()
}

func isIndex(part string) bool {
	if part == "" {
		return false
	}
	for _, c := range part {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
