// SPDX-License-Identifier: MPL-2.0

// Package requires parses Python dependency requirement strings and expands
// dependency groups into the metadata header pairs installers consume.
//
// A requirement string follows the PEP 508 shape
//
//	name[extra1,extra2] >=1.0,<2.0 ; python_version < "3.10"
//	name @ https://example.com/name-1.0.tar.gz
//
// Environment markers are carried as opaque text: this package merges and
// re-emits them but never evaluates them.
package requires

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"wheelwright-cli/pkg/pyname"
)

// ErrMalformedRequirement is the sentinel error wrapped by
// MalformedRequirementError.
var ErrMalformedRequirement = errors.New("malformed requirement")

type (
	// Specifier is a single version constraint, e.g. {">=", "1.0"}.
	Specifier struct {
		Op      string
		Version string
	}

	// Requirement is a parsed dependency declaration. Exactly one of
	// Specifiers and URL may be populated; Marker holds the raw environment
	// marker text without the leading ';'.
	Requirement struct {
		Name       string
		Extras     []string
		Specifiers []Specifier
		URL        string
		Marker     string
	}

	// MalformedRequirementError is returned when a requirement string cannot
	// be parsed. It wraps ErrMalformedRequirement for errors.Is() compatibility.
	MalformedRequirementError struct {
		Input  string
		Reason string
	}

	// Header is a single metadata header pair emitted by Generate, e.g.
	// {"Requires-Dist", "pytest; extra == 'test'"}.
	Header struct {
		Name  string
		Value string
	}
)

func (e *MalformedRequirementError) Error() string {
	return fmt.Sprintf("malformed requirement %q: %s", e.Input, e.Reason)
}

func (e *MalformedRequirementError) Unwrap() error {
	return ErrMalformedRequirement
}

// namePattern matches a distribution or extra name: begins and ends with an
// alphanumeric character, with '.', '_' and '-' allowed in between.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)

// versionPattern is deliberately loose: it accepts anything a PEP 440
// version (including epochs, local segments and trailing wildcards) can
// contain, leaving strictness to downstream installers.
var versionPattern = regexp.MustCompile(`^[A-Za-z0-9._*!+-]+$`)

// specOps lists the comparison operators, longest first so that prefix
// matching picks "==" over "=" and "===" over "==".
var specOps = []string{"===", "==", "~=", "!=", "<=", ">=", "<", ">"}

func (s Specifier) String() string {
	return s.Op + s.Version
}

// Parse converts a requirement string into its structured form. Malformed
// inputs return a MalformedRequirementError.
func Parse(input string) (Requirement, error) {
	var req Requirement
	rest := strings.TrimSpace(input)
	if rest == "" {
		return req, &MalformedRequirementError{Input: input, Reason: "empty requirement"}
	}

	// Name: the longest leading run of name characters.
	end := 0
	for end < len(rest) && isNameChar(rest[end]) {
		end++
	}
	name := rest[:end]
	if !namePattern.MatchString(name) {
		return req, &MalformedRequirementError{Input: input, Reason: "invalid distribution name"}
	}
	req.Name = name
	rest = strings.TrimLeft(rest[end:], " \t")

	// Optional extras: "[extra1, extra2]".
	if strings.HasPrefix(rest, "[") {
		closing := strings.Index(rest, "]")
		if closing < 0 {
			return req, &MalformedRequirementError{Input: input, Reason: "unterminated extras list"}
		}
		inner := rest[1:closing]
		if strings.TrimSpace(inner) != "" {
			for _, extra := range strings.Split(inner, ",") {
				extra = strings.TrimSpace(extra)
				if !namePattern.MatchString(extra) {
					return req, &MalformedRequirementError{Input: input, Reason: fmt.Sprintf("invalid extra name %q", extra)}
				}
				req.Extras = append(req.Extras, extra)
			}
		}
		rest = strings.TrimLeft(rest[closing+1:], " \t")
	}

	// Direct URL reference: "@ <url>". The URL is a single whitespace-free
	// token; anything after it must be a marker.
	if strings.HasPrefix(rest, "@") {
		rest = strings.TrimLeft(rest[1:], " \t")
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			end = len(rest)
		}
		req.URL = rest[:end]
		if req.URL == "" {
			return req, &MalformedRequirementError{Input: input, Reason: "missing URL after '@'"}
		}
		rest = strings.TrimLeft(rest[end:], " \t")
		if rest != "" {
			marker, err := parseMarkerTail(input, rest)
			if err != nil {
				return req, err
			}
			req.Marker = marker
		}
		return req, nil
	}

	// Version specifiers run up to the marker separator.
	specText := rest
	if sep := strings.Index(rest, ";"); sep >= 0 {
		specText = rest[:sep]
		marker := strings.TrimSpace(rest[sep+1:])
		if marker == "" {
			return req, &MalformedRequirementError{Input: input, Reason: "empty environment marker"}
		}
		req.Marker = marker
	}
	specText = strings.TrimSpace(specText)
	// Legacy parenthesized form: "name (>=1.0)".
	if strings.HasPrefix(specText, "(") && strings.HasSuffix(specText, ")") {
		specText = strings.TrimSpace(specText[1 : len(specText)-1])
	}
	if specText != "" {
		for _, clause := range strings.Split(specText, ",") {
			spec, err := parseSpecifier(input, clause)
			if err != nil {
				return req, err
			}
			req.Specifiers = append(req.Specifiers, spec)
		}
	}
	return req, nil
}

func parseSpecifier(input, clause string) (Specifier, error) {
	clause = strings.TrimSpace(clause)
	for _, op := range specOps {
		if strings.HasPrefix(clause, op) {
			version := strings.TrimSpace(clause[len(op):])
			if !versionPattern.MatchString(version) {
				return Specifier{}, &MalformedRequirementError{Input: input, Reason: fmt.Sprintf("invalid version %q", version)}
			}
			return Specifier{Op: op, Version: version}, nil
		}
	}
	return Specifier{}, &MalformedRequirementError{Input: input, Reason: fmt.Sprintf("missing comparison operator in %q", clause)}
}

func parseMarkerTail(input, rest string) (string, error) {
	if !strings.HasPrefix(rest, ";") {
		return "", &MalformedRequirementError{Input: input, Reason: fmt.Sprintf("unexpected trailing text %q", rest)}
	}
	marker := strings.TrimSpace(rest[1:])
	if marker == "" {
		return "", &MalformedRequirementError{Input: input, Reason: "empty environment marker"}
	}
	return marker, nil
}

func isNameChar(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' ||
		c == '.' || c == '_' || c == '-'
}

// String renders the canonical single-line form: extras sorted, version
// specifiers sorted by their rendered text, URL separated by " @ ", and the
// marker introduced by "; " (with a leading space when a URL precedes it, so
// the URL stays unambiguous).
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		extras := slices.Clone(r.Extras)
		slices.Sort(extras)
		b.WriteString("[")
		b.WriteString(strings.Join(extras, ","))
		b.WriteString("]")
	}
	if r.URL != "" {
		b.WriteString(" @ ")
		b.WriteString(r.URL)
		if r.Marker != "" {
			b.WriteString(" ; ")
			b.WriteString(r.Marker)
		}
		return b.String()
	}
	if len(r.Specifiers) > 0 {
		b.WriteString(renderSpecs(r.Specifiers))
	}
	if r.Marker != "" {
		b.WriteString("; ")
		b.WriteString(r.Marker)
	}
	return b.String()
}

// SpecifierSuffix renders the legacy version-constraint suffix used by older
// metadata consumers: " @ url" for URL requirements, otherwise the sorted
// constraints wrapped in parentheses, e.g. " (<2.0,>=1.0)". Returns "" when
// no constraints exist.
func (r Requirement) SpecifierSuffix() string {
	if r.URL != "" {
		return " @ " + r.URL
	}
	if len(r.Specifiers) == 0 {
		return ""
	}
	return " (" + renderSpecs(r.Specifiers) + ")"
}

func renderSpecs(specs []Specifier) string {
	rendered := make([]string, len(specs))
	for i, s := range specs {
		rendered[i] = s.String()
	}
	slices.Sort(rendered)
	return strings.Join(rendered, ",")
}

// Generate expands dependency groups into Provides-Extra and Requires-Dist
// header pairs.
//
// Groups are visited in name-sorted order so the output is byte-stable
// regardless of how the mapping was assembled. The group name "" holds the
// unconditional dependencies. A group name may embed an environment
// condition after ':' ("socks:python_version < '3'"); the condition is
// wrapped in parentheses and ANDed with the extra marker. Within a group,
// requirements keep their declared order.
//
// A normalized extra is announced with a single Provides-Extra header the
// first time a group carrying requirements maps to it.
func Generate(groups map[string][]string) ([]Header, error) {
	names := maps.Keys(groups)
	slices.Sort(names)

	var headers []Header
	announced := map[string]bool{}
	for _, group := range names {
		deps := groups[group]
		if len(deps) == 0 {
			continue
		}

		extra := group
		condition := ""
		if i := strings.Index(extra, ":"); i >= 0 {
			extra, condition = extra[:i], extra[i+1:]
		}
		extra = pyname.SafeExtra(extra)
		if extra != "" {
			if !announced[extra] {
				headers = append(headers, Header{Name: "Provides-Extra", Value: extra})
				announced[extra] = true
			}
			if condition != "" {
				condition = "(" + condition + ") and "
			}
			condition += "extra == '" + extra + "'"
		}

		for _, dep := range deps {
			req, err := Parse(dep)
			if err != nil {
				return nil, err
			}
			if condition != "" {
				if req.Marker != "" {
					req.Marker = "(" + req.Marker + ") and " + condition
				} else {
					req.Marker = condition
				}
			}
			headers = append(headers, Header{Name: "Requires-Dist", Value: req.String()})
		}
	}
	return headers, nil
}
