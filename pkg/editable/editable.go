// SPDX-License-Identifier: MPL-2.0

// Package editable generates the shim modules an editable wheel installs
// instead of the project's files: a .pth file that extends sys.path with
// the project's source root, and, when individual modules are redirected,
// a bootstrap module that installs an import finder mapping module names
// to source files.
//
// The generated bootstrap is self-contained: it embeds the finder rather
// than importing one, so editable installs carry no runtime dependency.
package editable

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidProjectName is the sentinel error wrapped by
	// InvalidProjectNameError.
	ErrInvalidProjectName = errors.New("invalid project name")
	// ErrInvalidRedirect is the sentinel error wrapped by
	// InvalidRedirectError.
	ErrInvalidRedirect = errors.New("invalid redirect")
)

type (
	// InvalidProjectNameError is returned for project names that cannot
	// form a valid shim module name. It wraps ErrInvalidProjectName for
	// errors.Is() compatibility.
	InvalidProjectNameError struct {
		Name string
	}

	// InvalidRedirectError is returned for module redirections that cannot
	// work at import time. It wraps ErrInvalidRedirect for errors.Is()
	// compatibility.
	InvalidRedirectError struct {
		Module string
		Reason string
	}
)

func (e *InvalidProjectNameError) Error() string {
	return fmt.Sprintf("project name %q is not valid", e.Name)
}

func (e *InvalidProjectNameError) Unwrap() error { return ErrInvalidProjectName }

func (e *InvalidRedirectError) Error() string {
	return fmt.Sprintf("cannot redirect %q: %s", e.Module, e.Reason)
}

func (e *InvalidRedirectError) Unwrap() error { return ErrInvalidRedirect }

var (
	validName     = regexp.MustCompile(`(?i)^([A-Z0-9]|[A-Z0-9][A-Z0-9._-]*[A-Z0-9])$`)
	separatorRuns = regexp.MustCompile(`[-_.]+`)
)

// normalizeName lowers the name and collapses runs of separators to a
// single underscore, so the result is a valid Python identifier.
func normalizeName(name string) string {
	return strings.ToLower(separatorRuns.ReplaceAllString(name, "_"))
}

type redirection struct {
	module string
	target string
}

// Project accumulates the shims of one editable install.
type Project struct {
	name         string // normalized
	bootstrap    string
	root         string
	pathEntries  []string
	redirections []redirection
}

// New starts an editable project for the given distribution name. root is
// the directory relative targets resolve against, usually the project's
// source root.
func New(name, root string) (*Project, error) {
	if !validName.MatchString(name) {
		return nil, &InvalidProjectNameError{Name: name}
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	normalized := normalizeName(name)
	return &Project{
		name:      normalized,
		bootstrap: "_editable_impl_" + normalized,
		root:      absRoot,
	}, nil
}

// Normalized returns the normalized project name the shim files are named
// after.
func (p *Project) Normalized() string { return p.name }

// AddToPath arranges for dir to be appended to sys.path at interpreter
// startup. Relative paths resolve against the project root.
func (p *Project) AddToPath(dir string) {
	p.pathEntries = append(p.pathEntries, p.makeAbsolute(dir))
}

// Redirect maps a top-level module name to a source file or package
// directory. The target must exist when the shim is generated; imports
// would otherwise fail at install time with a far less useful message.
func (p *Project) Redirect(module, target string) error {
	if strings.Contains(module, ".") {
		return &InvalidRedirectError{Module: module, Reason: "not a top-level module"}
	}
	abs := p.makeAbsolute(target)
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		abs = filepath.Join(abs, "__init__.py")
	}
	if info, err := os.Stat(abs); err != nil || info.IsDir() {
		return &InvalidRedirectError{Module: module, Reason: fmt.Sprintf("%s is not a Python package or module", target)}
	}
	p.redirections = append(p.redirections, redirection{module: module, target: abs})
	return nil
}

// File is one generated shim, named relative to the site-packages root it
// installs into.
type File struct {
	Name    string
	Content string
}

// Files renders the shim files in deterministic order: the .pth entry
// first, then the bootstrap module when redirections exist.
func (p *Project) Files() []File {
	files := []File{{Name: p.name + ".pth", Content: p.pthContent()}}
	if len(p.redirections) > 0 {
		files = append(files, File{Name: p.bootstrap + ".py", Content: p.bootstrapContent()})
	}
	return files
}

func (p *Project) makeAbsolute(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.root, path)
}

// pthContent renders the .pth file: an import of the bootstrap module
// first (site processes "import" lines by executing them), then one
// sys.path entry per line.
func (p *Project) pthContent() string {
	var lines []string
	if len(p.redirections) > 0 {
		lines = append(lines, "import "+p.bootstrap)
	}
	lines = append(lines, p.pathEntries...)
	return strings.Join(lines, "\n")
}

func (p *Project) bootstrapContent() string {
	var b strings.Builder
	b.WriteString("import importlib.util\nimport sys\n\n_REDIRECTIONS = {\n")
	for _, r := range p.redirections {
		b.WriteString("    " + pyQuote(r.module) + ": " + pyQuote(r.target) + ",\n")
	}
	b.WriteString(`}


class _RedirectingFinder:
    @classmethod
    def find_spec(cls, fullname, path=None, target=None):
        if "." in fullname or path is not None:
            return None
        location = _REDIRECTIONS.get(fullname)
        if location is None:
            return None
        return importlib.util.spec_from_file_location(fullname, location)


sys.meta_path.append(_RedirectingFinder)
`)
	return b.String()
}

// pyQuote renders a Go string as a Python string literal. Go's quoted
// escape set is a subset of Python's, so strconv.Quote output parses
// identically.
func pyQuote(s string) string { return strconv.Quote(s) }
