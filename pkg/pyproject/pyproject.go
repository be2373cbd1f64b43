// SPDX-License-Identifier: MPL-2.0

// Package pyproject loads a project's pyproject.toml into a typed,
// read-only descriptor.
//
// The descriptor keeps both the typed view (used by the metadata and
// archive builders) and the raw key-value tree (used to re-serialize a
// derived copy of the file into source distributions). Fields that TOML
// allows in more than one shape (readme and license as string or table,
// entry-point groups as list or table) are decoded into explicit tagged
// variants so downstream code can branch exhaustively instead of probing
// value shapes.
package pyproject

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"wheelwright-cli/pkg/pyname"
)

// DescriptorFilename is the canonical descriptor file name.
const DescriptorFilename = "pyproject.toml"

// ToolTable is the name of this tool's private table under [tool].
const ToolTable = "wheelwright"

var (
	// ErrMissingRequiredField is the sentinel error wrapped by
	// MissingRequiredFieldError.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrInvalidDescriptor is the sentinel error wrapped by InvalidFieldError.
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)

type (
	// MissingRequiredFieldError is returned when the descriptor lacks a field
	// the build cannot proceed without (name, or version with no resolver).
	// It wraps ErrMissingRequiredField for errors.Is() compatibility.
	MissingRequiredFieldError struct {
		Field string
	}

	// InvalidFieldError is returned when a descriptor field has an
	// unexpected TOML shape. It wraps ErrInvalidDescriptor for errors.Is()
	// compatibility.
	InvalidFieldError struct {
		Field  string
		Reason string
	}
)

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("descriptor is missing required field %q", e.Field)
}

func (e *MissingRequiredFieldError) Unwrap() error { return ErrMissingRequiredField }

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("descriptor field %q: %s", e.Field, e.Reason)
}

func (e *InvalidFieldError) Unwrap() error { return ErrInvalidDescriptor }

// LicenseKind discriminates the three descriptor shapes of the license field.
type LicenseKind int

const (
	// LicensePlainText is the bare-string form; the string is the license text.
	LicensePlainText LicenseKind = iota
	// LicenseInlineText is the {text = "..."} table form.
	LicenseInlineText
	// LicenseFileReference is the {file = "..."} table form; the referenced
	// file's content becomes the license text.
	LicenseFileReference
)

// ReadmeKind discriminates the descriptor shapes of the readme field.
type ReadmeKind int

const (
	// ReadmeFileReference is the bare-string form naming a file.
	ReadmeFileReference ReadmeKind = iota
	// ReadmeStructuredFile is the {file = "...", content-type?, encoding?} form.
	ReadmeStructuredFile
	// ReadmeInlineText is the {text = "...", content-type?} form.
	ReadmeInlineText
)

type (
	// Contact is one author or maintainer entry. Either field may be empty,
	// but not both.
	Contact struct {
		Name  string
		Email string
	}

	// License is the tagged license variant.
	License struct {
		Kind LicenseKind
		Text string // PlainText and InlineText
		File string // FileReference, relative to the descriptor directory
	}

	// Readme is the tagged readme variant.
	Readme struct {
		Kind        ReadmeKind
		File        string // FileReference and StructuredFile
		Text        string // InlineText
		ContentType string // explicit content type; "" means infer from extension
		Encoding    string // file encoding; "" means UTF-8
	}

	// EntryPointGroup is one entry-point group in either of its two shapes:
	// the standard key = value table, or the non-standard list of raw lines.
	// Exactly one of Entries and Lines is set.
	EntryPointGroup struct {
		Entries map[string]string
		Lines   []string
	}

	// Project mirrors the [project] table plus the legacy pre-standard keys
	// older descriptors still carry.
	Project struct {
		Name           string
		Version        string
		Description    string
		RequiresPython string
		License        *License
		Authors        []Contact
		Maintainers    []Contact
		Keywords       string // sequence values are pre-joined with ','
		Classifiers    []string
		HomePage       string // legacy "url" key
		URLs           map[string]string
		Platform       string // legacy
		Readme         *Readme
		Dependencies   []string
		OptionalDeps   map[string][]string
		EntryPoints    map[string]EntryPointGroup
		Scripts        map[string]string
		GUIScripts     map[string]string
		SrcRoot        string // non-standard source root, honored by editable installs

		// Legacy setup()-era keys.
		DescriptionFile string
		Author          string
		AuthorEmail     string
		InstallRequires []string
		ExtrasRequire   map[string][]string
	}

	// PrebuildStep is one tool-table shell step run before members are
	// collected into archives.
	PrebuildStep struct {
		Name    string
		Command string
		Targets []string
		Sources []string
	}

	// Tool mirrors the [tool.wheelwright] table.
	Tool struct {
		BuildFrom    string              // alternate build root holding the real descriptor
		Generator    string              // overrides the WHEEL Generator field
		SdistInclude []string            // globs of extra files shipped in sdists
		Categories   map[string][]string // install category -> member globs
		Prebuild     []PrebuildStep
	}

	// Descriptor is the parsed, read-only view of one pyproject.toml.
	Descriptor struct {
		Dir     string // absolute directory containing the descriptor file
		Project Project
		Tool    Tool

		raw map[string]any
	}

	// Identity is the (raw name, safe name, version) triple derived once per
	// build. SafeName is the dash-normalized form; filename stems apply the
	// underscore escape on top of it.
	Identity struct {
		Name     string
		SafeName string
		Version  string
	}

	// VersionResolver supplies a version for descriptors that omit one,
	// typically by inspecting the project's version control tags.
	VersionResolver func(dir string) (string, error)
)

// Load reads and decodes <dir>/pyproject.toml.
func Load(dir string) (*Descriptor, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve descriptor directory: %w", err)
	}
	path := filepath.Join(absDir, DescriptorFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data, absDir)
}

// Parse decodes descriptor bytes. dir is the directory the descriptor's
// relative paths (readme, license file) resolve against.
func Parse(data []byte, dir string) (*Descriptor, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", DescriptorFilename, err)
	}

	d := &Descriptor{Dir: dir, raw: raw}
	if projTable, ok := raw["project"]; ok {
		table, ok := projTable.(map[string]any)
		if !ok {
			return nil, &InvalidFieldError{Field: "project", Reason: "not a table"}
		}
		if err := decodeProject(table, &d.Project); err != nil {
			return nil, err
		}
	}
	if err := decodeTool(raw, &d.Tool); err != nil {
		return nil, err
	}
	return d, nil
}

// Identity computes the package identity, resolving a missing version
// through resolve when provided. A missing name, or a missing version with
// no resolver (or one that fails), aborts the build.
func (d *Descriptor) Identity(resolve VersionResolver) (Identity, error) {
	if d.Project.Name == "" {
		return Identity{}, &MissingRequiredFieldError{Field: "project.name"}
	}
	version := d.Project.Version
	if version == "" {
		if resolve == nil {
			return Identity{}, &MissingRequiredFieldError{Field: "project.version"}
		}
		resolved, err := resolve(d.Dir)
		if err != nil {
			return Identity{}, fmt.Errorf("failed to resolve version for %s: %w", d.Project.Name, errors.Join(err, &MissingRequiredFieldError{Field: "project.version"}))
		}
		version = resolved
	}
	return Identity{
		Name:     d.Project.Name,
		SafeName: pyname.SafeName(d.Project.Name),
		Version:  version,
	}, nil
}

// BuildFromDir returns the absolute alternate build root declared by
// tool.wheelwright.build-from, or "" when the descriptor does not declare
// one.
func (d *Descriptor) BuildFromDir() string {
	if d.Tool.BuildFrom == "" {
		return ""
	}
	if filepath.IsAbs(d.Tool.BuildFrom) {
		return filepath.Clean(d.Tool.BuildFrom)
	}
	return filepath.Join(d.Dir, d.Tool.BuildFrom)
}

// Derived re-serializes the descriptor for inclusion in a source
// distribution: the tool's build-from key is stripped (the sdist is built
// from its own root) and a string-form readme path is rewritten to be
// relative to base, so it stays valid from the sdist root.
func (d *Descriptor) Derived(base string) ([]byte, error) {
	tree := deepCopyTable(d.raw)

	if toolAny, ok := tree["tool"]; ok {
		if tool, ok := toolAny.(map[string]any); ok {
			if wwAny, ok := tool[ToolTable]; ok {
				if ww, ok := wwAny.(map[string]any); ok {
					delete(ww, "build-from")
					if len(ww) == 0 {
						delete(tool, ToolTable)
					}
				}
			}
			if len(tool) == 0 {
				delete(tree, "tool")
			}
		}
	}

	if projAny, ok := tree["project"]; ok {
		if proj, ok := projAny.(map[string]any); ok {
			if readme, ok := proj["readme"].(string); ok {
				rel, err := filepath.Rel(base, filepath.Join(d.Dir, readme))
				if err != nil {
					return nil, fmt.Errorf("failed to rewrite readme path: %w", err)
				}
				proj["readme"] = filepath.ToSlash(rel)
			}
		}
	}

	out, err := toml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize derived descriptor: %w", err)
	}
	return out, nil
}

func deepCopyTable(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyTable(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

func decodeProject(table map[string]any, p *Project) error {
	var err error
	if p.Name, err = optString(table, "name", "project.name"); err != nil {
		return err
	}
	if p.Version, err = optString(table, "version", "project.version"); err != nil {
		return err
	}
	if p.Description, err = optString(table, "description", "project.description"); err != nil {
		return err
	}
	if p.RequiresPython, err = optString(table, "requires-python", "project.requires-python"); err != nil {
		return err
	}
	if p.HomePage, err = optString(table, "url", "project.url"); err != nil {
		return err
	}
	if p.Platform, err = optString(table, "platform", "project.platform"); err != nil {
		return err
	}
	if p.SrcRoot, err = optString(table, "src_root", "project.src_root"); err != nil {
		return err
	}
	if p.DescriptionFile, err = optString(table, "description_file", "project.description_file"); err != nil {
		return err
	}
	if p.Author, err = optString(table, "author", "project.author"); err != nil {
		return err
	}
	if p.AuthorEmail, err = optString(table, "author_email", "project.author_email"); err != nil {
		return err
	}

	if v, ok := table["license"]; ok {
		lic, err := decodeLicense(v)
		if err != nil {
			return err
		}
		p.License = lic
	}
	if v, ok := table["readme"]; ok {
		readme, err := decodeReadme(v)
		if err != nil {
			return err
		}
		p.Readme = readme
	}
	if v, ok := table["keywords"]; ok {
		keywords, err := decodeKeywords(v)
		if err != nil {
			return err
		}
		p.Keywords = keywords
	}
	if p.Classifiers, err = optStringSlice(table, "classifiers", "project.classifiers"); err != nil {
		return err
	}
	if p.Dependencies, err = optStringSlice(table, "dependencies", "project.dependencies"); err != nil {
		return err
	}
	if p.InstallRequires, err = optStringSlice(table, "install_requires", "project.install_requires"); err != nil {
		return err
	}

	if v, ok := table["authors"]; ok {
		if p.Authors, err = decodeContacts(v, "project.authors"); err != nil {
			return err
		}
	}
	if v, ok := table["maintainers"]; ok {
		if p.Maintainers, err = decodeContacts(v, "project.maintainers"); err != nil {
			return err
		}
	}

	if v, ok := table["urls"]; ok {
		if p.URLs, err = decodeStringTable(v, "project.urls"); err != nil {
			return err
		}
	}
	if v, ok := table["scripts"]; ok {
		if p.Scripts, err = decodeStringTable(v, "project.scripts"); err != nil {
			return err
		}
	}
	if v, ok := table["gui-scripts"]; ok {
		if p.GUIScripts, err = decodeStringTable(v, "project.gui-scripts"); err != nil {
			return err
		}
	}

	if v, ok := table["optional-dependencies"]; ok {
		if p.OptionalDeps, err = decodeGroupTable(v, "project.optional-dependencies"); err != nil {
			return err
		}
	}
	if v, ok := table["extras_require"]; ok {
		if p.ExtrasRequire, err = decodeGroupTable(v, "project.extras_require"); err != nil {
			return err
		}
	}

	if v, ok := table["entry-points"]; ok {
		if p.EntryPoints, err = decodeEntryPoints(v, "project.entry-points"); err != nil {
			return err
		}
	}
	// Older descriptors use the un-hyphenated key.
	if v, ok := table["entry_points"]; ok {
		groups, err := decodeEntryPoints(v, "project.entry_points")
		if err != nil {
			return err
		}
		if p.EntryPoints == nil {
			p.EntryPoints = groups
		} else {
			for name, group := range groups {
				p.EntryPoints[name] = group
			}
		}
	}
	return nil
}

func decodeTool(raw map[string]any, t *Tool) error {
	toolAny, ok := raw["tool"]
	if !ok {
		return nil
	}
	toolTable, ok := toolAny.(map[string]any)
	if !ok {
		return &InvalidFieldError{Field: "tool", Reason: "not a table"}
	}
	wwAny, ok := toolTable[ToolTable]
	if !ok {
		return nil
	}
	table, ok := wwAny.(map[string]any)
	if !ok {
		return &InvalidFieldError{Field: "tool." + ToolTable, Reason: "not a table"}
	}

	var err error
	if t.BuildFrom, err = optString(table, "build-from", "tool."+ToolTable+".build-from"); err != nil {
		return err
	}
	if t.Generator, err = optString(table, "generator", "tool."+ToolTable+".generator"); err != nil {
		return err
	}
	if t.SdistInclude, err = optStringSlice(table, "sdist-include", "tool."+ToolTable+".sdist-include"); err != nil {
		return err
	}

	for _, category := range []string{"purelib", "platlib", "headers", "scripts", "data"} {
		globs, err := optStringSlice(table, category, "tool."+ToolTable+"."+category)
		if err != nil {
			return err
		}
		if len(globs) > 0 {
			if t.Categories == nil {
				t.Categories = map[string][]string{}
			}
			t.Categories[category] = globs
		}
	}

	if v, ok := table["prebuild"]; ok {
		steps, ok := v.([]any)
		if !ok {
			return &InvalidFieldError{Field: "tool." + ToolTable + ".prebuild", Reason: "not an array of tables"}
		}
		for i, stepAny := range steps {
			stepTable, ok := stepAny.(map[string]any)
			if !ok {
				return &InvalidFieldError{Field: fmt.Sprintf("tool.%s.prebuild[%d]", ToolTable, i), Reason: "not a table"}
			}
			var step PrebuildStep
			field := fmt.Sprintf("tool.%s.prebuild[%d]", ToolTable, i)
			if step.Name, err = optString(stepTable, "name", field+".name"); err != nil {
				return err
			}
			if step.Command, err = optString(stepTable, "command", field+".command"); err != nil {
				return err
			}
			if step.Command == "" {
				return &InvalidFieldError{Field: field + ".command", Reason: "must not be empty"}
			}
			if step.Name == "" {
				step.Name = fmt.Sprintf("prebuild-%d", i)
			}
			if step.Targets, err = optStringSlice(stepTable, "targets", field+".targets"); err != nil {
				return err
			}
			if step.Sources, err = optStringSlice(stepTable, "sources", field+".sources"); err != nil {
				return err
			}
			t.Prebuild = append(t.Prebuild, step)
		}
	}
	return nil
}

func decodeLicense(v any) (*License, error) {
	switch val := v.(type) {
	case string:
		return &License{Kind: LicensePlainText, Text: val}, nil
	case map[string]any:
		if text, ok := val["text"]; ok {
			s, ok := text.(string)
			if !ok {
				return nil, &InvalidFieldError{Field: "project.license.text", Reason: "not a string"}
			}
			return &License{Kind: LicenseInlineText, Text: s}, nil
		}
		if file, ok := val["file"]; ok {
			s, ok := file.(string)
			if !ok {
				return nil, &InvalidFieldError{Field: "project.license.file", Reason: "not a string"}
			}
			return &License{Kind: LicenseFileReference, File: s}, nil
		}
		return nil, &InvalidFieldError{Field: "project.license", Reason: `table needs a "text" or "file" key`}
	default:
		return nil, &InvalidFieldError{Field: "project.license", Reason: "not a string or table"}
	}
}

func decodeReadme(v any) (*Readme, error) {
	switch val := v.(type) {
	case string:
		return &Readme{Kind: ReadmeFileReference, File: val}, nil
	case map[string]any:
		readme := &Readme{}
		if ct, ok := val["content-type"]; ok {
			s, ok := ct.(string)
			if !ok {
				return nil, &InvalidFieldError{Field: "project.readme.content-type", Reason: "not a string"}
			}
			readme.ContentType = s
		}
		if enc, ok := val["encoding"]; ok {
			s, ok := enc.(string)
			if !ok {
				return nil, &InvalidFieldError{Field: "project.readme.encoding", Reason: "not a string"}
			}
			readme.Encoding = s
		}
		if file, ok := val["file"]; ok {
			s, ok := file.(string)
			if !ok {
				return nil, &InvalidFieldError{Field: "project.readme.file", Reason: "not a string"}
			}
			readme.Kind = ReadmeStructuredFile
			readme.File = s
			return readme, nil
		}
		if text, ok := val["text"]; ok {
			s, ok := text.(string)
			if !ok {
				return nil, &InvalidFieldError{Field: "project.readme.text", Reason: "not a string"}
			}
			readme.Kind = ReadmeInlineText
			readme.Text = s
			return readme, nil
		}
		return nil, &InvalidFieldError{Field: "project.readme", Reason: `table needs a "file" or "text" key`}
	default:
		return nil, &InvalidFieldError{Field: "project.readme", Reason: "not a string or table"}
	}
}

func decodeKeywords(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return "", &InvalidFieldError{Field: "project.keywords", Reason: "not a list of strings"}
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	default:
		return "", &InvalidFieldError{Field: "project.keywords", Reason: "not a string or list"}
	}
}

func decodeContacts(v any, field string) ([]Contact, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, &InvalidFieldError{Field: field, Reason: "not an array of tables"}
	}
	contacts := make([]Contact, 0, len(list))
	for i, item := range list {
		table, ok := item.(map[string]any)
		if !ok {
			return nil, &InvalidFieldError{Field: fmt.Sprintf("%s[%d]", field, i), Reason: "not a table"}
		}
		var c Contact
		if name, ok := table["name"]; ok {
			s, ok := name.(string)
			if !ok {
				return nil, &InvalidFieldError{Field: fmt.Sprintf("%s[%d].name", field, i), Reason: "not a string"}
			}
			c.Name = s
		}
		if email, ok := table["email"]; ok {
			s, ok := email.(string)
			if !ok {
				return nil, &InvalidFieldError{Field: fmt.Sprintf("%s[%d].email", field, i), Reason: "not a string"}
			}
			c.Email = s
		}
		if c.Name == "" && c.Email == "" {
			return nil, &InvalidFieldError{Field: fmt.Sprintf("%s[%d]", field, i), Reason: "needs a name or email"}
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

func decodeStringTable(v any, field string) (map[string]string, error) {
	table, ok := v.(map[string]any)
	if !ok {
		return nil, &InvalidFieldError{Field: field, Reason: "not a table"}
	}
	out := make(map[string]string, len(table))
	for k, item := range table {
		s, ok := item.(string)
		if !ok {
			return nil, &InvalidFieldError{Field: field + "." + k, Reason: "not a string"}
		}
		out[k] = s
	}
	return out, nil
}

func decodeGroupTable(v any, field string) (map[string][]string, error) {
	table, ok := v.(map[string]any)
	if !ok {
		return nil, &InvalidFieldError{Field: field, Reason: "not a table"}
	}
	out := make(map[string][]string, len(table))
	for group, item := range table {
		list, ok := item.([]any)
		if !ok {
			return nil, &InvalidFieldError{Field: field + "." + group, Reason: "not a list"}
		}
		deps := make([]string, len(list))
		for i, dep := range list {
			s, ok := dep.(string)
			if !ok {
				return nil, &InvalidFieldError{Field: field + "." + group, Reason: "not a list of strings"}
			}
			deps[i] = s
		}
		out[group] = deps
	}
	return out, nil
}

func decodeEntryPoints(v any, field string) (map[string]EntryPointGroup, error) {
	table, ok := v.(map[string]any)
	if !ok {
		return nil, &InvalidFieldError{Field: field, Reason: "not a table"}
	}
	out := make(map[string]EntryPointGroup, len(table))
	for group, item := range table {
		switch val := item.(type) {
		case []any:
			lines := make([]string, len(val))
			for i, line := range val {
				s, ok := line.(string)
				if !ok {
					return nil, &InvalidFieldError{Field: field + "." + group, Reason: "not a list of strings"}
				}
				lines[i] = s
			}
			out[group] = EntryPointGroup{Lines: lines}
		case map[string]any:
			entries := make(map[string]string, len(val))
			for k, entry := range val {
				s, ok := entry.(string)
				if !ok {
					return nil, &InvalidFieldError{Field: field + "." + group + "." + k, Reason: "not a string"}
				}
				entries[k] = s
			}
			out[group] = EntryPointGroup{Entries: entries}
		default:
			return nil, &InvalidFieldError{Field: field + "." + group, Reason: "not a list or table"}
		}
	}
	return out, nil
}

func optString(table map[string]any, key, field string) (string, error) {
	v, ok := table[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &InvalidFieldError{Field: field, Reason: "not a string"}
	}
	return s, nil
}

func optStringSlice(table map[string]any, key, field string) ([]string, error) {
	v, ok := table[key]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, &InvalidFieldError{Field: field, Reason: "not a list"}
	}
	out := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, &InvalidFieldError{Field: field, Reason: "not a list of strings"}
		}
		out[i] = s
	}
	return out, nil
}
