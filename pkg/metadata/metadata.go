// SPDX-License-Identifier: MPL-2.0

// Package metadata renders the canonical text records of a Python package:
// the dist-info METADATA document, the minimal legacy PKG-INFO, the
// requires.txt dependency list and the entry_points.txt table.
//
// Field order inside METADATA is fixed and load-bearing: installers and
// index servers parse these documents positionally enough that reordering
// is an observable change. Every builder here is deterministic — map-shaped
// descriptor fields are visited in sorted key order.
package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"wheelwright-cli/pkg/pyproject"
	"wheelwright-cli/pkg/requires"
)

// MetadataVersion is the metadata-version constant written to METADATA.
const MetadataVersion = "2.1"

// LegacyMetadataVersion is written to the minimal PKG-INFO record.
const LegacyMetadataVersion = "1.1"

// Build renders the full METADATA record from the descriptor. The identity
// must already be resolved; Build never re-derives name or version.
func Build(d *pyproject.Descriptor, id pyproject.Identity) (*Record, error) {
	p := d.Project
	rec := &Record{}
	rec.Add("Metadata-Version", MetadataVersion)
	rec.Add("Name", id.Name)
	rec.Add("Version", id.Version)
	if p.Description != "" {
		rec.Add("Summary", p.Description)
	}
	if p.RequiresPython != "" {
		rec.Add("Requires-Python", p.RequiresPython)
	}
	if p.License != nil {
		text, err := licenseText(d)
		if err != nil {
			return nil, err
		}
		rec.Add("License", text)
	}
	if p.Authors != nil {
		addContacts(rec, "Author", "Author-email", p.Authors)
	} else {
		if p.Author != "" {
			rec.Add("Author", p.Author)
		}
		if p.AuthorEmail != "" {
			rec.Add("Author-email", p.AuthorEmail)
		}
	}
	if p.Maintainers != nil {
		addContacts(rec, "Maintainer", "Maintainer-email", p.Maintainers)
	}
	if p.Keywords != "" {
		rec.Add("Keywords", p.Keywords)
	}
	for _, classifier := range p.Classifiers {
		rec.Add("Classifier", classifier)
	}
	if p.HomePage != "" {
		rec.Add("Home-Page", p.HomePage)
	}
	for _, label := range sortedKeys(p.URLs) {
		rec.Add("Project-URL", label+", "+p.URLs[label])
	}
	if p.Platform != "" {
		rec.Add("Platform", p.Platform)
	}

	headers, err := requires.Generate(RequirementGroups(p))
	if err != nil {
		return nil, err
	}
	for _, h := range headers {
		rec.Add(h.Name, h.Value)
	}

	if err := addBody(rec, d); err != nil {
		return nil, err
	}
	return rec, nil
}

// RequirementGroups merges the descriptor's dependency keys into the single
// group mapping the Requirement Expander consumes. Standard keys win over
// their legacy spellings: optional-dependencies over extras_require per
// group, dependencies over install_requires for the base group.
func RequirementGroups(p pyproject.Project) map[string][]string {
	groups := map[string][]string{}
	for group, deps := range p.ExtrasRequire {
		groups[group] = deps
	}
	for group, deps := range p.OptionalDeps {
		groups[group] = deps
	}
	if p.InstallRequires != nil {
		groups[""] = p.InstallRequires
	}
	if p.Dependencies != nil {
		groups[""] = p.Dependencies
	}
	return groups
}

// MergedEntryPoints folds the scripts and gui-scripts descriptor keys into
// the entry-point group table. A scripts key replaces a directly-supplied
// console_scripts group outright (same for gui-scripts/gui_scripts); the
// two spellings cannot be meaningfully combined, so the dedicated key wins.
func MergedEntryPoints(p pyproject.Project) map[string]pyproject.EntryPointGroup {
	groups := map[string]pyproject.EntryPointGroup{}
	for name, group := range p.EntryPoints {
		groups[name] = group
	}
	if p.Scripts != nil {
		groups["console_scripts"] = pyproject.EntryPointGroup{Entries: p.Scripts}
	}
	if p.GUIScripts != nil {
		groups["gui_scripts"] = pyproject.EntryPointGroup{Entries: p.GUIScripts}
	}
	return groups
}

// WriteEntryPoints renders entry_points.txt: one [group] section per
// entry-point group in sorted order. Table-shaped groups emit "key = value"
// lines sorted by key; list-shaped groups emit their lines verbatim.
func WriteEntryPoints(p pyproject.Project) string {
	groups := MergedEntryPoints(p)
	var b strings.Builder
	for _, name := range sortedKeys(groups) {
		group := groups[name]
		b.WriteString("[" + name + "]\n")
		if group.Lines != nil {
			for _, line := range group.Lines {
				b.WriteString(line + "\n")
			}
			continue
		}
		for _, key := range sortedKeys(group.Entries) {
			b.WriteString(key + " = " + group.Entries[key] + "\n")
		}
	}
	return b.String()
}

// WriteRequiresTxt renders the legacy requires.txt: the base group's
// requirements first, then one blank-line-separated [group] section per
// remaining group in sorted order. Requirement strings are emitted verbatim;
// group names keep any embedded ":condition" suffix.
func WriteRequiresTxt(p pyproject.Project) string {
	groups := RequirementGroups(p)
	var b strings.Builder
	for _, group := range sortedKeys(groups) {
		if group != "" {
			b.WriteString("\n[" + group + "]\n")
		}
		for _, dep := range groups[group] {
			b.WriteString(dep + "\n")
		}
	}
	return b.String()
}

// BuildPKGInfo renders the minimal legacy info record installers read from
// an .egg-info directory before full metadata exists.
func BuildPKGInfo(id pyproject.Identity) *Record {
	rec := &Record{}
	rec.Add("Metadata-Version", LegacyMetadataVersion)
	rec.Add("Name", id.Name)
	rec.Add("Version", id.Version)
	return rec
}

// SourcePaths lists the files the METADATA output depends on: the
// descriptor itself plus any referenced license, readme or legacy
// description file. Build steps declare these as sources so metadata is
// rebuilt when any of them changes.
func SourcePaths(d *pyproject.Descriptor) []string {
	paths := []string{filepath.Join(d.Dir, pyproject.DescriptorFilename)}
	p := d.Project
	if p.License != nil && p.License.Kind == pyproject.LicenseFileReference {
		paths = append(paths, filepath.Join(d.Dir, p.License.File))
	}
	switch {
	case p.Readme != nil && p.Readme.File != "":
		paths = append(paths, filepath.Join(d.Dir, p.Readme.File))
	case p.Readme == nil && p.DescriptionFile != "":
		paths = append(paths, filepath.Join(d.Dir, p.DescriptionFile))
	}
	return paths
}

func licenseText(d *pyproject.Descriptor) (string, error) {
	lic := d.Project.License
	switch lic.Kind {
	case pyproject.LicensePlainText, pyproject.LicenseInlineText:
		return lic.Text, nil
	case pyproject.LicenseFileReference:
		path := filepath.Join(d.Dir, lic.File)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read license file %s: %w", path, err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unknown license variant %d", lic.Kind)
	}
}

// addContacts renders an authors or maintainers list. A single contact
// yields up to two headers (name and email). Multiple contacts collapse to
// one comma-joined header line: each contact renders as "name <email>" when
// both fields exist, otherwise whichever one it has; the line lands in the
// email-named header when any contact has an email, else in the name-named
// header.
func addContacts(rec *Record, nameHeader, emailHeader string, contacts []pyproject.Contact) {
	if len(contacts) == 1 {
		if contacts[0].Name != "" {
			rec.Add(nameHeader, contacts[0].Name)
		}
		if contacts[0].Email != "" {
			rec.Add(emailHeader, contacts[0].Email)
		}
		return
	}
	parts := make([]string, len(contacts))
	anyEmail := false
	for i, c := range contacts {
		switch {
		case c.Name == "":
			parts[i] = c.Email
		case c.Email == "":
			parts[i] = c.Name
		default:
			parts[i] = c.Name + " <" + c.Email + ">"
		}
		if c.Email != "" {
			anyEmail = true
		}
	}
	header := nameHeader
	if anyEmail {
		header = emailHeader
	}
	rec.Add(header, strings.Join(parts, ", "))
}

func addBody(rec *Record, d *pyproject.Descriptor) error {
	p := d.Project
	if p.Readme == nil {
		if p.DescriptionFile == "" {
			return nil
		}
		path := filepath.Join(d.Dir, p.DescriptionFile)
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read description file %s: %w", path, err)
		}
		rec.SetBody(string(content))
		return nil
	}

	var (
		filename    string
		contentType = p.Readme.ContentType
		content     string
	)
	switch p.Readme.Kind {
	case pyproject.ReadmeInlineText:
		content = p.Readme.Text
	case pyproject.ReadmeFileReference, pyproject.ReadmeStructuredFile:
		filename = p.Readme.File
		path := filepath.Join(d.Dir, filename)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read readme %s: %w", path, err)
		}
		content = string(data)
	}
	if contentType == "" && filename != "" {
		contentType = inferContentType(filename)
	}
	if contentType != "" {
		rec.Add("Description-Content-Type", contentType)
	}
	rec.SetBody(content)
	return nil
}

func inferContentType(filename string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".rst"):
		return "text/x-rst"
	case strings.HasSuffix(strings.ToLower(filename), ".md"):
		return "text/markdown"
	case strings.HasSuffix(strings.ToLower(filename), ".txt"):
		return "text/plain"
	default:
		return ""
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
