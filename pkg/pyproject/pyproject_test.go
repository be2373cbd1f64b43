// SPDX-License-Identifier: MPL-2.0

package pyproject

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sampleDescriptor = `
[project]
name = "hello-world"
version = "0.0.1"
description = "A sample project"
requires-python = ">=3.8"
readme = "README.md"
keywords = ["sample", "demo"]
classifiers = [
    "Programming Language :: Python :: 3",
]
dependencies = ["six", "attrs>=17.4"]

[project.license]
text = "MIT"

[[project.authors]]
name = "A. Dev"
email = "a@example.com"

[project.urls]
homepage = "https://example.com"

[project.optional-dependencies]
test = ["pytest"]

[project.scripts]
hello = "hello:main"

[project.entry-points."hello.plugins"]
base = "hello.plugins:base"

[tool.wheelwright]
purelib = ["hello/*.py"]
sdist-include = ["README*"]
`

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DescriptorFilename), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write descriptor: %v", err)
	}
	return dir
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := writeDescriptor(t, sampleDescriptor)
	d, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	p := d.Project
	if p.Name != "hello-world" {
		t.Errorf("Name = %q, want %q", p.Name, "hello-world")
	}
	if p.Version != "0.0.1" {
		t.Errorf("Version = %q, want %q", p.Version, "0.0.1")
	}
	if p.Description != "A sample project" {
		t.Errorf("Description = %q", p.Description)
	}
	if p.RequiresPython != ">=3.8" {
		t.Errorf("RequiresPython = %q", p.RequiresPython)
	}
	if p.Keywords != "sample,demo" {
		t.Errorf("Keywords = %q, want %q", p.Keywords, "sample,demo")
	}
	if !reflect.DeepEqual(p.Dependencies, []string{"six", "attrs>=17.4"}) {
		t.Errorf("Dependencies = %v", p.Dependencies)
	}
	if !reflect.DeepEqual(p.OptionalDeps, map[string][]string{"test": {"pytest"}}) {
		t.Errorf("OptionalDeps = %v", p.OptionalDeps)
	}
	if p.Readme == nil || p.Readme.Kind != ReadmeFileReference || p.Readme.File != "README.md" {
		t.Errorf("Readme = %+v", p.Readme)
	}
	if p.License == nil || p.License.Kind != LicenseInlineText || p.License.Text != "MIT" {
		t.Errorf("License = %+v", p.License)
	}
	if len(p.Authors) != 1 || p.Authors[0].Name != "A. Dev" || p.Authors[0].Email != "a@example.com" {
		t.Errorf("Authors = %+v", p.Authors)
	}
	if p.URLs["homepage"] != "https://example.com" {
		t.Errorf("URLs = %v", p.URLs)
	}
	if p.Scripts["hello"] != "hello:main" {
		t.Errorf("Scripts = %v", p.Scripts)
	}
	group, ok := p.EntryPoints["hello.plugins"]
	if !ok || group.Entries["base"] != "hello.plugins:base" {
		t.Errorf("EntryPoints = %+v", p.EntryPoints)
	}
	if !reflect.DeepEqual(d.Tool.Categories["purelib"], []string{"hello/*.py"}) {
		t.Errorf("Tool.Categories = %v", d.Tool.Categories)
	}
	if !reflect.DeepEqual(d.Tool.SdistInclude, []string{"README*"}) {
		t.Errorf("Tool.SdistInclude = %v", d.Tool.SdistInclude)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing descriptor, got nil")
	}
}

func TestParseLicenseVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		toml string
		want License
	}{
		{
			name: "plain string",
			toml: "[project]\nname = \"x\"\nlicense = \"MIT\"\n",
			want: License{Kind: LicensePlainText, Text: "MIT"},
		},
		{
			name: "inline text",
			toml: "[project]\nname = \"x\"\nlicense = {text = \"Apache-2.0\"}\n",
			want: License{Kind: LicenseInlineText, Text: "Apache-2.0"},
		},
		{
			name: "file reference",
			toml: "[project]\nname = \"x\"\nlicense = {file = \"LICENSE\"}\n",
			want: License{Kind: LicenseFileReference, File: "LICENSE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := Parse([]byte(tt.toml), t.TempDir())
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			if d.Project.License == nil || *d.Project.License != tt.want {
				t.Errorf("License = %+v, want %+v", d.Project.License, tt.want)
			}
		})
	}
}

func TestParseReadmeVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		toml string
		want Readme
	}{
		{
			name: "bare path",
			toml: "[project]\nname = \"x\"\nreadme = \"README.rst\"\n",
			want: Readme{Kind: ReadmeFileReference, File: "README.rst"},
		},
		{
			name: "structured file",
			toml: "[project]\nname = \"x\"\nreadme = {file = \"README.md\", content-type = \"text/markdown\"}\n",
			want: Readme{Kind: ReadmeStructuredFile, File: "README.md", ContentType: "text/markdown"},
		},
		{
			name: "inline text",
			toml: "[project]\nname = \"x\"\nreadme = {text = \"hello\", content-type = \"text/plain\"}\n",
			want: Readme{Kind: ReadmeInlineText, Text: "hello", ContentType: "text/plain"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := Parse([]byte(tt.toml), t.TempDir())
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			if d.Project.Readme == nil || *d.Project.Readme != tt.want {
				t.Errorf("Readme = %+v, want %+v", d.Project.Readme, tt.want)
			}
		})
	}
}

func TestParseListEntryPoints(t *testing.T) {
	t.Parallel()

	src := "[project]\nname = \"x\"\n[project.entry-points]\nmygroup = [\"a = pkg:a\", \"b = pkg:b\"]\n"
	d, err := Parse([]byte(src), t.TempDir())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	group := d.Project.EntryPoints["mygroup"]
	if !reflect.DeepEqual(group.Lines, []string{"a = pkg:a", "b = pkg:b"}) {
		t.Errorf("Lines = %v", group.Lines)
	}
	if group.Entries != nil {
		t.Errorf("Entries should be nil for list-valued group, got %v", group.Entries)
	}
}

func TestParseInvalidShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		toml string
	}{
		{name: "name not a string", toml: "[project]\nname = 42\n"},
		{name: "license missing keys", toml: "[project]\nname = \"x\"\nlicense = {other = \"y\"}\n"},
		{name: "readme missing keys", toml: "[project]\nname = \"x\"\nreadme = {content-type = \"text/plain\"}\n"},
		{name: "dependencies not a list", toml: "[project]\nname = \"x\"\ndependencies = \"six\"\n"},
		{name: "contact with no fields", toml: "[project]\nname = \"x\"\nauthors = [{}]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tt.toml), t.TempDir())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidDescriptor) {
				t.Errorf("error does not wrap ErrInvalidDescriptor: %v", err)
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	d, err := Parse([]byte("[project]\nname = \"Foo_Bar\"\nversion = \"1.0\"\n"), t.TempDir())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	id, err := d.Identity(nil)
	if err != nil {
		t.Fatalf("Identity returned error: %v", err)
	}
	want := Identity{Name: "Foo_Bar", SafeName: "Foo-Bar", Version: "1.0"}
	if id != want {
		t.Errorf("Identity = %+v, want %+v", id, want)
	}
}

func TestIdentityMissingName(t *testing.T) {
	t.Parallel()

	d, err := Parse([]byte("[project]\nversion = \"1.0\"\n"), t.TempDir())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	_, err = d.Identity(nil)
	if !errors.Is(err, ErrMissingRequiredField) {
		t.Errorf("expected ErrMissingRequiredField, got %v", err)
	}
}

func TestIdentityResolvesVersion(t *testing.T) {
	t.Parallel()

	d, err := Parse([]byte("[project]\nname = \"pkg\"\n"), t.TempDir())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	id, err := d.Identity(func(dir string) (string, error) {
		return "2.3.4", nil
	})
	if err != nil {
		t.Fatalf("Identity returned error: %v", err)
	}
	if id.Version != "2.3.4" {
		t.Errorf("Version = %q, want %q", id.Version, "2.3.4")
	}
}

func TestIdentityVersionUnresolvable(t *testing.T) {
	t.Parallel()

	d, err := Parse([]byte("[project]\nname = \"pkg\"\n"), t.TempDir())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if _, err := d.Identity(nil); !errors.Is(err, ErrMissingRequiredField) {
		t.Errorf("expected ErrMissingRequiredField without resolver, got %v", err)
	}

	_, err = d.Identity(func(dir string) (string, error) {
		return "", errors.New("no tags")
	})
	if !errors.Is(err, ErrMissingRequiredField) {
		t.Errorf("expected ErrMissingRequiredField from failed resolver, got %v", err)
	}
}

func TestDerivedStripsBuildFrom(t *testing.T) {
	t.Parallel()

	src := `
[project]
name = "pkg"
version = "1.0"
readme = "docs/README.md"

[tool.wheelwright]
build-from = ".."
purelib = ["pkg/*.py"]
`
	dir := writeDescriptor(t, src)
	d, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	out, err := d.Derived(dir)
	if err != nil {
		t.Fatalf("Derived returned error: %v", err)
	}

	derived, err := Parse(out, dir)
	if err != nil {
		t.Fatalf("derived descriptor does not parse: %v", err)
	}
	if derived.Tool.BuildFrom != "" {
		t.Errorf("build-from survived derivation: %q", derived.Tool.BuildFrom)
	}
	if !reflect.DeepEqual(derived.Tool.Categories["purelib"], []string{"pkg/*.py"}) {
		t.Errorf("unrelated tool keys must survive, got %v", derived.Tool.Categories)
	}
	if derived.Project.Readme == nil || derived.Project.Readme.File != "docs/README.md" {
		t.Errorf("readme rewritten against same base should be unchanged, got %+v", derived.Project.Readme)
	}
}

func TestDerivedRewritesReadmeAgainstBase(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	sub := filepath.Join(base, "inner")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	src := "[project]\nname = \"pkg\"\nversion = \"1.0\"\nreadme = \"README.md\"\n"
	if err := os.WriteFile(filepath.Join(sub, DescriptorFilename), []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	d, err := Load(sub)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	out, err := d.Derived(base)
	if err != nil {
		t.Fatalf("Derived returned error: %v", err)
	}
	if !strings.Contains(string(out), "inner/README.md") {
		t.Errorf("derived readme not rewritten relative to base:\n%s", out)
	}
}

func TestBuildFromDir(t *testing.T) {
	t.Parallel()

	dir := writeDescriptor(t, "[project]\nname = \"x\"\n[tool.wheelwright]\nbuild-from = \"sub\"\n")
	d, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := filepath.Join(dir, "sub")
	if got := d.BuildFromDir(); got != want {
		t.Errorf("BuildFromDir = %q, want %q", got, want)
	}

	plain, err := Parse([]byte("[project]\nname = \"x\"\n"), dir)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got := plain.BuildFromDir(); got != "" {
		t.Errorf("BuildFromDir = %q, want empty", got)
	}
}
