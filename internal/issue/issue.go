// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	DescriptorNotFoundId Id = iota + 1
	DescriptorParseErrorId
	MissingRequiredFieldId
	MalformedRequirementId
	UnsupportedAbiTargetId
	InterpreterProbeFailedId
	ConfigLoadFailedId
	ArchiveWriteFailedId
	VersionDetectFailedId
	DependencyCycleId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // links into the project documentation
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also: "
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "]"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "]"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	descriptorNotFoundIssue = &Issue{
		id: DescriptorNotFoundId,
		mdMsg: `
# No pyproject.toml found!

We looked for a pyproject.toml but the project directory doesn't have one.

## Search location:
- The directory given as the command argument (current directory by default)

## Things you can try:
- Change into the project directory before building:
~~~
$ cd /path/to/your/project
$ wheelwright wheel
~~~

- Or point the build at the project explicitly:
~~~
$ wheelwright wheel /path/to/your/project
~~~

## Minimal pyproject.toml:
~~~toml
[project]
name = "mypackage"
version = "0.1.0"

[tool.wheelwright]
purelib = ["src/mypackage/**/*.py"]
~~~`,
	}

	descriptorParseErrorIssue = &Issue{
		id: DescriptorParseErrorId,
		mdMsg: `
# Failed to parse pyproject.toml!

Your pyproject.toml contains syntax errors or fields with an unexpected shape.

## Common issues:
- Invalid TOML syntax (unbalanced quotes, brackets, etc.)
- A field written as a string where a table is expected, or vice versa
- Lists mixing strings with other value types

## Things you can try:
- Check the error message above for the offending field
- Run with verbose mode for more details:
~~~
$ wheelwright --verbose wheel
~~~

## Example of a valid descriptor:
~~~toml
[project]
name = "mypackage"
version = "0.1.0"
description = "A tiny example"
dependencies = ["requests >= 2.28"]

[project.scripts]
mypkg = "mypackage.cli:main"

[tool.wheelwright]
purelib = ["src/mypackage/**/*.py"]
~~~`,
	}

	missingRequiredFieldIssue = &Issue{
		id: MissingRequiredFieldId,
		mdMsg: `
# Required project metadata is missing!

The [project] table must provide a name, and a version unless one can be
detected from your version control tags.

## Things you can try:
- Add the missing field to pyproject.toml:
~~~toml
[project]
name = "mypackage"
version = "0.1.0"
~~~

- Or leave the version out and tag a release so it can be detected:
~~~
$ git tag v0.1.0
$ wheelwright wheel
~~~`,
	}

	malformedRequirementIssue = &Issue{
		id: MalformedRequirementId,
		mdMsg: `
# Malformed requirement!

One of your dependency strings could not be parsed.

## A requirement looks like:
~~~
name
name >= 1.0
name[extra1,extra2] == 2.3.*
name ~= 1.4 ; python_version < "3.11"
~~~

## Things you can try:
- Check project.dependencies and project.optional-dependencies for typos
- Write each requirement as a single TOML string
- Keep any environment marker after the ';'`,
		extLinks: []HttpLink{
			"https://packaging.python.org/en/latest/specifications/dependency-specifiers/",
		},
	}

	unsupportedAbiTargetIssue = &Issue{
		id: UnsupportedAbiTargetId,
		mdMsg: `
# Unsupported ABI target!

The requested stable-ABI floor cannot be expressed as a wheel tag.

## Accepted form:
- A major.minor pair of 3.2 or later, e.g. --abi 3.8 builds cp38-abi3 wheels

## Things you can try:
- Target the oldest CPython your extension actually supports:
~~~
$ wheelwright wheel --abi 3.8
~~~

- Drop --abi entirely to tag the wheel with the exact build interpreter`,
		extLinks: []HttpLink{
			"https://packaging.python.org/en/latest/specifications/platform-compatibility-tags/",
		},
	}

	interpreterProbeFailedIssue = &Issue{
		id: InterpreterProbeFailedId,
		mdMsg: `
# Python interpreter not usable!

Resolving a non-pure wheel tag needs a working python executable, and the
configured one could not be probed.

## Things you can try:
- Check that the interpreter is installed and on your PATH
- Configure the interpreter to probe:
~~~cue
python: "/usr/bin/python3"
~~~

- For stable-ABI builds without a local python, pass --abi; the platform
  is then approximated from the host`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

Could not load the wheelwright configuration file.

## Configuration file locations:
- Linux: ~/.config/wheelwright/config.cue
- macOS: ~/Library/Application Support/wheelwright/config.cue
- Windows: %APPDATA%\wheelwright\config.cue

## Things you can try:
- Create a default configuration:
~~~
$ wheelwright config init
~~~

- Check the configuration syntax
- Remove the config file to use defaults:
~~~
$ rm ~/.config/wheelwright/config.cue
~~~

## Example configuration:
~~~cue
wheel_dir: "dist"
dist_dir:  "dist"
jobs:      4

ui: {
	color_scheme: "auto"
	verbose: false
}
~~~`,
	}

	archiveWriteFailedIssue = &Issue{
		id: ArchiveWriteFailedId,
		mdMsg: `
# Failed to write archive!

The wheel or source distribution could not be written to disk.

## Common causes:
- The output directory is not writable
- A member file vanished between planning and assembly
- The disk is full

## Things you can try:
- Check permissions on the output directory (--wheel-dir / --dist-dir)
- Remove stale outputs and rebuild:
~~~
$ wheelwright clean
$ wheelwright wheel
~~~`,
	}

	versionDetectFailedIssue = &Issue{
		id: VersionDetectFailedId,
		mdMsg: `
# Could not detect a version!

pyproject.toml has no project.version, and no version could be derived from
your git tags.

## Things you can try:
- Pin the version in pyproject.toml:
~~~toml
[project]
version = "0.1.0"
~~~

- Or tag a release in the repository:
~~~
$ git tag v0.1.0
~~~

- Make sure you are building inside a git work tree with at least one
  reachable version tag`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Build step cycle detected!

Your prebuild steps' targets and sources form a cycle, so no valid build
order exists.

## Example of a cycle:
~~~toml
[[tool.wheelwright.prebuild]]
name = "a"
command = "gen-a"
targets = ["a.out"]
sources = ["b.out"]

[[tool.wheelwright.prebuild]]
name = "b"
command = "gen-b"
targets = ["b.out"]
sources = ["a.out"]  # Cycle: a -> b -> a
~~~

## Things you can try:
- Review the targets and sources of each prebuild step
- Remove the circular dependency
- Split the cycle into a linear chain of steps`,
	}

	issues = map[Id]*Issue{
		descriptorNotFoundIssue.Id():     descriptorNotFoundIssue,
		descriptorParseErrorIssue.Id():   descriptorParseErrorIssue,
		missingRequiredFieldIssue.Id():   missingRequiredFieldIssue,
		malformedRequirementIssue.Id():   malformedRequirementIssue,
		unsupportedAbiTargetIssue.Id():   unsupportedAbiTargetIssue,
		interpreterProbeFailedIssue.Id(): interpreterProbeFailedIssue,
		configLoadFailedIssue.Id():       configLoadFailedIssue,
		archiveWriteFailedIssue.Id():     archiveWriteFailedIssue,
		versionDetectFailedIssue.Id():    versionDetectFailedIssue,
		dependencyCycleIssue.Id():        dependencyCycleIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
