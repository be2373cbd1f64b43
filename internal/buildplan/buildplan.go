// SPDX-License-Identifier: MPL-2.0

// Package buildplan registers the build steps for one Python project on a
// build engine: metadata records, file installs into the wheel staging
// tree, the wheel and editable-wheel archives, the source distribution,
// and the project's own prebuild commands. Each product is exposed under a
// stable goal name (dist_info, bdist_wheel, editable, sdist, egg_info)
// that the CLI verbs map onto.
package buildplan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"wheelwright-cli/internal/engine"
	"wheelwright-cli/pkg/editable"
	"wheelwright-cli/pkg/metadata"
	"wheelwright-cli/pkg/pyname"
	"wheelwright-cli/pkg/pyproject"
	"wheelwright-cli/pkg/sdist"
	"wheelwright-cli/pkg/wheel"
	"wheelwright-cli/pkg/wheeltag"
)

// Goal names registered as engine aliases. They match the historical
// setuptools command names so PEP 517 hooks translate one to one.
const (
	GoalEggInfo  = "egg_info"
	GoalDistInfo = "dist_info"
	GoalWheel    = "bdist_wheel"
	GoalEditable = "editable"
	GoalSdist    = "sdist"
)

// DefaultOutputDir is where wheels and sdists land when the caller does
// not choose a directory.
const DefaultOutputDir = "dist"

// paramsFilename holds the non-file build inputs (version, tag,
// generator). The engine fingerprints file content only, so steps that
// embed these values declare the params file as a source to pick up
// changes that leave every other source untouched.
const paramsFilename = "params.json"

// ErrMemberOutsideRoot is returned when a configured glob resolves to a
// file outside the build root. Archive member names are relative paths;
// a file above the root has no valid name.
var ErrMemberOutsideRoot = errors.New("member escapes the build root")

type (
	// MemberOutsideRootError reports a matched file that cannot be
	// given a member name relative to the build root. It wraps
	// ErrMemberOutsideRoot for errors.Is() compatibility.
	MemberOutsideRootError struct {
		Path string
		Root string
	}
)

func (e *MemberOutsideRootError) Error() string {
	return fmt.Sprintf("member %q escapes the build root %q", e.Path, e.Root)
}

func (e *MemberOutsideRootError) Unwrap() error { return ErrMemberOutsideRoot }

// Options carries the caller-facing knobs for one plan. Zero values pick
// the defaults: output directories fall back to DefaultOutputDir and the
// egg-info parent falls back to the project's src_root.
type Options struct {
	// Tag is the resolved compatibility tag for the wheel being built.
	Tag wheeltag.Tag

	// WheelDir receives the wheel, the editable wheel, and the
	// installed dist-info directory. Relative paths resolve against
	// the build root.
	WheelDir string

	// DistDir receives the source distribution. Relative paths
	// resolve against the build root.
	DistDir string

	// EggBase is the parent directory for the egg-info directory.
	// Empty means the project's src_root, or the build root itself.
	EggBase string
}

// Artifacts reports the paths a plan will produce, so callers can print
// or consume them after a run.
type Artifacts struct {
	// Root is the directory build steps execute in.
	Root string

	// Stem is the "name-version" filename stem shared by the wheel,
	// the dist-info directory, and the staging layout.
	Stem string

	// DistInfoName is Stem + ".dist-info".
	DistInfoName string

	// Staging is the directory the wheel archive is assembled from.
	Staging string

	// EggInfoDir holds PKG-INFO, requires.txt, and entry_points.txt.
	EggInfoDir string

	// WheelPath is the final tagged wheel path.
	WheelPath string

	// EditablePath is the editable wheel path.
	EditablePath string

	// SdistPath is the source distribution path.
	SdistPath string
}

// Root returns the directory the build executes in: the configured
// build-from directory when the descriptor names one, otherwise the
// descriptor's own directory.
func Root(desc *pyproject.Descriptor) string {
	if dir := desc.BuildFromDir(); dir != "" {
		return dir
	}
	return desc.Dir
}

// PureBuild reports whether the project builds a pure wheel: no platlib
// members and no stable-ABI request. Pure wheels carry the universal tag
// and install their root members into purelib.
func PureBuild(tool pyproject.Tool, limited *wheeltag.AbiTarget) bool {
	return len(tool.Categories["platlib"]) == 0 && limited == nil
}

// Plan registers every build step for the project on e and returns the
// artifact paths. It writes the params file eagerly but runs nothing;
// callers pick goals and invoke engine.Run.
func Plan(e *engine.Engine, desc *pyproject.Descriptor, id pyproject.Identity, opts Options) (*Artifacts, error) {
	root := Root(desc)
	stem := pyname.NameVer(id.SafeName, id.Version)
	distInfoName := stem + ".dist-info"

	buildDir := filepath.Join(root, "build")
	staging := filepath.Join(buildDir, "wheel")
	wheelDir := resolveDir(root, opts.WheelDir)
	distDir := resolveDir(root, opts.DistDir)
	descPath := filepath.Join(desc.Dir, pyproject.DescriptorFilename)

	generator := desc.Tool.Generator
	if generator == "" {
		generator = wheel.DefaultGenerator
	}

	paramsPath, err := writeParams(buildDir, id, opts.Tag, generator)
	if err != nil {
		return nil, err
	}

	prebuilt, err := planPrebuild(e, desc.Tool.Prebuild, root, buildDir)
	if err != nil {
		return nil, err
	}

	eggInfoDir, err := planEggInfo(e, desc, id, opts, root, descPath, paramsPath)
	if err != nil {
		return nil, err
	}

	stagedDistInfo := filepath.Join(staging, distInfoName)
	stagedFiles, err := planDistInfo(e, desc, id, opts, generator, stagedDistInfo, descPath, paramsPath, wheelDir, distInfoName)
	if err != nil {
		return nil, err
	}

	memberTargets, err := planMembers(e, desc, stem, root, staging, opts.Tag.IsPure(), prebuilt)
	if err != nil {
		return nil, err
	}

	wheelPath, err := planWheel(e, stem, opts.Tag, wheelDir, staging, distInfoName, memberTargets, stagedFiles)
	if err != nil {
		return nil, err
	}

	editablePath, err := planEditable(e, desc, id, stem, opts.Tag, root, wheelDir, staging, stagedDistInfo, distInfoName, stagedFiles)
	if err != nil {
		return nil, err
	}

	sdistPath, err := planSdist(e, desc, id, root, distDir, descPath, prebuilt)
	if err != nil {
		return nil, err
	}

	slog.Debug("registered build plan",
		"root", root,
		"stem", stem,
		"members", len(memberTargets),
		"prebuild_steps", len(desc.Tool.Prebuild))

	return &Artifacts{
		Root:         root,
		Stem:         stem,
		DistInfoName: distInfoName,
		Staging:      staging,
		EggInfoDir:   eggInfoDir,
		WheelPath:    wheelPath,
		EditablePath: editablePath,
		SdistPath:    sdistPath,
	}, nil
}

// buildParams is the serialized form of the non-file build inputs.
type buildParams struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Tag       string `json:"tag"`
	Generator string `json:"generator"`
}

func writeParams(buildDir string, id pyproject.Identity, tag wheeltag.Tag, generator string) (string, error) {
	params := buildParams{
		Name:      id.Name,
		Version:   id.Version,
		Tag:       tag.String(),
		Generator: generator,
	}
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize build parameters: %w", err)
	}
	path := filepath.Join(buildDir, paramsFilename)
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// planPrebuild registers the project's own shell commands. A step with no
// declared targets gets a stamp file so the engine has something to
// fingerprint; a step missing either targets or sources always runs,
// since the cache cannot see what an undeclared command reads or writes.
func planPrebuild(e *engine.Engine, steps []pyproject.PrebuildStep, root, buildDir string) ([]string, error) {
	var all []string
	for _, step := range steps {
		action, err := e.ShellAction(step.Command)
		if err != nil {
			return nil, fmt.Errorf("prebuild step %q: %w", step.Name, err)
		}

		targets := make([]string, len(step.Targets))
		for i, t := range step.Targets {
			targets[i] = absJoin(root, t)
		}
		sources := make([]string, len(step.Sources))
		for i, s := range step.Sources {
			sources[i] = absJoin(root, s)
		}

		run := action
		if len(targets) == 0 {
			stamp := filepath.Join(buildDir, "prebuild", step.Name+".stamp")
			targets = []string{stamp}
			run = func(ctx context.Context, s *engine.Step) error {
				if err := action(ctx, s); err != nil {
					return err
				}
				return writeFile(stamp, nil)
			}
		}

		if _, err := e.Command(step.Name, targets, sources, run); err != nil {
			return nil, err
		}
		if len(step.Targets) == 0 || len(step.Sources) == 0 {
			if err := e.AlwaysBuild(targets[0]); err != nil {
				return nil, err
			}
		}
		all = append(all, targets...)
	}
	return all, nil
}

// planEggInfo registers the egg-info triple: PKG-INFO, requires.txt, and
// entry_points.txt under <safe-name>.egg-info.
func planEggInfo(e *engine.Engine, desc *pyproject.Descriptor, id pyproject.Identity, opts Options, root, descPath, paramsPath string) (string, error) {
	parent := root
	base := opts.EggBase
	if base == "" {
		base = desc.Project.SrcRoot
	}
	if base != "" {
		parent = absJoin(root, base)
	}
	eggInfoDir := filepath.Join(parent, pyname.ToFilename(id.SafeName)+".egg-info")

	targets := []string{
		filepath.Join(eggInfoDir, "PKG-INFO"),
		filepath.Join(eggInfoDir, "requires.txt"),
		filepath.Join(eggInfoDir, "entry_points.txt"),
	}
	action := func(ctx context.Context, step *engine.Step) error {
		if err := writeFile(step.Targets[0], metadata.BuildPKGInfo(id).Bytes()); err != nil {
			return err
		}
		if err := writeFile(step.Targets[1], []byte(metadata.WriteRequiresTxt(desc.Project))); err != nil {
			return err
		}
		return writeFile(step.Targets[2], []byte(metadata.WriteEntryPoints(desc.Project)))
	}
	if _, err := e.Command("egg-info", targets, []string{descPath, paramsPath}, action); err != nil {
		return "", err
	}
	// Clean should take the directory with it, not just the three files.
	if err := e.CleanPaths(targets[0], eggInfoDir); err != nil {
		return "", err
	}
	e.Alias(GoalEggInfo, targets...)
	return eggInfoDir, nil
}

// planDistInfo registers the staged dist-info files (METADATA, WHEEL,
// entry_points.txt) and the step that installs them next to the wheel
// for PEP 517 prepare_metadata. It returns the staged paths in that
// fixed order.
func planDistInfo(e *engine.Engine, desc *pyproject.Descriptor, id pyproject.Identity, opts Options, generator, stagedDistInfo, descPath, paramsPath, wheelDir, distInfoName string) ([]string, error) {
	metadataPath := filepath.Join(stagedDistInfo, "METADATA")
	controlPath := filepath.Join(stagedDistInfo, "WHEEL")
	entryPointsPath := filepath.Join(stagedDistInfo, "entry_points.txt")

	metadataSources := append(metadata.SourcePaths(desc), paramsPath)
	metadataAction := func(ctx context.Context, step *engine.Step) error {
		rec, err := metadata.Build(desc, id)
		if err != nil {
			return err
		}
		return writeFile(step.Targets[0], rec.Bytes())
	}
	if _, err := e.Command("metadata", []string{metadataPath}, metadataSources, metadataAction); err != nil {
		return nil, err
	}

	controlAction := func(ctx context.Context, step *engine.Step) error {
		return writeFile(step.Targets[0], []byte(wheel.ControlFile(generator, opts.Tag)))
	}
	if _, err := e.Command("wheel-control", []string{controlPath}, []string{descPath, paramsPath}, controlAction); err != nil {
		return nil, err
	}

	entryPointsAction := func(ctx context.Context, step *engine.Step) error {
		return writeFile(step.Targets[0], []byte(metadata.WriteEntryPoints(desc.Project)))
	}
	if _, err := e.Command("entry-points", []string{entryPointsPath}, []string{descPath}, entryPointsAction); err != nil {
		return nil, err
	}

	staged := []string{metadataPath, controlPath, entryPointsPath}

	installed := make([]string, len(staged))
	installDir := filepath.Join(wheelDir, distInfoName)
	for i, src := range staged {
		installed[i] = filepath.Join(installDir, filepath.Base(src))
	}
	installAction := func(ctx context.Context, step *engine.Step) error {
		for i, src := range step.Sources {
			if err := copyFile(step.Targets[i], src); err != nil {
				return err
			}
		}
		return nil
	}
	if _, err := e.Command("dist-info", installed, staged, installAction); err != nil {
		return nil, err
	}
	if err := e.CleanPaths(installed[0], installDir); err != nil {
		return nil, err
	}
	e.Alias(GoalDistInfo, installed...)

	return staged, nil
}

// planMembers registers one install step per wheel member: each file a
// category glob matches is copied to its archive-relative path under the
// staging tree. Prebuild targets are declared as extra sources so member
// installs run after the commands that may generate them.
func planMembers(e *engine.Engine, desc *pyproject.Descriptor, stem, root, staging string, pure bool, prebuilt []string) ([]string, error) {
	srcRoot := root
	if desc.Project.SrcRoot != "" {
		srcRoot = absJoin(root, desc.Project.SrcRoot)
	}

	categories := maps.Keys(desc.Tool.Categories)
	slices.Sort(categories)

	var installed []string
	for _, category := range categories {
		files, err := expandGlobs(root, desc.Tool.Categories[category], prebuilt)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			rel, err := memberRel(root, srcRoot, file)
			if err != nil {
				return nil, err
			}
			name := wheel.MemberPath(stem, category, rel, pure)
			target := filepath.Join(staging, filepath.FromSlash(name))

			sources := []string{file}
			for _, p := range prebuilt {
				if p != file {
					sources = append(sources, p)
				}
			}
			action := func(ctx context.Context, step *engine.Step) error {
				return copyFile(step.Targets[0], step.Sources[0])
			}
			if _, err := e.Command("install "+name, []string{target}, sources, action); err != nil {
				return nil, err
			}
			installed = append(installed, target)
		}
	}
	return installed, nil
}

// planWheel registers the wheel archive step. The zip is assembled under
// an untagged name; post-actions append the RECORD manifest and then
// rename onto the declared tagged target, so a wheel only appears under
// its final name once it is complete.
func planWheel(e *engine.Engine, stem string, tag wheeltag.Tag, wheelDir, staging, distInfoName string, memberTargets, stagedFiles []string) (string, error) {
	tagged := filepath.Join(wheelDir, wheel.Filename(stem, tag))
	untagged := filepath.Join(wheelDir, stem+".whl")

	sources := slices.Clone(memberTargets)
	sources = append(sources, stagedFiles...)

	action := func(ctx context.Context, step *engine.Step) error {
		a, err := wheel.Create(untagged)
		if err != nil {
			return err
		}
		paths := slices.Clone(step.Sources)
		slices.Sort(paths)
		for _, src := range paths {
			rel, err := filepath.Rel(staging, src)
			if err != nil {
				a.Abort()
				return fmt.Errorf("failed to relativize %s: %w", src, err)
			}
			if err := a.AddFile(filepath.ToSlash(rel), src); err != nil {
				a.Abort()
				return err
			}
		}
		return a.Close()
	}
	if _, err := e.Command("wheel-archive", []string{tagged}, sources, action); err != nil {
		return "", err
	}
	if err := e.AddPostAction(tagged, func(ctx context.Context, step *engine.Step) error {
		return wheel.AddManifest(untagged, distInfoName)
	}); err != nil {
		return "", err
	}
	if err := e.AddPostAction(tagged, func(ctx context.Context, step *engine.Step) error {
		_, err := wheel.RenameToTag(untagged, stem, tag)
		return err
	}); err != nil {
		return "", err
	}
	if err := e.NoClean(tagged); err != nil {
		return "", err
	}
	if err := e.CleanPaths(tagged, staging); err != nil {
		return "", err
	}
	e.Alias(GoalWheel, tagged)
	return tagged, nil
}

// planEditable registers the editable wheel: the staged dist-info plus
// generated path-configuration shims pointing installers back at the
// working tree.
func planEditable(e *engine.Engine, desc *pyproject.Descriptor, id pyproject.Identity, stem string, tag wheeltag.Tag, root, wheelDir, staging, stagedDistInfo, distInfoName string, stagedFiles []string) (string, error) {
	editablePath := filepath.Join(wheelDir, wheel.EditableFilename(stem, tag))

	codeRoot := desc.Dir
	if desc.Project.SrcRoot != "" {
		codeRoot = absJoin(root, desc.Project.SrcRoot)
	}

	action := func(ctx context.Context, step *engine.Step) error {
		a, err := wheel.Create(editablePath)
		if err != nil {
			return err
		}
		walkErr := filepath.WalkDir(stagedDistInfo, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(staging, path)
			if err != nil {
				return err
			}
			return a.AddFile(filepath.ToSlash(rel), path)
		})
		if walkErr != nil {
			a.Abort()
			return walkErr
		}
		return a.Close()
	}
	if _, err := e.Command("editable-wheel", []string{editablePath}, slices.Clone(stagedFiles), action); err != nil {
		return "", err
	}
	if err := e.AddPostAction(editablePath, func(ctx context.Context, step *engine.Step) error {
		project, err := editable.New(id.Name, codeRoot)
		if err != nil {
			return err
		}
		project.AddToPath(codeRoot)
		return wheel.AddShims(editablePath, project.Files())
	}); err != nil {
		return "", err
	}
	if err := e.AddPostAction(editablePath, func(ctx context.Context, step *engine.Step) error {
		return wheel.AddManifest(editablePath, distInfoName)
	}); err != nil {
		return "", err
	}
	if err := e.NoClean(editablePath); err != nil {
		return "", err
	}
	e.Alias(GoalEditable, editablePath)
	return editablePath, nil
}

// planSdist registers the source distribution step. When the build runs
// from a different directory than the descriptor, a derived descriptor is
// generated into the build root so the archived pyproject.toml is usable
// standalone.
func planSdist(e *engine.Engine, desc *pyproject.Descriptor, id pyproject.Identity, root, distDir, descPath string, prebuilt []string) (string, error) {
	prefix := sdist.Prefix(id.Name, id.Version)
	sdistPath := filepath.Join(distDir, sdist.Filename(prefix))

	files, err := expandGlobs(root, desc.Tool.SdistInclude, prebuilt)
	if err != nil {
		return "", err
	}

	// When the build runs somewhere other than the descriptor's
	// directory, the archived pyproject.toml is a derived copy with the
	// build-from indirection stripped. The copy lands in the build
	// root, so an include glob may match a leftover from an earlier
	// run; registering the step up front keeps that copy fresh.
	descriptorSrc := descPath
	if root != desc.Dir {
		derivedPath := filepath.Join(root, pyproject.DescriptorFilename)
		derivedAction := func(ctx context.Context, step *engine.Step) error {
			data, err := desc.Derived(root)
			if err != nil {
				return err
			}
			return writeFile(step.Targets[0], data)
		}
		if _, err := e.Command("derived-descriptor", []string{derivedPath}, []string{descPath}, derivedAction); err != nil {
			return "", err
		}
		descriptorSrc = derivedPath
	}

	var members []sdist.Member
	var sources []string
	haveDescriptor := false
	for _, file := range files {
		rel, err := filepath.Rel(root, file)
		if err != nil || escapes(rel) {
			return "", &MemberOutsideRootError{Path: file, Root: root}
		}
		relName := filepath.ToSlash(rel)
		if relName == pyproject.DescriptorFilename {
			haveDescriptor = true
		}
		members = append(members, sdist.Member{Rel: relName, Src: file})
		sources = append(sources, file)
	}
	if !haveDescriptor {
		members = append(members, sdist.Member{Rel: pyproject.DescriptorFilename, Src: descriptorSrc})
		sources = append(sources, descriptorSrc)
	}

	action := func(ctx context.Context, step *engine.Step) error {
		return sdist.Build(sdistPath, prefix, members)
	}
	if _, err := e.Command("sdist-archive", []string{sdistPath}, sources, action); err != nil {
		return "", err
	}
	e.Alias(GoalSdist, sdistPath)
	return sdistPath, nil
}

// expandGlobs resolves category globs against the build root. Matched
// directories are walked recursively. Prebuild targets that match a
// pattern are included even when they do not exist yet, so generated
// files can ship without a prior run.
func expandGlobs(root string, patterns, prebuilt []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, pattern := range patterns {
		matches, err := filepath.Glob(absJoin(root, pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", match, err)
			}
			if !info.IsDir() {
				add(match)
				continue
			}
			walkErr := filepath.WalkDir(match, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() {
					add(path)
				}
				return nil
			})
			if walkErr != nil {
				return nil, fmt.Errorf("failed to walk %s: %w", match, walkErr)
			}
		}

		for _, target := range prebuilt {
			rel, err := filepath.Rel(root, target)
			if err != nil || escapes(rel) {
				continue
			}
			ok, err := path.Match(pattern, filepath.ToSlash(rel))
			if err != nil {
				return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
			}
			if ok {
				add(target)
			}
		}
	}

	slices.Sort(files)
	return files, nil
}

// memberRel names a file relative to the build root, stripping the
// src_root prefix when the file lives under it so "src/pkg/mod.py"
// installs as "pkg/mod.py".
func memberRel(root, srcRoot, file string) (string, error) {
	if rel, err := filepath.Rel(srcRoot, file); err == nil && !escapes(rel) && rel != "." {
		return filepath.ToSlash(rel), nil
	}
	rel, err := filepath.Rel(root, file)
	if err != nil || escapes(rel) {
		return "", &MemberOutsideRootError{Path: file, Root: root}
	}
	return filepath.ToSlash(rel), nil
}

// escapes reports whether a relative path points above its base.
func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func resolveDir(root, dir string) string {
	if dir == "" {
		dir = DefaultOutputDir
	}
	return absJoin(root, dir)
}

func absJoin(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// copyFile copies src to dst, creating parent directories and normalizing
// the mode to 0755 for executables and 0644 otherwise, matching the modes
// recorded in the archives.
func copyFile(dst, src string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	mode := fs.FileMode(0o644)
	if info.Mode()&0o111 != 0 {
		mode = 0o755
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, data, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return os.Chmod(dst, mode)
}
