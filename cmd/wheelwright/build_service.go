// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"

	"wheelwright-cli/internal/buildplan"
	"wheelwright-cli/internal/engine"
	"wheelwright-cli/internal/issue"
	"wheelwright-cli/internal/vcsversion"
	"wheelwright-cli/pkg/platform"
	"wheelwright-cli/pkg/pyproject"
	"wheelwright-cli/pkg/wheeltag"
)

type (
	// BuildRequest captures one build invocation as an immutable value. It is
	// the request-scoped data contract between the CLI layer (Cobra handlers)
	// and the BuildService implementation.
	BuildRequest struct {
		// Goal is the build plan alias to run (e.g. buildplan.GoalWheel).
		Goal string
		// Dir is the directory searched for pyproject.toml.
		Dir string
		// WheelDir overrides the configured wheel output directory when set.
		WheelDir string
		// DistDir overrides the configured sdist output directory when set.
		DistDir string
		// EggBase overrides the configured egg-info parent directory when set.
		EggBase string
		// Abi requests a stable-ABI wheel for a major.minor target (e.g. "3.9").
		// Empty means no stable-ABI request.
		Abi string
		// Python overrides the configured interpreter probed for tags.
		Python string
		// Jobs overrides the configured step concurrency when positive.
		Jobs int
		// ConfigPath is the explicit --config flag value.
		ConfigPath string
	}

	// BuildResult contains build outcomes.
	BuildResult struct {
		// Artifact is the filesystem path of the goal's product.
		Artifact string
		// Tag is the compatibility tag the build resolved.
		Tag wheeltag.Tag
	}

	// BuildService plans and runs package builds. Implementations must not
	// write regular output directly to stdout/stderr; outcomes come back as
	// structured data for the CLI layer to render.
	BuildService interface {
		Build(ctx context.Context, req BuildRequest) (BuildResult, error)
		Clean(ctx context.Context, req BuildRequest) error
	}

	// buildService implements BuildService on the build engine.
	buildService struct {
		config ConfigProvider
	}

	// projectPlan is a registered build plan plus the inputs it resolved.
	projectPlan struct {
		engine    *engine.Engine
		artifacts *buildplan.Artifacts
		tag       wheeltag.Tag
		jobs      int
	}
)

func newBuildService(cfg ConfigProvider) *buildService {
	return &buildService{config: cfg}
}

// Build plans the project in req.Dir and runs the requested goal.
func (s *buildService) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	plan, err := s.plan(ctx, req)
	if err != nil {
		return BuildResult{}, err
	}

	if err := plan.engine.Run(ctx, plan.jobs, req.Goal); err != nil {
		var cycleErr *engine.CycleError
		if errors.As(err, &cycleErr) {
			return BuildResult{}, newServiceError(err, issue.DependencyCycleId, "")
		}
		return BuildResult{}, err
	}

	return BuildResult{Artifact: plan.artifactFor(req.Goal), Tag: plan.tag}, nil
}

// Clean plans the project and removes the declared outputs of every goal.
// Finished archives are kept; staging trees and metadata directories go.
func (s *buildService) Clean(ctx context.Context, req BuildRequest) error {
	plan, err := s.plan(ctx, req)
	if err != nil {
		return err
	}
	return plan.engine.Clean(
		buildplan.GoalWheel,
		buildplan.GoalEditable,
		buildplan.GoalSdist,
		buildplan.GoalDistInfo,
		buildplan.GoalEggInfo,
	)
}

// plan loads the descriptor, resolves the compatibility tag, and registers
// the full build plan on a fresh engine. Every failure mode maps to its
// issue catalog entry so the CLI can render actionable help.
func (s *buildService) plan(ctx context.Context, req BuildRequest) (*projectPlan, error) {
	cfg, err := loadConfigWithFallback(ctx, s.config, req.ConfigPath)
	if err != nil {
		return nil, err
	}

	desc, err := pyproject.Load(req.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newServiceError(err, issue.DescriptorNotFoundId, "")
		}
		return nil, newServiceError(err, issue.DescriptorParseErrorId, "")
	}

	id, err := desc.Identity(vcsversion.Resolve)
	if err != nil {
		if errors.Is(err, vcsversion.ErrNoVersion) {
			return nil, newServiceError(err, issue.VersionDetectFailedId, "")
		}
		return nil, newServiceError(err, issue.MissingRequiredFieldId, "")
	}

	if platform.IsWindowsReservedName(id.Name) {
		slog.Warn("project name is reserved on windows; artifacts will be unusable there", "name", id.Name)
	}

	var limited *wheeltag.AbiTarget
	if req.Abi != "" {
		target, err := wheeltag.ParseAbiTarget(req.Abi)
		if err != nil {
			return nil, newServiceError(err, issue.UnsupportedAbiTargetId, "")
		}
		limited = &target
	}

	python := req.Python
	if python == "" {
		python = string(cfg.Python)
	}
	tag, err := wheeltag.Resolve(ctx, wheeltag.Options{
		Pure:        buildplan.PureBuild(desc.Tool, limited),
		LimitedAPI:  limited,
		Interpreter: python,
	})
	if err != nil {
		return nil, newServiceError(err, issue.InterpreterProbeFailedId, "")
	}

	opts := buildplan.Options{
		Tag:      tag,
		WheelDir: req.WheelDir,
		DistDir:  req.DistDir,
		EggBase:  req.EggBase,
	}
	if opts.WheelDir == "" {
		opts.WheelDir = string(cfg.WheelDir)
	}
	if opts.DistDir == "" {
		opts.DistDir = string(cfg.DistDir)
	}
	if opts.EggBase == "" {
		opts.EggBase = string(cfg.EggBase)
	}

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = int(cfg.Jobs)
	}
	if jobs <= 0 {
		jobs = 1
	}

	root := buildplan.Root(desc)
	eng := engine.New(root, filepath.Join(root, "build"))
	arts, err := buildplan.Plan(eng, desc, id, opts)
	if err != nil {
		if errors.Is(err, buildplan.ErrMemberOutsideRoot) {
			return nil, newServiceError(err, issue.ArchiveWriteFailedId, "")
		}
		return nil, err
	}

	return &projectPlan{engine: eng, artifacts: arts, tag: tag, jobs: jobs}, nil
}

// artifactFor maps a goal to the path its run produces. The installed
// dist-info directory lands next to the wheel, so it is derived from the
// wheel path rather than carried separately.
func (p *projectPlan) artifactFor(goal string) string {
	switch goal {
	case buildplan.GoalWheel:
		return p.artifacts.WheelPath
	case buildplan.GoalEditable:
		return p.artifacts.EditablePath
	case buildplan.GoalSdist:
		return p.artifacts.SdistPath
	case buildplan.GoalDistInfo:
		return filepath.Join(filepath.Dir(p.artifacts.WheelPath), p.artifacts.DistInfoName)
	case buildplan.GoalEggInfo:
		return p.artifacts.EggInfoDir
	}
	return ""
}
