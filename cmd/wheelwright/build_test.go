// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"io"
	"strings"
	"testing"

	"wheelwright-cli/internal/buildplan"
	"wheelwright-cli/internal/config"
	"wheelwright-cli/internal/issue"
	"wheelwright-cli/pkg/wheeltag"

	"github.com/spf13/cobra"
)

// isolateConfig redirects config lookups to a throwaway directory so the
// cobra initializer hooks never read the developer's real config file.
func isolateConfig(t *testing.T) {
	t.Helper()
	config.SetConfigDirOverride(t.TempDir())
	t.Cleanup(config.Reset)
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestBuildVerbRequestWiring(t *testing.T) {
	// Not parallel: executing commands runs the shared config initializer.
	isolateConfig(t)

	tests := []struct {
		name     string
		make     func(*App) *cobra.Command
		args     []string
		wantGoal string
		check    func(t *testing.T, req BuildRequest)
	}{
		{
			name:     "wheel",
			make:     newWheelCommand,
			args:     []string{"proj", "--wheel-dir", "out", "--abi", "3.9"},
			wantGoal: buildplan.GoalWheel,
			check: func(t *testing.T, req BuildRequest) {
				if req.Dir != "proj" {
					t.Errorf("Dir = %q, want proj", req.Dir)
				}
				if req.WheelDir != "out" {
					t.Errorf("WheelDir = %q, want out", req.WheelDir)
				}
				if req.Abi != "3.9" {
					t.Errorf("Abi = %q, want 3.9", req.Abi)
				}
			},
		},
		{
			name:     "sdist",
			make:     newSdistCommand,
			args:     []string{"--dist-dir", "archives"},
			wantGoal: buildplan.GoalSdist,
			check: func(t *testing.T, req BuildRequest) {
				if req.Dir != "." {
					t.Errorf("Dir = %q, want .", req.Dir)
				}
				if req.DistDir != "archives" {
					t.Errorf("DistDir = %q, want archives", req.DistDir)
				}
			},
		},
		{
			name:     "editable",
			make:     newEditableCommand,
			args:     []string{"proj"},
			wantGoal: buildplan.GoalEditable,
			check: func(t *testing.T, req BuildRequest) {
				if req.Dir != "proj" {
					t.Errorf("Dir = %q, want proj", req.Dir)
				}
			},
		},
		{
			name:     "dist-info",
			make:     newDistInfoCommand,
			args:     []string{"--wheel-dir", "meta"},
			wantGoal: buildplan.GoalDistInfo,
			check: func(t *testing.T, req BuildRequest) {
				if req.WheelDir != "meta" {
					t.Errorf("WheelDir = %q, want meta", req.WheelDir)
				}
			},
		},
		{
			name:     "egg-info",
			make:     newEggInfoCommand,
			args:     []string{"--egg-base", "meta"},
			wantGoal: buildplan.GoalEggInfo,
			check: func(t *testing.T, req BuildRequest) {
				if req.EggBase != "meta" {
					t.Errorf("EggBase = %q, want meta", req.EggBase)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubBuildService{}
			app, _, _ := newTestApp(&stubConfigProvider{}, stub)

			if err := execute(t, tc.make(app), tc.args...); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stub.req.Goal != tc.wantGoal {
				t.Errorf("Goal = %q, want %q", stub.req.Goal, tc.wantGoal)
			}
			tc.check(t, stub.req)
		})
	}
}

func TestBuildVerbPersistentOverrides(t *testing.T) {
	isolateConfig(t)

	origPython, origJobs := pythonPath, jobs
	t.Cleanup(func() { pythonPath, jobs = origPython, origJobs })
	pythonPath = "/opt/python3"
	jobs = 4

	stub := &stubBuildService{}
	app, _, _ := newTestApp(&stubConfigProvider{}, stub)

	if err := execute(t, newWheelCommand(app)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.req.Python != "/opt/python3" {
		t.Errorf("Python = %q, want /opt/python3", stub.req.Python)
	}
	if stub.req.Jobs != 4 {
		t.Errorf("Jobs = %d, want 4", stub.req.Jobs)
	}
}

func TestBuildVerbPrintsArtifact(t *testing.T) {
	isolateConfig(t)

	stub := &stubBuildService{result: BuildResult{
		Artifact: "/tmp/demo_pkg-1.2.3-py3-none-any.whl",
		Tag:      wheeltag.Universal,
	}}
	app, stdout, _ := newTestApp(&stubConfigProvider{}, stub)

	if err := execute(t, newWheelCommand(app)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := stdout.String()
	if !strings.Contains(out, "Built") {
		t.Errorf("missing Built line: %q", out)
	}
	if !strings.Contains(out, "/tmp/demo_pkg-1.2.3-py3-none-any.whl") {
		t.Errorf("missing artifact path: %q", out)
	}
}

func TestBuildVerbServiceErrorExitsNonZero(t *testing.T) {
	isolateConfig(t)

	svcErr := newServiceError(errors.New("no descriptor here"), issue.DescriptorNotFoundId, "")
	stub := &stubBuildService{err: svcErr}
	app, _, stderr := newTestApp(&stubConfigProvider{}, stub)

	err := execute(t, newWheelCommand(app))
	if err == nil {
		t.Fatal("expected error")
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T", err)
	}
	if exitErr.Code != 1 {
		t.Errorf("Code = %d, want 1", exitErr.Code)
	}
	if !strings.Contains(stderr.String(), "no descriptor here") {
		t.Errorf("missing error detail on stderr: %q", stderr.String())
	}
}

func TestBuildVerbPlainErrorPassesThrough(t *testing.T) {
	isolateConfig(t)

	plain := errors.New("engine exploded")
	stub := &stubBuildService{err: plain}
	app, _, _ := newTestApp(&stubConfigProvider{}, stub)

	err := execute(t, newSdistCommand(app))
	if !errors.Is(err, plain) {
		t.Fatalf("expected the service error unchanged, got %v", err)
	}
}

func TestCleanCommand(t *testing.T) {
	isolateConfig(t)

	stub := &stubBuildService{}
	app, stdout, _ := newTestApp(&stubConfigProvider{}, stub)

	if err := execute(t, newCleanCommand(app), "proj", "--wheel-dir", "out"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stub.cleaned {
		t.Error("Clean was not invoked")
	}
	if stub.req.Dir != "proj" {
		t.Errorf("Dir = %q, want proj", stub.req.Dir)
	}
	if stub.req.WheelDir != "out" {
		t.Errorf("WheelDir = %q, want out", stub.req.WheelDir)
	}
	if !strings.Contains(stdout.String(), "Cleaned") {
		t.Errorf("missing Cleaned line: %q", stdout.String())
	}
}
