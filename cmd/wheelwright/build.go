// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"wheelwright-cli/internal/buildplan"

	"github.com/spf13/cobra"
)

// newWheelCommand creates the `wheelwright wheel` command.
func newWheelCommand(app *App) *cobra.Command {
	var wheelDir, abi string

	cmd := &cobra.Command{
		Use:   "wheel [dir]",
		Short: "Build a wheel",
		Long: `Build a wheel from the project in dir (default: current directory).

Pure projects get the universal py3-none-any tag. Projects with platlib
members are tagged for the configured interpreter, or for the stable ABI
when --abi is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := baseRequest(args)
			req.Goal = buildplan.GoalWheel
			req.WheelDir = wheelDir
			req.Abi = abi
			return runBuild(cmd, app, req)
		},
	}
	cmd.Flags().StringVar(&wheelDir, "wheel-dir", "", "directory to write the wheel into (default from config)")
	cmd.Flags().StringVar(&abi, "abi", "", "build against the stable ABI for this target (e.g. 3.9)")
	return cmd
}

// newSdistCommand creates the `wheelwright sdist` command.
func newSdistCommand(app *App) *cobra.Command {
	var distDir string

	cmd := &cobra.Command{
		Use:   "sdist [dir]",
		Short: "Build a source distribution",
		Long: `Build a .tar.gz source distribution from the project in dir
(default: current directory). The archive contains the files matched by
tool.wheelwright.sdist-include plus the project descriptor.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := baseRequest(args)
			req.Goal = buildplan.GoalSdist
			req.DistDir = distDir
			return runBuild(cmd, app, req)
		},
	}
	cmd.Flags().StringVar(&distDir, "dist-dir", "", "directory to write the sdist into (default from config)")
	return cmd
}

// newEditableCommand creates the `wheelwright editable` command.
func newEditableCommand(app *App) *cobra.Command {
	var wheelDir, abi string

	cmd := &cobra.Command{
		Use:   "editable [dir]",
		Short: "Build an editable wheel",
		Long: `Build an editable wheel from the project in dir (default: current
directory). Instead of package files, the wheel carries a .pth shim that
points the interpreter back at the project source tree.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := baseRequest(args)
			req.Goal = buildplan.GoalEditable
			req.WheelDir = wheelDir
			req.Abi = abi
			return runBuild(cmd, app, req)
		},
	}
	cmd.Flags().StringVar(&wheelDir, "wheel-dir", "", "directory to write the wheel into (default from config)")
	cmd.Flags().StringVar(&abi, "abi", "", "build against the stable ABI for this target (e.g. 3.9)")
	return cmd
}

// newDistInfoCommand creates the `wheelwright dist-info` command.
func newDistInfoCommand(app *App) *cobra.Command {
	var wheelDir string

	cmd := &cobra.Command{
		Use:   "dist-info [dir]",
		Short: "Generate the .dist-info metadata directory",
		Long: `Generate the <name>-<version>.dist-info directory without building a
wheel. Installers call this to inspect metadata before a full build.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := baseRequest(args)
			req.Goal = buildplan.GoalDistInfo
			req.WheelDir = wheelDir
			return runBuild(cmd, app, req)
		},
	}
	cmd.Flags().StringVar(&wheelDir, "wheel-dir", "", "directory to write the dist-info into (default from config)")
	return cmd
}

// newEggInfoCommand creates the `wheelwright egg-info` command.
func newEggInfoCommand(app *App) *cobra.Command {
	var eggBase string

	cmd := &cobra.Command{
		Use:   "egg-info [dir]",
		Short: "Generate the .egg-info metadata directory",
		Long: `Generate the legacy <name>.egg-info directory with PKG-INFO,
requires.txt, and entry_points.txt. Older tooling reads this layout.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := baseRequest(args)
			req.Goal = buildplan.GoalEggInfo
			req.EggBase = eggBase
			return runBuild(cmd, app, req)
		},
	}
	cmd.Flags().StringVar(&eggBase, "egg-base", "", "parent directory for the egg-info (default from config)")
	return cmd
}

// newCleanCommand creates the `wheelwright clean` command.
func newCleanCommand(app *App) *cobra.Command {
	var wheelDir, distDir, eggBase string

	cmd := &cobra.Command{
		Use:   "clean [dir]",
		Short: "Remove build outputs",
		Long: `Remove the staging tree, metadata directories, and other declared
build outputs of the project in dir (default: current directory).
Finished wheels and sdists are kept.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := baseRequest(args)
			req.WheelDir = wheelDir
			req.DistDir = distDir
			req.EggBase = eggBase
			if err := app.Builds.Clean(cmd.Context(), req); err != nil {
				return buildFailure(cmd, app, err)
			}
			fmt.Fprintf(app.stdout, "%s Cleaned\n", SuccessStyle.Render("✓"))
			return nil
		},
	}
	cmd.Flags().StringVar(&wheelDir, "wheel-dir", "", "directory the wheel was written into (default from config)")
	cmd.Flags().StringVar(&distDir, "dist-dir", "", "directory the sdist was written into (default from config)")
	cmd.Flags().StringVar(&eggBase, "egg-base", "", "parent directory of the egg-info (default from config)")
	return cmd
}

// baseRequest assembles the request fields shared by every build verb:
// the project directory argument and the root-level persistent flags.
func baseRequest(args []string) BuildRequest {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	return BuildRequest{
		Dir:        dir,
		Python:     pythonPath,
		Jobs:       jobs,
		ConfigPath: cfgFile,
	}
}

// runBuild executes one build request and renders the outcome.
func runBuild(cmd *cobra.Command, app *App, req BuildRequest) error {
	result, err := app.Builds.Build(cmd.Context(), req)
	if err != nil {
		return buildFailure(cmd, app, err)
	}

	fmt.Fprintf(app.stdout, "%s Built %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(result.Artifact))
	if verbose {
		fmt.Fprintln(app.stdout, VerboseStyle.Render("  tag "+result.Tag.String()))
	}
	return nil
}

// buildFailure renders a build error. ServiceErrors carry issue catalog
// references and print their own styled card; the returned ExitError only
// propagates the exit code since the details already went to stderr.
func buildFailure(cmd *cobra.Command, app *App, err error) error {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return err
	}

	fmt.Fprintf(app.stderr, "%s %s\n", ErrorStyle.Render("✗"), svcErr.Error())
	renderServiceError(app.stderr, svcErr)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return &ExitError{Code: 1}
}
