// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"wheelwright-cli/internal/config"
	"wheelwright-cli/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string
	// pythonPath overrides the interpreter probed for compatibility tags
	pythonPath string
	// jobs overrides the number of concurrent build steps
	jobs int

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "wheelwright",
		Short: "A build tool for Python packages",
		Long: TitleStyle.Render("wheelwright") + SubtitleStyle.Render(" - A build tool for Python packages") + `

wheelwright builds Python wheels and source distributions from a
pyproject.toml descriptor. Builds run on a file-fingerprinting engine:
steps whose sources have not changed are skipped, so rebuilds only redo
the work that moved.

Package contents are declared in the [tool.wheelwright] table as globs
per install category (purelib, platlib, headers, scripts, data).

` + SubtitleStyle.Render("Quick Start:") + `
  1. Create a pyproject.toml with a [tool.wheelwright] table
  2. Run: wheelwright wheel
  3. Find the wheel under dist/

` + SubtitleStyle.Render("Examples:") + `
  wheelwright wheel             Build a wheel
  wheelwright sdist             Build a source distribution
  wheelwright editable          Build an editable wheel for development
  wheelwright init              Create a starter pyproject.toml
  wheelwright config show       Show current configuration`,
	}
)

func init() {
	cobra.OnInitialize(initRootConfig)

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/wheelwright/config.cue)")
	rootCmd.PersistentFlags().StringVar(&pythonPath, "python", "", "python interpreter probed for compatibility tags (default from config)")
	rootCmd.PersistentFlags().IntVarP(&jobs, "jobs", "j", 0, "number of build steps to run concurrently (default from config)")

	app := NewApp(Dependencies{})

	// Add subcommands
	rootCmd.AddCommand(newWheelCommand(app))
	rootCmd.AddCommand(newSdistCommand(app))
	rootCmd.AddCommand(newEditableCommand(app))
	rootCmd.AddCommand(newDistInfoCommand(app))
	rootCmd.AddCommand(newEggInfoCommand(app))
	rootCmd.AddCommand(newCleanCommand(app))
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(newConfigCommand(app))
	rootCmd.AddCommand(newCompletionCommand())
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Use fang.Execute for enhanced Cobra styling
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// initRootConfig reads in config file and ENV variables if set.
func initRootConfig() {
	cfg, err := config.NewProvider().Load(context.Background(), config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		// Always surface config loading errors to the user
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
	}

	// Apply verbose from config if not set via flag
	if cfg != nil && !verbose {
		verbose = cfg.UI.Verbose
	}

	setupLogging()
}

// setupLogging routes the slog default logger through charmbracelet/log so
// engine and planner records share the CLI's styling. Build steps log at
// debug level; --verbose reveals them.
func setupLogging() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
	slog.SetDefault(slog.New(logger))
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}
