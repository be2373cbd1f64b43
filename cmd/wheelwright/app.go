// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"wheelwright-cli/internal/config"
	"wheelwright-cli/internal/issue"
)

type (
	// App wires CLI services and shared dependencies. It is the composition root
	// for the CLI layer — all Cobra command handlers receive an App reference and
	// delegate business logic through its service interfaces (Builds, Config).
	App struct {
		Config ConfigProvider
		Builds BuildService
		stdout io.Writer
		stderr io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil fields
	// are replaced with production defaults by NewApp. Tests can supply mock
	// implementations to isolate specific service behavior.
	Dependencies struct {
		Config ConfigProvider
		Builds BuildService
		Stdout io.Writer
		Stderr io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	// This abstraction enables testing with custom config sources or mock implementations.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Builds == nil {
		deps.Builds = newBuildService(deps.Config)
	}

	return &App{
		Config: deps.Config,
		Builds: deps.Builds,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
}

// loadConfigWithFallback loads configuration via the provider. On failure with
// the default lookup it returns defaults and logs a warning so builds stay
// operational; fresh machines have no config file and that is fine. An explicit
// --config path is different: the user named a file, so a load failure must
// not be silently downgraded and comes back as a ServiceError instead.
func loadConfigWithFallback(ctx context.Context, provider ConfigProvider, configPath string) (*config.Config, error) {
	cfg, err := provider.Load(ctx, config.LoadOptions{ConfigFilePath: configPath})
	if err == nil {
		return cfg, nil
	}

	if configPath != "" {
		return nil, newServiceError(
			fmt.Errorf("failed to load config from %s: %w", configPath, err),
			issue.ConfigLoadFailedId,
			"",
		)
	}

	slog.Warn("failed to load config, using defaults", "error", err)
	return config.DefaultConfig(), nil
}
