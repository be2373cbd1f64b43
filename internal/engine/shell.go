// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ShellAction adapts a shell script into an Action. The script is parsed
// at registration, so malformed scripts fail before anything runs; at
// execution it interprets in-process with the engine root as working
// directory, inheriting the environment and writing to the process's
// stdout/stderr.
func (e *Engine) ShellAction(script string) (Action, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "script")
	if err != nil {
		return nil, fmt.Errorf("failed to parse shell action: %w", err)
	}

	return func(ctx context.Context, _ *Step) error {
		runner, err := interp.New(
			interp.Dir(e.root),
			interp.Env(expand.ListEnviron(os.Environ()...)),
			interp.StdIO(nil, os.Stdout, os.Stderr),
		)
		if err != nil {
			return fmt.Errorf("failed to create shell interpreter: %w", err)
		}
		if err := runner.Run(ctx, prog); err != nil {
			var status interp.ExitStatus
			if errors.As(err, &status) {
				return fmt.Errorf("shell action exited with status %d", uint8(status))
			}
			return fmt.Errorf("failed to run shell action: %w", err)
		}
		return nil
	}, nil
}
