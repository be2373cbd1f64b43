// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wheelwright-cli/pkg/pyname"
	"wheelwright-cli/pkg/pyproject"

	"github.com/spf13/cobra"
)

var (
	initForce    bool
	initTemplate string

	// initCmd creates a new pyproject.toml
	initCmd = &cobra.Command{
		Use:   "init [name]",
		Short: "Create a new pyproject.toml in the current directory",
		Long: `Create a new pyproject.toml in the current directory.

The project name defaults to the directory name. The generated descriptor
declares the package layout under [tool.wheelwright] so the project builds
without further setup.`,
		RunE: runInit,
	}
)

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing pyproject.toml")
	initCmd.Flags().StringVarP(&initTemplate, "template", "t", "src", "project layout (src, flat)")
}

func runInit(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	if name == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to determine project name: %w", err)
		}
		name = filepath.Base(cwd)
	}

	if _, err := os.Stat(pyproject.DescriptorFilename); err == nil && !initForce {
		return fmt.Errorf("file '%s' already exists. Use --force to overwrite", pyproject.DescriptorFilename)
	}

	content, err := generateDescriptor(initTemplate, name)
	if err != nil {
		return err
	}

	if err := os.WriteFile(pyproject.DescriptorFilename, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	module := moduleDirName(name)
	absPath, _ := filepath.Abs(pyproject.DescriptorFilename)
	fmt.Printf("%s Created %s\n", SuccessStyle.Render("✓"), absPath)
	fmt.Println()
	fmt.Println(SubtitleStyle.Render("Next steps:"))
	if initTemplate == "flat" {
		fmt.Printf("  1. Put your package code in %s/\n", module)
	} else {
		fmt.Printf("  1. Put your package code in src/%s/\n", module)
	}
	fmt.Println("  2. Run 'wheelwright wheel' to build a wheel")
	fmt.Println("  3. Run 'wheelwright sdist' to build a source distribution")

	return nil
}

// generateDescriptor renders a starter descriptor for the chosen layout.
// The package directory globs match whole directories; the planner walks
// them recursively, so subpackages need no extra configuration.
func generateDescriptor(template, name string) (string, error) {
	module := moduleDirName(name)

	switch template {
	case "src":
		return fmt.Sprintf(`[project]
name = %q
version = "0.1.0"
description = ""
requires-python = ">=3.9"
dependencies = []
src_root = "src"

[tool.wheelwright]
purelib = ["src/%s"]
sdist-include = ["src/%s", "README*"]
`, name, module, module), nil

	case "flat":
		return fmt.Sprintf(`[project]
name = %q
version = "0.1.0"
description = ""
requires-python = ">=3.9"
dependencies = []

[tool.wheelwright]
purelib = ["%s"]
sdist-include = ["%s", "README*"]
`, name, module, module), nil

	default:
		return "", fmt.Errorf("unknown template: %s (valid: src, flat)", template)
	}
}

// moduleDirName derives the package directory for a project name. Python
// module directories are lowercase importable identifiers, unlike wheel
// filename stems which keep the distribution name's case.
func moduleDirName(name string) string {
	return strings.ToLower(pyname.ToFilename(pyname.SafeName(name)))
}
