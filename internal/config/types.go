// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"
)

var (
	// ErrInvalidOutputDirPath is returned when an OutputDirPath value is empty or whitespace-only.
	ErrInvalidOutputDirPath = errors.New("invalid output directory path")
	// ErrInvalidEggBasePath is returned when an EggBasePath value is whitespace-only.
	ErrInvalidEggBasePath = errors.New("invalid egg-base path")
	// ErrInvalidInterpreterPath is returned when an InterpreterPath value is whitespace-only.
	ErrInvalidInterpreterPath = errors.New("invalid interpreter path")
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidJobCount is returned when a JobCount value is below 1.
	ErrInvalidJobCount = errors.New("invalid job count")
	// ErrInvalidUIConfig is the sentinel error wrapped by InvalidUIConfigError.
	ErrInvalidUIConfig = errors.New("invalid UI config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// OutputDirPath represents a filesystem path to a directory where build
	// artifacts are written. A valid path must be non-empty and not
	// whitespace-only.
	OutputDirPath string

	// InvalidOutputDirPathError is returned when an OutputDirPath value is
	// empty or whitespace-only. It wraps ErrInvalidOutputDirPath for errors.Is().
	InvalidOutputDirPathError struct {
		Value OutputDirPath
	}

	// EggBasePath represents the directory where the .egg-info metadata
	// directory is generated. The zero value ("") is valid and means
	// "next to pyproject.toml". Non-zero values must not be whitespace-only.
	EggBasePath string

	// InvalidEggBasePathError is returned when an EggBasePath value is
	// non-empty but whitespace-only.
	InvalidEggBasePathError struct {
		Value EggBasePath
	}

	// InterpreterPath represents the Python interpreter probed for
	// interpreter/ABI/platform compatibility tags. The zero value ("") is
	// valid and means "no interpreter configured"; pure and stable-ABI
	// builds never need one. Non-zero values must not be whitespace-only.
	InterpreterPath string

	// InvalidInterpreterPathError is returned when an InterpreterPath value is
	// non-empty but whitespace-only.
	InvalidInterpreterPathError struct {
		Value InterpreterPath
	}

	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// JobCount is the number of build steps allowed to run concurrently.
	// A valid count is at least 1.
	JobCount int

	// InvalidJobCountError is returned when a JobCount value is below 1.
	// It wraps ErrInvalidJobCount for errors.Is() compatibility.
	InvalidJobCountError struct {
		Value JobCount
	}

	// InvalidUIConfigError is returned when a UIConfig has invalid fields.
	// It wraps ErrInvalidUIConfig for errors.Is() compatibility and collects
	// field-level validation errors.
	InvalidUIConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// WheelDir is the directory where built wheels are written.
		WheelDir OutputDirPath `json:"wheel_dir" mapstructure:"wheel_dir"`
		// DistDir is the directory where source distributions are written.
		DistDir OutputDirPath `json:"dist_dir" mapstructure:"dist_dir"`
		// EggBase overrides where the .egg-info directory is generated.
		EggBase EggBasePath `json:"egg_base,omitempty" mapstructure:"egg_base"`
		// Python is the interpreter probed for compatibility tags.
		Python InterpreterPath `json:"python,omitempty" mapstructure:"python"`
		// Jobs is the number of build steps allowed to run concurrently.
		Jobs JobCount `json:"jobs" mapstructure:"jobs"`
		// UI configures the user interface.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// ColorScheme sets the color scheme
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables verbose output
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// String returns the string representation of the OutputDirPath.
func (p OutputDirPath) String() string { return string(p) }

// IsValid returns whether the OutputDirPath is valid.
// A valid path must be non-empty and not whitespace-only.
func (p OutputDirPath) IsValid() (bool, []error) {
	if strings.TrimSpace(string(p)) == "" {
		return false, []error{&InvalidOutputDirPathError{Value: p}}
	}
	return true, nil
}

// Error implements the error interface for InvalidOutputDirPathError.
func (e *InvalidOutputDirPathError) Error() string {
	return fmt.Sprintf("invalid output directory path %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidOutputDirPath for errors.Is() compatibility.
func (e *InvalidOutputDirPathError) Unwrap() error { return ErrInvalidOutputDirPath }

// String returns the string representation of the EggBasePath.
func (p EggBasePath) String() string { return string(p) }

// IsValid returns whether the EggBasePath is valid.
// The zero value ("") is valid (means "next to pyproject.toml").
// Non-zero values must not be whitespace-only.
func (p EggBasePath) IsValid() (bool, []error) {
	if p == "" {
		return true, nil
	}
	if strings.TrimSpace(string(p)) == "" {
		return false, []error{&InvalidEggBasePathError{Value: p}}
	}
	return true, nil
}

// Error implements the error interface for InvalidEggBasePathError.
func (e *InvalidEggBasePathError) Error() string {
	return fmt.Sprintf("invalid egg-base path %q: non-empty value must not be whitespace-only", e.Value)
}

// Unwrap returns ErrInvalidEggBasePath for errors.Is() compatibility.
func (e *InvalidEggBasePathError) Unwrap() error { return ErrInvalidEggBasePath }

// String returns the string representation of the InterpreterPath.
func (p InterpreterPath) String() string { return string(p) }

// IsValid returns whether the InterpreterPath is valid.
// The zero value ("") is valid (means "no interpreter configured").
// Non-zero values must not be whitespace-only.
func (p InterpreterPath) IsValid() (bool, []error) {
	if p == "" {
		return true, nil
	}
	if strings.TrimSpace(string(p)) == "" {
		return false, []error{&InvalidInterpreterPathError{Value: p}}
	}
	return true, nil
}

// Error implements the error interface for InvalidInterpreterPathError.
func (e *InvalidInterpreterPathError) Error() string {
	return fmt.Sprintf("invalid interpreter path %q: non-empty value must not be whitespace-only", e.Value)
}

// Unwrap returns ErrInvalidInterpreterPath for errors.Is() compatibility.
func (e *InvalidInterpreterPathError) Unwrap() error { return ErrInvalidInterpreterPath }

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error {
	return ErrInvalidColorScheme
}

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color schemes,
// and a list of validation errors if it is not.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

// Error implements the error interface for InvalidJobCountError.
func (e *InvalidJobCountError) Error() string {
	return fmt.Sprintf("invalid job count %d: must be at least 1", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidJobCountError) Unwrap() error {
	return ErrInvalidJobCount
}

// IsValid returns whether the JobCount allows at least one concurrent build
// step, and a list of validation errors if it does not.
func (j JobCount) IsValid() (bool, []error) {
	if j < 1 {
		return false, []error{&InvalidJobCountError{Value: j}}
	}
	return true, nil
}

// IsValid returns whether the UIConfig has valid fields.
// It delegates to ColorScheme.IsValid(); bool fields need no validation.
func (c UIConfig) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidUIConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidUIConfigError.
func (e *InvalidUIConfigError) Error() string {
	return fmt.Sprintf("invalid UI config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidUIConfig for errors.Is() compatibility.
func (e *InvalidUIConfigError) Unwrap() error { return ErrInvalidUIConfig }

// IsValid returns whether the Config has valid fields.
// It delegates to WheelDir, DistDir, EggBase, Python, Jobs, and UI.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.WheelDir.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.DistDir.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.EggBase.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Python.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Jobs.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.UI.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		WheelDir: "dist",
		DistDir:  "dist",
		EggBase:  "", // Next to pyproject.toml if empty
		Python:   "python3",
		Jobs:     1,
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
			Verbose:     false,
		},
	}
}
