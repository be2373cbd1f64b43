// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/wheelwright/config.cue (or XDG equivalent on
// Linux, ~/Library/Application Support/wheelwright/config.cue on macOS,
// %APPDATA%\wheelwright\config.cue on Windows). The package provides type-safe access
// to the artifact output directories, the egg-info base directory, the Python
// interpreter used for tag probing, build parallelism, and UI settings.
//
// Configuration validation is performed against a CUE schema (config_schema.cue) to
// ensure type safety and provide clear error messages for invalid configurations.
package config
