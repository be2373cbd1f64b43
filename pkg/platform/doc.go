// SPDX-License-Identifier: MPL-2.0

// Package platform provides cross-platform compatibility utilities.
//
// This package centralizes runtime.GOOS string constants and the Windows
// reserved-filename check used to warn when a project name would produce
// artifacts (wheels, .dist-info and .egg-info directories) that Windows
// cannot create.
package platform
