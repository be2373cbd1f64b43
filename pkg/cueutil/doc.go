// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates user-supplied CUE documents against embedded
// schemas.
//
// The expected flow compiles the schema once, then unifies each document
// with it:
//
//	//go:embed config_schema.cue
//	var configSchema string
//
//	schema, err := cueutil.Compile(configSchema, "#Config")
//	if err != nil { ... }
//	value, err := schema.Unify(data, "config.cue")
//
// Violations come back already formatted for terminal users in
// "<file>: <json-path>: <message>" form; see FormatError.
package cueutil
