// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// MaxFileSize is the largest document Unify accepts (5MB). CUE evaluation
// cost grows with input size, and no configuration file has a legitimate
// reason to come near the cap.
const MaxFileSize int64 = 5 * 1024 * 1024

// Schema is a compiled CUE definition that user-supplied documents are
// validated against. Compile once, unify many times. The zero value is not
// usable; build one with Compile.
type Schema struct {
	ctx *cue.Context
	def cue.Value
}

// Compile builds a Schema from CUE source (typically a go:embed constant)
// and the path of the definition inside it, e.g. "#Config". A Compile error
// means the embedded schema itself is broken, not that user input is bad.
func Compile(source, defPath string) (*Schema, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(source)
	if root.Err() != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", root.Err())
	}
	def := root.LookupPath(cue.ParsePath(defPath))
	if def.Err() != nil {
		return nil, fmt.Errorf("schema definition %s not found: %w", defPath, def.Err())
	}
	return &Schema{ctx: ctx, def: def}, nil
}

// Unify validates data against the schema and returns the unified value.
// Optional fields may be absent; every field present must satisfy its
// constraint. filename appears in error messages only.
func (s *Schema) Unify(data []byte, filename string) (cue.Value, error) {
	return s.unify(data, filename, false)
}

// UnifyConcrete is Unify for complete documents: fields the schema does not
// mark optional must be present and concrete.
func (s *Schema) UnifyConcrete(data []byte, filename string) (cue.Value, error) {
	return s.unify(data, filename, true)
}

func (s *Schema) unify(data []byte, filename string, concrete bool) (cue.Value, error) {
	if int64(len(data)) > MaxFileSize {
		return cue.Value{}, fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes",
			filename, len(data), MaxFileSize)
	}
	doc := s.ctx.CompileBytes(data, cue.Filename(filename))
	if doc.Err() != nil {
		return cue.Value{}, FormatError(doc.Err(), filename)
	}
	unified := s.def.Unify(doc)
	if err := unified.Validate(cue.Concrete(concrete)); err != nil {
		return cue.Value{}, FormatError(err, filename)
	}
	return unified, nil
}
