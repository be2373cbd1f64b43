// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatError(t *testing.T) {
	t.Parallel()

	t.Run("nil error returns nil", func(t *testing.T) {
		t.Parallel()

		if err := FormatError(nil, "test.cue"); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("non-CUE error is wrapped with the filename", func(t *testing.T) {
		t.Parallel()

		original := errors.New("some error")
		err := FormatError(original, "test.cue")
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "test.cue") {
			t.Errorf("error should contain the filename, got: %v", err)
		}
		if !errors.Is(err, original) {
			t.Errorf("wrapped error should unwrap to the original, got: %v", err)
		}
	})
}

func TestJSONPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     []string
		expected string
	}{
		{
			name:     "empty path",
			path:     []string{},
			expected: "",
		},
		{
			name:     "single element",
			path:     []string{"jobs"},
			expected: "jobs",
		},
		{
			name:     "nested path",
			path:     []string{"ui", "color_scheme"},
			expected: "ui.color_scheme",
		},
		{
			name:     "array index",
			path:     []string{"prebuild", "0", "command"},
			expected: "prebuild[0].command",
		},
		{
			name:     "multiple array indices",
			path:     []string{"prebuild", "0", "sources", "2"},
			expected: "prebuild[0].sources[2]",
		},
		{
			name:     "nested arrays",
			path:     []string{"items", "0", "values", "1"},
			expected: "items[0].values[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := jsonPath(tt.path); got != tt.expected {
				t.Errorf("jsonPath(%v) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}
