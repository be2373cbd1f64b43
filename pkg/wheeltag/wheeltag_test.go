// SPDX-License-Identifier: MPL-2.0

package wheeltag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// stubInterpreter writes a fake python executable that prints the given
// probe lines.
func stubInterpreter(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "python")
	script := "#!/bin/sh\ncat <<'EOF'\n" + strings.Join(lines, "\n") + "\nEOF\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write stub interpreter: %v", err)
	}
	return path
}

func TestTagString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		tag  Tag
		want string
	}{
		{name: "universal", tag: Universal, want: "py3-none-any"},
		{name: "legacy universal", tag: UniversalPy2Py3, want: "py2.py3-none-any"},
		{name: "stable abi", tag: Tag{Interpreter: "cp38", ABI: "abi3", Platform: "linux_x86_64"}, want: "cp38-abi3-linux_x86_64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.tag.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsPure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tag  string
		want bool
	}{
		{tag: "py3-none-any", want: true},
		{tag: "py2.py3-none-any", want: true},
		{tag: "cp311-cp311-linux_x86_64", want: false},
		{tag: "cp38-abi3-linux_x86_64", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			t.Parallel()

			if got := IsPure(tt.tag); got != tt.want {
				t.Errorf("IsPure(%q) = %v, want %v", tt.tag, got, tt.want)
			}
		})
	}

	if !Universal.IsPure() {
		t.Error("Universal.IsPure() = false, want true")
	}
	if (Tag{Interpreter: "cp311", ABI: "cp311", Platform: "linux_x86_64"}).IsPure() {
		t.Error("binary tag reported as pure")
	}
}

func TestParseAbiTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    AbiTarget
		wantErr bool
	}{
		{input: "3.8", want: AbiTarget{Major: 3, Minor: 8}},
		{input: "3.2", want: AbiTarget{Major: 3, Minor: 2}},
		{input: "3.12", want: AbiTarget{Major: 3, Minor: 12}},
		{input: "38", wantErr: true},
		{input: "3", wantErr: true},
		{input: "x.8", wantErr: true},
		{input: "3.y", wantErr: true},
		{input: "3.1", wantErr: true},
		{input: "2.8", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseAbiTarget(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedAbiTarget) {
					t.Fatalf("ParseAbiTarget(%q) error = %v, want ErrUnsupportedAbiTarget", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAbiTarget(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseAbiTarget(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolvePure(t *testing.T) {
	t.Parallel()

	tag, err := Resolve(context.Background(), Options{Pure: true})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := tag.String(); got != "py3-none-any" {
		t.Errorf("Resolve() = %q, want py3-none-any", got)
	}
}

func TestResolveLimitedAPI(t *testing.T) {
	t.Parallel()

	interpreter := stubInterpreter(t, "cp311", "cp311", "linux_x86_64")
	tag, err := Resolve(context.Background(), Options{
		LimitedAPI:  &AbiTarget{Major: 3, Minor: 8},
		Interpreter: interpreter,
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := tag.String(); got != "cp38-abi3-linux_x86_64" {
		t.Errorf("Resolve() = %q, want cp38-abi3-linux_x86_64", got)
	}
}

func TestResolveLimitedAPIWithoutInterpreter(t *testing.T) {
	t.Parallel()

	tag, err := Resolve(context.Background(), Options{LimitedAPI: &AbiTarget{Major: 3, Minor: 9}})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := "cp39-abi3-" + fallbackPlatform()
	if got := tag.String(); got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestResolveLimitedAPIInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target AbiTarget
	}{
		{name: "minor below 2", target: AbiTarget{Major: 3, Minor: 1}},
		{name: "major not 3", target: AbiTarget{Major: 2, Minor: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Resolve(context.Background(), Options{LimitedAPI: &tt.target})
			if !errors.Is(err, ErrUnsupportedAbiTarget) {
				t.Fatalf("Resolve() error = %v, want ErrUnsupportedAbiTarget", err)
			}
			var targetErr *UnsupportedAbiTargetError
			if !errors.As(err, &targetErr) {
				t.Fatalf("Resolve() error = %v, want *UnsupportedAbiTargetError", err)
			}
			if targetErr.Reason != "cannot target abi below 3.2" {
				t.Errorf("Reason = %q, want %q", targetErr.Reason, "cannot target abi below 3.2")
			}
		})
	}
}

func TestResolveExactInterpreter(t *testing.T) {
	t.Parallel()

	interpreter := stubInterpreter(t, "cp311", "CP311", "linux_x86_64")
	tag, err := Resolve(context.Background(), Options{Interpreter: interpreter})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := tag.String(); got != "cp311-cp311-linux_x86_64" {
		t.Errorf("Resolve() = %q, want cp311-cp311-linux_x86_64 (abi lowercased)", got)
	}
}

func TestResolveExactRequiresInterpreter(t *testing.T) {
	t.Parallel()

	_, err := Resolve(context.Background(), Options{})
	if err == nil {
		t.Fatal("Resolve() expected an error without an interpreter")
	}
}

func TestProbeCachesResults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "python")
	countFile := path + ".count"
	script := "#!/bin/sh\necho run >> \"$0.count\"\ncat <<'EOF'\ncp310\ncp310\nlinux_aarch64\nEOF\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write stub interpreter: %v", err)
	}

	for range 2 {
		facts, err := Probe(context.Background(), path)
		if err != nil {
			t.Fatalf("Probe() error = %v", err)
		}
		if facts.Platform != "linux_aarch64" {
			t.Fatalf("Probe() platform = %q, want linux_aarch64", facts.Platform)
		}
	}

	count, err := os.ReadFile(countFile)
	if err != nil {
		t.Fatalf("failed to read probe counter: %v", err)
	}
	if runs := strings.Count(string(count), "run"); runs != 1 {
		t.Errorf("interpreter probed %d times, want 1", runs)
	}
}

func TestProbeMissingInterpreter(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := Probe(context.Background(), missing); err == nil {
		t.Fatal("Probe() expected an error for a missing interpreter")
	}
}
