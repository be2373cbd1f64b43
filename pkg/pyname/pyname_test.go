// SPDX-License-Identifier: MPL-2.0

package pyname

import "testing"

func TestSafeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain name unchanged", in: "requests", want: "requests"},
		{name: "underscore becomes dash", in: "my_project", want: "my-project"},
		{name: "run collapses to single dash", in: "my__weird++name", want: "my-weird-name"},
		{name: "dots survive", in: "zope.interface", want: "zope.interface"},
		{name: "spaces collapse", in: "hello  world", want: "hello-world"},
		{name: "mixed case preserved", in: "PyYAML", want: "PyYAML"},
		{name: "leading and trailing junk", in: "!!pkg!!", want: "-pkg-"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := SafeName(tt.in); got != tt.want {
				t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSafeNameIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"a b c", "x__y", "zope.interface", "weird!!name", "already-safe"}
	for _, in := range inputs {
		once := SafeName(in)
		if twice := SafeName(once); twice != once {
			t.Errorf("SafeName not idempotent on %q: %q != %q", in, twice, once)
		}
	}
}

func TestSafeExtra(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain extra unchanged", in: "test", want: "test"},
		{name: "uppercased input lowered", in: "Test", want: "test"},
		{name: "dash survives", in: "dev-tools", want: "dev-tools"},
		{name: "dot survives", in: "a.b", want: "a.b"},
		{name: "run collapses to single underscore", in: "weird  extra!!", want: "weird_extra_"},
		{name: "plus signs collapse", in: "c++", want: "c_"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := SafeExtra(tt.in); got != tt.want {
				t.Errorf("SafeExtra(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSafeExtraIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"Test Extra", "dev-tools", "c++", "a.b"}
	for _, in := range inputs {
		once := SafeExtra(in)
		if twice := SafeExtra(once); twice != once {
			t.Errorf("SafeExtra not idempotent on %q: %q != %q", in, twice, once)
		}
	}
}

func TestToFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"my-project", "my_project"},
		{"my_project", "my_project"},
		{"1.0.0-beta", "1.0.0_beta"},
		{"plain", "plain"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ToFilename(tt.in); got != tt.want {
			t.Errorf("ToFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNameVer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		safeName string
		version  string
		want     string
	}{
		{name: "simple", safeName: "pkg", version: "0.1.0", want: "pkg-0.1.0"},
		{name: "dashed name escaped", safeName: "my-project", version: "1.0", want: "my_project-1.0"},
		{name: "version kept as-is", safeName: "pkg", version: "1.0rc1", want: "pkg-1.0rc1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := NameVer(tt.safeName, tt.version); got != tt.want {
				t.Errorf("NameVer(%q, %q) = %q, want %q", tt.safeName, tt.version, got, tt.want)
			}
		})
	}
}
