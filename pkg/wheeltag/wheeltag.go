// SPDX-License-Identifier: MPL-2.0

// Package wheeltag resolves the interpreter-abi-platform compatibility
// tag embedded in wheel filenames and the WHEEL control file.
//
// Purelib (interpreter-independent) builds always carry the universal
// tag. Non-purelib builds either target the CPython stable ABI
// (cp<major><minor>-abi3-<platform>) or the exact interpreter the
// package was built against, whose facts come from probing a python
// executable. The purelib classification and the tag are two views of
// one fact: a build is purelib exactly when its tag ends in "none-any".
package wheeltag

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"wheelwright-cli/pkg/platform"
)

// ErrUnsupportedAbiTarget is the sentinel error wrapped by
// UnsupportedAbiTargetError.
var ErrUnsupportedAbiTarget = errors.New("unsupported abi target")

// UnsupportedAbiTargetError is returned for stable-ABI requests the wheel
// format cannot express: anything but a (3, >=2) major.minor pair. It
// wraps ErrUnsupportedAbiTarget for errors.Is() compatibility.
type UnsupportedAbiTargetError struct {
	Target string
	Reason string
}

func (e *UnsupportedAbiTargetError) Error() string {
	return fmt.Sprintf("abi target %s: %s", e.Target, e.Reason)
}

func (e *UnsupportedAbiTargetError) Unwrap() error { return ErrUnsupportedAbiTarget }

// Tag is one interpreter-abi-platform compatibility triple.
type Tag struct {
	Interpreter string
	ABI         string
	Platform    string
}

var (
	// Universal is the tag of interpreter-independent builds.
	Universal = Tag{Interpreter: "py3", ABI: "none", Platform: "any"}
	// UniversalPy2Py3 is the legacy two-major universal tag, kept for
	// projects that still publish archives straddling Python 2 and 3.
	UniversalPy2Py3 = Tag{Interpreter: "py2.py3", ABI: "none", Platform: "any"}
)

func (t Tag) String() string {
	return t.Interpreter + "-" + t.ABI + "-" + t.Platform
}

// IsPure reports whether t marks an interpreter-independent build.
func (t Tag) IsPure() bool { return IsPure(t.String()) }

// IsPure reports whether a rendered tag marks an interpreter-independent
// build, which is the case exactly when it ends in "none-any".
func IsPure(tag string) bool { return strings.HasSuffix(tag, "none-any") }

// AbiTarget is a requested stable-ABI floor, e.g. {3, 8} for cp38-abi3.
type AbiTarget struct {
	Major int
	Minor int
}

func (t AbiTarget) String() string {
	return strconv.Itoa(t.Major) + "." + strconv.Itoa(t.Minor)
}

func (t AbiTarget) validate() error {
	if t.Major != 3 || t.Minor < 2 {
		return &UnsupportedAbiTargetError{Target: t.String(), Reason: "cannot target abi below 3.2"}
	}
	return nil
}

// ParseAbiTarget parses a "major.minor" pair such as "3.8".
func ParseAbiTarget(s string) (AbiTarget, error) {
	majorText, minorText, ok := strings.Cut(s, ".")
	if !ok {
		return AbiTarget{}, &UnsupportedAbiTargetError{Target: s, Reason: "not a major.minor pair"}
	}
	major, err := strconv.Atoi(majorText)
	if err != nil {
		return AbiTarget{}, &UnsupportedAbiTargetError{Target: s, Reason: "not a major.minor pair"}
	}
	minor, err := strconv.Atoi(minorText)
	if err != nil {
		return AbiTarget{}, &UnsupportedAbiTargetError{Target: s, Reason: "not a major.minor pair"}
	}
	target := AbiTarget{Major: major, Minor: minor}
	if err := target.validate(); err != nil {
		return AbiTarget{}, err
	}
	return target, nil
}

// Options configures Resolve.
type Options struct {
	// Pure marks an interpreter-independent build; the other fields are
	// ignored when set.
	Pure bool
	// LimitedAPI requests the stable-ABI tag form instead of the exact
	// interpreter tag.
	LimitedAPI *AbiTarget
	// Interpreter is the python executable probed for interpreter facts.
	// When empty, the platform falls back to host facts derived from the
	// Go runtime; exact-interpreter tags cannot be resolved without one.
	Interpreter string
}

// Resolve determines the compatibility tag for a build.
func Resolve(ctx context.Context, opts Options) (Tag, error) {
	if opts.Pure {
		return Universal, nil
	}

	if opts.LimitedAPI != nil {
		target := *opts.LimitedAPI
		if err := target.validate(); err != nil {
			return Tag{}, err
		}
		platform, err := resolvePlatform(ctx, opts.Interpreter)
		if err != nil {
			return Tag{}, err
		}
		return Tag{
			Interpreter: fmt.Sprintf("cp%d%d", target.Major, target.Minor),
			ABI:         "abi3",
			Platform:    platform,
		}, nil
	}

	if opts.Interpreter == "" {
		return Tag{}, errors.New("resolving an exact interpreter tag requires a python interpreter; configure one or request the stable abi")
	}
	facts, err := Probe(ctx, opts.Interpreter)
	if err != nil {
		return Tag{}, err
	}
	return Tag{
		Interpreter: facts.Interpreter,
		ABI:         strings.ToLower(facts.ABI),
		Platform:    facts.Platform,
	}, nil
}

// Facts are the interpreter facts a probe reports.
type Facts struct {
	Interpreter string // implementation code plus version, e.g. cp311
	ABI         string // abi tag, e.g. cp311
	Platform    string // normalized platform, e.g. linux_x86_64
}

// probeScript prints three lines: interpreter code+version, abi tag and
// normalized platform. Stdlib-only so it runs on bare interpreters.
const probeScript = `import sys, sysconfig

def norm(s):
    return s.replace("-", "_").replace(".", "_")

impl = sys.implementation.name
code = {"cpython": "cp", "pypy": "pp", "ironpython": "ip", "jython": "jy"}.get(impl, impl)
print(code + "%d%d" % sys.version_info[:2])

soabi = sysconfig.get_config_var("SOABI") or ""
if soabi.startswith("cpython"):
    print("cp" + soabi.split("-")[1])
elif soabi.startswith("pypy"):
    print(norm("-".join(soabi.split("-")[:2])))
elif soabi:
    print(norm(soabi))
else:
    print("none")

print(norm(sysconfig.get_platform()))
`

var (
	probeMu    sync.Mutex
	probeCache = map[string]Facts{}
)

// Probe runs the interpreter once and reports its facts. Results are
// cached per executable for the life of the process; failures are not.
func Probe(ctx context.Context, interpreter string) (Facts, error) {
	probeMu.Lock()
	defer probeMu.Unlock()

	if facts, ok := probeCache[interpreter]; ok {
		return facts, nil
	}

	out, err := exec.CommandContext(ctx, interpreter, "-c", probeScript).Output()
	if err != nil {
		return Facts{}, fmt.Errorf("failed to probe interpreter %s: %w", interpreter, err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 3 {
		return Facts{}, fmt.Errorf("failed to probe interpreter %s: short response %q", interpreter, string(out))
	}
	facts := Facts{
		Interpreter: strings.TrimSpace(lines[0]),
		ABI:         strings.TrimSpace(lines[1]),
		Platform:    strings.TrimSpace(lines[2]),
	}
	probeCache[interpreter] = facts
	return facts, nil
}

func resolvePlatform(ctx context.Context, interpreter string) (string, error) {
	if interpreter == "" {
		return fallbackPlatform(), nil
	}
	facts, err := Probe(ctx, interpreter)
	if err != nil {
		return "", err
	}
	return facts.Platform, nil
}

// fallbackPlatform approximates the interpreter's platform tag from the
// Go runtime. Coarse on purpose: it covers abi3 builds on hosts without
// a usable python, not the full platform-tag taxonomy.
func fallbackPlatform() string {
	switch runtime.GOOS {
	case platform.Linux:
		switch runtime.GOARCH {
		case "amd64":
			return "linux_x86_64"
		case "arm64":
			return "linux_aarch64"
		case "386":
			return "linux_i686"
		case "arm":
			return "linux_armv7l"
		}
	case platform.Darwin:
		if runtime.GOARCH == "arm64" {
			return "macosx_11_0_arm64"
		}
		return "macosx_10_9_x86_64"
	case platform.Windows:
		switch runtime.GOARCH {
		case "amd64":
			return "win_amd64"
		case "arm64":
			return "win_arm64"
		case "386":
			return "win32"
		}
	}
	return runtime.GOOS + "_" + runtime.GOARCH
}
