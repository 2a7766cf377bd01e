// Package target resolves the host and target triples of a build and the
// C toolchain used to compile for the target.
package target

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/google/shlex"
)

// Target is the resolved (host, target, toolchain) tuple. It is computed
// once per build and never modified.
type Target struct {
	Host   string   // host triple, e.g. x86_64-unknown-linux-gnu
	Target string   // target triple
	CC     string   // C compiler
	AR     string   // archiver
	CFlags []string // extra compiler flags
	Matrix string   // "<goarch>-<goos>" of the target, e.g. arm64-linux
}

// Cross reports whether the target differs from the host.
func (t *Target) Cross() bool {
	return t.Host != t.Target
}

// Options are the explicitly configured values. Empty fields are resolved
// from the environment or from the host.
type Options struct {
	Host   string
	Target string
	CC     string
	AR     string
	CFlags []string
}

// Resolve computes the Target. getenv is usually os.Getenv.
//
// The target triple comes from opts, then $TARGET, then the host. The
// compiler comes from opts, then $CC_<target> (dashes replaced by
// underscores). Otherwise a cross build uses <triple>-gcc and a native
// build uses $CC or cc. AR is resolved the same way.
// $CFLAGS is split with shell quoting rules and appended to opts.CFlags.
func Resolve(opts Options, getenv func(string) string) (*Target, error) {
	host := firstNonEmpty(opts.Host, getenv("HOST"))
	if host == "" {
		var err error
		if host, err = HostTriple(runtime.GOOS, runtime.GOARCH); err != nil {
			return nil, err
		}
	}
	triple := firstNonEmpty(opts.Target, getenv("TARGET"), host)

	p, err := Parse(triple)
	if err != nil {
		return nil, err
	}
	if p.OS != "linux" {
		return nil, fmt.Errorf("target %s: libseccomp only supports linux", triple)
	}
	goarch, err := p.GOARCH()
	if err != nil {
		return nil, err
	}

	t := &Target{
		Host:   host,
		Target: triple,
		Matrix: goarch + "-" + p.OS,
	}
	tool := func(configured, name, fallback string) string {
		key := strings.ToUpper(name) + "_" + strings.ReplaceAll(triple, "-", "_")
		if v := firstNonEmpty(configured, getenv(key)); v != "" {
			return v
		}
		if t.Cross() {
			return p.Prefix() + "-" + fallback
		}
		return firstNonEmpty(getenv(strings.ToUpper(name)), name)
	}
	t.CC = tool(opts.CC, "cc", "gcc")
	t.AR = tool(opts.AR, "ar", "ar")

	t.CFlags = append(t.CFlags, opts.CFlags...)
	if v := getenv("CFLAGS"); v != "" {
		extra, err := shlex.Split(v)
		if err != nil {
			return nil, fmt.Errorf("CFLAGS: %w", err)
		}
		t.CFlags = append(t.CFlags, extra...)
	}
	return t, nil
}

// Triple is a parsed arch-vendor-os-env descriptor.
type Triple struct {
	Arch   string
	Vendor string // may be empty
	OS     string
	Env    string // may be empty
}

var vendors = map[string]bool{"unknown": true, "pc": true, "apple": true, "none": true}

// Parse splits a target triple. Both the three part form
// (aarch64-linux-gnu) and the four part form (x86_64-unknown-linux-gnu)
// are accepted.
func Parse(s string) (Triple, error) {
	parts := strings.Split(s, "-")
	var t Triple
	switch {
	case len(parts) == 4:
		t = Triple{Arch: parts[0], Vendor: parts[1], OS: parts[2], Env: parts[3]}
	case len(parts) == 3 && vendors[parts[1]]:
		t = Triple{Arch: parts[0], Vendor: parts[1], OS: parts[2]}
	case len(parts) == 3:
		t = Triple{Arch: parts[0], OS: parts[1], Env: parts[2]}
	case len(parts) == 2:
		t = Triple{Arch: parts[0], OS: parts[1]}
	default:
		return t, fmt.Errorf("invalid target triple %q", s)
	}
	for _, p := range parts {
		if p == "" {
			return t, fmt.Errorf("invalid target triple %q", s)
		}
	}
	return t, nil
}

// Prefix is the GNU toolchain prefix: the triple without the vendor.
func (t Triple) Prefix() string {
	parts := []string{t.Arch, t.OS}
	if t.Env != "" {
		parts = append(parts, t.Env)
	}
	return strings.Join(parts, "-")
}

// GOARCH maps the triple architecture to its Go name.
func (t Triple) GOARCH() (string, error) {
	switch a := t.Arch; {
	case a == "x86_64":
		return "amd64", nil
	case a == "aarch64":
		return "arm64", nil
	case len(a) == 4 && a[0] == 'i' && strings.HasSuffix(a, "86"):
		return "386", nil
	case strings.HasPrefix(a, "arm"):
		return "arm", nil
	case a == "riscv64", a == "s390x", a == "mips", a == "mips64":
		return a, nil
	case a == "mipsel":
		return "mipsle", nil
	case a == "mips64el":
		return "mips64le", nil
	case a == "powerpc64le":
		return "ppc64le", nil
	case a == "powerpc64":
		return "ppc64", nil
	case a == "loongarch64":
		return "loong64", nil
	}
	return "", fmt.Errorf("unsupported architecture %q", t.Arch)
}

// HostTriple returns the triple for a GOOS/GOARCH pair.
func HostTriple(goos, goarch string) (string, error) {
	arch, ok := map[string]string{
		"amd64":    "x86_64",
		"arm64":    "aarch64",
		"386":      "i686",
		"arm":      "armv7",
		"riscv64":  "riscv64",
		"s390x":    "s390x",
		"ppc64le":  "powerpc64le",
		"ppc64":    "powerpc64",
		"mips64le": "mips64el",
		"loong64":  "loongarch64",
	}[goarch]
	if !ok {
		return "", fmt.Errorf("unsupported GOARCH %q", goarch)
	}
	switch goos {
	case "linux":
		if goarch == "arm" {
			return arch + "-unknown-linux-gnueabihf", nil
		}
		return arch + "-unknown-linux-gnu", nil
	case "darwin":
		return arch + "-apple-darwin", nil
	}
	return arch + "-unknown-" + goos, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
