// Package probe queries the host's pkg-config registry for an installed
// development package.
package probe

import (
	"context"
	"strings"

	"github.com/apex/log"
	"github.com/google/shlex"

	"github.com/goplus/scmpbuild/internal/run"
	"github.com/goplus/scmpbuild/internal/version"
)

// Result is the outcome of a probe. The zero value means Absent.
type Result struct {
	Found        bool
	Version      string
	LinkPaths    []string // -L directories, in pkg-config order
	Libs         []string // -l names without the prefix
	IncludePaths []string // -I directories
	CFlags       []string // remaining compiler flags
}

// SearchPath returns the first link path, or "" if pkg-config reported
// none (the library lives in a default linker directory).
func (r Result) SearchPath() string {
	if len(r.LinkPaths) == 0 {
		return ""
	}
	return r.LinkPaths[0]
}

// Prober runs pkg-config through a run.Runner.
type Prober struct {
	Runner run.Runner
	Logger log.Interface

	// PkgConfig is the pkg-config binary, "pkg-config" when empty.
	PkgConfig string

	// Cross is set when the build target differs from the host. Host
	// packages are then ignored unless AllowCross is also set.
	Cross      bool
	AllowCross bool
}

// Probe looks up name. Registry errors, a missing package, or an installed
// version lower than minVersion all yield an Absent result: building from
// source is the fallback, not a failure.
func (p *Prober) Probe(ctx context.Context, name, minVersion string) Result {
	logger := p.logger().WithField("package", name)
	if p.Cross && !p.AllowCross {
		logger.Info("cross build: ignoring host pkg-config registry (set PKG_CONFIG_ALLOW_CROSS=1 to override)")
		return Result{}
	}

	out, err := p.query(ctx, "--modversion", name)
	if err != nil {
		logger.WithError(err).Info("not found in pkg-config registry")
		return Result{}
	}
	ver := strings.TrimSpace(string(out))
	if ver == "" {
		logger.Warn("pkg-config reported an empty version")
		return Result{}
	}
	if !version.AtLeast(ver, minVersion) {
		logger.Warnf("installed version %s is older than required %s", ver, minVersion)
		return Result{}
	}

	res := Result{Found: true, Version: ver}
	queries := []struct {
		flag   string
		prefix string
		dst    *[]string
	}{
		{"--libs-only-L", "-L", &res.LinkPaths},
		{"--libs-only-l", "-l", &res.Libs},
		{"--cflags-only-I", "-I", &res.IncludePaths},
		{"--cflags-only-other", "", &res.CFlags},
	}
	for _, q := range queries {
		out, err := p.query(ctx, q.flag, name)
		if err != nil {
			logger.WithError(err).Warnf("pkg-config %s failed", q.flag)
			return Result{}
		}
		fields, err := shlex.Split(string(out))
		if err != nil {
			logger.WithError(err).Warnf("cannot parse pkg-config %s output", q.flag)
			return Result{}
		}
		for _, f := range fields {
			if q.prefix != "" {
				f = strings.TrimPrefix(f, q.prefix)
			}
			if f != "" {
				*q.dst = append(*q.dst, f)
			}
		}
	}
	logger.Infof("found version %s", ver)
	return res
}

func (p *Prober) query(ctx context.Context, args ...string) ([]byte, error) {
	bin := p.PkgConfig
	if bin == "" {
		bin = "pkg-config"
	}
	return p.Runner.Run(ctx, run.Command(bin, args...))
}

func (p *Prober) logger() log.Interface {
	if p.Logger == nil {
		return log.Log
	}
	return p.Logger
}
