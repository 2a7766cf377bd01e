// Package pipeline runs the probe-or-build sequence that makes libseccomp
// available to the linker.
package pipeline

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/apex/log"

	"github.com/goplus/scmpbuild/internal/confhdr"
	"github.com/goplus/scmpbuild/internal/config"
	"github.com/goplus/scmpbuild/internal/crossbuild"
	"github.com/goplus/scmpbuild/internal/env"
	"github.com/goplus/scmpbuild/internal/linkemit"
	"github.com/goplus/scmpbuild/internal/probe"
	"github.com/goplus/scmpbuild/internal/run"
	"github.com/goplus/scmpbuild/internal/source"
	"github.com/goplus/scmpbuild/internal/stage"
	"github.com/goplus/scmpbuild/internal/target"
	"github.com/goplus/scmpbuild/internal/units"
	"github.com/goplus/scmpbuild/internal/vcs"
)

// Deps are the collaborators of a run. Zero fields get working defaults.
type Deps struct {
	Runner     run.Runner
	VCS        vcs.VCS
	HTTPClient *http.Client
	Logger     log.Interface
	Getenv     func(string) string
}

func (d *Deps) fill() {
	if d.Logger == nil {
		d.Logger = log.Log
	}
	if d.Runner == nil {
		d.Runner = run.New(d.Logger)
	}
	if d.VCS == nil {
		d.VCS = vcs.NewGitVCS(d.Runner)
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
}

// Result is what a run produced.
type Result struct {
	Directive  linkemit.Directive
	Probe      probe.Result
	Target     *target.Target
	FromSource bool
	Root       string   // source tree, from-source builds only
	Units      []string // from-source builds only
	Archive    string   // from-source builds only
}

// Run probes for the library and, if it is missing, builds it from
// source. Exactly one of the two paths is taken. cfg must have been
// validated and have its environment overrides applied.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (*Result, error) {
	deps.fill()
	logger := deps.Logger

	t, err := ResolveTarget(cfg, deps.Getenv)
	if err != nil {
		return nil, err
	}
	logger.WithFields(log.Fields{"host": t.Host, "target": t.Target}).Debug("resolved target")

	p := &probe.Prober{
		Runner:     deps.Runner,
		Logger:     logger,
		Cross:      t.Cross(),
		AllowCross: deps.Getenv("PKG_CONFIG_ALLOW_CROSS") == "1",
	}
	res := p.Probe(ctx, cfg.Library.Name, cfg.Library.MinVersion)
	in := linkemit.Input{
		Probe:          res,
		Overrides:      cfg.Overrides,
		Library:        cfg.Library.Name,
		Feature:        cfg.Library.Feature,
		FeatureVersion: cfg.Library.FeatureVersion,
	}
	if res.Found {
		logger.WithField("version", res.Version).Info("using system library")
		return &Result{Directive: linkemit.Resolve(in), Probe: res, Target: t}, nil
	}
	if cfg.Source.Kind == config.SourceNone {
		return nil, stage.New(stage.Probe, stage.KindUnavailable, cfg.Library.Name, errors.New("not installed and no source fallback configured"))
	}

	logger.Info("system library not usable, building from source")
	b, err := buildFromSource(ctx, cfg, deps, t)
	if err != nil {
		return nil, err
	}
	in.Archive = b.Archive
	in.Includes = []string{filepath.Join(filepath.Dir(b.Archive), "include"), filepath.Join(b.Root, "include")}
	b.Directive = linkemit.Resolve(in)
	b.Probe = res
	return b, nil
}

// ResolveTarget resolves the build target from the configuration and the
// environment.
func ResolveTarget(cfg *config.Config, getenv func(string) string) (*target.Target, error) {
	t, err := target.Resolve(target.Options{
		Host:   cfg.Build.Host,
		Target: cfg.Build.Target,
		CC:     cfg.Build.CC,
		AR:     cfg.Build.AR,
		CFlags: cfg.Build.CFlags,
	}, getenv)
	if err != nil {
		return nil, stage.New(stage.Config, stage.KindConfig, "target", err)
	}
	return t, nil
}

// OutDir returns the configured output directory or the per-target
// default under the user cache directory.
func OutDir(cfg *config.Config, t *target.Target) (string, error) {
	if cfg.Build.OutDir != "" {
		return filepath.Abs(cfg.Build.OutDir)
	}
	return env.OutDir(t.Matrix)
}

// EnsureSource materializes the configured source tree.
func EnsureSource(ctx context.Context, cfg *config.Config, deps Deps) (source.Tree, error) {
	deps.fill()
	scratch := cfg.Source.Scratch
	if scratch == "" && cfg.Source.Kind == config.SourceArchive {
		dir, err := env.ScratchDir()
		if err != nil {
			return source.Tree{}, stage.New(stage.Source, stage.KindAcquisition, "scratch", err)
		}
		scratch = dir
	}
	sp := &source.Provider{
		VCS:        deps.VCS,
		Runner:     deps.Runner,
		HTTPClient: deps.HTTPClient,
		Logger:     deps.Logger,
	}
	return sp.Ensure(ctx, source.SpecFrom(cfg.Source, scratch))
}

func buildFromSource(ctx context.Context, cfg *config.Config, deps Deps, t *target.Target) (*Result, error) {
	outDir, err := OutDir(cfg, t)
	if err != nil {
		return nil, stage.New(stage.Config, stage.KindConfig, "out dir", err)
	}

	tree, err := EnsureSource(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	us, err := units.Collect(tree.Root, units.Options{
		SrcDir:   cfg.Build.SrcDir,
		Denylist: cfg.Build.Denylist,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, err
	}
	deps.Logger.WithField("count", len(us)).Info("collected translation units")

	hs := &confhdr.Synthesizer{Runner: deps.Runner, Target: t, Logger: deps.Logger}
	if err := hs.Synthesize(ctx, tree.Root, outDir, confhdr.StrategyFrom(cfg.Header)); err != nil {
		return nil, err
	}

	cb := &crossbuild.Builder{
		Runner:      deps.Runner,
		OutDir:      outDir,
		ArchiveName: cfg.Build.ArchiveName,
		Jobs:        cfg.Build.Jobs,
		Logger:      deps.Logger,
	}
	archive, err := cb.BuildArchive(ctx, us, crossbuild.IncludePaths(outDir, tree.Root), t)
	if err != nil {
		return nil, err
	}
	deps.Logger.WithField("archive", archive).Info("built static archive")
	return &Result{Target: t, FromSource: true, Root: tree.Root, Units: us, Archive: archive}, nil
}
