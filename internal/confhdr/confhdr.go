// Package confhdr produces the configuration headers libseccomp's sources
// include, without running its make based build.
package confhdr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/apex/log"

	"github.com/goplus/scmpbuild/internal/config"
	"github.com/goplus/scmpbuild/internal/run"
	"github.com/goplus/scmpbuild/internal/stage"
	"github.com/goplus/scmpbuild/internal/target"
	"github.com/goplus/scmpbuild/internal/version"
)

// Strategy selects how the headers are produced.
type Strategy struct {
	Kind     string // config.HeaderConfigure or config.HeaderTemplate
	Version  string // pinned version substituted into the template
	Template string // relative to the source root
	Output   string // relative to the output dir
	Marker   string // relative to the output dir
}

// StrategyFrom returns the strategy described by the header section of
// the configuration.
func StrategyFrom(c config.HeaderConfig) Strategy {
	return Strategy{
		Kind:     c.Strategy,
		Version:  c.Version,
		Template: c.Template,
		Output:   c.Output,
		Marker:   c.Marker,
	}
}

// Synthesizer writes the headers into an output directory that is later
// put on the compiler's include path.
type Synthesizer struct {
	Runner run.Runner     // runs configure
	Target *target.Target // passed to configure as --host, required by the configure strategy
	Logger log.Interface
}

// Synthesize produces the headers for the tree at root in outDir. An
// output directory that cannot be written is a configuration error.
func (s *Synthesizer) Synthesize(ctx context.Context, root, outDir string, st Strategy) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return stage.New(stage.Header, stage.KindConfig, outDir, err)
	}
	switch st.Kind {
	case config.HeaderTemplate:
		return s.template(root, outDir, st)
	case config.HeaderConfigure:
		return s.configure(ctx, root, outDir, st)
	}
	return stage.New(stage.Header, stage.KindConfig, st.Kind, errors.New("unknown header strategy"))
}

func (s *Synthesizer) logger() log.Interface {
	if s.Logger == nil {
		return log.Log
	}
	return s.Logger
}

var leftover = regexp.MustCompile(`@VERSION_[A-Z]+@`)

func (s *Synthesizer) template(root, outDir string, st Strategy) error {
	v, err := version.ParseTriple(st.Version)
	if err != nil {
		return stage.New(stage.Header, stage.KindConfig, st.Version, err)
	}
	in := filepath.Join(root, st.Template)
	data, err := os.ReadFile(in)
	if err != nil {
		return stage.New(stage.Header, stage.KindMalformedSource, in, err)
	}
	data = Expand(data, v)
	if m := leftover.Find(data); m != nil {
		return stage.New(stage.Header, stage.KindMalformedSource, in, fmt.Errorf("unexpanded token %s", m))
	}

	out := filepath.Join(outDir, st.Output)
	if err := writeIfChanged(out, data); err != nil {
		return stage.New(stage.Header, stage.KindConfig, out, err)
	}
	marker := filepath.Join(outDir, st.Marker)
	if err := writeIfChanged(marker, nil); err != nil {
		return stage.New(stage.Header, stage.KindConfig, marker, err)
	}
	s.logger().WithFields(log.Fields{"header": out, "version": v}).Info("header generated from template")
	return nil
}

// Expand replaces the version tokens of a seccomp.h.in template.
func Expand(tmpl []byte, v version.Triple) []byte {
	r := bytes.ReplaceAll(tmpl, []byte("@VERSION_MAJOR@"), []byte(strconv.Itoa(v.Major)))
	r = bytes.ReplaceAll(r, []byte("@VERSION_MINOR@"), []byte(strconv.Itoa(v.Minor)))
	return bytes.ReplaceAll(r, []byte("@VERSION_MICRO@"), []byte(strconv.Itoa(v.Micro)))
}

// writeIfChanged leaves path untouched when it already holds data, so
// repeated runs keep the header's mtime and do not trigger rebuilds.
func writeIfChanged(path string, data []byte) error {
	if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, data) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
