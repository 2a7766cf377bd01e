package confhdr

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/scmpbuild/internal/config"
	"github.com/goplus/scmpbuild/internal/run"
	"github.com/goplus/scmpbuild/internal/stage"
)

// generated are the configure outputs that are not wanted. Only the
// header is kept.
var generated = map[string]bool{
	"Makefile":      true,
	"config.status": true,
	"config.log":    true,
	"libtool":       true,
	"stamp-h1":      true,
}

// configure runs the upstream configure script in root for the target,
// keeps configure.h (and seccomp.h when produced) and throws the
// generated build files away.
func (s *Synthesizer) configure(ctx context.Context, root, outDir string, st Strategy) error {
	if s.Target == nil {
		return stage.New(stage.Header, stage.KindConfig, config.HeaderConfigure, errors.New("no target to pass as --host"))
	}
	script := filepath.Join(root, "configure")
	if fi, err := os.Stat(script); err != nil || fi.IsDir() {
		return stage.New(stage.Header, stage.KindMalformedSource, script, fs.ErrNotExist)
	}
	before, err := snapshot(root)
	if err != nil {
		return stage.New(stage.Header, stage.KindMalformedSource, root, err)
	}

	cmd := run.Command(script,
		"--enable-shared=no",
		"--disable-dependency-tracking",
		"--prefix="+outDir,
		"--host="+s.Target.Target,
	)
	cmd.Dir = root
	cmd.Env = s.env()
	s.logger().WithField("host", s.Target.Target).Info("running configure")
	_, runErr := s.Runner.Run(ctx, cmd)

	// Clean up even when configure failed half way.
	cleanErr := discard(root, before)
	if runErr != nil {
		return stage.New(stage.Header, stage.KindCompilation, cmd.String(), runErr)
	}
	if cleanErr != nil {
		return stage.New(stage.Header, stage.KindMalformedSource, root, cleanErr)
	}

	if err := keepOutput(filepath.Join(root, "configure.h"), filepath.Join(outDir, st.Marker)); err != nil {
		return err
	}
	if st.Output != "" {
		src := filepath.Join(root, st.Output)
		if _, err := os.Stat(src); err == nil {
			if err := keepOutput(src, filepath.Join(outDir, st.Output)); err != nil {
				return err
			}
		}
	}
	return nil
}

// keepOutput copies a configure output into the output directory.
func keepOutput(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return stage.New(stage.Header, stage.KindMalformedSource, src, err)
	}
	if err := writeIfChanged(dst, data); err != nil {
		return stage.New(stage.Header, stage.KindConfig, dst, err)
	}
	return nil
}

func (s *Synthesizer) env() []string {
	t := s.Target
	env := []string{"CC=" + t.CC, "AR=" + t.AR}
	if len(t.CFlags) > 0 {
		env = append(env, "CFLAGS="+strings.Join(t.CFlags, " "))
	}
	return env
}

// snapshot returns the generated-looking files that already exist under
// root so discard never removes files shipped with the source.
func snapshot(root string) (map[string]bool, error) {
	seen := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if !d.IsDir() && generated[d.Name()] {
			seen[path] = true
		}
		return nil
	})
	return seen, err
}

func discard(root string, keep map[string]bool) error {
	after, err := snapshot(root)
	if err != nil {
		return err
	}
	for path := range after {
		if keep[path] {
			continue
		}
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}
