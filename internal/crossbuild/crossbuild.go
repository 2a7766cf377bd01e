// Package crossbuild compiles translation units directly with the target
// toolchain and archives them into a static library.
package crossbuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/goplus/scmpbuild/internal/run"
	"github.com/goplus/scmpbuild/internal/stage"
	"github.com/goplus/scmpbuild/internal/target"
)

const (
	objDir             = "obj"
	defaultArchiveName = "libseccomp.a"
)

// Builder produces the static archive in OutDir.
type Builder struct {
	Runner      run.Runner
	OutDir      string
	ArchiveName string // libseccomp.a when empty
	Jobs        int    // parallel compiles, runtime.NumCPU() when <= 0
	Logger      log.Interface
}

// IncludePaths returns the include search path for a from-source build:
// the generated headers first, then the tree's private and public
// headers.
func IncludePaths(outDir, root string) []string {
	return []string{
		outDir,
		filepath.Join(outDir, "include"),
		filepath.Join(root, "src"),
		root,
		filepath.Join(root, "include"),
	}
}

// BuildArchive compiles units for t and returns the path of the archive.
// Nothing is compiled when the build record in OutDir shows the archive
// was already produced from the same inputs.
func (b *Builder) BuildArchive(ctx context.Context, units, includes []string, t *target.Target) (string, error) {
	if len(units) == 0 {
		return "", stage.New(stage.Compile, stage.KindMalformedSource, "", errors.New("no translation units"))
	}
	objs, err := objectNames(units)
	if err != nil {
		return "", stage.New(stage.Compile, stage.KindMalformedSource, "", err)
	}
	if err := os.MkdirAll(b.OutDir, 0o755); err != nil {
		return "", stage.New(stage.Compile, stage.KindConfig, b.OutDir, err)
	}
	archive := filepath.Join(b.OutDir, b.archiveName())

	want, err := newRecord(units, includes, t, archive)
	if err != nil {
		return "", stage.New(stage.Compile, stage.KindMalformedSource, "", err)
	}
	if have, err := loadRecord(b.recordPath()); err == nil && have.matches(want) && exists(archive) {
		b.logger().WithField("archive", archive).Info("archive up to date")
		return archive, nil
	}

	// Nothing from a previous build may survive into this one.
	os.Remove(b.recordPath())
	os.Remove(archive)
	objRoot := filepath.Join(b.OutDir, objDir)
	if err := os.RemoveAll(objRoot); err != nil {
		return "", stage.New(stage.Compile, stage.KindCompilation, objRoot, err)
	}
	if err := os.MkdirAll(objRoot, 0o755); err != nil {
		return "", stage.New(stage.Compile, stage.KindCompilation, objRoot, err)
	}

	paths := make([]string, len(objs))
	for i, o := range objs {
		paths[i] = filepath.Join(objRoot, o)
	}
	b.logger().WithFields(log.Fields{"units": len(units), "target": t.Target, "cc": t.CC}).Info("compiling")
	if err := b.compile(ctx, units, paths, includes, t); err != nil {
		return "", err
	}
	if err := b.archive(ctx, archive, paths, t); err != nil {
		return "", err
	}

	if err := saveRecord(b.recordPath(), want); err != nil {
		b.logger().WithError(err).Warn("cannot write build record")
	}
	return archive, nil
}

func (b *Builder) compile(ctx context.Context, units, objs, includes []string, t *target.Target) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.jobs())
	for i, unit := range units {
		cmd := compileCmd(t, includes, unit, objs[i])
		g.Go(func() error {
			if _, err := b.Runner.Run(ctx, cmd); err != nil {
				return stage.New(stage.Compile, stage.KindCompilation, cmd.String(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func compileCmd(t *target.Target, includes []string, unit, obj string) *run.Cmd {
	args := make([]string, 0, len(t.CFlags)+len(includes)+4)
	args = append(args, t.CFlags...)
	for _, dir := range includes {
		args = append(args, "-I"+dir)
	}
	args = append(args, "-c", unit, "-o", obj)
	return run.Command(t.CC, args...)
}

// archive writes the archive under a temporary name and renames it into
// place, so a failed run never leaves a usable-looking library behind.
func (b *Builder) archive(ctx context.Context, archive string, objs []string, t *target.Target) error {
	tmp := archive + ".tmp"
	os.Remove(tmp)
	cmd := run.Command(t.AR, append([]string{"crs", tmp}, objs...)...)
	if _, err := b.Runner.Run(ctx, cmd); err != nil {
		os.Remove(tmp)
		return stage.New(stage.Compile, stage.KindCompilation, cmd.String(), err)
	}
	if err := os.Rename(tmp, archive); err != nil {
		os.Remove(tmp)
		return stage.New(stage.Compile, stage.KindCompilation, archive, err)
	}
	return nil
}

// objectNames maps each unit to <base>.o. Two units with the same base
// name would overwrite each other's object.
func objectNames(units []string) ([]string, error) {
	seen := make(map[string]string, len(units))
	objs := make([]string, len(units))
	for i, u := range units {
		o := strings.TrimSuffix(filepath.Base(u), filepath.Ext(u)) + ".o"
		if prev, ok := seen[o]; ok {
			return nil, fmt.Errorf("%s and %s both compile to %s", prev, u, o)
		}
		seen[o] = u
		objs[i] = o
	}
	return objs, nil
}

func (b *Builder) archiveName() string {
	if b.ArchiveName == "" {
		return defaultArchiveName
	}
	return b.ArchiveName
}

func (b *Builder) jobs() int {
	if b.Jobs <= 0 {
		return runtime.NumCPU()
	}
	return b.Jobs
}

func (b *Builder) logger() log.Interface {
	if b.Logger == nil {
		return log.Log
	}
	return b.Logger
}

func exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
