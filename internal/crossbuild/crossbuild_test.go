package crossbuild

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/google/go-cmp/cmp"

	"github.com/goplus/scmpbuild/internal/run"
	"github.com/goplus/scmpbuild/internal/stage"
	"github.com/goplus/scmpbuild/internal/target"
)

var quiet = &log.Logger{Handler: discard.Default, Level: log.DebugLevel}

var arm64 = &target.Target{
	Host:   "x86_64-unknown-linux-gnu",
	Target: "aarch64-unknown-linux-gnu",
	CC:     "aarch64-linux-gnu-gcc",
	AR:     "aarch64-linux-gnu-ar",
	CFlags: []string{"-O2", "-fPIC"},
}

// toolchain simulates a compiler that writes one object per -c and an
// archiver that writes the member names, one per line.
type toolchain struct {
	mu       sync.Mutex
	compiled []string
	archives int
	fail     string // base name of a unit that does not compile
	failAR   bool
}

func (tc *toolchain) Run(ctx context.Context, c *run.Cmd) ([]byte, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	switch c.Name {
	case arm64.CC:
		i := slices.Index(c.Args, "-c")
		unit, obj := c.Args[i+1], c.Args[i+3]
		if filepath.Base(unit) == tc.fail {
			return nil, &run.ExitError{Cmd: c.String(), Output: []byte(unit + ":1:1: error: expected ';'\n"), Err: errors.New("exit status 1")}
		}
		tc.compiled = append(tc.compiled, filepath.Base(unit))
		return nil, os.WriteFile(obj, []byte(unit), 0o644)
	case arm64.AR:
		tc.archives++
		if tc.failAR {
			os.WriteFile(c.Args[1], []byte("partial"), 0o644)
			return nil, &run.ExitError{Cmd: c.String(), Err: errors.New("exit status 1")}
		}
		var members []string
		for _, obj := range c.Args[2:] {
			if _, err := os.Stat(obj); err != nil {
				return nil, err
			}
			members = append(members, filepath.Base(obj))
		}
		return nil, os.WriteFile(c.Args[1], []byte(strings.Join(members, "\n")), 0o644)
	}
	return nil, errors.New("unexpected command " + c.String())
}

func sources(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	root := t.TempDir()
	var units []string
	for _, n := range names {
		p := filepath.Join(root, "src", n)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("int "+strings.TrimSuffix(n, ".c")+";\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		units = append(units, p)
	}
	return root, units
}

func members(t *testing.T, archive string) []string {
	t.Helper()
	data, err := os.ReadFile(archive)
	if err != nil {
		t.Fatal(err)
	}
	m := strings.Split(string(data), "\n")
	slices.Sort(m)
	return m
}

func TestBuildArchiveMembership(t *testing.T) {
	root, units := sources(t, "api.c", "arch.c", "db.c", "gen_pfc.c", "system.c")
	out := t.TempDir()
	// A stray object from some earlier build must not reach the archive.
	if err := os.MkdirAll(filepath.Join(out, objDir), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(out, objDir, "arch-syscall-dump.o"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	tc := &toolchain{}
	b := &Builder{Runner: tc, OutDir: out, Jobs: 2, Logger: quiet}

	archive, err := b.BuildArchive(context.Background(), units, IncludePaths(out, root), arm64)
	if err != nil {
		t.Fatalf("BuildArchive failed: %v", err)
	}
	if archive != filepath.Join(out, "libseccomp.a") {
		t.Errorf("archive = %q", archive)
	}
	want := []string{"api.o", "arch.o", "db.o", "gen_pfc.o", "system.o"}
	if diff := cmp.Diff(want, members(t, archive)); diff != "" {
		t.Errorf("archive members mismatch (-want +got):\n%s", diff)
	}
	if len(members(t, archive)) != len(units) {
		t.Errorf("archive has %d members for %d units", len(members(t, archive)), len(units))
	}
	if _, err := os.Stat(filepath.Join(out, objDir, "arch-syscall-dump.o")); !os.IsNotExist(err) {
		t.Errorf("stale object survived")
	}
}

func TestCompileCmd(t *testing.T) {
	c := compileCmd(arm64, []string{"/out", "/src/include"}, "/src/src/api.c", "/out/obj/api.o")
	want := []string{"-O2", "-fPIC", "-I/out", "-I/src/include", "-c", "/src/src/api.c", "-o", "/out/obj/api.o"}
	if c.Name != "aarch64-linux-gnu-gcc" {
		t.Errorf("compiler = %q", c.Name)
	}
	if diff := cmp.Diff(want, c.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestIncludePaths(t *testing.T) {
	got := IncludePaths("/out", "/src")
	want := []string{"/out", "/out/include", "/src/src", "/src", "/src/include"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("include paths mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildArchiveUpToDate(t *testing.T) {
	root, units := sources(t, "api.c", "db.c")
	out := t.TempDir()
	tc := &toolchain{}
	b := &Builder{Runner: tc, OutDir: out, Logger: quiet}
	inc := IncludePaths(out, root)

	if _, err := b.BuildArchive(context.Background(), units, inc, arm64); err != nil {
		t.Fatal(err)
	}
	if _, err := b.BuildArchive(context.Background(), units, inc, arm64); err != nil {
		t.Fatal(err)
	}
	if len(tc.compiled) != 2 || tc.archives != 1 {
		t.Errorf("second build recompiled: %v, %d archives", tc.compiled, tc.archives)
	}

	// A changed unit invalidates the record.
	if err := os.WriteFile(units[0], []byte("int api2;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := b.BuildArchive(context.Background(), units, inc, arm64); err != nil {
		t.Fatal(err)
	}
	if tc.archives != 2 {
		t.Errorf("changed unit did not trigger a rebuild")
	}

	// So does a missing archive.
	if err := os.Remove(filepath.Join(out, "libseccomp.a")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.BuildArchive(context.Background(), units, inc, arm64); err != nil {
		t.Fatal(err)
	}
	if tc.archives != 3 {
		t.Errorf("missing archive did not trigger a rebuild")
	}
}

func TestBuildArchiveCompileFailure(t *testing.T) {
	root, units := sources(t, "api.c", "broken.c", "db.c")
	out := t.TempDir()
	tc := &toolchain{}
	b := &Builder{Runner: tc, OutDir: out, Logger: quiet}
	inc := IncludePaths(out, root)

	// A good build first, so there is a stale archive to get rid of.
	if _, err := b.BuildArchive(context.Background(), units, inc, arm64); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(units[0], []byte("int changed;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tc.fail = "broken.c"

	_, err := b.BuildArchive(context.Background(), units, inc, arm64)
	var se *stage.Error
	if !errors.As(err, &se) || se.Kind != stage.KindCompilation || se.Stage != stage.Compile {
		t.Fatalf("err = %v, want compile stage compilation error", err)
	}
	if !strings.Contains(se.Output, "expected ';'") {
		t.Errorf("compiler output not preserved: %q", se.Output)
	}
	for _, f := range []string{"libseccomp.a", "libseccomp.a.tmp", recordFile} {
		if _, err := os.Stat(filepath.Join(out, f)); !os.IsNotExist(err) {
			t.Errorf("%s left behind after a failed build", f)
		}
	}
}

func TestBuildArchiveArchiverFailure(t *testing.T) {
	root, units := sources(t, "api.c")
	out := t.TempDir()
	b := &Builder{Runner: &toolchain{failAR: true}, OutDir: out, Logger: quiet}

	_, err := b.BuildArchive(context.Background(), units, IncludePaths(out, root), arm64)
	if !errors.Is(err, stage.ErrCompilation) {
		t.Fatalf("err = %v, want compilation error", err)
	}
	for _, f := range []string{"libseccomp.a", "libseccomp.a.tmp"} {
		if _, err := os.Stat(filepath.Join(out, f)); !os.IsNotExist(err) {
			t.Errorf("%s left behind after archiver failure", f)
		}
	}
}

func TestBuildArchiveDuplicateBase(t *testing.T) {
	root := t.TempDir()
	units := []string{filepath.Join(root, "src", "api.c"), filepath.Join(root, "src", "x86", "api.c")}
	b := &Builder{Runner: &toolchain{}, OutDir: t.TempDir(), Logger: quiet}

	_, err := b.BuildArchive(context.Background(), units, nil, arm64)
	if !errors.Is(err, stage.ErrMalformedSource) {
		t.Errorf("err = %v, want malformed source", err)
	}
}

func TestBuildArchiveNoUnits(t *testing.T) {
	b := &Builder{Runner: &toolchain{}, OutDir: t.TempDir(), Logger: quiet}
	if _, err := b.BuildArchive(context.Background(), nil, nil, arm64); !errors.Is(err, stage.ErrMalformedSource) {
		t.Errorf("err = %v, want malformed source", err)
	}
}

func TestBuildArchiveUnwritableOutDir(t *testing.T) {
	root, units := sources(t, "api.c")
	parent := t.TempDir()
	out := filepath.Join(parent, "out")
	if err := os.WriteFile(out, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	tc := &toolchain{}
	b := &Builder{Runner: tc, OutDir: out, Logger: quiet}

	_, err := b.BuildArchive(context.Background(), units, IncludePaths(out, root), arm64)
	if !errors.Is(err, stage.ErrConfig) {
		t.Fatalf("err = %v, want invalid configuration", err)
	}
	if len(tc.compiled) != 0 || tc.archives != 0 {
		t.Errorf("toolchain ran without an output dir: %v", tc.compiled)
	}
}

func TestBuildArchiveHeaderChange(t *testing.T) {
	root, units := sources(t, "api.c", "db.c")
	out := t.TempDir()
	write := func(path, body string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	generated := filepath.Join(out, "include", "seccomp.h")
	write(generated, "#define SCMP_VER_MICRO 4\n")
	write(filepath.Join(out, "configure.h"), "")

	tc := &toolchain{}
	b := &Builder{Runner: tc, OutDir: out, Logger: quiet}
	inc := IncludePaths(out, root)
	build := func() {
		t.Helper()
		if _, err := b.BuildArchive(context.Background(), units, inc, arm64); err != nil {
			t.Fatal(err)
		}
	}

	build()
	build()
	if tc.archives != 1 {
		t.Fatalf("unchanged inputs rebuilt: %d archives", tc.archives)
	}

	steps := []struct {
		name string
		edit func()
	}{
		{"generated header", func() { write(generated, "#define SCMP_VER_MICRO 5\n") }},
		{"marker header", func() { write(filepath.Join(out, "configure.h"), "#define HAVE_X 1\n") }},
		{"new private header", func() { write(filepath.Join(root, "src", "db.h"), "struct db;\n") }},
		{"private header", func() { write(filepath.Join(root, "src", "db.h"), "struct db_filter;\n") }},
		{"public header", func() { write(filepath.Join(root, "include", "seccomp-syscalls.h"), "\n") }},
	}
	for i, st := range steps {
		st.edit()
		build()
		if want := i + 2; tc.archives != want {
			t.Errorf("%s change: %d archives, want %d", st.name, tc.archives, want)
		}
	}

	// Files that are not headers do not matter.
	write(filepath.Join(root, "src", "Makefile.am"), "noinst_LTLIBRARIES = x\n")
	build()
	if want := len(steps) + 1; tc.archives != want {
		t.Errorf("non-header change rebuilt: %d archives, want %d", tc.archives, want)
	}
}
