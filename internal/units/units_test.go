package units

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goplus/scmpbuild/internal/stage"
)

var defaults = Options{
	SrcDir:   "src",
	Denylist: []string{"arch-syscall-dump.c", "arch-syscall-check.c"},
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("/* unit */\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	for _, name := range []string{
		"system.c", "api.c", "arch.c", "db.c",
		"arch-syscall-dump.c", "arch-syscall-check.c",
		"arch.h", "Makefile.am", "syscalls.csv",
		"python/seccomp.c", // not descended into
	} {
		touch(t, filepath.Join(src, name))
	}
	if err := os.Mkdir(filepath.Join(src, "dir.c"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Collect(root, defaults)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	want := []string{
		filepath.Join(src, "api.c"),
		filepath.Join(src, "arch.c"),
		filepath.Join(src, "db.c"),
		filepath.Join(src, "system.c"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("units mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectExcludesExactlyDenylist(t *testing.T) {
	root := t.TempDir()
	names := []string{"a.c", "b.c", "c.c", "arch-syscall-dump.c", "arch-syscall-check.c"}
	for _, name := range names {
		touch(t, filepath.Join(root, "src", name))
	}

	got, err := Collect(root, defaults)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(got) != len(names)-2 {
		t.Errorf("got %d units, want %d", len(got), len(names)-2)
	}
}

func TestCollectDeterministic(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"z.c", "m.c", "a.c"} {
		touch(t, filepath.Join(root, "src", name))
	}
	first, err := Collect(root, defaults)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Collect(root, defaults)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("unit order changed between calls:\n%s", diff)
	}
}

func TestCollectMalformed(t *testing.T) {
	tests := []struct {
		name  string
		files []string
	}{
		{"missing src", nil},
		{"only denylisted", []string{"src/arch-syscall-dump.c", "src/arch-syscall-check.c"}},
		{"no c files", []string{"src/arch.h", "src/README"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for _, f := range tt.files {
				touch(t, filepath.Join(root, f))
			}
			_, err := Collect(root, defaults)
			if !errors.Is(err, stage.ErrMalformedSource) {
				t.Errorf("err = %v, want malformed source", err)
			}
		})
	}
}
