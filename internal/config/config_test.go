package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadMissingDefaultFile(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load(\"\") mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := `
library:
  min_version: "2.5.0"
source:
  kind: archive
  url: https://example.org/libseccomp-2.5.5.tar.gz
  sha256: abc
  extract: native
header:
  strategy: configure
build:
  target: aarch64-linux-gnu
  jobs: 4
  cflags: ["-O1"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.Library.MinVersion = "2.5.0"
	want.Source.Kind = SourceArchive
	want.Source.URL = "https://example.org/libseccomp-2.5.5.tar.gz"
	want.Source.SHA256 = "abc"
	want.Source.Extract = ExtractNative
	want.Header.Strategy = HeaderConfigure
	want.Build.Target = "aarch64-linux-gnu"
	want.Build.Jobs = 4
	want.Build.CFlags = []string{"-O1"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("overlay mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("library: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown source", func(c *Config) { c.Source.Kind = "ftp" }, "source.kind"},
		{"archive without url", func(c *Config) { c.Source.Kind = SourceArchive; c.Source.URL = "" }, "source.url"},
		{"bad extract", func(c *Config) { c.Source.Kind = SourceArchive; c.Source.Extract = "7z" }, "source.extract"},
		{"vendored without path", func(c *Config) { c.Source.Path = "" }, "source.path"},
		{"bad strategy", func(c *Config) { c.Header.Strategy = "cmake" }, "header.strategy"},
		{"negative jobs", func(c *Config) { c.Build.Jobs = -1 }, "build.jobs"},
		{"no name", func(c *Config) { c.Library.Name = "" }, "library.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
	cfg := Default()
	cfg.Source.Kind = SourceNone
	if err := cfg.Validate(); err != nil {
		t.Fatalf("none source should be valid: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envOf(map[string]string{
		EnvLinkType:         "Static",
		EnvLibPath:          "/opt/seccomp/lib",
		"SCMPBUILD_OUT_DIR": "/tmp/out",
		"SCMPBUILD_JOBS":    "3",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	want := Overrides{LinkKind: LinkStatic, LibPath: "/opt/seccomp/lib"}
	if cfg.Overrides != want {
		t.Errorf("Overrides = %+v, want %+v", cfg.Overrides, want)
	}
	if cfg.Build.OutDir != "/tmp/out" || cfg.Build.Jobs != 3 {
		t.Errorf("Build = %+v", cfg.Build)
	}

	if err := Default().ApplyEnv(envOf(map[string]string{EnvLinkType: "shared"})); err == nil {
		t.Error("expected error for unknown link type")
	}
	if err := Default().ApplyEnv(envOf(map[string]string{"SCMPBUILD_JOBS": "zero"})); err == nil {
		t.Error("expected error for bad jobs")
	}
}

func TestParseLinkKind(t *testing.T) {
	tests := map[string]LinkKind{
		"static":    LinkStatic,
		"dylib":     LinkDynamic,
		"dynamic":   LinkDynamic,
		"framework": LinkFramework,
		" DYLIB ":   LinkDynamic,
	}
	for in, want := range tests {
		got, err := ParseLinkKind(in)
		if err != nil || got != want {
			t.Errorf("ParseLinkKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
