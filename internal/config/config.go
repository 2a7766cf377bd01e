// Package config holds the build configuration of the libseccomp pipeline.
//
// Values come from, in increasing precedence: the defaults in Default, an
// optional YAML file, the environment, and command line flags applied by
// the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is read by Load when no explicit path is given.
const DefaultFile = "scmpbuild.yaml"

// Source kinds.
const (
	SourceVendored = "vendored"
	SourceArchive  = "archive"
	SourceNone     = "none"
)

// Header strategies.
const (
	HeaderConfigure = "configure"
	HeaderTemplate  = "template"
)

// Archive extraction modes.
const (
	ExtractTool   = "tool"
	ExtractNative = "native"
)

// Config is the complete pipeline configuration.
type Config struct {
	Library LibraryConfig `yaml:"library"`
	Source  SourceConfig  `yaml:"source"`
	Header  HeaderConfig  `yaml:"header"`
	Build   BuildConfig   `yaml:"build"`

	// Overrides is resolved from the environment, never from the file.
	Overrides Overrides `yaml:"-"`
}

type LibraryConfig struct {
	Name           string `yaml:"name"`
	MinVersion     string `yaml:"min_version"`
	FeatureVersion string `yaml:"feature_version"`
	Feature        string `yaml:"feature"`
}

type SourceConfig struct {
	Kind    string `yaml:"kind"`
	Path    string `yaml:"path"`
	Marker  string `yaml:"marker"`
	Remote  string `yaml:"remote"`
	Ref     string `yaml:"ref"`
	URL     string `yaml:"url"`
	SHA256  string `yaml:"sha256"`
	Extract string `yaml:"extract"`
	Scratch string `yaml:"scratch"`
}

type HeaderConfig struct {
	Strategy string `yaml:"strategy"`
	Version  string `yaml:"version"`
	Template string `yaml:"template"` // relative to the source root
	Output   string `yaml:"output"`   // relative to the output dir
	Marker   string `yaml:"marker"`   // relative to the output dir, written empty
}

type BuildConfig struct {
	OutDir      string   `yaml:"out_dir"`
	Target      string   `yaml:"target"`
	Host        string   `yaml:"host"`
	CC          string   `yaml:"cc"`
	AR          string   `yaml:"ar"`
	CFlags      []string `yaml:"cflags"`
	Jobs        int      `yaml:"jobs"`
	SrcDir      string   `yaml:"src_dir"` // relative to the source root
	Denylist    []string `yaml:"denylist"`
	ArchiveName string   `yaml:"archive_name"`
}

// Default returns the configuration for libseccomp 2.5.4 built from the
// vendored checkout with a template header.
func Default() *Config {
	const pinned = "2.5.4"
	return &Config{
		Library: LibraryConfig{
			Name:           "libseccomp",
			FeatureVersion: "2.5.0",
			Feature:        "libseccomp_v2_5",
		},
		Source: SourceConfig{
			Kind:    SourceVendored,
			Path:    "libseccomp",
			Marker:  ".git",
			Remote:  "https://github.com/seccomp/libseccomp.git",
			Ref:     "v" + pinned,
			URL:     "https://github.com/seccomp/libseccomp/releases/download/v" + pinned + "/libseccomp-" + pinned + ".tar.gz",
			Extract: ExtractTool,
		},
		Header: HeaderConfig{
			Strategy: HeaderTemplate,
			Version:  pinned,
			Template: filepath.Join("include", "seccomp.h.in"),
			Output:   filepath.Join("include", "seccomp.h"),
			Marker:   "configure.h",
		},
		Build: BuildConfig{
			CFlags:      []string{"-O2", "-fPIC"},
			SrcDir:      "src",
			Denylist:    []string{"arch-syscall-dump.c", "arch-syscall-check.c"},
			ArchiveName: "libseccomp.a",
		},
	}
}

// Load returns Default overlaid with the YAML file at path. An empty path
// means DefaultFile, which may be missing; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv copies the environment driven settings into cfg. getenv is
// usually os.Getenv.
func (cfg *Config) ApplyEnv(getenv func(string) string) error {
	ov, err := OverridesFrom(getenv)
	if err != nil {
		return err
	}
	cfg.Overrides = ov
	if v := getenv("SCMPBUILD_OUT_DIR"); v != "" {
		cfg.Build.OutDir = v
	}
	if v := getenv("SCMPBUILD_JOBS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("SCMPBUILD_JOBS=%q: want a positive integer", v)
		}
		cfg.Build.Jobs = n
	}
	return nil
}

// Validate checks the fields every run depends on.
func (cfg *Config) Validate() error {
	if cfg.Library.Name == "" {
		return errors.New("library.name is empty")
	}
	switch cfg.Source.Kind {
	case SourceVendored:
		if cfg.Source.Path == "" {
			return errors.New("source.path is required for vendored sources")
		}
	case SourceArchive:
		if cfg.Source.URL == "" {
			return errors.New("source.url is required for archive sources")
		}
		switch cfg.Source.Extract {
		case "", ExtractTool, ExtractNative:
		default:
			return fmt.Errorf("source.extract: unknown mode %q", cfg.Source.Extract)
		}
	case SourceNone:
	default:
		return fmt.Errorf("source.kind: unknown kind %q", cfg.Source.Kind)
	}
	switch cfg.Header.Strategy {
	case HeaderConfigure, HeaderTemplate:
	default:
		return fmt.Errorf("header.strategy: unknown strategy %q", cfg.Header.Strategy)
	}
	if cfg.Build.Jobs < 0 {
		return fmt.Errorf("build.jobs: %d is negative", cfg.Build.Jobs)
	}
	if strings.TrimSpace(cfg.Build.ArchiveName) == "" {
		return errors.New("build.archive_name is empty")
	}
	return nil
}
