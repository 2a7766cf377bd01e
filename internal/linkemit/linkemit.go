// Package linkemit decides how the consumer links libseccomp and writes
// that decision out for the surrounding build.
package linkemit

import (
	"path/filepath"
	"strings"

	"github.com/goplus/scmpbuild/internal/config"
	"github.com/goplus/scmpbuild/internal/probe"
	"github.com/goplus/scmpbuild/internal/version"
)

// Directive tells the linker where the library is.
type Directive struct {
	Kind         config.LinkKind `json:"kind"`
	Name         string          `json:"name"` // linker name, "seccomp" for -lseccomp
	SearchPath   string          `json:"search_path,omitempty"`
	IncludePaths []string        `json:"include_paths,omitempty"`
	Feature      string          `json:"feature,omitempty"`
}

// Input is everything Resolve looks at. Exactly one of a found probe or
// Archive drives the result.
type Input struct {
	Probe     probe.Result
	Archive   string   // built archive, used when Probe is absent
	Includes  []string // headers of a from-source build
	Overrides config.Overrides

	Library        string // package name, e.g. libseccomp
	Feature        string // capability flag, e.g. libseccomp_v2_5
	FeatureVersion string // lowest system version that has it
}

// Resolve returns the directive for in.
//
// A system library links dynamically unless LIBSECCOMP_LINK_TYPE says
// otherwise, from the probe's first -L directory unless
// LIBSECCOMP_LIB_PATH is set. A from-source build always links the
// archive statically and never reports the capability flag: the pinned
// source version is known to the consumer already.
func Resolve(in Input) Directive {
	if !in.Probe.Found {
		return Directive{
			Kind:         config.LinkStatic,
			Name:         archiveName(in.Archive),
			SearchPath:   filepath.Dir(in.Archive),
			IncludePaths: in.Includes,
		}
	}

	d := Directive{
		Kind:         config.LinkDynamic,
		Name:         systemName(in.Probe, in.Library),
		SearchPath:   in.Probe.SearchPath(),
		IncludePaths: in.Probe.IncludePaths,
	}
	if in.Overrides.LinkKind != "" {
		d.Kind = in.Overrides.LinkKind
	}
	if in.Overrides.LibPath != "" {
		d.SearchPath = in.Overrides.LibPath
	}
	if in.Feature != "" && in.FeatureVersion != "" && version.AtLeast(in.Probe.Version, in.FeatureVersion) {
		d.Feature = in.Feature
	}
	return d
}

func systemName(r probe.Result, library string) string {
	for _, l := range r.Libs {
		if l == strings.TrimPrefix(library, "lib") {
			return l
		}
	}
	return strings.TrimPrefix(library, "lib")
}

// archiveName maps /out/libseccomp.a to seccomp.
func archiveName(archive string) string {
	base := filepath.Base(archive)
	return strings.TrimPrefix(strings.TrimSuffix(base, filepath.Ext(base)), "lib")
}

// LDFlags returns the linker flags that realize d with a GNU toolchain.
func (d Directive) LDFlags() []string {
	var flags []string
	if d.Kind == config.LinkFramework {
		if d.SearchPath != "" {
			flags = append(flags, "-F"+d.SearchPath)
		}
		return append(flags, "-framework", d.Name)
	}
	if d.SearchPath != "" {
		flags = append(flags, "-L"+d.SearchPath)
	}
	if d.Kind == config.LinkStatic {
		return append(flags, "-Wl,-Bstatic", "-l"+d.Name, "-Wl,-Bdynamic")
	}
	return append(flags, "-l"+d.Name)
}

// CFlags returns the compiler flags a consumer needs: include paths and
// the capability define.
func (d Directive) CFlags() []string {
	var flags []string
	for _, dir := range d.IncludePaths {
		flags = append(flags, "-I"+dir)
	}
	if d.Feature != "" {
		flags = append(flags, "-D"+Define(d.Feature))
	}
	return flags
}

// Define returns the preprocessor macro for a capability flag,
// libseccomp_v2_5 -> LIBSECCOMP_V2_5.
func Define(feature string) string {
	return strings.ToUpper(feature)
}
