// Package units selects the C translation units that make up the
// libseccomp library from a source tree.
package units

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/apex/log"

	"github.com/goplus/scmpbuild/internal/stage"
)

// Options controls which files are selected.
type Options struct {
	SrcDir   string   // relative to the tree root
	Denylist []string // base names excluded from the library
	Logger   log.Interface
}

// Collect returns the absolute paths of the library's translation units:
// every readable regular *.c file directly inside root/SrcDir whose base
// name is not denylisted, sorted by path. Subdirectories such as the
// python bindings are not descended into; entries that cannot be read
// are skipped.
func Collect(root string, opts Options) ([]string, error) {
	dir := filepath.Join(root, opts.SrcDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, stage.New(stage.Units, stage.KindMalformedSource, dir, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Log
	}
	var units []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".c" || strings.HasPrefix(name, ".") {
			continue
		}
		if slices.Contains(opts.Denylist, name) {
			continue
		}
		path := filepath.Join(dir, name)
		// Stat follows symlinks; a dangling link is skipped like a directory.
		fi, err := os.Stat(path)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if !readable(path) {
			logger.WithField("file", path).Debug("skipping unreadable unit")
			continue
		}
		units = append(units, path)
	}
	if len(units) == 0 {
		return nil, stage.New(stage.Units, stage.KindMalformedSource, dir, fmt.Errorf("no translation units in %s", opts.SrcDir))
	}
	slices.Sort(units)
	return slices.Compact(units), nil
}

func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
