package crossbuild

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/goplus/scmpbuild/internal/target"
)

// Output directory layout:
//
//	outDir/
//	  .scmpbuild.json     # build record of the last successful archive
//	  configure.h
//	  include/seccomp.h
//	  obj/<unit>.o
//	  libseccomp.a
const recordFile = ".scmpbuild.json"

// record describes the inputs of a successful build.
type record struct {
	Units     []string  `json:"units"`
	Includes  []string  `json:"includes"`
	Target    string    `json:"target"`
	CC        string    `json:"cc"`
	AR        string    `json:"ar"`
	CFlags    []string  `json:"cflags"`
	Digest    string    `json:"digest"` // SHA-256 over the units and the headers they can include
	Archive   string    `json:"archive"`
	BuildTime time.Time `json:"build_time"`
}

func newRecord(units, includes []string, t *target.Target, archive string) (*record, error) {
	hdrs, err := headers(includes)
	if err != nil {
		return nil, err
	}
	digest, err := digestFiles(append(slices.Clone(units), hdrs...))
	if err != nil {
		return nil, err
	}
	return &record{
		Units:     units,
		Includes:  includes,
		Target:    t.Target,
		CC:        t.CC,
		AR:        t.AR,
		CFlags:    t.CFlags,
		Digest:    digest,
		Archive:   archive,
		BuildTime: time.Now(),
	}, nil
}

// matches reports whether r and o describe the same inputs. BuildTime is
// ignored.
func (r *record) matches(o *record) bool {
	return slices.Equal(r.Units, o.Units) &&
		slices.Equal(r.Includes, o.Includes) &&
		r.Target == o.Target &&
		r.CC == o.CC &&
		r.AR == o.AR &&
		slices.Equal(r.CFlags, o.CFlags) &&
		r.Digest == o.Digest &&
		r.Archive == o.Archive
}

// headers returns the *.h files directly inside the include dirs, in
// search order. Missing dirs contribute nothing.
func headers(includes []string) ([]string, error) {
	var hdrs []string
	seen := make(map[string]bool)
	for _, dir := range includes {
		if seen[dir] {
			continue
		}
		seen[dir] = true
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if filepath.Ext(e.Name()) != ".h" || !e.Type().IsRegular() {
				continue
			}
			hdrs = append(hdrs, filepath.Join(dir, e.Name()))
		}
	}
	return hdrs, nil
}

func digestFiles(paths []string) (string, error) {
	h := sha256.New()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return "", err
		}
		io.WriteString(h, p)
		h.Write([]byte{0})
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (b *Builder) recordPath() string {
	return filepath.Join(b.OutDir, recordFile)
}

func loadRecord(path string) (*record, error) {
	data, err := lockedfile.Read(path)
	if err != nil {
		return nil, err
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func saveRecord(path string, r *record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return lockedfile.Write(path, bytes.NewReader(data), 0o644)
}
