package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/goplus/scmpbuild/internal/config"
	"github.com/goplus/scmpbuild/internal/run"
)

// stampFile marks an extracted tree as complete. It holds the archive URL.
const stampFile = ".scmpbuild-extracted"

var archiveExts = []string{".tar.gz", ".tgz", ".tar.xz", ".txz", ".tar"}

// archiveDir returns the directory a release archive unpacks into,
// libseccomp-2.5.4.tar.gz -> libseccomp-2.5.4.
func archiveDir(name string) (string, error) {
	for _, ext := range archiveExts {
		if strings.HasSuffix(name, ext) && len(name) > len(ext) {
			return strings.TrimSuffix(name, ext), nil
		}
	}
	return "", fmt.Errorf("unsupported archive name %q", name)
}

func archiveName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", fmt.Errorf("no file name in %q", rawURL)
	}
	return name, nil
}

func (p *Provider) ensureArchive(ctx context.Context, spec Spec) (Tree, error) {
	if spec.URL == "" {
		return Tree{}, acquisition("", errors.New("archive url is empty"))
	}
	if spec.Scratch == "" {
		return Tree{}, acquisition(spec.URL, errors.New("no scratch directory"))
	}
	name, err := archiveName(spec.URL)
	if err != nil {
		return Tree{}, acquisition(spec.URL, err)
	}
	dir, err := archiveDir(name)
	if err != nil {
		return Tree{}, acquisition(spec.URL, err)
	}
	scratch, err := filepath.Abs(spec.Scratch)
	if err != nil {
		return Tree{}, acquisition(spec.Scratch, err)
	}
	root := filepath.Join(scratch, dir)
	stamp := filepath.Join(root, stampFile)
	if data, err := os.ReadFile(stamp); err == nil && string(data) == spec.URL {
		p.logger().WithField("path", root).Debug("extracted source present")
		return Tree{Root: root}, nil
	}

	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return Tree{}, acquisition(scratch, err)
	}
	// Anything under root without a matching stamp is a leftover.
	if err := os.RemoveAll(root); err != nil {
		return Tree{}, acquisition(root, err)
	}
	if err := p.fetchArchive(ctx, spec, scratch, name, root); err != nil {
		os.RemoveAll(root)
		return Tree{}, err
	}
	return Tree{Root: root}, nil
}

func (p *Provider) fetchArchive(ctx context.Context, spec Spec, scratch, name, root string) error {
	archive := filepath.Join(scratch, name)
	p.logger().WithField("url", spec.URL).Info("downloading source archive")
	sum, err := p.download(ctx, spec.URL, archive)
	if err != nil {
		return acquisition(spec.URL, err)
	}
	defer os.Remove(archive)
	if spec.SHA256 != "" && !strings.EqualFold(sum, spec.SHA256) {
		return acquisition(spec.URL, fmt.Errorf("checksum mismatch: got %s, want %s", sum, spec.SHA256))
	}

	switch spec.Extract {
	case "", config.ExtractTool:
		cmd := run.Command("tar", "-xf", archive, "-C", scratch)
		if _, err := p.Runner.Run(ctx, cmd); err != nil {
			return acquisition(name, err)
		}
	case config.ExtractNative:
		if err := extract(archive, scratch); err != nil {
			return acquisition(name, err)
		}
	default:
		return acquisition(name, fmt.Errorf("unknown extract mode %q", spec.Extract))
	}

	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		return acquisition(name, fmt.Errorf("archive did not contain %s", filepath.Base(root)))
	}
	if err := os.WriteFile(filepath.Join(root, stampFile), []byte(spec.URL), 0o644); err != nil {
		return acquisition(root, err)
	}
	return nil
}

// download writes the body of rawURL to dst and returns its hex SHA-256.
// dst only appears once the body has been fully received.
func (p *Provider) download(ctx context.Context, rawURL, dst string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}

	f, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, h), resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
