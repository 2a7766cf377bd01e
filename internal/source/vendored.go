package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

func (p *Provider) ensureVendored(ctx context.Context, spec Spec) (Tree, error) {
	root, err := filepath.Abs(spec.Path)
	if err != nil {
		return Tree{}, acquisition(spec.Path, err)
	}
	markerName := spec.Marker
	if markerName == "" {
		markerName = ".git"
	}
	marker := filepath.Join(root, markerName)
	logger := p.logger().WithField("path", root)
	if exists(marker) {
		if p.checkedOut(ctx, root, markerName) {
			logger.Debug("vendored source present")
			return Tree{Root: root}, nil
		}
		// git init ran but the fetch never finished.
		logger.Warn("discarding incomplete vendored checkout")
		if err := os.RemoveAll(root); err != nil {
			return Tree{}, acquisition(root, err)
		}
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return Tree{}, acquisition(root, err)
	}
	if err := p.fetchVendored(ctx, spec, root); err != nil {
		// A half-initialized checkout must not pass the marker check next time.
		os.RemoveAll(marker)
		return Tree{}, err
	}
	if !exists(marker) {
		return Tree{}, acquisition(root, fmt.Errorf("%s missing after checkout", markerName))
	}
	if !p.checkedOut(ctx, root, markerName) {
		os.RemoveAll(marker)
		return Tree{}, acquisition(root, errors.New("no commit checked out after fetch"))
	}
	return Tree{Root: root}, nil
}

// checkedOut reports whether a git marker belongs to a repository with a
// resolvable HEAD. Other markers are trusted as they are.
func (p *Provider) checkedOut(ctx context.Context, root, markerName string) bool {
	if markerName != ".git" {
		return true
	}
	_, err := p.VCS.Head(ctx, root)
	return err == nil
}

func (p *Provider) fetchVendored(ctx context.Context, spec Spec, root string) error {
	logger := p.logger().WithField("path", root)
	if top, err := p.VCS.TopLevel(ctx, filepath.Dir(root)); err == nil {
		rel, err := filepath.Rel(top, root)
		if err == nil && p.VCS.HasSubmodule(ctx, top, rel) {
			logger.Info("checking out vendored submodule")
			if err := p.VCS.Submodule(ctx, top, rel); err != nil {
				return acquisition(rel, err)
			}
			return nil
		}
	}
	if spec.Remote == "" {
		return acquisition(root, errors.New("not a git submodule and no remote configured"))
	}
	logger.Infof("fetching %s at %s", spec.Remote, spec.Ref)
	if err := p.VCS.Sync(ctx, spec.Remote, spec.Ref, root); err != nil {
		return acquisition(spec.Remote, err)
	}
	return nil
}
