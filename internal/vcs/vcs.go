// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vcs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goplus/scmpbuild/internal/run"
)

// VCS defines the version control operations needed to materialize a
// vendored source tree.
type VCS interface {
	// TopLevel returns the root of the work tree containing dir.
	TopLevel(ctx context.Context, dir string) (string, error)

	// HasSubmodule reports whether root's .gitmodules declares path
	// (relative to root).
	HasSubmodule(ctx context.Context, root, path string) bool

	// Submodule checks out the submodule at path (relative to root),
	// recursively, at the commit pinned by the superproject.
	Submodule(ctx context.Context, root, path string) error

	// Head returns the commit checked out in dir. It fails for a
	// repository that was initialized but never checked out.
	Head(ctx context.Context, dir string) (string, error)

	// Sync ensures dir contains remote at ref using a shallow fetch.
	// ref can be branch, tag, or commit hash.
	Sync(ctx context.Context, remote, ref, dir string) error
}

// gitVCS implements VCS using git.
type gitVCS struct {
	git    string
	runner run.Runner
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// NewGitVCS creates a new git VCS instance running commands through r.
func NewGitVCS(r run.Runner, opts ...GitOption) VCS {
	g := &gitVCS{git: "git", runner: r}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) TopLevel(ctx context.Context, dir string) (string, error) {
	out, err := g.output(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("find work tree of %s: %w", dir, err)
	}
	return strings.TrimSpace(out), nil
}

func (g *gitVCS) HasSubmodule(ctx context.Context, root, path string) bool {
	out, err := g.output(ctx, root, "config", "--file", ".gitmodules", "--get-regexp", `^submodule\..*\.path$`)
	if err != nil {
		return false
	}
	want := filepath.ToSlash(filepath.Clean(path))
	for _, line := range strings.Split(out, "\n") {
		// format: submodule.<name>.path <path>
		_, p, ok := strings.Cut(strings.TrimSpace(line), " ")
		if ok && filepath.ToSlash(filepath.Clean(p)) == want {
			return true
		}
	}
	return false
}

func (g *gitVCS) Submodule(ctx context.Context, root, path string) error {
	if err := g.run(ctx, root, "submodule", "update", "--init", "--recursive", "--", path); err != nil {
		return fmt.Errorf("submodule update %s: %w", path, err)
	}
	return nil
}

func (g *gitVCS) Head(ctx context.Context, dir string) (string, error) {
	out, err := g.output(ctx, dir, "rev-parse", "--verify", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD in %s: %w", dir, err)
	}
	return strings.TrimSpace(out), nil
}

func (g *gitVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	if err := g.run(ctx, dir, "init"); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if err := g.fetch(ctx, remote, dir, ref); err != nil {
		return err
	}
	return g.checkout(ctx, dir, "FETCH_HEAD")
}

func (g *gitVCS) fetch(ctx context.Context, remote, dir, ref string) error {
	args := []string{"fetch", "--depth", "1", remote, ref}
	if err := g.run(ctx, dir, args...); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

func (g *gitVCS) checkout(ctx context.Context, dir, ref string) error {
	if err := g.run(ctx, dir, "checkout", ref); err != nil {
		return fmt.Errorf("checkout %s: %w", ref, err)
	}
	return nil
}

func (g *gitVCS) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, args...)
	return err
}

func (g *gitVCS) output(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := g.runner.Run(ctx, &run.Cmd{
		Name: g.git,
		Args: args,
		Dir:  dir,
		Env:  []string{"GIT_TERMINAL_PROMPT=0"}, // Disable interactive prompts
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
