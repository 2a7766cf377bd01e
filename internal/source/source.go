// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package source guarantees that a local libseccomp source tree exists,
// either as a vendored git checkout or as a downloaded release archive.
//
// Ensure is idempotent: a tree that is already complete on disk is
// returned without touching the network. Every acquisition failure is
// fatal and leaves nothing behind that a later run could mistake for a
// complete tree.
package source

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/apex/log"

	"github.com/goplus/scmpbuild/internal/config"
	"github.com/goplus/scmpbuild/internal/run"
	"github.com/goplus/scmpbuild/internal/stage"
	"github.com/goplus/scmpbuild/internal/vcs"
)

// Spec selects how the tree is obtained.
type Spec struct {
	Kind string // config.SourceVendored, config.SourceArchive or config.SourceNone

	// vendored
	Path   string
	Marker string // relative to Path, ".git" when empty
	Remote string // used when Path is not a declared submodule
	Ref    string

	// archive
	URL     string
	SHA256  string // optional, hex
	Extract string // config.ExtractTool (default) or config.ExtractNative
	Scratch string // download and extraction directory
}

// SpecFrom builds a Spec from the source section of the configuration.
func SpecFrom(c config.SourceConfig, scratch string) Spec {
	if c.Scratch != "" {
		scratch = c.Scratch
	}
	return Spec{
		Kind:    c.Kind,
		Path:    c.Path,
		Marker:  c.Marker,
		Remote:  c.Remote,
		Ref:     c.Ref,
		URL:     c.URL,
		SHA256:  c.SHA256,
		Extract: c.Extract,
		Scratch: scratch,
	}
}

// Tree is a local source tree.
type Tree struct {
	Root string
}

// Provider materializes source trees.
type Provider struct {
	VCS        vcs.VCS
	Runner     run.Runner // runs tar for config.ExtractTool
	HTTPClient *http.Client
	Logger     log.Interface
}

// Ensure returns the tree described by spec, fetching it if needed.
func (p *Provider) Ensure(ctx context.Context, spec Spec) (Tree, error) {
	switch spec.Kind {
	case config.SourceVendored:
		return p.ensureVendored(ctx, spec)
	case config.SourceArchive:
		return p.ensureArchive(ctx, spec)
	case config.SourceNone:
		return Tree{}, stage.New(stage.Source, stage.KindUnavailable, "", errors.New("no source fallback configured"))
	}
	return Tree{}, stage.New(stage.Source, stage.KindConfig, spec.Kind, errors.New("unknown source kind"))
}

func (p *Provider) logger() log.Interface {
	if p.Logger == nil {
		return log.Log
	}
	return p.Logger
}

func (p *Provider) httpClient() *http.Client {
	if p.HTTPClient == nil {
		return &http.Client{Timeout: 5 * time.Minute}
	}
	return p.HTTPClient
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func acquisition(subject string, err error) error {
	return stage.New(stage.Source, stage.KindAcquisition, subject, err)
}
