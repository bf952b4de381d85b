package repo

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"s3repo/internal/errs"
)

// Publisher renders a PackageIndex into a workspace through a Generator.
type Publisher struct {
	gen Generator
	log *zap.SugaredLogger
}

func NewPublisher(gen Generator, log *zap.SugaredLogger) *Publisher {
	return &Publisher{gen: gen, log: log}
}

// Render writes workspaceDir/repodata and returns the produced files. Any
// stale repodata in the workspace is removed first, so the directory holds
// exactly the new index.
func (p *Publisher) Render(ctx context.Context, index *PackageIndex, workspaceDir string, checksum string) ([]string, error) {
	if index == nil {
		index = NewPackageIndex()
	}
	repodata := filepath.Join(workspaceDir, RepodataDir)
	if err := os.RemoveAll(repodata); err != nil {
		return nil, errs.Generation("failed to clear "+repodata, err)
	}
	if err := os.MkdirAll(repodata, 0755); err != nil {
		return nil, errs.Generation("failed to create "+repodata, err)
	}

	entries := index.Entries()
	for _, e := range entries {
		if !isRelativeLocation(e.Location) {
			return nil, errs.Generation("package location must be relative to the repository: "+e.Location, nil)
		}
	}

	artifacts, err := p.gen.Render(ctx, entries, workspaceDir, checksum)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errs.KindOf(err) == errs.KindUnknown {
			return nil, errs.Generation("failed to render repository metadata", err)
		}
		return nil, err
	}
	p.log.Infof("rendered %d packages into %d metadata files", len(entries), len(artifacts))
	return artifacts, nil
}

func isRelativeLocation(location string) bool {
	if location == "" || strings.Contains(location, "://") || path.IsAbs(location) {
		return false
	}
	for _, part := range strings.Split(location, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
