package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"s3repo/internal/errs"
)

type renderFunc func(entries []PackageEntry, outDir string) ([]string, error)

type stubGenerator struct {
	render renderFunc
}

func (g stubGenerator) ReadPackage(ctx context.Context, path string, checksum string) (PackageEntry, error) {
	return PackageEntry{}, errors.New("not implemented")
}

func (g stubGenerator) LoadIndex(ctx context.Context, repodataDir string) (*PackageIndex, error) {
	return NewPackageIndex(), nil
}

func (g stubGenerator) Render(ctx context.Context, entries []PackageEntry, outDir string, checksum string) ([]string, error) {
	return g.render(entries, outDir)
}

func TestPublisherClearsStaleRepodata(t *testing.T) {
	ws := t.TempDir()
	stale := filepath.Join(ws, RepodataDir, "stale-primary.xml.gz")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0755))
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0644))

	var seen []PackageEntry
	gen := stubGenerator{render: func(entries []PackageEntry, outDir string) ([]string, error) {
		seen = entries
		p := filepath.Join(outDir, RepodataDir, RepomdFile)
		return []string{p}, os.WriteFile(p, []byte("<repomd/>"), 0644)
	}}
	idx := NewPackageIndex(
		entry("zeta", "1", "1", "noarch", "zeta-1-1.noarch.rpm"),
		entry("alpha", "1", "1", "noarch", "alpha-1-1.noarch.rpm"),
	)

	artifacts, err := NewPublisher(gen, zap.NewNop().Sugar()).Render(context.Background(), idx, ws, "sha256")
	require.NoError(t, err)
	assert.Len(t, artifacts, 1)
	assert.NoFileExists(t, stale)
	require.Len(t, seen, 2)
	assert.Equal(t, "alpha", seen[0].Identity.Name)
}

func TestPublisherWrapsGeneratorFailures(t *testing.T) {
	gen := stubGenerator{render: func([]PackageEntry, string) ([]string, error) {
		return nil, errors.New("disk full")
	}}

	_, err := NewPublisher(gen, zap.NewNop().Sugar()).Render(context.Background(), nil, t.TempDir(), "sha256")
	require.Error(t, err)
	assert.True(t, errs.IsGeneration(err))
}

func TestPublisherRejectsURLLocations(t *testing.T) {
	gen := stubGenerator{render: func([]PackageEntry, string) ([]string, error) { return nil, nil }}
	idx := NewPackageIndex(entry("foo", "1", "1", "noarch", "https://example.com/foo-1-1.noarch.rpm"))

	_, err := NewPublisher(gen, zap.NewNop().Sugar()).Render(context.Background(), idx, t.TempDir(), "sha256")
	assert.True(t, errs.IsGeneration(err))
}

func TestIsRelativeLocation(t *testing.T) {
	assert.True(t, isRelativeLocation("foo-1-1.noarch.rpm"))
	assert.True(t, isRelativeLocation("Packages/f/foo-1-1.noarch.rpm"))
	assert.False(t, isRelativeLocation("/srv/foo-1-1.noarch.rpm"))
	assert.False(t, isRelativeLocation("../foo-1-1.noarch.rpm"))
	assert.False(t, isRelativeLocation(""))
}
