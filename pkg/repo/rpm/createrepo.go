package rpm

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/stianwa/createrepo"
	"go.uber.org/zap"

	"s3repo/internal/errs"
	"s3repo/pkg/repo"
)

func init() {
	repo.Register(repo.Createrepo, func(opts repo.GeneratorOptions) repo.Generator {
		return NewCreaterepoGenerator(opts.Arches, opts.Source, opts.Log)
	})
}

// CreaterepoGenerator renders by rescanning the package files with
// createrepo instead of from the stored metadata. Packages read in this run
// are used in place; the rest are pulled through source.
type CreaterepoGenerator struct {
	*Generator
	source repo.PackageSource

	mu    sync.Mutex
	local map[string]string // location -> local path
}

func NewCreaterepoGenerator(arches []string, source repo.PackageSource, log *zap.SugaredLogger) *CreaterepoGenerator {
	return &CreaterepoGenerator{
		Generator: NewGenerator(arches, log),
		source:    source,
		local:     make(map[string]string),
	}
}

func (c *CreaterepoGenerator) ReadPackage(ctx context.Context, path string, checksum string) (repo.PackageEntry, error) {
	entry, err := c.Generator.ReadPackage(ctx, path, checksum)
	if err != nil {
		return entry, err
	}
	c.mu.Lock()
	c.local[entry.Location] = path
	c.mu.Unlock()
	return entry, nil
}

func (c *CreaterepoGenerator) Render(ctx context.Context, entries []repo.PackageEntry, outDir string, checksum string) ([]string, error) {
	checksum, err := NormalizeChecksum(checksum)
	if err != nil {
		return nil, err
	}
	if checksum != DefaultChecksum {
		c.log.Warnf("createrepo always writes sha256 checksums, ignoring %s", checksum)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dest := filepath.Join(outDir, filepath.FromSlash(e.Location))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, errs.Generation("failed to create package directory", err)
		}
		c.mu.Lock()
		src, ok := c.local[e.Location]
		c.mu.Unlock()
		switch {
		case ok:
			if err := linkOrCopy(src, dest); err != nil {
				return nil, errs.Generation("failed to stage "+e.Location, err)
			}
		case c.source != nil:
			if err := c.source(ctx, e.Location, dest); err != nil {
				return nil, err
			}
		default:
			return nil, errs.Generation("no package file for "+e.Location, nil)
		}
	}

	config := &createrepo.Config{
		CompressAlgo:       "gz",
		ExpungeOldMetadata: 0,
		WriteConfig:        false,
	}
	r, err := createrepo.NewRepo(outDir, config)
	if err != nil {
		return nil, errs.Generation("failed to open repository "+outDir, err)
	}
	sum, err := r.Create()
	if err != nil {
		return nil, errs.Generation("failed to create repository metadata", err)
	}
	c.log.Infof("createrepo wrote metadata for %d packages: %v", len(entries), sum)

	repodata := filepath.Join(outDir, repo.RepodataDir)
	dirEntries, err := os.ReadDir(repodata)
	if err != nil {
		return nil, errs.Generation("failed to read "+repodata, err)
	}
	var artifacts []string
	for _, d := range dirEntries {
		if !d.IsDir() {
			artifacts = append(artifacts, filepath.Join(repodata, d.Name()))
		}
	}
	sort.Strings(artifacts)
	return artifacts, nil
}

func linkOrCopy(src, dest string) error {
	if err := os.Link(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
