package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"s3repo/internal/cache"
	"s3repo/internal/errs"
	"s3repo/internal/metrics"
	"s3repo/internal/types"
	"s3repo/pkg/repo"
	"s3repo/pkg/storage"
)

// RepoService is a read-only view of published repositories. Index
// objects and parsed package lists are cached for a short TTL; package
// blobs are streamed from the store.
type RepoService struct {
	store storage.Storage
	gen   repo.Generator
	cache cache.Cache
	ttl   time.Duration
	// WorkDir is the parent of temporary index downloads.
	WorkDir string
	log     *zap.SugaredLogger
}

// NewRepoService builds the service. A nil cache or a zero ttl disables
// caching.
func NewRepoService(store storage.Storage, gen repo.Generator, c cache.Cache, ttl time.Duration, log *zap.SugaredLogger) *RepoService {
	if c != nil && ttl <= 0 {
		c = nil
	}
	return &RepoService{store: store, gen: gen, cache: c, ttl: ttl, log: log}
}

// GetObject opens the object stored at key.
func (s *RepoService) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	key = storage.NormalizeKey(key)
	if !isIndexKey(key) || s.cache == nil {
		return s.open(ctx, key)
	}

	if v, ok := s.cache.Get("object:" + key); ok {
		return io.NopCloser(bytes.NewReader(v.([]byte))), nil
	}
	rc, err := s.open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errs.TransientStore("failed to read "+key, err)
	}
	s.cache.Set("object:"+key, data, s.ttl)
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *RepoService) open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	metrics.IncrementDownloads()
	return rc, nil
}

// StatObject describes the object at key without reading it into the
// response.
func (s *RepoService) StatObject(ctx context.Context, key string) (storage.FileInfo, error) {
	return s.store.Stat(ctx, storage.NormalizeKey(key))
}

type packageList struct {
	revision string
	packages []types.PackageInfo
}

// ListPackages returns the packages indexed by the repository at repoPath
// and the index revision.
func (s *RepoService) ListPackages(ctx context.Context, repoPath string) ([]types.PackageInfo, string, error) {
	repoPath = storage.NormalizeKey(repoPath)
	if s.cache != nil {
		if v, ok := s.cache.Get("packages:" + repoPath); ok {
			l := v.(packageList)
			return l.packages, l.revision, nil
		}
	}

	dir, err := os.MkdirTemp(s.WorkDir, "s3repo-serve-")
	if err != nil {
		return nil, "", fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	index, repomd, err := fetchIndex(ctx, s.store, s.gen, dir, repoPath)
	if err != nil {
		return nil, "", err
	}
	list := packageList{revision: repomd.Revision}
	for _, e := range index.Entries() {
		list.packages = append(list.packages, types.PackageInfo{
			Name:     e.Identity.Name,
			Epoch:    e.Identity.Epoch,
			Version:  e.Identity.Version,
			Release:  e.Identity.Release,
			Arch:     e.Identity.Arch,
			Location: e.Location,
			Size:     e.Size,
			Checksum: e.Checksum.Type + ":" + e.Checksum.Value,
		})
	}
	s.log.Debugf("loaded %d packages of %s at revision %s", len(list.packages), repoPath, list.revision)
	if s.cache != nil {
		s.cache.Set("packages:"+repoPath, list, s.ttl)
	}
	return list.packages, list.revision, nil
}

// GetPackageChecksum returns the indexed checksum of the package whose
// location is filename.
func (s *RepoService) GetPackageChecksum(ctx context.Context, repoPath string, filename string) (repo.Checksum, error) {
	packages, _, err := s.ListPackages(ctx, repoPath)
	if err != nil {
		return repo.Checksum{}, err
	}
	for _, p := range packages {
		if p.Location == filename || path.Base(p.Location) == filename {
			typ, value, _ := strings.Cut(p.Checksum, ":")
			return repo.Checksum{Type: typ, Value: value}, nil
		}
	}
	return repo.Checksum{}, errs.NotFound(fmt.Sprintf("package %s is not indexed in %s", filename, repoPath))
}

// Ready reports whether the repository at repoPath has a published index.
func (s *RepoService) Ready(ctx context.Context, repoPath string) (bool, error) {
	return s.store.Exists(ctx, storage.Join(repoPath, repo.RepodataDir, repo.RepomdFile))
}

// Invalidate drops cached data of the repository at repoPath.
func (s *RepoService) Invalidate(repoPath string) {
	if s.cache == nil {
		return
	}
	repoPath = storage.NormalizeKey(repoPath)
	s.cache.Delete("packages:" + repoPath)
	s.cache.DeletePrefix("object:" + storage.Join(repoPath, repo.RepodataDir))
}

func isIndexKey(key string) bool {
	return strings.HasPrefix(key, repo.RepodataDir+"/") ||
		strings.Contains(key, "/"+repo.RepodataDir+"/")
}
