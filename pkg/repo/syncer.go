package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"s3repo/internal/errs"
	"s3repo/internal/metrics"
	"s3repo/pkg/storage"
)

const defaultSyncWorkers = 4

type SyncResult struct {
	Uploaded int
	Skipped  int
	Deleted  int
	Bytes    int64
}

// Syncer mirrors a local directory onto a key prefix. Every upload finishes
// before the first deletion, so a reader never sees a key disappear before
// its replacement exists.
type Syncer struct {
	store   storage.Storage
	workers int
	// Prune reports whether a stale key may be deleted. Nil deletes every
	// stale key under the prefix.
	Prune func(key string) bool
	log   *zap.SugaredLogger
}

func NewSyncer(store storage.Storage, workers int, log *zap.SugaredLogger) *Syncer {
	if workers <= 0 {
		workers = defaultSyncWorkers
	}
	return &Syncer{store: store, workers: workers, log: log}
}

type syncFile struct {
	localPath string
	key       string
}

// Sync uploads every file below localDir to prefix/<relative path> and then
// deletes remote keys under prefix that have no local counterpart. Files
// whose remote copy has the same size and sha256 are not uploaded again.
func (s *Syncer) Sync(ctx context.Context, localDir string, prefix string, visibility storage.Visibility) (SyncResult, error) {
	var result SyncResult
	prefix = storage.NormalizeKey(strings.TrimSuffix(prefix, "/"))

	listPrefix := prefix
	if listPrefix != "" {
		listPrefix += "/"
	}
	remote, err := s.store.List(ctx, listPrefix)
	if err != nil {
		return result, err
	}
	existing := make(map[string]storage.FileInfo, len(remote))
	for _, f := range remote {
		existing[f.Name] = f
	}

	files, err := collectFiles(localDir, prefix)
	if err != nil {
		return result, err
	}
	newKeys := make(map[string]bool, len(files))
	var bulk, last []syncFile
	for _, f := range files {
		newKeys[f.key] = true
		// repomd.xml and its signature reference the other files and go last
		if strings.HasPrefix(storage.Base(f.key), RepomdFile) {
			last = append(last, f)
		} else {
			bulk = append(bulk, f)
		}
	}

	var mu sync.Mutex
	record := func(uploaded bool, size int64) {
		mu.Lock()
		defer mu.Unlock()
		if uploaded {
			result.Uploaded++
			result.Bytes += size
		} else {
			result.Skipped++
		}
	}

	if err := s.uploadParallel(ctx, bulk, existing, visibility, record); err != nil {
		return result, err
	}
	for _, f := range last {
		uploaded, size, err := s.upload(ctx, f, existing, visibility)
		if err != nil {
			return result, err
		}
		record(uploaded, size)
	}

	var stale []string
	for key := range existing {
		if newKeys[key] {
			continue
		}
		if s.Prune != nil && !s.Prune(key) {
			s.log.Debugf("keeping %s", key)
			continue
		}
		stale = append(stale, key)
	}
	sort.Strings(stale)
	for _, key := range stale {
		if err := s.store.Delete(ctx, key); err != nil {
			metrics.IncrementErrors()
			return result, err
		}
		metrics.IncrementDeletes()
		s.log.Debugf("deleted stale %s", key)
		result.Deleted++
	}

	s.log.Infof("synced %s to %s: %d uploaded, %d unchanged, %d deleted",
		localDir, prefix, result.Uploaded, result.Skipped, result.Deleted)
	return result, nil
}

func (s *Syncer) uploadParallel(ctx context.Context, files []syncFile, existing map[string]storage.FileInfo, visibility storage.Visibility, record func(bool, int64)) error {
	if len(files) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerCount := s.workers
	if workerCount > len(files) {
		workerCount = len(files)
	}
	tasks := make(chan syncFile)
	results := make(chan error, len(files))
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range tasks {
				if ctx.Err() != nil {
					results <- ctx.Err()
					continue
				}
				uploaded, size, err := s.upload(ctx, f, existing, visibility)
				if err == nil {
					record(uploaded, size)
				}
				results <- err
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	go func() {
		defer close(tasks)
		for _, f := range files {
			select {
			case tasks <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	var firstErr error
	for err := range results {
		if err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}

// upload puts one file unless the remote copy is identical.
func (s *Syncer) upload(ctx context.Context, f syncFile, existing map[string]storage.FileInfo, visibility storage.Visibility) (bool, int64, error) {
	size, digest, err := fileDigest(f.localPath)
	if err != nil {
		return false, 0, err
	}
	if remote, ok := existing[f.key]; ok && remote.Size == size {
		info, err := s.store.Stat(ctx, f.key)
		switch {
		case err == nil && info.Size == size && info.SHA256 == digest:
			metrics.IncrementSkipped()
			return false, size, nil
		case err != nil && !errs.IsNotFound(err):
			metrics.IncrementErrors()
			return false, 0, err
		}
	}
	if err := s.store.Put(ctx, f.localPath, f.key, visibility); err != nil {
		metrics.IncrementErrors()
		return false, 0, err
	}
	metrics.IncrementUploads()
	metrics.AddBytes(size)
	s.log.Debugf("uploaded %s (%d bytes)", f.key, size)
	return true, size, nil
}

// collectFiles lists regular files below dir in lexicographic key order.
func collectFiles(dir string, prefix string) ([]syncFile, error) {
	var files []syncFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, syncFile{localPath: path, key: storage.Join(prefix, filepath.ToSlash(rel))})
		return nil
	})
	if err != nil {
		return nil, errs.TransientStore("failed to read "+dir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].key < files[j].key })
	return files, nil
}

func fileDigest(path string) (int64, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, "", errs.TransientStore("failed to open "+path, err)
	}
	defer file.Close()
	h := sha256.New()
	n, err := io.Copy(h, file)
	if err != nil {
		return 0, "", errs.TransientStore("failed to hash "+path, err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
