package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"s3repo/internal/errs"
	"s3repo/pkg/storage"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
}

func seed(store *memStore, objects map[string]string) {
	for k, v := range objects {
		store.objects[k] = []byte(v)
	}
}

func TestSyncUploadsThenDeletesStale(t *testing.T) {
	store := newMemStore()
	seed(store, map[string]string{
		"repo/repodata/repomd.xml":         "old repomd",
		"repo/repodata/old-primary.xml.gz": "old primary",
		"repo/foo-1.0-1.x86_64.rpm":        "package",
	})
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"repomd.xml":           "new repomd",
		"new-primary.xml.gz":   "new primary",
		"new-filelists.xml.gz": "new filelists",
	})

	syncer := NewSyncer(store, 4, zap.NewNop().Sugar())
	result, err := syncer.Sync(context.Background(), dir, "repo/repodata", storage.PublicRead)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Uploaded)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, []string{
		"repo/foo-1.0-1.x86_64.rpm",
		"repo/repodata/new-filelists.xml.gz",
		"repo/repodata/new-primary.xml.gz",
		"repo/repodata/repomd.xml",
	}, store.keys())

	// every put precedes the first delete, and repomd.xml is the last put
	lastPut, firstDelete := -1, len(store.ops)
	for i, op := range store.ops {
		if strings.HasPrefix(op, "put ") {
			lastPut = i
		} else if i < firstDelete {
			firstDelete = i
		}
	}
	assert.Less(t, lastPut, firstDelete)
	assert.Equal(t, "put repo/repodata/repomd.xml", store.ops[lastPut])
}

func TestSyncSecondRunIsNoop(t *testing.T) {
	store := newMemStore()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"repomd.xml":         "repomd",
		"abc-primary.xml.gz": "primary",
	})
	syncer := NewSyncer(store, 2, zap.NewNop().Sugar())

	first, err := syncer.Sync(context.Background(), dir, "/repo/repodata/", storage.PublicRead)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Uploaded)

	store.resetOps()
	second, err := syncer.Sync(context.Background(), dir, "repo/repodata", storage.PublicRead)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Skipped: 2}, second)
	assert.Empty(t, store.ops)
}

func TestSyncReuploadsChangedContent(t *testing.T) {
	store := newMemStore()
	seed(store, map[string]string{"repo/repodata/repomd.xml": "aaaa"})
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"repomd.xml": "bbbb"})

	result, err := NewSyncer(store, 1, zap.NewNop().Sugar()).Sync(context.Background(), dir, "repo/repodata", storage.PublicRead)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Uploaded)
	assert.Equal(t, "bbbb", string(store.objects["repo/repodata/repomd.xml"]))
}

func TestSyncUploadFailureDeletesNothing(t *testing.T) {
	store := newMemStore()
	seed(store, map[string]string{"repo/repodata/stale.xml.gz": "stale"})
	store.failPut["repo/repodata/b-primary.xml.gz"] = errs.TransientStore("put failed", errors.New("503"))
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a-other.xml.gz":   "a",
		"b-primary.xml.gz": "b",
		"repomd.xml":       "r",
	})

	_, err := NewSyncer(store, 1, zap.NewNop().Sugar()).Sync(context.Background(), dir, "repo/repodata", storage.PublicRead)
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))

	for _, op := range store.ops {
		assert.False(t, strings.HasPrefix(op, "delete "), op)
		assert.NotEqual(t, "put repo/repodata/repomd.xml", op)
	}
	assert.Contains(t, store.keys(), "repo/repodata/stale.xml.gz")
}

func TestSyncLeavesSiblingPrefixesAlone(t *testing.T) {
	store := newMemStore()
	seed(store, map[string]string{
		"repo/repodata-old/repomd.xml": "keep",
		"repo/bar.rpm":                 "keep",
	})
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"repomd.xml": "r"})

	result, err := NewSyncer(store, 1, zap.NewNop().Sugar()).Sync(context.Background(), dir, "repo/repodata", storage.PublicRead)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
	assert.Contains(t, store.keys(), "repo/repodata-old/repomd.xml")
}

func TestSyncPruneKeepsUnlistedKeys(t *testing.T) {
	store := newMemStore()
	seed(store, map[string]string{
		"old-primary.xml.gz": "old primary",
		"README":             "readme",
	})
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"repomd.xml": "new repomd"})

	syncer := NewSyncer(store, 2, zap.NewNop().Sugar())
	syncer.Prune = func(key string) bool { return key == "old-primary.xml.gz" }
	result, err := syncer.Sync(context.Background(), dir, "", storage.PublicRead)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, []string{"README", "repomd.xml"}, store.keys())
}
