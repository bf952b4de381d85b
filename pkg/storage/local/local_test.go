package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"s3repo/internal/errs"
	"s3repo/pkg/storage"
)

func setupStorage(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	tempDir := t.TempDir()
	ls, err := NewLocalStorage(filepath.Join(tempDir, "bucket"), zap.NewNop().Sugar())
	require.NoError(t, err)
	return ls, tempDir
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestPutAndGet(t *testing.T) {
	ls, tempDir := setupStorage(t)
	ctx := context.Background()

	src := writeSource(t, tempDir, "foo.rpm", "rpm content")
	require.NoError(t, ls.Put(ctx, src, "repo/foo.rpm", storage.PublicRead))

	reader, err := ls.Get(ctx, "repo/foo.rpm")
	require.NoError(t, err)
	defer reader.Close()
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "rpm content", string(content))

	// 测试存储到子目录
	require.NoError(t, ls.Put(ctx, src, "/repo/repodata/repomd.xml", storage.PublicRead))
	_, err = os.Stat(filepath.Join(tempDir, "bucket", "repo", "repodata", "repomd.xml"))
	assert.NoError(t, err)
}

func TestPutVisibility(t *testing.T) {
	ls, tempDir := setupStorage(t)
	ctx := context.Background()
	src := writeSource(t, tempDir, "a.rpm", "a")

	require.NoError(t, ls.Put(ctx, src, "pub.rpm", storage.PublicRead))
	require.NoError(t, ls.Put(ctx, src, "priv.rpm", storage.Private))

	info, err := os.Stat(ls.GetPath("pub.rpm"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	info, err = os.Stat(ls.GetPath("priv.rpm"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestGetMissingIsNotFound(t *testing.T) {
	ls, _ := setupStorage(t)

	_, err := ls.Get(context.Background(), "nonexistent.rpm")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))

	_, err = ls.Stat(context.Background(), "nonexistent.rpm")
	assert.True(t, errs.IsNotFound(err))
}

func TestStatChecksum(t *testing.T) {
	ls, tempDir := setupStorage(t)
	ctx := context.Background()
	src := writeSource(t, tempDir, "hello.txt", "hello")
	require.NoError(t, ls.Put(ctx, src, "hello.txt", storage.PublicRead))

	info, err := ls.Stat(ctx, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", info.SHA256)
}

func TestListIsPrefixScopedAndSorted(t *testing.T) {
	ls, tempDir := setupStorage(t)
	ctx := context.Background()
	src := writeSource(t, tempDir, "x", "x")

	for _, key := range []string{
		"repo/repodata/repomd.xml",
		"repo/repodata/abc-primary.xml.gz",
		"repo/repodata-old/repomd.xml",
		"repo/foo.rpm",
		"other/repodata/repomd.xml",
	} {
		require.NoError(t, ls.Put(ctx, src, key, storage.PublicRead))
	}

	files, err := ls.List(ctx, "repo/repodata/")
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"repo/repodata/abc-primary.xml.gz", "repo/repodata/repomd.xml"}, names)

	files, err = ls.List(ctx, "missing/")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestExistsAndDelete(t *testing.T) {
	ls, tempDir := setupStorage(t)
	ctx := context.Background()
	src := writeSource(t, tempDir, "x", "x")
	require.NoError(t, ls.Put(ctx, src, "repo/foo.rpm", storage.PublicRead))

	exists, err := ls.Exists(ctx, "repo/foo.rpm")
	require.NoError(t, err)
	assert.True(t, exists)

	// 目录不是对象
	exists, err = ls.Exists(ctx, "repo")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, ls.Delete(ctx, "repo/foo.rpm"))
	exists, err = ls.Exists(ctx, "repo/foo.rpm")
	require.NoError(t, err)
	assert.False(t, exists)

	// 删除不存在的对象不是错误
	assert.NoError(t, ls.Delete(ctx, "repo/foo.rpm"))
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	ls, tempDir := setupStorage(t)
	src := writeSource(t, tempDir, "x", "x")

	err := ls.Put(context.Background(), src, "../escape.rpm", storage.PublicRead)
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
}

func TestFetch(t *testing.T) {
	ls, tempDir := setupStorage(t)
	ctx := context.Background()
	src := writeSource(t, tempDir, "repomd.xml", "<repomd/>")
	require.NoError(t, ls.Put(ctx, src, "repo/repodata/repomd.xml", storage.PublicRead))

	dest := filepath.Join(tempDir, "ws", "repodata", "repomd.xml")
	require.NoError(t, storage.Fetch(ctx, ls, "repo/repodata/repomd.xml", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "<repomd/>", string(data))

	err = storage.Fetch(ctx, ls, "repo/repodata/none.xml", dest)
	assert.True(t, errs.IsNotFound(err))
}

func TestRegisteredInFactory(t *testing.T) {
	tempDir := t.TempDir()
	s, err := storage.Create(storage.Local, storage.Config{Path: tempDir, Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tempDir, "b", "k"), s.GetPath("k"))
}
