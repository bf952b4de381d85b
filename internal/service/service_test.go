package service

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"s3repo/internal/cache"
	"s3repo/internal/errs"
	"s3repo/pkg/repo/rpm"
)

func newServedRepo(t *testing.T) (*fixture, *RepoService) {
	t.Helper()
	f := newFixture(t, nil)
	_, err := f.coord.Update(context.Background(), "el9", Batch{Items: []BatchItem{
		{Path: f.pkg("foo", "1.0", "1", 100)},
		{Path: f.pkg("bar", "2.0", "1", 200)},
	}})
	require.NoError(t, err)

	c := cache.NewMemoryCache(0)
	t.Cleanup(c.Close)
	svc := NewRepoService(f.store, rpm.NewGenerator(nil, nil), c, time.Minute, zap.NewNop().Sugar())
	svc.WorkDir = f.workDir
	return f, svc
}

func TestRepoServiceListPackages(t *testing.T) {
	f, svc := newServedRepo(t)
	packages, revision, err := svc.ListPackages(context.Background(), "/el9")
	require.NoError(t, err)
	assert.Equal(t, "200", revision)
	require.Len(t, packages, 2)
	assert.Equal(t, "bar", packages[0].Name)
	assert.Equal(t, "foo-1.0-1.x86_64.rpm", packages[1].Location)
	f.assertWorkspaceClean()

	sum, err := svc.GetPackageChecksum(context.Background(), "el9", "foo-1.0-1.x86_64.rpm")
	require.NoError(t, err)
	assert.Equal(t, "sha256", sum.Type)
	assert.Len(t, sum.Value, 64)

	_, err = svc.GetPackageChecksum(context.Background(), "el9", "baz.rpm")
	assert.True(t, errs.IsNotFound(err))
}

func TestRepoServiceCachesIndexObjects(t *testing.T) {
	f, svc := newServedRepo(t)
	ctx := context.Background()

	rc, err := svc.GetObject(ctx, "el9/repodata/repomd.xml")
	require.NoError(t, err)
	first, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()

	// a stale copy is served until the entry expires or is invalidated
	require.NoError(t, os.WriteFile(f.local.GetPath("el9/repodata/repomd.xml"), []byte("changed"), 0644))
	rc, err = svc.GetObject(ctx, "el9/repodata/repomd.xml")
	require.NoError(t, err)
	cached, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, first, cached)

	svc.Invalidate("el9")
	rc, err = svc.GetObject(ctx, "el9/repodata/repomd.xml")
	require.NoError(t, err)
	fresh, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "changed", string(fresh))
}

func TestRepoServiceStreamsPackages(t *testing.T) {
	_, svc := newServedRepo(t)
	rc, err := svc.GetObject(context.Background(), "el9/foo-1.0-1.x86_64.rpm")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "foo 1.0 1 x86_64 100", string(data))

	_, err = svc.GetObject(context.Background(), "el9/missing.rpm")
	assert.True(t, errs.IsNotFound(err))
}

func TestRepoServiceReady(t *testing.T) {
	_, svc := newServedRepo(t)
	ok, err := svc.Ready(context.Background(), "el9")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Ready(context.Background(), "el8")
	require.NoError(t, err)
	assert.False(t, ok)
}
