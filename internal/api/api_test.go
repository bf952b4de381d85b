package api

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"s3repo/internal/cache"
	"s3repo/internal/config"
	"s3repo/internal/service"
	"s3repo/internal/types"
	"s3repo/pkg/repo"
	"s3repo/pkg/repo/rpm"
	"s3repo/pkg/storage/local"
)

const pkgSum = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newHandler(t *testing.T, auth config.AuthConfig) fasthttp.RequestHandler {
	t.Helper()
	root := t.TempDir()
	store, err := local.NewLocalStorage(root, zap.NewNop().Sugar())
	require.NoError(t, err)

	entry, err := rpm.NewEntry(types.Package{
		Type:     "rpm",
		Name:     "foo",
		Arch:     "x86_64",
		Version:  types.Version{Epoch: "0", Ver: "1.0", Rel: "1"},
		Checksum: types.Checksum{Type: "sha256", Pkgid: "YES", Value: pkgSum},
		Time:     types.Time{File: 100, Build: 100},
		Size:     types.Size{Package: 7},
		Location: types.Location{Href: "foo-1.0-1.x86_64.rpm"},
	}, nil)
	require.NoError(t, err)
	gen := rpm.NewGenerator(nil, nil)
	_, err = gen.Render(context.Background(), []repo.PackageEntry{entry}, filepath.Join(root, "el9"), "sha256")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "el9", "foo-1.0-1.x86_64.rpm"), []byte("rpmdata"), 0644))

	c := cache.NewMemoryCache(0)
	t.Cleanup(c.Close)
	svc := service.NewRepoService(store, gen, c, time.Minute, zap.NewNop().Sugar())
	svc.WorkDir = t.TempDir()
	return SetupRouter(NewAPI(svc, "el9", zap.NewNop().Sugar()), auth)
}

func do(handler fasthttp.RequestHandler, method, uri string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	handler(ctx)
	return ctx
}

func decode(t *testing.T, ctx *fasthttp.RequestCtx) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out), string(ctx.Response.Body()))
	return out
}

func TestHealthAndReady(t *testing.T) {
	handler := newHandler(t, config.AuthConfig{})

	ctx := do(handler, "GET", "/health")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "healthy", decode(t, ctx)["status"])

	ctx = do(handler, "GET", "/ready")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}

func TestServeObjects(t *testing.T) {
	handler := newHandler(t, config.AuthConfig{})

	ctx := do(handler, "GET", "/el9/repodata/repomd.xml")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "application/xml", string(ctx.Response.Header.ContentType()))
	assert.True(t, strings.Contains(string(ctx.Response.Body()), "<revision>100</revision>"))

	ctx = do(handler, "GET", "/el9/foo-1.0-1.x86_64.rpm")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "rpmdata", string(ctx.Response.Body()))
	assert.Equal(t, "application/x-rpm", string(ctx.Response.Header.ContentType()))

	ctx = do(handler, "HEAD", "/el9/foo-1.0-1.x86_64.rpm")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, 7, ctx.Response.Header.ContentLength())
	assert.NotEmpty(t, ctx.Response.Header.Peek("ETag"))

	ctx = do(handler, "GET", "/el9/missing.rpm")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	ctx = do(handler, "DELETE", "/el9/foo-1.0-1.x86_64.rpm")
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
}

func TestRepoInfoAndChecksum(t *testing.T) {
	handler := newHandler(t, config.AuthConfig{})

	ctx := do(handler, "GET", "/repo/el9")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	info := decode(t, ctx)
	assert.Equal(t, "el9", info["repo"])
	assert.Equal(t, float64(1), info["count"])
	assert.Equal(t, "100", info["revision"])

	ctx = do(handler, "GET", "/repo/el9/checksum/foo-1.0-1.x86_64.rpm")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	sum := decode(t, ctx)
	assert.Equal(t, "sha256", sum["type"])
	assert.Equal(t, pkgSum, sum["checksum"])

	ctx = do(handler, "GET", "/repo/el9/checksum/bar.rpm")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	ctx = do(handler, "GET", "/repo/el8")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	ctx = do(handler, "POST", "/repo/el9/refresh")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newHandler(t, config.AuthConfig{})
	ctx := do(handler, "GET", "/metrics")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	body := decode(t, ctx)
	assert.Contains(t, body, "transfers")
	assert.Contains(t, body, "requests")
}

func TestAuthProtectsObjects(t *testing.T) {
	handler := newHandler(t, config.AuthConfig{Enabled: true, Token: "secret"})

	ctx := do(handler, "GET", "/el9/repodata/repomd.xml")
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())

	ctx = do(handler, "GET", "/health")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}
