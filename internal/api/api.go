package api

import (
	"fmt"
	"io"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"s3repo/internal/config"
	"s3repo/internal/errs"
	"s3repo/internal/metrics"
	"s3repo/internal/middleware"
	"s3repo/internal/service"
	"s3repo/internal/types"
	"s3repo/internal/utils"
	"s3repo/pkg/storage"
)

const Server = "s3repo"

type API struct {
	repoService *service.RepoService
	// repoPath 就绪检查使用的默认仓库
	repoPath string
	log      *zap.SugaredLogger
}

func NewAPI(repoService *service.RepoService, repoPath string, log *zap.SugaredLogger) *API {
	return &API{
		repoService: repoService,
		repoPath:    repoPath,
		log:         log,
	}
}

var patterns = map[string]*regexp.Regexp{
	"checksum":  regexp.MustCompile(`^/repo/(.+)/checksum/([^/]+)$`),
	"refresh":   regexp.MustCompile(`^/repo/(.+)/refresh$`),
	"repo_info": regexp.MustCompile(`^/repo/(.+?)/?$`),
}

func SetupRouter(h *API, auth config.AuthConfig) fasthttp.RequestHandler {
	return middleware.CORSMiddleware(
		middleware.LoggingMiddleware(h.log)(
			middleware.MetricsMiddleware(
				middleware.AuthMiddleware(auth)(h.route),
			),
		),
	)
}

func (h *API) route(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	h.log.Debugf("request: %s %s", method, path)

	if handleAPIEndpoints(ctx, method, path, h) {
		return
	}

	// 按优先级顺序检查模式
	if strings.HasPrefix(path, "/repo/") {
		for _, name := range []string{"checksum", "refresh", "repo_info"} {
			matches := patterns[name].FindStringSubmatch(path)
			if matches == nil {
				continue
			}
			switch {
			case name == "checksum" && method == fasthttp.MethodGet:
				h.GetPackageChecksum(ctx, matches[1], matches[2])
			case name == "refresh" && method == fasthttp.MethodPost:
				h.RefreshRepo(ctx, matches[1])
			case name == "repo_info" && method == fasthttp.MethodGet:
				h.GetRepoInfo(ctx, matches[1])
			default:
				continue
			}
			return
		}
	}

	// 其余路径直接映射为对象键
	switch method {
	case fasthttp.MethodGet:
		h.ServeObject(ctx, path)
	case fasthttp.MethodHead:
		h.HeadObject(ctx, path)
	default:
		ctx.Error("Method not allowed", fasthttp.StatusMethodNotAllowed)
	}
}

func handleAPIEndpoints(ctx *fasthttp.RequestCtx, method, path string, h *API) bool {
	if method != fasthttp.MethodGet {
		return false
	}
	switch path {
	case "/health":
		h.Health(ctx)
	case "/ready":
		h.Ready(ctx)
	case "/metrics":
		h.Metrics(ctx)
	default:
		return false
	}
	return true
}

func (h *API) ServeObject(ctx *fasthttp.RequestCtx, path string) {
	key := storage.NormalizeKey(path)
	if key == "" || strings.HasSuffix(key, "/") {
		ctx.Error("Not Found", fasthttp.StatusNotFound)
		return
	}

	reader, err := h.repoService.GetObject(ctx, key)
	if err != nil {
		h.log.Debugf("object %s: %v", key, err)
		h.sendError(ctx, key, err)
		return
	}

	setObjectHeaders(ctx, key)
	// fasthttp 在发送完成后关闭 reader
	ctx.SetBodyStream(reader, -1)
}

func (h *API) HeadObject(ctx *fasthttp.RequestCtx, path string) {
	key := storage.NormalizeKey(path)
	info, err := h.repoService.StatObject(ctx, key)
	if err != nil {
		h.sendError(ctx, key, err)
		return
	}

	setObjectHeaders(ctx, key)
	ctx.Response.Header.SetContentLength(int(info.Size))
	if info.SHA256 != "" {
		ctx.Response.Header.Set("ETag", strconv.Quote(info.SHA256))
	}
	if !info.ModTime.IsZero() {
		ctx.Response.Header.SetBytesV("Last-Modified", fasthttp.AppendHTTPDate(nil, info.ModTime))
	}
}

func setObjectHeaders(ctx *fasthttp.RequestCtx, key string) {
	ctx.Response.Header.Set("Content-Type", utils.ContentType(key))
	if strings.HasSuffix(key, ".rpm") {
		ctx.Response.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", storage.Base(key)))
		ctx.Response.Header.Set("Cache-Control", "public, max-age=3600")
	} else {
		// 索引文件随时可能被替换
		ctx.Response.Header.Set("Cache-Control", "public, max-age=60")
	}
}

func (h *API) GetRepoInfo(ctx *fasthttp.RequestCtx, repoPath string) {
	packages, revision, err := h.repoService.ListPackages(ctx, repoPath)
	if err != nil {
		h.log.Debugf("get repo info failed for %s: %v", repoPath, err)
		h.sendError(ctx, repoPath, err)
		return
	}

	var totalSize int64
	for _, pkg := range packages {
		totalSize += pkg.Size
	}

	h.sendJSONResponse(ctx, &types.RepoInfo{
		Status:    types.Status{Status: "success"},
		Repo:      repoPath,
		Revision:  revision,
		Count:     len(packages),
		TotalSize: totalSize,
		Packages:  packages,
	}, fasthttp.StatusOK)
}

func (h *API) GetPackageChecksum(ctx *fasthttp.RequestCtx, repoPath, filename string) {
	checksum, err := h.repoService.GetPackageChecksum(ctx, repoPath, filename)
	if err != nil {
		h.log.Debugf("checksum of %s in %s: %v", filename, repoPath, err)
		h.sendError(ctx, filename, err)
		return
	}

	h.sendJSONResponse(ctx, &types.PackageChecksum{
		Status:   types.Status{Status: "success"},
		Repo:     repoPath,
		Filename: filename,
		Type:     checksum.Type,
		Checksum: checksum.Value,
	}, fasthttp.StatusOK)
}

// RefreshRepo drops cached index data so the next request sees the latest
// published revision.
func (h *API) RefreshRepo(ctx *fasthttp.RequestCtx, repoPath string) {
	h.repoService.Invalidate(repoPath)
	h.sendJSONResponse(ctx, &types.Status{
		Status:  "success",
		Message: "cache of " + repoPath + " invalidated",
	}, fasthttp.StatusOK)
}

func (h *API) Health(ctx *fasthttp.RequestCtx) {
	h.sendJSONResponse(ctx, &types.Status{
		Status: "healthy",
		Server: Server,
	}, fasthttp.StatusOK)
}

func (h *API) Ready(ctx *fasthttp.RequestCtx) {
	check := &types.ReadyCheck{
		Status: types.Status{Status: "ready"},
		Checks: types.Checks{Storage: "ok", Index: "ok"},
	}
	ok, err := h.repoService.Ready(ctx, h.repoPath)
	switch {
	case err != nil:
		check.Status.Status = "not ready"
		check.Checks.Storage = errs.Message(err)
	case !ok:
		check.Status.Status = "not ready"
		check.Checks.Index = "missing"
	}
	status := fasthttp.StatusOK
	if check.Status.Status != "ready" {
		status = fasthttp.StatusServiceUnavailable
	}
	h.sendJSONResponse(ctx, check, status)
}

func (h *API) Metrics(ctx *fasthttp.RequestCtx) {
	m := metrics.GetMetrics()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	h.sendJSONResponse(ctx, &types.Metrics{
		Requests: types.Requests{
			Total:     m.RequestCount,
			Downloads: m.DownloadCount,
			Errors:    m.ErrorCount,
			Active:    m.ActiveRequests,
		},
		Transfers: types.Transfers{
			Uploads: m.UploadCount,
			Skipped: m.SkippedCount,
			Deletes: m.DeleteCount,
			Bytes:   m.UploadedBytes,
		},
		Performance: types.Performance{
			ResponseTimeMs: m.ResponseTime,
			Goroutines:     runtime.NumGoroutine(),
		},
		Memory: types.Memory{
			AllocMB:      memStats.Alloc / 1024 / 1024,
			TotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
			SysMB:        memStats.Sys / 1024 / 1024,
			GCCycles:     memStats.NumGC,
		},
	}, fasthttp.StatusOK)
}

// 发送 JSON 成功响应
func (h *API) sendJSONResponse(ctx *fasthttp.RequestCtx, data io.WriterTo, statusCode int) {
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.SetStatusCode(statusCode)

	if _, err := data.WriteTo(ctx); err != nil {
		h.log.Debugf("failed to encode JSON response: %v", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"status":"error","message":"Internal server error"}`)
	}
}

// sendError 根据错误类型选择状态码
func (h *API) sendError(ctx *fasthttp.RequestCtx, subject string, err error) {
	var status int
	var message string
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		status, message = fasthttp.StatusNotFound, subject+" not found"
	case errs.KindConfiguration:
		status, message = fasthttp.StatusBadRequest, errs.Message(err)
	case errs.KindTransientStore:
		status, message = fasthttp.StatusBadGateway, "object store unavailable"
	default:
		status, message = fasthttp.StatusInternalServerError, "internal error"
	}
	h.sendJSONResponse(ctx, &types.Status{Status: "error", Message: message, Code: status}, status)
}
