package middleware

import (
	"time"

	"github.com/valyala/fasthttp"

	"s3repo/internal/metrics"
)

func MetricsMiddleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		metrics.IncrementRequests()
		metrics.IncrementActiveRequests()

		defer func() {
			metrics.DecrementActiveRequests()
			metrics.RecordResponseTime(time.Since(start))
		}()

		next(ctx)

		if ctx.Response.StatusCode() >= 400 {
			metrics.IncrementErrors()
		}
	}
}
