package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/valyala/fasthttp"

	"s3repo/internal/config"
)

// AuthMiddleware 校验 Bearer token 或 X-API-Key，未启用认证时直接放行
func AuthMiddleware(auth config.AuthConfig) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if !auth.Enabled {
				next(ctx)
				return
			}

			// 健康检查不需要认证
			if string(ctx.Path()) == "/health" {
				next(ctx)
				return
			}

			if authHeader := string(ctx.Request.Header.Peek("Authorization")); authHeader != "" {
				if !strings.HasPrefix(authHeader, "Bearer ") {
					ctx.Error("Invalid authorization format", fasthttp.StatusUnauthorized)
					return
				}
				if !matches(strings.TrimPrefix(authHeader, "Bearer "), auth.Token) {
					ctx.Error("Invalid token", fasthttp.StatusUnauthorized)
					return
				}
				next(ctx)
				return
			}

			// 也可以从查询参数获取
			apiKey := string(ctx.Request.Header.Peek("X-API-Key"))
			if apiKey == "" {
				apiKey = string(ctx.QueryArgs().Peek("api_key"))
			}
			if apiKey == "" {
				ctx.Error("Authorization required", fasthttp.StatusUnauthorized)
				ctx.Response.Header.Set("WWW-Authenticate", "Bearer")
				return
			}
			if !matches(apiKey, auth.APIKey) {
				ctx.Error("Invalid API key", fasthttp.StatusUnauthorized)
				return
			}

			next(ctx)
		}
	}
}

func matches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
