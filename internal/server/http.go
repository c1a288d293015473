// Package server 装配 kratos HTTP Server：中间件、健康检查与业务路由。
package server

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/controllers"
	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/configloader"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/metadata"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
)

// ProviderSet 暴露 HTTP Server 构造函数。
var ProviderSet = wire.NewSet(NewHTTPServer)

const readinessTimeout = 2 * time.Second

// ReadinessProbe 检查下游依赖（数据库等）是否可用。
type ReadinessProbe interface {
	Ping(ctx context.Context) error
}

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *configloader.Server, registrars []controllers.Registrar, probe ReadinessProbe, logger log.Logger) *http.Server {
	middlewares := []middleware.Middleware{
		recovery.Recovery(),
		metadata.Server(
			metadata.WithPropagatedPrefix("x-md-"),
		),
	}
	if m, ok := requestMetrics(logger); ok {
		middlewares = append(middlewares, m)
	}
	middlewares = append(middlewares, logging.Server(logger))

	opts := []http.ServerOption{
		http.Middleware(middlewares...),
	}
	if c.HTTP.Network != "" {
		opts = append(opts, http.Network(c.HTTP.Network))
	}
	if c.HTTP.Addr != "" {
		opts = append(opts, http.Address(c.HTTP.Addr))
	}
	if c.HTTP.Timeout > 0 {
		opts = append(opts, http.Timeout(c.HTTP.Timeout.Std()))
	}

	srv := http.NewServer(opts...)

	srv.Handle("/healthz", stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
		w.WriteHeader(stdhttp.StatusOK)
	}))

	helper := log.NewHelper(logger)
	srv.Handle("/readyz", stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if probe == nil {
			w.WriteHeader(stdhttp.StatusOK)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := probe.Ping(ctx); err != nil {
			helper.WithContext(ctx).Warnw("msg", "readiness check failed", "error", err)
			writeStatus(w, stdhttp.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, stdhttp.StatusOK, "ok")
	}))

	router := srv.Route("/")
	for _, reg := range registrars {
		reg.Register(router)
	}
	return srv
}

func writeStatus(w stdhttp.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
