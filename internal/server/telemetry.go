package server

import (
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	kmetrics "github.com/go-kratos/kratos/v2/middleware/metrics"
	"go.opentelemetry.io/otel"
)

// requestMetrics 基于全局 MeterProvider 构造请求计数与耗时中间件。
// MeterProvider 未启用时 otel 返回 noop 实现，中间件照常挂载。
func requestMetrics(logger log.Logger) (middleware.Middleware, bool) {
	meter := otel.GetMeterProvider().Meter("lingo-services-engagement.http")
	requests, err := kmetrics.DefaultRequestsCounter(meter, kmetrics.DefaultServerRequestsCounterName)
	if err != nil {
		log.NewHelper(logger).Warnf("http metrics: register requests counter: %v", err)
		return nil, false
	}
	seconds, err := kmetrics.DefaultSecondsHistogram(meter, kmetrics.DefaultServerSecondsHistogramName)
	if err != nil {
		log.NewHelper(logger).Warnf("http metrics: register seconds histogram: %v", err)
		return nil, false
	}
	return kmetrics.Server(
		kmetrics.WithRequests(requests),
		kmetrics.WithSeconds(seconds),
	), true
}
