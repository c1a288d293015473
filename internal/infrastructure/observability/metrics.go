// Package observability 初始化 OpenTelemetry 指标管线。
package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/configloader"

	"github.com/go-kratos/kratos/v2/log"
	kmetrics "github.com/go-kratos/kratos/v2/middleware/metrics"
	"github.com/google/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ProviderSet 暴露指标提供器。
var ProviderSet = wire.NewSet(NewMeterProvider)

// MeterProvider 包装 SDK provider；未启用时为 nil。
type MeterProvider struct {
	*sdkmetric.MeterProvider
}

// NewMeterProvider 根据配置安装全局 MeterProvider。
// 目前仅支持 stdout 导出器，未启用时保留 otel 默认的 noop provider。
func NewMeterProvider(ctx context.Context, bc *configloader.Bootstrap, logger log.Logger) (*MeterProvider, func(), error) {
	helper := log.NewHelper(logger)
	cfg := bc.Observability.Metrics
	if !cfg.Enabled {
		return &MeterProvider{}, func() {}, nil
	}
	if exporter := strings.ToLower(cfg.Exporter); exporter != "stdout" {
		return nil, nil, fmt.Errorf("observability: unsupported metrics exporter %q", cfg.Exporter)
	}

	exp, err := stdoutmetric.New()
	if err != nil {
		return nil, nil, fmt.Errorf("observability: create stdout exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.Interval.Std()))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(kmetrics.DefaultSecondsHistogramView(kmetrics.DefaultServerSecondsHistogramName)),
	)
	otel.SetMeterProvider(provider)
	helper.Infof("metrics enabled: exporter=stdout interval=%s", cfg.Interval.Std())

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			helper.Warnw("msg", "shutdown meter provider failed", "error", err)
		}
	}
	return &MeterProvider{MeterProvider: provider}, cleanup, nil
}
