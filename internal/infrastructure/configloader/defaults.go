package configloader

import (
	"strings"
	"time"
)

const (
	defaultConfPath    = "configs"
	defaultServiceName = "engagement"
	defaultVersion     = "dev"
	defaultEnvironment = "development"
	defaultHTTPAddr    = "0.0.0.0:8000"
	defaultSchema      = "engagement"
)

// applyDefaults 为缺省字段填充默认值。
func applyDefaults(bc *Bootstrap) {
	if bc.Server.HTTP.Network == "" {
		bc.Server.HTTP.Network = "tcp"
	}
	if bc.Server.HTTP.Addr == "" {
		bc.Server.HTTP.Addr = defaultHTTPAddr
	}
	if bc.Server.HTTP.Timeout <= 0 {
		bc.Server.HTTP.Timeout = Duration(5 * time.Second)
	}

	bc.Data.Driver = strings.ToLower(strings.TrimSpace(bc.Data.Driver))
	if bc.Data.Driver == "" {
		bc.Data.Driver = DriverPostgres
	}
	if bc.Data.Postgres.Schema == "" {
		bc.Data.Postgres.Schema = defaultSchema
	}
	if bc.Data.Postgres.MaxOpenConns <= 0 {
		bc.Data.Postgres.MaxOpenConns = 10
	}

	ps := &bc.Messaging.PubSub
	if ps.PublishTimeout <= 0 {
		ps.PublishTimeout = Duration(5 * time.Second)
	}
	if ps.Receive.NumGoroutines <= 0 {
		ps.Receive.NumGoroutines = 2
	}
	if ps.Receive.MaxOutstandingMessages <= 0 {
		ps.Receive.MaxOutstandingMessages = 100
	}

	eg := &bc.Engagement
	if eg.MaxAttempts <= 0 {
		eg.MaxAttempts = 3
	}
	if eg.BaseBackoff <= 0 {
		eg.BaseBackoff = Duration(300 * time.Millisecond)
	}
	if eg.MaxBackoff <= 0 {
		eg.MaxBackoff = Duration(5 * time.Second)
	}
	if eg.OperationTimeout <= 0 {
		eg.OperationTimeout = Duration(10 * time.Second)
	}

	vt := &bc.ViewTracking
	if vt.HeartbeatInterval <= 0 {
		vt.HeartbeatInterval = Duration(time.Second)
	}
	if vt.Threshold <= 0 {
		vt.Threshold = Duration(3 * time.Second)
	}
	// 负值表示关闭重复观看保护
	if vt.RepeatGuard == 0 {
		vt.RepeatGuard = Duration(2 * time.Second)
	}
	if vt.OperationTimeout <= 0 {
		vt.OperationTimeout = Duration(5 * time.Second)
	}
	if vt.SessionDebounce < 0 {
		vt.SessionDebounce = 0
	}

	if bc.Observability.LogLevel == "" {
		bc.Observability.LogLevel = "info"
	}
	if bc.Observability.Metrics.Exporter == "" {
		bc.Observability.Metrics.Exporter = "stdout"
	}
	if bc.Observability.Metrics.Interval <= 0 {
		bc.Observability.Metrics.Interval = Duration(60 * time.Second)
	}
}

func resolveServiceName(name string) string {
	if name == "" {
		return defaultServiceName
	}
	return name
}

func resolveServiceVersion(version string) string {
	if version == "" {
		return defaultVersion
	}
	return version
}

func resolveEnvironment(env string) string {
	if env == "" {
		return defaultEnvironment
	}
	return env
}

func resolveInstanceID(host string) string {
	if host == "" {
		return "unknown-host"
	}
	return host
}
