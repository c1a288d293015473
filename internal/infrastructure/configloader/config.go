// Package configloader 负责加载 YAML 配置、合并环境变量并推导服务元信息。
package configloader

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration 接受 Go duration 字符串（"300ms"、"5s"）或纳秒整数。
type Duration time.Duration

// UnmarshalJSON 实现 json.Unmarshaler；kratos config 通过 JSON 扫描结构体。
func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*d = 0
	case float64:
		*d = Duration(time.Duration(v))
	case string:
		if v == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration value: %v", raw)
	}
	return nil
}

// MarshalJSON 实现 json.Marshaler。
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std 返回 time.Duration。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Bootstrap 是 configs/config.yaml 的根结构。
type Bootstrap struct {
	Server        Server        `json:"server"`
	Data          Data          `json:"data"`
	Messaging     Messaging     `json:"messaging"`
	Engagement    Engagement    `json:"engagement"`
	ViewTracking  ViewTracking  `json:"view_tracking"`
	Observability Observability `json:"observability"`
}

// Server 描述 HTTP 监听配置。
type Server struct {
	HTTP HTTPServer `json:"http"`
}

// HTTPServer 是 kratos HTTP server 参数。
type HTTPServer struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr"`
	Timeout Duration `json:"timeout"`
}

// 存储驱动。
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Data 描述存储层配置。
type Data struct {
	Driver   string   `json:"driver"`
	Postgres Postgres `json:"postgres"`
}

// Postgres 是 pgxpool 参数。
type Postgres struct {
	DSN                string   `json:"dsn"`
	MaxOpenConns       int32    `json:"max_open_conns"`
	MinOpenConns       int32    `json:"min_open_conns"`
	MaxConnLifetime    Duration `json:"max_conn_lifetime"`
	MaxConnIdleTime    Duration `json:"max_conn_idle_time"`
	HealthCheckPeriod  Duration `json:"health_check_period"`
	Schema             string   `json:"schema"`
	PreparedStatements bool     `json:"enable_prepared_statements"`
}

// Messaging 描述 Pub/Sub 配置。
type Messaging struct {
	PubSub PubSub `json:"pubsub"`
}

// PubSub 是 Google Cloud Pub/Sub 参数；Enabled=false 时使用进程内变更流。
type PubSub struct {
	Enabled           bool          `json:"enabled"`
	ProjectID         string        `json:"project_id"`
	EmulatorEndpoint  string        `json:"emulator_endpoint"`
	EngagementTopicID string        `json:"engagement_topic_id"`
	ViewTopicID       string        `json:"view_topic_id"`
	SubscriptionID    string        `json:"subscription_id"`
	PublishTimeout    Duration      `json:"publish_timeout"`
	Receive           PubSubReceive `json:"receive"`
}

// PubSubReceive 控制订阅端并发。
type PubSubReceive struct {
	NumGoroutines          int `json:"num_goroutines"`
	MaxOutstandingMessages int `json:"max_outstanding_messages"`
}

// Engagement 控制开关协调器的重试与超时。
type Engagement struct {
	MaxAttempts      int      `json:"max_attempts"`
	BaseBackoff      Duration `json:"base_backoff"`
	MaxBackoff       Duration `json:"max_backoff"`
	OperationTimeout Duration `json:"operation_timeout"`
}

// ViewTracking 控制观看会话参数；SessionDebounce 由存储侧执行。
type ViewTracking struct {
	HeartbeatInterval Duration `json:"heartbeat_interval"`
	Threshold         Duration `json:"threshold"`
	RepeatGuard       Duration `json:"repeat_guard"`
	OperationTimeout  Duration `json:"operation_timeout"`
	SessionDebounce   Duration `json:"session_debounce"`
}

// Observability 描述日志与指标开关。
type Observability struct {
	LogLevel string  `json:"log_level"`
	Metrics  Metrics `json:"metrics"`
}

// Metrics 控制 OpenTelemetry 指标导出。
type Metrics struct {
	Enabled  bool     `json:"enabled"`
	Exporter string   `json:"exporter"`
	Interval Duration `json:"interval"`
}
