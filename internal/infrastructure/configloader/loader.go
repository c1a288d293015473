package configloader

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/joho/godotenv"
)

const (
	envConfPath       = "CONF_PATH"
	envServiceName    = "SERVICE_NAME"
	envServiceVersion = "SERVICE_VERSION"
	envAppEnv         = "APP_ENV"
	envDatabaseURL    = "DATABASE_URL"
	envPort           = "PORT"
	envPubSubEmulator = "PUBSUB_EMULATOR_HOST"
	envDataDriver     = "DATA_DRIVER"
)

var envFileNames = []string{".env.local", ".env"}

// Params 包含构造配置 Bundle 所需的运行时输入参数。
type Params struct {
	ConfPath string // 配置文件路径（可为空，使用默认值）
}

// ServiceMetadata 保存服务标识信息，供日志与指标使用。
type ServiceMetadata struct {
	Name        string
	Version     string
	Environment string
	InstanceID  string
}

// Bundle 聚合配置与服务元信息，供 Wire 注入使用。
type Bundle struct {
	Bootstrap *Bootstrap
	Service   ServiceMetadata
}

// BuildError 捕获配置构建过程中的上下文错误信息。
type BuildError struct {
	Stage string
	Path  string
	Err   error
}

// Error 实现 error 接口。
func (e BuildError) Error() string {
	if e.Stage == "" {
		return e.Err.Error()
	}
	if e.Path != "" {
		return fmt.Sprintf("config %s at %q: %v", e.Stage, e.Path, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Stage, e.Err)
}

// Unwrap 暴露底层错误，支持 errors.Is/As。
func (e BuildError) Unwrap() error {
	return e.Err
}

// Build 从配置目录/文件构建 Bundle。
//
// 流程：解析路径 → best-effort 加载 .env → 读取并扫描 YAML → 环境变量覆盖 → 默认值 → 校验。
func Build(params Params) (*Bundle, error) {
	confPath := ResolveConfPath(params.ConfPath)
	loadEnvFiles(confPath)

	bootstrap, err := loadBootstrap(confPath)
	if err != nil {
		return nil, err
	}
	return &Bundle{
		Bootstrap: bootstrap,
		Service:   buildServiceMetadata(),
	}, nil
}

// ResolveConfPath 优先级：显式传入路径 > CONF_PATH 环境变量 > 默认路径。
func ResolveConfPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(envConfPath); env != "" {
		return env
	}
	return defaultConfPath
}

// loadBootstrap 加载配置；错误阶段为 load / scan / validate。
func loadBootstrap(confPath string) (*Bootstrap, error) {
	c := config.New(config.WithSource(file.NewSource(confPath)))
	if err := c.Load(); err != nil {
		return nil, BuildError{Stage: "load", Path: confPath, Err: err}
	}
	defer c.Close()

	var bc Bootstrap
	if err := c.Scan(&bc); err != nil {
		return nil, BuildError{Stage: "scan", Path: confPath, Err: err}
	}
	applyEnvOverrides(&bc)
	applyDefaults(&bc)
	if err := validate(&bc); err != nil {
		return nil, BuildError{Stage: "validate", Path: confPath, Err: err}
	}
	return &bc, nil
}

// applyEnvOverrides 用环境变量覆盖部署相关字段，空值不覆盖。
func applyEnvOverrides(bc *Bootstrap) {
	if bc == nil {
		return
	}
	if dsn := os.Getenv(envDatabaseURL); dsn != "" {
		bc.Data.Postgres.DSN = dsn
	}
	if driver := os.Getenv(envDataDriver); driver != "" {
		bc.Data.Driver = driver
	}
	// Cloud Run 通过 $PORT 分配端口
	if port := os.Getenv(envPort); port != "" {
		bc.Server.HTTP.Addr = replacePort(bc.Server.HTTP.Addr, port)
	}
	if host := os.Getenv(envPubSubEmulator); host != "" {
		bc.Messaging.PubSub.EmulatorEndpoint = host
	}
}

func validate(bc *Bootstrap) error {
	var errs []error
	switch bc.Data.Driver {
	case DriverPostgres:
		if strings.TrimSpace(bc.Data.Postgres.DSN) == "" {
			errs = append(errs, errors.New("data.postgres.dsn is required for postgres driver (set DATABASE_URL)"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("data.driver %q is not supported", bc.Data.Driver))
	}
	if bc.Data.Postgres.MinOpenConns < 0 || bc.Data.Postgres.MinOpenConns > bc.Data.Postgres.MaxOpenConns {
		errs = append(errs, errors.New("data.postgres.min_open_conns must be within [0, max_open_conns]"))
	}
	if ps := bc.Messaging.PubSub; ps.Enabled {
		if ps.ProjectID == "" {
			errs = append(errs, errors.New("messaging.pubsub.project_id is required when pubsub is enabled"))
		}
		if ps.EngagementTopicID == "" {
			errs = append(errs, errors.New("messaging.pubsub.engagement_topic_id is required when pubsub is enabled"))
		}
	}
	if bc.Engagement.MaxBackoff < bc.Engagement.BaseBackoff {
		errs = append(errs, errors.New("engagement.max_backoff must not be less than base_backoff"))
	}
	return errors.Join(errs...)
}

// buildServiceMetadata 从 SERVICE_NAME / SERVICE_VERSION / APP_ENV 与主机名推导元信息。
func buildServiceMetadata() ServiceMetadata {
	host, _ := os.Hostname()
	return ServiceMetadata{
		Name:        resolveServiceName(os.Getenv(envServiceName)),
		Version:     resolveServiceVersion(os.Getenv(envServiceVersion)),
		Environment: resolveEnvironment(os.Getenv(envAppEnv)),
		InstanceID:  resolveInstanceID(host),
	}
}

// loadEnvFiles best-effort 加载 .env 文件，失败时忽略。
// godotenv 不覆盖已存在的环境变量，因此列表靠前的文件优先。
func loadEnvFiles(confPath string) {
	files := envFileCandidates(confPath)
	if len(files) == 0 {
		return
	}
	_ = godotenv.Load(files...)
}

func envFileCandidates(confPath string) []string {
	seen := make(map[string]struct{})
	var files []string
	for _, dir := range orderedDirs(confPath) {
		for _, name := range envFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			if _, ok := seen[candidate]; ok {
				continue
			}
			files = append(files, candidate)
			seen[candidate] = struct{}{}
		}
	}
	return files
}

// orderedDirs 返回 .env 搜索目录：配置所在目录优先，其次当前工作目录。
func orderedDirs(confPath string) []string {
	var dirs []string
	appendUnique := func(path string) {
		if path == "" {
			return
		}
		clean := filepath.Clean(path)
		for _, existing := range dirs {
			if existing == clean {
				return
			}
		}
		dirs = append(dirs, clean)
	}

	if confPath != "" {
		if info, err := os.Stat(confPath); err == nil {
			if info.IsDir() {
				appendUnique(confPath)
			} else {
				appendUnique(filepath.Dir(confPath))
			}
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		appendUnique(cwd)
	}
	return dirs
}

// replacePort 替换地址中的端口部分，保留 host。
//   - "0.0.0.0:8000" -> "0.0.0.0:8080"
//   - "[::1]:8000" -> "[::1]:8080"
func replacePort(addr, newPort string) string {
	if addr == "" {
		return "0.0.0.0:" + newPort
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return "0.0.0.0:" + newPort
	}
	return net.JoinHostPort(host, newPort)
}
