package configloader_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/configloader"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  http:
    addr: 127.0.0.1:9000
    timeout: 3s
data:
  driver: Memory
messaging:
  pubsub:
    enabled: false
engagement:
  max_attempts: 5
  base_backoff: 100ms
view_tracking:
  threshold: 4s
  session_debounce: 30s
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CONF_PATH", "DATABASE_URL", "DATA_DRIVER", "PORT", "PUBSUB_EMULATOR_HOST", "SERVICE_NAME", "SERVICE_VERSION", "APP_ENV"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBuild_LoadsYAMLAndDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, sampleConfig)

	bundle, err := configloader.Build(configloader.Params{ConfPath: path})
	require.NoError(t, err)
	bc := configloader.ProvideBootstrap(bundle)

	require.Equal(t, "127.0.0.1:9000", bc.Server.HTTP.Addr)
	require.Equal(t, "tcp", bc.Server.HTTP.Network)
	require.Equal(t, 3*time.Second, bc.Server.HTTP.Timeout.Std())
	require.Equal(t, configloader.DriverMemory, bc.Data.Driver)
	require.Equal(t, "engagement", bc.Data.Postgres.Schema)

	rc := configloader.ProvideReconcilerConfig(bc)
	require.Equal(t, 5, rc.MaxAttempts)
	require.Equal(t, 100*time.Millisecond, rc.BaseBackoff)
	require.Equal(t, 5*time.Second, rc.MaxBackoff)
	require.Equal(t, 10*time.Second, rc.OperationTimeout)

	vc := configloader.ProvideViewTrackerConfig(bc)
	require.Equal(t, 4*time.Second, vc.Threshold)
	require.Equal(t, time.Second, vc.HeartbeatInterval)
	require.Equal(t, 2*time.Second, vc.RepeatGuard)
	require.Equal(t, 30*time.Second, bc.ViewTracking.SessionDebounce.Std())

	meta := configloader.ProvideServiceMetadata(bundle)
	require.Equal(t, "engagement", meta.Name)
	require.Equal(t, "development", meta.Environment)
}

func TestBuild_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, sampleConfig)
	t.Setenv("DATA_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/engagement")
	t.Setenv("PORT", "8080")
	t.Setenv("PUBSUB_EMULATOR_HOST", "localhost:8085")
	t.Setenv("SERVICE_NAME", "engagement-test")

	bundle, err := configloader.Build(configloader.Params{ConfPath: path})
	require.NoError(t, err)
	bc := bundle.Bootstrap

	require.Equal(t, configloader.DriverPostgres, bc.Data.Driver)
	require.Equal(t, "postgres://u:p@db:5432/engagement", bc.Data.Postgres.DSN)
	require.Equal(t, "127.0.0.1:8080", bc.Server.HTTP.Addr)
	require.Equal(t, "localhost:8085", bc.Messaging.PubSub.EmulatorEndpoint)
	require.Equal(t, "engagement-test", bundle.Service.Name)
}

func TestBuild_ConfPathFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, sampleConfig)
	t.Setenv("CONF_PATH", path)

	require.Equal(t, path, configloader.ResolveConfPath(""))
	require.Equal(t, "explicit.yaml", configloader.ResolveConfPath("explicit.yaml"))

	_, err := configloader.Build(configloader.Params{})
	require.NoError(t, err)
}

func TestBuild_ValidationErrors(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
data:
  driver: postgres
messaging:
  pubsub:
    enabled: true
engagement:
  base_backoff: 10s
  max_backoff: 1s
`)

	_, err := configloader.Build(configloader.Params{ConfPath: path})
	require.Error(t, err)

	var buildErr configloader.BuildError
	require.True(t, errors.As(err, &buildErr))
	require.Equal(t, "validate", buildErr.Stage)
	require.Contains(t, err.Error(), "data.postgres.dsn")
	require.Contains(t, err.Error(), "project_id")
	require.Contains(t, err.Error(), "engagement_topic_id")
	require.Contains(t, err.Error(), "max_backoff")
}

func TestBuild_UnsupportedDriver(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "data:\n  driver: sqlite\n")

	_, err := configloader.Build(configloader.Params{ConfPath: path})
	require.ErrorContains(t, err, `"sqlite" is not supported`)
}

func TestBuild_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := configloader.Build(configloader.Params{ConfPath: filepath.Join(t.TempDir(), "missing.yaml")})
	var buildErr configloader.BuildError
	require.True(t, errors.As(err, &buildErr))
	require.Equal(t, "load", buildErr.Stage)
}

func TestDuration_JSON(t *testing.T) {
	var d configloader.Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	require.Equal(t, 90*time.Second, d.Std())

	out, err := d.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"1m30s"`, string(out))

	require.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))
}
