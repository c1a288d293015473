package repositories_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
	"github.com/bionicotaku/lingo-services-engagement/internal/repositories"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/docker/go-connections/nat"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newPostgresPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn, terminate := startPostgres(ctx, t)
	t.Cleanup(terminate)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	applyMigrations(ctx, t, pool)
	return pool
}

func TestPostgresStore_Contract(t *testing.T) {
	ctx := context.Background()
	pool := newPostgresPool(ctx, t)

	store := repositories.NewPostgresStore(pool, nil, repositories.StoreConfig{}, log.NewStdLogger(io.Discard))
	require.NoError(t, store.Ping(ctx))
	runStoreContract(t, store)
}

func TestPostgresStore_CountersNeverNegative(t *testing.T) {
	ctx := context.Background()
	pool := newPostgresPool(ctx, t)
	store := repositories.NewPostgresStore(pool, nil, repositories.StoreConfig{}, log.NewStdLogger(io.Discard))

	require.NoError(t, store.UpsertVideo(ctx, "v1", "owner"))
	// 直接写入一条关系但不调整计数，模拟历史数据漂移。
	_, err := pool.Exec(ctx, `INSERT INTO engagement.flags (kind, actor_id, target_id) VALUES ('like', 'u1', 'v1')`)
	require.NoError(t, err)

	outcome, err := store.ApplyFlag(ctx, po.FlagMutation{Key: po.FlagKey{Kind: po.KindLike, ActorID: "u1", TargetID: "v1"}, On: false})
	require.NoError(t, err)
	require.True(t, outcome.Changed)
	require.Zero(t, counterOf(outcome, "v1", po.CounterLikes))
}

func TestPostgresStore_SessionDebounce(t *testing.T) {
	ctx := context.Background()
	pool := newPostgresPool(ctx, t)
	store := repositories.NewPostgresStore(pool, nil, repositories.StoreConfig{SessionDebounce: time.Hour}, log.NewStdLogger(io.Discard))
	require.NoError(t, store.UpsertVideo(ctx, "v1", "owner"))

	_, err := store.StartViewSession(ctx, "v1", "u1")
	require.NoError(t, err)
	_, err = store.StartViewSession(ctx, "v1", "u1")
	require.ErrorIs(t, err, services.ErrSessionDebounced)
	_, err = store.StartViewSession(ctx, "v1", "u2")
	require.NoError(t, err)
}

func TestPostgresStore_ViewCounterMatchesRecordedViews(t *testing.T) {
	ctx := context.Background()
	pool := newPostgresPool(ctx, t)
	logger := log.NewStdLogger(io.Discard)
	store := repositories.NewPostgresStore(pool, nil, repositories.StoreConfig{}, logger)
	sessions := repositories.NewViewSessionRepository(logger)
	require.NoError(t, store.UpsertVideo(ctx, "v1", "owner"))

	for i, reached := range []bool{true, false, true} {
		sessionID, err := store.StartViewSession(ctx, "v1", fmt.Sprintf("viewer-%d", i))
		require.NoError(t, err)
		stop := po.SessionStop{SessionID: sessionID, FinalDelta: time.Second, ThresholdReached: reached}
		require.NoError(t, store.StopViewSession(ctx, stop))
		// 已结束的会话不会再次计数。
		require.ErrorIs(t, store.StopViewSession(ctx, stop), services.ErrNotFound)
	}

	recorded, err := sessions.CountViews(ctx, pool, "v1")
	require.NoError(t, err)
	require.Equal(t, int64(2), recorded)

	counters, err := store.Counters(ctx, "v1")
	require.NoError(t, err)
	require.Equal(t, recorded, counters.Values[po.CounterViews])
}

func TestNotificationRepository_CreateListMarkRead(t *testing.T) {
	ctx := context.Background()
	pool := newPostgresPool(ctx, t)
	repo := repositories.NewNotificationRepository(pool, log.NewStdLogger(io.Discard))

	for i := 0; i < 3; i++ {
		payload := json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i))
		require.NoError(t, repo.Create(ctx, "u2", fmt.Sprintf("u%d", 10+i), po.KindFollow, payload))
	}
	require.NoError(t, repo.Create(ctx, "u3", "u1", po.KindFollow, json.RawMessage(`{}`)))

	items, err := repo.ListNotifications(ctx, "u2", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, po.KindFollow, items[0].Kind)
	require.False(t, items[0].Read)
	require.False(t, items[0].CreatedAt.Before(items[1].CreatedAt))

	require.NoError(t, repo.MarkNotificationRead(ctx, "u2", items[0].NotificationID))
	require.ErrorIs(t, repo.MarkNotificationRead(ctx, "u3", items[0].NotificationID), services.ErrNotFound)
	require.ErrorIs(t, repo.MarkNotificationRead(ctx, "u2", "not-a-uuid"), services.ErrNotFound)

	items, err = repo.ListNotifications(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	var read int
	for _, item := range items {
		if item.Read {
			read++
		}
	}
	require.Equal(t, 1, read)
}

func startPostgres(ctx context.Context, t *testing.T) (string, func()) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "engagement",
		},
		WaitingFor: wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
			return fmt.Sprintf("postgres://postgres:postgres@%s:%s/engagement?sslmode=disable", host, port.Port())
		}).WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("skip integration: cannot start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/engagement?sslmode=disable", host, port.Port())
	cleanup := func() {
		termCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(termCtx)
	}
	return dsn, cleanup
}

func applyMigrations(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	migrationsDir := findMigrationsDir(t)
	files, err := os.ReadDir(migrationsDir)
	require.NoError(t, err)

	paths := make([]string, 0, len(files))
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".sql" {
			continue
		}
		paths = append(paths, filepath.Join(migrationsDir, f.Name()))
	}
	sort.Strings(paths)

	for _, path := range paths {
		sqlBytes, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		_, execErr := pool.Exec(ctx, string(sqlBytes))
		require.NoErrorf(t, execErr, "apply migration %s", filepath.Base(path))
	}
}

func findMigrationsDir(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for dir != "" && dir != "/" {
		candidate := filepath.Join(dir, "migrations")
		if info, statErr := os.Stat(candidate); statErr == nil && info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}

	t.Fatalf("migrations directory not found from working directory")
	return ""
}
