package repositories_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
	"github.com/bionicotaku/lingo-services-engagement/internal/repositories"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"
)

type stubChangePublisher struct {
	events []po.ChangeEvent
	err    error
}

func (p *stubChangePublisher) PublishChange(_ context.Context, evt po.ChangeEvent) error {
	p.events = append(p.events, evt)
	return p.err
}

func TestMemoryStore_Contract(t *testing.T) {
	store := repositories.NewMemoryStore(nil, repositories.StoreConfig{}, log.NewStdLogger(io.Discard))
	runStoreContract(t, store)
}

func TestMemoryStore_PublishesChanges(t *testing.T) {
	publisher := &stubChangePublisher{err: errors.New("pubsub down")}
	store := repositories.NewMemoryStore(publisher, repositories.StoreConfig{}, log.NewStdLogger(io.Discard))
	ctx := context.Background()
	require.NoError(t, store.UpsertVideo(ctx, "v1", "owner"))

	key := po.FlagKey{Kind: po.KindLike, ActorID: "u1", TargetID: "v1"}
	_, err := store.ApplyFlag(ctx, po.FlagMutation{Key: key, On: true})
	require.NoError(t, err, "publish failure must not fail the write")
	_, err = store.ApplyFlag(ctx, po.FlagMutation{Key: key, On: true})
	require.NoError(t, err)

	require.Len(t, publisher.events, 1)
	require.Equal(t, "v1", publisher.events[0].TargetID)
	require.Len(t, publisher.events[0].Counters, 1)
	require.Equal(t, int64(1), publisher.events[0].Counters[0].Value)
}

func TestMemoryStore_SessionDebounce(t *testing.T) {
	store := repositories.NewMemoryStore(nil, repositories.StoreConfig{SessionDebounce: time.Hour}, log.NewStdLogger(io.Discard))
	ctx := context.Background()
	require.NoError(t, store.UpsertVideo(ctx, "v1", "owner"))

	_, err := store.StartViewSession(ctx, "v1", "u1")
	require.NoError(t, err)
	_, err = store.StartViewSession(ctx, "v1", "u1")
	require.ErrorIs(t, err, services.ErrSessionDebounced)
	_, err = store.StartViewSession(ctx, "v1", "u2")
	require.NoError(t, err, "debounce is per viewer")
}

func TestMemoryStore_FailureInjection(t *testing.T) {
	store := repositories.NewMemoryStore(nil, repositories.StoreConfig{}, log.NewStdLogger(io.Discard))
	ctx := context.Background()
	boom := errors.New("boom")

	store.FailNext(repositories.OpCounters, 2, boom)
	_, err := store.Counters(ctx, "x")
	require.ErrorIs(t, err, boom)
	_, err = store.Counters(ctx, "x")
	require.ErrorIs(t, err, boom)
	_, err = store.Counters(ctx, "x")
	require.NoError(t, err)
	require.Equal(t, 3, store.Calls(repositories.OpCounters))

	release := store.Hold(repositories.OpVideoOwner)
	holdCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = store.VideoOwner(holdCtx, "x")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	release()
	release()
	_, err = store.VideoOwner(ctx, "x")
	require.ErrorIs(t, err, services.ErrNotFound)
}

func TestMemoryStore_Notifications(t *testing.T) {
	store := repositories.NewMemoryStore(nil, repositories.StoreConfig{}, log.NewStdLogger(io.Discard))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "u2", "u1", po.KindFollow, []byte(`{"a":1}`)))
	require.NoError(t, store.Create(ctx, "u2", "u3", po.KindFollow, nil))
	require.NoError(t, store.Create(ctx, "u9", "u1", po.KindFollow, nil))

	list, err := store.ListNotifications(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "u3", list[0].ActorID)

	require.NoError(t, store.MarkNotificationRead(ctx, "u2", list[1].NotificationID))
	list, err = store.ListNotifications(ctx, "u2", 10)
	require.NoError(t, err)
	require.True(t, list[1].Read)
	require.ErrorIs(t, store.MarkNotificationRead(ctx, "u9", list[1].NotificationID), services.ErrNotFound)
}
