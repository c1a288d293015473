package repositories_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/stretchr/testify/require"
)

// engagementBackend 是 MemoryStore 与 PostgresStore 共同实现的存储能力。
type engagementBackend interface {
	services.EngagementStore
	services.ViewStore
	services.ChangeFeed
	services.DirectoryStore
}

type feedRecorder struct {
	mu     sync.Mutex
	events []po.ChangeEvent
}

func (r *feedRecorder) record(evt po.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *feedRecorder) snapshot() []po.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]po.ChangeEvent(nil), r.events...)
}

func counterOf(outcome *po.FlagOutcome, entityID, field string) int64 {
	return outcome.Counters[po.CounterRef{EntityID: entityID, Field: field}]
}

// runStoreContract 对两种存储实现执行相同的行为校验。
func runStoreContract(t *testing.T, store engagementBackend) {
	t.Run("flag toggles are idempotent and counted", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, store.UpsertUser(ctx, "owner-a"))
		require.NoError(t, store.UpsertVideo(ctx, "video-a", "owner-a"))

		rec := &feedRecorder{}
		unsubscribe := store.Subscribe(rec.record)
		defer unsubscribe()

		key := po.FlagKey{Kind: po.KindLike, ActorID: "fan-a", TargetID: "video-a"}
		outcome, err := store.ApplyFlag(ctx, po.FlagMutation{Key: key, On: true})
		require.NoError(t, err)
		require.True(t, outcome.Changed)
		require.Equal(t, int64(1), counterOf(outcome, "video-a", po.CounterLikes))

		outcome, err = store.ApplyFlag(ctx, po.FlagMutation{Key: key, On: true})
		require.NoError(t, err)
		require.False(t, outcome.Changed)
		require.Equal(t, int64(1), counterOf(outcome, "video-a", po.CounterLikes))

		exists, err := store.FlagExists(ctx, key)
		require.NoError(t, err)
		require.True(t, exists)

		flags, err := store.LoadFlags(ctx, "fan-a", po.KindLike, []string{"video-a", "video-missing"})
		require.NoError(t, err)
		require.Equal(t, map[string]bool{"video-a": true, "video-missing": false}, flags)

		outcome, err = store.ApplyFlag(ctx, po.FlagMutation{Key: key, On: false})
		require.NoError(t, err)
		require.True(t, outcome.Changed)
		require.Zero(t, counterOf(outcome, "video-a", po.CounterLikes))

		outcome, err = store.ApplyFlag(ctx, po.FlagMutation{Key: key, On: false})
		require.NoError(t, err)
		require.False(t, outcome.Changed)

		counters, err := store.Counters(ctx, "video-a")
		require.NoError(t, err)
		require.Zero(t, counters.Values[po.CounterLikes])

		events := rec.snapshot()
		require.Len(t, events, 2, "only real changes are emitted")
		require.True(t, events[0].Value)
		require.False(t, events[1].Value)
		require.Equal(t, po.ChangeEventVersion, events[0].Version)
	})

	t.Run("follow adjusts both counters and rejects self", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, store.UpsertUser(ctx, "user-b1"))
		require.NoError(t, store.UpsertUser(ctx, "user-b2"))

		key := po.FlagKey{Kind: po.KindFollow, ActorID: "user-b1", TargetID: "user-b2"}
		outcome, err := store.ApplyFlag(ctx, po.FlagMutation{Key: key, On: true})
		require.NoError(t, err)
		require.Equal(t, int64(1), counterOf(outcome, "user-b2", po.CounterFollowers))
		require.Equal(t, int64(1), counterOf(outcome, "user-b1", po.CounterFollowing))

		_, err = store.ApplyFlag(ctx, po.FlagMutation{Key: po.FlagKey{Kind: po.KindFollow, ActorID: "user-b1", TargetID: "user-b1"}, On: true})
		require.Error(t, err)
	})

	t.Run("missing target is not found only when turning on", func(t *testing.T) {
		ctx := context.Background()
		key := po.FlagKey{Kind: po.KindSave, ActorID: "fan-c", TargetID: "video-ghost"}

		_, err := store.ApplyFlag(ctx, po.FlagMutation{Key: key, On: true})
		require.ErrorIs(t, err, services.ErrNotFound)

		outcome, err := store.ApplyFlag(ctx, po.FlagMutation{Key: key, On: false})
		require.NoError(t, err)
		require.False(t, outcome.Changed)
	})

	t.Run("view session lifecycle records one view", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, store.UpsertVideo(ctx, "video-d", "owner-d"))

		owner, err := store.VideoOwner(ctx, "video-d")
		require.NoError(t, err)
		require.Equal(t, "owner-d", owner)
		_, err = store.VideoOwner(ctx, "video-none")
		require.ErrorIs(t, err, services.ErrNotFound)

		sessionID, err := store.StartViewSession(ctx, "video-d", "viewer-d")
		require.NoError(t, err)
		require.NotEmpty(t, sessionID)

		require.NoError(t, store.Heartbeat(ctx, sessionID, 4*time.Second))
		require.NoError(t, store.Heartbeat(ctx, sessionID, -time.Second))
		require.NoError(t, store.StopViewSession(ctx, po.SessionStop{SessionID: sessionID, FinalDelta: time.Second, ThresholdReached: true}))

		require.ErrorIs(t, store.Heartbeat(ctx, sessionID, time.Second), services.ErrNotFound)
		require.ErrorIs(t, store.StopViewSession(ctx, po.SessionStop{SessionID: sessionID, ThresholdReached: true}), services.ErrNotFound)

		counters, err := store.Counters(ctx, "video-d")
		require.NoError(t, err)
		require.Equal(t, int64(1), counters.Values[po.CounterViews])

		short, err := store.StartViewSession(ctx, "video-d", "viewer-d2")
		require.NoError(t, err)
		require.NoError(t, store.StopViewSession(ctx, po.SessionStop{SessionID: short, FinalDelta: time.Second}))
		counters, err = store.Counters(ctx, "video-d")
		require.NoError(t, err)
		require.Equal(t, int64(1), counters.Values[po.CounterViews])

		_, err = store.StartViewSession(ctx, "video-none", "viewer-d")
		require.ErrorIs(t, err, services.ErrNotFound)
	})

	t.Run("deleted video invalidates open sessions", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, store.UpsertVideo(ctx, "video-e", "owner-e"))
		sessionID, err := store.StartViewSession(ctx, "video-e", "viewer-e")
		require.NoError(t, err)

		require.NoError(t, store.DeleteVideo(ctx, "video-e"))
		require.ErrorIs(t, store.Heartbeat(ctx, sessionID, time.Second), services.ErrNotFound)

		_, err = store.ApplyFlag(ctx, po.FlagMutation{Key: po.FlagKey{Kind: po.KindLike, ActorID: "viewer-e", TargetID: "video-e"}, On: true})
		require.ErrorIs(t, err, services.ErrNotFound)
	})
}
