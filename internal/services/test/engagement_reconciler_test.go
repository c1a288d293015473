package services_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
	"github.com/bionicotaku/lingo-services-engagement/internal/repositories"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"
)

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []services.Outcome
}

func (r *outcomeRecorder) hook(o services.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *outcomeRecorder) all() []services.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]services.Outcome(nil), r.outcomes...)
}

func (r *outcomeRecorder) last(t *testing.T) services.Outcome {
	t.Helper()
	all := r.all()
	require.NotEmpty(t, all, "no outcome recorded")
	return all[len(all)-1]
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type reconcilerFixture struct {
	store    *repositories.MemoryStore
	cache    *services.EngagementCache
	rec      *services.Reconciler
	outcomes *outcomeRecorder
}

func newReconcilerFixture(t *testing.T, opts ...services.ReconcilerOption) *reconcilerFixture {
	t.Helper()
	logger := log.NewStdLogger(io.Discard)
	store := repositories.NewMemoryStore(nil, repositories.StoreConfig{}, logger)
	cache := services.NewEngagementCache(store, logger)
	outcomes := &outcomeRecorder{}
	all := append([]services.ReconcilerOption{
		services.WithNotifier(store),
		services.WithSettleHook(outcomes.hook),
		services.WithSleeper(noSleep),
	}, opts...)
	rec := services.NewReconciler(store, cache, services.ReconcilerConfig{MaxAttempts: 3, OperationTimeout: time.Second}, logger, all...)
	t.Cleanup(rec.Close)
	return &reconcilerFixture{store: store, cache: cache, rec: rec, outcomes: outcomes}
}

// seedVideo 登记视频并把点赞数同时写入存储与缓存。
func (f *reconcilerFixture) seedVideo(t *testing.T, videoID, ownerID string, likes int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.UpsertUser(ctx, ownerID))
	require.NoError(t, f.store.UpsertVideo(ctx, videoID, ownerID))
	f.store.SetCounter(videoID, po.CounterLikes, likes)
}

func TestReconciler_ToggleLikeOptimisticThenConfirmed(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 10)
	require.NoError(t, f.cache.LoadMany(ctx, "u1", po.KindLike, []string{"v1"}))

	value, ok := f.cache.Get("u1", "v1", po.KindLike)
	require.True(t, ok)
	require.False(t, value)
	count, ok := f.cache.Count("v1", po.CounterLikes)
	require.True(t, ok)
	require.Equal(t, int64(10), count)

	res := f.rec.Toggle(ctx, "u1", "v1", po.KindLike)
	require.True(t, res.Accepted)
	require.True(t, res.Value)
	require.False(t, res.Previous)
	require.True(t, res.HasCount)
	require.Equal(t, int64(11), res.Count)

	f.rec.Wait()
	out := f.outcomes.last(t)
	require.Equal(t, services.StateConfirmed, out.State)
	require.True(t, out.Changed)
	require.Equal(t, 1, out.Attempts)
	require.Equal(t, 1, f.store.Calls(repositories.OpApplyFlag))
	require.Equal(t, int64(11), f.store.CounterValue("v1", po.CounterLikes))
	require.True(t, f.store.HasFlag(po.FlagKey{Kind: po.KindLike, ActorID: "u1", TargetID: "v1"}))

	res = f.rec.Toggle(ctx, "u1", "v1", po.KindLike)
	require.True(t, res.Accepted)
	require.False(t, res.Value)
	require.Equal(t, int64(10), res.Count)

	f.rec.Wait()
	require.Equal(t, services.StateConfirmed, f.outcomes.last(t).State)
	require.Equal(t, int64(10), f.store.CounterValue("v1", po.CounterLikes))
	count, _ = f.cache.Count("v1", po.CounterLikes)
	require.Equal(t, int64(10), count)
}

func TestReconciler_SetSameValueIsNoop(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 0)

	res := f.rec.Set(ctx, "u1", "v1", po.KindSave, true)
	require.True(t, res.Accepted)
	require.Empty(t, res.Reason)
	f.rec.Wait()

	res = f.rec.Set(ctx, "u1", "v1", po.KindSave, true)
	require.True(t, res.Accepted)
	require.Equal(t, services.ReasonUnchanged, res.Reason)
	require.True(t, res.Value)
	f.rec.Wait()

	require.Equal(t, 1, f.store.Calls(repositories.OpApplyFlag))
	require.Equal(t, int64(1), f.store.CounterValue("v1", po.CounterSaves))
}

func TestReconciler_RollbackAfterRetriesExhausted(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 10)
	require.NoError(t, f.cache.LoadMany(ctx, "u1", po.KindLike, []string{"v1"}))
	f.store.FailNext(repositories.OpApplyFlag, 3, errors.New("unavailable"))

	res := f.rec.Toggle(ctx, "u1", "v1", po.KindLike)
	require.True(t, res.Value)
	require.Equal(t, int64(11), res.Count)

	f.rec.Wait()
	out := f.outcomes.last(t)
	require.Equal(t, services.StateRolledBack, out.State)
	require.Equal(t, 3, out.Attempts)
	require.Error(t, out.Err)
	require.Equal(t, 3, f.store.Calls(repositories.OpApplyFlag))

	value, ok := f.cache.Get("u1", "v1", po.KindLike)
	require.True(t, ok)
	require.False(t, value)
	count, _ := f.cache.Count("v1", po.CounterLikes)
	require.Equal(t, int64(10), count)
	require.Equal(t, int64(10), f.store.CounterValue("v1", po.CounterLikes))
}

func TestReconciler_TransientFailureThenSuccess(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 0)
	f.store.FailNext(repositories.OpApplyFlag, 2, errors.New("timeout"))

	f.rec.Toggle(ctx, "u1", "v1", po.KindLike)
	f.rec.Wait()

	out := f.outcomes.last(t)
	require.Equal(t, services.StateConfirmed, out.State)
	require.Equal(t, 3, out.Attempts)
	require.Equal(t, int64(1), f.store.CounterValue("v1", po.CounterLikes))
}

func TestReconciler_MissingTargetRollsBackWithoutRetry(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	res := f.rec.Toggle(ctx, "u1", "gone", po.KindLike)
	require.True(t, res.Accepted)
	require.True(t, res.Value)

	f.rec.Wait()
	out := f.outcomes.last(t)
	require.Equal(t, services.StateRolledBack, out.State)
	require.ErrorIs(t, out.Err, services.ErrNotFound)
	require.Equal(t, 1, f.store.Calls(repositories.OpApplyFlag))

	value, _ := f.cache.Get("u1", "gone", po.KindLike)
	require.False(t, value)
}

func TestReconciler_SelfFollowRejected(t *testing.T) {
	f := newReconcilerFixture(t)

	res := f.rec.Toggle(context.Background(), "u1", "u1", po.KindFollow)
	require.False(t, res.Accepted)
	require.Equal(t, services.ReasonInvalid, res.Reason)
	require.False(t, res.Value)

	f.rec.Wait()
	require.Zero(t, f.store.Calls(repositories.OpApplyFlag))
	require.Empty(t, f.outcomes.all())
}

func TestReconciler_UnknownKindRejected(t *testing.T) {
	f := newReconcilerFixture(t)

	res := f.rec.Toggle(context.Background(), "u1", "v1", po.Kind("share"))
	require.False(t, res.Accepted)
	require.Equal(t, services.ReasonInvalid, res.Reason)
}

func TestReconciler_FollowCreatesNotification(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertUser(ctx, "u1"))
	require.NoError(t, f.store.UpsertUser(ctx, "u2"))

	res := f.rec.Toggle(ctx, "u1", "u2", po.KindFollow)
	require.True(t, res.Accepted)
	f.rec.Wait()

	require.Equal(t, services.StateConfirmed, f.outcomes.last(t).State)
	require.Equal(t, int64(1), f.store.CounterValue("u2", po.CounterFollowers))
	require.Equal(t, int64(1), f.store.CounterValue("u1", po.CounterFollowing))

	notifications, err := f.store.ListNotifications(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	require.Equal(t, "u1", notifications[0].ActorID)
	require.Equal(t, po.KindFollow, notifications[0].Kind)
	require.Contains(t, string(notifications[0].Payload), `"actor_id":"u1"`)

	// 取消关注不产生通知。
	f.rec.Toggle(ctx, "u1", "u2", po.KindFollow)
	f.rec.Wait()
	notifications, err = f.store.ListNotifications(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
}

func TestReconciler_NotificationFailureKeepsFollow(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertUser(ctx, "u2"))
	f.store.FailNext(repositories.OpNotify, 1, errors.New("notify down"))

	f.rec.Toggle(ctx, "u1", "u2", po.KindFollow)
	f.rec.Wait()

	require.Equal(t, services.StateConfirmed, f.outcomes.last(t).State)
	require.Equal(t, 1, f.store.Calls(repositories.OpNotify))
	value, ok := f.cache.Get("u1", "u2", po.KindFollow)
	require.True(t, ok)
	require.True(t, value)

	notifications, err := f.store.ListNotifications(ctx, "u2", 10)
	require.NoError(t, err)
	require.Empty(t, notifications)
}

func TestReconciler_RejectsWhilePending(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 0)
	release := f.store.Hold(repositories.OpApplyFlag)

	first := f.rec.Toggle(ctx, "u1", "v1", po.KindLike)
	require.True(t, first.Accepted)
	require.Equal(t, services.StatePending, f.rec.State("u1", "v1", po.KindLike))

	second := f.rec.Toggle(ctx, "u1", "v1", po.KindLike)
	require.False(t, second.Accepted)
	require.Equal(t, services.ReasonPending, second.Reason)
	require.True(t, second.Value, "pending request keeps optimistic value")

	release()
	f.rec.Wait()
	require.Equal(t, services.StateIdle, f.rec.State("u1", "v1", po.KindLike))
	require.Equal(t, 1, f.store.Calls(repositories.OpApplyFlag))
	require.Len(t, f.outcomes.all(), 1)
}

func TestReconciler_PendingPairDoesNotBlockOthers(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 0)
	f.seedVideo(t, "v2", "owner", 0)
	release := f.store.Hold(repositories.OpApplyFlag)
	defer release()

	first := f.rec.Toggle(ctx, "u1", "v1", po.KindLike)
	require.True(t, first.Accepted)
	require.Eventually(t, func() bool { return f.store.Calls(repositories.OpApplyFlag) == 1 }, time.Second, 5*time.Millisecond)

	otherTarget := f.rec.Toggle(ctx, "u1", "v2", po.KindLike)
	require.True(t, otherTarget.Accepted)
	otherActor := f.rec.Toggle(ctx, "u2", "v1", po.KindLike)
	require.True(t, otherActor.Accepted)
	otherKind := f.rec.Toggle(ctx, "u1", "v1", po.KindSave)
	require.True(t, otherKind.Accepted)

	// 在途守卫只作用于同一组合，其余三个写入都已进入存储调用。
	require.Eventually(t, func() bool { return f.store.Calls(repositories.OpApplyFlag) == 4 }, time.Second, 5*time.Millisecond)
	require.Equal(t, services.StatePending, f.rec.State("u1", "v1", po.KindLike))

	release()
	f.rec.Wait()
	require.True(t, f.store.HasFlag(po.FlagKey{Kind: po.KindLike, ActorID: "u1", TargetID: "v1"}))
	require.True(t, f.store.HasFlag(po.FlagKey{Kind: po.KindLike, ActorID: "u1", TargetID: "v2"}))
	require.True(t, f.store.HasFlag(po.FlagKey{Kind: po.KindLike, ActorID: "u2", TargetID: "v1"}))
	require.True(t, f.store.HasFlag(po.FlagKey{Kind: po.KindSave, ActorID: "u1", TargetID: "v1"}))
	require.Equal(t, int64(2), f.store.CounterValue("v1", po.CounterLikes))
}

func TestReconciler_ClearForIgnoresInFlightResult(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 0)
	release := f.store.Hold(repositories.OpApplyFlag)

	f.rec.Toggle(ctx, "u1", "v1", po.KindLike)
	require.Eventually(t, func() bool { return f.store.Calls(repositories.OpApplyFlag) == 1 }, time.Second, 5*time.Millisecond)
	f.rec.ClearFor("u1")
	_, ok := f.cache.Get("u1", "v1", po.KindLike)
	require.False(t, ok)

	release()
	f.rec.Wait()
	require.Equal(t, services.StateIgnored, f.outcomes.last(t).State)
	_, ok = f.cache.Get("u1", "v1", po.KindLike)
	require.False(t, ok, "ignored outcome must not repopulate cache")
}

func TestReconciler_CloseAbortsInFlight(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 0)
	release := f.store.Hold(repositories.OpApplyFlag)
	defer release()

	f.rec.Toggle(ctx, "u1", "v1", po.KindLike)

	done := make(chan struct{})
	go func() {
		f.rec.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}
	require.Equal(t, services.StateIgnored, f.outcomes.last(t).State)

	res := f.rec.Toggle(ctx, "u1", "v1", po.KindLike)
	require.False(t, res.Accepted)
	require.Equal(t, services.ReasonClosed, res.Reason)
}

func TestReconciler_AcknowledgesOptimisticValue(t *testing.T) {
	acks := make(chan bool, 1)
	f := newReconcilerFixture(t, services.WithAcknowledger(services.AcknowledgerFunc(func(_ po.FlagKey, value bool) {
		acks <- value
	})))
	f.seedVideo(t, "v1", "owner", 0)

	f.rec.Toggle(context.Background(), "u1", "v1", po.KindLike)
	select {
	case value := <-acks:
		require.True(t, value)
	case <-time.After(time.Second):
		t.Fatal("acknowledger not called")
	}
	f.rec.Wait()
}
