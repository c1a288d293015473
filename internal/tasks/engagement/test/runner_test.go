package engagement_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/messaging"
	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
	"github.com/bionicotaku/lingo-services-engagement/internal/repositories"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"
	"github.com/bionicotaku/lingo-services-engagement/internal/tasks/engagement"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"
)

// chanSubscriber 将测试写入的消息逐条交给 handler，并回传 handler 的返回值。
type chanSubscriber struct {
	messages chan *messaging.Message
	results  chan error
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{
		messages: make(chan *messaging.Message),
		results:  make(chan error, 16),
	}
}

func (s *chanSubscriber) Receive(ctx context.Context, handler func(context.Context, *messaging.Message) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.messages:
			s.results <- handler(ctx, msg)
		}
	}
}

func (s *chanSubscriber) deliver(t *testing.T, msg *messaging.Message) {
	t.Helper()
	select {
	case s.messages <- msg:
	case <-time.After(time.Second):
		t.Fatal("subscriber not receiving")
	}
	select {
	case err := <-s.results:
		require.NoError(t, err, "handler must ack")
	case <-time.After(time.Second):
		t.Fatal("handler did not return")
	}
}

func changeMessage(t *testing.T, evt po.ChangeEvent) *messaging.Message {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	return &messaging.Message{
		ID:         "msg-" + evt.TargetID,
		Data:       data,
		Attributes: map[string]string{messaging.AttrEventType: messaging.EventTypeFlagChanged},
	}
}

func startRunner(t *testing.T, runner *engagement.Runner) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Start(context.Background()) }()
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, runner.Stop(stopCtx))
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("runner did not stop in time")
		}
	})
}

func TestNewRunnerValidatesParams(t *testing.T) {
	logger := log.NewStdLogger(io.Discard)
	_, err := engagement.NewRunner(engagement.RunnerParams{Logger: logger, Subscriber: newChanSubscriber()})
	require.Error(t, err)

	cache := services.NewEngagementCache(nil, logger)
	_, err = engagement.NewRunner(engagement.RunnerParams{Logger: logger, Cache: cache})
	require.Error(t, err)
}

func TestRunnerAppliesFeedEvents(t *testing.T) {
	logger := log.NewStdLogger(io.Discard)
	store := repositories.NewMemoryStore(nil, repositories.StoreConfig{}, logger)
	cache := services.NewEngagementCache(store, logger)
	ctx := context.Background()
	require.NoError(t, store.UpsertVideo(ctx, "v1", "owner"))

	runner, err := engagement.NewRunner(engagement.RunnerParams{Feed: store, Cache: cache, Logger: logger})
	require.NoError(t, err)
	startRunner(t, runner)

	// 订阅在 goroutine 中建立，持续写入直到监听生效。
	require.Eventually(t, func() bool {
		key := po.FlagKey{Kind: po.KindLike, ActorID: "u1", TargetID: "v1"}
		on := !store.HasFlag(key)
		if _, applyErr := store.ApplyFlag(ctx, po.FlagMutation{Key: key, On: on}); applyErr != nil {
			return false
		}
		value, ok := cache.Get("u1", "v1", po.KindLike)
		return ok && value == on
	}, time.Second, 10*time.Millisecond)

	count, ok := cache.Count("v1", po.CounterLikes)
	require.True(t, ok)
	require.Equal(t, store.CounterValue("v1", po.CounterLikes), count)
}

func TestRunnerConsumesSubscriber(t *testing.T) {
	logger := log.NewStdLogger(io.Discard)
	cache := services.NewEngagementCache(nil, logger)
	sub := newChanSubscriber()

	runner, err := engagement.NewRunner(engagement.RunnerParams{Subscriber: sub, Cache: cache, Logger: logger})
	require.NoError(t, err)
	startRunner(t, runner)

	at := time.Date(2025, 10, 26, 12, 0, 0, 0, time.UTC)
	sub.deliver(t, changeMessage(t, po.ChangeEvent{
		Kind: po.KindFollow, ActorID: "u1", TargetID: "u2", Value: true, OccurredAt: at,
		Counters: []po.CounterValue{{EntityID: "u2", Field: po.CounterFollowers, Value: 9}},
	}))
	value, ok := cache.Get("u1", "u2", po.KindFollow)
	require.True(t, ok)
	require.True(t, value)
	followers, _ := cache.Count("u2", po.CounterFollowers)
	require.Equal(t, int64(9), followers)

	// 较旧的重投被跳过。
	sub.deliver(t, changeMessage(t, po.ChangeEvent{Kind: po.KindFollow, ActorID: "u1", TargetID: "u2", Value: false, OccurredAt: at.Add(-time.Second)}))
	value, _ = cache.Get("u1", "u2", po.KindFollow)
	require.True(t, value)

	// 观看事件与坏载荷都被 Ack 且不影响缓存。
	sub.deliver(t, &messaging.Message{ID: "view", Data: []byte(`{"kind":"like","actor_id":"u9","target_id":"v9","value":true}`),
		Attributes: map[string]string{messaging.AttrEventType: po.ViewEventRecorded}})
	_, ok = cache.Get("u9", "v9", po.KindLike)
	require.False(t, ok)
	sub.deliver(t, &messaging.Message{ID: "bad", Data: []byte(`not json`)})
}

type failingSubscriber struct{ err error }

func (s failingSubscriber) Receive(context.Context, func(context.Context, *messaging.Message) error) error {
	return s.err
}

func TestRunnerPropagatesSubscriberError(t *testing.T) {
	logger := log.NewStdLogger(io.Discard)
	boom := errors.New("subscription missing")
	runner, err := engagement.NewRunner(engagement.RunnerParams{
		Subscriber: failingSubscriber{err: boom},
		Cache:      services.NewEngagementCache(nil, logger),
		Logger:     logger,
	})
	require.NoError(t, err)
	require.ErrorIs(t, runner.Start(context.Background()), boom)
}

func TestRunnerStopBeforeStart(t *testing.T) {
	logger := log.NewStdLogger(io.Discard)
	runner, err := engagement.NewRunner(engagement.RunnerParams{
		Subscriber: newChanSubscriber(),
		Cache:      services.NewEngagementCache(nil, logger),
		Logger:     logger,
	})
	require.NoError(t, err)
	require.NoError(t, runner.Stop(context.Background()))
	require.NoError(t, runner.Start(context.Background()))
}

func TestRunnerDoesNotRestoreLoggedOutActor(t *testing.T) {
	logger := log.NewStdLogger(io.Discard)
	store := repositories.NewMemoryStore(nil, repositories.StoreConfig{}, logger)
	cache := services.NewEngagementCache(store, logger)
	rec := services.NewReconciler(store, cache, services.ReconcilerConfig{}, logger)
	t.Cleanup(rec.Close)
	ctx := context.Background()
	require.NoError(t, store.UpsertVideo(ctx, "v1", "owner"))

	runner, err := engagement.NewRunner(engagement.RunnerParams{Feed: store, Cache: cache, Logger: logger})
	require.NoError(t, err)
	startRunner(t, runner)

	// 等待 feed 订阅生效。
	require.Eventually(t, func() bool {
		key := po.FlagKey{Kind: po.KindSave, ActorID: "u0", TargetID: "v1"}
		if _, applyErr := store.ApplyFlag(ctx, po.FlagMutation{Key: key, On: true}); applyErr != nil {
			return false
		}
		_, ok := cache.Get("u0", "v1", po.KindSave)
		return ok
	}, time.Second, 10*time.Millisecond)

	release := store.Hold(repositories.OpApplyFlag)
	defer release()
	calls := store.Calls(repositories.OpApplyFlag)
	res := rec.Toggle(ctx, "u1", "v1", po.KindLike)
	require.True(t, res.Accepted)
	require.Eventually(t, func() bool { return store.Calls(repositories.OpApplyFlag) > calls }, time.Second, 5*time.Millisecond)

	rec.ClearFor("u1")
	release()
	rec.Wait()

	require.True(t, store.HasFlag(po.FlagKey{Kind: po.KindLike, ActorID: "u1", TargetID: "v1"}), "write still lands in the store")
	_, ok := cache.Get("u1", "v1", po.KindLike)
	require.False(t, ok, "feed event must not repopulate a logged-out actor")
	count, ok := cache.Count("v1", po.CounterLikes)
	require.True(t, ok)
	require.Equal(t, int64(1), count)
}
