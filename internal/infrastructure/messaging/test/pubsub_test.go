package messaging_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/messaging"
	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"

	"cloud.google.com/go/pubsub/pstest"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"
)

const (
	testProject      = "test-project"
	testTopic        = "engagement-changes"
	testSubscription = "engagement-changes-cache"
)

func newEmulator(ctx context.Context, t *testing.T) *pstest.Server {
	t.Helper()
	server := pstest.NewServer()
	t.Cleanup(func() { _ = server.Close() })

	topicName := fmt.Sprintf("projects/%s/topics/%s", testProject, testTopic)
	_, err := server.GServer.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	_, err = server.GServer.CreateSubscription(ctx, &pubsubpb.Subscription{
		Name:  fmt.Sprintf("projects/%s/subscriptions/%s", testProject, testSubscription),
		Topic: topicName,
	})
	require.NoError(t, err)
	return server
}

func TestComponent_PublishAndReceive(t *testing.T) {
	ctx := context.Background()
	server := newEmulator(ctx, t)
	logger := log.NewStdLogger(io.Discard)

	components, cleanup, err := messaging.ProvideComponents(ctx, &configloader.PubSub{
		Enabled:           true,
		ProjectID:         testProject,
		EmulatorEndpoint:  server.Addr,
		EngagementTopicID: testTopic,
		SubscriptionID:    testSubscription,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	publisher := messaging.ProvideEventPublisher(components, logger)
	subscriber := messaging.ProvideSubscriber(components)
	require.NotNil(t, subscriber)

	evt := po.ChangeEvent{
		Kind:       po.KindLike,
		ActorID:    "u1",
		TargetID:   "v1",
		Value:      true,
		Counters:   []po.CounterValue{{EntityID: "v1", Field: po.CounterLikes, Value: 11}},
		OccurredAt: time.Date(2025, 10, 26, 12, 0, 0, 0, time.UTC),
		Version:    po.ChangeEventVersion,
	}
	require.NoError(t, publisher.PublishChange(ctx, evt))
	require.NoError(t, publisher.PublishViewEvent(ctx, po.ViewEvent{Type: po.ViewEventRecorded, VideoID: "v1", ViewerID: "u2", Version: po.ChangeEventVersion}))

	recvCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	received := make(chan *messaging.Message, 2)
	errCh := make(chan error, 1)
	go func() {
		errCh <- subscriber.Receive(recvCtx, func(_ context.Context, msg *messaging.Message) error {
			received <- msg
			return nil
		})
	}()

	byType := map[string]*messaging.Message{}
	for len(byType) < 2 {
		select {
		case msg := <-received:
			byType[msg.Attributes[messaging.AttrEventType]] = msg
		case <-recvCtx.Done():
			t.Fatalf("timed out waiting for messages, got %d", len(byType))
		}
	}
	cancel()
	require.NoError(t, <-errCh)

	change := byType[messaging.EventTypeFlagChanged]
	require.NotNil(t, change)
	require.Equal(t, po.ChangeEventVersion, change.Attributes[messaging.AttrSchemaVersion])
	var decoded po.ChangeEvent
	require.NoError(t, json.Unmarshal(change.Data, &decoded))
	require.Equal(t, evt, decoded)

	view := byType[po.ViewEventRecorded]
	require.NotNil(t, view, "view events share the changes topic when no view topic is configured")
}

func TestProvideComponents_Disabled(t *testing.T) {
	logger := log.NewStdLogger(io.Discard)
	components, cleanup, err := messaging.ProvideComponents(context.Background(), &configloader.PubSub{Enabled: false}, logger)
	require.NoError(t, err)
	defer cleanup()

	require.Nil(t, messaging.ProvideSubscriber(components))
	publisher := messaging.ProvideEventPublisher(components, logger)
	require.NoError(t, publisher.PublishChange(context.Background(), po.ChangeEvent{Kind: po.KindLike, ActorID: "u1", TargetID: "v1"}))
}

func TestComponent_RequiresProject(t *testing.T) {
	_, cleanup, err := messaging.NewComponent(context.Background(), messaging.Config{}, log.NewStdLogger(io.Discard))
	require.Error(t, err)
	cleanup()
}

func TestNilComponentIsDisabled(t *testing.T) {
	var c *messaging.Component
	_, err := c.Publish(context.Background(), messaging.Message{})
	require.ErrorIs(t, err, messaging.ErrDisabled)
	err = c.Receive(context.Background(), func(context.Context, *messaging.Message) error { return nil })
	require.ErrorIs(t, err, messaging.ErrDisabled)
}
