package messaging

import (
	"context"

	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/configloader"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet 暴露 Pub/Sub 组件与事件发布器。
var ProviderSet = wire.NewSet(
	ProvideComponents,
	ProvideEventPublisher,
	ProvideSubscriber,
)

// Components 汇总互动 topic 与观看 topic 的组件；未启用时字段为 nil。
type Components struct {
	Changes *Component
	Views   *Component
}

// ProvideComponents 按配置创建 Pub/Sub 组件；pubsub.enabled=false 时返回空组件。
func ProvideComponents(ctx context.Context, cfg *configloader.PubSub, logger log.Logger) (*Components, func(), error) {
	if cfg == nil || !cfg.Enabled {
		log.NewHelper(logger).Info("pubsub disabled, change events stay in-process")
		return &Components{}, func() {}, nil
	}
	base := Config{
		ProjectID:              cfg.ProjectID,
		EmulatorEndpoint:       cfg.EmulatorEndpoint,
		PublishTimeout:         cfg.PublishTimeout.Std(),
		OrderingKeyEnabled:     true,
		NumGoroutines:          cfg.Receive.NumGoroutines,
		MaxOutstandingMessages: cfg.Receive.MaxOutstandingMessages,
	}

	changesCfg := base
	changesCfg.TopicID = cfg.EngagementTopicID
	changesCfg.SubscriptionID = cfg.SubscriptionID
	changes, cleanupChanges, err := NewComponent(ctx, changesCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	out := &Components{Changes: changes}
	cleanup := cleanupChanges

	if cfg.ViewTopicID != "" && cfg.ViewTopicID != cfg.EngagementTopicID {
		viewsCfg := base
		viewsCfg.TopicID = cfg.ViewTopicID
		views, cleanupViews, err := NewComponent(ctx, viewsCfg, logger)
		if err != nil {
			cleanupChanges()
			return nil, nil, err
		}
		out.Views = views
		cleanup = func() {
			cleanupViews()
			cleanupChanges()
		}
	}
	return out, cleanup, nil
}

// ProvideEventPublisher 构造事件发布器。
func ProvideEventPublisher(c *Components, logger log.Logger) *EventPublisher {
	var changes, views Publisher
	if c.Changes != nil {
		changes = c.Changes
	}
	if c.Views != nil {
		views = c.Views
	}
	return NewEventPublisher(changes, views, logger)
}

// ProvideSubscriber 返回互动变更订阅端；未启用时为 nil。
func ProvideSubscriber(c *Components) Subscriber {
	if c.Changes == nil || c.Changes.subID == "" {
		return nil
	}
	return c.Changes
}
