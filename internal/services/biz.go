// Package services 承载互动核心用例：乐观开关协调、观看会话追踪与互动聚合缓存。
package services

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet 暴露 services 层构造器。
var ProviderSet = wire.NewSet(
	NewEngagementCache,
	ProvideReconciler,
	ProvideViewTrackerRegistry,
	NewEngagementService,
	NewViewService,
	NewNotificationService,
	NewDirectoryService,
)

// ProvideReconciler 构造 Reconciler 并返回关闭函数；关闭时在途操作的结果被忽略。
func ProvideReconciler(store EngagementStore, cache *EngagementCache, cfg ReconcilerConfig, notifier Notifier, logger log.Logger) (*Reconciler, func()) {
	r := NewReconciler(store, cache, cfg, logger, WithNotifier(notifier))
	return r, r.Close
}

// ProvideViewTrackerRegistry 构造观看注册表并返回关闭函数。
func ProvideViewTrackerRegistry(store ViewStore, cfg ViewTrackerConfig, publisher ViewEventPublisher, logger log.Logger) (*ViewTrackerRegistry, func()) {
	registry := NewViewTrackerRegistry(store, cfg, publisher, logger)
	return registry, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		registry.Close(ctx)
	}
}
