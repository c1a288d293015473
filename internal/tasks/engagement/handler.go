package engagement

import (
	"context"
	"sync"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/go-kratos/kratos/v2/log"
)

// EventHandler 将变更事件应用到缓存，按 FlagKey 丢弃过期事件。
type EventHandler struct {
	cache   *services.EngagementCache
	log     *log.Helper
	metrics *metrics
	clock   func() time.Time

	mu     sync.Mutex
	latest map[po.FlagKey]time.Time
}

// NewEventHandler 构造事件处理器。
func NewEventHandler(cache *services.EngagementCache, logger log.Logger, metrics *metrics) *EventHandler {
	return &EventHandler{
		cache:   cache,
		log:     log.NewHelper(logger),
		metrics: metrics,
		clock:   time.Now,
		latest:  make(map[po.FlagKey]time.Time),
	}
}

// Handle 应用单个事件；返回 false 表示事件被判定为重复或过期。
//
// 同一事件可能同时经由进程内 feed 与 Pub/Sub 到达，OccurredAt 不晚于已应用事件的一律跳过。
func (h *EventHandler) Handle(ctx context.Context, evt po.ChangeEvent) bool {
	key := po.FlagKey{Kind: evt.Kind, ActorID: evt.ActorID, TargetID: evt.TargetID}

	h.mu.Lock()
	if last, ok := h.latest[key]; ok && !evt.OccurredAt.After(last) {
		h.mu.Unlock()
		h.log.WithContext(ctx).Debugf("skip stale change event: key=%s occurred_at=%s", key, evt.OccurredAt)
		h.metrics.recordSkipped(ctx, string(evt.Kind))
		return false
	}
	h.latest[key] = evt.OccurredAt
	h.mu.Unlock()

	h.cache.Apply(evt)
	h.metrics.recordApplied(ctx, string(evt.Kind), evt.OccurredAt, h.clock())
	return true
}
