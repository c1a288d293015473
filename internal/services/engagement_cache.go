package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

// defaultLoadConcurrency 限制 LoadMany 的并发读取数。
const defaultLoadConcurrency = 8

// EngagementCache 是进程内唯一的互动状态缓存，被所有展示同一实体的入口共享。
//
// 条目没有淘汰策略，生命周期与进程一致；长期运行的部署需要依赖 ClearFor 控制规模。
type EngagementCache struct {
	store EngagementStore
	log   *log.Helper

	mu       sync.RWMutex
	flags    map[po.FlagKey]bool
	counters map[po.CounterRef]int64
	loading  map[po.FlagKey]int
	// cleared 记录已登出的 actor；存储推送的开关事件不会重新填充这些 actor，
	// 直到再次 LoadMany 或出现新的本地写入。
	cleared map[string]struct{}
	epochs  map[string]uint64

	concurrency int
}

// NewEngagementCache 构造缓存；store 可为 nil（此时 LoadMany 为 no-op）。
func NewEngagementCache(store EngagementStore, logger log.Logger) *EngagementCache {
	return &EngagementCache{
		store:       store,
		log:         log.NewHelper(logger),
		flags:       make(map[po.FlagKey]bool),
		counters:    make(map[po.CounterRef]int64),
		loading:     make(map[po.FlagKey]int),
		cleared:     make(map[string]struct{}),
		epochs:      make(map[string]uint64),
		concurrency: defaultLoadConcurrency,
	}
}

// Get 返回缓存的开关值；ok=false 表示尚未加载，调用方必须与 false 区分。
func (c *EngagementCache) Get(actorID, targetID string, kind po.Kind) (value bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok = c.flags[po.FlagKey{Kind: kind, ActorID: actorID, TargetID: targetID}]
	return value, ok
}

// Set 以 last-write-wins 覆盖开关值，不区分乐观值与确认值。
func (c *EngagementCache) Set(actorID, targetID string, kind po.Kind, value bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cleared, actorID)
	c.flags[po.FlagKey{Kind: kind, ActorID: actorID, TargetID: targetID}] = value
}

// Loading 报告该开关是否正在被 LoadMany 读取。
func (c *EngagementCache) Loading(actorID, targetID string, kind po.Kind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading[po.FlagKey{Kind: kind, ActorID: actorID, TargetID: targetID}] > 0
}

// Count 返回实体计数字段的缓存值。
func (c *EngagementCache) Count(entityID, field string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.counters[po.CounterRef{EntityID: entityID, Field: field}]
	return value, ok
}

// SetCount 覆盖计数字段。
func (c *EngagementCache) SetCount(entityID, field string, value int64) {
	if value < 0 {
		value = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[po.CounterRef{EntityID: entityID, Field: field}] = value
}

// AdjustCount 对已加载的计数字段施加增量，结果不小于 0。
// 未加载的字段保持未加载，返回 ok=false。
func (c *EngagementCache) AdjustCount(entityID, field string, delta int64) (int64, bool) {
	ref := po.CounterRef{EntityID: entityID, Field: field}
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.counters[ref]
	if !ok {
		return 0, false
	}
	current += delta
	if current < 0 {
		current = 0
	}
	c.counters[ref] = current
	return current, true
}

// Apply 应用存储监听器推送的快照（last update wins）。
// 已被 ClearFor 清理的 actor 只更新计数，开关保持未加载。
func (c *EngagementCache) Apply(evt po.ChangeEvent) {
	if !evt.Kind.Valid() || evt.ActorID == "" || evt.TargetID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, gone := c.cleared[evt.ActorID]; !gone {
		c.flags[po.FlagKey{Kind: evt.Kind, ActorID: evt.ActorID, TargetID: evt.TargetID}] = evt.Value
	}
	for _, cv := range evt.Counters {
		value := cv.Value
		if value < 0 {
			value = 0
		}
		c.counters[cv.Ref()] = value
	}
}

// LoadMany 并行读取 actor 对一组目标的关系状态与目标计数，并写入缓存。
// 单个目标的计数读取失败只记录日志，不影响其他目标。
func (c *EngagementCache) LoadMany(ctx context.Context, actorID string, kind po.Kind, targetIDs []string) error {
	if c.store == nil {
		return nil
	}
	spec, ok := kind.Spec()
	if !ok {
		return fmt.Errorf("load many: unsupported kind %q", kind)
	}
	actorID = strings.TrimSpace(actorID)
	targets := dedupeIDs(targetIDs)
	if actorID == "" || len(targets) == 0 {
		return nil
	}

	keys := make([]po.FlagKey, 0, len(targets))
	for _, id := range targets {
		keys = append(keys, po.FlagKey{Kind: kind, ActorID: actorID, TargetID: id})
	}
	epoch := c.markLoading(actorID, keys, 1)
	defer c.markLoading(actorID, keys, -1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	var flags map[string]bool
	g.Go(func() error {
		loaded, err := c.store.LoadFlags(gctx, actorID, kind, targets)
		if err != nil {
			return fmt.Errorf("load flags: %w", err)
		}
		flags = loaded
		return nil
	})

	if spec.TargetCounter != "" {
		for _, id := range targets {
			g.Go(func() error {
				counters, err := c.store.Counters(gctx, id)
				if err != nil {
					c.log.WithContext(ctx).Warnw("msg", "load counters failed", "entity_id", id, "error", err)
					return nil
				}
				var value int64
				if counters != nil {
					value = counters.Values[spec.TargetCounter]
				}
				c.SetCount(id, spec.TargetCounter, value)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// 读取期间发生过 ClearFor，结果可能属于上一次登录，丢弃。
	if c.epochs[actorID] != epoch {
		return nil
	}
	delete(c.cleared, actorID)
	for _, key := range keys {
		c.flags[key] = flags[key.TargetID]
	}
	return nil
}

// ClearFor 删除 actor 相关的全部开关缓存（登出清理）。计数属于实体，保留。
func (c *EngagementCache) ClearFor(actorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.flags {
		if key.ActorID == actorID {
			delete(c.flags, key)
		}
	}
	c.cleared[actorID] = struct{}{}
	c.epochs[actorID]++
}

// markLoading 调整加载计数并返回 actor 当前的清理代数。
func (c *EngagementCache) markLoading(actorID string, keys []po.FlagKey, delta int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		next := c.loading[key] + delta
		if next <= 0 {
			delete(c.loading, key)
			continue
		}
		c.loading[key] = next
	}
	return c.epochs[actorID]
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
