package services

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultMaxAttempts      = 3
	defaultBaseBackoff      = 300 * time.Millisecond
	defaultMaxBackoff       = 5 * time.Second
	defaultOperationTimeout = 10 * time.Second
	defaultNotifyTimeout    = 5 * time.Second
)

// ReconcilerConfig 控制后台持久化的重试与超时。
type ReconcilerConfig struct {
	MaxAttempts      int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	OperationTimeout time.Duration
}

func sanitizeReconcilerConfig(cfg ReconcilerConfig) ReconcilerConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}
	return cfg
}

// 请求未被受理或未产生后台写入的原因。
const (
	ReasonInvalid   = "invalid"   // 参数非法或自我互动
	ReasonPending   = "pending"   // 同一 (actor, target, kind) 已有操作在途
	ReasonClosed    = "closed"    // Reconciler 已关闭
	ReasonUnchanged = "unchanged" // Set 的目标值与已知值相同
)

// OpState 描述单个 (actor, target, kind) 操作的状态。
type OpState string

// 操作状态常量定义
const (
	StateIdle       OpState = "idle"
	StatePending    OpState = "pending"
	StateConfirmed  OpState = "confirmed"
	StateRolledBack OpState = "rolled_back"
	StateIgnored    OpState = "ignored" // 拥有者已结束（登出/关闭），结果被丢弃
)

// ToggleResult 是 Toggle/Set 的同步返回值，反映乐观更新后的展示状态。
type ToggleResult struct {
	Key      po.FlagKey
	Value    bool
	Previous bool
	Count    int64
	HasCount bool
	Accepted bool
	Reason   string
}

// Outcome 是后台持久化结束后的结算结果。
type Outcome struct {
	Key      po.FlagKey
	State    OpState
	Value    bool
	Changed  bool
	Attempts int
	Err      error
}

type counterAdjustment struct {
	ref   po.CounterRef
	delta int64
}

type pendingOp struct {
	key         po.FlagKey
	spec        po.KindSpec
	previous    bool
	desired     bool
	adjustments []counterAdjustment
	ignore      atomic.Bool
}

// Reconciler 为二元互动提供即时的乐观反馈，并在后台带重试地持久化。
//
// 每个 (actor, target, kind) 同时最多只有一个在途操作；在途期间的重复请求直接拒绝。
type Reconciler struct {
	store    EngagementStore
	cache    *EngagementCache
	notifier Notifier
	ack      Acknowledger
	cfg      ReconcilerConfig
	log      *log.Helper
	metrics  *engagementMetrics
	sleep    func(ctx context.Context, d time.Duration) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[po.FlagKey]*pendingOp
	hooks   []func(Outcome)
	closed  bool
}

// ReconcilerOption 定义可选配置。
type ReconcilerOption func(*Reconciler)

// WithNotifier 注入通知协作方（仅 follow 使用）。
func WithNotifier(n Notifier) ReconcilerOption {
	return func(r *Reconciler) {
		r.notifier = n
	}
}

// WithAcknowledger 注入即时确认回调。
func WithAcknowledger(a Acknowledger) ReconcilerOption {
	return func(r *Reconciler) {
		r.ack = a
	}
}

// WithSettleHook 注册结算回调，回调在后台 goroutine 中执行。
func WithSettleHook(fn func(Outcome)) ReconcilerOption {
	return func(r *Reconciler) {
		if fn != nil {
			r.hooks = append(r.hooks, fn)
		}
	}
}

// WithSleeper 覆盖重试等待函数，便于测试。
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) ReconcilerOption {
	return func(r *Reconciler) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// NewReconciler 构造 Reconciler。
func NewReconciler(store EngagementStore, cache *EngagementCache, cfg ReconcilerConfig, logger log.Logger, opts ...ReconcilerOption) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconciler{
		store:   store,
		cache:   cache,
		cfg:     sanitizeReconcilerConfig(cfg),
		log:     log.NewHelper(logger),
		metrics: newEngagementMetrics(),
		sleep:   sleepContext,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[po.FlagKey]*pendingOp),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Toggle 翻转 actor 对 target 的互动状态。未知状态视为 false。
func (r *Reconciler) Toggle(ctx context.Context, actorID, targetID string, kind po.Kind) ToggleResult {
	return r.submit(ctx, actorID, targetID, kind, nil)
}

// Set 将互动状态设置为 desired；已知值相同时不产生写入。
func (r *Reconciler) Set(ctx context.Context, actorID, targetID string, kind po.Kind, desired bool) ToggleResult {
	return r.submit(ctx, actorID, targetID, kind, &desired)
}

// State 返回该 (actor, target, kind) 当前的操作状态。
func (r *Reconciler) State(actorID, targetID string, kind po.Kind) OpState {
	key := po.FlagKey{Kind: kind, ActorID: strings.TrimSpace(actorID), TargetID: strings.TrimSpace(targetID)}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[key]; ok {
		return StatePending
	}
	return StateIdle
}

func (r *Reconciler) submit(ctx context.Context, actorID, targetID string, kind po.Kind, desired *bool) ToggleResult {
	key := po.FlagKey{Kind: kind, ActorID: strings.TrimSpace(actorID), TargetID: strings.TrimSpace(targetID)}
	result := ToggleResult{Key: key}

	spec, ok := kind.Spec()
	if !ok || key.ActorID == "" || key.TargetID == "" || (!spec.AllowSelf && key.ActorID == key.TargetID) {
		result.Value, _ = r.cache.Get(key.ActorID, key.TargetID, kind)
		result.Previous = result.Value
		result.Reason = ReasonInvalid
		r.metrics.recordToggle(ctx, string(kind), ReasonInvalid)
		return result
	}

	r.mu.Lock()
	previous, known := r.cache.Get(key.ActorID, key.TargetID, kind)
	result.Previous = previous
	result.Value = previous
	result.Count, result.HasCount = r.targetCount(key, spec)

	if r.closed {
		r.mu.Unlock()
		result.Reason = ReasonClosed
		r.metrics.recordToggle(ctx, string(kind), ReasonClosed)
		return result
	}
	if _, busy := r.pending[key]; busy {
		r.mu.Unlock()
		result.Reason = ReasonPending
		r.metrics.recordToggle(ctx, string(kind), ReasonPending)
		return result
	}

	next := !previous
	if desired != nil {
		next = *desired
		if known && previous == next {
			r.mu.Unlock()
			result.Accepted = true
			result.Reason = ReasonUnchanged
			r.metrics.recordToggle(ctx, string(kind), ReasonUnchanged)
			return result
		}
	}

	op := &pendingOp{key: key, spec: spec, previous: previous, desired: next}
	r.pending[key] = op

	// 乐观更新：同步完成，不等待任何 I/O。
	r.cache.Set(key.ActorID, key.TargetID, kind, next)
	if previous != next {
		delta := int64(1)
		if !next {
			delta = -1
		}
		for _, ref := range spec.CounterRefs(key) {
			if _, adjusted := r.cache.AdjustCount(ref.EntityID, ref.Field, delta); adjusted {
				op.adjustments = append(op.adjustments, counterAdjustment{ref: ref, delta: delta})
			}
		}
	}
	result.Value = next
	result.Count, result.HasCount = r.targetCount(key, spec)
	result.Accepted = true

	r.wg.Add(1)
	r.mu.Unlock()

	r.metrics.recordToggle(ctx, string(kind), "accepted")
	r.acknowledge(key, next)
	go r.persist(op)
	return result
}

func (r *Reconciler) targetCount(key po.FlagKey, spec po.KindSpec) (int64, bool) {
	if spec.TargetCounter == "" {
		return 0, false
	}
	return r.cache.Count(key.TargetID, spec.TargetCounter)
}

func (r *Reconciler) acknowledge(key po.FlagKey, value bool) {
	if r.ack == nil {
		return
	}
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.log.Warnw("msg", "acknowledger panicked", "key", key.String(), "panic", p)
			}
		}()
		r.ack.Acknowledge(key, value)
	}()
}

func (r *Reconciler) persist(op *pendingOp) {
	defer r.wg.Done()

	mutation := po.FlagMutation{Key: op.key, On: op.desired}
	var (
		outcome  *po.FlagOutcome
		err      error
		attempts int
	)
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if r.ctx.Err() != nil || op.ignore.Load() {
			break
		}
		attempts++
		opCtx, cancel := context.WithTimeout(r.ctx, r.cfg.OperationTimeout)
		outcome, err = r.store.ApplyFlag(opCtx, mutation)
		cancel()
		if err == nil || errors.Is(err, ErrNotFound) {
			break
		}
		r.log.Warnw("msg", "persist engagement failed", "key", op.key.String(), "attempt", attempts, "error", err)
		if attempt+1 >= r.cfg.MaxAttempts {
			break
		}
		r.metrics.recordRetry(r.ctx, string(op.key.Kind))
		if sleepErr := r.sleep(r.ctx, r.backoffDuration(attempt)); sleepErr != nil {
			break
		}
	}
	if err == nil && outcome == nil && attempts > 0 {
		err = errors.New("engagement: store returned empty outcome")
	}
	r.settle(op, outcome, err, attempts)
}

func (r *Reconciler) settle(op *pendingOp, outcome *po.FlagOutcome, err error, attempts int) {
	result := Outcome{Key: op.key, Attempts: attempts, Err: err}

	r.mu.Lock()
	if current, ok := r.pending[op.key]; ok && current == op {
		delete(r.pending, op.key)
	}
	switch {
	case op.ignore.Load() || r.ctx.Err() != nil || attempts == 0:
		result.State = StateIgnored
		result.Value = op.desired
	case err == nil:
		r.cache.Set(op.key.ActorID, op.key.TargetID, op.key.Kind, outcome.On)
		for ref, value := range outcome.Counters {
			r.cache.SetCount(ref.EntityID, ref.Field, value)
		}
		result.State = StateConfirmed
		result.Value = outcome.On
		result.Changed = outcome.Changed
	default:
		r.cache.Set(op.key.ActorID, op.key.TargetID, op.key.Kind, op.previous)
		for _, adj := range op.adjustments {
			r.cache.AdjustCount(adj.ref.EntityID, adj.ref.Field, -adj.delta)
		}
		result.State = StateRolledBack
		result.Value = op.previous
	}
	hooks := slices.Clone(r.hooks)
	r.mu.Unlock()

	switch result.State {
	case StateConfirmed:
		r.log.Debugf("engagement confirmed: key=%s value=%v changed=%v", op.key, result.Value, result.Changed)
		if op.spec.Notifies && outcome.On && outcome.Changed {
			r.notify(op.key, outcome.At)
		}
	case StateRolledBack:
		r.log.Warnw("msg", "engagement rolled back", "key", op.key.String(), "attempts", attempts, "error", err)
	}
	r.metrics.recordSettled(context.Background(), string(op.key.Kind), string(result.State))

	for _, hook := range hooks {
		hook(result)
	}
}

type notificationPayload struct {
	ActorID    string    `json:"actor_id"`
	TargetID   string    `json:"target_id"`
	Kind       po.Kind   `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

// notify 异步创建通知；失败只记录日志，不影响已确认的互动。
func (r *Reconciler) notify(key po.FlagKey, at time.Time) {
	if r.notifier == nil {
		return
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	payload, err := json.Marshal(notificationPayload{
		ActorID:    key.ActorID,
		TargetID:   key.TargetID,
		Kind:       key.Kind,
		OccurredAt: at.UTC(),
	})
	if err != nil {
		r.log.Warnw("msg", "encode notification payload failed", "key", key.String(), "error", err)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(r.ctx, defaultNotifyTimeout)
		defer cancel()
		if err := r.notifier.Create(ctx, key.TargetID, key.ActorID, key.Kind, payload); err != nil {
			r.log.Warnw("msg", "create notification failed", "key", key.String(), "error", err)
		}
	}()
}

// ClearFor 清理 actor 的缓存与在途操作（登出）。在途操作的结果将被忽略。
func (r *Reconciler) ClearFor(actorID string) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return
	}
	r.mu.Lock()
	for key, op := range r.pending {
		if key.ActorID == actorID {
			op.ignore.Store(true)
			delete(r.pending, key)
		}
	}
	r.cache.ClearFor(actorID)
	r.mu.Unlock()
}

// Wait 阻塞直到所有后台操作结算完毕。
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Close 结束 Reconciler 生命周期：在途操作被中止且结果忽略，随后等待后台 goroutine 退出。
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// backoffDuration 返回第 attempt 次失败后的等待时长：base * 2^attempt，封顶 MaxBackoff。
func (r *Reconciler) backoffDuration(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	backoff := r.cfg.BaseBackoff
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= r.cfg.MaxBackoff {
			return r.cfg.MaxBackoff
		}
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
