package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultHeartbeatInterval = time.Second
	defaultViewThreshold     = 3 * time.Second
	defaultRepeatGuard       = 2 * time.Second
	defaultViewOpTimeout     = 5 * time.Second
)

// ViewTrackerConfig 控制观看会话的心跳、阈值与防抖参数。
type ViewTrackerConfig struct {
	HeartbeatInterval time.Duration
	Threshold         time.Duration
	RepeatGuard       time.Duration
	OperationTimeout  time.Duration
}

func sanitizeViewTrackerConfig(cfg ViewTrackerConfig) ViewTrackerConfig {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultViewThreshold
	}
	if cfg.RepeatGuard < 0 {
		cfg.RepeatGuard = 0
	} else if cfg.RepeatGuard == 0 {
		cfg.RepeatGuard = defaultRepeatGuard
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultViewOpTimeout
	}
	return cfg
}

// ViewHooks 是会话事件回调，不得阻塞过久。
// OnViewThresholdReached 在阈值计时器的 goroutine 中调用；
// OnViewRecorded 在结束会话的调用方 goroutine 中同步调用（StopTracking / SetVideo / Close）。
type ViewHooks struct {
	OnViewThresholdReached func(videoID string)
	OnViewRecorded         func(videoID string)
}

// TrackerSnapshot 是 ViewTracker 的只读快照。
type TrackerSnapshot struct {
	VideoID     string          `json:"video_id"`
	Visible     bool            `json:"visible"`
	Playing     bool            `json:"playing"`
	Active      bool            `json:"active"`
	OwnerExempt bool            `json:"owner_exempt"`
	Session     *po.ViewSession `json:"session,omitempty"`
}

type trackedSession struct {
	po.ViewSession
	lastBeat time.Time
	stop     chan struct{}
	done     chan struct{}
	timer    *time.Timer
}

// ViewTracker 判断一个展示位上的视频是否产生了一次有效观看。
//
// 会话只在 visible && playing 时存在；视频拥有者的观看永远不计数；
// 阈值回调每个会话最多触发一次；任何存储错误都在组件边界内吞掉。
type ViewTracker struct {
	store    ViewStore
	viewerID string
	cfg      ViewTrackerConfig
	hooks    ViewHooks
	log      *log.Helper
	metrics  *engagementMetrics
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	videoID     string
	visible     bool
	playing     bool
	closed      bool
	starting    bool
	gen         uint64
	owners      map[string]bool
	lastAttempt map[string]time.Time
	session     *trackedSession
}

// NewViewTracker 构造某个 viewer 在一个展示位上的 ViewTracker。
func NewViewTracker(store ViewStore, viewerID, videoID string, cfg ViewTrackerConfig, hooks ViewHooks, logger log.Logger) *ViewTracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &ViewTracker{
		store:       store,
		viewerID:    strings.TrimSpace(viewerID),
		cfg:         sanitizeViewTrackerConfig(cfg),
		hooks:       hooks,
		log:         log.NewHelper(logger),
		metrics:     newEngagementMetrics(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		videoID:     strings.TrimSpace(videoID),
		owners:      make(map[string]bool),
		lastAttempt: make(map[string]time.Time),
	}
}

// Update 应用可见/播放信号，并按 visible && playing 自动开启或结束会话。
func (t *ViewTracker) Update(ctx context.Context, visible, playing bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.visible = visible
	t.playing = playing
	t.mu.Unlock()
	t.reconcile(ctx)
}

// SetVideo 切换展示位上的视频：强制结束当前会话并重置拥有者缓存。
func (t *ViewTracker) SetVideo(ctx context.Context, videoID string) {
	t.mu.Lock()
	visible, playing := t.visible, t.playing
	t.mu.Unlock()
	t.Apply(ctx, videoID, visible, playing)
}

// Apply 一次性应用视频与可见/播放信号。
// 先记录新的可见/播放状态再切换视频，切换后的视频只按新状态决定是否开启会话。
func (t *ViewTracker) Apply(ctx context.Context, videoID string, visible, playing bool) {
	videoID = strings.TrimSpace(videoID)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	switching := videoID != t.videoID
	t.visible = visible
	t.playing = playing
	t.mu.Unlock()

	if switching {
		t.StopTracking(ctx)
		t.mu.Lock()
		t.videoID = videoID
		t.owners = make(map[string]bool)
		t.mu.Unlock()
	}
	t.reconcile(ctx)
}

// reconcile 按当前 visible && playing 开启或结束会话。
func (t *ViewTracker) reconcile(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	shouldTrack := t.visible && t.playing
	active := t.session != nil || t.starting
	t.mu.Unlock()

	switch {
	case shouldTrack && !active:
		t.StartTracking(ctx)
	case !shouldTrack && active:
		t.StopTracking(ctx)
	}
}

// StartTracking 尝试为当前视频开启会话，不满足条件时为 no-op。
func (t *ViewTracker) StartTracking(ctx context.Context) {
	t.mu.Lock()
	if t.closed || t.session != nil || t.starting || !(t.visible && t.playing) || t.videoID == "" || t.viewerID == "" {
		t.mu.Unlock()
		return
	}
	videoID := t.videoID
	owned, checked := t.owners[videoID]
	if checked && owned {
		t.mu.Unlock()
		return
	}
	now := t.now()
	if last, ok := t.lastAttempt[videoID]; ok && now.Sub(last) < t.cfg.RepeatGuard {
		t.mu.Unlock()
		return
	}
	t.lastAttempt[videoID] = now
	t.starting = true
	gen := t.gen
	t.mu.Unlock()

	if !checked {
		ownerID, err := t.videoOwner(ctx, videoID)
		if err != nil {
			t.abandonStart(gen)
			t.logStoreError(ctx, "check video owner", videoID, err)
			return
		}
		owned = ownerID == t.viewerID
		t.mu.Lock()
		if t.videoID == videoID {
			t.owners[videoID] = owned
		}
		t.mu.Unlock()
		if owned {
			t.abandonStart(gen)
			t.metrics.recordSession(ctx, "owner_exempt")
			t.log.WithContext(ctx).Debugf("view tracking exempt for owner: video=%s viewer=%s", videoID, t.viewerID)
			return
		}
	}

	sessionID, err := t.startSession(ctx, videoID)
	if err != nil {
		t.abandonStart(gen)
		t.logStoreError(ctx, "start view session", videoID, err)
		return
	}

	t.mu.Lock()
	if gen != t.gen || t.closed || t.videoID != videoID || !(t.visible && t.playing) {
		if gen == t.gen {
			t.starting = false
		}
		t.mu.Unlock()
		t.finalizeOrphan(videoID, sessionID)
		return
	}
	startedAt := t.now()
	sess := &trackedSession{
		ViewSession: po.ViewSession{
			SessionID: sessionID,
			VideoID:   videoID,
			ViewerID:  t.viewerID,
			StartedAt: startedAt,
		},
		lastBeat: startedAt,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	sess.timer = time.AfterFunc(t.cfg.Threshold, func() { t.reachThreshold(sess) })
	t.session = sess
	t.starting = false
	t.mu.Unlock()

	go t.heartbeat(sess)
	t.metrics.recordSession(ctx, "started")
}

// StopTracking 结束当前会话；达到阈值的会话会触发一次 OnViewRecorded。
// 无论结束调用是否成功，状态都会被重置。
func (t *ViewTracker) StopTracking(ctx context.Context) {
	t.mu.Lock()
	t.gen++
	t.starting = false
	sess := t.session
	t.session = nil
	var (
		stop    po.SessionStop
		videoID string
	)
	if sess != nil {
		now := t.now()
		delta := now.Sub(sess.lastBeat)
		if delta < 0 {
			delta = 0
		}
		sess.lastBeat = now
		sess.AccumulatedVisible += delta
		stop = po.SessionStop{
			SessionID:        sess.SessionID,
			FinalDelta:       delta,
			ThresholdReached: sess.ThresholdReached,
		}
		videoID = sess.VideoID
	}
	t.mu.Unlock()

	if sess == nil {
		return
	}
	sess.timer.Stop()
	close(sess.stop)
	<-sess.done

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.OperationTimeout)
	defer cancel()
	if err := t.store.StopViewSession(stopCtx, stop); err != nil {
		t.log.WithContext(ctx).Warnw("msg", "finalize view session failed", "session_id", stop.SessionID, "video_id", videoID, "error", err)
	}

	if stop.ThresholdReached {
		t.metrics.recordSession(ctx, "recorded")
		if t.hooks.OnViewRecorded != nil {
			t.hooks.OnViewRecorded(videoID)
		}
		return
	}
	t.metrics.recordSession(ctx, "stopped")
}

// Close 模拟组件卸载：强制结束会话，之后的调用均为 no-op。
func (t *ViewTracker) Close(ctx context.Context) {
	t.StopTracking(ctx)
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cancel()
}

// Snapshot 返回当前状态快照。
func (t *ViewTracker) Snapshot() TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := TrackerSnapshot{
		VideoID:     t.videoID,
		Visible:     t.visible,
		Playing:     t.playing,
		Active:      t.session != nil,
		OwnerExempt: t.owners[t.videoID],
	}
	if t.session != nil {
		session := t.session.ViewSession
		snap.Session = &session
	}
	return snap
}

func (t *ViewTracker) reachThreshold(sess *trackedSession) {
	t.mu.Lock()
	if t.session != sess || sess.ThresholdReached {
		t.mu.Unlock()
		return
	}
	sess.ThresholdReached = true
	videoID := sess.VideoID
	t.mu.Unlock()

	t.metrics.recordSession(t.ctx, "threshold_reached")
	if t.hooks.OnViewThresholdReached != nil {
		t.hooks.OnViewThresholdReached(videoID)
	}
}

func (t *ViewTracker) heartbeat(sess *trackedSession) {
	defer close(sess.done)
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.stop:
			return
		case <-t.ctx.Done():
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		if t.session != sess {
			t.mu.Unlock()
			return
		}
		now := t.now()
		delta := now.Sub(sess.lastBeat)
		if delta < 0 {
			delta = 0
		}
		sess.lastBeat = now
		sess.AccumulatedVisible += delta
		sessionID := sess.SessionID
		t.mu.Unlock()

		ctx, cancel := context.WithTimeout(t.ctx, t.cfg.OperationTimeout)
		err := t.store.Heartbeat(ctx, sessionID, delta)
		cancel()
		if err == nil {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			t.abandonSession(sess)
			t.log.Debugf("view session abandoned, video gone: session=%s video=%s", sessionID, sess.VideoID)
			return
		}
		t.log.Debugf("view heartbeat failed: session=%s err=%v", sessionID, err)
	}
}

// abandonSession 在视频被删除时放弃会话，不触发 OnViewRecorded。
func (t *ViewTracker) abandonSession(sess *trackedSession) {
	t.mu.Lock()
	if t.session == sess {
		t.session = nil
		t.gen++
	}
	t.mu.Unlock()
	sess.timer.Stop()
	t.metrics.recordSession(t.ctx, "abandoned")
}

func (t *ViewTracker) abandonStart(gen uint64) {
	t.mu.Lock()
	if gen == t.gen {
		t.starting = false
	}
	t.mu.Unlock()
}

// finalizeOrphan 结束一个在开启过程中已失效的会话（尽力而为）。
func (t *ViewTracker) finalizeOrphan(videoID, sessionID string) {
	ctx, cancel := context.WithTimeout(t.ctx, t.cfg.OperationTimeout)
	defer cancel()
	if err := t.store.StopViewSession(ctx, po.SessionStop{SessionID: sessionID}); err != nil {
		t.log.Debugf("finalize orphan view session failed: session=%s video=%s err=%v", sessionID, videoID, err)
	}
}

func (t *ViewTracker) videoOwner(ctx context.Context, videoID string) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, t.cfg.OperationTimeout)
	defer cancel()
	return t.store.VideoOwner(opCtx, videoID)
}

func (t *ViewTracker) startSession(ctx context.Context, videoID string) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, t.cfg.OperationTimeout)
	defer cancel()
	return t.store.StartViewSession(opCtx, videoID, t.viewerID)
}

func (t *ViewTracker) logStoreError(ctx context.Context, op, videoID string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		t.log.WithContext(ctx).Debugf("%s: video not found, abandon: video=%s", op, videoID)
	case errors.Is(err, ErrSessionDebounced):
		t.log.WithContext(ctx).Debugf("%s: debounced by store: video=%s", op, videoID)
	default:
		t.log.WithContext(ctx).Warnw("msg", op+" failed", "video_id", videoID, "viewer_id", t.viewerID, "error", err)
	}
}
