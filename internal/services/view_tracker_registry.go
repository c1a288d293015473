package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"

	"github.com/go-kratos/kratos/v2/log"
)

const defaultPublishTimeout = 5 * time.Second

// ViewEventPublisher 将观看事件投递到外部（Pub/Sub 等）。
type ViewEventPublisher interface {
	PublishViewEvent(ctx context.Context, evt po.ViewEvent) error
}

type slotKey struct {
	viewerID string
	slotID   string
}

// ViewTrackerRegistry 按 (viewer, slot) 管理 ViewTracker，是 HTTP 入口与观看会话之间的桥梁。
type ViewTrackerRegistry struct {
	store     ViewStore
	cfg       ViewTrackerConfig
	publisher ViewEventPublisher
	logger    log.Logger
	log       *log.Helper

	mu       sync.Mutex
	trackers map[slotKey]*ViewTracker
	closed   bool
	wg       sync.WaitGroup
}

// NewViewTrackerRegistry 构造注册表；publisher 可为 nil。
func NewViewTrackerRegistry(store ViewStore, cfg ViewTrackerConfig, publisher ViewEventPublisher, logger log.Logger) *ViewTrackerRegistry {
	return &ViewTrackerRegistry{
		store:     store,
		cfg:       sanitizeViewTrackerConfig(cfg),
		publisher: publisher,
		logger:    logger,
		log:       log.NewHelper(logger),
		trackers:  make(map[slotKey]*ViewTracker),
	}
}

// Signal 应用一次展示位信号：必要时创建 tracker、切换视频并更新可见/播放状态。
func (r *ViewTrackerRegistry) Signal(ctx context.Context, viewerID, slotID, videoID string, visible, playing bool) (TrackerSnapshot, error) {
	key := slotKey{viewerID: strings.TrimSpace(viewerID), slotID: strings.TrimSpace(slotID)}
	videoID = strings.TrimSpace(videoID)
	if key.viewerID == "" || key.slotID == "" {
		return TrackerSnapshot{}, ErrInvalidSignal
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return TrackerSnapshot{}, ErrRegistryClosed
	}
	tracker, ok := r.trackers[key]
	if !ok {
		tracker = NewViewTracker(r.store, key.viewerID, videoID, r.cfg, r.hooksFor(key), r.logger)
		r.trackers[key] = tracker
	}
	r.mu.Unlock()

	tracker.Apply(ctx, videoID, visible, playing)
	return tracker.Snapshot(), nil
}

// Snapshot 返回展示位当前状态。
func (r *ViewTrackerRegistry) Snapshot(viewerID, slotID string) (TrackerSnapshot, bool) {
	r.mu.Lock()
	tracker, ok := r.trackers[slotKey{viewerID: strings.TrimSpace(viewerID), slotID: strings.TrimSpace(slotID)}]
	r.mu.Unlock()
	if !ok {
		return TrackerSnapshot{}, false
	}
	return tracker.Snapshot(), true
}

// Release 卸载展示位：强制结束会话并移除 tracker。
func (r *ViewTrackerRegistry) Release(ctx context.Context, viewerID, slotID string) bool {
	key := slotKey{viewerID: strings.TrimSpace(viewerID), slotID: strings.TrimSpace(slotID)}
	r.mu.Lock()
	tracker, ok := r.trackers[key]
	delete(r.trackers, key)
	r.mu.Unlock()
	if !ok {
		return false
	}
	tracker.Close(ctx)
	return true
}

// ReleaseViewer 卸载 viewer 的全部展示位（登出），返回卸载数量。
func (r *ViewTrackerRegistry) ReleaseViewer(ctx context.Context, viewerID string) int {
	viewerID = strings.TrimSpace(viewerID)
	r.mu.Lock()
	var released []*ViewTracker
	for key, tracker := range r.trackers {
		if key.viewerID == viewerID {
			released = append(released, tracker)
			delete(r.trackers, key)
		}
	}
	r.mu.Unlock()

	for _, tracker := range released {
		tracker.Close(ctx)
	}
	return len(released)
}

// Close 卸载全部展示位并等待事件投递结束。
func (r *ViewTrackerRegistry) Close(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	trackers := r.trackers
	r.trackers = make(map[slotKey]*ViewTracker)
	r.mu.Unlock()

	for _, tracker := range trackers {
		tracker.Close(ctx)
	}
	r.wg.Wait()
}

func (r *ViewTrackerRegistry) hooksFor(key slotKey) ViewHooks {
	return ViewHooks{
		OnViewThresholdReached: func(videoID string) {
			r.publish(po.ViewEvent{Type: po.ViewEventThresholdReached, VideoID: videoID, ViewerID: key.viewerID, SlotID: key.slotID})
		},
		OnViewRecorded: func(videoID string) {
			r.publish(po.ViewEvent{Type: po.ViewEventRecorded, VideoID: videoID, ViewerID: key.viewerID, SlotID: key.slotID})
		},
	}
}

func (r *ViewTrackerRegistry) publish(evt po.ViewEvent) {
	evt.OccurredAt = time.Now().UTC()
	evt.Version = po.ChangeEventVersion
	r.log.Infow("msg", "view event", "type", evt.Type, "video_id", evt.VideoID, "viewer_id", evt.ViewerID)
	if r.publisher == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
		defer cancel()
		if err := r.publisher.PublishViewEvent(ctx, evt); err != nil {
			r.log.Warnw("msg", "publish view event failed", "type", evt.Type, "video_id", evt.VideoID, "error", err)
		}
	}()
}
