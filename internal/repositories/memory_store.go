package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// Op 标识 MemoryStore 的一类操作，用于故障注入与调用计数。
type Op string

// MemoryStore 支持注入的操作。
const (
	OpApplyFlag    Op = "apply_flag"
	OpLoadFlags    Op = "load_flags"
	OpCounters     Op = "counters"
	OpVideoOwner   Op = "video_owner"
	OpStartSession Op = "start_session"
	OpHeartbeat    Op = "heartbeat"
	OpStopSession  Op = "stop_session"
	OpNotify       Op = "notify"
)

type memorySession struct {
	record po.ViewSessionRecord
}

type injectedFailure struct {
	remaining int
	err       error
}

// MemoryStore 是进程内存储实现，语义与 PostgresStore 一致，用于本地开发（data.driver=memory）与测试。
type MemoryStore struct {
	cfg       StoreConfig
	publisher ChangePublisher
	feed      *changeFeed
	log       *log.Helper
	now       func() time.Time

	mu            sync.Mutex
	videos        map[string]string
	users         map[string]struct{}
	flags         map[po.FlagKey]time.Time
	counters      map[po.CounterRef]int64
	sessions      map[string]*memorySession
	views         map[string]po.VideoView
	notifications []po.Notification
	failures      map[Op]*injectedFailure
	gates         map[Op]chan struct{}
	calls         map[Op]int
}

// NewMemoryStore 构造 MemoryStore；publisher 可为 nil。
func NewMemoryStore(publisher ChangePublisher, cfg StoreConfig, logger log.Logger) *MemoryStore {
	return &MemoryStore{
		cfg:       cfg,
		publisher: publisher,
		feed:      newChangeFeed(),
		log:       log.NewHelper(logger),
		now:       func() time.Time { return time.Now().UTC() },
		videos:    make(map[string]string),
		users:     make(map[string]struct{}),
		flags:     make(map[po.FlagKey]time.Time),
		counters:  make(map[po.CounterRef]int64),
		sessions:  make(map[string]*memorySession),
		views:     make(map[string]po.VideoView),
		failures:  make(map[Op]*injectedFailure),
		gates:     make(map[Op]chan struct{}),
		calls:     make(map[Op]int),
	}
}

// FailNext 让接下来 times 次 op 调用返回 err。
func (s *MemoryStore) FailNext(op Op, times int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if times <= 0 {
		delete(s.failures, op)
		return
	}
	s.failures[op] = &injectedFailure{remaining: times, err: err}
}

// Hold 让后续 op 调用阻塞，直到返回的 release 被调用或调用方 ctx 结束。
func (s *MemoryStore) Hold(op Op) (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gates[op] = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gates[op] == gate {
				delete(s.gates, op)
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Calls 返回 op 被调用的次数（含失败）。
func (s *MemoryStore) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// SetCounter 直接写入计数（测试与数据导入）。
func (s *MemoryStore) SetCounter(entityID, field string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[po.CounterRef{EntityID: entityID, Field: field}] = max(value, 0)
}

// CounterValue 读取计数。
func (s *MemoryStore) CounterValue(entityID, field string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[po.CounterRef{EntityID: entityID, Field: field}]
}

// HasFlag 报告关系是否存在。
func (s *MemoryStore) HasFlag(key po.FlagKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.flags[key]
	return ok
}

// Sessions 返回全部会话记录的快照，按开始时间排序。
func (s *MemoryStore) Sessions() []po.ViewSessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]po.ViewSessionRecord, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Views 返回全部有效观看记录。
func (s *MemoryStore) Views() []po.VideoView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]po.VideoView, 0, len(s.views))
	for _, v := range s.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ViewedAt.Before(out[j].ViewedAt) })
	return out
}

// FlagExists 实现 services.EngagementStore。
func (s *MemoryStore) FlagExists(ctx context.Context, key po.FlagKey) (bool, error) {
	if err := s.enter(ctx, OpLoadFlags); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.flags[key]
	return ok, nil
}

// ApplyFlag 实现 services.EngagementStore。
func (s *MemoryStore) ApplyFlag(ctx context.Context, mutation po.FlagMutation) (*po.FlagOutcome, error) {
	if err := s.enter(ctx, OpApplyFlag); err != nil {
		return nil, err
	}
	key := mutation.Key
	spec, ok := key.Kind.Spec()
	if !ok {
		return nil, fmt.Errorf("apply flag: unsupported kind %q", key.Kind)
	}
	if !spec.AllowSelf && key.ActorID == key.TargetID {
		return nil, fmt.Errorf("apply flag: self %s is not allowed", key.Kind)
	}

	s.mu.Lock()
	if mutation.On && !s.targetExistsLocked(spec, key.TargetID) {
		s.mu.Unlock()
		return nil, services.ErrNotFound
	}
	outcome := &po.FlagOutcome{Key: key, On: mutation.On, Counters: make(map[po.CounterRef]int64), At: s.now()}
	_, exists := s.flags[key]
	switch {
	case mutation.On && !exists:
		s.flags[key] = outcome.At
		outcome.Changed = true
	case !mutation.On && exists:
		delete(s.flags, key)
		outcome.Changed = true
	}
	delta := int64(1)
	if !mutation.On {
		delta = -1
	}
	for _, ref := range spec.CounterRefs(key) {
		if outcome.Changed {
			s.counters[ref] = max(s.counters[ref]+delta, 0)
		}
		outcome.Counters[ref] = s.counters[ref]
	}
	s.mu.Unlock()

	if outcome.Changed {
		evt := po.NewChangeEvent(outcome)
		s.feed.publish(evt)
		if s.publisher != nil {
			if err := s.publisher.PublishChange(context.WithoutCancel(ctx), evt); err != nil {
				s.log.WithContext(ctx).Warnw("msg", "publish change event failed", "key", key.String(), "error", err)
			}
		}
	}
	return outcome, nil
}

// LoadFlags 实现 services.EngagementStore。
func (s *MemoryStore) LoadFlags(ctx context.Context, actorID string, kind po.Kind, targetIDs []string) (map[string]bool, error) {
	if err := s.enter(ctx, OpLoadFlags); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		_, out[id] = s.flags[po.FlagKey{Kind: kind, ActorID: actorID, TargetID: id}]
	}
	return out, nil
}

// Counters 实现 services.EngagementStore。
func (s *MemoryStore) Counters(ctx context.Context, entityID string) (*po.EntityCounters, error) {
	if err := s.enter(ctx, OpCounters); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &po.EntityCounters{EntityID: entityID, Values: make(map[string]int64)}
	for ref, value := range s.counters {
		if ref.EntityID == entityID {
			out.Values[ref.Field] = value
		}
	}
	return out, nil
}

// Subscribe 实现 services.ChangeFeed。
func (s *MemoryStore) Subscribe(fn func(po.ChangeEvent)) func() {
	return s.feed.Subscribe(fn)
}

// VideoOwner 实现 services.ViewStore。
func (s *MemoryStore) VideoOwner(ctx context.Context, videoID string) (string, error) {
	if err := s.enter(ctx, OpVideoOwner); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.videos[videoID]
	if !ok {
		return "", services.ErrNotFound
	}
	return owner, nil
}

// StartViewSession 实现 services.ViewStore。
func (s *MemoryStore) StartViewSession(ctx context.Context, videoID, viewerID string) (string, error) {
	if err := s.enter(ctx, OpStartSession); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[videoID]; !ok {
		return "", services.ErrNotFound
	}
	now := s.now()
	if s.cfg.SessionDebounce > 0 {
		for _, sess := range s.sessions {
			r := sess.record
			if r.VideoID == videoID && r.ViewerID == viewerID && now.Sub(r.StartedAt) < s.cfg.SessionDebounce {
				return "", services.ErrSessionDebounced
			}
		}
	}
	id := uuid.NewString()
	s.sessions[id] = &memorySession{record: po.ViewSessionRecord{
		SessionID:       id,
		VideoID:         videoID,
		ViewerID:        viewerID,
		StartedAt:       now,
		LastHeartbeatAt: now,
	}}
	return id, nil
}

// Heartbeat 实现 services.ViewStore。
func (s *MemoryStore) Heartbeat(ctx context.Context, sessionID string, delta time.Duration) error {
	if err := s.enter(ctx, OpHeartbeat); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.record.EndedAt != nil {
		return services.ErrNotFound
	}
	sess.record.AccumulatedMS += nonNegativeMillis(delta)
	sess.record.LastHeartbeatAt = s.now()
	return nil
}

// StopViewSession 实现 services.ViewStore。
func (s *MemoryStore) StopViewSession(ctx context.Context, stop po.SessionStop) error {
	if err := s.enter(ctx, OpStopSession); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[stop.SessionID]
	if !ok || sess.record.EndedAt != nil {
		return services.ErrNotFound
	}
	now := s.now()
	sess.record.AccumulatedMS += nonNegativeMillis(stop.FinalDelta)
	sess.record.ThresholdReached = sess.record.ThresholdReached || stop.ThresholdReached
	sess.record.LastHeartbeatAt = now
	sess.record.EndedAt = &now

	if !sess.record.ThresholdReached {
		return nil
	}
	if _, recorded := s.views[stop.SessionID]; recorded {
		return nil
	}
	s.views[stop.SessionID] = po.VideoView{
		SessionID: stop.SessionID,
		VideoID:   sess.record.VideoID,
		ViewerID:  sess.record.ViewerID,
		WatchedMS: sess.record.AccumulatedMS,
		ViewedAt:  now,
	}
	ref := po.CounterRef{EntityID: sess.record.VideoID, Field: po.CounterViews}
	s.counters[ref]++
	return nil
}

// UpsertVideo 实现 services.DirectoryStore。
func (s *MemoryStore) UpsertVideo(_ context.Context, videoID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[videoID] = ownerID
	return nil
}

// UpsertUser 实现 services.DirectoryStore。
func (s *MemoryStore) UpsertUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = struct{}{}
	return nil
}

// DeleteVideo 实现 services.DirectoryStore；视频的会话随之删除。
func (s *MemoryStore) DeleteVideo(_ context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.videos, videoID)
	for id, sess := range s.sessions {
		if sess.record.VideoID == videoID {
			delete(s.sessions, id)
		}
	}
	return nil
}

// Create 实现 services.Notifier。
func (s *MemoryStore) Create(ctx context.Context, recipientID, actorID string, kind po.Kind, payload json.RawMessage) error {
	if err := s.enter(ctx, OpNotify); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, po.Notification{
		NotificationID: uuid.NewString(),
		RecipientID:    recipientID,
		ActorID:        actorID,
		Kind:           kind,
		Payload:        append(json.RawMessage(nil), payload...),
		CreatedAt:      s.now(),
	})
	return nil
}

// ListNotifications 实现 services.NotificationRepo。
func (s *MemoryStore) ListNotifications(_ context.Context, recipientID string, limit int) ([]po.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []po.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.RecipientID != recipientID {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MarkNotificationRead 实现 services.NotificationRepo。
func (s *MemoryStore) MarkNotificationRead(_ context.Context, recipientID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		n := &s.notifications[i]
		if n.NotificationID == notificationID && n.RecipientID == recipientID {
			n.Read = true
			return nil
		}
	}
	return services.ErrNotFound
}

// Ping 供 readiness 探针使用。
func (s *MemoryStore) Ping(context.Context) error { return nil }

// enter 记录调用、等待 Hold 闸门并消费注入的故障。
func (s *MemoryStore) enter(ctx context.Context, op Op) error {
	s.mu.Lock()
	s.calls[op]++
	gate := s.gates[op]
	var injected error
	if f, ok := s.failures[op]; ok {
		injected = f.err
		f.remaining--
		if f.remaining <= 0 {
			delete(s.failures, op)
		}
	}
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if injected != nil {
		return injected
	}
	return ctx.Err()
}

func (s *MemoryStore) targetExistsLocked(spec po.KindSpec, targetID string) bool {
	switch spec.Target {
	case po.TargetVideo:
		_, ok := s.videos[targetID]
		return ok
	case po.TargetUser:
		_, ok := s.users[targetID]
		return ok
	default:
		return false
	}
}

var (
	_ services.EngagementStore  = (*MemoryStore)(nil)
	_ services.ViewStore        = (*MemoryStore)(nil)
	_ services.ChangeFeed       = (*MemoryStore)(nil)
	_ services.DirectoryStore   = (*MemoryStore)(nil)
	_ services.Notifier         = (*MemoryStore)(nil)
	_ services.NotificationRepo = (*MemoryStore)(nil)
)
