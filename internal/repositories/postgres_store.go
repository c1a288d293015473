package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChangePublisher 将提交后的互动变更投递到跨进程通道（Pub/Sub）。
type ChangePublisher interface {
	PublishChange(ctx context.Context, evt po.ChangeEvent) error
}

// StoreConfig 是存储侧策略参数。
type StoreConfig struct {
	// SessionDebounce 为同一 viewer 对同一视频开启会话的最小间隔，0 表示不限制。
	SessionDebounce time.Duration
}

// PostgresStore 组合各仓储，实现 services 层的存储协作方接口。
//
// 关系写入与计数调整在同一事务中完成；提交成功且状态实际变化后，
// 变更快照先推送给进程内监听器，再投递到 ChangePublisher（失败只记录日志）。
type PostgresStore struct {
	db        *pgxpool.Pool
	flags     *FlagRepository
	counters  *CounterRepository
	entities  *EntityRepository
	sessions  *ViewSessionRepository
	publisher ChangePublisher
	feed      *changeFeed
	cfg       StoreConfig
	now       func() time.Time
	log       *log.Helper
}

// NewPostgresStore 构造 PostgresStore；publisher 可为 nil。
func NewPostgresStore(db *pgxpool.Pool, publisher ChangePublisher, cfg StoreConfig, logger log.Logger) *PostgresStore {
	return &PostgresStore{
		db:        db,
		flags:     NewFlagRepository(logger),
		counters:  NewCounterRepository(logger),
		entities:  NewEntityRepository(logger),
		sessions:  NewViewSessionRepository(logger),
		publisher: publisher,
		feed:      newChangeFeed(),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.NewHelper(logger),
	}
}

// FlagExists 实现 services.EngagementStore。
func (s *PostgresStore) FlagExists(ctx context.Context, key po.FlagKey) (bool, error) {
	return s.flags.Exists(ctx, s.db, key)
}

// ApplyFlag 实现 services.EngagementStore：幂等地写入/删除关系并调整计数。
func (s *PostgresStore) ApplyFlag(ctx context.Context, mutation po.FlagMutation) (*po.FlagOutcome, error) {
	key := mutation.Key
	spec, ok := key.Kind.Spec()
	if !ok {
		return nil, fmt.Errorf("apply flag: unsupported kind %q", key.Kind)
	}
	if !spec.AllowSelf && key.ActorID == key.TargetID {
		return nil, fmt.Errorf("apply flag: self %s is not allowed", key.Kind)
	}

	outcome := &po.FlagOutcome{Key: key, On: mutation.On, Counters: make(map[po.CounterRef]int64)}
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var (
			changed bool
			err     error
		)
		if mutation.On {
			exists, existErr := s.targetExists(ctx, tx, spec, key.TargetID)
			if existErr != nil {
				return existErr
			}
			if !exists {
				return services.ErrNotFound
			}
			changed, err = s.flags.CreateIfAbsent(ctx, tx, key)
		} else {
			changed, err = s.flags.DeleteIfPresent(ctx, tx, key)
		}
		if err != nil {
			return err
		}
		outcome.Changed = changed

		delta := int64(1)
		if !mutation.On {
			delta = -1
		}
		for _, ref := range spec.CounterRefs(key) {
			var value int64
			if changed {
				value, err = s.counters.IncrementField(ctx, tx, ref, delta)
			} else {
				value, err = s.counters.Value(ctx, tx, ref)
			}
			if err != nil {
				return err
			}
			outcome.Counters[ref] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	outcome.At = s.now()

	if outcome.Changed {
		s.emit(ctx, po.NewChangeEvent(outcome))
	}
	return outcome, nil
}

// LoadFlags 实现 services.EngagementStore。
func (s *PostgresStore) LoadFlags(ctx context.Context, actorID string, kind po.Kind, targetIDs []string) (map[string]bool, error) {
	return s.flags.ListExisting(ctx, s.db, actorID, kind, targetIDs)
}

// Counters 实现 services.EngagementStore。
func (s *PostgresStore) Counters(ctx context.Context, entityID string) (*po.EntityCounters, error) {
	return s.counters.Get(ctx, s.db, entityID)
}

// Subscribe 实现 services.ChangeFeed（仅本进程内的写入）。
func (s *PostgresStore) Subscribe(fn func(po.ChangeEvent)) func() {
	return s.feed.Subscribe(fn)
}

// VideoOwner 实现 services.ViewStore。
func (s *PostgresStore) VideoOwner(ctx context.Context, videoID string) (string, error) {
	return s.entities.VideoOwner(ctx, s.db, videoID)
}

// StartViewSession 实现 services.ViewStore；频繁开启返回 services.ErrSessionDebounced。
func (s *PostgresStore) StartViewSession(ctx context.Context, videoID, viewerID string) (string, error) {
	var sessionID string
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		exists, err := s.entities.VideoExists(ctx, tx, videoID, true)
		if err != nil {
			return err
		}
		if !exists {
			return services.ErrNotFound
		}
		now := s.now()
		if s.cfg.SessionDebounce > 0 {
			last, err := s.sessions.LastStartedAt(ctx, tx, videoID, viewerID)
			if err != nil {
				return err
			}
			if last != nil && now.Sub(*last) < s.cfg.SessionDebounce {
				return services.ErrSessionDebounced
			}
		}
		sessionID, err = s.sessions.Insert(ctx, tx, videoID, viewerID, now)
		return err
	})
	if err != nil {
		return "", err
	}
	return sessionID, nil
}

// Heartbeat 实现 services.ViewStore。
func (s *PostgresStore) Heartbeat(ctx context.Context, sessionID string, delta time.Duration) error {
	return s.sessions.AddVisible(ctx, s.db, sessionID, delta)
}

// StopViewSession 实现 services.ViewStore；达到阈值的会话写入有效观看并使 views +1。
func (s *PostgresStore) StopViewSession(ctx context.Context, stop po.SessionStop) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		record, err := s.sessions.Finish(ctx, tx, stop)
		if err != nil {
			return err
		}
		if !record.ThresholdReached {
			return nil
		}
		inserted, err := s.sessions.RecordView(ctx, tx, po.VideoView{
			SessionID: record.SessionID,
			VideoID:   record.VideoID,
			ViewerID:  record.ViewerID,
			WatchedMS: record.AccumulatedMS,
			ViewedAt:  s.now(),
		})
		if err != nil || !inserted {
			return err
		}
		_, err = s.counters.IncrementField(ctx, tx, po.CounterRef{EntityID: record.VideoID, Field: po.CounterViews}, 1)
		return err
	})
}

// UpsertVideo 实现 services.DirectoryStore。
func (s *PostgresStore) UpsertVideo(ctx context.Context, videoID, ownerID string) error {
	return s.entities.UpsertVideo(ctx, s.db, videoID, ownerID)
}

// UpsertUser 实现 services.DirectoryStore。
func (s *PostgresStore) UpsertUser(ctx context.Context, userID string) error {
	return s.entities.UpsertUser(ctx, s.db, userID)
}

// DeleteVideo 实现 services.DirectoryStore。
func (s *PostgresStore) DeleteVideo(ctx context.Context, videoID string) error {
	return s.entities.DeleteVideo(ctx, s.db, videoID)
}

// Ping 供 readiness 探针使用。
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) targetExists(ctx context.Context, q DBTX, spec po.KindSpec, targetID string) (bool, error) {
	switch spec.Target {
	case po.TargetVideo:
		return s.entities.VideoExists(ctx, q, targetID, true)
	case po.TargetUser:
		return s.entities.UserExists(ctx, q, targetID, true)
	default:
		return false, fmt.Errorf("unknown target type %q", spec.Target)
	}
}

func (s *PostgresStore) emit(ctx context.Context, evt po.ChangeEvent) {
	s.feed.publish(evt)
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(context.WithoutCancel(ctx), evt); err != nil {
		s.log.WithContext(ctx).Warnw("msg", "publish change event failed", "kind", evt.Kind, "actor_id", evt.ActorID, "target_id", evt.TargetID, "error", err)
	}
}

var (
	_ services.EngagementStore = (*PostgresStore)(nil)
	_ services.ViewStore       = (*PostgresStore)(nil)
	_ services.ChangeFeed      = (*PostgresStore)(nil)
	_ services.DirectoryStore  = (*PostgresStore)(nil)
)
