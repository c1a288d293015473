package services

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
)

// 存储层错误分类。
var (
	// ErrNotFound 表示目标（视频/用户/会话）不存在，对当前操作是终态。
	ErrNotFound = stderrors.New("engagement: target not found")
	// ErrSessionDebounced 表示存储侧拒绝了过于频繁的会话开启，属于策略拒绝。
	ErrSessionDebounced = stderrors.New("engagement: view session start debounced")
	// ErrInvalidSignal 表示展示位信号缺少 viewer 或 slot。
	ErrInvalidSignal = stderrors.New("engagement: viewer and slot are required")
	// ErrRegistryClosed 表示观看注册表已关闭。
	ErrRegistryClosed = stderrors.New("engagement: view registry closed")
)

// EngagementStore 定义互动开关与计数的持久化行为。
type EngagementStore interface {
	// FlagExists 报告互动关系是否存在。
	FlagExists(ctx context.Context, key po.FlagKey) (bool, error)
	// ApplyFlag 在同一事务中写入/删除关系并调整计数，幂等。
	ApplyFlag(ctx context.Context, mutation po.FlagMutation) (*po.FlagOutcome, error)
	// LoadFlags 批量读取 actor 对一组目标的关系状态。
	LoadFlags(ctx context.Context, actorID string, kind po.Kind, targetIDs []string) (map[string]bool, error)
	// Counters 读取实体的全部计数字段。
	Counters(ctx context.Context, entityID string) (*po.EntityCounters, error)
}

// ViewStore 定义观看会话所需的存储协作方。
type ViewStore interface {
	VideoOwner(ctx context.Context, videoID string) (string, error)
	StartViewSession(ctx context.Context, videoID, viewerID string) (string, error)
	Heartbeat(ctx context.Context, sessionID string, delta time.Duration) error
	StopViewSession(ctx context.Context, stop po.SessionStop) error
}

// ChangeFeed 是存储驱动的监听入口，返回取消订阅函数。
type ChangeFeed interface {
	Subscribe(fn func(po.ChangeEvent)) (unsubscribe func())
}

// DirectoryStore 维护互动目标实体（视频归属与用户）的登记。
type DirectoryStore interface {
	UpsertVideo(ctx context.Context, videoID, ownerID string) error
	UpsertUser(ctx context.Context, userID string) error
	DeleteVideo(ctx context.Context, videoID string) error
}

// Notifier 是通知协作方；对调用方而言是 fire-and-forget。
type Notifier interface {
	Create(ctx context.Context, recipientID, actorID string, kind po.Kind, payload json.RawMessage) error
}

// Acknowledger 在乐观更新后接收即时确认（触感/视觉反馈），不得阻塞。
type Acknowledger interface {
	Acknowledge(key po.FlagKey, value bool)
}

// AcknowledgerFunc 适配普通函数为 Acknowledger。
type AcknowledgerFunc func(key po.FlagKey, value bool)

// Acknowledge 实现 Acknowledger。
func (f AcknowledgerFunc) Acknowledge(key po.FlagKey, value bool) { f(key, value) }
