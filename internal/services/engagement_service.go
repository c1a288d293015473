package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
	"github.com/bionicotaku/lingo-services-engagement/internal/models/vo"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// maxBatchTargets 限制单次批量读取的目标数量。
const maxBatchTargets = 100

// EngagementService 封装互动读写用例，对应客户端的 useEngagement。
type EngagementService struct {
	cache      *EngagementCache
	reconciler *Reconciler
	log        *log.Helper
}

// NewEngagementService 构造互动服务。
func NewEngagementService(cache *EngagementCache, reconciler *Reconciler, logger log.Logger) *EngagementService {
	return &EngagementService{
		cache:      cache,
		reconciler: reconciler,
		log:        log.NewHelper(logger),
	}
}

// Get 返回互动状态；未加载时先从存储读取。
func (s *EngagementService) Get(ctx context.Context, actorID, targetID, rawKind string) (*vo.EngagementState, error) {
	kind, err := parseKind(rawKind)
	if err != nil {
		return nil, err
	}
	actorID, targetID = strings.TrimSpace(actorID), strings.TrimSpace(targetID)
	if actorID == "" || targetID == "" {
		return nil, errInvalidArgument("actor_id and target_id are required")
	}

	if _, ok := s.cache.Get(actorID, targetID, kind); !ok && !s.cache.Loading(actorID, targetID, kind) {
		if err := s.cache.LoadMany(ctx, actorID, kind, []string{targetID}); err != nil {
			s.log.WithContext(ctx).Warnw("msg", "load engagement failed", "kind", kind, "actor_id", actorID, "target_id", targetID, "error", err)
		}
	}
	return s.state(actorID, targetID, kind), nil
}

// BatchGet 批量加载互动状态并返回视图，顺序与去重后的输入一致。
func (s *EngagementService) BatchGet(ctx context.Context, actorID, rawKind string, targetIDs []string) ([]*vo.EngagementState, error) {
	kind, err := parseKind(rawKind)
	if err != nil {
		return nil, err
	}
	actorID = strings.TrimSpace(actorID)
	targets := dedupeIDs(targetIDs)
	if actorID == "" {
		return nil, errInvalidArgument("actor_id is required")
	}
	if len(targets) > maxBatchTargets {
		return nil, errInvalidArgument(fmt.Sprintf("at most %d target_ids per request", maxBatchTargets))
	}

	if err := s.cache.LoadMany(ctx, actorID, kind, targets); err != nil {
		s.log.WithContext(ctx).Errorf("batch load engagement failed: kind=%s actor=%s err=%v", kind, actorID, err)
		return nil, errors.ServiceUnavailable(ReasonLoadFailed, "failed to load engagement state").WithCause(err)
	}

	out := make([]*vo.EngagementState, 0, len(targets))
	for _, id := range targets {
		out = append(out, s.state(actorID, id, kind))
	}
	return out, nil
}

// Toggle 翻转互动状态，立即返回乐观结果。
func (s *EngagementService) Toggle(ctx context.Context, actorID, targetID, rawKind string) (*vo.ToggleView, error) {
	kind, err := parseKind(rawKind)
	if err != nil {
		return nil, err
	}
	result := s.reconciler.Toggle(ctx, actorID, targetID, kind)
	return toggleView(result), nil
}

// Set 显式设置互动状态。
func (s *EngagementService) Set(ctx context.Context, actorID, targetID, rawKind string, value bool) (*vo.ToggleView, error) {
	kind, err := parseKind(rawKind)
	if err != nil {
		return nil, err
	}
	result := s.reconciler.Set(ctx, actorID, targetID, kind, value)
	return toggleView(result), nil
}

// ClearFor 清理 actor 的互动缓存与在途操作（登出）。
func (s *EngagementService) ClearFor(ctx context.Context, actorID string) error {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return errInvalidArgument("actor_id is required")
	}
	s.reconciler.ClearFor(actorID)
	s.log.WithContext(ctx).Infof("engagement state cleared: actor=%s", actorID)
	return nil
}

func (s *EngagementService) state(actorID, targetID string, kind po.Kind) *vo.EngagementState {
	value, loaded := s.cache.Get(actorID, targetID, kind)
	state := &vo.EngagementState{
		Kind:     kind,
		ActorID:  actorID,
		TargetID: targetID,
		Value:    value,
		Loaded:   loaded,
		Loading:  s.cache.Loading(actorID, targetID, kind),
		Pending:  s.reconciler.State(actorID, targetID, kind) == StatePending,
	}
	if spec, ok := kind.Spec(); ok && spec.TargetCounter != "" {
		if count, ok := s.cache.Count(targetID, spec.TargetCounter); ok {
			state.Count = &count
		}
	}
	return state
}

func toggleView(result ToggleResult) *vo.ToggleView {
	view := &vo.ToggleView{
		Kind:     result.Key.Kind,
		ActorID:  result.Key.ActorID,
		TargetID: result.Key.TargetID,
		Value:    result.Value,
		Previous: result.Previous,
		Accepted: result.Accepted,
		Reason:   result.Reason,
	}
	if result.HasCount {
		count := result.Count
		view.Count = &count
	}
	return view
}

func parseKind(raw string) (po.Kind, error) {
	kind, err := po.ParseKind(raw)
	if err != nil {
		return "", errInvalidKind(raw)
	}
	return kind, nil
}
