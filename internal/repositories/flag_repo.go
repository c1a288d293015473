package repositories

import (
	"context"
	"fmt"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
)

// FlagRepository 维护 engagement.flags；行存在即为 true。
type FlagRepository struct {
	log *log.Helper
}

// NewFlagRepository 构造仓储。
func NewFlagRepository(logger log.Logger) *FlagRepository {
	return &FlagRepository{log: log.NewHelper(logger)}
}

// CreateIfAbsent 插入关系，已存在时为 no-op；返回是否实际插入。
func (r *FlagRepository) CreateIfAbsent(ctx context.Context, q DBTX, key po.FlagKey) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO engagement.flags (kind, actor_id, target_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, actor_id, target_id) DO NOTHING`,
		string(key.Kind), key.ActorID, key.TargetID)
	if err != nil {
		return false, fmt.Errorf("create flag %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteIfPresent 删除关系，不存在时为 no-op；返回是否实际删除。
func (r *FlagRepository) DeleteIfPresent(ctx context.Context, q DBTX, key po.FlagKey) (bool, error) {
	tag, err := q.Exec(ctx, `
		DELETE FROM engagement.flags
		WHERE kind = $1 AND actor_id = $2 AND target_id = $3`,
		string(key.Kind), key.ActorID, key.TargetID)
	if err != nil {
		return false, fmt.Errorf("delete flag %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Exists 报告关系是否存在。
func (r *FlagRepository) Exists(ctx context.Context, q DBTX, key po.FlagKey) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM engagement.flags
			WHERE kind = $1 AND actor_id = $2 AND target_id = $3
		)`,
		string(key.Kind), key.ActorID, key.TargetID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check flag %s: %w", key, err)
	}
	return exists, nil
}

// ListExisting 返回 actor 对给定目标集合中已存在关系的映射；缺失的目标值为 false。
func (r *FlagRepository) ListExisting(ctx context.Context, q DBTX, actorID string, kind po.Kind, targetIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		out[id] = false
	}
	if len(targetIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `
		SELECT kind, actor_id, target_id, created_at
		FROM engagement.flags
		WHERE kind = $1 AND actor_id = $2 AND target_id = ANY($3)`,
		string(kind), actorID, targetIDs)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	flags, err := pgx.CollectRows(rows, pgx.RowToStructByName[po.EngagementFlag])
	if err != nil {
		return nil, fmt.Errorf("scan flags: %w", err)
	}
	for _, flag := range flags {
		out[flag.TargetID] = true
	}
	return out, nil
}
