package repositories

import (
	"context"
	"fmt"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"

	"github.com/go-kratos/kratos/v2/log"
)

// CounterRepository 维护 engagement.entity_counters。
type CounterRepository struct {
	log *log.Helper
}

// NewCounterRepository 构造仓储。
func NewCounterRepository(logger log.Logger) *CounterRepository {
	return &CounterRepository{log: log.NewHelper(logger)}
}

// IncrementField 原子地施加增量并返回新值，结果不小于 0。
func (r *CounterRepository) IncrementField(ctx context.Context, q DBTX, ref po.CounterRef, delta int64) (int64, error) {
	var value int64
	err := q.QueryRow(ctx, `
		INSERT INTO engagement.entity_counters (entity_id, field, value)
		VALUES ($1, $2, GREATEST(0, $3::bigint))
		ON CONFLICT (entity_id, field) DO UPDATE
		SET value = GREATEST(0, engagement.entity_counters.value + $3::bigint),
		    updated_at = now()
		RETURNING value`,
		ref.EntityID, ref.Field, delta).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s.%s: %w", ref.EntityID, ref.Field, err)
	}
	return value, nil
}

// Value 读取单个计数字段，缺失时为 0。
func (r *CounterRepository) Value(ctx context.Context, q DBTX, ref po.CounterRef) (int64, error) {
	var value int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE((
			SELECT value FROM engagement.entity_counters
			WHERE entity_id = $1 AND field = $2
		), 0)`,
		ref.EntityID, ref.Field).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("get counter %s.%s: %w", ref.EntityID, ref.Field, err)
	}
	return value, nil
}

// Get 读取实体的全部计数字段。
func (r *CounterRepository) Get(ctx context.Context, q DBTX, entityID string) (*po.EntityCounters, error) {
	rows, err := q.Query(ctx, `
		SELECT field, value FROM engagement.entity_counters
		WHERE entity_id = $1`, entityID)
	if err != nil {
		return nil, fmt.Errorf("get counters %s: %w", entityID, err)
	}
	defer rows.Close()

	out := &po.EntityCounters{EntityID: entityID, Values: make(map[string]int64)}
	for rows.Next() {
		var (
			field string
			value int64
		)
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		out.Values[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counters: %w", err)
	}
	return out, nil
}
