package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ViewSessionRepository 维护 engagement.view_sessions 与 engagement.video_views。
type ViewSessionRepository struct {
	log *log.Helper
}

// NewViewSessionRepository 构造仓储。
func NewViewSessionRepository(logger log.Logger) *ViewSessionRepository {
	return &ViewSessionRepository{log: log.NewHelper(logger)}
}

// LastStartedAt 返回 viewer 对视频最近一次会话的开始时间。
func (r *ViewSessionRepository) LastStartedAt(ctx context.Context, q DBTX, videoID, viewerID string) (*time.Time, error) {
	var startedAt time.Time
	err := q.QueryRow(ctx, `
		SELECT started_at FROM engagement.view_sessions
		WHERE viewer_id = $1 AND video_id = $2
		ORDER BY started_at DESC
		LIMIT 1`,
		viewerID, videoID).Scan(&startedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last view session: %w", err)
	}
	startedAt = startedAt.UTC()
	return &startedAt, nil
}

// Insert 创建会话并返回会话 ID。
func (r *ViewSessionRepository) Insert(ctx context.Context, q DBTX, videoID, viewerID string, startedAt time.Time) (string, error) {
	id := uuid.New()
	_, err := q.Exec(ctx, `
		INSERT INTO engagement.view_sessions (session_id, video_id, viewer_id, started_at, last_heartbeat_at)
		VALUES ($1, $2, $3, $4, $4)`,
		id, videoID, viewerID, timestamptzFromTime(startedAt))
	if err != nil {
		return "", fmt.Errorf("insert view session: %w", err)
	}
	return id.String(), nil
}

// AddVisible 为未结束的会话累加可见时长；会话不存在或已结束时返回 services.ErrNotFound。
func (r *ViewSessionRepository) AddVisible(ctx context.Context, q DBTX, sessionID string, delta time.Duration) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return services.ErrNotFound
	}
	tag, err := q.Exec(ctx, `
		UPDATE engagement.view_sessions
		SET accumulated_ms = accumulated_ms + $2, last_heartbeat_at = now()
		WHERE session_id = $1 AND ended_at IS NULL`,
		id, nonNegativeMillis(delta))
	if err != nil {
		return fmt.Errorf("heartbeat view session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return services.ErrNotFound
	}
	return nil
}

// Finish 结束会话并返回最终记录；会话不存在或已结束时返回 services.ErrNotFound。
func (r *ViewSessionRepository) Finish(ctx context.Context, q DBTX, stop po.SessionStop) (*po.ViewSessionRecord, error) {
	id, err := uuid.Parse(stop.SessionID)
	if err != nil {
		return nil, services.ErrNotFound
	}
	rows, err := q.Query(ctx, `
		UPDATE engagement.view_sessions
		SET accumulated_ms = accumulated_ms + $2,
		    threshold_reached = threshold_reached OR $3,
		    last_heartbeat_at = now(),
		    ended_at = now()
		WHERE session_id = $1 AND ended_at IS NULL
		RETURNING session_id::text AS session_id, video_id, viewer_id, started_at,
		          last_heartbeat_at, accumulated_ms, threshold_reached, ended_at`,
		id, nonNegativeMillis(stop.FinalDelta), stop.ThresholdReached)
	if err != nil {
		return nil, fmt.Errorf("finish view session %s: %w", stop.SessionID, err)
	}
	record, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[po.ViewSessionRecord])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, services.ErrNotFound
		}
		return nil, fmt.Errorf("scan view session: %w", err)
	}
	return &record, nil
}

// RecordView 写入有效观看，同一会话重复写入为 no-op；返回是否实际写入。
func (r *ViewSessionRepository) RecordView(ctx context.Context, q DBTX, view po.VideoView) (bool, error) {
	id, err := uuid.Parse(view.SessionID)
	if err != nil {
		return false, fmt.Errorf("record view: invalid session id %q", view.SessionID)
	}
	tag, err := q.Exec(ctx, `
		INSERT INTO engagement.video_views (session_id, video_id, viewer_id, watched_ms, viewed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING`,
		id, view.VideoID, view.ViewerID, view.WatchedMS, timestamptzFromTime(view.ViewedAt))
	if err != nil {
		return false, fmt.Errorf("record view %s: %w", view.SessionID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountViews 返回视频的有效观看记录数。
func (r *ViewSessionRepository) CountViews(ctx context.Context, q DBTX, videoID string) (int64, error) {
	var count int64
	if err := q.QueryRow(ctx, `SELECT count(*) FROM engagement.video_views WHERE video_id = $1`, videoID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count views %s: %w", videoID, err)
	}
	return count, nil
}

func nonNegativeMillis(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return d.Milliseconds()
}
