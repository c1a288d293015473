package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
)

// EntityRepository 维护互动目标实体（视频与用户）的存在性与归属。
type EntityRepository struct {
	log *log.Helper
}

// NewEntityRepository 构造仓储。
func NewEntityRepository(logger log.Logger) *EntityRepository {
	return &EntityRepository{log: log.NewHelper(logger)}
}

// VideoOwner 返回视频拥有者；视频不存在时返回 services.ErrNotFound。
func (r *EntityRepository) VideoOwner(ctx context.Context, q DBTX, videoID string) (string, error) {
	var owner string
	err := q.QueryRow(ctx, `SELECT owner_id FROM engagement.videos WHERE video_id = $1`, videoID).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", services.ErrNotFound
		}
		return "", fmt.Errorf("get video owner %s: %w", videoID, err)
	}
	return owner, nil
}

// VideoExists 报告视频是否存在；lock=true 时以 FOR SHARE 锁定行，防止并发删除。
func (r *EntityRepository) VideoExists(ctx context.Context, q DBTX, videoID string, lock bool) (bool, error) {
	query := `SELECT 1 FROM engagement.videos WHERE video_id = $1`
	if lock {
		query += ` FOR SHARE`
	}
	return r.exists(ctx, q, query, videoID)
}

// UserExists 报告用户是否存在。
func (r *EntityRepository) UserExists(ctx context.Context, q DBTX, userID string, lock bool) (bool, error) {
	query := `SELECT 1 FROM engagement.users WHERE user_id = $1`
	if lock {
		query += ` FOR SHARE`
	}
	return r.exists(ctx, q, query, userID)
}

// UpsertVideo 登记视频及其拥有者（来自内容服务的同步或测试数据）。
func (r *EntityRepository) UpsertVideo(ctx context.Context, q DBTX, videoID, ownerID string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO engagement.videos (video_id, owner_id)
		VALUES ($1, $2)
		ON CONFLICT (video_id) DO UPDATE SET owner_id = EXCLUDED.owner_id`,
		videoID, ownerID)
	if err != nil {
		return fmt.Errorf("upsert video %s: %w", videoID, err)
	}
	return nil
}

// UpsertUser 登记用户。
func (r *EntityRepository) UpsertUser(ctx context.Context, q DBTX, userID string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO engagement.users (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", userID, err)
	}
	return nil
}

// DeleteVideo 删除视频；其观看会话级联删除。
func (r *EntityRepository) DeleteVideo(ctx context.Context, q DBTX, videoID string) error {
	if _, err := q.Exec(ctx, `DELETE FROM engagement.videos WHERE video_id = $1`, videoID); err != nil {
		return fmt.Errorf("delete video %s: %w", videoID, err)
	}
	return nil
}

func (r *EntityRepository) exists(ctx context.Context, q DBTX, query, id string) (bool, error) {
	var one int
	err := q.QueryRow(ctx, query, id).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check entity %s: %w", id, err)
	}
	return true, nil
}
