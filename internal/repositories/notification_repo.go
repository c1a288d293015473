package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationRepository 维护 engagement.notifications，同时充当 services.Notifier。
type NotificationRepository struct {
	db  *pgxpool.Pool
	log *log.Helper
}

// NewNotificationRepository 构造仓储。
func NewNotificationRepository(db *pgxpool.Pool, logger log.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, log: log.NewHelper(logger)}
}

// Create 写入一条通知。
func (r *NotificationRepository) Create(ctx context.Context, recipientID, actorID string, kind po.Kind, payload json.RawMessage) error {
	var body any
	if len(payload) > 0 {
		body = []byte(payload)
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO engagement.notifications (notification_id, recipient_id, actor_id, kind, payload)
		VALUES ($1, $2, $3, $4, $5::jsonb)`,
		uuid.New(), recipientID, actorID, string(kind), body)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListNotifications 按时间倒序返回收件人的通知。
func (r *NotificationRepository) ListNotifications(ctx context.Context, recipientID string, limit int) ([]po.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT notification_id::text AS notification_id, recipient_id, actor_id, kind,
		       payload, read, created_at
		FROM engagement.notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[po.Notification])
	if err != nil {
		return nil, fmt.Errorf("scan notifications: %w", err)
	}
	return items, nil
}

// MarkNotificationRead 标记已读；通知不存在或不属于收件人时返回 services.ErrNotFound。
func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, recipientID, notificationID string) error {
	id, err := uuid.Parse(notificationID)
	if err != nil {
		return services.ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE engagement.notifications SET read = true
		WHERE notification_id = $1 AND recipient_id = $2`,
		id, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return services.ErrNotFound
	}
	return nil
}

var (
	_ services.Notifier         = (*NotificationRepository)(nil)
	_ services.NotificationRepo = (*NotificationRepository)(nil)
)
