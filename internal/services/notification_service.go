package services

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
	"github.com/bionicotaku/lingo-services-engagement/internal/models/vo"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationRepo 定义通知查询所需的访问接口。
type NotificationRepo interface {
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]po.Notification, error)
	MarkNotificationRead(ctx context.Context, recipientID, notificationID string) error
}

// NotificationService 封装通知只读与已读用例。
type NotificationService struct {
	repo NotificationRepo
	log  *log.Helper
}

// NewNotificationService 构造通知服务。
func NewNotificationService(repo NotificationRepo, logger log.Logger) *NotificationService {
	return &NotificationService{repo: repo, log: log.NewHelper(logger)}
}

// List 按时间倒序返回收件人的通知。
func (s *NotificationService) List(ctx context.Context, recipientID string, limit int) ([]*vo.Notification, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, errInvalidArgument("recipient_id is required")
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	records, err := s.repo.ListNotifications(ctx, recipientID, limit)
	if err != nil {
		s.log.WithContext(ctx).Errorf("list notifications failed: recipient=%s err=%v", recipientID, err)
		return nil, errors.InternalServer(ReasonUnavailable, "failed to list notifications").WithCause(err)
	}
	out := make([]*vo.Notification, 0, len(records))
	for _, record := range records {
		out = append(out, vo.NewNotification(record))
	}
	return out, nil
}

// MarkRead 标记通知为已读。
func (s *NotificationService) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	recipientID, notificationID = strings.TrimSpace(recipientID), strings.TrimSpace(notificationID)
	if recipientID == "" || notificationID == "" {
		return errInvalidArgument("recipient_id and notification_id are required")
	}
	err := s.repo.MarkNotificationRead(ctx, recipientID, notificationID)
	switch {
	case stderrors.Is(err, ErrNotFound):
		return errors.NotFound(ReasonNotFound, "notification not found")
	case err != nil:
		s.log.WithContext(ctx).Errorf("mark notification read failed: id=%s err=%v", notificationID, err)
		return errors.InternalServer(ReasonUnavailable, "failed to mark notification").WithCause(err)
	}
	return nil
}
