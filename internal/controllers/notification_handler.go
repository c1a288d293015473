package controllers

import (
	"context"

	"github.com/bionicotaku/lingo-services-engagement/internal/controllers/dto"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"
	"github.com/bionicotaku/lingo-services-engagement/internal/views"

	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// 通知接口的 operation 名称。
const (
	OperationNotificationList     = "/engagement.v1.NotificationService/List"
	OperationNotificationMarkRead = "/engagement.v1.NotificationService/MarkRead"
)

// NotificationHandler 提供关注通知的查询与已读标记。
type NotificationHandler struct {
	*BaseHandler
	svc *services.NotificationService
}

// NewNotificationHandler 构造通知 Handler。
func NewNotificationHandler(svc *services.NotificationService, base *BaseHandler) *NotificationHandler {
	if base == nil {
		base = NewBaseHandler(HandlerTimeouts{})
	}
	return &NotificationHandler{BaseHandler: base, svc: svc}
}

// Register 实现 Registrar。
func (h *NotificationHandler) Register(r *khttp.Router) {
	r.GET("/v1/notifications/{recipient_id}", h.list)
	r.POST("/v1/notifications/{recipient_id}/{notification_id}:read", h.markRead)
}

func (h *NotificationHandler) list(ctx khttp.Context) error {
	var in dto.ListNotificationsRequest
	if err := bindQueryAndVars(ctx, &in); err != nil {
		return err
	}
	return serve(ctx, OperationNotificationList, &in, func(c context.Context, req *dto.ListNotificationsRequest) (any, error) {
		c, _, cancel := h.prepare(c, HandlerTypeQuery)
		defer cancel()
		items, err := h.svc.List(c, req.RecipientID, req.Limit)
		if err != nil {
			return nil, err
		}
		return views.NewNotificationListResponse(items), nil
	})
}

func (h *NotificationHandler) markRead(ctx khttp.Context) error {
	var in dto.MarkNotificationReadRequest
	if err := ctx.BindVars(&in); err != nil {
		return err
	}
	return serve(ctx, OperationNotificationMarkRead, &in, func(c context.Context, req *dto.MarkNotificationReadRequest) (any, error) {
		c, _, cancel := h.prepare(c, HandlerTypeCommand)
		defer cancel()
		if err := h.svc.MarkRead(c, req.RecipientID, req.NotificationID); err != nil {
			return nil, err
		}
		return &views.Ack{OK: true}, nil
	})
}
