package views

import (
	"github.com/bionicotaku/lingo-services-engagement/internal/models/vo"
)

// NewViewSlotResponse 返回展示位状态；nil 时返回空对象而不是 null。
func NewViewSlotResponse(state *vo.ViewSlotState) *vo.ViewSlotState {
	if state == nil {
		return &vo.ViewSlotState{}
	}
	return state
}

// ReleaseResponse 是卸载展示位的响应体。
type ReleaseResponse struct {
	ViewerID string `json:"viewer_id"`
	SlotID   string `json:"slot_id,omitempty"`
	Released int    `json:"released"`
}

// NotificationListResponse 是通知列表响应体。
type NotificationListResponse struct {
	Items []*vo.Notification `json:"items"`
}

// NewNotificationListResponse 构造通知列表响应。
func NewNotificationListResponse(items []*vo.Notification) *NotificationListResponse {
	if items == nil {
		items = []*vo.Notification{}
	}
	return &NotificationListResponse{Items: items}
}

// Ack 是无业务返回值的写操作响应体。
type Ack struct {
	OK bool `json:"ok"`
}
