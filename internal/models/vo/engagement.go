// Package vo 定义视图对象（View Objects），由 Service 层返回，经 Controller 转换为 HTTP 响应。
package vo

import (
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
)

// EngagementState 是某个 actor 对某个目标的互动视图。
// Loaded=false 时 Value 没有意义，调用方不得把它当作 false 展示。
type EngagementState struct {
	Kind     po.Kind `json:"kind"`
	ActorID  string  `json:"actor_id"`
	TargetID string  `json:"target_id"`
	Value    bool    `json:"value"`
	Loaded   bool    `json:"loaded"`
	Loading  bool    `json:"loading"`
	Pending  bool    `json:"pending"`
	Count    *int64  `json:"count,omitempty"`
}

// ToggleView 是 Toggle/Set 的同步结果。
type ToggleView struct {
	Kind     po.Kind `json:"kind"`
	ActorID  string  `json:"actor_id"`
	TargetID string  `json:"target_id"`
	Value    bool    `json:"value"`
	Previous bool    `json:"previous"`
	Count    *int64  `json:"count,omitempty"`
	Accepted bool    `json:"accepted"`
	Reason   string  `json:"reason,omitempty"`
}

// ViewSlotState 是展示位观看状态视图。
type ViewSlotState struct {
	ViewerID         string     `json:"viewer_id"`
	SlotID           string     `json:"slot_id"`
	VideoID          string     `json:"video_id"`
	Visible          bool       `json:"visible"`
	Playing          bool       `json:"playing"`
	Tracking         bool       `json:"tracking"`
	OwnerExempt      bool       `json:"owner_exempt"`
	SessionID        string     `json:"session_id,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	AccumulatedMS    int64      `json:"accumulated_ms"`
	ThresholdReached bool       `json:"threshold_reached"`
}

// Notification 是通知视图。
type Notification struct {
	NotificationID string    `json:"notification_id"`
	ActorID        string    `json:"actor_id"`
	Kind           po.Kind   `json:"kind"`
	Payload        any       `json:"payload,omitempty"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewNotification 从持久化对象构造通知视图。
func NewNotification(n po.Notification) *Notification {
	view := &Notification{
		NotificationID: n.NotificationID,
		ActorID:        n.ActorID,
		Kind:           n.Kind,
		Read:           n.Read,
		CreatedAt:      n.CreatedAt,
	}
	if len(n.Payload) > 0 {
		view.Payload = n.Payload
	}
	return view
}
