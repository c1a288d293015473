package po

import "time"

// 观看事件类型。
const (
	ViewEventThresholdReached = "view.threshold_reached"
	ViewEventRecorded         = "view.recorded"
)

// ViewEvent 是观看会话在达到阈值或被记录时发出的领域事件。
type ViewEvent struct {
	Type       string    `json:"type"`
	VideoID    string    `json:"video_id"`
	ViewerID   string    `json:"viewer_id"`
	SlotID     string    `json:"slot_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Version    string    `json:"version"`
}
