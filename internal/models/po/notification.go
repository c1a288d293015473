package po

import (
	"encoding/json"
	"time"
)

// Notification 表示 engagement.notifications 表记录。
type Notification struct {
	NotificationID string          `db:"notification_id"`
	RecipientID    string          `db:"recipient_id"`
	ActorID        string          `db:"actor_id"`
	Kind           Kind            `db:"kind"`
	Payload        json.RawMessage `db:"payload"`
	Read           bool            `db:"read"`
	CreatedAt      time.Time       `db:"created_at"`
}
