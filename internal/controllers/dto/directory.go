package dto

// ListNotificationsRequest 对应 GET /v1/notifications/{recipient_id}?limit=。
type ListNotificationsRequest struct {
	RecipientID string `json:"recipient_id"`
	Limit       int    `json:"limit"`
}

// MarkNotificationReadRequest 对应 POST /v1/notifications/{recipient_id}/{notification_id}:read。
type MarkNotificationReadRequest struct {
	RecipientID    string `json:"recipient_id"`
	NotificationID string `json:"notification_id"`
}

// RegisterVideoRequest 对应 PUT /v1/videos/{video_id}。
type RegisterVideoRequest struct {
	VideoID string `json:"video_id"`
	OwnerID string `json:"owner_id"`
}

// RemoveVideoRequest 对应 DELETE /v1/videos/{video_id}。
type RemoveVideoRequest struct {
	VideoID string `json:"video_id"`
}

// RegisterUserRequest 对应 PUT /v1/users/{user_id}。
type RegisterUserRequest struct {
	UserID string `json:"user_id"`
}
