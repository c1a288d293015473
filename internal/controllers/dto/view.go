package dto

// ViewSignalRequest 对应 POST /v1/views/{viewer_id}/slots/{slot_id}。
type ViewSignalRequest struct {
	ViewerID string `json:"viewer_id"`
	SlotID   string `json:"slot_id"`
	VideoID  string `json:"video_id"`
	Visible  bool   `json:"visible"`
	Playing  bool   `json:"playing"`
}

// ReleaseSlotRequest 对应 DELETE /v1/views/{viewer_id}/slots/{slot_id}。
type ReleaseSlotRequest struct {
	ViewerID string `json:"viewer_id"`
	SlotID   string `json:"slot_id"`
}

// ReleaseViewerRequest 对应 DELETE /v1/views/{viewer_id}。
type ReleaseViewerRequest struct {
	ViewerID string `json:"viewer_id"`
}
