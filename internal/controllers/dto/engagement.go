// Package dto 定义 HTTP 请求体与路径/查询参数的绑定结构。
package dto

// ToggleEngagementRequest 对应 POST /v1/engagements/{kind}/{target_id}/toggle。
type ToggleEngagementRequest struct {
	Kind     string `json:"kind"`
	TargetID string `json:"target_id"`
	ActorID  string `json:"actor_id"`
}

// SetEngagementRequest 对应 PUT /v1/engagements/{kind}/{target_id}。
type SetEngagementRequest struct {
	Kind     string `json:"kind"`
	TargetID string `json:"target_id"`
	ActorID  string `json:"actor_id"`
	Value    *bool  `json:"value"`
}

// GetEngagementRequest 对应 GET /v1/engagements/{kind}/{target_id}?actor_id=。
type GetEngagementRequest struct {
	Kind     string `json:"kind"`
	TargetID string `json:"target_id"`
	ActorID  string `json:"actor_id"`
}

// BatchGetEngagementsRequest 对应 POST /v1/engagements/{kind}:batchGet。
type BatchGetEngagementsRequest struct {
	Kind      string   `json:"kind"`
	ActorID   string   `json:"actor_id"`
	TargetIDs []string `json:"target_ids"`
}

// ClearEngagementsRequest 对应 DELETE /v1/actors/{actor_id}/engagements。
type ClearEngagementsRequest struct {
	ActorID string `json:"actor_id"`
}
