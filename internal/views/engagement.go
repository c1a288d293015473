// Package views 负责将内部 VO 对象转换为 HTTP 响应体。
// 该层作为传输层的序列化适配器，隔离业务逻辑与协议细节。
package views

import (
	"github.com/bionicotaku/lingo-services-engagement/internal/models/vo"
)

// ToggleResponse 是 Toggle/Set 的响应体。
type ToggleResponse struct {
	Kind     string `json:"kind"`
	ActorID  string `json:"actor_id"`
	TargetID string `json:"target_id"`
	Value    bool   `json:"value"`
	Previous bool   `json:"previous"`
	Count    int64  `json:"count"`
	HasCount bool   `json:"has_count"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// NewToggleResponse 将 ToggleView 转换为响应体；未加载的计数以 has_count=false 表示。
func NewToggleResponse(view *vo.ToggleView) *ToggleResponse {
	if view == nil {
		return &ToggleResponse{}
	}
	resp := &ToggleResponse{
		Kind:     string(view.Kind),
		ActorID:  view.ActorID,
		TargetID: view.TargetID,
		Value:    view.Value,
		Previous: view.Previous,
		Accepted: view.Accepted,
		Reason:   view.Reason,
	}
	if view.Count != nil {
		resp.Count = *view.Count
		resp.HasCount = true
	}
	return resp
}

// EngagementResponse 是单个互动状态的响应体。
type EngagementResponse struct {
	*vo.EngagementState
}

// NewEngagementResponse 包装互动状态。
func NewEngagementResponse(state *vo.EngagementState) *EngagementResponse {
	if state == nil {
		state = &vo.EngagementState{}
	}
	return &EngagementResponse{EngagementState: state}
}

// BatchGetResponse 是批量读取的响应体，顺序与请求去重后的 target_ids 一致。
type BatchGetResponse struct {
	Items []*vo.EngagementState `json:"items"`
}

// NewBatchGetResponse 构造批量读取响应。
func NewBatchGetResponse(items []*vo.EngagementState) *BatchGetResponse {
	if items == nil {
		items = []*vo.EngagementState{}
	}
	return &BatchGetResponse{Items: items}
}

// ClearResponse 是登出清理的响应体。
type ClearResponse struct {
	ActorID string `json:"actor_id"`
	Cleared bool   `json:"cleared"`
}

// NewClearResponse 构造清理响应。
func NewClearResponse(actorID string) *ClearResponse {
	return &ClearResponse{ActorID: actorID, Cleared: true}
}
