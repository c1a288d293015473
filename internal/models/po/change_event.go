package po

import "time"

// ChangeEventVersion 是变更事件协议版本。
const ChangeEventVersion = "v1"

// CounterValue 是某个计数字段的权威值。
type CounterValue struct {
	EntityID string `json:"entity_id"`
	Field    string `json:"field"`
	Value    int64  `json:"value"`
}

// Ref 返回计数字段引用。
func (c CounterValue) Ref() CounterRef {
	return CounterRef{EntityID: c.EntityID, Field: c.Field}
}

// ChangeEvent 是存储层在互动状态变化后发出的快照，供缓存监听器应用。
type ChangeEvent struct {
	Kind       Kind           `json:"kind"`
	ActorID    string         `json:"actor_id"`
	TargetID   string         `json:"target_id"`
	Value      bool           `json:"value"`
	Counters   []CounterValue `json:"counters,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Version    string         `json:"version"`
}

// NewChangeEvent 从 FlagOutcome 构造变更事件。
func NewChangeEvent(outcome *FlagOutcome) ChangeEvent {
	evt := ChangeEvent{
		Kind:       outcome.Key.Kind,
		ActorID:    outcome.Key.ActorID,
		TargetID:   outcome.Key.TargetID,
		Value:      outcome.On,
		OccurredAt: outcome.At.UTC(),
		Version:    ChangeEventVersion,
	}
	for ref, value := range outcome.Counters {
		evt.Counters = append(evt.Counters, CounterValue{EntityID: ref.EntityID, Field: ref.Field, Value: value})
	}
	return evt
}
