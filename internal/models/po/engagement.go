package po

import "time"

// FlagKey 唯一定位一条互动关系：(kind, actor_id, target_id)。
type FlagKey struct {
	Kind     Kind
	ActorID  string
	TargetID string
}

// String 返回确定性的文档键，形如 like/actor_target。
func (k FlagKey) String() string {
	return string(k.Kind) + "/" + k.ActorID + "_" + k.TargetID
}

// EngagementFlag 表示 engagement.flags 表的一行；行存在即为 true。
type EngagementFlag struct {
	Kind      Kind      `db:"kind"`
	ActorID   string    `db:"actor_id"`
	TargetID  string    `db:"target_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Key 返回记录对应的 FlagKey。
func (f EngagementFlag) Key() FlagKey {
	return FlagKey{Kind: f.Kind, ActorID: f.ActorID, TargetID: f.TargetID}
}

// CounterRef 定位实体上的一个聚合计数字段。
type CounterRef struct {
	EntityID string
	Field    string
}

// FlagMutation 描述一次需要持久化的开关写入。
type FlagMutation struct {
	Key FlagKey
	On  bool
}

// FlagOutcome 是一次 ApplyFlag 的结果。
type FlagOutcome struct {
	Key      FlagKey
	On       bool
	Changed  bool                 // false 表示幂等 no-op（已存在/已不存在）
	Counters map[CounterRef]int64 // 写入后的权威计数
	At       time.Time
}

// EntityCounters 汇总单个实体的全部计数字段。
type EntityCounters struct {
	EntityID string
	Values   map[string]int64
}
