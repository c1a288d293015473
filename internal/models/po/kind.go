// Package po 定义面向持久化的数据对象（Persistent Objects），由 Repository 层使用。
// PO 对象映射数据库表结构，不直接暴露给上层业务逻辑。
package po

import (
	"fmt"
	"strings"
)

// Kind 表示二元互动的种类（点赞/收藏/关注）。
type Kind string

// 互动种类常量定义
const (
	KindLike   Kind = "like"   // 用户 → 视频
	KindSave   Kind = "save"   // 用户 → 视频
	KindFollow Kind = "follow" // 用户 → 用户
)

// TargetType 表示互动目标实体的类型。
type TargetType string

// 目标实体类型常量定义
const (
	TargetVideo TargetType = "video"
	TargetUser  TargetType = "user"
)

// 聚合计数字段名称，对应 engagement.entity_counters.field。
const (
	CounterLikes     = "likes"
	CounterSaves     = "saves"
	CounterFollowers = "followers"
	CounterFollowing = "following"
	CounterViews     = "views"
)

// KindSpec 描述某个互动种类的差异化参数。
type KindSpec struct {
	Kind          Kind
	Target        TargetType
	TargetCounter string // 目标实体上的计数字段，空表示无计数
	ActorCounter  string // 发起者实体上的计数字段，空表示无计数
	AllowSelf     bool   // 是否允许 actor == target
	Notifies      bool   // 确认创建后是否通知目标
}

var kindSpecs = map[Kind]KindSpec{
	KindLike: {
		Kind:          KindLike,
		Target:        TargetVideo,
		TargetCounter: CounterLikes,
		AllowSelf:     true,
	},
	KindSave: {
		Kind:          KindSave,
		Target:        TargetVideo,
		TargetCounter: CounterSaves,
		AllowSelf:     true,
	},
	KindFollow: {
		Kind:          KindFollow,
		Target:        TargetUser,
		TargetCounter: CounterFollowers,
		ActorCounter:  CounterFollowing,
		Notifies:      true,
	},
}

// Spec 返回种类对应的参数，未知种类返回 false。
func (k Kind) Spec() (KindSpec, bool) {
	spec, ok := kindSpecs[k]
	return spec, ok
}

// Valid 报告是否为已知种类。
func (k Kind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

// ParseKind 解析外部输入的种类字符串（大小写不敏感）。
func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if !kind.Valid() {
		return "", fmt.Errorf("unsupported engagement kind: %q", raw)
	}
	return kind, nil
}

// Kinds 返回全部已知种类，顺序固定。
func Kinds() []Kind {
	return []Kind{KindLike, KindSave, KindFollow}
}

// CounterRefs 返回一次开关变化需要调整的计数字段：目标计数在前，发起者计数在后。
func (s KindSpec) CounterRefs(key FlagKey) []CounterRef {
	var refs []CounterRef
	if s.TargetCounter != "" {
		refs = append(refs, CounterRef{EntityID: key.TargetID, Field: s.TargetCounter})
	}
	if s.ActorCounter != "" {
		refs = append(refs, CounterRef{EntityID: key.ActorID, Field: s.ActorCounter})
	}
	return refs
}
