package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"

	"github.com/go-kratos/kratos/v2/log"
)

// 事件类型，写入消息属性 event_type。
const (
	EventTypeFlagChanged = "engagement.flag.changed"
	AttrEventType        = "event_type"
	AttrSchemaVersion    = "schema_version"
)

// EventPublisher 将领域事件编码为 JSON 并投递到对应 topic；未配置的 topic 静默跳过。
type EventPublisher struct {
	changes Publisher
	views   Publisher
	log     *log.Helper
}

// NewEventPublisher 构造事件发布器；views 为 nil 时观看事件投递到 changes topic。
func NewEventPublisher(changes, views Publisher, logger log.Logger) *EventPublisher {
	if views == nil {
		views = changes
	}
	return &EventPublisher{changes: changes, views: views, log: log.NewHelper(logger)}
}

// PublishChange 投递互动变更快照；同一关系使用相同的 ordering key。
func (p *EventPublisher) PublishChange(ctx context.Context, evt po.ChangeEvent) error {
	if p == nil || p.changes == nil {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("messaging: encode change event: %w", err)
	}
	key := po.FlagKey{Kind: evt.Kind, ActorID: evt.ActorID, TargetID: evt.TargetID}
	id, err := p.changes.Publish(ctx, Message{
		Data: data,
		Attributes: map[string]string{
			AttrEventType:     EventTypeFlagChanged,
			AttrSchemaVersion: evt.Version,
		},
		OrderingKey: key.String(),
	})
	if err != nil {
		return err
	}
	p.log.WithContext(ctx).Debugf("change event published: key=%s message_id=%s", key, id)
	return nil
}

// PublishViewEvent 投递观看事件。
func (p *EventPublisher) PublishViewEvent(ctx context.Context, evt po.ViewEvent) error {
	if p == nil || p.views == nil {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("messaging: encode view event: %w", err)
	}
	_, err = p.views.Publish(ctx, Message{
		Data: data,
		Attributes: map[string]string{
			AttrEventType:     evt.Type,
			AttrSchemaVersion: evt.Version,
		},
		OrderingKey: evt.VideoID,
	})
	return err
}
