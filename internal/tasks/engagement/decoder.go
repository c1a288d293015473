// Package engagement 消费互动变更事件（进程内 feed 与 Pub/Sub），保持 EngagementCache 与存储一致。
package engagement

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
)

// eventDecoder 将 Pub/Sub 载荷解码为 ChangeEvent。
type eventDecoder struct {
	now func() time.Time
}

func newEventDecoder() *eventDecoder {
	return &eventDecoder{now: time.Now}
}

// Decode 解析 JSON 载荷并补齐缺省字段。
func (d *eventDecoder) Decode(data []byte) (*po.ChangeEvent, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("engagement: empty payload")
	}
	var evt po.ChangeEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("engagement: decode payload: %w", err)
	}
	kind, err := po.ParseKind(string(evt.Kind))
	if err != nil {
		return nil, fmt.Errorf("engagement: %w", err)
	}
	evt.Kind = kind
	d.normalize(&evt)
	if evt.ActorID == "" || evt.TargetID == "" {
		return nil, fmt.Errorf("engagement: actor_id and target_id are required")
	}
	return &evt, nil
}

// normalize 补足缺省值并确保 OccurredAt/Version 合法。
func (d *eventDecoder) normalize(evt *po.ChangeEvent) {
	evt.ActorID = strings.TrimSpace(evt.ActorID)
	evt.TargetID = strings.TrimSpace(evt.TargetID)
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = d.now().UTC()
	} else {
		evt.OccurredAt = evt.OccurredAt.UTC()
	}
	if strings.TrimSpace(evt.Version) == "" {
		evt.Version = po.ChangeEventVersion
	}
	counters := evt.Counters[:0]
	for _, cv := range evt.Counters {
		cv.EntityID = strings.TrimSpace(cv.EntityID)
		cv.Field = strings.TrimSpace(cv.Field)
		if cv.EntityID == "" || cv.Field == "" {
			continue
		}
		counters = append(counters, cv)
	}
	evt.Counters = counters
}
