// Package messaging 封装 Google Cloud Pub/Sub 客户端，提供发布与订阅的最小接口。
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-kratos/kratos/v2/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrDisabled 表示 Pub/Sub 未启用。
var ErrDisabled = errors.New("messaging: pubsub disabled")

// Config 描述一个 topic/subscription 组合。
type Config struct {
	ProjectID              string
	TopicID                string
	SubscriptionID         string
	EmulatorEndpoint       string
	PublishTimeout         time.Duration
	OrderingKeyEnabled     bool
	NumGoroutines          int
	MaxOutstandingMessages int
}

// Message 是与 SDK 解耦的消息表示。
type Message struct {
	ID          string
	Data        []byte
	Attributes  map[string]string
	OrderingKey string
	PublishTime time.Time
}

// Publisher 发布消息并返回服务端消息 ID。
type Publisher interface {
	Publish(ctx context.Context, msg Message) (string, error)
}

// Subscriber 以回调方式消费消息；回调返回 nil 时 Ack，否则 Nack。
type Subscriber interface {
	Receive(ctx context.Context, handler func(context.Context, *Message) error) error
}

// Component 持有 Pub/Sub 客户端与 topic 句柄。
type Component struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	subID  string
	cfg    Config
	log    *log.Helper
}

// NewComponent 创建客户端；配置 EmulatorEndpoint 时使用不带认证的明文连接。
func NewComponent(ctx context.Context, cfg Config, logger log.Logger) (*Component, func(), error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, func() {}, fmt.Errorf("messaging: project id is required")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	helper := log.NewHelper(logger)

	var opts []option.ClientOption
	if endpoint := strings.TrimSpace(cfg.EmulatorEndpoint); endpoint != "" {
		opts = append(opts,
			option.WithEndpoint(endpoint),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, func() {}, fmt.Errorf("messaging: create pubsub client: %w", err)
	}

	c := &Component{client: client, subID: cfg.SubscriptionID, cfg: cfg, log: helper}
	if cfg.TopicID != "" {
		c.topic = client.Topic(cfg.TopicID)
		c.topic.EnableMessageOrdering = cfg.OrderingKeyEnabled
	}
	helper.Infof("pubsub component ready: project=%s topic=%s subscription=%s emulator=%v",
		cfg.ProjectID, cfg.TopicID, cfg.SubscriptionID, cfg.EmulatorEndpoint != "")

	cleanup := func() {
		if c.topic != nil {
			c.topic.Stop()
		}
		if err := client.Close(); err != nil {
			helper.Warnw("msg", "close pubsub client failed", "error", err)
		}
	}
	return c, cleanup, nil
}

// Publish 实现 Publisher。
func (c *Component) Publish(ctx context.Context, msg Message) (string, error) {
	if c == nil || c.topic == nil {
		return "", ErrDisabled
	}
	pubCtx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
	defer cancel()

	m := &pubsub.Message{Data: msg.Data, Attributes: msg.Attributes}
	if c.cfg.OrderingKeyEnabled {
		m.OrderingKey = msg.OrderingKey
	}
	id, err := c.topic.Publish(pubCtx, m).Get(pubCtx)
	if err != nil {
		if c.cfg.OrderingKeyEnabled && msg.OrderingKey != "" {
			c.topic.ResumePublish(msg.OrderingKey)
		}
		return "", fmt.Errorf("messaging: publish: %w", err)
	}
	return id, nil
}

// Receive 实现 Subscriber，阻塞直到 ctx 取消。
func (c *Component) Receive(ctx context.Context, handler func(context.Context, *Message) error) error {
	if c == nil || c.subID == "" {
		return ErrDisabled
	}
	sub := c.client.Subscription(c.subID)
	if c.cfg.NumGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = c.cfg.NumGoroutines
	}
	if c.cfg.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstandingMessages
	}
	err := sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		msg := &Message{
			ID:          m.ID,
			Data:        m.Data,
			Attributes:  m.Attributes,
			OrderingKey: m.OrderingKey,
			PublishTime: m.PublishTime,
		}
		if err := handler(ctx, msg); err != nil {
			c.log.WithContext(ctx).Warnw("msg", "handle pubsub message failed", "message_id", m.ID, "error", err)
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("messaging: receive: %w", err)
	}
	return nil
}
