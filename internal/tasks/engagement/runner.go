package engagement

import (
	"context"
	"errors"
	"sync"

	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/messaging"
	"github.com/bionicotaku/lingo-services-engagement/internal/models/po"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
)

// Runner 监听存储变更并写入 EngagementCache。
//
// 进程内 feed 覆盖本实例的写入；subscriber 非空时同时消费 Pub/Sub，以接收其他实例的写入。
type Runner struct {
	feed       services.ChangeFeed
	subscriber messaging.Subscriber
	handler    *EventHandler
	decoder    *eventDecoder
	metrics    *metrics
	logger     *log.Helper

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// RunnerParams 注入 Runner 所需依赖。
type RunnerParams struct {
	Feed       services.ChangeFeed
	Subscriber messaging.Subscriber
	Cache      *services.EngagementCache
	Logger     log.Logger
}

// NewRunner 构造 Runner；Feed 与 Subscriber 至少提供一个。
func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Cache == nil {
		return nil, errors.New("engagement: cache is required")
	}
	if params.Feed == nil && params.Subscriber == nil {
		return nil, errors.New("engagement: change feed or subscriber is required")
	}
	helper := log.NewHelper(params.Logger)
	m := newMetrics(helper)
	return &Runner{
		feed:       params.Feed,
		subscriber: params.Subscriber,
		handler:    NewEventHandler(params.Cache, params.Logger, m),
		decoder:    newEventDecoder(),
		metrics:    m,
		logger:     helper,
	}, nil
}

// Run 启动消费，阻塞直到 ctx 取消或订阅端返回错误。
func (r *Runner) Run(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if r.feed != nil {
		unsubscribe := r.feed.Subscribe(func(evt po.ChangeEvent) {
			r.handler.Handle(ctx, evt)
		})
		defer unsubscribe()
	}
	if r.subscriber == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.subscriber.Receive(ctx, r.processMessage)
}

// Start 实现 transport.Server，由 kratos.App 在独立 goroutine 中调用。
func (r *Runner) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		cancel()
		return nil
	}
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()
	defer close(done)

	r.logger.Info("engagement change runner started")
	err := r.Run(runCtx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop 实现 transport.Server。
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		r.logger.Info("engagement change runner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) processMessage(ctx context.Context, msg *messaging.Message) error {
	if msg == nil {
		return nil
	}
	if eventType := msg.Attributes[messaging.AttrEventType]; eventType != "" && eventType != messaging.EventTypeFlagChanged {
		return nil
	}
	evt, err := r.decoder.Decode(msg.Data)
	if err != nil {
		// 无法解码的消息重投也不会成功，直接 Ack 丢弃。
		r.metrics.recordFailure(ctx)
		r.logger.WithContext(ctx).Warnw("msg", "decode change event failed", "message_id", msg.ID, "error", err)
		return nil
	}
	r.handler.Handle(ctx, *evt)
	return nil
}

var _ transport.Server = (*Runner)(nil)
