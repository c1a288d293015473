package engagement

import (
	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/messaging"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet 暴露变更消费 Runner。
var ProviderSet = wire.NewSet(ProvideRunner)

// ProvideRunner 装配 Runner；feed 与 subscriber 都缺失时返回错误。
func ProvideRunner(cache *services.EngagementCache, feed services.ChangeFeed, sub messaging.Subscriber, logger log.Logger) (*Runner, error) {
	return NewRunner(RunnerParams{
		Feed:       feed,
		Subscriber: sub,
		Cache:      cache,
		Logger:     logger,
	})
}
