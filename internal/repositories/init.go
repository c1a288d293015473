package repositories

import (
	"context"
	"fmt"

	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/database"
	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/messaging"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet 暴露存储后端及其对 services 层的各个接口视图。
var ProviderSet = wire.NewSet(
	ProvideBackend,
	ProvideEngagementStore,
	ProvideViewStore,
	ProvideChangeFeed,
	ProvideDirectoryStore,
	ProvideNotifier,
	ProvideNotificationRepo,
	wire.Bind(new(ChangePublisher), new(*messaging.EventPublisher)),
)

// Backend 是按 data.driver 选定的存储实现。
type Backend struct {
	Driver        string
	Engagement    services.EngagementStore
	Views         services.ViewStore
	Feed          services.ChangeFeed
	Directory     services.DirectoryStore
	Notifier      services.Notifier
	Notifications services.NotificationRepo

	ping func(ctx context.Context) error
}

// Ping 检查后端可用性，供 readiness 探针使用。
func (b *Backend) Ping(ctx context.Context) error {
	if b == nil || b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// ProvideBackend 根据配置构造 Postgres 或内存存储。
func ProvideBackend(ctx context.Context, bc *configloader.Bootstrap, publisher ChangePublisher, logger log.Logger) (*Backend, func(), error) {
	storeCfg := StoreConfig{SessionDebounce: bc.ViewTracking.SessionDebounce.Std()}

	switch bc.Data.Driver {
	case configloader.DriverMemory:
		log.NewHelper(logger).Warn("data.driver=memory, engagement state is not persisted")
		store := NewMemoryStore(publisher, storeCfg, logger)
		return &Backend{
			Driver:        configloader.DriverMemory,
			Engagement:    store,
			Views:         store,
			Feed:          store,
			Directory:     store,
			Notifier:      store,
			Notifications: store,
			ping:          store.Ping,
		}, func() {}, nil
	case configloader.DriverPostgres, "":
		pool, cleanup, err := database.NewPgxPool(ctx, &bc.Data, logger)
		if err != nil {
			return nil, nil, err
		}
		store := NewPostgresStore(pool, publisher, storeCfg, logger)
		notifications := NewNotificationRepository(pool, logger)
		return &Backend{
			Driver:        configloader.DriverPostgres,
			Engagement:    store,
			Views:         store,
			Feed:          store,
			Directory:     store,
			Notifier:      notifications,
			Notifications: notifications,
			ping:          store.Ping,
		}, cleanup, nil
	default:
		return nil, nil, fmt.Errorf("repositories: unsupported data driver %q", bc.Data.Driver)
	}
}

// ProvideEngagementStore 暴露互动存储视图。
func ProvideEngagementStore(b *Backend) services.EngagementStore { return b.Engagement }

// ProvideViewStore 暴露观看会话存储视图。
func ProvideViewStore(b *Backend) services.ViewStore { return b.Views }

// ProvideChangeFeed 暴露变更监听入口。
func ProvideChangeFeed(b *Backend) services.ChangeFeed { return b.Feed }

// ProvideDirectoryStore 暴露实体登记视图。
func ProvideDirectoryStore(b *Backend) services.DirectoryStore { return b.Directory }

// ProvideNotifier 暴露通知写入端。
func ProvideNotifier(b *Backend) services.Notifier { return b.Notifier }

// ProvideNotificationRepo 暴露通知查询端。
func ProvideNotificationRepo(b *Backend) services.NotificationRepo { return b.Notifications }
