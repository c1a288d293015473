package configloader

import (
	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/logger"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"

	"github.com/google/wire"
)

// ProviderSet exposes configuration-derived dependencies for Wire graphs.
var ProviderSet = wire.NewSet(
	Build,
	ProvideBootstrap,
	ProvideServiceMetadata,
	ProvideServerConfig,
	ProvideDataConfig,
	ProvidePubSubConfig,
	ProvideLoggerConfig,
	ProvideReconcilerConfig,
	ProvideViewTrackerConfig,
)

// ProvideBootstrap exposes the typed configuration tree.
func ProvideBootstrap(b *Bundle) *Bootstrap {
	if b == nil {
		return &Bootstrap{}
	}
	return b.Bootstrap
}

// ProvideServiceMetadata returns the resolved ServiceMetadata.
func ProvideServiceMetadata(b *Bundle) ServiceMetadata {
	if b == nil {
		return ServiceMetadata{}
	}
	return b.Service
}

// ProvideServerConfig returns the server section.
func ProvideServerConfig(bc *Bootstrap) *Server {
	return &bc.Server
}

// ProvideDataConfig returns the data section.
func ProvideDataConfig(bc *Bootstrap) *Data {
	return &bc.Data
}

// ProvidePubSubConfig returns the pubsub section.
func ProvidePubSubConfig(bc *Bootstrap) *PubSub {
	return &bc.Messaging.PubSub
}

// ProvideLoggerConfig derives logger settings from service metadata.
func ProvideLoggerConfig(meta ServiceMetadata, bc *Bootstrap) logger.Config {
	return logger.Config{
		Service: meta.Name,
		Version: meta.Version,
		HostID:  meta.InstanceID,
		Env:     meta.Environment,
		Level:   bc.Observability.LogLevel,
	}
}

// ProvideReconcilerConfig maps engagement settings to the reconciler.
func ProvideReconcilerConfig(bc *Bootstrap) services.ReconcilerConfig {
	eg := bc.Engagement
	return services.ReconcilerConfig{
		MaxAttempts:      eg.MaxAttempts,
		BaseBackoff:      eg.BaseBackoff.Std(),
		MaxBackoff:       eg.MaxBackoff.Std(),
		OperationTimeout: eg.OperationTimeout.Std(),
	}
}

// ProvideViewTrackerConfig maps view tracking settings to the tracker.
func ProvideViewTrackerConfig(bc *Bootstrap) services.ViewTrackerConfig {
	vt := bc.ViewTracking
	return services.ViewTrackerConfig{
		HeartbeatInterval: vt.HeartbeatInterval.Std(),
		Threshold:         vt.Threshold.Std(),
		RepeatGuard:       vt.RepeatGuard.Std(),
		OperationTimeout:  vt.OperationTimeout.Std(),
	}
}
