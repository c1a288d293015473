package controllers

import (
	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/configloader"

	"github.com/google/wire"
)

// ProviderSet exposes controller/handler constructors for DI.
var ProviderSet = wire.NewSet(
	ProvideHandlerTimeouts,
	NewBaseHandler,
	NewEngagementHandler,
	NewViewHandler,
	NewNotificationHandler,
	NewDirectoryHandler,
	ProvideRegistrars,
)

// ProvideHandlerTimeouts 以 server.http.timeout 作为 Handler 的默认超时。
func ProvideHandlerTimeouts(c *configloader.Server) HandlerTimeouts {
	if c == nil {
		return HandlerTimeouts{}
	}
	return HandlerTimeouts{Default: c.HTTP.Timeout.Std()}
}

// ProvideRegistrars 汇总全部需要挂载到 HTTP Server 的 Handler。
func ProvideRegistrars(e *EngagementHandler, v *ViewHandler, n *NotificationHandler, d *DirectoryHandler) []Registrar {
	return []Registrar{e, v, n, d}
}
