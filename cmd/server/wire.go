//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"context"

	"github.com/bionicotaku/lingo-services-engagement/internal/controllers"
	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/logger"
	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/messaging"
	"github.com/bionicotaku/lingo-services-engagement/internal/infrastructure/observability"
	"github.com/bionicotaku/lingo-services-engagement/internal/repositories"
	"github.com/bionicotaku/lingo-services-engagement/internal/server"
	"github.com/bionicotaku/lingo-services-engagement/internal/services"
	"github.com/bionicotaku/lingo-services-engagement/internal/tasks/engagement"

	"github.com/go-kratos/kratos/v2"
	"github.com/google/wire"
)

//go:generate go run github.com/google/wire/cmd/wire

// wireApp init kratos application.
func wireApp(context.Context, configloader.Params) (*kratos.App, func(), error) {
	panic(wire.Build(
		configloader.ProviderSet,
		logger.ProviderSet,
		observability.ProviderSet,
		messaging.ProviderSet,
		repositories.ProviderSet,
		services.ProviderSet,
		engagement.ProviderSet,
		controllers.ProviderSet,
		server.ProviderSet,
		wire.Bind(new(services.ViewEventPublisher), new(*messaging.EventPublisher)),
		wire.Bind(new(server.ReadinessProbe), new(*repositories.Backend)),
		newApp,
	))
}
