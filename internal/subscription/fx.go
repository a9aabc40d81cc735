package subscription

import (
	"github.com/hostfolio/hostfolio/internal/subscription/repository"
	"github.com/hostfolio/hostfolio/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
