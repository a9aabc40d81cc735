package organization

import (
	"github.com/hostfolio/hostfolio/internal/organization/repository"
	"github.com/hostfolio/hostfolio/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
