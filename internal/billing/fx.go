package billing

import (
	"github.com/hostfolio/hostfolio/internal/billing/adapters"
	"github.com/hostfolio/hostfolio/internal/billing/adapters/stripe"
	"github.com/hostfolio/hostfolio/internal/billing/domain"
	"github.com/hostfolio/hostfolio/internal/billing/repository"
	"github.com/hostfolio/hostfolio/internal/billing/retry"
	billingservice "github.com/hostfolio/hostfolio/internal/billing/service"
	"github.com/hostfolio/hostfolio/internal/billing/webhook"
	"github.com/hostfolio/hostfolio/internal/clock"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(retry.NewPolicy),
	fx.Provide(func(clk clock.Clock) *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(clk),
		)
	}),
	fx.Provide(billingservice.NewService),
	fx.Provide(func(s *billingservice.Service) domain.Service { return s }),
	fx.Provide(webhook.NewService),
)
