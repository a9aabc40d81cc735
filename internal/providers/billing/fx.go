package billing

import (
	"github.com/hostfolio/hostfolio/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.billing",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Client {
	return NewHTTPClient(HTTPConfig{
		BaseURL: cfg.Billing.APIBaseURL,
		APIKey:  cfg.Billing.APIKey,
		Timeout: cfg.Billing.RequestTimeout,
	})
}
