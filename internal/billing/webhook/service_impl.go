// Package webhook is the delivery edge: it authenticates raw provider
// deliveries and hands canonical events to the reconciliation engine.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/hostfolio/hostfolio/internal/billing/adapters"
	"github.com/hostfolio/hostfolio/internal/billing/domain"
	"github.com/hostfolio/hostfolio/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	BillingSvc domain.Service
	Adapters   *adapters.Registry
	Cfg        config.Config
}

type Service struct {
	log        *zap.Logger
	billingSvc domain.Service
	adapters   *adapters.Registry
	cfg        config.BillingConfig
}

func NewService(p Params) domain.Ingest {
	return &Service{
		log:        p.Log.Named("billing.webhook"),
		billingSvc: p.BillingSvc,
		adapters:   p.Adapters,
		cfg:        p.Cfg.Billing,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return domain.ErrUnknownProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return domain.ErrUnknownProvider
	}
	if !json.Valid(payload) {
		return domain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, domain.AdapterConfig{
		WebhookSecret:      s.cfg.WebhookSecret,
		SignatureTolerance: s.cfg.SignatureTolerance,
	})
	if err != nil {
		if errors.Is(err, domain.ErrMissingSecret) {
			s.log.Error("webhook secret not configured", zap.String("provider", provider))
		}
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("webhook signature rejected",
			zap.String("provider", provider),
			zap.String("reason", err.Error()),
		)
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, domain.ErrEventIgnored) {
			return nil
		}
		return err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	return s.billingSvc.ProcessEvent(ctx, event)
}
