package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hostfolio/hostfolio/internal/clock"
	"github.com/hostfolio/hostfolio/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) GetByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*domain.Subscription, error) {
	providerSubscriptionID = strings.TrimSpace(providerSubscriptionID)
	if providerSubscriptionID == "" {
		return nil, domain.ErrInvalidSubscription
	}
	return s.repo.FindByProviderSubscriptionID(ctx, s.db, providerSubscriptionID)
}

func (s *Service) GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*domain.Subscription, error) {
	providerCustomerID = strings.TrimSpace(providerCustomerID)
	if providerCustomerID == "" {
		return nil, domain.ErrInvalidSubscription
	}
	return s.repo.FindByProviderCustomerID(ctx, s.db, providerCustomerID)
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (domain.Status, error) {
	req.ProviderSubscriptionID = strings.TrimSpace(req.ProviderSubscriptionID)
	if req.OrgID == 0 || req.ProviderSubscriptionID == "" {
		return "", domain.ErrInvalidSubscription
	}

	now := s.clock.Now()
	sub := &domain.Subscription{
		ID:                     s.genID.Generate(),
		OrgID:                  req.OrgID,
		ProviderSubscriptionID: req.ProviderSubscriptionID,
		ProviderCustomerID:     strings.TrimSpace(req.ProviderCustomerID),
		Status:                 req.Status,
		CurrentPeriodStart:     req.CurrentPeriodStart,
		CurrentPeriodEnd:       req.CurrentPeriodEnd,
		SetupFeeAmount:         req.SetupFeeAmount,
		SetupFeePaidAt:         req.SetupFeePaidAt,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	stored, err := s.repo.Upsert(ctx, s.db, sub)
	if err != nil {
		return "", err
	}
	if stored != req.Status {
		s.log.Info("subscription status preserved over stale update",
			zap.String("provider_subscription_id", req.ProviderSubscriptionID),
			zap.String("stored_status", string(stored)),
			zap.String("requested_status", string(req.Status)),
		)
	}
	return stored, nil
}

func (s *Service) Cancel(ctx context.Context, providerSubscriptionID string, canceledAt time.Time) error {
	providerSubscriptionID = strings.TrimSpace(providerSubscriptionID)
	if providerSubscriptionID == "" {
		return domain.ErrInvalidSubscription
	}
	return s.repo.MarkCancelled(ctx, s.db, providerSubscriptionID, canceledAt.UTC())
}

func (s *Service) RefreshPeriod(ctx context.Context, providerSubscriptionID string, start, end *time.Time) error {
	providerSubscriptionID = strings.TrimSpace(providerSubscriptionID)
	if providerSubscriptionID == "" {
		return domain.ErrInvalidSubscription
	}
	return s.repo.UpdatePeriod(ctx, s.db, providerSubscriptionID, start, end)
}
