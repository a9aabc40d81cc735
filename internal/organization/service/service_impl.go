package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/hostfolio/hostfolio/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("organization.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	if id == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func (s *Service) ResolveByBillingCustomerID(ctx context.Context, customerID string) (*domain.Organization, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := s.repo.FindByBillingCustomerID(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func (s *Service) Publish(ctx context.Context, id snowflake.ID) (bool, error) {
	moved, err := s.repo.TransitionStatus(ctx, s.db, id,
		[]domain.PublicationStatus{domain.StatusDraft, domain.StatusPaused},
		domain.StatusPublished,
	)
	if err != nil {
		return false, err
	}
	if moved {
		s.log.Info("tenant published", zap.String("org_id", id.String()))
	}
	return moved, nil
}

func (s *Service) Pause(ctx context.Context, id snowflake.ID) (bool, error) {
	moved, err := s.repo.TransitionStatus(ctx, s.db, id,
		[]domain.PublicationStatus{domain.StatusPublished},
		domain.StatusPaused,
	)
	if err != nil {
		return false, err
	}
	if moved {
		s.log.Info("tenant paused", zap.String("org_id", id.String()))
	}
	return moved, nil
}

func (s *Service) ForcePause(ctx context.Context, id snowflake.ID) error {
	if err := s.repo.SetStatus(ctx, s.db, id, domain.StatusPaused); err != nil {
		return err
	}
	s.log.Info("tenant force-paused", zap.String("org_id", id.String()))
	return nil
}
