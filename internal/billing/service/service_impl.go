package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hostfolio/hostfolio/internal/billing/domain"
	"github.com/hostfolio/hostfolio/internal/billing/retry"
	"github.com/hostfolio/hostfolio/internal/clock"
	obsmetrics "github.com/hostfolio/hostfolio/internal/observability/metrics"
	orgdomain "github.com/hostfolio/hostfolio/internal/organization/domain"
	providerbilling "github.com/hostfolio/hostfolio/internal/providers/billing"
	"github.com/hostfolio/hostfolio/internal/providers/email"
	subdomain "github.com/hostfolio/hostfolio/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// inFlightWindow bounds how long an unstarted claim is treated as held by a
// concurrent delivery. Provider redelivery schedules run in minutes, so a
// fresh claim older than this belongs to a worker that died mid-dispatch and
// the redelivery may take over.
const inFlightWindow = time.Minute

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	OrgSvc     orgdomain.Service
	SubSvc     subdomain.Service
	Provider   providerbilling.Client
	Email      email.Provider
	Policy     retry.Policy
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service is the reconciliation engine. It claims each event exactly once,
// dispatches to the handler for its canonical type, and records retry
// bookkeeping when a handler fails.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	orgSvc     orgdomain.Service
	subSvc     subdomain.Service
	provider   providerbilling.Client
	email      email.Provider
	policy     retry.Policy
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		orgSvc:     p.OrgSvc,
		subSvc:     p.SubSvc,
		provider:   p.Provider,
		email:      p.Email,
		policy:     p.Policy,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) ProcessEvent(ctx context.Context, event *domain.BillingEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	now := s.clock.Now()
	received := domain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		if stored == nil {
			return domain.ErrInvalidEvent
		}
		if stored.Processed {
			s.recordOutcome(ctx, event, "duplicate")
			return domain.ErrEventAlreadyProcessed
		}
		// A row with no attempt on record is a claim another delivery is
		// still working; running the handler here would double its side
		// effects. Skip and ack, the claim holder finishes or the provider
		// redelivers.
		if stored.RetryCount == 0 && stored.LastAttemptAt == nil && now.Sub(stored.ReceivedAt) < inFlightWindow {
			s.log.Info("billing event claim already in flight",
				zap.String("provider", event.Provider),
				zap.String("provider_event_id", event.ProviderEventID),
			)
			s.recordOutcome(ctx, event, "in_flight")
			return domain.ErrEventAlreadyProcessed
		}
	}

	if err := s.dispatch(ctx, event); err != nil {
		if errors.Is(err, domain.ErrInvalidEvent) {
			return s.recordInvalid(ctx, event, err)
		}
		return s.recordFailure(ctx, stored, event, err)
	}

	if err := s.repo.MarkProcessed(ctx, s.db, event.Provider, event.ProviderEventID, s.clock.Now()); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	s.recordOutcome(ctx, event, "processed")
	return nil
}

func validateEvent(event *domain.BillingEvent) error {
	if event == nil {
		return domain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return domain.ErrUnknownProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return domain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	if event.Type == "" {
		return domain.ErrInvalidEvent
	}
	if len(event.RawPayload) > 0 && !json.Valid(event.RawPayload) {
		return domain.ErrInvalidPayload
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, event *domain.BillingEvent) error {
	switch event.Type {
	case domain.EventTypeSubscriptionUpserted:
		return s.handleSubscriptionUpserted(ctx, event)
	case domain.EventTypeSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	case domain.EventTypePaymentFailed:
		return s.handlePaymentFailed(ctx, event)
	case domain.EventTypePaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, event)
	case domain.EventTypeCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	default:
		// Adapters only emit the canonical set; anything else is
		// acknowledged without side effects so the provider stops
		// redelivering.
		s.log.Warn("unhandled billing event type",
			zap.String("provider", event.Provider),
			zap.String("event_type", event.Type),
		)
		return nil
	}
}

// handleSubscriptionUpserted reconciles the stored subscription against the
// provider-reported state and moves tenant publication accordingly. The
// upsert reports the status the row holds after the write, so a cancelled
// subscription never reactivates a tenant off a stale delivery.
func (s *Service) handleSubscriptionUpserted(ctx context.Context, event *domain.BillingEvent) error {
	if event.ProviderSubscriptionID == "" {
		return domain.ErrInvalidEvent
	}
	org, err := s.resolveOrg(ctx, event)
	if err != nil {
		return err
	}

	stored, err := s.subSvc.Upsert(ctx, subdomain.UpsertRequest{
		OrgID:                  org.ID,
		ProviderSubscriptionID: event.ProviderSubscriptionID,
		ProviderCustomerID:     event.ProviderCustomerID,
		Status:                 subdomain.MapUpstreamStatus(event.Status),
		CurrentPeriodStart:     event.CurrentPeriodStart,
		CurrentPeriodEnd:       event.CurrentPeriodEnd,
	})
	if err != nil {
		return err
	}

	return s.reconcilePublication(ctx, org.ID, stored)
}

// handleSubscriptionDeleted writes the cancelled status even when the
// subscription row does not exist yet, so a deletion that outran its create
// still wins, then pauses the tenant unconditionally.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *domain.BillingEvent) error {
	if event.ProviderSubscriptionID == "" {
		return domain.ErrInvalidEvent
	}
	org, err := s.resolveOrg(ctx, event)
	if err != nil {
		return err
	}

	if _, err := s.subSvc.Upsert(ctx, subdomain.UpsertRequest{
		OrgID:                  org.ID,
		ProviderSubscriptionID: event.ProviderSubscriptionID,
		ProviderCustomerID:     event.ProviderCustomerID,
		Status:                 subdomain.StatusCancelled,
	}); err != nil {
		return err
	}
	if err := s.subSvc.Cancel(ctx, event.ProviderSubscriptionID, event.OccurredAt); err != nil {
		return err
	}

	return s.orgSvc.ForcePause(ctx, org.ID)
}

// handlePaymentFailed pauses a published tenant and notifies the contact
// address. Subscription status is left to the provider's follow-up
// subscription update.
func (s *Service) handlePaymentFailed(ctx context.Context, event *domain.BillingEvent) error {
	org, err := s.resolveOrg(ctx, event)
	if err != nil {
		// A payment failure for a customer with no tenant is a data-quality
		// problem, not a processing error. Retrying will not create the tenant.
		if errors.Is(err, domain.ErrMissingCorrelation) || errors.Is(err, orgdomain.ErrAmbiguousCustomer) {
			s.log.Warn("payment failure without a resolvable tenant",
				zap.String("provider_customer_id", event.ProviderCustomerID),
				zap.Error(err),
			)
			return nil
		}
		return err
	}

	if _, err := s.orgSvc.Pause(ctx, org.ID); err != nil {
		return err
	}

	s.notifyPaymentFailed(ctx, org)
	return nil
}

// handlePaymentSucceeded republishes the tenant when its subscription is
// healthy again. A paused or cancelled subscription keeps the tenant down
// until the provider reports it active.
func (s *Service) handlePaymentSucceeded(ctx context.Context, event *domain.BillingEvent) error {
	sub, err := s.resolveSubscription(ctx, event)
	if err != nil {
		return err
	}
	if event.CurrentPeriodStart != nil || event.CurrentPeriodEnd != nil {
		if err := s.subSvc.RefreshPeriod(ctx, sub.ProviderSubscriptionID, event.CurrentPeriodStart, event.CurrentPeriodEnd); err != nil {
			return err
		}
	}
	if sub.Status != subdomain.StatusActive {
		s.log.Info("payment succeeded for inactive subscription",
			zap.String("provider_subscription_id", sub.ProviderSubscriptionID),
			zap.String("status", string(sub.Status)),
		)
		return nil
	}
	_, err = s.orgSvc.Publish(ctx, sub.OrgID)
	return err
}

// handleCheckoutCompleted trusts the checkout payload only for correlation
// and the setup fee; the subscription state is fetched from the provider API
// because the session object snapshots it at checkout time.
func (s *Service) handleCheckoutCompleted(ctx context.Context, event *domain.BillingEvent) error {
	if event.ProviderSubscriptionID == "" {
		return domain.ErrInvalidEvent
	}

	authoritative, err := s.provider.GetSubscription(ctx, event.ProviderSubscriptionID)
	if err != nil {
		return err
	}

	if event.OrgID == 0 {
		if raw := strings.TrimSpace(authoritative.Metadata["org_id"]); raw != "" {
			if orgID, parseErr := snowflake.ParseString(raw); parseErr == nil {
				event.OrgID = orgID
			}
		}
	}
	if event.ProviderCustomerID == "" {
		event.ProviderCustomerID = strings.TrimSpace(authoritative.CustomerID)
	}
	org, err := s.resolveOrg(ctx, event)
	if err != nil {
		return err
	}

	req := subdomain.UpsertRequest{
		OrgID:                  org.ID,
		ProviderSubscriptionID: event.ProviderSubscriptionID,
		ProviderCustomerID:     event.ProviderCustomerID,
		Status:                 subdomain.MapUpstreamStatus(authoritative.Status),
		CurrentPeriodStart:     authoritative.CurrentPeriodStart,
		CurrentPeriodEnd:       authoritative.CurrentPeriodEnd,
		SetupFeeAmount:         event.SetupFeeAmount,
	}
	if event.SetupFeeAmount != nil {
		paidAt := event.OccurredAt
		req.SetupFeePaidAt = &paidAt
	}

	stored, err := s.subSvc.Upsert(ctx, req)
	if err != nil {
		return err
	}
	return s.reconcilePublication(ctx, org.ID, stored)
}

// resolveOrg correlates the event to a tenant: the explicit org id from
// provider metadata wins, then the billing customer mapping.
func (s *Service) resolveOrg(ctx context.Context, event *domain.BillingEvent) (*orgdomain.Organization, error) {
	if event.OrgID != 0 {
		org, err := s.orgSvc.GetByID(ctx, event.OrgID)
		if err == nil {
			return org, nil
		}
		if !errors.Is(err, orgdomain.ErrOrganizationNotFound) {
			return nil, err
		}
	}

	if event.ProviderCustomerID != "" {
		org, err := s.orgSvc.ResolveByBillingCustomerID(ctx, event.ProviderCustomerID)
		if err == nil {
			return org, nil
		}
		if !errors.Is(err, orgdomain.ErrOrganizationNotFound) {
			return nil, err
		}
	}

	if event.ProviderSubscriptionID != "" {
		sub, err := s.subSvc.GetByProviderSubscriptionID(ctx, event.ProviderSubscriptionID)
		if err != nil && !errors.Is(err, subdomain.ErrSubscriptionNotFound) {
			return nil, err
		}
		if sub != nil {
			return s.orgSvc.GetByID(ctx, sub.OrgID)
		}
	}

	return nil, domain.ErrMissingCorrelation
}

func (s *Service) resolveSubscription(ctx context.Context, event *domain.BillingEvent) (*subdomain.Subscription, error) {
	if event.ProviderSubscriptionID != "" {
		sub, err := s.subSvc.GetByProviderSubscriptionID(ctx, event.ProviderSubscriptionID)
		if err != nil && !errors.Is(err, subdomain.ErrSubscriptionNotFound) {
			return nil, err
		}
		if sub != nil {
			return sub, nil
		}
	}
	if event.ProviderCustomerID != "" {
		sub, err := s.subSvc.GetByProviderCustomerID(ctx, event.ProviderCustomerID)
		if err != nil && !errors.Is(err, subdomain.ErrSubscriptionNotFound) {
			return nil, err
		}
		if sub != nil {
			return sub, nil
		}
	}
	return nil, domain.ErrMissingCorrelation
}

// reconcilePublication maps the post-write subscription status onto the
// guarded tenant transitions. Pending leaves the tenant where it is.
func (s *Service) reconcilePublication(ctx context.Context, orgID snowflake.ID, status subdomain.Status) error {
	switch status {
	case subdomain.StatusActive:
		_, err := s.orgSvc.Publish(ctx, orgID)
		return err
	case subdomain.StatusPaused, subdomain.StatusCancelled:
		_, err := s.orgSvc.Pause(ctx, orgID)
		return err
	default:
		return nil
	}
}

// recordInvalid closes an event whose payload can never become processable.
// Redelivering the same body reproduces the same failure, so the record is
// marked terminal with the error preserved and the caller gets the invalid
// classification back instead of a retryable one.
func (s *Service) recordInvalid(ctx context.Context, event *domain.BillingEvent, handlerErr error) error {
	if err := s.repo.MarkTerminalFailure(ctx, s.db, event.Provider, event.ProviderEventID, handlerErr.Error(), s.clock.Now()); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	s.log.Warn("billing event rejected as invalid",
		zap.String("provider", event.Provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("event_type", event.Type),
		zap.Error(handlerErr),
	)
	s.recordOutcome(ctx, event, "invalid")
	return handlerErr
}

// recordFailure applies the backoff policy after a handler error. Below the
// ceiling the event stays open for redelivery and the handler error is
// returned; at the ceiling the event is closed for good.
func (s *Service) recordFailure(ctx context.Context, stored *domain.EventRecord, event *domain.BillingEvent, handlerErr error) error {
	now := s.clock.Now()
	attempts := stored.RetryCount + 1

	if s.policy.Exhausted(attempts) {
		if err := s.repo.MarkTerminalFailure(ctx, s.db, event.Provider, event.ProviderEventID, handlerErr.Error(), now); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		s.log.Error("billing event abandoned after retry ceiling",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("event_type", event.Type),
			zap.Int("attempts", attempts),
			zap.Error(handlerErr),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordTerminalFailure(ctx, event.Provider, event.Type)
		}
		s.recordOutcome(ctx, event, "abandoned")
		return domain.ErrRetriesExhausted
	}

	nextRetryAt := now.Add(s.policy.Delay(stored.RetryCount))
	if err := s.repo.MarkFailedAttempt(ctx, s.db, event.Provider, event.ProviderEventID, handlerErr.Error(), now, nextRetryAt); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	s.log.Warn("billing event handler failed",
		zap.String("provider", event.Provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("event_type", event.Type),
		zap.Int("attempts", attempts),
		zap.Time("next_retry_at", nextRetryAt),
		zap.Error(handlerErr),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhookRetry(ctx, event.Provider, event.Type)
	}
	return handlerErr
}

func (s *Service) notifyPaymentFailed(ctx context.Context, org *orgdomain.Organization) {
	to := strings.TrimSpace(org.ContactEmail)
	if to == "" {
		return
	}
	subject := "Payment failed for " + org.Name
	body := fmt.Sprintf(
		"<p>A recent payment for <strong>%s</strong> failed and the site has been taken offline.</p>"+
			"<p>Update the payment method to restore publication.</p>",
		org.Name,
	)
	outcome := "sent"
	if err := s.email.Send(ctx, []string{to}, subject, body); err != nil {
		outcome = "error"
		s.log.Warn("payment failure notification not delivered",
			zap.String("org_id", org.ID.String()),
			zap.Error(err),
		)
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordNotification(ctx, "payment_failed", outcome)
	}
}

func (s *Service) recordOutcome(ctx context.Context, event *domain.BillingEvent, outcome string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordWebhookEvent(ctx, event.Provider, event.Type, outcome)
}
