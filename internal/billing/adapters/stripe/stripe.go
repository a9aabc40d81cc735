// Package stripe implements the Stripe webhook adapter: signed-payload
// verification and translation of subscription lifecycle, invoice, and
// checkout events into the canonical billing event set.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hostfolio/hostfolio/internal/billing/domain"
	"github.com/hostfolio/hostfolio/internal/clock"
)

const defaultSignatureTolerance = 5 * time.Minute

type Factory struct {
	clock clock.Clock
}

func NewFactory(clk clock.Clock) *Factory {
	return &Factory{clock: clk}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, domain.ErrMissingSecret
	}

	tolerance := cfg.SignatureTolerance
	if tolerance <= 0 {
		tolerance = defaultSignatureTolerance
	}

	return &Adapter{
		webhookSecret: secret,
		tolerance:     tolerance,
		clock:         f.clock,
	}, nil
}

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	clock         clock.Clock
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestampRaw, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedAt, err := strconv.ParseInt(timestampRaw, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestampRaw, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	matched := false
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return domain.ErrInvalidSignature
	}

	// Freshness is checked only after the signature matches, so a stale
	// delivery and a forged one are distinguishable in the logs.
	now := a.clock.Now()
	drift := now.Sub(time.Unix(signedAt, 0))
	if drift > a.tolerance || drift < -a.tolerance {
		return domain.ErrSignatureExpired
	}

	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.BillingEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "customer.subscription.created", "customer.subscription.updated":
		return a.parseSubscription(event, payload, domain.EventTypeSubscriptionUpserted)
	case "customer.subscription.deleted":
		return a.parseSubscription(event, payload, domain.EventTypeSubscriptionDeleted)
	case "invoice.payment_failed":
		return a.parseInvoice(event, payload, domain.EventTypePaymentFailed)
	case "invoice.payment_succeeded", "invoice.paid":
		return a.parseInvoice(event, payload, domain.EventTypePaymentSucceeded)
	case "checkout.session.completed":
		return a.parseCheckoutSession(event, payload)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Created            int64             `json:"created"`
	Metadata           map[string]string `json:"metadata"`
}

type stripeInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	PeriodStart  int64  `json:"period_start"`
	PeriodEnd    int64  `json:"period_end"`
	Created      int64  `json:"created"`
}

type stripeCheckoutSession struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	AmountTotal  int64             `json:"amount_total"`
	Created      int64             `json:"created"`
	Metadata     map[string]string `json:"metadata"`
}

func (a *Adapter) parseSubscription(event stripeEvent, payload []byte, eventType string) (*domain.BillingEvent, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.BillingEvent{
		Provider:               "stripe",
		ProviderEventID:        event.ID,
		Type:                   eventType,
		UpstreamType:           event.Type,
		OrgID:                  parseOrgID(sub.Metadata),
		ProviderSubscriptionID: strings.TrimSpace(sub.ID),
		ProviderCustomerID:     strings.TrimSpace(sub.Customer),
		Status:                 strings.TrimSpace(sub.Status),
		CurrentPeriodStart:     unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:       unixTime(sub.CurrentPeriodEnd),
		OccurredAt:             a.occurredAt(sub.Created, event.Created),
		RawPayload:             payload,
	}, nil
}

func (a *Adapter) parseInvoice(event stripeEvent, payload []byte, eventType string) (*domain.BillingEvent, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(invoice.Customer) == "" && strings.TrimSpace(invoice.Subscription) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.BillingEvent{
		Provider:               "stripe",
		ProviderEventID:        event.ID,
		Type:                   eventType,
		UpstreamType:           event.Type,
		ProviderSubscriptionID: strings.TrimSpace(invoice.Subscription),
		ProviderCustomerID:     strings.TrimSpace(invoice.Customer),
		CurrentPeriodStart:     unixTime(invoice.PeriodStart),
		CurrentPeriodEnd:       unixTime(invoice.PeriodEnd),
		OccurredAt:             a.occurredAt(invoice.Created, event.Created),
		RawPayload:             payload,
	}, nil
}

func (a *Adapter) parseCheckoutSession(event stripeEvent, payload []byte) (*domain.BillingEvent, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	billingEvent := &domain.BillingEvent{
		Provider:               "stripe",
		ProviderEventID:        event.ID,
		Type:                   domain.EventTypeCheckoutCompleted,
		UpstreamType:           event.Type,
		OrgID:                  parseOrgID(session.Metadata),
		ProviderSubscriptionID: strings.TrimSpace(session.Subscription),
		ProviderCustomerID:     strings.TrimSpace(session.Customer),
		OccurredAt:             a.occurredAt(session.Created, event.Created),
		RawPayload:             payload,
	}
	if session.AmountTotal > 0 {
		amount := session.AmountTotal
		billingEvent.SetupFeeAmount = &amount
	}
	return billingEvent, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func parseOrgID(metadata map[string]string) snowflake.ID {
	raw := strings.TrimSpace(metadata["org_id"])
	if raw == "" {
		return 0
	}
	orgID, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return orgID
}

func unixTime(value int64) *time.Time {
	if value == 0 {
		return nil
	}
	t := time.Unix(value, 0).UTC()
	return &t
}

func (a *Adapter) occurredAt(primary, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return a.clock.Now()
	}
	return time.Unix(value, 0).UTC()
}
