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
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hostfolio/hostfolio/internal/billing/domain"
	"github.com/hostfolio/hostfolio/internal/clock"
)

func buildSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func newTestAdapter(t *testing.T, clk clock.Clock) domain.Adapter {
	t.Helper()
	adapter, err := NewFactory(clk).NewAdapter(domain.AdapterConfig{WebhookSecret: "whsec_test"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func TestFactoryRequiresSecret(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	_, err := NewFactory(clk).NewAdapter(domain.AdapterConfig{WebhookSecret: "  "})
	if !errors.Is(err, domain.ErrMissingSecret) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	now := time.Now().UTC()
	clk := clock.NewFakeClock(now)
	adapter := newTestAdapter(t, clk)
	payload := []byte(`{"id":"evt_123","type":"customer.subscription.updated","data":{"object":{}}}`)

	header := http.Header{}
	header.Set("Stripe-Signature", buildSignatureHeader("whsec_test", payload, now.Unix()))
	if err := adapter.Verify(context.Background(), payload, header); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	header.Set("Stripe-Signature", buildSignatureHeader("whsec_wrong", payload, now.Unix()))
	if err := adapter.Verify(context.Background(), payload, header); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	if err := adapter.Verify(context.Background(), payload, http.Header{}); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error for missing header, got %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Now().UTC()
	clk := clock.NewFakeClock(now)
	adapter := newTestAdapter(t, clk)
	payload := []byte(`{"id":"evt_stale"}`)

	signedAt := now.Add(-6 * time.Minute).Unix()
	header := http.Header{}
	header.Set("Stripe-Signature", buildSignatureHeader("whsec_test", payload, signedAt))
	if err := adapter.Verify(context.Background(), payload, header); !errors.Is(err, domain.ErrSignatureExpired) {
		t.Fatalf("expected expired signature error, got %v", err)
	}

	// Within tolerance the same delivery is accepted.
	signedAt = now.Add(-4 * time.Minute).Unix()
	header.Set("Stripe-Signature", buildSignatureHeader("whsec_test", payload, signedAt))
	if err := adapter.Verify(context.Background(), payload, header); err != nil {
		t.Fatalf("expected valid signature within tolerance, got %v", err)
	}
}

func TestParseSubscriptionEvents(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	orgID := node.Generate()
	created := time.Now().UTC().Unix()

	tests := []struct {
		name       string
		event      map[string]any
		wantType   string
		wantStatus string
	}{{
		name: "customer.subscription.updated",
		event: map[string]any{
			"id":      "evt_sub",
			"type":    "customer.subscription.updated",
			"created": created,
			"data": map[string]any{
				"object": map[string]any{
					"id":                   "sub_1",
					"customer":             "cus_1",
					"status":               "active",
					"current_period_start": created,
					"current_period_end":   created + 2592000,
					"metadata":             map[string]any{"org_id": orgID.String()},
				},
			},
		},
		wantType:   domain.EventTypeSubscriptionUpserted,
		wantStatus: "active",
	}, {
		name: "customer.subscription.deleted",
		event: map[string]any{
			"id":      "evt_del",
			"type":    "customer.subscription.deleted",
			"created": created,
			"data": map[string]any{
				"object": map[string]any{
					"id":       "sub_1",
					"customer": "cus_1",
					"status":   "canceled",
				},
			},
		},
		wantType:   domain.EventTypeSubscriptionDeleted,
		wantStatus: "canceled",
	}}

	adapter := newTestAdapter(t, clock.NewFakeClock(time.Now()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("marshal payload: %v", err)
			}
			event, err := adapter.Parse(context.Background(), payload)
			if err != nil {
				t.Fatalf("parse event: %v", err)
			}
			if event.Type != tt.wantType {
				t.Fatalf("expected type %s, got %s", tt.wantType, event.Type)
			}
			if event.Status != tt.wantStatus {
				t.Fatalf("expected status %s, got %s", tt.wantStatus, event.Status)
			}
			if event.ProviderSubscriptionID != "sub_1" {
				t.Fatalf("expected subscription sub_1, got %s", event.ProviderSubscriptionID)
			}
			if event.ProviderCustomerID != "cus_1" {
				t.Fatalf("expected customer cus_1, got %s", event.ProviderCustomerID)
			}
		})
	}
}

func TestParseSubscriptionCarriesOrgID(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	orgID := node.Generate()

	payload := []byte(fmt.Sprintf(`{"id":"evt_1","type":"customer.subscription.created","data":{"object":{"id":"sub_9","customer":"cus_9","status":"trialing","metadata":{"org_id":"%s"}}}}`, orgID))
	adapter := newTestAdapter(t, clock.NewFakeClock(time.Now()))
	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if event.OrgID != orgID {
		t.Fatalf("expected org %s, got %s", orgID, event.OrgID)
	}

	// Garbage metadata degrades to zero rather than failing the event.
	payload = []byte(`{"id":"evt_2","type":"customer.subscription.created","data":{"object":{"id":"sub_9","customer":"cus_9","status":"trialing","metadata":{"org_id":"not-a-number"}}}}`)
	event, err = adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if event.OrgID != 0 {
		t.Fatalf("expected zero org id, got %s", event.OrgID)
	}
}

func TestParseInvoiceEvents(t *testing.T) {
	adapter := newTestAdapter(t, clock.NewFakeClock(time.Now()))

	payload := []byte(`{"id":"evt_inv","type":"invoice.payment_failed","data":{"object":{"id":"in_1","customer":"cus_1","subscription":"sub_1"}}}`)
	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if event.Type != domain.EventTypePaymentFailed {
		t.Fatalf("expected payment failed, got %s", event.Type)
	}
	if event.ProviderCustomerID != "cus_1" || event.ProviderSubscriptionID != "sub_1" {
		t.Fatalf("unexpected correlation ids: %s %s", event.ProviderCustomerID, event.ProviderSubscriptionID)
	}

	payload = []byte(`{"id":"evt_paid","type":"invoice.paid","data":{"object":{"id":"in_2","customer":"cus_1","subscription":"sub_1","period_start":1714521600,"period_end":1717200000}}}`)
	event, err = adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if event.Type != domain.EventTypePaymentSucceeded {
		t.Fatalf("expected payment succeeded, got %s", event.Type)
	}
	if event.CurrentPeriodStart == nil || event.CurrentPeriodStart.Unix() != 1714521600 {
		t.Fatalf("expected invoice period start carried, got %v", event.CurrentPeriodStart)
	}
	if event.CurrentPeriodEnd == nil || event.CurrentPeriodEnd.Unix() != 1717200000 {
		t.Fatalf("expected invoice period end carried, got %v", event.CurrentPeriodEnd)
	}

	payload = []byte(`{"id":"evt_bad","type":"invoice.payment_failed","data":{"object":{"id":"in_3"}}}`)
	if _, err = adapter.Parse(context.Background(), payload); !errors.Is(err, domain.ErrInvalidEvent) {
		t.Fatalf("expected invalid event for uncorrelated invoice, got %v", err)
	}
}

func TestParseCheckoutSession(t *testing.T) {
	adapter := newTestAdapter(t, clock.NewFakeClock(time.Now()))
	payload := []byte(`{"id":"evt_co","type":"checkout.session.completed","data":{"object":{"id":"cs_1","customer":"cus_1","subscription":"sub_1","amount_total":9900}}}`)

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if event.Type != domain.EventTypeCheckoutCompleted {
		t.Fatalf("expected checkout completed, got %s", event.Type)
	}
	if event.SetupFeeAmount == nil || *event.SetupFeeAmount != 9900 {
		t.Fatalf("expected setup fee 9900, got %v", event.SetupFeeAmount)
	}
}

func TestParseIgnoresUnknownTypes(t *testing.T) {
	adapter := newTestAdapter(t, clock.NewFakeClock(time.Now()))
	payload := []byte(`{"id":"evt_x","type":"customer.created","data":{"object":{}}}`)
	if _, err := adapter.Parse(context.Background(), payload); !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("expected ignored event, got %v", err)
	}

	if _, err := adapter.Parse(context.Background(), []byte("{not json")); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}
