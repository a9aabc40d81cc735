package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/hostfolio/hostfolio/internal/billing/adapters"
	"github.com/hostfolio/hostfolio/internal/billing/adapters/stripe"
	"github.com/hostfolio/hostfolio/internal/billing/domain"
	"github.com/hostfolio/hostfolio/internal/clock"
	"github.com/hostfolio/hostfolio/internal/config"
	"go.uber.org/zap"
)

type recordingEngine struct {
	events []*domain.BillingEvent
	err    error
}

func (r *recordingEngine) ProcessEvent(ctx context.Context, event *domain.BillingEvent) error {
	r.events = append(r.events, event)
	return r.err
}

func newIngestService(engine *recordingEngine, secret string) domain.Ingest {
	clk := clock.NewFakeClock(time.Now())
	return NewService(Params{
		Log:        zap.NewNop(),
		BillingSvc: engine,
		Adapters:   adapters.NewRegistry(stripe.NewFactory(clk)),
		Cfg: config.Config{
			Billing: config.BillingConfig{
				Provider:      "stripe",
				WebhookSecret: secret,
			},
		},
	})
}

func signedHeader(secret string, payload []byte) http.Header {
	ts := time.Now().Unix()
	signedPayload := fmt.Sprintf("%d.%s", ts, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))

	header := http.Header{}
	header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return header
}

func TestIngestWebhookDelegatesCanonicalEvent(t *testing.T) {
	engine := &recordingEngine{}
	svc := newIngestService(engine, "whsec_test")

	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_1","status":"active"}}}`)
	if err := svc.IngestWebhook(context.Background(), "stripe", payload, signedHeader("whsec_test", payload)); err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}

	if len(engine.events) != 1 {
		t.Fatalf("expected one event, got %d", len(engine.events))
	}
	event := engine.events[0]
	if event.Type != domain.EventTypeSubscriptionUpserted {
		t.Fatalf("expected subscription upserted, got %s", event.Type)
	}
	if event.Provider != "stripe" {
		t.Fatalf("expected provider stripe, got %s", event.Provider)
	}
	if len(event.RawPayload) == 0 {
		t.Fatalf("expected raw payload to be carried on the event")
	}
}

func TestIngestWebhookRejectsBadSignature(t *testing.T) {
	engine := &recordingEngine{}
	svc := newIngestService(engine, "whsec_test")

	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated","data":{"object":{"id":"sub_1"}}}`)
	err := svc.IngestWebhook(context.Background(), "stripe", payload, signedHeader("whsec_wrong", payload))
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if len(engine.events) != 0 {
		t.Fatalf("expected no events past a bad signature")
	}
}

func TestIngestWebhookUnknownProvider(t *testing.T) {
	engine := &recordingEngine{}
	svc := newIngestService(engine, "whsec_test")

	err := svc.IngestWebhook(context.Background(), "adyen", []byte(`{}`), http.Header{})
	if !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("expected unknown provider, got %v", err)
	}
}

func TestIngestWebhookMissingSecret(t *testing.T) {
	engine := &recordingEngine{}
	svc := newIngestService(engine, "")

	payload := []byte(`{"id":"evt_1"}`)
	err := svc.IngestWebhook(context.Background(), "stripe", payload, signedHeader("whsec_test", payload))
	if !errors.Is(err, domain.ErrMissingSecret) {
		t.Fatalf("expected missing secret, got %v", err)
	}
}

func TestIngestWebhookIgnoredEventAcks(t *testing.T) {
	engine := &recordingEngine{}
	svc := newIngestService(engine, "whsec_test")

	payload := []byte(`{"id":"evt_1","type":"customer.created","data":{"object":{}}}`)
	if err := svc.IngestWebhook(context.Background(), "stripe", payload, signedHeader("whsec_test", payload)); err != nil {
		t.Fatalf("expected ignored event to ack, got %v", err)
	}
	if len(engine.events) != 0 {
		t.Fatalf("expected no events for ignored type")
	}
}

func TestIngestWebhookRejectsInvalidJSON(t *testing.T) {
	engine := &recordingEngine{}
	svc := newIngestService(engine, "whsec_test")

	err := svc.IngestWebhook(context.Background(), "stripe", []byte("{nope"), http.Header{})
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}
