package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hostfolio/hostfolio/internal/billing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSubscriptionDecodesResponse(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "sub_1",
			"customer": "cus_1",
			"status": "active",
			"current_period_start": 1785542400,
			"current_period_end": 1788220800,
			"metadata": {"org_id": "12345"}
		}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, APIKey: "sk_test"})
	sub, err := client.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "12345", sub.Metadata["org_id"])
	require.NotNil(t, sub.CurrentPeriodStart)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, sub.CurrentPeriodStart.Equal(start))
	assert.True(t, sub.CurrentPeriodEnd.Equal(end))
}

func TestGetSubscriptionServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, APIKey: "sk_test"})
	_, err := client.GetSubscription(context.Background(), "sub_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrProviderUnavailable))
}

func TestGetSubscriptionClientErrorIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"no such subscription"}}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, APIKey: "sk_test"})
	_, err := client.GetSubscription(context.Background(), "sub_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidEvent))
	assert.False(t, errors.Is(err, domain.ErrProviderUnavailable))
}

func TestGetSubscriptionRequiresAPIKey(t *testing.T) {
	client := NewHTTPClient(HTTPConfig{BaseURL: "https://api.example.test"})
	_, err := client.GetSubscription(context.Background(), "sub_1")
	assert.True(t, errors.Is(err, domain.ErrMissingSecret))
}

func TestGetSubscriptionRequiresID(t *testing.T) {
	client := NewHTTPClient(HTTPConfig{BaseURL: "https://api.example.test", APIKey: "sk_test"})
	_, err := client.GetSubscription(context.Background(), "  ")
	assert.True(t, errors.Is(err, domain.ErrInvalidEvent))
}
