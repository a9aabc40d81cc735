package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hostfolio/hostfolio/internal/billing/domain"
)

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewHTTPClient(cfg HTTPConfig) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{Timeout: timeout},
	}
}

type subscriptionResponse struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
}

func (c *httpClient) GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, domain.ErrInvalidEvent
	}
	if c.apiKey == "" {
		return nil, domain.ErrMissingSecret
	}

	url := fmt.Sprintf("%s/v1/subscriptions/%s", c.baseURL, subscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d", domain.ErrInvalidEvent, resp.StatusCode)
	}

	var body subscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}

	sub := &ProviderSubscription{
		ID:         body.ID,
		CustomerID: body.Customer,
		Status:     body.Status,
		Metadata:   body.Metadata,
	}
	if body.CurrentPeriodStart > 0 {
		t := time.Unix(body.CurrentPeriodStart, 0).UTC()
		sub.CurrentPeriodStart = &t
	}
	if body.CurrentPeriodEnd > 0 {
		t := time.Unix(body.CurrentPeriodEnd, 0).UTC()
		sub.CurrentPeriodEnd = &t
	}
	return sub, nil
}
