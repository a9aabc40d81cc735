package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hostfolio/hostfolio/internal/clock"
	"github.com/hostfolio/hostfolio/internal/subscription/domain"
	subrepo "github.com/hostfolio/hostfolio/internal/subscription/repository"
	subservice "github.com/hostfolio/hostfolio/internal/subscription/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_sub_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	statements := []string{
		`CREATE TABLE subscriptions (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL,
			provider_subscription_id TEXT NOT NULL,
			provider_customer_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			current_period_start DATETIME,
			current_period_end DATETIME,
			setup_fee_amount BIGINT,
			setup_fee_paid_at DATETIME,
			canceled_at DATETIME,
			notes TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_subscriptions_provider_subscription ON subscriptions(provider_subscription_id)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newService(t *testing.T, db *gorm.DB) (domain.Service, *snowflake.Node) {
	t.Helper()

	node, err := snowflake.NewNode(50)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Now())
	svc := subservice.NewService(subservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  subrepo.Provide(clk),
	})
	return svc, node
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newService(t, db)
	orgID := node.Generate()

	stored, err := svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:                  orgID,
		ProviderSubscriptionID: "sub_1",
		ProviderCustomerID:     "cus_1",
		Status:                 domain.StatusPending,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if stored != domain.StatusPending {
		t.Fatalf("expected pending, got %s", stored)
	}

	stored, err = svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:                  orgID,
		ProviderSubscriptionID: "sub_1",
		ProviderCustomerID:     "cus_1",
		Status:                 domain.StatusActive,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if stored != domain.StatusActive {
		t.Fatalf("expected active, got %s", stored)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(1) FROM subscriptions`).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single row, got %d", count)
	}
}

func TestUpsertPreservesCancellation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newService(t, db)
	orgID := node.Generate()

	if _, err := svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:                  orgID,
		ProviderSubscriptionID: "sub_1",
		Status:                 domain.StatusCancelled,
	}); err != nil {
		t.Fatalf("insert cancelled: %v", err)
	}

	stored, err := svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:                  orgID,
		ProviderSubscriptionID: "sub_1",
		Status:                 domain.StatusActive,
	})
	if err != nil {
		t.Fatalf("stale update: %v", err)
	}
	if stored != domain.StatusCancelled {
		t.Fatalf("expected cancellation to stick, got %s", stored)
	}
}

func TestUpsertKeepsExistingPeriodsWhenAbsent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newService(t, db)
	orgID := node.Generate()

	start := time.Now().UTC().Truncate(time.Second)
	end := start.AddDate(0, 1, 0)
	if _, err := svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:                  orgID,
		ProviderSubscriptionID: "sub_1",
		Status:                 domain.StatusActive,
		CurrentPeriodStart:     &start,
		CurrentPeriodEnd:       &end,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// An update without period fields must not blank the stored window.
	if _, err := svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:                  orgID,
		ProviderSubscriptionID: "sub_1",
		Status:                 domain.StatusActive,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	sub, err := svc.GetByProviderSubscriptionID(ctx, "sub_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub == nil || sub.CurrentPeriodStart == nil || sub.CurrentPeriodEnd == nil {
		t.Fatalf("expected period to survive the update")
	}
}

func TestCancelFirstTimestampWins(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, node := newService(t, db)
	orgID := node.Generate()

	if _, err := svc.Upsert(ctx, domain.UpsertRequest{
		OrgID:                  orgID,
		ProviderSubscriptionID: "sub_1",
		Status:                 domain.StatusActive,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	first := time.Now().UTC().Truncate(time.Second)
	if err := svc.Cancel(ctx, "sub_1", first); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := svc.Cancel(ctx, "sub_1", first.Add(time.Hour)); err != nil {
		t.Fatalf("second cancel: %v", err)
	}

	sub, err := svc.GetByProviderSubscriptionID(ctx, "sub_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", sub.Status)
	}
	if sub.CanceledAt == nil || !sub.CanceledAt.Equal(first) {
		t.Fatalf("expected first cancellation timestamp to win, got %v", sub.CanceledAt)
	}
}

func TestMapUpstreamStatus(t *testing.T) {
	tests := []struct {
		upstream string
		want     domain.Status
	}{
		{"active", domain.StatusActive},
		{"trialing", domain.StatusActive},
		{"canceled", domain.StatusPaused},
		{"unpaid", domain.StatusPaused},
		{"incomplete", domain.StatusPending},
		{"past_due", domain.StatusPending},
		{"", domain.StatusPending},
	}
	for _, tt := range tests {
		if got := domain.MapUpstreamStatus(tt.upstream); got != tt.want {
			t.Fatalf("MapUpstreamStatus(%q) = %s, want %s", tt.upstream, got, tt.want)
		}
	}
}
