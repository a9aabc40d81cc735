package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hostfolio/hostfolio/internal/clock"
	"github.com/hostfolio/hostfolio/internal/organization/domain"
	orgrepo "github.com/hostfolio/hostfolio/internal/organization/repository"
	orgservice "github.com/hostfolio/hostfolio/internal/organization/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_org_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.Exec(`CREATE TABLE organizations (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		contact_email TEXT NOT NULL DEFAULT '',
		billing_customer_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func newService(t *testing.T, db *gorm.DB) domain.Service {
	t.Helper()
	return orgservice.NewService(orgservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: orgrepo.Provide(clock.NewFakeClock(time.Now())),
	})
}

func seedOrg(t *testing.T, db *gorm.DB, node *snowflake.Node, status domain.PublicationStatus, customerID string) snowflake.ID {
	t.Helper()

	id := node.Generate()
	now := time.Now().UTC()
	var billingCustomer any
	if customerID != "" {
		billingCustomer = customerID
	}
	err := db.Exec(
		`INSERT INTO organizations (id, name, slug, status, contact_email, billing_customer_id, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'owner@acme.test', ?, '{}', ?, ?)`,
		id, "Acme Studio", fmt.Sprintf("acme-%d", id), status, billingCustomer, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed org: %v", err)
	}
	return id
}

func status(t *testing.T, db *gorm.DB, id snowflake.ID) domain.PublicationStatus {
	t.Helper()

	var s string
	if err := db.Raw(`SELECT status FROM organizations WHERE id = ?`, id).Scan(&s).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	return domain.PublicationStatus(s)
}

func TestPublishTransitions(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db)
	node, _ := snowflake.NewNode(40)

	tests := []struct {
		name      string
		from      domain.PublicationStatus
		wantMoved bool
		want      domain.PublicationStatus
	}{
		{"draft publishes", domain.StatusDraft, true, domain.StatusPublished},
		{"paused publishes", domain.StatusPaused, true, domain.StatusPublished},
		{"published unchanged", domain.StatusPublished, false, domain.StatusPublished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := seedOrg(t, db, node, tt.from, "")
			moved, err := svc.Publish(ctx, id)
			if err != nil {
				t.Fatalf("publish: %v", err)
			}
			if moved != tt.wantMoved {
				t.Fatalf("expected moved=%v, got %v", tt.wantMoved, moved)
			}
			if got := status(t, db, id); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPauseOnlyTouchesPublished(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db)
	node, _ := snowflake.NewNode(41)

	published := seedOrg(t, db, node, domain.StatusPublished, "")
	draft := seedOrg(t, db, node, domain.StatusDraft, "")

	moved, err := svc.Pause(ctx, published)
	if err != nil || !moved {
		t.Fatalf("expected published tenant to pause, moved=%v err=%v", moved, err)
	}
	if got := status(t, db, published); got != domain.StatusPaused {
		t.Fatalf("expected paused, got %s", got)
	}

	// A draft tenant is not published, so a pause must not move it.
	moved, err = svc.Pause(ctx, draft)
	if err != nil {
		t.Fatalf("pause draft: %v", err)
	}
	if moved {
		t.Fatalf("expected draft tenant to be untouched")
	}
	if got := status(t, db, draft); got != domain.StatusDraft {
		t.Fatalf("expected draft, got %s", got)
	}
}

func TestForcePauseIsUnconditional(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db)
	node, _ := snowflake.NewNode(42)

	for _, from := range []domain.PublicationStatus{domain.StatusDraft, domain.StatusPublished, domain.StatusPaused} {
		id := seedOrg(t, db, node, from, "")
		if err := svc.ForcePause(ctx, id); err != nil {
			t.Fatalf("force pause from %s: %v", from, err)
		}
		if got := status(t, db, id); got != domain.StatusPaused {
			t.Fatalf("expected paused from %s, got %s", from, got)
		}
	}
}

func TestResolveByBillingCustomerID(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db)
	node, _ := snowflake.NewNode(43)

	id := seedOrg(t, db, node, domain.StatusDraft, "cus_1")

	org, err := svc.ResolveByBillingCustomerID(ctx, "cus_1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if org.ID != id {
		t.Fatalf("expected org %s, got %s", id, org.ID)
	}

	if _, err := svc.ResolveByBillingCustomerID(ctx, "cus_unknown"); !errors.Is(err, domain.ErrOrganizationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveAmbiguousCustomerFailsClosed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db)
	node, _ := snowflake.NewNode(44)

	seedOrg(t, db, node, domain.StatusDraft, "cus_shared")
	seedOrg(t, db, node, domain.StatusDraft, "cus_shared")

	if _, err := svc.ResolveByBillingCustomerID(ctx, "cus_shared"); !errors.Is(err, domain.ErrAmbiguousCustomer) {
		t.Fatalf("expected ambiguous customer, got %v", err)
	}
}
