// Package domain contains persistence models for the tenant directory.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PublicationStatus represents whether a tenant site is live.
type PublicationStatus string

const (
	StatusDraft     PublicationStatus = "draft"
	StatusPublished PublicationStatus = "published"
	StatusPaused    PublicationStatus = "paused"
)

// Organization represents a tenant whose publication state is governed by
// subscription health.
type Organization struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name              string            `gorm:"type:text;not null" json:"name"`
	Slug              string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	Status            PublicationStatus `gorm:"type:text;not null;default:'draft'" json:"status"`
	ContactEmail      string            `gorm:"type:text;not null;default:''" json:"contact_email"`
	BillingCustomerID *string           `gorm:"type:text;column:billing_customer_id;uniqueIndex:ux_organizations_billing_customer" json:"billing_customer_id,omitempty"`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }
