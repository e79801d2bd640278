package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// Customer is the owning user of broadcasts. Billing may be delegated to a
// parent account (agency); balance checks walk to the billing parent when
// one is set.
type Customer struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UUID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_customers_uuid" json:"uuid"`
	Name            string    `gorm:"type:varchar(255);not null" json:"name"`
	IsActive        *bool     `gorm:"not null;default:true" json:"is_active"`
	BillingParentID *uint     `json:"billing_parent_id,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	BillingParent *Customer `gorm:"foreignKey:BillingParentID;references:ID" json:"billing_parent,omitempty"`
	Wallet        *Wallet   `gorm:"foreignKey:CustomerID" json:"wallet,omitempty"`
}

// TableName returns the table name for the model
func (Customer) TableName() string {
	return "customers"
}

// BeforeCreate is called before creating a new record
func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.IsActive == nil {
		c.IsActive = utils.ToPtr(true)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BillingCustomerID returns the account charged for this customer's sends
func (c *Customer) BillingCustomerID() uint {
	if c.BillingParentID != nil {
		return *c.BillingParentID
	}
	return c.ID
}

// CustomerFilter represents filter criteria for customers
type CustomerFilter struct {
	ID       *uint      `json:"id,omitempty"`
	UUID     *uuid.UUID `json:"uuid,omitempty"`
	IsActive *bool      `json:"is_active,omitempty"`
}

// Contact is a reachable recipient
type Contact struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	CustomerID  uint   `gorm:"not null;index:idx_contacts_customer_id" json:"customer_id"`
	PhoneNumber string `gorm:"type:varchar(32);not null;index:idx_contacts_phone_number" json:"phone_number"`
	IsActive    *bool  `gorm:"not null;default:true" json:"is_active"`

	// ListID groups contacts into an addressable enrollment source;
	// SegmentID and TagID are the alternative grouping sources.
	ListID    *uint `gorm:"index:idx_contacts_list_id" json:"list_id,omitempty"`
	SegmentID *uint `gorm:"index:idx_contacts_segment_id" json:"segment_id,omitempty"`
	TagID     *uint `gorm:"index:idx_contacts_tag_id" json:"tag_id,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

// TableName returns the table name for the model
func (Contact) TableName() string {
	return "contacts"
}

// BeforeCreate is called before creating a new record
func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.IsActive == nil {
		c.IsActive = utils.ToPtr(true)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// ContactFilter represents filter criteria for contacts
type ContactFilter struct {
	ID         *uint `json:"id,omitempty"`
	CustomerID *uint `json:"customer_id,omitempty"`
	ListID     *uint `json:"list_id,omitempty"`
	SegmentID  *uint `json:"segment_id,omitempty"`
	TagID      *uint `json:"tag_id,omitempty"`
	IsActive   *bool `json:"is_active,omitempty"`
	IDAfter    *uint `json:"id_after,omitempty"`
}
