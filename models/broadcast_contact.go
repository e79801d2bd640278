package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// EnrollmentStatus represents the state of one contact inside one broadcast
type EnrollmentStatus string

const (
	EnrollmentStatusRunning     EnrollmentStatus = "running"
	EnrollmentStatusPaused      EnrollmentStatus = "paused"
	EnrollmentStatusOptOut      EnrollmentStatus = "opt-out"
	EnrollmentStatusUnsubscribe EnrollmentStatus = "unsubscribe"
	EnrollmentStatusCompleted   EnrollmentStatus = "completed"
)

// String returns the string representation of the status
func (s EnrollmentStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusRunning, EnrollmentStatusPaused,
		EnrollmentStatusOptOut, EnrollmentStatusUnsubscribe,
		EnrollmentStatusCompleted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the enrollment can never resume delivery
func (s EnrollmentStatus) IsTerminal() bool {
	return s == EnrollmentStatusOptOut || s == EnrollmentStatusUnsubscribe || s == EnrollmentStatusCompleted
}

// Scan implements the sql.Scanner interface for EnrollmentStatus
func (s *EnrollmentStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = EnrollmentStatus(v)
	case []byte:
		*s = EnrollmentStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into EnrollmentStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for EnrollmentStatus
func (s EnrollmentStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid EnrollmentStatus: %s", s)
	}
	return string(s), nil
}

// BroadcastContact represents the enrollment of one contact in one broadcast.
// Exactly one row may exist per (broadcast, contact) pair; creating a
// duplicate is an error, not an upsert.
type BroadcastContact struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	BroadcastID uint             `gorm:"not null;index:idx_broadcast_contacts_broadcast_id" json:"broadcast_id"`
	ContactID   uint             `gorm:"not null;index:idx_broadcast_contacts_contact_id" json:"contact_id"`
	Status      EnrollmentStatus `gorm:"type:varchar(16);not null;default:'running';index:idx_broadcast_contacts_status" json:"status"`

	// EntryDate is refreshed on resume so scheduled steps are computed
	// against the most recent (re)entry into the sequence.
	EntryDate            time.Time  `gorm:"not null" json:"entry_date"`
	LastMessageAt        *time.Time `json:"last_message_at,omitempty"`
	NextAllowedMessageAt *time.Time `json:"next_allowed_message_at,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Broadcast *Broadcast `gorm:"foreignKey:BroadcastID;references:ID" json:"broadcast,omitempty"`
	Contact   *Contact   `gorm:"foreignKey:ContactID;references:ID" json:"contact,omitempty"`
}

// TableName returns the table name for the model
func (BroadcastContact) TableName() string {
	return "broadcast_contacts"
}

// BeforeCreate is called before creating a new record
func (c *BroadcastContact) BeforeCreate(tx *gorm.DB) error {
	if c.Status == "" {
		c.Status = EnrollmentStatusRunning
	}
	if c.EntryDate.IsZero() {
		c.EntryDate = utils.UTCNow()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *BroadcastContact) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// BroadcastContactFilter represents filter criteria for enrollments
type BroadcastContactFilter struct {
	ID          *uint             `json:"id,omitempty"`
	BroadcastID *uint             `json:"broadcast_id,omitempty"`
	ContactID   *uint             `json:"contact_id,omitempty"`
	Status      *EnrollmentStatus `json:"status,omitempty"`
	IDAfter     *uint             `json:"id_after,omitempty"`
}
