package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// BroadcastStatus represents the status of a broadcast
type BroadcastStatus string

const (
	BroadcastStatusActive          BroadcastStatus = "active"
	BroadcastStatusRunning         BroadcastStatus = "running"
	BroadcastStatusPaused          BroadcastStatus = "paused"
	BroadcastStatusPausedForCredit BroadcastStatus = "paused-for-credit"
	BroadcastStatusStopped         BroadcastStatus = "stopped"
	BroadcastStatusDeleted         BroadcastStatus = "deleted"
	BroadcastStatusCompleted       BroadcastStatus = "completed"
)

// String returns the string representation of the status
func (s BroadcastStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s BroadcastStatus) Valid() bool {
	switch s {
	case BroadcastStatusActive, BroadcastStatusRunning,
		BroadcastStatusPaused, BroadcastStatusPausedForCredit,
		BroadcastStatusStopped, BroadcastStatusDeleted,
		BroadcastStatusCompleted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further delivery may happen for this status
func (s BroadcastStatus) IsTerminal() bool {
	return s == BroadcastStatusStopped || s == BroadcastStatusDeleted || s == BroadcastStatusCompleted
}

// Scan implements the sql.Scanner interface for BroadcastStatus
func (s *BroadcastStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = BroadcastStatus(v)
	case []byte:
		*s = BroadcastStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into BroadcastStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for BroadcastStatus
func (s BroadcastStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid BroadcastStatus: %s", s)
	}
	return string(s), nil
}

// Broadcast represents a multi-stage messaging campaign with a delivery window
type Broadcast struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uk_broadcasts_uuid" json:"uuid"`
	CustomerID uint            `gorm:"not null;index:idx_broadcasts_customer_id" json:"customer_id"`
	Title      string          `gorm:"type:varchar(255);not null" json:"title"`
	Status     BroadcastStatus `gorm:"type:varchar(32);not null;default:'active';index:idx_broadcasts_status" json:"status"`

	// Delivery window. FromDate/ToDate are inclusive; nil means unrestricted.
	// Weekdays empty means every day is allowed. StartTime/EndTime are
	// time-of-day strings ("15:04"); EndTime < StartTime spans midnight.
	FromDate  *time.Time     `json:"from_date,omitempty"`
	ToDate    *time.Time     `json:"to_date,omitempty"`
	Weekdays  pq.StringArray `gorm:"type:text[]" json:"weekdays,omitempty"`
	StartTime string         `gorm:"type:varchar(8);not null" json:"start_time"`
	EndTime   string         `gorm:"type:varchar(8);not null" json:"end_time"`
	Timezone  string         `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`

	LineNumberID uint       `gorm:"not null" json:"line_number_id"`
	CreatedAt    time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_broadcasts_created_at" json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`

	// Relations
	Customer   *Customer          `gorm:"foreignKey:CustomerID;references:ID" json:"customer,omitempty"`
	LineNumber *LineNumber        `gorm:"foreignKey:LineNumberID;references:ID" json:"line_number,omitempty"`
	Settings   []BroadcastSetting `gorm:"foreignKey:BroadcastID" json:"settings,omitempty"`
}

// TableName returns the table name for the model
func (Broadcast) TableName() string {
	return "broadcasts"
}

// BeforeCreate is called before creating a new record
func (b *Broadcast) BeforeCreate(tx *gorm.DB) error {
	if b.UUID == uuid.Nil {
		b.UUID = uuid.New()
	}
	if b.Status == "" {
		b.Status = BroadcastStatusActive
	}
	if b.Timezone == "" {
		b.Timezone = "UTC"
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (b *Broadcast) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	b.UpdatedAt = &now
	return nil
}

// CanTransitionTo checks if the broadcast can transition to the given status
func (b *Broadcast) CanTransitionTo(newStatus BroadcastStatus) bool {
	if b.Status.IsTerminal() {
		return false
	}
	switch b.Status {
	case BroadcastStatusActive:
		return newStatus == BroadcastStatusRunning ||
			newStatus == BroadcastStatusStopped ||
			newStatus == BroadcastStatusDeleted
	case BroadcastStatusRunning:
		return newStatus == BroadcastStatusPaused ||
			newStatus == BroadcastStatusPausedForCredit ||
			newStatus == BroadcastStatusStopped ||
			newStatus == BroadcastStatusDeleted ||
			newStatus == BroadcastStatusCompleted
	case BroadcastStatusPaused, BroadcastStatusPausedForCredit:
		return newStatus == BroadcastStatusRunning ||
			newStatus == BroadcastStatusStopped ||
			newStatus == BroadcastStatusDeleted
	default:
		return false
	}
}

// BroadcastFilter represents filter criteria for broadcasts
type BroadcastFilter struct {
	ID            *uint            `json:"id,omitempty"`
	UUID          *uuid.UUID       `json:"uuid,omitempty"`
	CustomerID    *uint            `json:"customer_id,omitempty"`
	Status        *BroadcastStatus `json:"status,omitempty"`
	CreatedAfter  *time.Time       `json:"created_after,omitempty"`
	CreatedBefore *time.Time       `json:"created_before,omitempty"`
}
