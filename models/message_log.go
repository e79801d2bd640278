package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// MessageLogKind separates real delivery attempts from validation rejects
type MessageLogKind string

const (
	// MessageLogKindDelivery marks a row written after a send attempt.
	// Only delivery rows participate in step-completion lookups.
	MessageLogKindDelivery MessageLogKind = "delivery"
	// MessageLogKindInvalid marks a row written when dispatch validation
	// rejected the entry before any send attempt.
	MessageLogKindInvalid MessageLogKind = "invalid"
)

// Valid checks if the kind is valid
func (k MessageLogKind) Valid() bool {
	return k == MessageLogKindDelivery || k == MessageLogKindInvalid
}

// Scan implements the sql.Scanner interface for MessageLogKind
func (k *MessageLogKind) Scan(value any) error {
	if value == nil {
		*k = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*k = MessageLogKind(v)
	case []byte:
		*k = MessageLogKind(string(v))
	default:
		return fmt.Errorf("cannot scan %T into MessageLogKind", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for MessageLogKind
func (k MessageLogKind) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid MessageLogKind: %s", k)
	}
	return string(k), nil
}

// BroadcastMessageLog is the immutable record of one attempted send for one
// (broadcast, contact, setting). Delivery rows double as the idempotency
// source of truth: a step that already has a delivery row is never queued
// again for the same contact unless the step is recurring.
type BroadcastMessageLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	BroadcastID uint           `gorm:"not null;index:idx_message_logs_broadcast_id" json:"broadcast_id"`
	ContactID   uint           `gorm:"not null;index:idx_message_logs_contact_id" json:"contact_id"`
	SettingID   uint           `gorm:"not null;index:idx_message_logs_setting_id" json:"setting_id"`
	Kind        MessageLogKind `gorm:"type:varchar(16);not null;default:'delivery'" json:"kind"`

	// Delivered reflects the transport-level outcome; a failed transport
	// still completes the step for chain purposes.
	Delivered         bool      `gorm:"not null;default:false" json:"delivered"`
	Reason            *string   `gorm:"type:text" json:"reason,omitempty"`
	ProviderMessageID *string   `gorm:"type:varchar(128)" json:"provider_message_id,omitempty"`
	TrackingID        uuid.UUID `gorm:"type:uuid;not null" json:"tracking_id"`
	CreatedAt         time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_message_logs_created_at" json:"created_at"`
}

// TableName returns the table name for the model
func (BroadcastMessageLog) TableName() string {
	return "broadcast_message_logs"
}

// BeforeCreate is called before creating a new record
func (l *BroadcastMessageLog) BeforeCreate(tx *gorm.DB) error {
	if l.Kind == "" {
		l.Kind = MessageLogKindDelivery
	}
	if l.TrackingID == uuid.Nil {
		l.TrackingID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BroadcastMessageLogFilter represents filter criteria for message logs
type BroadcastMessageLogFilter struct {
	ID          *uint           `json:"id,omitempty"`
	BroadcastID *uint           `json:"broadcast_id,omitempty"`
	ContactID   *uint           `json:"contact_id,omitempty"`
	SettingID   *uint           `json:"setting_id,omitempty"`
	Kind        *MessageLogKind `json:"kind,omitempty"`
}
