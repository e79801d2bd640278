package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// QueueEntryStatus represents the dispatch state of a queue entry
type QueueEntryStatus string

const (
	QueueEntryStatusPending    QueueEntryStatus = "pending"
	QueueEntryStatusProcessing QueueEntryStatus = "processing"
	QueueEntryStatusSent       QueueEntryStatus = "sent"
	QueueEntryStatusFailed     QueueEntryStatus = "failed"
)

// String returns the string representation of the status
func (s QueueEntryStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s QueueEntryStatus) Valid() bool {
	switch s {
	case QueueEntryStatusPending, QueueEntryStatusProcessing,
		QueueEntryStatusSent, QueueEntryStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for QueueEntryStatus
func (s *QueueEntryStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = QueueEntryStatus(v)
	case []byte:
		*s = QueueEntryStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into QueueEntryStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for QueueEntryStatus
func (s QueueEntryStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid QueueEntryStatus: %s", s)
	}
	return string(s), nil
}

// QueueEntry is a durable, due-time-stamped unit of pending delivery work.
// At most one pending-or-processing entry may exist per
// (broadcast, contact, setting) triple; the scheduler flow enforces that
// with a check before insert rather than a unique constraint.
type QueueEntry struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	UUID         uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:uk_queue_entries_uuid" json:"uuid"`
	BroadcastID  uint             `gorm:"not null;index:idx_queue_entries_broadcast_id" json:"broadcast_id"`
	ContactID    uint             `gorm:"not null;index:idx_queue_entries_contact_id" json:"contact_id"`
	SettingID    uint             `gorm:"not null" json:"setting_id"`
	ScheduledAt  time.Time        `gorm:"not null;index:idx_queue_entries_scheduled_at" json:"scheduled_at"`
	Status       QueueEntryStatus `gorm:"type:varchar(16);not null;default:'pending';index:idx_queue_entries_status" json:"status"`
	FailedReason *string          `gorm:"type:text" json:"failed_reason,omitempty"`
	CreatedAt    time.Time        `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    *time.Time       `json:"updated_at,omitempty"`

	// Relations
	Broadcast *Broadcast        `gorm:"foreignKey:BroadcastID;references:ID" json:"broadcast,omitempty"`
	Contact   *Contact          `gorm:"foreignKey:ContactID;references:ID" json:"contact,omitempty"`
	Setting   *BroadcastSetting `gorm:"foreignKey:SettingID;references:ID" json:"setting,omitempty"`
}

// TableName returns the table name for the model
func (QueueEntry) TableName() string {
	return "queue_entries"
}

// BeforeCreate is called before creating a new record
func (q *QueueEntry) BeforeCreate(tx *gorm.DB) error {
	if q.UUID == uuid.Nil {
		q.UUID = uuid.New()
	}
	if q.Status == "" {
		q.Status = QueueEntryStatusPending
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (q *QueueEntry) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	q.UpdatedAt = &now
	return nil
}

// QueueEntryFilter represents filter criteria for queue entries
type QueueEntryFilter struct {
	ID          *uint             `json:"id,omitempty"`
	BroadcastID *uint             `json:"broadcast_id,omitempty"`
	ContactID   *uint             `json:"contact_id,omitempty"`
	SettingID   *uint             `json:"setting_id,omitempty"`
	Status      *QueueEntryStatus `json:"status,omitempty"`
	DueBefore   *time.Time        `json:"due_before,omitempty"`
	IDAfter     *uint             `json:"id_after,omitempty"`
}

// ForwardQueueStatus represents the state of a chain-advance record
type ForwardQueueStatus string

const (
	ForwardQueueStatusPending    ForwardQueueStatus = "pending"
	ForwardQueueStatusProcessing ForwardQueueStatus = "processing"
	ForwardQueueStatusCompleted  ForwardQueueStatus = "completed"
	ForwardQueueStatusFailed     ForwardQueueStatus = "failed"
)

// Valid checks if the status is valid
func (s ForwardQueueStatus) Valid() bool {
	switch s {
	case ForwardQueueStatusPending, ForwardQueueStatusProcessing,
		ForwardQueueStatusCompleted, ForwardQueueStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ForwardQueueStatus
func (s *ForwardQueueStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ForwardQueueStatus(v)
	case []byte:
		*s = ForwardQueueStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ForwardQueueStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ForwardQueueStatus
func (s ForwardQueueStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ForwardQueueStatus: %s", s)
	}
	return string(s), nil
}

// ForwardQueueEntry records that a non-recurring step completed for a
// contact and the next rung of the chain should be scheduled. Written by the
// dispatch flow after delivery is durable, drained by the forward poller.
// Keeping the advance as a durable row makes each dispatch unit small and
// independently retryable instead of a recursive call.
type ForwardQueueEntry struct {
	ID           uint               `gorm:"primaryKey" json:"id"`
	BroadcastID  uint               `gorm:"not null;index:idx_forward_queue_broadcast_id" json:"broadcast_id"`
	ContactID    uint               `gorm:"not null" json:"contact_id"`
	SettingID    uint               `gorm:"not null" json:"setting_id"`
	Status       ForwardQueueStatus `gorm:"type:varchar(16);not null;default:'pending';index:idx_forward_queue_status" json:"status"`
	FailedReason *string            `gorm:"type:text" json:"failed_reason,omitempty"`
	CreatedAt    time.Time          `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    *time.Time         `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (ForwardQueueEntry) TableName() string {
	return "forward_queue_entries"
}

// BeforeCreate is called before creating a new record
func (f *ForwardQueueEntry) BeforeCreate(tx *gorm.DB) error {
	if f.Status == "" {
		f.Status = ForwardQueueStatusPending
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = utils.UTCNow()
	}
	return nil
}

// ForwardQueueEntryFilter represents filter criteria for forward queue rows
type ForwardQueueEntryFilter struct {
	ID          *uint               `json:"id,omitempty"`
	BroadcastID *uint               `json:"broadcast_id,omitempty"`
	ContactID   *uint               `json:"contact_id,omitempty"`
	Status      *ForwardQueueStatus `json:"status,omitempty"`
	IDAfter     *uint               `json:"id_after,omitempty"`
}
