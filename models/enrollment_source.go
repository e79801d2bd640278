package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// SourceType names the kind of bulk contact source an enrollment row expands
type SourceType string

const (
	SourceTypeList        SourceType = "list"
	SourceTypeSegment     SourceType = "segment"
	SourceTypeTag         SourceType = "tag"
	SourceTypeSpreadsheet SourceType = "spreadsheet"
)

// Valid checks if the type is valid
func (t SourceType) Valid() bool {
	switch t {
	case SourceTypeList, SourceTypeSegment, SourceTypeTag, SourceTypeSpreadsheet:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for SourceType
func (t *SourceType) Scan(value any) error {
	if value == nil {
		*t = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*t = SourceType(v)
	case []byte:
		*t = SourceType(string(v))
	default:
		return fmt.Errorf("cannot scan %T into SourceType", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for SourceType
func (t SourceType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid SourceType: %s", t)
	}
	return string(t), nil
}

// SourceStatus is the expansion state of an enrollment source row
type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusCompleted  SourceStatus = "completed"
	SourceStatusFailed     SourceStatus = "failed"
)

// Valid checks if the status is valid
func (s SourceStatus) Valid() bool {
	switch s {
	case SourceStatusPending, SourceStatusProcessing,
		SourceStatusCompleted, SourceStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for SourceStatus
func (s *SourceStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = SourceStatus(v)
	case []byte:
		*s = SourceStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into SourceStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for SourceStatus
func (s SourceStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid SourceStatus: %s", s)
	}
	return string(s), nil
}

// EnrollmentSource is a durable bulk-source row: the entry poller expands it
// into individual broadcast_contacts rows in cursor batches, persisting the
// cursor after each batch so a restart resumes where it left off.
type EnrollmentSource struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	BroadcastID uint       `gorm:"not null;index:idx_enrollment_sources_broadcast_id" json:"broadcast_id"`
	Type        SourceType `gorm:"type:varchar(16);not null" json:"type"`

	// SourceRef addresses the source: list/segment/tag ID rendered as a
	// string, or the spreadsheet path for spreadsheet sources.
	SourceRef string `gorm:"type:varchar(512);not null" json:"source_ref"`

	// Cursor is the last contact ID already expanded
	Cursor       uint         `gorm:"not null;default:0" json:"cursor"`
	Status       SourceStatus `gorm:"type:varchar(16);not null;default:'pending';index:idx_enrollment_sources_status" json:"status"`
	FailedReason *string      `gorm:"type:text" json:"failed_reason,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (EnrollmentSource) TableName() string {
	return "enrollment_sources"
}

// BeforeCreate is called before creating a new record
func (s *EnrollmentSource) BeforeCreate(tx *gorm.DB) error {
	if s.Status == "" {
		s.Status = SourceStatusPending
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	return nil
}

// EnrollmentSourceFilter represents filter criteria for enrollment sources
type EnrollmentSourceFilter struct {
	ID          *uint         `json:"id,omitempty"`
	BroadcastID *uint         `json:"broadcast_id,omitempty"`
	Status      *SourceStatus `json:"status,omitempty"`
	IDAfter     *uint         `json:"id_after,omitempty"`
}
