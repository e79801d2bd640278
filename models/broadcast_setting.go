package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// SettingType represents the kind of sequence step a setting describes
type SettingType string

const (
	SettingTypeImmediate SettingType = "immediate"
	SettingTypeSchedule  SettingType = "schedule"
	SettingTypeRecurring SettingType = "recurring"
)

// String returns the string representation of the type
func (t SettingType) String() string {
	return string(t)
}

// Valid checks if the type is valid
func (t SettingType) Valid() bool {
	switch t {
	case SettingTypeImmediate, SettingTypeSchedule, SettingTypeRecurring:
		return true
	default:
		return false
	}
}

// Rank orders step types in the priority chain: immediate steps run first,
// scheduled steps next, recurring steps last.
func (t SettingType) Rank() int {
	switch t {
	case SettingTypeImmediate:
		return 0
	case SettingTypeSchedule:
		return 1
	case SettingTypeRecurring:
		return 2
	default:
		return 3
	}
}

// Scan implements the sql.Scanner interface for SettingType
func (t *SettingType) Scan(value any) error {
	if value == nil {
		*t = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*t = SettingType(v)
	case []byte:
		*t = SettingType(string(v))
	default:
		return fmt.Errorf("cannot scan %T into SettingType", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for SettingType
func (t SettingType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid SettingType: %s", t)
	}
	return string(t), nil
}

// SettingStatus represents the status of a broadcast setting
type SettingStatus string

const (
	SettingStatusActive  SettingStatus = "active"
	SettingStatusDeleted SettingStatus = "deleted"
)

// Valid checks if the status is valid
func (s SettingStatus) Valid() bool {
	return s == SettingStatusActive || s == SettingStatusDeleted
}

// Scan implements the sql.Scanner interface for SettingStatus
func (s *SettingStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = SettingStatus(v)
	case []byte:
		*s = SettingStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into SettingStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for SettingStatus
func (s SettingStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid SettingStatus: %s", s)
	}
	return string(s), nil
}

// BroadcastSetting represents one stage in a broadcast's sequence.
//
// Day depends on the type: for schedule steps it is the offset in days from
// the contact's entry (or last delivered message on chain continuation); for
// recurring steps it is the repeat interval in days. Time is the
// time-of-day ("15:04") the step should fire at; nil means the computed
// instant keeps its own time of day.
type BroadcastSetting struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	BroadcastID uint          `gorm:"not null;index:idx_broadcast_settings_broadcast_id" json:"broadcast_id"`
	Type        SettingType   `gorm:"type:varchar(16);not null" json:"type"`
	Day         *int          `json:"day,omitempty"`
	Time        *string       `gorm:"type:varchar(8)" json:"time,omitempty"`
	Content     string        `gorm:"type:text;not null" json:"content"`
	Priority    int           `gorm:"not null;default:0" json:"priority"`
	Status      SettingStatus `gorm:"type:varchar(16);not null;default:'active';index:idx_broadcast_settings_status" json:"status"`
	CreatedAt   time.Time     `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt   *time.Time    `json:"updated_at,omitempty"`

	// Relations
	Broadcast *Broadcast `gorm:"foreignKey:BroadcastID;references:ID" json:"broadcast,omitempty"`
}

// TableName returns the table name for the model
func (BroadcastSetting) TableName() string {
	return "broadcast_settings"
}

// BeforeCreate is called before creating a new record
func (s *BroadcastSetting) BeforeCreate(tx *gorm.DB) error {
	if s.Status == "" {
		s.Status = SettingStatusActive
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (s *BroadcastSetting) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	s.UpdatedAt = &now
	return nil
}

// DayInterval returns the configured day offset, defaulting to zero
func (s *BroadcastSetting) DayInterval() int {
	if s.Day == nil {
		return 0
	}
	return *s.Day
}

// BroadcastSettingFilter represents filter criteria for broadcast settings
type BroadcastSettingFilter struct {
	ID          *uint          `json:"id,omitempty"`
	BroadcastID *uint          `json:"broadcast_id,omitempty"`
	Type        *SettingType   `json:"type,omitempty"`
	Status      *SettingStatus `json:"status,omitempty"`
	PriorityGT  *int           `json:"priority_gt,omitempty"`
}
