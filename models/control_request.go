package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// ControlScope tells whether a control request targets a whole broadcast or
// one enrolled contact
type ControlScope string

const (
	ControlScopeBroadcast ControlScope = "broadcast"
	ControlScopeContact   ControlScope = "contact"
)

// Valid checks if the scope is valid
func (s ControlScope) Valid() bool {
	return s == ControlScopeBroadcast || s == ControlScopeContact
}

// Scan implements the sql.Scanner interface for ControlScope
func (s *ControlScope) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ControlScope(v)
	case []byte:
		*s = ControlScope(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ControlScope", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ControlScope
func (s ControlScope) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ControlScope: %s", s)
	}
	return string(s), nil
}

// ControlAction is the requested state change
type ControlAction string

const (
	ControlActionPause       ControlAction = "pause"
	ControlActionResume      ControlAction = "resume"
	ControlActionStop        ControlAction = "stop"
	ControlActionOptOut      ControlAction = "opt-out"
	ControlActionUnsubscribe ControlAction = "unsubscribe"
)

// Valid checks if the action is valid
func (a ControlAction) Valid() bool {
	switch a {
	case ControlActionPause, ControlActionResume, ControlActionStop,
		ControlActionOptOut, ControlActionUnsubscribe:
		return true
	default:
		return false
	}
}

// ValidForScope reports whether the action applies at the given scope
func (a ControlAction) ValidForScope(scope ControlScope) bool {
	switch scope {
	case ControlScopeBroadcast:
		return a == ControlActionPause || a == ControlActionResume || a == ControlActionStop
	case ControlScopeContact:
		return a == ControlActionPause || a == ControlActionResume ||
			a == ControlActionOptOut || a == ControlActionUnsubscribe
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ControlAction
func (a *ControlAction) Scan(value any) error {
	if value == nil {
		*a = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*a = ControlAction(v)
	case []byte:
		*a = ControlAction(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ControlAction", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ControlAction
func (a ControlAction) Value() (driver.Value, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid ControlAction: %s", a)
	}
	return string(a), nil
}

// ControlRequestStatus is the processing state of a control request row
type ControlRequestStatus string

const (
	ControlRequestStatusPending    ControlRequestStatus = "pending"
	ControlRequestStatusProcessing ControlRequestStatus = "processing"
	ControlRequestStatusCompleted  ControlRequestStatus = "completed"
	ControlRequestStatusFailed     ControlRequestStatus = "failed"
)

// Valid checks if the status is valid
func (s ControlRequestStatus) Valid() bool {
	switch s {
	case ControlRequestStatusPending, ControlRequestStatusProcessing,
		ControlRequestStatusCompleted, ControlRequestStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ControlRequestStatus
func (s *ControlRequestStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ControlRequestStatus(v)
	case []byte:
		*s = ControlRequestStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ControlRequestStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ControlRequestStatus
func (s ControlRequestStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ControlRequestStatus: %s", s)
	}
	return string(s), nil
}

// ControlRequest is an append-only pause/resume/stop/opt-out request row,
// processed at most once by the control poller.
type ControlRequest struct {
	ID           uint                 `gorm:"primaryKey" json:"id"`
	Scope        ControlScope         `gorm:"type:varchar(16);not null" json:"scope"`
	Action       ControlAction        `gorm:"type:varchar(16);not null" json:"action"`
	BroadcastID  uint                 `gorm:"not null;index:idx_control_requests_broadcast_id" json:"broadcast_id"`
	ContactID    *uint                `json:"contact_id,omitempty"`
	Status       ControlRequestStatus `gorm:"type:varchar(16);not null;default:'pending';index:idx_control_requests_status" json:"status"`
	FailedReason *string              `gorm:"type:text" json:"failed_reason,omitempty"`
	CreatedAt    time.Time            `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	ProcessedAt  *time.Time           `json:"processed_at,omitempty"`
}

// TableName returns the table name for the model
func (ControlRequest) TableName() string {
	return "control_requests"
}

// BeforeCreate is called before creating a new record
func (r *ControlRequest) BeforeCreate(tx *gorm.DB) error {
	if r.Status == "" {
		r.Status = ControlRequestStatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = utils.UTCNow()
	}
	return nil
}

// ControlRequestFilter represents filter criteria for control requests
type ControlRequestFilter struct {
	ID          *uint                 `json:"id,omitempty"`
	Scope       *ControlScope         `json:"scope,omitempty"`
	BroadcastID *uint                 `json:"broadcast_id,omitempty"`
	Status      *ControlRequestStatus `json:"status,omitempty"`
	IDAfter     *uint                 `json:"id_after,omitempty"`
}
