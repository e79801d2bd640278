package models

import (
	"time"

	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// BroadcastSummary keeps per-broadcast counters in a single row. All
// increments go through the summary repository's transactional upsert so
// concurrent pause/resume/opt-out workers never lose updates.
type BroadcastSummary struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	BroadcastID uint `gorm:"not null;uniqueIndex:uk_broadcast_summaries_broadcast_id" json:"broadcast_id"`

	TotalEnrolled int64 `gorm:"not null;default:0" json:"total_enrolled"`
	Paused        int64 `gorm:"not null;default:0" json:"paused"`
	OptedOut      int64 `gorm:"not null;default:0" json:"opted_out"`
	Unsubscribed  int64 `gorm:"not null;default:0" json:"unsubscribed"`
	Sent          int64 `gorm:"not null;default:0" json:"sent"`
	Failed        int64 `gorm:"not null;default:0" json:"failed"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (BroadcastSummary) TableName() string {
	return "broadcast_summaries"
}

// BeforeCreate is called before creating a new record
func (s *BroadcastSummary) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	return nil
}

// SummaryDelta names the counters one mutation touches
type SummaryDelta struct {
	TotalEnrolled int64
	Paused        int64
	OptedOut      int64
	Unsubscribed  int64
	Sent          int64
	Failed        int64
}

// BroadcastSummaryFilter represents filter criteria for summaries
type BroadcastSummaryFilter struct {
	ID          *uint `json:"id,omitempty"`
	BroadcastID *uint `json:"broadcast_id,omitempty"`
}
