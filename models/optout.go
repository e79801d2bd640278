package models

import (
	"time"

	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// OptOut is the durable registry of contacts that asked out of a customer's
// messaging. Consulted on enrollment and again during dispatch validation.
type OptOut struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	CustomerID uint          `gorm:"not null;index:idx_opt_outs_customer_contact" json:"customer_id"`
	ContactID  uint          `gorm:"not null;index:idx_opt_outs_customer_contact" json:"contact_id"`
	Action     ControlAction `gorm:"type:varchar(16);not null" json:"action"`

	// SourceBroadcastID records which broadcast the request came through
	SourceBroadcastID *uint     `json:"source_broadcast_id,omitempty"`
	CreatedAt         time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

// TableName returns the table name for the model
func (OptOut) TableName() string {
	return "opt_outs"
}

// BeforeCreate is called before creating a new record
func (o *OptOut) BeforeCreate(tx *gorm.DB) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = utils.UTCNow()
	}
	return nil
}

// OptOutFilter represents filter criteria for opt-out rows
type OptOutFilter struct {
	ID         *uint `json:"id,omitempty"`
	CustomerID *uint `json:"customer_id,omitempty"`
	ContactID  *uint `json:"contact_id,omitempty"`
}
