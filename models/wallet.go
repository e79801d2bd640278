package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// Wallet holds the sending credit of one customer. Debits happen only after
// a confirmed transport success, inside the same transaction as the message
// log write, with a balance guard in the update itself.
type Wallet struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_wallets_uuid" json:"uuid"`
	CustomerID uint      `gorm:"not null;uniqueIndex:uk_wallets_customer_id" json:"customer_id"`

	// Balance is in the smallest credit unit (one unit per message part)
	Balance int64 `gorm:"not null;default:0" json:"balance"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Wallet) TableName() string {
	return "wallets"
}

// BeforeCreate is called before creating a new record
func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.UUID == uuid.Nil {
		w.UUID = uuid.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = utils.UTCNow()
	}
	return nil
}

// WalletFilter represents filter criteria for wallets
type WalletFilter struct {
	ID         *uint `json:"id,omitempty"`
	CustomerID *uint `json:"customer_id,omitempty"`
}

// LineNumber is a sending number. Dispatch validation requires the
// broadcast's line number to be both verified and active.
type LineNumber struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CustomerID uint   `gorm:"not null;index:idx_line_numbers_customer_id" json:"customer_id"`
	Number     string `gorm:"type:varchar(32);not null;uniqueIndex:uk_line_numbers_number" json:"number"`
	IsVerified *bool  `gorm:"not null;default:false" json:"is_verified"`
	IsActive   *bool  `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (LineNumber) TableName() string {
	return "line_numbers"
}

// BeforeCreate is called before creating a new record
func (l *LineNumber) BeforeCreate(tx *gorm.DB) error {
	if l.IsVerified == nil {
		l.IsVerified = utils.ToPtr(false)
	}
	if l.IsActive == nil {
		l.IsActive = utils.ToPtr(true)
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = utils.UTCNow()
	}
	return nil
}

// LineNumberFilter represents filter criteria for line numbers
type LineNumberFilter struct {
	ID         *uint   `json:"id,omitempty"`
	CustomerID *uint   `json:"customer_id,omitempty"`
	Number     *string `json:"number,omitempty"`
}
