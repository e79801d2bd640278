// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/sepehrad/broadcastd/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// BroadcastRepository defines operations for broadcasts
type BroadcastRepository interface {
	Repository[models.Broadcast, models.BroadcastFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Broadcast, error)
	Update(ctx context.Context, broadcast *models.Broadcast) error
	UpdateStatus(ctx context.Context, id uint, status models.BroadcastStatus) error
}

// BroadcastSettingRepository defines operations for sequence steps
type BroadcastSettingRepository interface {
	Repository[models.BroadcastSetting, models.BroadcastSettingFilter]
	ListActive(ctx context.Context, broadcastID uint) ([]*models.BroadcastSetting, error)
	ListActiveByType(ctx context.Context, broadcastID uint, settingType models.SettingType) ([]*models.BroadcastSetting, error)
	// NextRung returns the active non-recurring settings sharing the lowest
	// priority strictly greater than afterPriority.
	NextRung(ctx context.Context, broadcastID uint, afterPriority int) ([]*models.BroadcastSetting, error)
	UpdatePriorities(ctx context.Context, settings []*models.BroadcastSetting) error
	SoftDelete(ctx context.Context, id uint) error
}

// BroadcastContactRepository defines operations for enrollments
type BroadcastContactRepository interface {
	Repository[models.BroadcastContact, models.BroadcastContactFilter]
	ByBroadcastAndContact(ctx context.Context, broadcastID, contactID uint) (*models.BroadcastContact, error)
	ListRunningBatch(ctx context.Context, broadcastID, afterID uint, limit int) ([]*models.BroadcastContact, error)
	UpdateStatus(ctx context.Context, id uint, status models.EnrollmentStatus) error
	ResetEntryDate(ctx context.Context, id uint, entryDate time.Time) error
	UpdateLastMessageAt(ctx context.Context, id uint, at time.Time) error
	UpdateNextAllowedMessageAt(ctx context.Context, id uint, at time.Time) error
}

// QueueEntryRepository defines operations for pending delivery work
type QueueEntryRepository interface {
	Repository[models.QueueEntry, models.QueueEntryFilter]
	// HasOpenEntry reports whether a pending-or-processing entry exists for
	// the (broadcast, contact, setting) triple.
	HasOpenEntry(ctx context.Context, broadcastID, contactID, settingID uint) (bool, error)
	ListDueBatch(ctx context.Context, dueBefore time.Time, afterID uint, limit int) ([]*models.QueueEntry, error)
	MarkProcessing(ctx context.Context, ids []uint) error
	MarkFailed(ctx context.Context, id uint, reason string) error
	Delete(ctx context.Context, id uint) error
	DeletePendingByBroadcast(ctx context.Context, broadcastID uint) (int64, error)
	DeletePendingByContact(ctx context.Context, broadcastID, contactID uint) (int64, error)
	// ReclaimStuck returns entries stuck in processing since before the
	// deadline back to pending, so a crashed worker's rows are retried.
	ReclaimStuck(ctx context.Context, deadline time.Time) (int64, error)
}

// ForwardQueueRepository defines operations for chain-advance records
type ForwardQueueRepository interface {
	Repository[models.ForwardQueueEntry, models.ForwardQueueEntryFilter]
	ListPendingBatch(ctx context.Context, afterID uint, limit int) ([]*models.ForwardQueueEntry, error)
	MarkProcessing(ctx context.Context, ids []uint) error
	// MarkPending returns a claimed row to the queue for a later cycle.
	MarkPending(ctx context.Context, id uint) error
	MarkCompleted(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, reason string) error
}

// BroadcastMessageLogRepository defines operations for delivery logs
type BroadcastMessageLogRepository interface {
	Repository[models.BroadcastMessageLog, models.BroadcastMessageLogFilter]
	// HasDelivery reports whether a delivery-kind log exists for the triple.
	HasDelivery(ctx context.Context, broadcastID, contactID, settingID uint) (bool, error)
	// LastDeliveryAt returns the creation time of the most recent
	// delivery-kind log for the triple, or nil when none exists.
	LastDeliveryAt(ctx context.Context, broadcastID, contactID, settingID uint) (*time.Time, error)
	// LastCompletedPriority resolves the highest priority among
	// non-recurring settings already delivered to the contact, or -1.
	LastCompletedPriority(ctx context.Context, broadcastID, contactID uint) (int, error)
}

// ControlRequestRepository defines operations for control requests
type ControlRequestRepository interface {
	Repository[models.ControlRequest, models.ControlRequestFilter]
	ListPendingBatch(ctx context.Context, afterID uint, limit int) ([]*models.ControlRequest, error)
	MarkProcessing(ctx context.Context, ids []uint) error
	MarkCompleted(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, reason string) error
}

// BroadcastSummaryRepository defines operations for per-broadcast counters
type BroadcastSummaryRepository interface {
	ByBroadcastID(ctx context.Context, broadcastID uint) (*models.BroadcastSummary, error)
	// Increment applies the delta with an upsert-or-increment inside the
	// surrounding transaction, so concurrent workers never lose updates.
	Increment(ctx context.Context, broadcastID uint, delta models.SummaryDelta) error
}

// OptOutRepository defines operations for the opt-out registry
type OptOutRepository interface {
	Repository[models.OptOut, models.OptOutFilter]
	IsOptedOut(ctx context.Context, customerID, contactID uint) (bool, error)
}

// CustomerRepository defines operations for customers
type CustomerRepository interface {
	Repository[models.Customer, models.CustomerFilter]
}

// ContactRepository defines operations for contacts
type ContactRepository interface {
	Repository[models.Contact, models.ContactFilter]
	// ListActiveBatch pages active contacts of one grouping source by a
	// strictly-increasing id cursor.
	ListActiveBatch(ctx context.Context, filter models.ContactFilter, afterID uint, limit int) ([]*models.Contact, error)
}

// LineNumberRepository defines operations for sending numbers
type LineNumberRepository interface {
	Repository[models.LineNumber, models.LineNumberFilter]
}

// WalletRepository defines operations for sending credit
type WalletRepository interface {
	Repository[models.Wallet, models.WalletFilter]
	ByCustomerID(ctx context.Context, customerID uint) (*models.Wallet, error)
	// Debit withdraws amount with a balance guard inside the update;
	// ErrInsufficientBalance when the guard rejects it.
	Debit(ctx context.Context, customerID uint, amount int64) error
}

// EnrollmentSourceRepository defines operations for bulk enrollment sources
type EnrollmentSourceRepository interface {
	Repository[models.EnrollmentSource, models.EnrollmentSourceFilter]
	ListOpenBatch(ctx context.Context, afterID uint, limit int) ([]*models.EnrollmentSource, error)
	UpdateCursor(ctx context.Context, id uint, cursor uint) error
	MarkStatus(ctx context.Context, id uint, status models.SourceStatus, reason *string) error
}
