// Package businessflow contains the core business logic and use cases for queue entry dispatch
package businessflow

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/sepehrad/broadcastd/app/services"
	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/repository"
	"github.com/sepehrad/broadcastd/schedule"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// DispatchFlow takes one claimed queue entry through validation, the send
// attempt, and the durable bookkeeping that follows.
type DispatchFlow interface {
	Dispatch(ctx context.Context, entryID uint) error
}

// DispatchFlowImpl implements the dispatch business flow
type DispatchFlowImpl struct {
	queueRepo      repository.QueueEntryRepository
	settingRepo    repository.BroadcastSettingRepository
	broadcastRepo  repository.BroadcastRepository
	enrollmentRepo repository.BroadcastContactRepository
	contactRepo    repository.ContactRepository
	customerRepo   repository.CustomerRepository
	lineNumberRepo repository.LineNumberRepository
	walletRepo     repository.WalletRepository
	messageLogRepo repository.BroadcastMessageLogRepository
	summaryRepo    repository.BroadcastSummaryRepository
	forwardRepo    repository.ForwardQueueRepository
	optOuts        *OptOutCache
	sender         services.MessageSender
	db             *gorm.DB
}

// NewDispatchFlow creates a new dispatch flow instance
func NewDispatchFlow(
	queueRepo repository.QueueEntryRepository,
	settingRepo repository.BroadcastSettingRepository,
	broadcastRepo repository.BroadcastRepository,
	enrollmentRepo repository.BroadcastContactRepository,
	contactRepo repository.ContactRepository,
	customerRepo repository.CustomerRepository,
	lineNumberRepo repository.LineNumberRepository,
	walletRepo repository.WalletRepository,
	messageLogRepo repository.BroadcastMessageLogRepository,
	summaryRepo repository.BroadcastSummaryRepository,
	forwardRepo repository.ForwardQueueRepository,
	optOuts *OptOutCache,
	sender services.MessageSender,
	db *gorm.DB,
) DispatchFlow {
	return &DispatchFlowImpl{
		queueRepo:      queueRepo,
		settingRepo:    settingRepo,
		broadcastRepo:  broadcastRepo,
		enrollmentRepo: enrollmentRepo,
		contactRepo:    contactRepo,
		customerRepo:   customerRepo,
		lineNumberRepo: lineNumberRepo,
		walletRepo:     walletRepo,
		messageLogRepo: messageLogRepo,
		summaryRepo:    summaryRepo,
		forwardRepo:    forwardRepo,
		optOuts:        optOuts,
		sender:         sender,
		db:             db,
	}
}

// dispatchContext carries the records resolved during validation
type dispatchContext struct {
	entry      *models.QueueEntry
	setting    *models.BroadcastSetting
	broadcast  *models.Broadcast
	enrollment *models.BroadcastContact
	contact    *models.Contact
	customer   *models.Customer
}

// Dispatch processes one queue entry already claimed as processing. A failed
// precondition marks the entry failed with a reason and writes an invalid
// log; it is not an error of the flow itself. Only infrastructure failures
// return an error, leaving the entry in processing for the reclaim sweep.
func (s *DispatchFlowImpl) Dispatch(ctx context.Context, entryID uint) error {
	entry, err := s.queueRepo.ByID(ctx, entryID)
	if err != nil {
		return NewBusinessError("QUEUE_ENTRY_LOOKUP_FAILED", "Failed to lookup queue entry", err)
	}
	if entry == nil || entry.Status != models.QueueEntryStatusProcessing {
		// Claimed by another worker or already terminal
		return nil
	}

	dc, failReason, err := s.validate(ctx, entry)
	if err != nil {
		return NewBusinessError("DISPATCH_VALIDATION_FAILED", "Dispatch validation failed", err)
	}
	if failReason != "" {
		return s.reject(ctx, entry, failReason)
	}

	result := s.sender.Send(ctx, services.SendMessageRequest{
		LineNumber:  dc.broadcast.LineNumber.Number,
		Destination: dc.contact.PhoneNumber,
		Content:     dc.setting.Content,
	})

	return s.complete(ctx, dc, result)
}

// validate runs the precondition chain in order; the first failure wins and
// all later checks are skipped. It returns a non-empty reason for a
// validation failure and an error only for infrastructure problems.
func (s *DispatchFlowImpl) validate(ctx context.Context, entry *models.QueueEntry) (*dispatchContext, string, error) {
	dc := &dispatchContext{entry: entry}

	broadcast, err := s.broadcastRepo.ByID(ctx, entry.BroadcastID)
	if err != nil {
		return nil, "", err
	}
	dc.broadcast = broadcast
	if broadcast == nil {
		return dc, "broadcast not found", nil
	}

	customer, err := s.customerRepo.ByID(ctx, broadcast.CustomerID)
	if err != nil {
		return nil, "", err
	}
	dc.customer = customer
	if customer == nil {
		return dc, "customer not found", nil
	}
	if !utils.IsTrue(customer.IsActive) {
		return dc, "customer account is inactive", nil
	}

	if broadcast.Status != models.BroadcastStatusRunning {
		return dc, fmt.Sprintf("broadcast is %s, not running", broadcast.Status), nil
	}
	window, err := schedule.WindowOf(broadcast)
	if err != nil {
		return dc, fmt.Sprintf("broadcast window is invalid: %v", err), nil
	}
	if !window.IsDeliverable(utils.UTCNow()) {
		return dc, "current instant is outside the delivery window", nil
	}

	lineNumber, err := s.lineNumberRepo.ByID(ctx, broadcast.LineNumberID)
	if err != nil {
		return nil, "", err
	}
	if lineNumber == nil {
		return dc, "line number not found", nil
	}
	if !utils.IsTrue(lineNumber.IsVerified) || !utils.IsTrue(lineNumber.IsActive) {
		return dc, "line number is not verified or not active", nil
	}
	broadcast.LineNumber = lineNumber

	wallet, err := s.walletRepo.ByCustomerID(ctx, customer.BillingCustomerID())
	if err != nil {
		return nil, "", err
	}
	if wallet == nil || wallet.Balance <= 0 {
		// Credit exhaustion pauses the whole broadcast, not just this entry
		if err := s.pauseForCredit(ctx, broadcast); err != nil {
			return nil, "", err
		}
		return dc, "insufficient balance, broadcast paused for credit", nil
	}

	contact, err := s.contactRepo.ByID(ctx, entry.ContactID)
	if err != nil {
		return nil, "", err
	}
	dc.contact = contact
	if contact == nil {
		return dc, "contact not found", nil
	}
	if !utils.IsTrue(contact.IsActive) {
		return dc, "contact is inactive", nil
	}
	optedOut, err := s.optOuts.IsOptedOut(ctx, customer.ID, contact.ID)
	if err != nil {
		return nil, "", err
	}
	if optedOut {
		return dc, "contact has opted out", nil
	}

	enrollment, err := s.enrollmentRepo.ByBroadcastAndContact(ctx, entry.BroadcastID, entry.ContactID)
	if err != nil {
		return nil, "", err
	}
	dc.enrollment = enrollment
	if enrollment == nil {
		return dc, "enrollment not found", nil
	}
	if enrollment.Status != models.EnrollmentStatusRunning {
		return dc, fmt.Sprintf("enrollment is %s, not running", enrollment.Status), nil
	}

	setting, err := s.settingRepo.ByID(ctx, entry.SettingID)
	if err != nil {
		return nil, "", err
	}
	dc.setting = setting
	if setting == nil {
		return dc, "setting not found", nil
	}
	if setting.Status != models.SettingStatusActive {
		return dc, "setting is not active", nil
	}

	return dc, "", nil
}

// reject marks the entry failed, writes an invalid log row, and counts the
// failure. No send attempt, no chain advance.
func (s *DispatchFlowImpl) reject(ctx context.Context, entry *models.QueueEntry, reason string) error {
	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.queueRepo.MarkFailed(txCtx, entry.ID, reason); err != nil {
			return err
		}
		logRow := &models.BroadcastMessageLog{
			BroadcastID: entry.BroadcastID,
			ContactID:   entry.ContactID,
			SettingID:   entry.SettingID,
			Kind:        models.MessageLogKindInvalid,
			Delivered:   false,
			Reason:      &reason,
		}
		if err := s.messageLogRepo.Save(txCtx, logRow); err != nil {
			return err
		}
		return s.summaryRepo.Increment(txCtx, entry.BroadcastID, models.SummaryDelta{Failed: 1})
	})
	if err != nil {
		return NewBusinessError("DISPATCH_REJECT_FAILED", "Failed to record dispatch rejection", err)
	}
	return nil
}

// complete records the send outcome. Success and transport failure both
// complete the step: the delivery log is written, the queue entry removed,
// and for non-recurring steps a chain-advance row queued. Credit is deducted
// only on transport success.
func (s *DispatchFlowImpl) complete(ctx context.Context, dc *dispatchContext, result services.SendMessageResult) error {
	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		logRow := &models.BroadcastMessageLog{
			BroadcastID:       dc.entry.BroadcastID,
			ContactID:         dc.entry.ContactID,
			SettingID:         dc.entry.SettingID,
			Kind:              models.MessageLogKindDelivery,
			Delivered:         result.Success,
			ProviderMessageID: result.ProviderMessageID,
			Reason:            result.ErrorMessage,
		}
		if err := s.messageLogRepo.Save(txCtx, logRow); err != nil {
			return err
		}

		if err := s.enrollmentRepo.UpdateLastMessageAt(txCtx, dc.enrollment.ID, utils.UTCNow()); err != nil {
			return err
		}

		if err := s.queueRepo.Delete(txCtx, dc.entry.ID); err != nil {
			return err
		}

		if dc.setting.Type != models.SettingTypeRecurring {
			forward := &models.ForwardQueueEntry{
				BroadcastID: dc.entry.BroadcastID,
				ContactID:   dc.entry.ContactID,
				SettingID:   dc.entry.SettingID,
			}
			if err := s.forwardRepo.Save(txCtx, forward); err != nil {
				return err
			}
		}

		delta := models.SummaryDelta{}
		if result.Success {
			delta.Sent = 1
		} else {
			delta.Failed = 1
		}
		if err := s.summaryRepo.Increment(txCtx, dc.entry.BroadcastID, delta); err != nil {
			return err
		}

		if result.Success {
			cost := messageCost(dc.setting.Content)
			err := s.walletRepo.Debit(txCtx, dc.customer.BillingCustomerID(), cost)
			if errors.Is(err, repository.ErrInsufficientBalance) {
				// The message is already sent; pause further sends
				return s.pauseForCredit(txCtx, dc.broadcast)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return NewBusinessError("DISPATCH_COMPLETE_FAILED", "Failed to record dispatch outcome", err)
	}
	return nil
}

// pauseForCredit transitions the broadcast to paused-for-credit and tears
// down its pending work
func (s *DispatchFlowImpl) pauseForCredit(ctx context.Context, broadcast *models.Broadcast) error {
	if !broadcast.CanTransitionTo(models.BroadcastStatusPausedForCredit) {
		return nil
	}
	return repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.broadcastRepo.UpdateStatus(txCtx, broadcast.ID, models.BroadcastStatusPausedForCredit); err != nil {
			return err
		}
		_, err := s.queueRepo.DeletePendingByBroadcast(txCtx, broadcast.ID)
		return err
	})
}

// messageCost is the credit price of one message, one unit per 160-rune part
func messageCost(content string) int64 {
	runes := utf8.RuneCountInString(content)
	parts := (runes + 159) / 160
	if parts < 1 {
		parts = 1
	}
	return int64(parts)
}
