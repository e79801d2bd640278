// Package businessflow contains the core business logic and use cases for contact enrollment
package businessflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/sepehrad/broadcastd/app/services"
	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/repository"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// ContactEntryFlow enrolls contacts into broadcasts, either one at a time or
// by expanding a durable bulk source in cursor batches
type ContactEntryFlow interface {
	EnrollContact(ctx context.Context, broadcastID, contactID uint) error
	ExpandSource(ctx context.Context, sourceID uint) error
}

// ContactEntryFlowImpl implements the contact entry business flow
type ContactEntryFlowImpl struct {
	broadcastRepo  repository.BroadcastRepository
	contactRepo    repository.ContactRepository
	enrollmentRepo repository.BroadcastContactRepository
	sourceRepo     repository.EnrollmentSourceRepository
	summaryRepo    repository.BroadcastSummaryRepository
	optOuts        *OptOutCache
	sources        services.ContactSourceService
	scheduler      SchedulerFlow
	db             *gorm.DB
}

// NewContactEntryFlow creates a new contact entry flow instance
func NewContactEntryFlow(
	broadcastRepo repository.BroadcastRepository,
	contactRepo repository.ContactRepository,
	enrollmentRepo repository.BroadcastContactRepository,
	sourceRepo repository.EnrollmentSourceRepository,
	summaryRepo repository.BroadcastSummaryRepository,
	optOuts *OptOutCache,
	sources services.ContactSourceService,
	scheduler SchedulerFlow,
	db *gorm.DB,
) ContactEntryFlow {
	return &ContactEntryFlowImpl{
		broadcastRepo:  broadcastRepo,
		contactRepo:    contactRepo,
		enrollmentRepo: enrollmentRepo,
		sourceRepo:     sourceRepo,
		summaryRepo:    summaryRepo,
		optOuts:        optOuts,
		sources:        sources,
		scheduler:      scheduler,
		db:             db,
	}
}

// EnrollContact creates the single enrollment row for a (broadcast, contact)
// pair and schedules the first rung when the broadcast is already running.
// A duplicate enrollment is an error, never an upsert.
func (s *ContactEntryFlowImpl) EnrollContact(ctx context.Context, broadcastID, contactID uint) error {
	broadcast, err := s.broadcastRepo.ByID(ctx, broadcastID)
	if err != nil {
		return NewBusinessError("BROADCAST_LOOKUP_FAILED", "Failed to lookup broadcast", err)
	}
	if broadcast == nil {
		return NewBusinessError("BROADCAST_NOT_FOUND", "Broadcast not found", ErrBroadcastNotFound)
	}
	if broadcast.Status.IsTerminal() {
		return NewBusinessError("BROADCAST_TERMINAL", "Broadcast is in a terminal status", ErrBroadcastTerminal)
	}

	contact, err := s.contactRepo.ByID(ctx, contactID)
	if err != nil {
		return NewBusinessError("CONTACT_LOOKUP_FAILED", "Failed to lookup contact", err)
	}
	if contact == nil {
		return NewBusinessError("CONTACT_NOT_FOUND", "Contact not found", ErrContactNotFound)
	}
	if !utils.IsTrue(contact.IsActive) {
		return NewBusinessError("CONTACT_INACTIVE", "Contact is inactive", ErrContactInactive)
	}

	optedOut, err := s.optOuts.IsOptedOut(ctx, broadcast.CustomerID, contactID)
	if err != nil {
		return NewBusinessError("OPT_OUT_LOOKUP_FAILED", "Failed to check opt-out registry", err)
	}
	if optedOut {
		return NewBusinessError("CONTACT_OPTED_OUT", "Contact has opted out", ErrContactOptedOut)
	}

	existing, err := s.enrollmentRepo.ByBroadcastAndContact(ctx, broadcastID, contactID)
	if err != nil {
		return NewBusinessError("ENROLLMENT_LOOKUP_FAILED", "Failed to lookup enrollment", err)
	}
	if existing != nil {
		return NewBusinessError("ALREADY_ENROLLED", "Contact is already enrolled", ErrAlreadyEnrolled)
	}

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		enrollment := &models.BroadcastContact{
			BroadcastID: broadcastID,
			ContactID:   contactID,
			Status:      models.EnrollmentStatusRunning,
			EntryDate:   utils.UTCNow(),
		}
		if err := s.enrollmentRepo.Save(txCtx, enrollment); err != nil {
			return err
		}
		return s.summaryRepo.Increment(txCtx, broadcastID, models.SummaryDelta{TotalEnrolled: 1})
	})
	if err != nil {
		return NewBusinessError("ENROLLMENT_FAILED", "Failed to enroll contact", err)
	}

	if broadcast.Status == models.BroadcastStatusRunning {
		if err := s.scheduler.ScheduleChain(ctx, broadcastID, contactID); err != nil && !IsChainBusy(err) {
			return err
		}
	}

	return nil
}

// ExpandSource drains one bulk source into enrollments, persisting the cursor
// after every batch so a restart resumes where it left off. Contacts rejected
// by enrollment validation (already enrolled, opted out, inactive) are
// skipped; an expander failure fails the source with a reason.
func (s *ContactEntryFlowImpl) ExpandSource(ctx context.Context, sourceID uint) error {
	source, err := s.sourceRepo.ByID(ctx, sourceID)
	if err != nil {
		return NewBusinessError("SOURCE_LOOKUP_FAILED", "Failed to lookup enrollment source", err)
	}
	if source == nil || source.Status == models.SourceStatusCompleted || source.Status == models.SourceStatusFailed {
		return nil
	}

	cursor := source.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := s.sources.FindActiveBatch(ctx, source, cursor, utils.DefaultBatchSize)
		if err != nil {
			reason := fmt.Sprintf("source expansion failed: %v", err)
			_ = s.sourceRepo.MarkStatus(ctx, source.ID, models.SourceStatusFailed, &reason)
			return NewBusinessError("SOURCE_EXPANSION_FAILED", "Source expansion failed", err)
		}
		if len(batch) == 0 {
			return s.sourceRepo.MarkStatus(ctx, source.ID, models.SourceStatusCompleted, nil)
		}

		for _, contactID := range batch {
			err := s.EnrollContact(ctx, source.BroadcastID, contactID)
			if err != nil && !isSkippableEnrollmentError(err) {
				reason := fmt.Sprintf("enrollment of contact %d failed: %v", contactID, err)
				_ = s.sourceRepo.MarkStatus(ctx, source.ID, models.SourceStatusFailed, &reason)
				return err
			}
		}

		cursor = batch[len(batch)-1]
		if err := s.sourceRepo.UpdateCursor(ctx, source.ID, cursor); err != nil {
			return NewBusinessError("SOURCE_CURSOR_UPDATE_FAILED", "Failed to persist source cursor", err)
		}
	}
}

// isSkippableEnrollmentError reports whether a single contact's rejection
// should not fail the whole source
func isSkippableEnrollmentError(err error) bool {
	return errors.Is(err, ErrAlreadyEnrolled) ||
		errors.Is(err, ErrContactOptedOut) ||
		errors.Is(err, ErrContactInactive) ||
		errors.Is(err, ErrContactNotFound)
}
