// Package businessflow contains the core business logic and use cases for pause, resume, and opt-out processing
package businessflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/repository"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// ControlFlow applies one claimed control request: pause, resume, or stop for
// a whole broadcast, or pause, resume, opt-out, unsubscribe for a single
// contact's enrollment
type ControlFlow interface {
	Apply(ctx context.Context, requestID uint) error
}

// ControlFlowImpl implements the control request business flow
type ControlFlowImpl struct {
	controlRepo    repository.ControlRequestRepository
	broadcastRepo  repository.BroadcastRepository
	enrollmentRepo repository.BroadcastContactRepository
	queueRepo      repository.QueueEntryRepository
	summaryRepo    repository.BroadcastSummaryRepository
	optOutRepo     repository.OptOutRepository
	optOuts        *OptOutCache
	scheduler      SchedulerFlow
	db             *gorm.DB
}

// NewControlFlow creates a new control flow instance
func NewControlFlow(
	controlRepo repository.ControlRequestRepository,
	broadcastRepo repository.BroadcastRepository,
	enrollmentRepo repository.BroadcastContactRepository,
	queueRepo repository.QueueEntryRepository,
	summaryRepo repository.BroadcastSummaryRepository,
	optOutRepo repository.OptOutRepository,
	optOuts *OptOutCache,
	scheduler SchedulerFlow,
	db *gorm.DB,
) ControlFlow {
	return &ControlFlowImpl{
		controlRepo:    controlRepo,
		broadcastRepo:  broadcastRepo,
		enrollmentRepo: enrollmentRepo,
		queueRepo:      queueRepo,
		summaryRepo:    summaryRepo,
		optOutRepo:     optOutRepo,
		optOuts:        optOuts,
		scheduler:      scheduler,
		db:             db,
	}
}

// Apply processes one control request already claimed as processing. A request
// rejected by validation is marked failed with its reason and never retried;
// only infrastructure failures return an error, leaving the row in processing
// for the reclaim sweep.
func (s *ControlFlowImpl) Apply(ctx context.Context, requestID uint) error {
	request, err := s.controlRepo.ByID(ctx, requestID)
	if err != nil {
		return NewBusinessError("CONTROL_REQUEST_LOOKUP_FAILED", "Failed to lookup control request", err)
	}
	if request == nil || request.Status != models.ControlRequestStatusProcessing {
		// Claimed by another worker or already terminal
		return nil
	}

	var applyErr error
	switch request.Scope {
	case models.ControlScopeBroadcast:
		applyErr = s.applyBroadcast(ctx, request)
	case models.ControlScopeContact:
		applyErr = s.applyContact(ctx, request)
	default:
		applyErr = NewBusinessError("INVALID_SCOPE", fmt.Sprintf("Unknown control scope %q", request.Scope), ErrInvalidAction)
	}

	if applyErr != nil {
		var bizErr *BusinessError
		if errors.As(applyErr, &bizErr) {
			if err := s.controlRepo.MarkFailed(ctx, request.ID, applyErr.Error()); err != nil {
				return NewBusinessError("CONTROL_REQUEST_UPDATE_FAILED", "Failed to mark control request failed", err)
			}
			return nil
		}
		return applyErr
	}

	if err := s.controlRepo.MarkCompleted(ctx, request.ID); err != nil {
		return NewBusinessError("CONTROL_REQUEST_UPDATE_FAILED", "Failed to mark control request completed", err)
	}
	return nil
}

// applyBroadcast handles pause, resume, and stop at broadcast scope
func (s *ControlFlowImpl) applyBroadcast(ctx context.Context, request *models.ControlRequest) error {
	broadcast, err := s.broadcastRepo.ByID(ctx, request.BroadcastID)
	if err != nil {
		return err
	}
	if broadcast == nil {
		return NewBusinessError("BROADCAST_NOT_FOUND", "Broadcast not found", ErrBroadcastNotFound)
	}

	switch request.Action {
	case models.ControlActionPause:
		return s.transitionBroadcast(ctx, broadcast, models.BroadcastStatusPaused, true)
	case models.ControlActionStop:
		return s.transitionBroadcast(ctx, broadcast, models.BroadcastStatusStopped, true)
	case models.ControlActionResume:
		if err := s.transitionBroadcast(ctx, broadcast, models.BroadcastStatusRunning, false); err != nil {
			return err
		}
		return s.rescheduleRunning(ctx, broadcast.ID)
	default:
		return NewBusinessError("INVALID_ACTION",
			fmt.Sprintf("Action %q is not valid for broadcast scope", request.Action), ErrInvalidAction)
	}
}

// transitionBroadcast moves the broadcast to the target status and, when
// tearing down, removes its pending queue entries in the same transaction
func (s *ControlFlowImpl) transitionBroadcast(ctx context.Context, broadcast *models.Broadcast, target models.BroadcastStatus, clearPending bool) error {
	if !broadcast.CanTransitionTo(target) {
		return NewBusinessError("INVALID_TRANSITION",
			fmt.Sprintf("Broadcast cannot move from %s to %s", broadcast.Status, target), ErrInvalidTransition)
	}
	return repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.broadcastRepo.UpdateStatus(txCtx, broadcast.ID, target); err != nil {
			return err
		}
		if clearPending {
			_, err := s.queueRepo.DeletePendingByBroadcast(txCtx, broadcast.ID)
			return err
		}
		return nil
	})
}

// rescheduleRunning walks the broadcast's running enrollments in id batches
// and rebuilds each chain. Scheduling is idempotent, so a chain that is busy
// right now is simply skipped; the next poll covers it.
func (s *ControlFlowImpl) rescheduleRunning(ctx context.Context, broadcastID uint) error {
	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		enrollments, err := s.enrollmentRepo.ListRunningBatch(ctx, broadcastID, afterID, utils.DefaultBatchSize)
		if err != nil {
			return err
		}
		if len(enrollments) == 0 {
			return nil
		}

		for _, enrollment := range enrollments {
			err := s.scheduler.ScheduleChain(ctx, broadcastID, enrollment.ContactID)
			if err != nil && !IsChainBusy(err) {
				return err
			}
		}
		afterID = enrollments[len(enrollments)-1].ID
	}
}

// applyContact handles pause, resume, opt-out, and unsubscribe for one
// contact's enrollment
func (s *ControlFlowImpl) applyContact(ctx context.Context, request *models.ControlRequest) error {
	if request.ContactID == nil {
		return NewBusinessError("CONTACT_REQUIRED", "Contact-scoped request has no contact", ErrContactNotFound)
	}
	contactID := *request.ContactID

	broadcast, err := s.broadcastRepo.ByID(ctx, request.BroadcastID)
	if err != nil {
		return err
	}
	if broadcast == nil {
		return NewBusinessError("BROADCAST_NOT_FOUND", "Broadcast not found", ErrBroadcastNotFound)
	}

	enrollment, err := s.enrollmentRepo.ByBroadcastAndContact(ctx, request.BroadcastID, contactID)
	if err != nil {
		return err
	}
	if enrollment == nil {
		return NewBusinessError("ENROLLMENT_NOT_FOUND", "Contact is not enrolled in this broadcast", ErrEnrollmentNotFound)
	}

	switch request.Action {
	case models.ControlActionPause:
		return s.pauseEnrollment(ctx, enrollment)
	case models.ControlActionResume:
		return s.resumeEnrollment(ctx, broadcast, enrollment)
	case models.ControlActionOptOut, models.ControlActionUnsubscribe:
		return s.closeEnrollment(ctx, broadcast, enrollment, request.Action)
	default:
		return NewBusinessError("INVALID_ACTION",
			fmt.Sprintf("Action %q is not valid for contact scope", request.Action), ErrInvalidAction)
	}
}

// pauseEnrollment stops a running chain: pending entries go away, the
// enrollment waits for a resume
func (s *ControlFlowImpl) pauseEnrollment(ctx context.Context, enrollment *models.BroadcastContact) error {
	if enrollment.Status != models.EnrollmentStatusRunning {
		return NewBusinessError("ENROLLMENT_NOT_RUNNING",
			fmt.Sprintf("Enrollment is %s, not running", enrollment.Status), ErrEnrollmentNotRunning)
	}
	return repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.enrollmentRepo.UpdateStatus(txCtx, enrollment.ID, models.EnrollmentStatusPaused); err != nil {
			return err
		}
		if _, err := s.queueRepo.DeletePendingByContact(txCtx, enrollment.BroadcastID, enrollment.ContactID); err != nil {
			return err
		}
		return s.summaryRepo.Increment(txCtx, enrollment.BroadcastID, models.SummaryDelta{Paused: 1})
	})
}

// resumeEnrollment restarts a paused chain. The entry date is reset so
// scheduled steps compute against the re-entry instant, then the chain is
// rebuilt when the broadcast itself is running.
func (s *ControlFlowImpl) resumeEnrollment(ctx context.Context, broadcast *models.Broadcast, enrollment *models.BroadcastContact) error {
	if enrollment.Status != models.EnrollmentStatusPaused {
		return NewBusinessError("ENROLLMENT_NOT_PAUSED",
			fmt.Sprintf("Enrollment is %s, not paused", enrollment.Status), ErrEnrollmentNotPaused)
	}
	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.enrollmentRepo.UpdateStatus(txCtx, enrollment.ID, models.EnrollmentStatusRunning); err != nil {
			return err
		}
		if err := s.enrollmentRepo.ResetEntryDate(txCtx, enrollment.ID, utils.UTCNow()); err != nil {
			return err
		}
		return s.summaryRepo.Increment(txCtx, enrollment.BroadcastID, models.SummaryDelta{Paused: -1})
	})
	if err != nil {
		return err
	}

	if broadcast.Status == models.BroadcastStatusRunning {
		if err := s.scheduler.ScheduleChain(ctx, broadcast.ID, enrollment.ContactID); err != nil && !IsChainBusy(err) {
			return err
		}
	}
	return nil
}

// closeEnrollment terminates the chain for good and records the contact in
// the customer-wide opt-out registry
func (s *ControlFlowImpl) closeEnrollment(ctx context.Context, broadcast *models.Broadcast, enrollment *models.BroadcastContact, action models.ControlAction) error {
	if enrollment.Status.IsTerminal() {
		return NewBusinessError("ENROLLMENT_TERMINAL",
			fmt.Sprintf("Enrollment is already %s", enrollment.Status), ErrEnrollmentTerminal)
	}

	target := models.EnrollmentStatusOptOut
	delta := models.SummaryDelta{OptedOut: 1}
	if action == models.ControlActionUnsubscribe {
		target = models.EnrollmentStatusUnsubscribe
		delta = models.SummaryDelta{Unsubscribed: 1}
	}
	if enrollment.Status == models.EnrollmentStatusPaused {
		delta.Paused = -1
	}

	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.enrollmentRepo.UpdateStatus(txCtx, enrollment.ID, target); err != nil {
			return err
		}
		if _, err := s.queueRepo.DeletePendingByContact(txCtx, enrollment.BroadcastID, enrollment.ContactID); err != nil {
			return err
		}
		optOut := &models.OptOut{
			CustomerID:        broadcast.CustomerID,
			ContactID:         enrollment.ContactID,
			Action:            action,
			SourceBroadcastID: &broadcast.ID,
		}
		if err := s.optOutRepo.Save(txCtx, optOut); err != nil {
			return err
		}
		return s.summaryRepo.Increment(txCtx, enrollment.BroadcastID, delta)
	})
	if err != nil {
		return err
	}

	s.optOuts.MarkOptedOut(ctx, broadcast.CustomerID, enrollment.ContactID)
	return nil
}
