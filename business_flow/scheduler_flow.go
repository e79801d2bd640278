// Package businessflow contains the core business logic and use cases for sequence scheduling
package businessflow

import (
	"context"
	"time"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/repository"
	"github.com/sepehrad/broadcastd/schedule"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// SchedulerFlow advances one contact's sequence chain: it decides which steps
// to schedule next and persists the pending queue rows. Invoked on enrollment,
// on resume, and after a step completes.
type SchedulerFlow interface {
	ScheduleChain(ctx context.Context, broadcastID, contactID uint) error
}

// SchedulerFlowImpl implements the sequence scheduling business flow
type SchedulerFlowImpl struct {
	broadcastRepo  repository.BroadcastRepository
	settingRepo    repository.BroadcastSettingRepository
	enrollmentRepo repository.BroadcastContactRepository
	queueRepo      repository.QueueEntryRepository
	messageLogRepo repository.BroadcastMessageLogRepository
	locks          ChainLocker
	db             *gorm.DB
}

// NewSchedulerFlow creates a new scheduler flow instance
func NewSchedulerFlow(
	broadcastRepo repository.BroadcastRepository,
	settingRepo repository.BroadcastSettingRepository,
	enrollmentRepo repository.BroadcastContactRepository,
	queueRepo repository.QueueEntryRepository,
	messageLogRepo repository.BroadcastMessageLogRepository,
	locks ChainLocker,
	db *gorm.DB,
) SchedulerFlow {
	return &SchedulerFlowImpl{
		broadcastRepo:  broadcastRepo,
		settingRepo:    settingRepo,
		enrollmentRepo: enrollmentRepo,
		queueRepo:      queueRepo,
		messageLogRepo: messageLogRepo,
		locks:          locks,
		db:             db,
	}
}

// ScheduleChain schedules the contact's due recurring steps and the next rung
// of non-recurring steps. The whole decision runs under the per-contact chain
// lock so a racing resume and dispatch completion cannot double-schedule.
func (s *SchedulerFlowImpl) ScheduleChain(ctx context.Context, broadcastID, contactID uint) error {
	broadcast, err := s.broadcastRepo.ByID(ctx, broadcastID)
	if err != nil {
		return NewBusinessError("BROADCAST_LOOKUP_FAILED", "Failed to lookup broadcast", err)
	}
	if broadcast == nil {
		return NewBusinessError("BROADCAST_NOT_FOUND", "Broadcast not found", ErrBroadcastNotFound)
	}
	if broadcast.Status != models.BroadcastStatusRunning {
		return NewBusinessError("BROADCAST_NOT_RUNNING", "Broadcast is not running", ErrBroadcastNotRunning)
	}

	enrollment, err := s.enrollmentRepo.ByBroadcastAndContact(ctx, broadcastID, contactID)
	if err != nil {
		return NewBusinessError("ENROLLMENT_LOOKUP_FAILED", "Failed to lookup enrollment", err)
	}
	if enrollment == nil {
		return NewBusinessError("ENROLLMENT_NOT_FOUND", "Enrollment not found", ErrEnrollmentNotFound)
	}
	if enrollment.Status != models.EnrollmentStatusRunning {
		return NewBusinessError("ENROLLMENT_NOT_RUNNING", "Enrollment is not running", ErrEnrollmentNotRunning)
	}

	release, ok, err := s.locks.TryLock(ctx, broadcastID, contactID)
	if err != nil {
		return NewBusinessError("CHAIN_LOCK_FAILED", "Failed to acquire chain lock", err)
	}
	if !ok {
		return NewBusinessError("CHAIN_BUSY", "Chain advance already in progress", ErrChainBusy)
	}
	defer release()

	window, err := schedule.WindowOf(broadcast)
	if err != nil {
		return NewBusinessError("WINDOW_INVALID", "Broadcast window is invalid", err)
	}

	var nextAllowed *time.Time

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		at, err := s.scheduleRecurring(txCtx, broadcast, enrollment, window)
		if err != nil {
			return err
		}
		nextAllowed = earliest(nextAllowed, at)

		at, err = s.scheduleNextRung(txCtx, broadcast, enrollment, window)
		if err != nil {
			return err
		}
		nextAllowed = earliest(nextAllowed, at)

		if nextAllowed != nil {
			if err := s.enrollmentRepo.UpdateNextAllowedMessageAt(txCtx, enrollment.ID, *nextAllowed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return NewBusinessError("CHAIN_SCHEDULING_FAILED", "Chain scheduling failed", err)
	}

	return nil
}

// scheduleRecurring builds queue rows for every due active recurring step.
// Each step repeats from its own last delivery, or from the enrollment's
// entry date before the first delivery.
func (s *SchedulerFlowImpl) scheduleRecurring(ctx context.Context, broadcast *models.Broadcast, enrollment *models.BroadcastContact, window *schedule.Window) (*time.Time, error) {
	settings, err := s.settingRepo.ListActiveByType(ctx, broadcast.ID, models.SettingTypeRecurring)
	if err != nil {
		return nil, err
	}

	var firstAt *time.Time
	for _, setting := range settings {
		interval := setting.DayInterval()
		if interval < 1 {
			continue
		}

		base := enrollment.EntryDate
		lastAt, err := s.messageLogRepo.LastDeliveryAt(ctx, broadcast.ID, enrollment.ContactID, setting.ID)
		if err != nil {
			return nil, err
		}
		if lastAt != nil {
			base = *lastAt
		}

		target := stepTarget(window, setting, base.AddDate(0, 0, interval))
		at, built, err := s.buildEntry(ctx, window, broadcast, enrollment, setting, target, interval)
		if err != nil {
			return nil, err
		}
		if built {
			firstAt = earliest(firstAt, &at)
		}
	}

	return firstAt, nil
}

// scheduleNextRung finds the lowest non-recurring priority strictly above the
// contact's last completed one and schedules every step on that rung. Higher
// rungs wait until this one is delivered.
func (s *SchedulerFlowImpl) scheduleNextRung(ctx context.Context, broadcast *models.Broadcast, enrollment *models.BroadcastContact, window *schedule.Window) (*time.Time, error) {
	lastPriority, err := s.messageLogRepo.LastCompletedPriority(ctx, broadcast.ID, enrollment.ContactID)
	if err != nil {
		return nil, err
	}

	rung, err := s.settingRepo.NextRung(ctx, broadcast.ID, lastPriority)
	if err != nil {
		return nil, err
	}
	if len(rung) == 0 {
		return nil, nil
	}

	// Scheduled steps count their day offset from the enrollment's entry,
	// or from the last delivered message when continuing the chain.
	base := enrollment.EntryDate
	if lastPriority >= 0 && enrollment.LastMessageAt != nil {
		base = *enrollment.LastMessageAt
	}

	var firstAt *time.Time
	for _, setting := range rung {
		var target time.Time
		switch setting.Type {
		case models.SettingTypeImmediate:
			target = utils.UTCNow()
		case models.SettingTypeSchedule:
			target = stepTarget(window, setting, base.AddDate(0, 0, setting.DayInterval()))
		default:
			continue
		}

		at, built, err := s.buildEntry(ctx, window, broadcast, enrollment, setting, target, 1)
		if err != nil {
			return nil, err
		}
		if built {
			firstAt = earliest(firstAt, &at)
		}
	}

	return firstAt, nil
}

// buildEntry is the queue entry builder and the sole idempotency boundary: a
// step that already has a delivery log (unless recurring) or an open queue
// row for the triple is never queued again. The target is first pushed to the
// next deliverable instant inside the window; a window with no future valid
// instant abandons the step silently.
func (s *SchedulerFlowImpl) buildEntry(ctx context.Context, window *schedule.Window, broadcast *models.Broadcast, enrollment *models.BroadcastContact, setting *models.BroadcastSetting, target time.Time, cadenceDays int) (time.Time, bool, error) {
	scheduledAt, ok := window.NextDeliverable(target, cadenceDays)
	if !ok {
		return time.Time{}, false, nil
	}

	if setting.Type != models.SettingTypeRecurring {
		delivered, err := s.messageLogRepo.HasDelivery(ctx, broadcast.ID, enrollment.ContactID, setting.ID)
		if err != nil {
			return time.Time{}, false, err
		}
		if delivered {
			return time.Time{}, false, nil
		}
	}

	open, err := s.queueRepo.HasOpenEntry(ctx, broadcast.ID, enrollment.ContactID, setting.ID)
	if err != nil {
		return time.Time{}, false, err
	}
	if open {
		return time.Time{}, false, nil
	}

	entry := &models.QueueEntry{
		BroadcastID: broadcast.ID,
		ContactID:   enrollment.ContactID,
		SettingID:   setting.ID,
		ScheduledAt: scheduledAt,
		Status:      models.QueueEntryStatusPending,
	}
	if err := s.queueRepo.Save(ctx, entry); err != nil {
		return time.Time{}, false, err
	}

	return scheduledAt, true, nil
}

// stepTarget applies the setting's time-of-day to the computed target date
func stepTarget(w *schedule.Window, setting *models.BroadcastSetting, target time.Time) time.Time {
	if setting.Time == nil {
		return target
	}
	tod, err := schedule.ParseTimeOfDay(*setting.Time)
	if err != nil {
		return target
	}
	return tod.On(target, w.Location)
}

func earliest(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Before(*a) {
		return b
	}
	return a
}
