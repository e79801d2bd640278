package scheduler

import (
	"context"
	"errors"

	businessflow "github.com/sepehrad/broadcastd/business_flow"
)

// runForwardOnce drains chain-advance records written by successful
// dispatches, re-running the sequence scheduler for each contact. A chain
// whose lock is held goes back to pending; the holder may have read the
// message logs before this dispatch's delivery log committed, so the record
// completes only once ScheduleChain itself succeeds.
func (e *Engine) runForwardOnce(ctx context.Context) {
	var afterID uint
	for {
		if ctx.Err() != nil {
			return
		}

		entries, err := e.forwardRepo.ListPendingBatch(ctx, afterID, e.cfg.BatchSize)
		if err != nil {
			e.logger.Printf("scheduler: list pending forward entries failed: %v", err)
			return
		}
		if len(entries) == 0 {
			return
		}
		pollerRowsTotal.WithLabelValues("forward").Add(float64(len(entries)))

		ids := make([]uint, 0, len(entries))
		for _, f := range entries {
			ids = append(ids, f.ID)
		}
		if err := e.forwardRepo.MarkProcessing(ctx, ids); err != nil {
			e.logger.Printf("scheduler: mark forward entries processing failed: %v", err)
			return
		}

		for _, entry := range entries {
			f := entry
			err := e.limiter.Go(ctx, func() {
				e.advanceChain(ctx, f.ID, f.BroadcastID, f.ContactID)
			})
			if err != nil {
				return
			}
		}

		afterID = entries[len(entries)-1].ID
	}
}

func (e *Engine) advanceChain(ctx context.Context, forwardID, broadcastID, contactID uint) {
	err := e.scheduler.ScheduleChain(ctx, broadcastID, contactID)
	switch {
	case err == nil:
		if err := e.forwardRepo.MarkCompleted(ctx, forwardID); err != nil {
			e.logger.Printf("scheduler: mark forward entry id=%d completed failed: %v", forwardID, err)
		}
		countTask("forward", nil)
	case businessflow.IsChainBusy(err):
		// Retry on the next cycle once the lock holder is done
		if err := e.forwardRepo.MarkPending(ctx, forwardID); err != nil {
			e.logger.Printf("scheduler: requeue forward entry id=%d failed: %v", forwardID, err)
		}
	case businessflow.IsBroadcastNotFound(err), businessflow.IsBroadcastNotRunning(err),
		businessflow.IsEnrollmentNotFound(err), errors.Is(err, businessflow.ErrEnrollmentNotRunning):
		// Chain ended between dispatch and advance; nothing left to schedule
		if err := e.forwardRepo.MarkFailed(ctx, forwardID, err.Error()); err != nil {
			e.logger.Printf("scheduler: mark forward entry id=%d failed failed: %v", forwardID, err)
		}
		countTask("forward", nil)
	default:
		countTask("forward", err)
		e.logger.Printf("scheduler: advance chain broadcast=%d contact=%d failed: %v", broadcastID, contactID, err)
		if err := e.forwardRepo.MarkFailed(ctx, forwardID, err.Error()); err != nil {
			e.logger.Printf("scheduler: mark forward entry id=%d failed failed: %v", forwardID, err)
		}
	}
}
