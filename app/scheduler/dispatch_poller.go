package scheduler

import (
	"context"

	"github.com/sepehrad/broadcastd/utils"
)

// runDispatchOnce first sweeps stuck processing entries back to pending, then
// drains due queue entries through the dispatch flow
func (e *Engine) runDispatchOnce(ctx context.Context) {
	e.reclaimStuck(ctx)

	now := utils.UTCNow()
	var afterID uint
	for {
		if ctx.Err() != nil {
			return
		}

		entries, err := e.queueRepo.ListDueBatch(ctx, now, afterID, e.cfg.BatchSize)
		if err != nil {
			e.logger.Printf("scheduler: list due queue entries failed: %v", err)
			return
		}
		if len(entries) == 0 {
			return
		}
		pollerRowsTotal.WithLabelValues("dispatch").Add(float64(len(entries)))

		ids := make([]uint, 0, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.ID)
		}
		if err := e.queueRepo.MarkProcessing(ctx, ids); err != nil {
			e.logger.Printf("scheduler: mark queue entries processing failed: %v", err)
			return
		}

		for _, entry := range entries {
			entryID := entry.ID
			err := e.limiter.Go(ctx, func() {
				err := e.dispatchFlow.Dispatch(ctx, entryID)
				countTask("dispatch", err)
				if err != nil {
					// Entry stays in processing; the reclaim sweep retries it
					e.logger.Printf("scheduler: dispatch queue entry id=%d failed: %v", entryID, err)
				}
			})
			if err != nil {
				return
			}
		}

		afterID = entries[len(entries)-1].ID
	}
}

// reclaimStuck returns entries held in processing beyond the configured
// timeout to pending. Covers workers that died between claim and completion.
func (e *Engine) reclaimStuck(ctx context.Context) {
	deadline := utils.UTCNow().Add(-e.cfg.ProcessingTimeout)
	reclaimed, err := e.queueRepo.ReclaimStuck(ctx, deadline)
	if err != nil {
		e.logger.Printf("scheduler: reclaim sweep failed: %v", err)
		return
	}
	if reclaimed > 0 {
		reclaimedEntriesTotal.Add(float64(reclaimed))
		e.logger.Printf("scheduler: reclaimed %d stuck queue entries", reclaimed)
	}
}
