package scheduler

import (
	"context"
)

// runControlOnce drains pending control requests: claim a cursor batch, mark
// it processing in one update, then apply each request through the limiter
func (e *Engine) runControlOnce(ctx context.Context) {
	var afterID uint
	for {
		if ctx.Err() != nil {
			return
		}

		requests, err := e.controlRepo.ListPendingBatch(ctx, afterID, e.cfg.BatchSize)
		if err != nil {
			e.logger.Printf("scheduler: list pending control requests failed: %v", err)
			return
		}
		if len(requests) == 0 {
			return
		}
		pollerRowsTotal.WithLabelValues("control").Add(float64(len(requests)))

		ids := make([]uint, 0, len(requests))
		for _, r := range requests {
			ids = append(ids, r.ID)
		}
		if err := e.controlRepo.MarkProcessing(ctx, ids); err != nil {
			e.logger.Printf("scheduler: mark control requests processing failed: %v", err)
			return
		}

		for _, request := range requests {
			requestID := request.ID
			err := e.limiter.Go(ctx, func() {
				err := e.controlFlow.Apply(ctx, requestID)
				countTask("control", err)
				if err != nil {
					e.logger.Printf("scheduler: apply control request id=%d failed: %v", requestID, err)
				}
			})
			if err != nil {
				return
			}
		}

		afterID = requests[len(requests)-1].ID
	}
}
