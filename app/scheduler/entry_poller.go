package scheduler

import (
	"context"

	"github.com/sepehrad/broadcastd/models"
)

// runEntryOnce drains open enrollment sources. A source found in processing
// status is an interrupted expansion; its persisted cursor makes re-running
// it safe, so it is picked up exactly like a pending one.
func (e *Engine) runEntryOnce(ctx context.Context) {
	var afterID uint
	for {
		if ctx.Err() != nil {
			return
		}

		sources, err := e.sourceRepo.ListOpenBatch(ctx, afterID, e.cfg.BatchSize)
		if err != nil {
			e.logger.Printf("scheduler: list open enrollment sources failed: %v", err)
			return
		}
		if len(sources) == 0 {
			return
		}
		pollerRowsTotal.WithLabelValues("entry").Add(float64(len(sources)))

		for _, source := range sources {
			if source.Status == models.SourceStatusPending {
				if err := e.sourceRepo.MarkStatus(ctx, source.ID, models.SourceStatusProcessing, nil); err != nil {
					e.logger.Printf("scheduler: mark source id=%d processing failed: %v", source.ID, err)
					continue
				}
			}

			sourceID := source.ID
			err := e.limiter.Go(ctx, func() {
				err := e.entryFlow.ExpandSource(ctx, sourceID)
				countTask("entry", err)
				if err != nil {
					e.logger.Printf("scheduler: expand source id=%d failed: %v", sourceID, err)
				}
			})
			if err != nil {
				return
			}
		}

		afterID = sources[len(sources)-1].ID
	}
}
