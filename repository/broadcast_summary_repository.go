package repository

import (
	"context"
	"errors"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// BroadcastSummaryRepositoryImpl implements the BroadcastSummaryRepository interface
type BroadcastSummaryRepositoryImpl struct {
	*BaseRepository[models.BroadcastSummary, models.BroadcastSummaryFilter]
}

// NewBroadcastSummaryRepository creates a new summary repository
func NewBroadcastSummaryRepository(db *gorm.DB) BroadcastSummaryRepository {
	return &BroadcastSummaryRepositoryImpl{
		BaseRepository: NewBaseRepository[models.BroadcastSummary, models.BroadcastSummaryFilter](db),
	}
}

// ByBroadcastID retrieves the summary row of a broadcast
func (r *BroadcastSummaryRepositoryImpl) ByBroadcastID(ctx context.Context, broadcastID uint) (*models.BroadcastSummary, error) {
	db := r.getDB(ctx)

	var summary models.BroadcastSummary
	err := db.Where("broadcast_id = ?", broadcastID).Last(&summary).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &summary, nil
}

// Increment applies the delta with an insert-or-increment on the unique
// broadcast_id index, so concurrent workers never lose counter updates
func (r *BroadcastSummaryRepositoryImpl) Increment(ctx context.Context, broadcastID uint, delta models.SummaryDelta) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Exec(`
		INSERT INTO broadcast_summaries
			(broadcast_id, total_enrolled, paused, opted_out, unsubscribed, sent, failed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (broadcast_id) DO UPDATE SET
			total_enrolled = broadcast_summaries.total_enrolled + EXCLUDED.total_enrolled,
			paused         = broadcast_summaries.paused + EXCLUDED.paused,
			opted_out      = broadcast_summaries.opted_out + EXCLUDED.opted_out,
			unsubscribed   = broadcast_summaries.unsubscribed + EXCLUDED.unsubscribed,
			sent           = broadcast_summaries.sent + EXCLUDED.sent,
			failed         = broadcast_summaries.failed + EXCLUDED.failed,
			updated_at     = EXCLUDED.created_at`,
		broadcastID,
		delta.TotalEnrolled, delta.Paused, delta.OptedOut,
		delta.Unsubscribed, delta.Sent, delta.Failed,
		utils.UTCNow(),
	).Error
	if err != nil {
		return err
	}

	return nil
}
