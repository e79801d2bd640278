package repository

import (
	"context"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// ForwardQueueRepositoryImpl implements the ForwardQueueRepository interface
type ForwardQueueRepositoryImpl struct {
	*BaseRepository[models.ForwardQueueEntry, models.ForwardQueueEntryFilter]
}

// NewForwardQueueRepository creates a new forward queue repository
func NewForwardQueueRepository(db *gorm.DB) ForwardQueueRepository {
	return &ForwardQueueRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ForwardQueueEntry, models.ForwardQueueEntryFilter](db),
	}
}

// ListPendingBatch pages pending chain-advance rows by id cursor
func (r *ForwardQueueRepositoryImpl) ListPendingBatch(ctx context.Context, afterID uint, limit int) ([]*models.ForwardQueueEntry, error) {
	status := models.ForwardQueueStatusPending
	filter := models.ForwardQueueEntryFilter{
		Status:  &status,
		IDAfter: &afterID,
	}
	return r.ByFilter(ctx, filter, "id ASC", limit, 0)
}

// MarkProcessing claims a batch of rows before they are handed to workers
func (r *ForwardQueueRepositoryImpl) MarkProcessing(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.updateWhere(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("id IN ?", ids)
	}, map[string]any{
		"status":     models.ForwardQueueStatusProcessing,
		"updated_at": utils.UTCNow(),
	})
}

// MarkPending returns a claimed row to the queue for a later cycle
func (r *ForwardQueueRepositoryImpl) MarkPending(ctx context.Context, id uint) error {
	return r.updateWhere(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}, map[string]any{
		"status":     models.ForwardQueueStatusPending,
		"updated_at": utils.UTCNow(),
	})
}

// MarkCompleted finishes a chain-advance row
func (r *ForwardQueueRepositoryImpl) MarkCompleted(ctx context.Context, id uint) error {
	return r.updateWhere(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}, map[string]any{
		"status":     models.ForwardQueueStatusCompleted,
		"updated_at": utils.UTCNow(),
	})
}

// MarkFailed records a terminal failure with its reason
func (r *ForwardQueueRepositoryImpl) MarkFailed(ctx context.Context, id uint, reason string) error {
	return r.updateWhere(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}, map[string]any{
		"status":        models.ForwardQueueStatusFailed,
		"failed_reason": reason,
		"updated_at":    utils.UTCNow(),
	})
}

func (r *ForwardQueueRepositoryImpl) updateWhere(ctx context.Context, scope func(*gorm.DB) *gorm.DB, columns map[string]any) error {
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

	err = scope(db.Model(&models.ForwardQueueEntry{})).Updates(columns).Error
	if err != nil {
		return err
	}

	return nil
}

// ByFilter retrieves forward queue rows based on filter criteria
func (r *ForwardQueueRepositoryImpl) ByFilter(ctx context.Context, filter models.ForwardQueueEntryFilter, orderBy string, limit, offset int) ([]*models.ForwardQueueEntry, error) {
	db := r.getDB(ctx)

	var entries []*models.ForwardQueueEntry
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&entries).Error
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Count returns the number of forward queue rows matching the filter
func (r *ForwardQueueRepositoryImpl) Count(ctx context.Context, filter models.ForwardQueueEntryFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.ForwardQueueEntry{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any forward queue row matching the filter exists
func (r *ForwardQueueRepositoryImpl) Exists(ctx context.Context, filter models.ForwardQueueEntryFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *ForwardQueueRepositoryImpl) applyFilter(db *gorm.DB, filter models.ForwardQueueEntryFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.BroadcastID != nil {
		db = db.Where("broadcast_id = ?", *filter.BroadcastID)
	}
	if filter.ContactID != nil {
		db = db.Where("contact_id = ?", *filter.ContactID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.IDAfter != nil {
		db = db.Where("id > ?", *filter.IDAfter)
	}

	return db
}
