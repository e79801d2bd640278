package repository

import (
	"context"
	"time"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// QueueEntryRepositoryImpl implements the QueueEntryRepository interface
type QueueEntryRepositoryImpl struct {
	*BaseRepository[models.QueueEntry, models.QueueEntryFilter]
}

// NewQueueEntryRepository creates a new queue entry repository
func NewQueueEntryRepository(db *gorm.DB) QueueEntryRepository {
	return &QueueEntryRepositoryImpl{
		BaseRepository: NewBaseRepository[models.QueueEntry, models.QueueEntryFilter](db),
	}
}

// HasOpenEntry checks whether a pending-or-processing entry exists for the
// (broadcast, contact, setting) triple
func (r *QueueEntryRepositoryImpl) HasOpenEntry(ctx context.Context, broadcastID, contactID, settingID uint) (bool, error) {
	db := r.getDB(ctx)

	var count int64
	err := db.Model(&models.QueueEntry{}).
		Where("broadcast_id = ?", broadcastID).
		Where("contact_id = ?", contactID).
		Where("setting_id = ?", settingID).
		Where("status IN ?", []models.QueueEntryStatus{
			models.QueueEntryStatusPending,
			models.QueueEntryStatusProcessing,
		}).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// ListDueBatch pages pending entries whose scheduled time has passed, by id cursor
func (r *QueueEntryRepositoryImpl) ListDueBatch(ctx context.Context, dueBefore time.Time, afterID uint, limit int) ([]*models.QueueEntry, error) {
	status := models.QueueEntryStatusPending
	filter := models.QueueEntryFilter{
		Status:    &status,
		DueBefore: &dueBefore,
		IDAfter:   &afterID,
	}
	return r.ByFilter(ctx, filter, "id ASC", limit, 0)
}

// MarkProcessing claims a batch of entries before they are handed to workers
func (r *QueueEntryRepositoryImpl) MarkProcessing(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.updateWhere(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("id IN ?", ids)
	}, map[string]any{
		"status":     models.QueueEntryStatusProcessing,
		"updated_at": utils.UTCNow(),
	})
}

// MarkFailed records a terminal failure with its reason
func (r *QueueEntryRepositoryImpl) MarkFailed(ctx context.Context, id uint, reason string) error {
	return r.updateWhere(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}, map[string]any{
		"status":        models.QueueEntryStatusFailed,
		"failed_reason": reason,
		"updated_at":    utils.UTCNow(),
	})
}

// Delete removes a queue entry after its work completed. The message log, not
// the queue, is the durable record of what happened.
func (r *QueueEntryRepositoryImpl) Delete(ctx context.Context, id uint) error {
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

	err = db.Delete(&models.QueueEntry{}, id).Error
	if err != nil {
		return err
	}

	return nil
}

// DeletePendingByBroadcast removes all pending entries of a broadcast,
// returning the number removed. Used on pause and stop.
func (r *QueueEntryRepositoryImpl) DeletePendingByBroadcast(ctx context.Context, broadcastID uint) (int64, error) {
	return r.deletePending(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("broadcast_id = ?", broadcastID)
	})
}

// DeletePendingByContact removes the pending entries of one contact in one broadcast
func (r *QueueEntryRepositoryImpl) DeletePendingByContact(ctx context.Context, broadcastID, contactID uint) (int64, error) {
	return r.deletePending(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("broadcast_id = ?", broadcastID).Where("contact_id = ?", contactID)
	})
}

func (r *QueueEntryRepositoryImpl) deletePending(ctx context.Context, scope func(*gorm.DB) *gorm.DB) (int64, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
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

	result := scope(db.Where("status = ?", models.QueueEntryStatusPending)).
		Delete(&models.QueueEntry{})
	if result.Error != nil {
		err = result.Error
		return 0, err
	}

	return result.RowsAffected, nil
}

// ReclaimStuck returns entries stuck in processing since before the deadline
// back to pending so another worker can pick them up
func (r *QueueEntryRepositoryImpl) ReclaimStuck(ctx context.Context, deadline time.Time) (int64, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
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

	result := db.Model(&models.QueueEntry{}).
		Where("status = ?", models.QueueEntryStatusProcessing).
		Where("updated_at < ?", deadline).
		Updates(map[string]any{
			"status":     models.QueueEntryStatusPending,
			"updated_at": utils.UTCNow(),
		})
	if result.Error != nil {
		err = result.Error
		return 0, err
	}

	return result.RowsAffected, nil
}

func (r *QueueEntryRepositoryImpl) updateWhere(ctx context.Context, scope func(*gorm.DB) *gorm.DB, columns map[string]any) error {
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

	err = scope(db.Model(&models.QueueEntry{})).Updates(columns).Error
	if err != nil {
		return err
	}

	return nil
}

// ByFilter retrieves queue entries based on filter criteria
func (r *QueueEntryRepositoryImpl) ByFilter(ctx context.Context, filter models.QueueEntryFilter, orderBy string, limit, offset int) ([]*models.QueueEntry, error) {
	db := r.getDB(ctx)

	var entries []*models.QueueEntry
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

// Count returns the number of queue entries matching the filter
func (r *QueueEntryRepositoryImpl) Count(ctx context.Context, filter models.QueueEntryFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.QueueEntry{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any queue entry matching the filter exists
func (r *QueueEntryRepositoryImpl) Exists(ctx context.Context, filter models.QueueEntryFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *QueueEntryRepositoryImpl) applyFilter(db *gorm.DB, filter models.QueueEntryFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.BroadcastID != nil {
		db = db.Where("broadcast_id = ?", *filter.BroadcastID)
	}
	if filter.ContactID != nil {
		db = db.Where("contact_id = ?", *filter.ContactID)
	}
	if filter.SettingID != nil {
		db = db.Where("setting_id = ?", *filter.SettingID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.DueBefore != nil {
		db = db.Where("scheduled_at <= ?", *filter.DueBefore)
	}
	if filter.IDAfter != nil {
		db = db.Where("id > ?", *filter.IDAfter)
	}

	return db
}
