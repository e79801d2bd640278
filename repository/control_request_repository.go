package repository

import (
	"context"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// ControlRequestRepositoryImpl implements the ControlRequestRepository interface
type ControlRequestRepositoryImpl struct {
	*BaseRepository[models.ControlRequest, models.ControlRequestFilter]
}

// NewControlRequestRepository creates a new control request repository
func NewControlRequestRepository(db *gorm.DB) ControlRequestRepository {
	return &ControlRequestRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ControlRequest, models.ControlRequestFilter](db),
	}
}

// ListPendingBatch pages pending control requests by id cursor, oldest first
// so requests apply in submission order
func (r *ControlRequestRepositoryImpl) ListPendingBatch(ctx context.Context, afterID uint, limit int) ([]*models.ControlRequest, error) {
	status := models.ControlRequestStatusPending
	filter := models.ControlRequestFilter{
		Status:  &status,
		IDAfter: &afterID,
	}
	return r.ByFilter(ctx, filter, "id ASC", limit, 0)
}

// MarkProcessing claims a batch of requests before they are handed to workers
func (r *ControlRequestRepositoryImpl) MarkProcessing(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.updateWhere(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("id IN ?", ids)
	}, map[string]any{
		"status": models.ControlRequestStatusProcessing,
	})
}

// MarkCompleted finishes a control request
func (r *ControlRequestRepositoryImpl) MarkCompleted(ctx context.Context, id uint) error {
	return r.updateWhere(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}, map[string]any{
		"status":       models.ControlRequestStatusCompleted,
		"processed_at": utils.UTCNow(),
	})
}

// MarkFailed records a terminal failure with its reason
func (r *ControlRequestRepositoryImpl) MarkFailed(ctx context.Context, id uint, reason string) error {
	return r.updateWhere(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}, map[string]any{
		"status":        models.ControlRequestStatusFailed,
		"failed_reason": reason,
		"processed_at":  utils.UTCNow(),
	})
}

func (r *ControlRequestRepositoryImpl) updateWhere(ctx context.Context, scope func(*gorm.DB) *gorm.DB, columns map[string]any) error {
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

	err = scope(db.Model(&models.ControlRequest{})).Updates(columns).Error
	if err != nil {
		return err
	}

	return nil
}

// ByFilter retrieves control requests based on filter criteria
func (r *ControlRequestRepositoryImpl) ByFilter(ctx context.Context, filter models.ControlRequestFilter, orderBy string, limit, offset int) ([]*models.ControlRequest, error) {
	db := r.getDB(ctx)

	var requests []*models.ControlRequest
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

	err := query.Find(&requests).Error
	if err != nil {
		return nil, err
	}

	return requests, nil
}

// Count returns the number of control requests matching the filter
func (r *ControlRequestRepositoryImpl) Count(ctx context.Context, filter models.ControlRequestFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.ControlRequest{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any control request matching the filter exists
func (r *ControlRequestRepositoryImpl) Exists(ctx context.Context, filter models.ControlRequestFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *ControlRequestRepositoryImpl) applyFilter(db *gorm.DB, filter models.ControlRequestFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.Scope != nil {
		db = db.Where("scope = ?", *filter.Scope)
	}
	if filter.BroadcastID != nil {
		db = db.Where("broadcast_id = ?", *filter.BroadcastID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.IDAfter != nil {
		db = db.Where("id > ?", *filter.IDAfter)
	}

	return db
}
