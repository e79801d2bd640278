package repository

import (
	"context"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// BroadcastRepositoryImpl implements the BroadcastRepository interface
type BroadcastRepositoryImpl struct {
	*BaseRepository[models.Broadcast, models.BroadcastFilter]
}

// NewBroadcastRepository creates a new broadcast repository
func NewBroadcastRepository(db *gorm.DB) BroadcastRepository {
	return &BroadcastRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Broadcast, models.BroadcastFilter](db),
	}
}

// ByUUID retrieves a broadcast by UUID
func (r *BroadcastRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Broadcast, error) {
	parsedUUID, err := utils.ParseUUID(uuid)
	if err != nil {
		return nil, err
	}

	filter := models.BroadcastFilter{UUID: &parsedUUID}
	broadcasts, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, err
	}

	if len(broadcasts) == 0 {
		return nil, nil
	}

	return broadcasts[0], nil
}

// Update updates a broadcast
func (r *BroadcastRepositoryImpl) Update(ctx context.Context, broadcast *models.Broadcast) error {
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

	now := utils.UTCNow()
	broadcast.UpdatedAt = &now

	err = db.Save(broadcast).Error
	if err != nil {
		return err
	}

	return nil
}

// UpdateStatus updates only the status of a broadcast
func (r *BroadcastRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.BroadcastStatus) error {
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

	err = db.Model(&models.Broadcast{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": utils.UTCNow(),
		}).Error
	if err != nil {
		return err
	}

	return nil
}

// ByFilter retrieves broadcasts based on filter criteria
func (r *BroadcastRepositoryImpl) ByFilter(ctx context.Context, filter models.BroadcastFilter, orderBy string, limit, offset int) ([]*models.Broadcast, error) {
	db := r.getDB(ctx)

	var broadcasts []*models.Broadcast
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

	err := query.Find(&broadcasts).Error
	if err != nil {
		return nil, err
	}

	return broadcasts, nil
}

// Count returns the number of broadcasts matching the filter
func (r *BroadcastRepositoryImpl) Count(ctx context.Context, filter models.BroadcastFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Broadcast{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any broadcast matching the filter exists
func (r *BroadcastRepositoryImpl) Exists(ctx context.Context, filter models.BroadcastFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *BroadcastRepositoryImpl) applyFilter(db *gorm.DB, filter models.BroadcastFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}

	return db
}
