package repository

import (
	"context"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// BroadcastSettingRepositoryImpl implements the BroadcastSettingRepository interface
type BroadcastSettingRepositoryImpl struct {
	*BaseRepository[models.BroadcastSetting, models.BroadcastSettingFilter]
}

// NewBroadcastSettingRepository creates a new broadcast setting repository
func NewBroadcastSettingRepository(db *gorm.DB) BroadcastSettingRepository {
	return &BroadcastSettingRepositoryImpl{
		BaseRepository: NewBaseRepository[models.BroadcastSetting, models.BroadcastSettingFilter](db),
	}
}

// ListActive retrieves the active settings of a broadcast ordered by priority
func (r *BroadcastSettingRepositoryImpl) ListActive(ctx context.Context, broadcastID uint) ([]*models.BroadcastSetting, error) {
	status := models.SettingStatusActive
	filter := models.BroadcastSettingFilter{
		BroadcastID: &broadcastID,
		Status:      &status,
	}
	return r.ByFilter(ctx, filter, "priority ASC, id ASC", 0, 0)
}

// ListActiveByType retrieves the active settings of a broadcast of one type
func (r *BroadcastSettingRepositoryImpl) ListActiveByType(ctx context.Context, broadcastID uint, settingType models.SettingType) ([]*models.BroadcastSetting, error) {
	status := models.SettingStatusActive
	filter := models.BroadcastSettingFilter{
		BroadcastID: &broadcastID,
		Type:        &settingType,
		Status:      &status,
	}
	return r.ByFilter(ctx, filter, "priority ASC, id ASC", 0, 0)
}

// NextRung retrieves the active non-recurring settings sharing the lowest
// priority strictly greater than afterPriority. Settings with equal priority
// form one rung and are scheduled together.
func (r *BroadcastSettingRepositoryImpl) NextRung(ctx context.Context, broadcastID uint, afterPriority int) ([]*models.BroadcastSetting, error) {
	db := r.getDB(ctx)

	var next models.BroadcastSetting
	err := db.Where("broadcast_id = ?", broadcastID).
		Where("status = ?", models.SettingStatusActive).
		Where("type <> ?", models.SettingTypeRecurring).
		Where("priority > ?", afterPriority).
		Order("priority ASC, id ASC").
		First(&next).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	var settings []*models.BroadcastSetting
	err = db.Where("broadcast_id = ?", broadcastID).
		Where("status = ?", models.SettingStatusActive).
		Where("type <> ?", models.SettingTypeRecurring).
		Where("priority = ?", next.Priority).
		Order("id ASC").
		Find(&settings).Error
	if err != nil {
		return nil, err
	}

	return settings, nil
}

// UpdatePriorities persists recalculated priorities in one transaction
func (r *BroadcastSettingRepositoryImpl) UpdatePriorities(ctx context.Context, settings []*models.BroadcastSetting) error {
	if len(settings) == 0 {
		return nil
	}

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
	for _, s := range settings {
		err = db.Model(&models.BroadcastSetting{}).
			Where("id = ?", s.ID).
			Updates(map[string]any{
				"priority":   s.Priority,
				"updated_at": now,
			}).Error
		if err != nil {
			return err
		}
	}

	return nil
}

// SoftDelete marks a setting deleted without removing the row, so existing
// message logs keep their referent
func (r *BroadcastSettingRepositoryImpl) SoftDelete(ctx context.Context, id uint) error {
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

	err = db.Model(&models.BroadcastSetting{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     models.SettingStatusDeleted,
			"updated_at": utils.UTCNow(),
		}).Error
	if err != nil {
		return err
	}

	return nil
}

// ByFilter retrieves settings based on filter criteria
func (r *BroadcastSettingRepositoryImpl) ByFilter(ctx context.Context, filter models.BroadcastSettingFilter, orderBy string, limit, offset int) ([]*models.BroadcastSetting, error) {
	db := r.getDB(ctx)

	var settings []*models.BroadcastSetting
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

	err := query.Find(&settings).Error
	if err != nil {
		return nil, err
	}

	return settings, nil
}

// Count returns the number of settings matching the filter
func (r *BroadcastSettingRepositoryImpl) Count(ctx context.Context, filter models.BroadcastSettingFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.BroadcastSetting{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any setting matching the filter exists
func (r *BroadcastSettingRepositoryImpl) Exists(ctx context.Context, filter models.BroadcastSettingFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *BroadcastSettingRepositoryImpl) applyFilter(db *gorm.DB, filter models.BroadcastSettingFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.BroadcastID != nil {
		db = db.Where("broadcast_id = ?", *filter.BroadcastID)
	}
	if filter.Type != nil {
		db = db.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.PriorityGT != nil {
		db = db.Where("priority > ?", *filter.PriorityGT)
	}

	return db
}
