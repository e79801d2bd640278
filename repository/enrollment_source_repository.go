package repository

import (
	"context"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// EnrollmentSourceRepositoryImpl implements the EnrollmentSourceRepository interface
type EnrollmentSourceRepositoryImpl struct {
	*BaseRepository[models.EnrollmentSource, models.EnrollmentSourceFilter]
}

// NewEnrollmentSourceRepository creates a new enrollment source repository
func NewEnrollmentSourceRepository(db *gorm.DB) EnrollmentSourceRepository {
	return &EnrollmentSourceRepositoryImpl{
		BaseRepository: NewBaseRepository[models.EnrollmentSource, models.EnrollmentSourceFilter](db),
	}
}

// ListOpenBatch pages pending and processing sources by id cursor. Processing
// rows are included so an interrupted expansion resumes from its cursor.
func (r *EnrollmentSourceRepositoryImpl) ListOpenBatch(ctx context.Context, afterID uint, limit int) ([]*models.EnrollmentSource, error) {
	db := r.getDB(ctx)

	var sources []*models.EnrollmentSource
	err := db.Where("status IN ?", []models.SourceStatus{
		models.SourceStatusPending,
		models.SourceStatusProcessing,
	}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&sources).Error
	if err != nil {
		return nil, err
	}

	return sources, nil
}

// UpdateCursor persists expansion progress after each batch
func (r *EnrollmentSourceRepositoryImpl) UpdateCursor(ctx context.Context, id uint, cursor uint) error {
	return r.updateColumns(ctx, id, map[string]any{
		"cursor":     cursor,
		"status":     models.SourceStatusProcessing,
		"updated_at": utils.UTCNow(),
	})
}

// MarkStatus finishes or fails an enrollment source
func (r *EnrollmentSourceRepositoryImpl) MarkStatus(ctx context.Context, id uint, status models.SourceStatus, reason *string) error {
	columns := map[string]any{
		"status":     status,
		"updated_at": utils.UTCNow(),
	}
	if reason != nil {
		columns["failed_reason"] = *reason
	}
	return r.updateColumns(ctx, id, columns)
}

func (r *EnrollmentSourceRepositoryImpl) updateColumns(ctx context.Context, id uint, columns map[string]any) error {
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

	err = db.Model(&models.EnrollmentSource{}).
		Where("id = ?", id).
		Updates(columns).Error
	if err != nil {
		return err
	}

	return nil
}

// ByFilter retrieves enrollment sources based on filter criteria
func (r *EnrollmentSourceRepositoryImpl) ByFilter(ctx context.Context, filter models.EnrollmentSourceFilter, orderBy string, limit, offset int) ([]*models.EnrollmentSource, error) {
	db := r.getDB(ctx)

	var sources []*models.EnrollmentSource
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

	err := query.Find(&sources).Error
	if err != nil {
		return nil, err
	}

	return sources, nil
}

// Count returns the number of enrollment sources matching the filter
func (r *EnrollmentSourceRepositoryImpl) Count(ctx context.Context, filter models.EnrollmentSourceFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.EnrollmentSource{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any enrollment source matching the filter exists
func (r *EnrollmentSourceRepositoryImpl) Exists(ctx context.Context, filter models.EnrollmentSourceFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *EnrollmentSourceRepositoryImpl) applyFilter(db *gorm.DB, filter models.EnrollmentSourceFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
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
