package repository

import (
	"context"

	"github.com/sepehrad/broadcastd/models"
	"gorm.io/gorm"
)

// LineNumberRepositoryImpl implements the LineNumberRepository interface
type LineNumberRepositoryImpl struct {
	*BaseRepository[models.LineNumber, models.LineNumberFilter]
}

// NewLineNumberRepository creates a new line number repository
func NewLineNumberRepository(db *gorm.DB) LineNumberRepository {
	return &LineNumberRepositoryImpl{
		BaseRepository: NewBaseRepository[models.LineNumber, models.LineNumberFilter](db),
	}
}

// ByFilter retrieves line numbers based on filter criteria
func (r *LineNumberRepositoryImpl) ByFilter(ctx context.Context, filter models.LineNumberFilter, orderBy string, limit, offset int) ([]*models.LineNumber, error) {
	db := r.getDB(ctx)

	var numbers []*models.LineNumber
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

	err := query.Find(&numbers).Error
	if err != nil {
		return nil, err
	}

	return numbers, nil
}

// Count returns the number of line numbers matching the filter
func (r *LineNumberRepositoryImpl) Count(ctx context.Context, filter models.LineNumberFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.LineNumber{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any line number matching the filter exists
func (r *LineNumberRepositoryImpl) Exists(ctx context.Context, filter models.LineNumberFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *LineNumberRepositoryImpl) applyFilter(db *gorm.DB, filter models.LineNumberFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Number != nil {
		db = db.Where("number = ?", *filter.Number)
	}

	return db
}
