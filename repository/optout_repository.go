package repository

import (
	"context"

	"github.com/sepehrad/broadcastd/models"
	"gorm.io/gorm"
)

// OptOutRepositoryImpl implements the OptOutRepository interface
type OptOutRepositoryImpl struct {
	*BaseRepository[models.OptOut, models.OptOutFilter]
}

// NewOptOutRepository creates a new opt-out repository
func NewOptOutRepository(db *gorm.DB) OptOutRepository {
	return &OptOutRepositoryImpl{
		BaseRepository: NewBaseRepository[models.OptOut, models.OptOutFilter](db),
	}
}

// IsOptedOut checks whether the contact asked out of the customer's messaging
func (r *OptOutRepositoryImpl) IsOptedOut(ctx context.Context, customerID, contactID uint) (bool, error) {
	filter := models.OptOutFilter{
		CustomerID: &customerID,
		ContactID:  &contactID,
	}
	return r.Exists(ctx, filter)
}

// ByFilter retrieves opt-out rows based on filter criteria
func (r *OptOutRepositoryImpl) ByFilter(ctx context.Context, filter models.OptOutFilter, orderBy string, limit, offset int) ([]*models.OptOut, error) {
	db := r.getDB(ctx)

	var rows []*models.OptOut
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

	err := query.Find(&rows).Error
	if err != nil {
		return nil, err
	}

	return rows, nil
}

// Count returns the number of opt-out rows matching the filter
func (r *OptOutRepositoryImpl) Count(ctx context.Context, filter models.OptOutFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.OptOut{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any opt-out row matching the filter exists
func (r *OptOutRepositoryImpl) Exists(ctx context.Context, filter models.OptOutFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *OptOutRepositoryImpl) applyFilter(db *gorm.DB, filter models.OptOutFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.ContactID != nil {
		db = db.Where("contact_id = ?", *filter.ContactID)
	}

	return db
}
