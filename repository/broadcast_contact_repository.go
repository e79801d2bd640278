package repository

import (
	"context"
	"time"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// BroadcastContactRepositoryImpl implements the BroadcastContactRepository interface
type BroadcastContactRepositoryImpl struct {
	*BaseRepository[models.BroadcastContact, models.BroadcastContactFilter]
}

// NewBroadcastContactRepository creates a new enrollment repository
func NewBroadcastContactRepository(db *gorm.DB) BroadcastContactRepository {
	return &BroadcastContactRepositoryImpl{
		BaseRepository: NewBaseRepository[models.BroadcastContact, models.BroadcastContactFilter](db),
	}
}

// ByBroadcastAndContact retrieves the single enrollment of a contact in a broadcast
func (r *BroadcastContactRepositoryImpl) ByBroadcastAndContact(ctx context.Context, broadcastID, contactID uint) (*models.BroadcastContact, error) {
	filter := models.BroadcastContactFilter{
		BroadcastID: &broadcastID,
		ContactID:   &contactID,
	}
	enrollments, err := r.ByFilter(ctx, filter, "", 0, 0)
	if err != nil {
		return nil, err
	}

	if len(enrollments) == 0 {
		return nil, nil
	}

	return enrollments[0], nil
}

// ListRunningBatch pages running enrollments of one broadcast by id cursor
func (r *BroadcastContactRepositoryImpl) ListRunningBatch(ctx context.Context, broadcastID, afterID uint, limit int) ([]*models.BroadcastContact, error) {
	status := models.EnrollmentStatusRunning
	filter := models.BroadcastContactFilter{
		BroadcastID: &broadcastID,
		Status:      &status,
		IDAfter:     &afterID,
	}
	return r.ByFilter(ctx, filter, "id ASC", limit, 0)
}

// UpdateStatus updates only the status of an enrollment
func (r *BroadcastContactRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.EnrollmentStatus) error {
	return r.updateColumns(ctx, id, map[string]any{
		"status":     status,
		"updated_at": utils.UTCNow(),
	})
}

// ResetEntryDate refreshes the enrollment's entry date, used on resume so
// scheduled steps compute against the re-entry instant
func (r *BroadcastContactRepositoryImpl) ResetEntryDate(ctx context.Context, id uint, entryDate time.Time) error {
	return r.updateColumns(ctx, id, map[string]any{
		"entry_date": entryDate,
		"updated_at": utils.UTCNow(),
	})
}

// UpdateLastMessageAt records the instant of the latest delivery attempt
func (r *BroadcastContactRepositoryImpl) UpdateLastMessageAt(ctx context.Context, id uint, at time.Time) error {
	return r.updateColumns(ctx, id, map[string]any{
		"last_message_at": at,
		"updated_at":      utils.UTCNow(),
	})
}

// UpdateNextAllowedMessageAt records the earliest instant scheduling produced
func (r *BroadcastContactRepositoryImpl) UpdateNextAllowedMessageAt(ctx context.Context, id uint, at time.Time) error {
	return r.updateColumns(ctx, id, map[string]any{
		"next_allowed_message_at": at,
		"updated_at":              utils.UTCNow(),
	})
}

func (r *BroadcastContactRepositoryImpl) updateColumns(ctx context.Context, id uint, columns map[string]any) error {
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

	err = db.Model(&models.BroadcastContact{}).
		Where("id = ?", id).
		Updates(columns).Error
	if err != nil {
		return err
	}

	return nil
}

// ByFilter retrieves enrollments based on filter criteria
func (r *BroadcastContactRepositoryImpl) ByFilter(ctx context.Context, filter models.BroadcastContactFilter, orderBy string, limit, offset int) ([]*models.BroadcastContact, error) {
	db := r.getDB(ctx)

	var enrollments []*models.BroadcastContact
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

	err := query.Find(&enrollments).Error
	if err != nil {
		return nil, err
	}

	return enrollments, nil
}

// Count returns the number of enrollments matching the filter
func (r *BroadcastContactRepositoryImpl) Count(ctx context.Context, filter models.BroadcastContactFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.BroadcastContact{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any enrollment matching the filter exists
func (r *BroadcastContactRepositoryImpl) Exists(ctx context.Context, filter models.BroadcastContactFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *BroadcastContactRepositoryImpl) applyFilter(db *gorm.DB, filter models.BroadcastContactFilter) *gorm.DB {
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
