package repository

import (
	"context"
	"time"

	"github.com/sepehrad/broadcastd/models"
	"gorm.io/gorm"
)

// BroadcastMessageLogRepositoryImpl implements the BroadcastMessageLogRepository interface
type BroadcastMessageLogRepositoryImpl struct {
	*BaseRepository[models.BroadcastMessageLog, models.BroadcastMessageLogFilter]
}

// NewBroadcastMessageLogRepository creates a new message log repository
func NewBroadcastMessageLogRepository(db *gorm.DB) BroadcastMessageLogRepository {
	return &BroadcastMessageLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.BroadcastMessageLog, models.BroadcastMessageLogFilter](db),
	}
}

// HasDelivery checks whether a delivery-kind log exists for the triple
func (r *BroadcastMessageLogRepositoryImpl) HasDelivery(ctx context.Context, broadcastID, contactID, settingID uint) (bool, error) {
	kind := models.MessageLogKindDelivery
	filter := models.BroadcastMessageLogFilter{
		BroadcastID: &broadcastID,
		ContactID:   &contactID,
		SettingID:   &settingID,
		Kind:        &kind,
	}
	return r.Exists(ctx, filter)
}

// LastDeliveryAt returns the creation time of the most recent delivery-kind
// log for the triple, or nil when none exists
func (r *BroadcastMessageLogRepositoryImpl) LastDeliveryAt(ctx context.Context, broadcastID, contactID, settingID uint) (*time.Time, error) {
	kind := models.MessageLogKindDelivery
	filter := models.BroadcastMessageLogFilter{
		BroadcastID: &broadcastID,
		ContactID:   &contactID,
		SettingID:   &settingID,
		Kind:        &kind,
	}
	logs, err := r.ByFilter(ctx, filter, "created_at DESC, id DESC", 1, 0)
	if err != nil {
		return nil, err
	}

	if len(logs) == 0 {
		return nil, nil
	}

	at := logs[0].CreatedAt
	return &at, nil
}

// LastCompletedPriority resolves the highest priority among active
// non-recurring settings that already have a delivery-kind log for the
// contact. Deleted settings are excluded so their pre-rerank priorities
// cannot mask the rungs that remain. Returns -1 when no step completed yet,
// so the caller's next-rung query starts at the chain's bottom.
func (r *BroadcastMessageLogRepositoryImpl) LastCompletedPriority(ctx context.Context, broadcastID, contactID uint) (int, error) {
	db := r.getDB(ctx)

	var priority *int
	err := db.Model(&models.BroadcastMessageLog{}).
		Select("MAX(broadcast_settings.priority)").
		Joins("JOIN broadcast_settings ON broadcast_settings.id = broadcast_message_logs.setting_id").
		Where("broadcast_message_logs.broadcast_id = ?", broadcastID).
		Where("broadcast_message_logs.contact_id = ?", contactID).
		Where("broadcast_message_logs.kind = ?", models.MessageLogKindDelivery).
		Where("broadcast_settings.type <> ?", models.SettingTypeRecurring).
		Where("broadcast_settings.status = ?", models.SettingStatusActive).
		Scan(&priority).Error
	if err != nil {
		return 0, err
	}

	if priority == nil {
		return -1, nil
	}

	return *priority, nil
}

// ByFilter retrieves message logs based on filter criteria
func (r *BroadcastMessageLogRepositoryImpl) ByFilter(ctx context.Context, filter models.BroadcastMessageLogFilter, orderBy string, limit, offset int) ([]*models.BroadcastMessageLog, error) {
	db := r.getDB(ctx)

	var logs []*models.BroadcastMessageLog
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

	err := query.Find(&logs).Error
	if err != nil {
		return nil, err
	}

	return logs, nil
}

// Count returns the number of message logs matching the filter
func (r *BroadcastMessageLogRepositoryImpl) Count(ctx context.Context, filter models.BroadcastMessageLogFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.BroadcastMessageLog{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any message log matching the filter exists
func (r *BroadcastMessageLogRepositoryImpl) Exists(ctx context.Context, filter models.BroadcastMessageLogFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *BroadcastMessageLogRepositoryImpl) applyFilter(db *gorm.DB, filter models.BroadcastMessageLogFilter) *gorm.DB {
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
	if filter.Kind != nil {
		db = db.Where("kind = ?", *filter.Kind)
	}

	return db
}
