package repository

import (
	"context"
	"errors"

	"github.com/sepehrad/broadcastd/models"
	"github.com/sepehrad/broadcastd/utils"
	"gorm.io/gorm"
)

// ErrInsufficientBalance is returned when a debit would drive the wallet negative
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// WalletRepositoryImpl implements the WalletRepository interface
type WalletRepositoryImpl struct {
	*BaseRepository[models.Wallet, models.WalletFilter]
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &WalletRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Wallet, models.WalletFilter](db),
	}
}

// ByCustomerID retrieves the wallet of a customer
func (r *WalletRepositoryImpl) ByCustomerID(ctx context.Context, customerID uint) (*models.Wallet, error) {
	db := r.getDB(ctx)

	var wallet models.Wallet
	err := db.Where("customer_id = ?", customerID).Last(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &wallet, nil
}

// Debit withdraws amount with the balance guard inside the update itself, so
// a concurrent debit can never drive the balance negative
func (r *WalletRepositoryImpl) Debit(ctx context.Context, customerID uint, amount int64) error {
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

	result := db.Model(&models.Wallet{}).
		Where("customer_id = ?", customerID).
		Where("balance >= ?", amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": utils.UTCNow(),
		})
	if result.Error != nil {
		err = result.Error
		return err
	}
	if result.RowsAffected == 0 {
		err = ErrInsufficientBalance
		return err
	}

	return nil
}

// ByFilter retrieves wallets based on filter criteria
func (r *WalletRepositoryImpl) ByFilter(ctx context.Context, filter models.WalletFilter, orderBy string, limit, offset int) ([]*models.Wallet, error) {
	db := r.getDB(ctx)

	var wallets []*models.Wallet
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

	err := query.Find(&wallets).Error
	if err != nil {
		return nil, err
	}

	return wallets, nil
}

// Count returns the number of wallets matching the filter
func (r *WalletRepositoryImpl) Count(ctx context.Context, filter models.WalletFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Wallet{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any wallet matching the filter exists
func (r *WalletRepositoryImpl) Exists(ctx context.Context, filter models.WalletFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *WalletRepositoryImpl) applyFilter(db *gorm.DB, filter models.WalletFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CustomerID != nil {
		db = db.Where("customer_id = ?", *filter.CustomerID)
	}

	return db
}
