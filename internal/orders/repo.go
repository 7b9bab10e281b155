package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oportunidade/payhook/pkg/db/models"
)

// ErrNotFound is returned when no order matches the lookup.
var ErrNotFound = errors.New("order not found")

// Repository persists orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByMerchantTransactionID(ctx context.Context, merchantTransactionID string) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindWithTransactions(ctx context.Context, merchantTransactionID string) (*models.Order, error)
	// CreateIfAbsent inserts the order unless its merchant transaction id already exists,
	// in which case the stored row is returned with created=false.
	CreateIfAbsent(ctx context.Context, order *models.Order) (*models.Order, bool, error)
	Save(ctx context.Context, order *models.Order) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByMerchantTransactionID(ctx context.Context, merchantTransactionID string) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("merchant_transaction_id = ?", merchantTransactionID))
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindWithTransactions(ctx context.Context, merchantTransactionID string) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).
		Preload("Transactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("transaction_date ASC, created_at ASC")
		}).
		Where("merchant_transaction_id = ?", merchantTransactionID))
}

func (r *repository) CreateIfAbsent(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "merchant_transaction_id"}}, DoNothing: true}).
		Create(order)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return order, true, nil
	}
	existing, err := r.FindByMerchantTransactionID(ctx, order.MerchantTransactionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *repository) Save(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(order).Error
}

func (r *repository) first(query *gorm.DB) (*models.Order, error) {
	var order models.Order
	if err := query.Take(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}
