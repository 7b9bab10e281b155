package transactions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oportunidade/payhook/pkg/db"
	"github.com/oportunidade/payhook/pkg/db/models"
)

var (
	// ErrNotFound is returned when no transaction matches the lookup.
	ErrNotFound = errors.New("payment transaction not found")
	// ErrDuplicate is returned when a transaction for the same gateway event already exists.
	ErrDuplicate = errors.New("payment transaction already recorded")
)

const externalIDConstraint = "payment_transactions_external_transaction_id_key"

// Repository persists payment transactions. Rows are append-only apart from
// the error message and the accounting payment id.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.PaymentTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByExternalTransactionID(ctx context.Context, externalID string) (*models.PaymentTransaction, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error)
	SetExternalPaymentID(ctx context.Context, id uuid.UUID, externalPaymentID string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	err := r.db.WithContext(ctx).Create(txn).Error
	if db.IsUniqueViolation(err, externalIDConstraint) || db.IsUniqueViolation(err, "payment_transactions.external_transaction_id") {
		return ErrDuplicate
	}
	return err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByExternalTransactionID(ctx context.Context, externalID string) (*models.PaymentTransaction, error) {
	return r.first(r.db.WithContext(ctx).Where("external_transaction_id = ?", externalID))
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) SetExternalPaymentID(ctx context.Context, id uuid.UUID, externalPaymentID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Update("external_payment_id", externalPaymentID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) first(query *gorm.DB) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	if err := query.Take(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &txn, nil
}
