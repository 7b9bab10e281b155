package references

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/oportunidade/payhook/pkg/db/models"
)

// ErrNotFound is returned when the reference number is unknown.
var ErrNotFound = errors.New("payment reference not found")

// Repository looks up and registers payment references.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByReferenceNumber(ctx context.Context, referenceNumber string) (*models.Reference, error)
	Create(ctx context.Context, ref *models.Reference) error
	List(ctx context.Context, limit int) ([]models.Reference, error)
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

func (r *repository) FindByReferenceNumber(ctx context.Context, referenceNumber string) (*models.Reference, error) {
	var ref models.Reference
	err := r.db.WithContext(ctx).Where("reference_number = ?", referenceNumber).Take(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *repository) Create(ctx context.Context, ref *models.Reference) error {
	return r.db.WithContext(ctx).Create(ref).Error
}

func (r *repository) List(ctx context.Context, limit int) ([]models.Reference, error) {
	var refs []models.Reference
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}
