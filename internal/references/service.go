package references

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oportunidade/payhook/pkg/db"
	"github.com/oportunidade/payhook/pkg/db/models"
	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
	"github.com/oportunidade/payhook/pkg/pagination"
)

// CreateInput registers a reference that webhook events may later cite.
type CreateInput struct {
	ReferenceNumber string           `json:"reference_number" validate:"required,max=64"`
	Entity          string           `json:"entity" validate:"omitempty,max=64"`
	Currency        string           `json:"currency" validate:"omitempty,len=3"`
	MinAmount       *decimal.Decimal `json:"min_amount"`
	MaxAmount       *decimal.Decimal `json:"max_amount"`
	StartDate       *time.Time       `json:"start_date"`
	ExpirationDate  *time.Time       `json:"expiration_date"`
	Active          *bool            `json:"is_active"`
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Reference, error)
	List(ctx context.Context, limit int) ([]models.Reference, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("references repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Reference, error) {
	number := strings.TrimSpace(input.ReferenceNumber)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference_number is required")
	}
	if input.MinAmount != nil && input.MaxAmount != nil && input.MinAmount.GreaterThan(*input.MaxAmount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min_amount exceeds max_amount")
	}
	if input.StartDate != nil && input.ExpirationDate != nil && input.ExpirationDate.Before(*input.StartDate) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiration_date precedes start_date")
	}

	ref := &models.Reference{
		ReferenceNumber: number,
		Entity:          strings.TrimSpace(input.Entity),
		Currency:        strings.ToUpper(input.Currency),
		MinAmount:       input.MinAmount,
		MaxAmount:       input.MaxAmount,
		StartDate:       input.StartDate,
		ExpirationDate:  input.ExpirationDate,
		IsActive:        input.Active == nil || *input.Active,
	}
	if err := s.repo.Create(ctx, ref); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "reference number already registered").
				WithDetails(map[string]any{"reference_number": number})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create reference")
	}
	return ref, nil
}

func (s *service) List(ctx context.Context, limit int) ([]models.Reference, error) {
	refs, err := s.repo.List(ctx, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list references")
	}
	return refs, nil
}
