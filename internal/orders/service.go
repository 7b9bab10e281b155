package orders

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
	"github.com/oportunidade/payhook/pkg/db/models"
)

// Service exposes read access to reconciled orders.
type Service interface {
	GetByMerchantTransactionID(ctx context.Context, merchantTransactionID string) (*models.Order, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo}, nil
}

// GetByMerchantTransactionID returns the order with its payment transactions.
func (s *service) GetByMerchantTransactionID(ctx context.Context, merchantTransactionID string) (*models.Order, error) {
	order, err := s.repo.FindWithTransactions(ctx, merchantTransactionID)
	if errors.Is(err, ErrNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
			WithDetails(map[string]any{"merchant_transaction_id": merchantTransactionID})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
	}
	return order, nil
}
