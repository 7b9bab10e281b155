// Package reconcile applies payment events to orders and their transaction
// history.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oportunidade/payhook/internal/accounting"
	"github.com/oportunidade/payhook/internal/orders"
	"github.com/oportunidade/payhook/internal/references"
	"github.com/oportunidade/payhook/internal/transactions"
	"github.com/oportunidade/payhook/pkg/db/models"
	"github.com/oportunidade/payhook/pkg/enums"
	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
	"github.com/oportunidade/payhook/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OutboundGateway forwards a PAID transaction to the accounting system.
type OutboundGateway interface {
	Forward(ctx context.Context, order *models.Order, txn *models.PaymentTransaction) accounting.Result
}

type Outcome string

const (
	// OutcomeApplied means the order was updated and a transaction recorded.
	OutcomeApplied Outcome = "applied"
	// OutcomeDropped means the event targets an unknown order and was ignored.
	OutcomeDropped Outcome = "dropped"
	// OutcomeDuplicate means a transaction for this event already exists. Sync is
	// set only when a pending accounting forward was resumed.
	OutcomeDuplicate Outcome = "duplicate"
)

type Result struct {
	Outcome      Outcome
	Order        *models.Order
	Transaction  *models.PaymentTransaction
	OrderCreated bool
	// StatusHeld is set when the monotonic guard kept the previous order status.
	StatusHeld bool
	Sync       *accounting.Result
}

type EngineParams struct {
	Tx           txRunner
	Orders       orders.Repository
	Transactions transactions.Repository
	References   references.Repository
	// Gateway may be nil when accounting sync is disabled.
	Gateway   OutboundGateway
	Monotonic bool
	Logger    *logger.Logger
}

type Engine struct {
	tx        txRunner
	orders    orders.Repository
	txns      transactions.Repository
	refs      references.Repository
	gateway   OutboundGateway
	monotonic bool
	logg      *logger.Logger
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if params.References == nil {
		return nil, fmt.Errorf("references repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Engine{
		tx:        params.Tx,
		orders:    params.Orders,
		txns:      params.Transactions,
		refs:      params.References,
		gateway:   params.Gateway,
		monotonic: params.Monotonic,
		logg:      logg,
	}, nil
}

// Apply reconciles one event. Order and transaction writes commit together;
// the accounting forward runs after the commit and never fails the call.
func (e *Engine) Apply(ctx context.Context, event PaymentEvent) (Result, error) {
	ctx = e.logg.WithFields(ctx, map[string]any{
		"external_id":             event.ExternalID,
		"merchant_transaction_id": event.MerchantReference,
		"event_status":            string(event.Status),
	})

	target, ok := event.Status.OrderStatus()
	if !ok {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment status").
			WithDetails(map[string]any{"status": string(event.Status)})
	}

	var result Result
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = e.apply(ctx, tx, event, target)
		return err
	})
	if errors.Is(err, transactions.ErrDuplicate) {
		e.logg.Warn(ctx, "payment event already recorded")
		return e.resumeForward(ctx, event.ExternalID)
	}
	if err != nil {
		return Result{}, err
	}

	switch result.Outcome {
	case OutcomeDropped:
		e.logg.Warn(ctx, "payment event for unknown order dropped")
		return result, nil
	case OutcomeApplied:
		if result.StatusHeld {
			e.logg.Warn(e.logg.WithField(ctx, "order_status", string(result.Order.Status)), "order status regression ignored")
		}
		e.logg.Info(e.logg.WithField(ctx, "order_status", string(result.Order.Status)), "payment event applied")
	}

	if e.gateway != nil && result.Order.Status == enums.OrderStatusPaid &&
		result.Transaction.Status == enums.TransactionStatusSuccess {
		sync := e.gateway.Forward(ctx, result.Order, result.Transaction)
		result.Sync = &sync
	}
	return result, nil
}

// resumeForward finishes a forward that an earlier run committed but never
// recorded, such as when the process died between the commit and the call.
func (e *Engine) resumeForward(ctx context.Context, externalID string) (Result, error) {
	result := Result{Outcome: OutcomeDuplicate}
	if e.gateway == nil {
		return result, nil
	}
	txn, err := e.txns.FindByExternalTransactionID(ctx, externalID)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load recorded payment transaction")
	}
	if txn.Status != enums.TransactionStatusSuccess || txn.ExternalPaymentID != nil {
		return result, nil
	}
	order, err := e.orders.FindByID(ctx, txn.OrderID)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
	}
	if order.Status != enums.OrderStatusPaid {
		return result, nil
	}

	e.logg.Info(e.logg.WithField(ctx, "transaction_id", txn.ID.String()), "resuming unrecorded accounting forward")
	sync := e.gateway.Forward(ctx, order, txn)
	result.Order, result.Transaction, result.Sync = order, txn, &sync
	return result, nil
}

func (e *Engine) apply(ctx context.Context, tx *gorm.DB, event PaymentEvent, target enums.OrderStatus) (Result, error) {
	orderRepo := e.orders.WithTx(tx)

	reference, err := e.resolveReference(ctx, tx, event.Reference)
	if err != nil {
		return Result{}, err
	}

	created := false
	order, err := orderRepo.FindByMerchantTransactionID(ctx, event.MerchantReference)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		if event.Status.RequiresExistingOrder() {
			return Result{Outcome: OutcomeDropped}, nil
		}
		order, created, err = orderRepo.CreateIfAbsent(ctx, newOrder(event))
		if err != nil {
			return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create order")
		}
	case err != nil:
		return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load order")
	}

	if reference != nil {
		order.ReferenceID = &reference.ID
	}

	held := e.monotonic && target.Rank() < order.Status.Rank()
	if !held {
		order.Status = target
	}
	if err := orderRepo.Save(ctx, order); err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "save order")
	}

	txn := newTransaction(order, event)
	if err := e.txns.WithTx(tx).Create(ctx, txn); err != nil {
		if errors.Is(err, transactions.ErrDuplicate) {
			return Result{}, err
		}
		return Result{}, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create payment transaction")
	}

	return Result{
		Outcome:      OutcomeApplied,
		Order:        order,
		Transaction:  txn,
		OrderCreated: created,
		StatusHeld:   held,
	}, nil
}

func (e *Engine) resolveReference(ctx context.Context, tx *gorm.DB, info *ReferenceInfo) (*models.Reference, error) {
	if info == nil || strings.TrimSpace(info.Number) == "" {
		return nil, nil
	}
	ref, err := e.refs.WithTx(tx).FindByReferenceNumber(ctx, info.Number)
	if errors.Is(err, references.ErrNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeReferenceNotFound, &ReferenceNotFoundError{ReferenceNumber: info.Number}, "resolve payment reference").
			WithDetails(map[string]any{"reference_number": info.Number})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load payment reference")
	}
	return ref, nil
}

func newOrder(event PaymentEvent) *models.Order {
	order := &models.Order{
		MerchantTransactionID: event.MerchantReference,
		Amount:                event.Amount,
		Currency:              event.Currency,
		Status:                enums.OrderStatusPending,
	}
	if c := event.Customer; c != nil {
		order.CustomerName = optional(c.Name)
		order.CustomerEmail = optional(c.Email)
		order.CustomerPhone = optional(c.Phone)
		order.CustomerDocument = optional(c.Document)
	}
	return order
}

func newTransaction(order *models.Order, event PaymentEvent) *models.PaymentTransaction {
	occurred := event.Timestamp
	if occurred.IsZero() {
		occurred = time.Now()
	}
	txn := &models.PaymentTransaction{
		OrderID:               order.ID,
		ExternalTransactionID: event.ExternalID,
		Amount:                event.Amount,
		Currency:              event.Currency,
		Status:                event.Status,
		PaymentMethod:         event.PaymentMethod,
		TransactionDate:       occurred.UTC(),
	}
	if ref := event.Reference; ref != nil {
		txn.ReferenceNumber = optional(ref.Number)
		txn.ReferenceEntity = optional(ref.Entity)
	}
	if event.Status == enums.TransactionStatusFailed {
		txn.ErrorMessage = optional(event.ErrorDetail)
	}
	return txn
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
