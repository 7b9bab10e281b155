// Package accounting forwards confirmed payments to Odoo and records the
// payment id Odoo assigns.
package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oportunidade/payhook/pkg/config"
	"github.com/oportunidade/payhook/pkg/db/models"
	"github.com/oportunidade/payhook/pkg/logger"
	"github.com/oportunidade/payhook/pkg/metrics"
	"github.com/oportunidade/payhook/pkg/odoo"
)

type Outcome string

const (
	Forwarded      Outcome = "forwarded"
	Rejected       Outcome = "rejected"
	TransportError Outcome = "transport_error"
)

// Result is the outcome of one forward attempt.
type Result struct {
	Outcome           Outcome
	ExternalPaymentID string
	Reason            string
	Err               error
}

// Sender is the outbound transport.
type Sender interface {
	SendPayment(ctx context.Context, payment odoo.PaymentData) (*odoo.WebhookResponse, error)
}

// PaymentIDRecorder stores the accounting id on the local transaction.
type PaymentIDRecorder interface {
	SetExternalPaymentID(ctx context.Context, id uuid.UUID, externalPaymentID string) error
}

type Adapter struct {
	sender   Sender
	recorder PaymentIDRecorder
	cfg      config.AccountingConfig
	logg     *logger.Logger
	metrics  *metrics.DispatchMetrics
}

func NewAdapter(sender Sender, recorder PaymentIDRecorder, cfg config.AccountingConfig, logg *logger.Logger, m *metrics.DispatchMetrics) (*Adapter, error) {
	if sender == nil {
		return nil, errors.New("accounting sender required")
	}
	if recorder == nil {
		return nil, errors.New("payment id recorder required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Adapter{sender: sender, recorder: recorder, cfg: cfg, logg: logg, metrics: m}, nil
}

// Forward posts the transaction to Odoo. Failures are reported in the Result
// and never returned as errors; the local PAID state is left intact.
func (a *Adapter) Forward(ctx context.Context, order *models.Order, txn *models.PaymentTransaction) Result {
	ctx = a.logg.WithFields(ctx, map[string]any{
		"transaction_id":          txn.ID.String(),
		"merchant_transaction_id": order.MerchantTransactionID,
	})

	resp, err := a.sender.SendPayment(ctx, a.paymentData(order, txn))
	if err != nil {
		a.metrics.IncSync(metrics.SyncTransportError)
		a.logg.Error(ctx, "accounting forward failed", err)
		return Result{Outcome: TransportError, Err: err}
	}
	if !resp.Success {
		reason := strings.TrimSpace(resp.Error)
		if reason == "" {
			reason = strings.TrimSpace(resp.Message)
		}
		a.metrics.IncSync(metrics.SyncRejected)
		a.logg.Warn(a.logg.WithField(ctx, "reason", reason), "accounting rejected payment")
		return Result{Outcome: Rejected, Reason: reason}
	}

	a.metrics.IncSync(metrics.SyncForwarded)
	result := Result{Outcome: Forwarded}
	if resp.PaymentID == nil {
		a.logg.Warn(ctx, "accounting accepted payment without an id")
		return result
	}

	result.ExternalPaymentID = fmt.Sprintf("%d", *resp.PaymentID)
	ctx = a.logg.WithField(ctx, "external_payment_id", result.ExternalPaymentID)
	if err := a.recorder.SetExternalPaymentID(ctx, txn.ID, result.ExternalPaymentID); err != nil {
		a.logg.Error(ctx, "store external payment id", err)
		result.Err = err
		return result
	}
	txn.ExternalPaymentID = &result.ExternalPaymentID
	a.logg.Info(ctx, "payment forwarded to accounting")
	return result
}

func (a *Adapter) paymentData(order *models.Order, txn *models.PaymentTransaction) odoo.PaymentData {
	reference := order.MerchantTransactionID
	if txn.ReferenceNumber != nil && *txn.ReferenceNumber != "" {
		reference = *txn.ReferenceNumber
	}
	data := odoo.PaymentData{
		Amount:           txn.Amount.StringFixed(2),
		CurrencyID:       a.cfg.CurrencyID,
		PaymentReference: reference,
		PaymentDate:      txn.TransactionDate.UTC().Format(time.DateOnly),
		PaymentType:      "inbound",
		JournalID:        a.cfg.JournalID,
		PaymentMethodID:  a.cfg.PaymentMethodID,
		State:            "posted",
		Communication:    fmt.Sprintf("Payment %s via %s", reference, txn.PaymentMethod),
	}
	if order.CustomerName != nil {
		data.PartnerName = *order.CustomerName
	}
	return data
}
