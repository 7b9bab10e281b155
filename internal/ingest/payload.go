package ingest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/oportunidade/payhook/internal/reconcile"
	"github.com/oportunidade/payhook/pkg/enums"
	pkgerrors "github.com/oportunidade/payhook/pkg/errors"
)

const (
	defaultEventKind = "PAYMENT"
	maxAmountScale   = 2
)

var contactValidator = validator.New()

// Payload is the AppyPay webhook body.
type Payload struct {
	ID                    string             `json:"id" validate:"required,max=128"`
	MerchantTransactionID string             `json:"merchantTransactionId" validate:"required,max=128"`
	Type                  string             `json:"type" validate:"omitempty,max=64"`
	Amount                *decimal.Decimal   `json:"amount" validate:"required"`
	Currency              string             `json:"currency" validate:"required,len=3"`
	Status                string             `json:"status" validate:"required"`
	PaymentMethod         string             `json:"paymentMethod" validate:"omitempty,max=64"`
	Reference             *ReferencePayload  `json:"reference,omitempty" validate:"omitempty"`
	Customer              *CustomerPayload   `json:"customer,omitempty" validate:"omitempty"`
	ResponseStatus        *ResponseStatus    `json:"responseStatus,omitempty"`
	Events                []TransactionEvent `json:"events,omitempty"`
	CreatedDate           *time.Time         `json:"createdDate,omitempty"`
	UpdatedDate           *time.Time         `json:"updatedDate,omitempty"`
	Metadata              json.RawMessage    `json:"metadata,omitempty"`
}

// ReferencePayload dates arrive without a zone and are kept verbatim.
type ReferencePayload struct {
	ReferenceNumber string `json:"referenceNumber" validate:"omitempty,max=64"`
	Entity          string `json:"entity" validate:"omitempty,max=64"`
	DueDate         string `json:"dueDate,omitempty"`
	StartDate       string `json:"startDate,omitempty"`
	Status          string `json:"status,omitempty"`
}

type CustomerPayload struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	DocumentNumber string `json:"documentNumber"`
	DocumentType   string `json:"documentType"`
}

type ResponseStatus struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Success      *bool  `json:"success"`
	ErrorCode    string `json:"errorCode"`
	ErrorDetails string `json:"errorDetails"`
}

type TransactionEvent struct {
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventKind is the ledger's event kind for the payload.
func (p Payload) EventKind() string {
	if kind := strings.TrimSpace(p.Type); kind != "" {
		return strings.ToUpper(kind)
	}
	return defaultEventKind
}

// Normalize turns a decoded payload into a PaymentEvent. It enforces the rules
// tags cannot express: a known status and a positive amount with at most two
// decimal places.
func Normalize(p Payload) (reconcile.PaymentEvent, error) {
	status, err := enums.ParseTransactionStatus(p.Status)
	if err != nil {
		return reconcile.PaymentEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]any{"status": "must be one of Success, Pending, Failed, Cancelled, Refunded"})
	}
	if p.Amount == nil || !p.Amount.IsPositive() {
		return reconcile.PaymentEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]any{"amount": "must be greater than zero"})
	}
	if p.Amount.Exponent() < -maxAmountScale && !p.Amount.Equal(p.Amount.Truncate(maxAmountScale)) {
		return reconcile.PaymentEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]any{"amount": "must have at most 2 decimal places"})
	}
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.MerchantTransactionID) == "" {
		return reconcile.PaymentEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "id and merchantTransactionId are required")
	}

	event := reconcile.PaymentEvent{
		ExternalID:        strings.TrimSpace(p.ID),
		MerchantReference: strings.TrimSpace(p.MerchantTransactionID),
		Amount:            *p.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(p.Currency)),
		Status:            status,
		PaymentMethod:     strings.TrimSpace(p.PaymentMethod),
		Timestamp:         occurredAt(p),
	}
	if ref := p.Reference; ref != nil && strings.TrimSpace(ref.ReferenceNumber) != "" {
		event.Reference = &reconcile.ReferenceInfo{
			Number: strings.TrimSpace(ref.ReferenceNumber),
			Entity: strings.TrimSpace(ref.Entity),
		}
	}
	if c := p.Customer; c != nil {
		event.Customer = &reconcile.CustomerInfo{
			Name:     c.Name,
			Email:    usableEmail(c.Email),
			Phone:    c.Phone,
			Document: c.DocumentNumber,
		}
	}
	if rs := p.ResponseStatus; rs != nil {
		event.ErrorDetail = strings.TrimSpace(rs.Message)
		if event.ErrorDetail == "" {
			event.ErrorDetail = strings.TrimSpace(rs.ErrorDetails)
		}
	}
	return event, nil
}

// usableEmail blanks contact emails that do not parse. Customer contact data
// is informational and never rejects a payment.
func usableEmail(raw string) string {
	email := strings.TrimSpace(raw)
	if email == "" || contactValidator.Var(email, "email") != nil {
		return ""
	}
	return email
}

// DecodeStored rebuilds the event from a ledger receipt's raw payload.
func DecodeStored(raw []byte) (reconcile.PaymentEvent, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return reconcile.PaymentEvent{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stored payload")
	}
	return Normalize(p)
}

func occurredAt(p Payload) time.Time {
	switch {
	case p.UpdatedDate != nil && !p.UpdatedDate.IsZero():
		return p.UpdatedDate.UTC()
	case p.CreatedDate != nil && !p.CreatedDate.IsZero():
		return p.CreatedDate.UTC()
	default:
		return time.Now().UTC()
	}
}
