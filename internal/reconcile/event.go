package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/oportunidade/payhook/pkg/enums"
)

// PaymentEvent is a normalized gateway notification.
type PaymentEvent struct {
	ExternalID        string                  `json:"external_id"`
	MerchantReference string                  `json:"merchant_reference"`
	Amount            decimal.Decimal         `json:"amount"`
	Currency          string                  `json:"currency"`
	Status            enums.TransactionStatus `json:"status"`
	PaymentMethod     string                  `json:"payment_method,omitempty"`
	Reference         *ReferenceInfo          `json:"reference,omitempty"`
	Customer          *CustomerInfo           `json:"customer,omitempty"`
	ErrorDetail       string                  `json:"error_detail,omitempty"`
	Timestamp         time.Time               `json:"timestamp"`
}

// ReferenceInfo identifies the payment reference the customer paid against.
type ReferenceInfo struct {
	Number string `json:"number"`
	Entity string `json:"entity,omitempty"`
}

type CustomerInfo struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Document string `json:"document,omitempty"`
}

// ReferenceNotFoundError reports a reference number with no registered Reference.
type ReferenceNotFoundError struct {
	ReferenceNumber string
}

func (e *ReferenceNotFoundError) Error() string {
	return "payment reference " + e.ReferenceNumber + " not found"
}
