package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oportunidade/payhook/pkg/enums"
)

// PaymentTransaction is the audit record of one processed payment event.
type PaymentTransaction struct {
	ID                    uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID               uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ExternalTransactionID string                  `gorm:"column:external_transaction_id;size:128;not null;uniqueIndex:payment_transactions_external_transaction_id_key" json:"external_transaction_id"`
	Amount                decimal.Decimal         `gorm:"column:amount;type:numeric(18,2);not null" json:"amount"`
	Currency              string                  `gorm:"column:currency;size:3;not null" json:"currency"`
	Status                enums.TransactionStatus `gorm:"column:status;size:16;not null" json:"status"`
	PaymentMethod         string                  `gorm:"column:payment_method;size:64" json:"payment_method,omitempty"`
	ReferenceNumber       *string                 `gorm:"column:reference_number;size:64" json:"reference_number,omitempty"`
	ReferenceEntity       *string                 `gorm:"column:reference_entity;size:64" json:"reference_entity,omitempty"`
	TransactionDate       time.Time               `gorm:"column:transaction_date;not null" json:"transaction_date"`
	ErrorMessage          *string                 `gorm:"column:error_message" json:"error_message,omitempty"`
	ExternalPaymentID     *string                 `gorm:"column:external_payment_id;size:64" json:"external_payment_id,omitempty"`
	CreatedAt             time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

func (t *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
