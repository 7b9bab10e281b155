package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oportunidade/payhook/pkg/enums"
)

// Order is a merchant transaction awaiting or having received payment.
type Order struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	MerchantTransactionID string               `gorm:"column:merchant_transaction_id;size:128;not null;uniqueIndex:orders_merchant_transaction_id_key" json:"merchant_transaction_id"`
	Amount                decimal.Decimal      `gorm:"column:amount;type:numeric(18,2);not null" json:"amount"`
	Currency              string               `gorm:"column:currency;size:3;not null" json:"currency"`
	Status                enums.OrderStatus    `gorm:"column:status;size:16;not null" json:"status"`
	ReferenceID           *uuid.UUID           `gorm:"column:reference_id;type:uuid" json:"reference_id,omitempty"`
	CustomerName          *string              `gorm:"column:customer_name" json:"customer_name,omitempty"`
	CustomerEmail         *string              `gorm:"column:customer_email" json:"customer_email,omitempty"`
	CustomerPhone         *string              `gorm:"column:customer_phone" json:"customer_phone,omitempty"`
	CustomerDocument      *string              `gorm:"column:customer_document" json:"customer_document,omitempty"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	Transactions          []PaymentTransaction `gorm:"foreignKey:OrderID;references:ID" json:"transactions,omitempty"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}
