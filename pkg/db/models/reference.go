package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Reference is a payment reference issued to customers (entity + number pair).
type Reference struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ReferenceNumber string           `gorm:"column:reference_number;size:64;not null;uniqueIndex:references_reference_number_key" json:"reference_number"`
	Entity          string           `gorm:"column:entity;size:64" json:"entity,omitempty"`
	Currency        string           `gorm:"column:currency;size:3" json:"currency,omitempty"`
	MinAmount       *decimal.Decimal `gorm:"column:min_amount;type:numeric(18,2)" json:"min_amount,omitempty"`
	MaxAmount       *decimal.Decimal `gorm:"column:max_amount;type:numeric(18,2)" json:"max_amount,omitempty"`
	StartDate       *time.Time       `gorm:"column:start_date" json:"start_date,omitempty"`
	ExpirationDate  *time.Time       `gorm:"column:expiration_date" json:"expiration_date,omitempty"`
	IsActive        bool             `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Reference) TableName() string { return "payment_references" }

func (r *Reference) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
