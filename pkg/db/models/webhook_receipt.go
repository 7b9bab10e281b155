package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oportunidade/payhook/pkg/enums"
)

// WebhookReceipt is one row of the idempotency ledger, keyed by the gateway's event id.
type WebhookReceipt struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ExternalID        string              `gorm:"column:external_id;size:128;not null;uniqueIndex:webhook_receipts_external_id_key"`
	MerchantReference string              `gorm:"column:merchant_reference;size:128;not null;index"`
	EventKind         string              `gorm:"column:event_kind;size:64;not null"`
	RawPayload        datatypes.JSON      `gorm:"column:raw_payload;not null"`
	Status            enums.ReceiptStatus `gorm:"column:status;size:16;not null;index"`
	RetryCount        int                 `gorm:"column:retry_count;not null;default:0"`
	LastError         *string             `gorm:"column:last_error"`
	ReceivedAt        time.Time           `gorm:"column:received_at;not null"`
	ClaimedAt         *time.Time          `gorm:"column:claimed_at"`
	ProcessedAt       *time.Time          `gorm:"column:processed_at"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (WebhookReceipt) TableName() string { return "webhook_receipts" }

func (r *WebhookReceipt) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = time.Now().UTC()
	}
	return nil
}
