package enums

import "fmt"

// ReceiptStatus tracks a webhook delivery through the idempotency ledger.
type ReceiptStatus string

const (
	ReceiptStatusReceived   ReceiptStatus = "RECEIVED"
	ReceiptStatusProcessing ReceiptStatus = "PROCESSING"
	ReceiptStatusProcessed  ReceiptStatus = "PROCESSED"
	ReceiptStatusFailed     ReceiptStatus = "FAILED"
	ReceiptStatusDeadLetter ReceiptStatus = "DEAD_LETTER"
)

var validReceiptStatuses = []ReceiptStatus{
	ReceiptStatusReceived,
	ReceiptStatusProcessing,
	ReceiptStatusProcessed,
	ReceiptStatusFailed,
	ReceiptStatusDeadLetter,
}

// ClaimableReceiptStatuses are the states a worker may move to PROCESSING.
var ClaimableReceiptStatuses = []ReceiptStatus{ReceiptStatusReceived, ReceiptStatusFailed}

// String implements fmt.Stringer.
func (s ReceiptStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ReceiptStatus.
func (s ReceiptStatus) IsValid() bool {
	for _, candidate := range validReceiptStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Settled reports whether a redelivery must not be enqueued again.
func (s ReceiptStatus) Settled() bool {
	return s == ReceiptStatusProcessed || s == ReceiptStatusProcessing
}

// ParseReceiptStatus converts raw input into a ReceiptStatus.
func ParseReceiptStatus(value string) (ReceiptStatus, error) {
	for _, candidate := range validReceiptStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid receipt status %q", value)
}
