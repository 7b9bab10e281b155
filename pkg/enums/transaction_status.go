package enums

import (
	"fmt"
	"strings"
)

// TransactionStatus is the outcome reported by the gateway for one payment attempt.
// It doubles as the normalized event status.
type TransactionStatus string

const (
	TransactionStatusSuccess   TransactionStatus = "SUCCESS"
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
	TransactionStatusRefunded  TransactionStatus = "REFUNDED"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusSuccess,
	TransactionStatusPending,
	TransactionStatusFailed,
	TransactionStatusCancelled,
	TransactionStatusRefunded,
}

var orderStatusByTransaction = map[TransactionStatus]OrderStatus{
	TransactionStatusSuccess:   OrderStatusPaid,
	TransactionStatusPending:   OrderStatusPending,
	TransactionStatusFailed:    OrderStatusFailed,
	TransactionStatusCancelled: OrderStatusCancelled,
	TransactionStatusRefunded:  OrderStatusRefunded,
}

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TransactionStatus.
func (s TransactionStatus) IsValid() bool {
	_, ok := orderStatusByTransaction[s]
	return ok
}

// OrderStatus maps the event outcome onto the order it settles.
func (s TransactionStatus) OrderStatus() (OrderStatus, bool) {
	status, ok := orderStatusByTransaction[s]
	return status, ok
}

// RequiresExistingOrder reports statuses that are meaningless for an unknown order.
func (s TransactionStatus) RequiresExistingOrder() bool {
	return s == TransactionStatusCancelled || s == TransactionStatusRefunded
}

// ParseTransactionStatus accepts the gateway's mixed-case spelling ("Success", "cancelled").
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	if normalized == "CANCELED" {
		normalized = string(TransactionStatusCancelled)
	}
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
