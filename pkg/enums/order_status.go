package enums

import "fmt"

// OrderStatus is the reconciled payment state of a merchant order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusFailed,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusFailed:    1,
	OrderStatusPaid:      2,
	OrderStatusCancelled: 2,
	OrderStatusRefunded:  3,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Rank orders statuses for the monotonic guard. Equal ranks may replace each other.
func (s OrderStatus) Rank() int {
	return orderStatusRank[s]
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
