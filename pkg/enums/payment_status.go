package enums

import "fmt"

// PaymentStatus tracks the money side of an order independently of its kitchen status.
type PaymentStatus string

const (
	PaymentStatusUnpaid       PaymentStatus = "unpaid"
	PaymentStatusPending      PaymentStatus = "pending"
	PaymentStatusCompleted    PaymentStatus = "completed"
	PaymentStatusFailed       PaymentStatus = "failed"
	PaymentStatusCashOnPickup PaymentStatus = "cash_on_pickup"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusUnpaid,
	PaymentStatusPending,
	PaymentStatusCompleted,
	PaymentStatusFailed,
	PaymentStatusCashOnPickup,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
