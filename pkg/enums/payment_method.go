package enums

import (
	"fmt"
	"strings"
)

// PaymentMethod selects how the customer settles an order.
type PaymentMethod string

const (
	PaymentMethodGateway      PaymentMethod = "gateway"
	PaymentMethodCashOnPickup PaymentMethod = "cash_on_pickup"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodGateway,
	PaymentMethodCashOnPickup,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod. An empty value
// selects the gateway.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return PaymentMethodGateway, nil
	}
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
