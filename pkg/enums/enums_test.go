package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	for _, status := range validOrderStatuses {
		parsed, err := ParseOrderStatus(string(status))
		require.NoError(t, err)
		assert.Equal(t, status, parsed)
	}

	_, err := ParseOrderStatus("shipped")
	require.Error(t, err)
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, OrderStatusCompleted.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusPreparing.IsTerminal())
}

func TestParsePaymentMethodDefaultsToGateway(t *testing.T) {
	method, err := ParsePaymentMethod("")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodGateway, method)

	method, err = ParsePaymentMethod("cash_on_pickup")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodCashOnPickup, method)

	_, err = ParsePaymentMethod("crypto")
	require.Error(t, err)
}

func TestRoleAndPaymentStatusValidation(t *testing.T) {
	assert.True(t, RoleVendorStaff.IsValid())
	assert.False(t, Role("owner").IsValid())

	_, err := ParseRole("admin")
	require.NoError(t, err)

	assert.True(t, PaymentStatusCashOnPickup.IsValid())
	_, err = ParsePaymentStatus("refunded")
	require.Error(t, err)

	_, err = ParseCurrency("USD")
	require.Error(t, err)
}
