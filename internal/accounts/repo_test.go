package accounts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pickup-orders/pkg/db/dbtest"
	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/enums"
)

func TestGetRoleDefaultsToCustomer(t *testing.T) {
	store := NewRepository(dbtest.Open(t))
	userID := uuid.New()

	binding, err := store.GetRole(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, enums.RoleCustomer, binding.Role)
	assert.Nil(t, binding.OutletID)
	assert.Equal(t, userID, binding.UserID)
}

func TestGetRoleStaffBinding(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewRepository(conn)
	userID := uuid.New()
	outletID := uuid.New()
	require.NoError(t, conn.Create(&models.UserRole{UserID: userID, Role: enums.RoleVendorStaff, OutletID: &outletID}).Error)

	binding, err := store.GetRole(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, enums.RoleVendorStaff, binding.Role)
	assert.True(t, binding.IsStaffOf(outletID))
	assert.False(t, binding.IsStaffOf(uuid.New()))
}

func TestGetRoleRejectsUnknownRole(t *testing.T) {
	conn := dbtest.Open(t)
	userID := uuid.New()
	require.NoError(t, conn.Exec("INSERT INTO user_roles (user_id, role) VALUES (?, ?)", userID, "owner").Error)

	_, err := NewRepository(conn).GetRole(context.Background(), userID)
	require.Error(t, err)
}
