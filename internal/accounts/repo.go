package accounts

import (
	"context"
	"errors"

	pkgdb "github.com/angelmondragon/pickup-orders/pkg/db"
	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoleBinding is the resolved role of a user. OutletID is set for vendor staff.
type RoleBinding struct {
	UserID   uuid.UUID
	Role     enums.Role
	OutletID *uuid.UUID
}

// IsStaffOf reports whether the binding is vendor staff at outletID.
func (b RoleBinding) IsStaffOf(outletID uuid.UUID) bool {
	return b.Role == enums.RoleVendorStaff && b.OutletID != nil && *b.OutletID == outletID
}

// Store resolves caller roles.
type Store interface {
	GetRole(ctx context.Context, userID uuid.UUID) (RoleBinding, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an account store over user_roles.
func NewRepository(db *gorm.DB) Store {
	return &repository{db: db}
}

// GetRole returns the user's binding. Users without a row are customers.
func (r *repository) GetRole(ctx context.Context, userID uuid.UUID) (RoleBinding, error) {
	var row models.UserRole
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if pkgdb.IsNotFound(err) {
		return RoleBinding{UserID: userID, Role: enums.RoleCustomer}, nil
	}
	if err != nil {
		return RoleBinding{}, err
	}
	if !row.Role.IsValid() {
		return RoleBinding{}, errors.New("user role row carries unknown role " + string(row.Role))
	}
	return RoleBinding{UserID: userID, Role: row.Role, OutletID: row.OutletID}, nil
}
