package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pickup-orders/pkg/enums"
)

// UserRole binds a user to a role and, for staff, to the outlet they work at.
type UserRole struct {
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	Role      enums.Role `gorm:"column:role;type:text;not null"`
	OutletID  *uuid.UUID `gorm:"column:outlet_id;type:uuid"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserRole) TableName() string { return "user_roles" }
