package models

import (
	"time"

	"github.com/google/uuid"
)

// Outlet is a pickup counter. The prep minutes drive the default pickup estimate.
type Outlet struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name               string    `gorm:"column:name;not null"`
	BasePrepMinutes    int       `gorm:"column:base_prep_minutes;not null;default:10"`
	PerItemPrepMinutes int       `gorm:"column:per_item_prep_minutes;not null;default:2"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Outlet) TableName() string { return "outlets" }
