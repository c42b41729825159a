package pickup

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// QueuePenalty is added per order already queued at the outlet.
	QueuePenalty = 2 * time.Minute
	// MaxPrep caps an estimate so oversized carts or queues cannot overflow.
	MaxPrep = 24 * time.Hour
)

// Estimator predicts when an order will be ready for pickup.
type Estimator interface {
	EstimatePickup(ctx context.Context, outletID uuid.UUID, itemCount int) (time.Time, error)
}

// QueueEstimator derives the pickup time from outlet prep settings and the
// number of orders currently placed or preparing there.
type QueueEstimator struct {
	db  *gorm.DB
	now func() time.Time
}

func NewQueueEstimator(db *gorm.DB) *QueueEstimator {
	return &QueueEstimator{db: db, now: time.Now}
}

func (e *QueueEstimator) EstimatePickup(ctx context.Context, outletID uuid.UUID, itemCount int) (time.Time, error) {
	var outlet models.Outlet
	if err := e.db.WithContext(ctx).Where("id = ?", outletID).First(&outlet).Error; err != nil {
		return time.Time{}, fmt.Errorf("load outlet %s: %w", outletID, err)
	}

	var queued int64
	err := e.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("outlet_id = ?", outletID).
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusPlaced, enums.OrderStatusPreparing}).
		Count(&queued).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("count queued orders: %w", err)
	}

	minutes := int64(outlet.BasePrepMinutes) +
		clampMul(int64(outlet.PerItemPrepMinutes), int64(itemCount)) +
		clampMul(queued, int64(QueuePenalty/time.Minute))
	prep := MaxPrep
	if minutes >= 0 && minutes < int64(MaxPrep/time.Minute) {
		prep = time.Duration(minutes) * time.Minute
	}
	return e.now().UTC().Add(prep), nil
}

// clampMul multiplies non-negative factors, saturating at the MaxPrep minute count.
func clampMul(a, b int64) int64 {
	limit := int64(MaxPrep / time.Minute)
	if a <= 0 || b <= 0 {
		return 0
	}
	if a > limit/b {
		return limit
	}
	return a * b
}
