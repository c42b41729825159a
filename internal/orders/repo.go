package orders

import (
	"context"
	"time"

	pkgdb "github.com/angelmondragon/pickup-orders/pkg/db"
	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
	"github.com/angelmondragon/pickup-orders/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is the authoritative order store. Every status change is a
// conditional update guarded on the expected current value.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.Order, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, extra map[string]any) (bool, error)
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) (bool, error)
	RecordPaymentOnCancelled(ctx context.Context, orderID uuid.UUID, gatewayPaymentID string) (bool, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error)
	FindPendingPaymentBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the order and its items. A gateway intent can back only one order.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	err := r.db.WithContext(ctx).Create(order).Error
	if pkgdb.IsUniqueViolation(err, "payment_intent_id") {
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "payment intent already bound to an order")
	}
	return err
}

// DeleteOrder removes an order and its items. Used to compensate a failed placement.
func (r *repository) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.OrderItem{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id = ?", orderID).Delete(&models.Order{}).Error
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", intentID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionStatus applies UPDATE ... WHERE id = ? AND status = from. It reports
// false when the row was not in the expected status.
func (r *repository) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkPaymentFailed never downgrades a completed payment.
func (r *repository) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", orderID, enums.PaymentStatusCompleted).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusFailed,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordPaymentOnCancelled stores a capture that arrived after the order was cancelled.
func (r *repository) RecordPaymentOnCancelled(ctx context.Context, orderID uuid.UUID, gatewayPaymentID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND payment_status <> ?", orderID, enums.OrderStatusCancelled, enums.PaymentStatusCompleted).
		Updates(map[string]any{
			"payment_status":     enums.PaymentStatusCompleted,
			"gateway_payment_id": gatewayPaymentID,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// List returns orders newest first using a (created_at, id) cursor.
func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.OutletID != nil {
		query = query.Where("outlet_id = ?", *filter.OutletID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if cursor != nil {
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	err = query.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	page, more := pagination.Trim(rows, limit)
	list := &OrderList{Orders: page}
	if more {
		last := page[len(page)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return list, nil
}

// FindPendingPaymentBefore returns orders still awaiting payment that were created before cutoff.
func (r *repository) FindPendingPaymentBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	query := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPendingPayment, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
