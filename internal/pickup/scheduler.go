package pickup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/pickup-orders/pkg/logger"
	"github.com/google/uuid"
)

// DefaultFallback is used when no fallback is configured.
const DefaultFallback = 30 * time.Minute

// Schedule is the pickup time chosen for an order.
type Schedule struct {
	PickupAt     time.Time
	UsedFallback bool
}

// Scheduler wraps an Estimator with a single retry and a fixed fallback.
type Scheduler struct {
	estimator Estimator
	fallback  time.Duration
	logg      *logger.Logger
	now       func() time.Time
}

func NewScheduler(estimator Estimator, fallback time.Duration, logg *logger.Logger) (*Scheduler, error) {
	if estimator == nil {
		return nil, fmt.Errorf("pickup estimator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if fallback <= 0 {
		fallback = DefaultFallback
	}
	return &Scheduler{estimator: estimator, fallback: fallback, logg: logg, now: time.Now}, nil
}

// Schedule never fails: estimator errors or past estimates degrade to now+fallback.
func (s *Scheduler) Schedule(ctx context.Context, outletID uuid.UUID, itemCount int) Schedule {
	var cause error
	for attempt := 1; attempt <= 2; attempt++ {
		at, err := s.estimator.EstimatePickup(ctx, outletID, itemCount)
		if err != nil {
			cause = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if !at.After(s.now()) {
			cause = errors.New("estimator returned a time in the past")
			break
		}
		return Schedule{PickupAt: at.UTC()}
	}

	at := s.now().UTC().Add(s.fallback)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"outlet_id":     outletID.String(),
		"item_count":    itemCount,
		"fallback":      s.fallback.String(),
		"fallback_time": at,
		"error":         cause.Error(),
	})
	s.logg.Warn(logCtx, "pickup estimate unavailable; using fallback")
	return Schedule{PickupAt: at, UsedFallback: true}
}
