package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/logger"
	"go.uber.org/multierr"
)

const (
	defaultPaymentWindow = 30 * time.Minute
	stalePaymentBatch    = 200
)

type stalePaymentReader interface {
	FindPendingPaymentBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type paymentExpirer interface {
	ExpirePayment(ctx context.Context, order *models.Order) (bool, error)
}

// StalePaymentJobParams configure expiry of orders whose gateway payment never arrived.
type StalePaymentJobParams struct {
	Logger        *logger.Logger
	Reader        stalePaymentReader
	Expirer       paymentExpirer
	PaymentWindow time.Duration
}

// NewStalePaymentJob cancels pending_payment orders older than the payment window.
// payment_status is left as the gateway last reported it.
func NewStalePaymentJob(params StalePaymentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("pending payment reader required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("payment expirer required")
	}
	window := params.PaymentWindow
	if window <= 0 {
		window = defaultPaymentWindow
	}
	return &stalePaymentJob{
		logg:    params.Logger,
		reader:  params.Reader,
		expirer: params.Expirer,
		window:  window,
		now:     time.Now,
	}, nil
}

type stalePaymentJob struct {
	logg    *logger.Logger
	reader  stalePaymentReader
	expirer paymentExpirer
	window  time.Duration
	now     func() time.Time
}

func (j *stalePaymentJob) Name() string { return "stale-payment-expiry" }

func (j *stalePaymentJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	stale, err := j.reader.FindPendingPaymentBefore(ctx, cutoff, stalePaymentBatch)
	if err != nil {
		return fmt.Errorf("load stale payments: %w", err)
	}

	var (
		errs    []error
		expired int
		skipped int
	)
	for i := range stale {
		order := &stale[i]
		applied, err := j.expirer.ExpirePayment(ctx, order)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		if !applied {
			skipped++
			continue
		}
		expired++
		j.logg.Info(j.logg.WithOrderID(ctx, order.ID.String()), "expired order awaiting payment")
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(stale),
		"expired":    expired,
		"skipped":    skipped,
	})
	j.logg.Info(logCtx, "stale payment sweep complete")
	return multierr.Combine(errs...)
}
