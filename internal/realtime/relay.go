package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/angelmondragon/pickup-orders/internal/orders"
	pkgdb "github.com/angelmondragon/pickup-orders/pkg/db"
	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	"github.com/angelmondragon/pickup-orders/pkg/logger"
	"github.com/angelmondragon/pickup-orders/pkg/outbox"
	"github.com/google/uuid"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type outboxStore interface {
	FetchUnpublished(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

type orderReader interface {
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type broadcaster interface {
	Broadcast(ctx context.Context, rooms []string, event Event) error
}

type RelayParams struct {
	Outbox       outboxStore
	Orders       orderReader
	Hub          broadcaster
	Decoders     *outbox.DecoderRegistry
	Logger       *logger.Logger
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
}

// Relay pushes the current state of every order touched by an outbox event to
// its order, user and outlet rooms.
type Relay struct {
	outbox       outboxStore
	orders       orderReader
	hub          broadcaster
	decoders     *outbox.DecoderRegistry
	logg         *logger.Logger
	batchSize    int
	pollInterval time.Duration
	maxAttempts  int
}

func NewRelay(params RelayParams) (*Relay, error) {
	if params.Outbox == nil {
		return nil, errors.New("outbox store is required")
	}
	if params.Orders == nil {
		return nil, errors.New("order reader is required")
	}
	if params.Hub == nil {
		return nil, errors.New("hub is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	decoders := params.Decoders
	if decoders == nil {
		decoders = outbox.OrderDecoders()
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := params.PollInterval
	if poll <= 0 {
		poll = defaultPoll
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Relay{
		outbox:       params.Outbox,
		orders:       params.Orders,
		hub:          params.Hub,
		decoders:     decoders,
		logg:         params.Logger,
		batchSize:    batch,
		pollInterval: poll,
		maxAttempts:  maxAttempts,
	}, nil
}

func (r *Relay) Run(ctx context.Context) error {
	backoff := r.pollInterval
	for {
		select {
		case <-ctx.Done():
			r.logg.Info(ctx, "realtime relay stopped")
			return nil
		default:
		}

		processed, err := r.ProcessBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logg.Error(ctx, "realtime relay batch error", err)
			backoff = nextBackoff(backoff, r.pollInterval, maxBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return nil
			}
			continue
		}
		backoff = r.pollInterval

		if processed > 0 {
			continue
		}
		if err := sleep(ctx, withJitter(r.pollInterval)); err != nil {
			return nil
		}
	}
}

// ProcessBatch relays one batch and returns how many events were handled.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	events, err := r.outbox.FetchUnpublished(ctx, r.batchSize, r.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("fetch outbox events: %w", err)
	}
	for _, event := range events {
		if err := r.relay(ctx, event); err != nil {
			logCtx := r.logg.WithFields(ctx, map[string]any{
				"outbox_event_id": event.ID.String(),
				"event_type":      string(event.EventType),
				"order_id":        event.AggregateID.String(),
			})
			r.logg.Error(logCtx, "realtime relay failed", err)
			if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
				return 0, fmt.Errorf("mark outbox event failed: %w", markErr)
			}
			continue
		}
		if err := r.outbox.MarkPublished(ctx, event.ID); err != nil {
			return 0, fmt.Errorf("mark outbox event published: %w", err)
		}
	}
	return len(events), nil
}

func (r *Relay) relay(ctx context.Context, event models.OutboxEvent) error {
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if _, err := r.decoders.Decode(event.EventType, envelope.Version, envelope.Data); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	// Latest state wins: the row is re-read rather than trusting the event payload.
	order, err := r.orders.FindByID(ctx, event.AggregateID)
	if pkgdb.IsNotFound(err) {
		r.logg.Debug(r.logg.WithOrderID(ctx, event.AggregateID.String()), "relay skipped event for deleted order")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}

	payload, err := json.Marshal(orders.NewOrderView(order))
	if err != nil {
		return fmt.Errorf("marshal order view: %w", err)
	}
	rooms := []string{OrderRoom(order.ID), UserRoom(order.UserID), OutletRoom(order.OutletID)}
	return r.hub.Broadcast(ctx, rooms, Event{Type: string(event.EventType), Payload: payload})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
