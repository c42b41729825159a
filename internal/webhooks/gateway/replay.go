package gatewaywebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultReplayTTL bounds how long a processed event is remembered.
const DefaultReplayTTL = 24 * time.Hour

type replayStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookEventKey(event, reference string) string
}

// ReplayGuard remembers delivered webhook events so duplicates short-circuit.
type ReplayGuard struct {
	store replayStore
	ttl   time.Duration
}

func NewReplayGuard(store replayStore, ttl time.Duration) (*ReplayGuard, error) {
	if store == nil {
		return nil, errors.New("replay store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = DefaultReplayTTL
	}
	return &ReplayGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports true when the event was already seen.
func (g *ReplayGuard) CheckAndMark(ctx context.Context, event, reference string) (bool, error) {
	if event == "" || reference == "" {
		return false, errors.New("event and reference are required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookEventKey(event, reference), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set replay key: %w", err)
	}
	return !set, nil
}

// Forget clears the mark so a gateway retry is processed again.
func (g *ReplayGuard) Forget(ctx context.Context, event, reference string) error {
	if event == "" || reference == "" {
		return errors.New("event and reference are required")
	}
	return g.store.Del(ctx, g.store.WebhookEventKey(event, reference))
}
