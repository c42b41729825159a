package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/pickup-orders/pkg/logger"
)

// Bus is the cross-replica pub/sub transport. *redis.Client satisfies it.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
}

type fanoutMessage struct {
	Rooms []string `json:"rooms"`
	Event Event    `json:"event"`
}

// Fanout publishes relay broadcasts on a shared channel and delivers every
// message on that channel to the local hub, so clients connected to any
// replica see updates relayed by any other.
type Fanout struct {
	bus     Bus
	hub     broadcaster
	channel string
	logg    *logger.Logger
}

func NewFanout(bus Bus, hub broadcaster, channel string, logg *logger.Logger) (*Fanout, error) {
	if bus == nil {
		return nil, errors.New("bus is required")
	}
	if hub == nil {
		return nil, errors.New("hub is required")
	}
	if channel == "" {
		return nil, errors.New("channel is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Fanout{bus: bus, hub: hub, channel: channel, logg: logg}, nil
}

// Broadcast publishes event for rooms to every replica, this one included.
func (f *Fanout) Broadcast(ctx context.Context, rooms []string, event Event) error {
	payload, err := json.Marshal(fanoutMessage{Rooms: rooms, Event: event})
	if err != nil {
		return fmt.Errorf("marshal fanout message: %w", err)
	}
	if err := f.bus.Publish(ctx, f.channel, payload); err != nil {
		return fmt.Errorf("publish fanout message: %w", err)
	}
	return nil
}

// Run delivers channel messages to the local hub until ctx is cancelled,
// resubscribing with backoff when the subscription drops.
func (f *Fanout) Run(ctx context.Context) error {
	backoff := defaultPoll
	for {
		err := f.consume(ctx)
		if ctx.Err() != nil {
			f.logg.Info(ctx, "realtime fanout stopped")
			return nil
		}
		if err != nil {
			f.logg.Error(f.logg.WithField(ctx, "channel", f.channel), "realtime fanout subscription failed", err)
			backoff = nextBackoff(backoff, defaultPoll, maxBackoff)
		} else {
			backoff = defaultPoll
		}
		if err := sleep(ctx, withJitter(backoff)); err != nil {
			return nil
		}
	}
}

func (f *Fanout) consume(ctx context.Context) error {
	messages, closeSub, err := f.bus.Subscribe(ctx, f.channel)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeSub(); closeErr != nil {
			f.logg.Warn(f.logg.WithField(ctx, "error", closeErr.Error()), "realtime fanout close failed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-messages:
			if !ok {
				return nil
			}
			f.deliver(ctx, payload)
		}
	}
}

func (f *Fanout) deliver(ctx context.Context, payload []byte) {
	var msg fanoutMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		f.logg.Warn(f.logg.WithField(ctx, "error", err.Error()), "dropped malformed realtime fanout message")
		return
	}
	if len(msg.Rooms) == 0 {
		return
	}
	deliverCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := f.hub.Broadcast(deliverCtx, msg.Rooms, msg.Event); err != nil && ctx.Err() == nil {
		f.logg.Error(deliverCtx, "realtime fanout delivery failed", err)
	}
}
