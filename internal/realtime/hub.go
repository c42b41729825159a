package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/angelmondragon/pickup-orders/pkg/logger"
	"github.com/google/uuid"
)

const (
	broadcastBuffer = 256
	clientBuffer    = 64
)

// Event is the frame pushed to subscribers.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func OrderRoom(orderID uuid.UUID) string   { return "order:" + orderID.String() }
func UserRoom(userID uuid.UUID) string     { return "user:" + userID.String() }
func OutletRoom(outletID uuid.UUID) string { return "outlet:" + outletID.String() }

type roomEvent struct {
	rooms []string
	event Event
}

// Hub owns room membership. Only Run mutates rooms; the mutex guards reads
// from RoomSize.
type Hub struct {
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomEvent
	done       chan struct{}
	logg       *logger.Logger
	mu         sync.RWMutex
}

func NewHub(logg *logger.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomEvent, broadcastBuffer),
		done:       make(chan struct{}),
		logg:       logg,
	}
}

// Run processes membership and broadcasts until ctx is cancelled, then closes
// every client's send channel.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for room, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				delete(h.rooms, room)
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.room] == nil {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			message, err := json.Marshal(msg.event)
			if err != nil {
				if h.logg != nil {
					h.logg.Error(ctx, "realtime event marshal failed", err)
				}
				continue
			}
			h.mu.Lock()
			for _, room := range msg.rooms {
				for client := range h.rooms[room] {
					select {
					case client.send <- message:
					default:
						// slow consumer
						h.drop(client)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(client *Client) {
	clients, ok := h.rooms[client.room]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.room)
	}
}

// Broadcast queues event for every client in rooms.
func (h *Hub) Broadcast(ctx context.Context, rooms []string, event Event) error {
	select {
	case h.broadcast <- &roomEvent{rooms: rooms, event: event}:
		return nil
	case <-h.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a client. It reports false once the hub has stopped.
func (h *Hub) Subscribe(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unsubscribe(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// RoomSize reports how many clients are subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
