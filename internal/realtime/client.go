package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/pickup-orders/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Upgrader accepts any origin; subscriptions are authorized by bearer token before upgrading.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket subscribed to a single room.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	room string
	send chan []byte
	logg *logger.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, room string, logg *logger.Logger) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		room: room,
		send: make(chan []byte, clientBuffer),
		logg: logg,
	}
}

// Serve registers the client and starts its pumps.
func (c *Client) Serve(ctx context.Context) {
	if !c.hub.Subscribe(c) {
		_ = c.conn.Close()
		return
	}
	go c.writePump()
	go c.readPump(ctx)
}

// readPump only watches for disconnects; clients never send commands.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unsubscribe(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && c.logg != nil {
				c.logg.Warn(c.logg.WithField(ctx, "room", c.room), "websocket closed unexpectedly: "+err.Error())
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
