package websocket

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orderdesk/orderdesk-backend/internal/models"
	"github.com/orderdesk/orderdesk-backend/internal/service"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024
)

// envelope wraps each notification with the client-scoped channel name the
// desktop UI listens on.
type envelope struct {
	Channel string              `json:"channel"`
	Event   models.Notification `json:"event"`
}

// clientMessage is the single inbound message shape: liveness pings.
type clientMessage struct {
	Type string `json:"type"`
}

// Client is one connected UI window: a websocket connection plus the delivery
// task draining its bus subscription. When delivery fails or the subscription
// closes, the task unregisters its own client id, so registry state and live
// delivery tasks never diverge for more than one failed write.
type Client struct {
	conn     *websocket.Conn
	sub      *service.Subscription
	notifier *service.Notifier
	log      *slog.Logger

	id      string
	channel string
	filters map[models.EventKind]bool // empty = deliver everything
}

// NewClient wires a subscription to a websocket connection.
func NewClient(conn *websocket.Conn, sub *service.Subscription, notifier *service.Notifier, log *slog.Logger, filters []models.EventKind) *Client {
	wanted := make(map[models.EventKind]bool, len(filters))
	for _, kind := range filters {
		wanted[kind] = true
	}
	return &Client{
		conn:     conn,
		sub:      sub,
		notifier: notifier,
		log:      log,
		id:       sub.ClientID(),
		channel:  "order-notification-" + sub.ClientID(),
		filters:  wanted,
	}
}

// wants applies the client's kind filter. Broadcast-to-all events (heartbeat,
// client lifecycle) bypass it.
func (c *Client) wants(ev models.Notification) bool {
	if ev.ToAll || len(c.filters) == 0 {
		return true
	}
	return c.filters[ev.Kind]
}

// WritePump is the per-client delivery task: it forwards bus events to the
// websocket until delivery fails or the subscription closes, then unregisters
// its own client id and exits.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.notifier.Unsubscribe(c.id)
	}()

	for {
		select {
		case ev, ok := <-c.sub.Events():
			if !ok {
				// Subscription closed by unsubscribe, eviction, or shutdown.
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.wants(ev) {
				continue
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(envelope{Channel: c.channel, Event: ev}); err != nil {
				c.log.Error("delivery failed", "client_id", c.id, "type", ev.Kind.String(), "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump consumes inbound frames. Any traffic from the peer, pongs
// included, refreshes liveness; an explicit {"type":"heartbeat"} message does
// the same for UI layers that cannot rely on protocol pongs.
func (c *Client) ReadPump() {
	defer func() {
		c.conn.Close()
		c.notifier.Unsubscribe(c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.notifier.UpdateLiveness(c.id)
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", "client_id", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.log.Debug("ignoring malformed client message", "client_id", c.id)
		return
	}
	if msg.Type == "heartbeat" {
		c.notifier.UpdateLiveness(c.id)
	}
}
