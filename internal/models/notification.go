package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind enumerates every notification the backend can emit. The set is
// closed: throttling and delivery switch over it exhaustively, so a new kind
// cannot be added without updating those sites.
type EventKind int

const (
	EventOrderCreated EventKind = iota
	EventOrderUpdated
	EventOrderDeleted
	EventOrderStatusChanged
	EventOrderFlagsUpdated
	EventHeartbeat
	EventClientConnected
	EventClientDisconnected
)

// eventKindNames are the wire names used in JSON payloads and metric labels.
var eventKindNames = map[EventKind]string{
	EventOrderCreated:       "order_created",
	EventOrderUpdated:       "order_updated",
	EventOrderDeleted:       "order_deleted",
	EventOrderStatusChanged: "order_status_changed",
	EventOrderFlagsUpdated:  "order_flags_updated",
	EventHeartbeat:          "heartbeat",
	EventClientConnected:    "client_connected",
	EventClientDisconnected: "client_disconnected",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ParseEventKind maps a wire name back to its kind.
func ParseEventKind(name string) (EventKind, bool) {
	for k, n := range eventKindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// HasOrder reports whether events of this kind must carry an order id.
// Heartbeat and client lifecycle events are the only order-less kinds.
func (k EventKind) HasOrder() bool {
	switch k {
	case EventHeartbeat, EventClientConnected, EventClientDisconnected:
		return false
	case EventOrderCreated, EventOrderUpdated, EventOrderDeleted,
		EventOrderStatusChanged, EventOrderFlagsUpdated:
		return true
	}
	return false
}

func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *EventKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	kind, ok := ParseEventKind(name)
	if !ok {
		return fmt.Errorf("unknown event kind: %q", name)
	}
	*k = kind
	return nil
}

// Notification is one immutable event published on the bus. OrderID is 0 for
// the order-less kinds. ToAll marks events that bypass per-client kind filters
// (heartbeats and client lifecycle announcements).
type Notification struct {
	Kind        EventKind `json:"type"`
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	OriginID    string    `json:"client_id,omitempty"`
	ToAll       bool      `json:"broadcast_to_all"`
}
