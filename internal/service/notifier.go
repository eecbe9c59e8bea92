package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/orderdesk/orderdesk-backend/internal/config"
	"github.com/orderdesk/orderdesk-backend/internal/models"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/metrics"
)

var (
	// ErrAlreadyConnected means the client id is registered right now. Callers
	// should treat it as idempotent success, not retry.
	ErrAlreadyConnected = errors.New("client already subscribed")

	// ErrRecentlyConnected means the same id attempted to connect inside the
	// reconnect-guard window. Callers should back off past the window.
	ErrRecentlyConnected = errors.New("client reconnected inside guard window")
)

// recentGuardSize bounds the reconnect-guard table; entries also expire on
// their own after the guard window.
const recentGuardSize = 4096

// clientState is the registry record for one subscribed UI client.
type clientState struct {
	sub      *Subscription
	lastSeen time.Time
	active   bool
	filters  map[models.EventKind]bool // empty = all kinds
}

// Notifier owns all shared notification state for the process: the client
// registry, the throttle tables, the reconnect guard, and the fan-out bus.
// It is handed to handlers and background loops by reference; it is never
// copied.
type Notifier struct {
	cfg *config.Config
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*clientState

	bus      *bus
	throttle *throttle
	recent   *expirable.LRU[string, time.Time]

	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewNotifier creates the notification service. Call Start to launch the
// heartbeat and cleanup loops.
func NewNotifier(cfg *config.Config, log *slog.Logger) *Notifier {
	guard := time.Duration(cfg.ReconnectGuardSec) * time.Second
	return &Notifier{
		cfg:      cfg,
		log:      log,
		clients:  make(map[string]*clientState),
		bus:      newBus(cfg.EventBufferSize),
		throttle: newThrottle(cfg),
		recent:   expirable.NewLRU[string, time.Time](recentGuardSize, nil, guard),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Subscribe registers a client and returns its consumer handle. A duplicate id
// is rejected with ErrAlreadyConnected; an id seen inside the reconnect-guard
// window is rejected with ErrRecentlyConnected. On success a ClientConnected
// event is fanned out to every subscriber, the new one included.
func (n *Notifier) Subscribe(clientID string, filters []models.EventKind) (*Subscription, error) {
	n.mu.Lock()
	if _, ok := n.clients[clientID]; ok {
		n.mu.Unlock()
		n.log.Debug("duplicate subscribe ignored", "client_id", clientID)
		return nil, ErrAlreadyConnected
	}
	if _, ok := n.recent.Get(clientID); ok {
		n.mu.Unlock()
		n.log.Debug("subscribe rejected by reconnect guard", "client_id", clientID)
		return nil, ErrRecentlyConnected
	}

	sub := n.bus.add(clientID)
	wanted := make(map[models.EventKind]bool, len(filters))
	for _, kind := range filters {
		wanted[kind] = true
	}
	n.clients[clientID] = &clientState{
		sub:      sub,
		lastSeen: n.now(),
		active:   true,
		filters:  wanted,
	}
	n.mu.Unlock()

	n.recent.Add(clientID, n.now())
	metrics.NotificationClientsActive.Set(float64(n.SubscriberCount()))
	n.log.Info("client subscribed", "client_id", clientID, "filters", len(filters))

	n.emit(models.Notification{
		Kind:      models.EventClientConnected,
		Detail:    fmt.Sprintf("client %s connected", clientID),
		Timestamp: n.now(),
		OriginID:  clientID,
		ToAll:     true,
	})
	return sub, nil
}

// Unsubscribe removes a client and closes its subscription, terminating the
// delivery task. Idempotent: unknown ids are a no-op and publish nothing.
// A clean unsubscribe also clears the reconnect-guard entry, so the client
// may redial immediately; only re-subscribes without a preceding disconnect
// are held back by the guard.
func (n *Notifier) Unsubscribe(clientID string) {
	n.mu.Lock()
	_, ok := n.clients[clientID]
	if ok {
		delete(n.clients, clientID)
	}
	n.mu.Unlock()

	if !ok {
		n.log.Debug("unsubscribe for unknown client ignored", "client_id", clientID)
		return
	}

	n.recent.Remove(clientID)
	n.bus.remove(clientID)
	metrics.NotificationClientsActive.Set(float64(n.SubscriberCount()))
	n.log.Info("client unsubscribed", "client_id", clientID)

	n.emit(models.Notification{
		Kind:      models.EventClientDisconnected,
		Detail:    fmt.Sprintf("client %s disconnected", clientID),
		Timestamp: n.now(),
		OriginID:  clientID,
		ToAll:     true,
	})
}

// UpdateLiveness refreshes a client's liveness timestamp. Unknown ids are a
// no-op.
func (n *Notifier) UpdateLiveness(clientID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if state, ok := n.clients[clientID]; ok {
		state.lastSeen = n.now()
		state.active = true
	}
}

// SubscriberCount returns the number of live subscriptions.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.clients)
}

// ActiveClients returns the ids of all active clients, sorted.
func (n *Notifier) ActiveClients() []string {
	n.mu.RLock()
	ids := make([]string, 0, len(n.clients))
	for id, state := range n.clients {
		if state.active {
			ids = append(ids, id)
		}
	}
	n.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Filters returns a client's kind filter, or nil when it accepts everything.
func (n *Notifier) Filters(clientID string) []models.EventKind {
	n.mu.RLock()
	defer n.mu.RUnlock()
	state, ok := n.clients[clientID]
	if !ok || len(state.filters) == 0 {
		return nil
	}
	kinds := make([]models.EventKind, 0, len(state.filters))
	for kind := range state.filters {
		kinds = append(kinds, kind)
	}
	return kinds
}

// PublishOrderCreated announces a newly created order.
func (n *Notifier) PublishOrderCreated(orderID int64, orderNumber, origin string) (int, error) {
	return n.publishThrottled(models.Notification{
		Kind:        models.EventOrderCreated,
		OrderID:     orderID,
		OrderNumber: orderNumber,
		Detail:      "new order created",
		Timestamp:   n.now(),
		OriginID:    origin,
	})
}

// PublishOrderUpdated announces a generic order edit.
func (n *Notifier) PublishOrderUpdated(orderID int64, orderNumber, origin string) (int, error) {
	return n.publishThrottled(models.Notification{
		Kind:        models.EventOrderUpdated,
		OrderID:     orderID,
		OrderNumber: orderNumber,
		Detail:      "order updated",
		Timestamp:   n.now(),
		OriginID:    origin,
	})
}

// PublishOrderDeleted announces an order removal.
func (n *Notifier) PublishOrderDeleted(orderID int64, orderNumber, origin string) (int, error) {
	return n.publishThrottled(models.Notification{
		Kind:        models.EventOrderDeleted,
		OrderID:     orderID,
		OrderNumber: orderNumber,
		Detail:      "order deleted",
		Timestamp:   n.now(),
		OriginID:    origin,
	})
}

// PublishStatusChanged announces a workflow status transition. The poller and
// the status command handler both land here, sharing one throttle key space.
func (n *Notifier) PublishStatusChanged(orderID int64, orderNumber, detail, origin string) (int, error) {
	return n.publishThrottled(models.Notification{
		Kind:        models.EventOrderStatusChanged,
		OrderID:     orderID,
		OrderNumber: orderNumber,
		Detail:      detail,
		Timestamp:   n.now(),
		OriginID:    origin,
	})
}

// PublishFlagsUpdated announces a production-flags change.
func (n *Notifier) PublishFlagsUpdated(orderID int64, orderNumber, detail, origin string) (int, error) {
	return n.publishThrottled(models.Notification{
		Kind:        models.EventOrderFlagsUpdated,
		OrderID:     orderID,
		OrderNumber: orderNumber,
		Detail:      detail,
		Timestamp:   n.now(),
		OriginID:    origin,
	})
}

// publishThrottled is the canonical publish path: every order event and the
// heartbeat go through the throttle. A suppressed event is success-with-zero.
func (n *Notifier) publishThrottled(ev models.Notification) (int, error) {
	if ev.Kind.HasOrder() && ev.OrderID <= 0 {
		return 0, fmt.Errorf("%s requires an order id", ev.Kind)
	}
	if !n.throttle.admit(ev) {
		metrics.NotificationsThrottledTotal.WithLabelValues(ev.Kind.String()).Inc()
		n.log.Debug("notification throttled", "type", ev.Kind.String(), "order_id", ev.OrderID)
		return 0, nil
	}
	return n.emit(ev), nil
}

// emit fans an event out unconditionally. Only registry transitions
// (connect, disconnect, eviction) use it directly: those must fire exactly
// once per transition and are inherently rate-bound by the registry itself.
func (n *Notifier) emit(ev models.Notification) int {
	delivered := n.bus.publish(ev)
	metrics.NotificationsPublishedTotal.WithLabelValues(ev.Kind.String()).Inc()
	return delivered
}

// Start launches the heartbeat and cleanup loops. Each runs in its own
// goroutine so a stall in one cannot halt the other.
func (n *Notifier) Start(ctx context.Context) {
	n.log.Info("starting notifier",
		"heartbeat_interval_sec", n.cfg.HeartbeatIntervalSec,
		"cleanup_interval_sec", n.cfg.CleanupIntervalSec,
		"liveness_timeout_sec", n.cfg.LivenessTimeoutSec)
	go n.heartbeatLoop(ctx)
	go n.cleanupLoop(ctx)
}

// Stop terminates the loops and closes every subscription.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		n.bus.closeAll()

		n.mu.Lock()
		n.clients = make(map[string]*clientState)
		n.mu.Unlock()
		metrics.NotificationClientsActive.Set(0)
	})
}

func (n *Notifier) heartbeatLoop(ctx context.Context) {
	interval := time.Duration(n.cfg.HeartbeatIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n.SubscriberCount() == 0 {
				continue
			}
			if _, err := n.publishThrottled(models.Notification{
				Kind:      models.EventHeartbeat,
				Detail:    "ping",
				Timestamp: n.now(),
				ToAll:     true,
			}); err != nil {
				n.log.Error("heartbeat publish failed", "error", err)
			}
		case <-n.stopCh:
			n.log.Info("heartbeat loop stopped")
			return
		case <-ctx.Done():
			n.log.Info("heartbeat loop context cancelled")
			return
		}
	}
}

func (n *Notifier) cleanupLoop(ctx context.Context) {
	interval := time.Duration(n.cfg.CleanupIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	// Offset the first tick by half an interval so cleanup and heartbeat do
	// not contend on the same schedule.
	select {
	case <-time.After(interval / 2):
	case <-n.stopCh:
		return
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.runCleanup()
		case <-n.stopCh:
			n.log.Info("cleanup loop stopped")
			return
		case <-ctx.Done():
			n.log.Info("cleanup loop context cancelled")
			return
		}
	}
}

// runCleanup evicts clients past the liveness timeout and prunes stale
// throttle entries. Reconnect-guard entries expire on their own TTL.
func (n *Notifier) runCleanup() {
	now := n.now()
	timeout := time.Duration(n.cfg.LivenessTimeoutSec) * time.Second

	n.mu.Lock()
	var evicted []string
	for id, state := range n.clients {
		if now.Sub(state.lastSeen) > timeout {
			evicted = append(evicted, id)
			delete(n.clients, id)
		}
	}
	n.mu.Unlock()

	for _, id := range evicted {
		// An evicted client gets a fresh guard window; a half-dead connection
		// should not flap straight back in before its socket is torn down.
		n.recent.Add(id, now)
		n.bus.remove(id)
		metrics.ClientsEvictedTotal.Inc()
		n.log.Warn("evicting inactive client", "client_id", id)
		n.emit(models.Notification{
			Kind:      models.EventClientDisconnected,
			Detail:    fmt.Sprintf("client %s evicted after liveness timeout", id),
			Timestamp: now,
			OriginID:  id,
			ToAll:     true,
		})
	}
	if len(evicted) > 0 {
		metrics.NotificationClientsActive.Set(float64(n.SubscriberCount()))
	}

	retention := time.Duration(n.cfg.ThrottleRetentionSec) * time.Second
	n.throttle.prune(now.Add(-retention))
}
