package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/orderdesk/orderdesk-backend/internal/config"
	"github.com/orderdesk/orderdesk-backend/internal/models"
)

// throttleEntry records the last admitted send for one (kind, order) key.
type throttleEntry struct {
	lastSent time.Time
	cooldown time.Duration
}

// throttle suppresses redundant event bursts with two cooldowns applied in
// order: a global one per event kind, then a per-order one for events that
// reference an order. Timestamps advance only when an event is admitted, so a
// rejected burst does not extend its own suppression window.
type throttle struct {
	mu      sync.Mutex
	byKind  map[models.EventKind]time.Time
	byOrder map[string]throttleEntry

	statusChange time.Duration
	flagsUpdate  time.Duration
	heartbeat    time.Duration
	fallback     time.Duration
	perOrder     time.Duration

	now func() time.Time
}

func newThrottle(cfg *config.Config) *throttle {
	return &throttle{
		byKind:       make(map[models.EventKind]time.Time),
		byOrder:      make(map[string]throttleEntry),
		statusChange: time.Duration(cfg.StatusChangeCooldownMs) * time.Millisecond,
		flagsUpdate:  time.Duration(cfg.FlagsUpdateCooldownMs) * time.Millisecond,
		heartbeat:    time.Duration(cfg.HeartbeatCooldownMs) * time.Millisecond,
		fallback:     time.Duration(cfg.DefaultCooldownMs) * time.Millisecond,
		perOrder:     time.Duration(cfg.PerOrderCooldownMs) * time.Millisecond,
		now:          time.Now,
	}
}

// kindCooldown is exhaustive over the event kinds: adding a kind without a
// cooldown decision is a compile-time-visible gap here.
func (t *throttle) kindCooldown(kind models.EventKind) time.Duration {
	switch kind {
	case models.EventOrderStatusChanged:
		return t.statusChange
	case models.EventOrderFlagsUpdated:
		return t.flagsUpdate
	case models.EventHeartbeat:
		return t.heartbeat
	case models.EventOrderCreated, models.EventOrderUpdated, models.EventOrderDeleted,
		models.EventClientConnected, models.EventClientDisconnected:
		return t.fallback
	}
	return t.fallback
}

// admit reports whether ev may be sent now, and records the send if so.
func (t *throttle) admit(ev models.Notification) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	if last, ok := t.byKind[ev.Kind]; ok && now.Sub(last) < t.kindCooldown(ev.Kind) {
		return false
	}

	var orderKey string
	if ev.Kind.HasOrder() && ev.OrderID > 0 {
		orderKey = fmt.Sprintf("%s:%d", ev.Kind, ev.OrderID)
		if entry, ok := t.byOrder[orderKey]; ok && now.Sub(entry.lastSent) < entry.cooldown {
			return false
		}
	}

	t.byKind[ev.Kind] = now
	if orderKey != "" {
		t.byOrder[orderKey] = throttleEntry{lastSent: now, cooldown: t.perOrder}
	}
	return true
}

// prune drops entries whose last send is older than cutoff. Run from the
// cleanup loop; the tables otherwise grow with the order id space.
func (t *throttle) prune(cutoff time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, entry := range t.byOrder {
		if entry.lastSent.Before(cutoff) {
			delete(t.byOrder, key)
		}
	}
	for kind, last := range t.byKind {
		if last.Before(cutoff) {
			delete(t.byKind, kind)
		}
	}
}
