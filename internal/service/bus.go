package service

import (
	"sync"
	"sync/atomic"

	"github.com/orderdesk/orderdesk-backend/internal/models"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/metrics"
)

// Subscription is one consumer's handle on the bus: an independent buffered
// channel plus a counter of events shed while the consumer lagged. The channel
// is closed when the client is unsubscribed or evicted.
type Subscription struct {
	clientID  string
	ch        chan models.Notification
	missed    atomic.Uint64
	closeOnce sync.Once
}

// Events returns the channel the delivery task reads from. It is closed when
// the subscription ends; a receive that fails means the task must exit.
func (s *Subscription) Events() <-chan models.Notification {
	return s.ch
}

// ClientID returns the subscriber's id.
func (s *Subscription) ClientID() string {
	return s.clientID
}

// Missed reports how many buffered events were shed because this consumer
// fell behind. The poller re-announces missed state on its next cycle, so a
// lagging consumer converges without replay.
func (s *Subscription) Missed() uint64 {
	return s.missed.Load()
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// bus is the single fan-out structure: one producer side, one buffered channel
// per subscriber. Publishing holds the mutex for map iteration and channel
// pushes only, never across I/O, so every consumer sees events in publish
// order.
type bus struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	buffer int
	closed bool
}

func newBus(buffer int) *bus {
	if buffer <= 0 {
		buffer = 1000
	}
	return &bus{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
	}
}

// add registers a consumer channel. Duplicate-id policy lives in the
// Notifier's registry; the bus trusts its caller.
func (b *bus) add(clientID string) *Subscription {
	sub := &Subscription{
		clientID: clientID,
		ch:       make(chan models.Notification, b.buffer),
	}
	b.mu.Lock()
	b.subs[clientID] = sub
	b.mu.Unlock()
	return sub
}

// remove drops and closes a consumer channel. Unknown ids are a no-op.
func (b *bus) remove(clientID string) {
	b.mu.Lock()
	sub, ok := b.subs[clientID]
	if ok {
		delete(b.subs, clientID)
	}
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

func (b *bus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// publish fans ev out to every subscriber and returns the number of channels
// that accepted it. A full buffer sheds its oldest event rather than blocking
// the publisher: the consumer stays subscribed and keeps receiving newer
// events (at-most-once, best-effort).
func (b *bus) publish(ev models.Notification) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}

	delivered := 0
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
			delivered++
			continue
		default:
		}

		// Consumer lagging: shed the oldest buffered event to make room.
		select {
		case <-sub.ch:
			sub.missed.Add(1)
			metrics.NotificationsDroppedTotal.Inc()
		default:
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// closeAll terminates every subscription. Used on shutdown only.
func (b *bus) closeAll() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for id, sub := range b.subs {
		subs = append(subs, sub)
		delete(b.subs, id)
	}
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
