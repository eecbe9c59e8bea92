package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/orderdesk/orderdesk-backend/internal/config"
	"github.com/orderdesk/orderdesk-backend/internal/models"
)

func throttleCfg() *config.Config {
	return &config.Config{
		StatusChangeCooldownMs: 2000,
		FlagsUpdateCooldownMs:  1500,
		HeartbeatCooldownMs:    1000,
		DefaultCooldownMs:      500,
		PerOrderCooldownMs:     1000,
	}
}

// fakeClock makes throttle decisions deterministic.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestThrottle_GlobalKindCooldown(t *testing.T) {
	clock := newFakeClock()
	th := newThrottle(throttleCfg())
	th.now = clock.now

	ev := models.Notification{Kind: models.EventOrderStatusChanged, OrderID: 1}

	assert.True(t, th.admit(ev), "first event of a kind always passes")

	clock.advance(500 * time.Millisecond)
	ev.OrderID = 2
	assert.False(t, th.admit(ev), "second status change inside the 2s kind window is suppressed")

	clock.advance(2 * time.Second)
	assert.True(t, th.admit(ev), "after the window the kind admits again")
}

func TestThrottle_PerOrderCooldown(t *testing.T) {
	clock := newFakeClock()
	cfg := throttleCfg()
	cfg.StatusChangeCooldownMs = 0 // isolate the per-order window
	th := newThrottle(cfg)
	th.now = clock.now

	ev := models.Notification{Kind: models.EventOrderStatusChanged, OrderID: 7}
	assert.True(t, th.admit(ev))

	clock.advance(300 * time.Millisecond)
	assert.False(t, th.admit(ev), "same order inside the 1s per-order window is suppressed")

	other := models.Notification{Kind: models.EventOrderStatusChanged, OrderID: 8}
	assert.True(t, th.admit(other), "a different order is keyed independently")

	clock.advance(time.Second)
	assert.True(t, th.admit(ev), "same order admits after its per-order window")
}

func TestThrottle_RejectionDoesNotExtendWindow(t *testing.T) {
	clock := newFakeClock()
	th := newThrottle(throttleCfg())
	th.now = clock.now

	ev := models.Notification{Kind: models.EventHeartbeat}
	assert.True(t, th.admit(ev))

	// Hammer inside the window; none of these may push the window forward.
	for i := 0; i < 5; i++ {
		clock.advance(150 * time.Millisecond)
		assert.False(t, th.admit(ev))
	}

	clock.advance(300 * time.Millisecond) // 1.05s since the only admitted send
	assert.True(t, th.admit(ev))
}

func TestThrottle_DistinctKindsIndependent(t *testing.T) {
	clock := newFakeClock()
	th := newThrottle(throttleCfg())
	th.now = clock.now

	assert.True(t, th.admit(models.Notification{Kind: models.EventOrderStatusChanged, OrderID: 1}))
	assert.True(t, th.admit(models.Notification{Kind: models.EventOrderFlagsUpdated, OrderID: 1}),
		"kinds must not share a cooldown window")
	assert.True(t, th.admit(models.Notification{Kind: models.EventHeartbeat}))
}

func TestThrottle_PruneDropsStaleEntries(t *testing.T) {
	clock := newFakeClock()
	th := newThrottle(throttleCfg())
	th.now = clock.now

	th.admit(models.Notification{Kind: models.EventOrderStatusChanged, OrderID: 1})
	clock.advance(10 * time.Minute)
	th.admit(models.Notification{Kind: models.EventOrderFlagsUpdated, OrderID: 2})

	th.prune(clock.now().Add(-5 * time.Minute))

	th.mu.Lock()
	defer th.mu.Unlock()
	assert.Len(t, th.byOrder, 1, "only the fresh per-order entry survives")
	assert.Len(t, th.byKind, 1, "only the fresh kind entry survives")
	_, ok := th.byKind[models.EventOrderFlagsUpdated]
	assert.True(t, ok)
}
