package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderdesk/orderdesk-backend/internal/models"
)

func TestBus_PublishDeliversInOrder(t *testing.T) {
	b := newBus(16)
	sub := b.add("client-1")

	for i := 1; i <= 5; i++ {
		delivered := b.publish(models.Notification{
			Kind:    models.EventOrderUpdated,
			OrderID: int64(i),
			ToAll:   true,
		})
		assert.Equal(t, 1, delivered)
	}

	for i := 1; i <= 5; i++ {
		ev := <-sub.Events()
		assert.Equal(t, int64(i), ev.OrderID, "events must arrive in publish order")
	}
}

func TestBus_SlowConsumerShedsOldest(t *testing.T) {
	b := newBus(3)
	sub := b.add("slow")

	// Fill the buffer, then keep publishing without consuming.
	for i := 1; i <= 6; i++ {
		b.publish(models.Notification{Kind: models.EventOrderUpdated, OrderID: int64(i), ToAll: true})
	}

	assert.Equal(t, uint64(3), sub.Missed())

	// The oldest three were shed; the newest three survive in order.
	for want := int64(4); want <= 6; want++ {
		ev := <-sub.Events()
		assert.Equal(t, want, ev.OrderID)
	}
}

func TestBus_SlowConsumerStaysSubscribed(t *testing.T) {
	b := newBus(1)
	sub := b.add("slow")

	b.publish(models.Notification{Kind: models.EventOrderUpdated, OrderID: 1, ToAll: true})
	b.publish(models.Notification{Kind: models.EventOrderUpdated, OrderID: 2, ToAll: true})

	assert.Equal(t, 1, b.count(), "shedding must not unsubscribe the consumer")

	ev := <-sub.Events()
	assert.Equal(t, int64(2), ev.OrderID)

	// Consumer catches up and receives newer events normally.
	b.publish(models.Notification{Kind: models.EventOrderUpdated, OrderID: 3, ToAll: true})
	ev = <-sub.Events()
	assert.Equal(t, int64(3), ev.OrderID)
}

func TestBus_RemoveClosesChannel(t *testing.T) {
	b := newBus(4)
	sub := b.add("client-1")
	b.remove("client-1")

	_, open := <-sub.Events()
	assert.False(t, open, "removed subscription channel must be closed")
	assert.Equal(t, 0, b.count())

	// Unknown id is a no-op.
	b.remove("never-registered")
}

func TestBus_FanOutToManyConsumers(t *testing.T) {
	b := newBus(8)
	subs := make([]*Subscription, 0, 4)
	for i := 0; i < 4; i++ {
		subs = append(subs, b.add(fmt.Sprintf("client-%d", i)))
	}

	delivered := b.publish(models.Notification{Kind: models.EventHeartbeat, ToAll: true})
	require.Equal(t, 4, delivered)

	for _, sub := range subs {
		ev := <-sub.Events()
		assert.Equal(t, models.EventHeartbeat, ev.Kind)
	}
}

func TestBus_CloseAllTerminatesSubscriptions(t *testing.T) {
	b := newBus(4)
	sub := b.add("client-1")
	b.closeAll()

	_, open := <-sub.Events()
	assert.False(t, open)
	assert.Equal(t, 0, b.publish(models.Notification{Kind: models.EventHeartbeat, ToAll: true}))
}
