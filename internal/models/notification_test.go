package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKind_NamesRoundTrip(t *testing.T) {
	for _, kind := range []EventKind{
		EventOrderCreated, EventOrderUpdated, EventOrderDeleted,
		EventOrderStatusChanged, EventOrderFlagsUpdated,
		EventHeartbeat, EventClientConnected, EventClientDisconnected,
	} {
		parsed, ok := ParseEventKind(kind.String())
		require.True(t, ok, kind.String())
		assert.Equal(t, kind, parsed)
	}

	_, ok := ParseEventKind("order_exploded")
	assert.False(t, ok)
}

func TestEventKind_HasOrder(t *testing.T) {
	assert.True(t, EventOrderStatusChanged.HasOrder())
	assert.True(t, EventOrderDeleted.HasOrder())
	assert.False(t, EventHeartbeat.HasOrder())
	assert.False(t, EventClientConnected.HasOrder())
	assert.False(t, EventClientDisconnected.HasOrder())
}

func TestNotification_JSONUsesKindNames(t *testing.T) {
	raw, err := json.Marshal(Notification{Kind: EventOrderStatusChanged, OrderID: 5})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"order_status_changed"`)

	var n Notification
	require.NoError(t, json.Unmarshal(raw, &n))
	assert.Equal(t, EventOrderStatusChanged, n.Kind)
	assert.Equal(t, int64(5), n.OrderID)
}

func TestOrderState_Fingerprint(t *testing.T) {
	a := OrderState{ID: 1, Status: OrderStatusPending}
	b := a
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Billing = true
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint(), "every tracked field must affect the fingerprint")

	b.Billing = false
	b.Status = OrderStatusProcessing
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
