package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderdesk/orderdesk-backend/internal/config"
	"github.com/orderdesk/orderdesk-backend/internal/models"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/logger"
	"github.com/orderdesk/orderdesk-backend/internal/repository"
	"github.com/orderdesk/orderdesk-backend/internal/service"
)

// memoryRepo is an in-memory repository.OrderRepository for handler tests.
type memoryRepo struct {
	orders map[int64]*models.Order
	nextID int64
	err    error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[int64]*models.Order), nextID: 1}
}

func (m *memoryRepo) ListOrderStates(ctx context.Context) ([]models.OrderState, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []models.OrderState
	for _, o := range m.orders {
		out = append(out, o.OrderState)
	}
	return out, nil
}

func (m *memoryRepo) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", repository.ErrOrderNotFound, id)
	}
	cp := *o
	return &cp, nil
}

func (m *memoryRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	order.ID = m.nextID
	m.nextID++
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memoryRepo) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("%w: %d", repository.ErrOrderNotFound, id)
	}
	o.Status = status
	return nil
}

func (m *memoryRepo) UpdateOrderFlags(ctx context.Context, id int64, flags models.OrderFlags) error {
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("%w: %d", repository.ErrOrderNotFound, id)
	}
	if flags.Ready != nil {
		o.Ready = *flags.Ready
	}
	if flags.Sewing != nil {
		o.Sewing = *flags.Sewing
	}
	return nil
}

func (m *memoryRepo) DeleteOrder(ctx context.Context, id int64) error {
	if _, ok := m.orders[id]; !ok {
		return fmt.Errorf("%w: %d", repository.ErrOrderNotFound, id)
	}
	delete(m.orders, id)
	return nil
}

func (m *memoryRepo) Ping(ctx context.Context) error { return nil }
func (m *memoryRepo) Close() error                   { return nil }

func testConfig() *config.Config {
	return &config.Config{
		ReconnectGuardSec:    5,
		LivenessTimeoutSec:   60,
		ThrottleRetentionSec: 300,
		DefaultCooldownMs:    0,
		PerOrderCooldownMs:   0,
		EventBufferSize:      64,
	}
}

func newTestRouter(t *testing.T) (*mux.Router, *memoryRepo, *service.Notifier) {
	t.Helper()
	cfg := testConfig()
	log := logger.New("error", "text")
	repo := newMemoryRepo()
	notifier := service.NewNotifier(cfg, log)
	t.Cleanup(notifier.Stop)
	poller := service.NewOrderPoller(repo, notifier, cfg, log)

	router := mux.NewRouter()
	SetupRoutes(router, NewHandler(repo, notifier, poller, cfg, log))
	return router, repo, notifier
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestOrders_CreateAndGet(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/orders", map[string]string{
		"order_number": "OD-100",
		"client_name":  "Acme Signs",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "OD-100", created.Number)
	assert.Equal(t, models.OrderStatusPending, created.Status, "status defaults to pending")

	rec = doJSON(t, router, "GET", fmt.Sprintf("/orders/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOrders_CreateValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/orders", map[string]string{"client_name": "no number"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, "POST", "/orders", map[string]string{
		"order_number": "OD-1",
		"status":       "definitely-not-a-status",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
	assert.Equal(t, ErrCodeValidationFailed, apiErr.Code)
}

func TestOrders_GetNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, "GET", "/orders/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, "GET", "/orders/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrders_UpdateStatusPublishes(t *testing.T) {
	router, _, notifier := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/orders", map[string]string{"order_number": "OD-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	sub, err := notifier.Subscribe("ui", nil)
	require.NoError(t, err)

	rec = doJSON(t, router, "PUT", fmt.Sprintf("/orders/%d/status", created.ID),
		map[string]string{"status": models.OrderStatusProcessing})
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Notification
	found := false
	for len(sub.Events()) > 0 {
		got = <-sub.Events()
		if got.Kind == models.EventOrderStatusChanged {
			found = true
			break
		}
	}
	require.True(t, found, "status update must publish a status-changed event")
	assert.Equal(t, created.ID, got.OrderID)
}

func TestOrders_UpdateFlags(t *testing.T) {
	router, repo, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/orders", map[string]string{"order_number": "OD-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = doJSON(t, router, "PUT", fmt.Sprintf("/orders/%d/flags", created.ID),
		map[string]bool{"ready": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, repo.orders[created.ID].Ready)
}

func TestOrders_DeletePublishes(t *testing.T) {
	router, repo, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/orders", map[string]string{"order_number": "OD-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Order
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = doJSON(t, router, "DELETE", fmt.Sprintf("/orders/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, repo.orders)

	rec = doJSON(t, router, "DELETE", fmt.Sprintf("/orders/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotifications_SubscribersAndHeartbeat(t *testing.T) {
	router, _, notifier := newTestRouter(t)

	_, err := notifier.Subscribe("desk-1", nil)
	require.NoError(t, err)

	rec := doJSON(t, router, "GET", "/notifications/subscribers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count   int      `json:"count"`
		Clients []string `json:"clients"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, []string{"desk-1"}, resp.Clients)

	rec = doJSON(t, router, "POST", "/notifications/heartbeat", map[string]string{"client_id": "desk-1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, "POST", "/notifications/heartbeat", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotifications_RemoveSubscriptionIdempotent(t *testing.T) {
	router, _, notifier := newTestRouter(t)

	_, err := notifier.Subscribe("desk-1", nil)
	require.NoError(t, err)

	rec := doJSON(t, router, "DELETE", "/notifications/subscriptions/desk-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, notifier.SubscriberCount())

	// Removing an id that is not subscribed is still OK.
	rec = doJSON(t, router, "DELETE", "/notifications/subscriptions/desk-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotifications_PublishEvent(t *testing.T) {
	router, _, notifier := newTestRouter(t)

	sub, err := notifier.Subscribe("ui", nil)
	require.NoError(t, err)
	for len(sub.Events()) > 0 {
		<-sub.Events()
	}

	rec := doJSON(t, router, "POST", "/notifications/events", map[string]interface{}{
		"type":         "order_updated",
		"order_id":     12,
		"order_number": "OD-12",
		"client_id":    "desk-2",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	ev := <-sub.Events()
	assert.Equal(t, models.EventOrderUpdated, ev.Kind)
	assert.Equal(t, int64(12), ev.OrderID)
	assert.Equal(t, "desk-2", ev.OriginID)

	rec = doJSON(t, router, "POST", "/notifications/events", map[string]interface{}{
		"type": "wat",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Lifecycle kinds are owned by the registry and cannot be injected.
	rec = doJSON(t, router, "POST", "/notifications/events", map[string]interface{}{
		"type": "client_connected",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Order kinds without an order id are rejected.
	rec = doJSON(t, router, "POST", "/notifications/events", map[string]interface{}{
		"type": "order_updated",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrders_ForcePoll(t *testing.T) {
	router, repo, notifier := newTestRouter(t)

	repo.orders[1] = &models.Order{OrderState: models.OrderState{
		ID: 1, Number: "OD-1", Status: models.OrderStatusPending,
	}}

	sub, err := notifier.Subscribe("ui", nil)
	require.NoError(t, err)
	for len(sub.Events()) > 0 {
		<-sub.Events()
	}

	rec := doJSON(t, router, "POST", "/orders/poll", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ev := <-sub.Events()
	assert.Equal(t, models.EventOrderStatusChanged, ev.Kind)
	assert.Equal(t, int64(1), ev.OrderID)

	var resp struct {
		TrackedOrders int `json:"tracked_orders"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.TrackedOrders)
}
