package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/orderdesk/orderdesk-backend/internal/models"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/logger"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/validate"
)

// GetSubscribers handles GET /notifications/subscribers
func (h *Handler) GetSubscribers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   h.notifier.SubscriberCount(),
		"clients": h.notifier.ActiveClients(),
	})
}

// RemoveSubscription handles DELETE /notifications/subscriptions/{clientId}.
// Unsubscribing an unknown client is a no-op and still returns 200, matching
// the idempotent service semantics.
func (h *Handler) RemoveSubscription(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())

	clientID := mux.Vars(r)["clientId"]
	if !validate.ClientID(clientID) {
		RespondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid client id", reqID)
		return
	}

	h.notifier.Unsubscribe(clientID)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Subscription removed"})
}

// Heartbeat handles POST /notifications/heartbeat. REST fallback for clients
// whose websocket pong frames are swallowed by a proxy.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())

	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !validate.ClientID(req.ClientID) {
		RespondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "a valid client_id is required", reqID)
		return
	}

	h.notifier.UpdateLiveness(req.ClientID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PublishEvent handles POST /notifications/events - publishes an order event
// on behalf of a client. The originating client id is carried on the event
// so receivers can tell their own edits from remote ones.
func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())

	var req struct {
		Type        string `json:"type"`
		OrderID     int64  `json:"order_id"`
		OrderNumber string `json:"order_number"`
		Detail      string `json:"detail"`
		OriginID    string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body", reqID)
		return
	}

	kind, ok := models.ParseEventKind(req.Type)
	if !ok {
		RespondError(w, http.StatusBadRequest, ErrCodeValidationFailed, "unknown event type: "+req.Type, reqID)
		return
	}

	var (
		delivered int
		err       error
	)
	switch kind {
	case models.EventOrderCreated:
		delivered, err = h.notifier.PublishOrderCreated(req.OrderID, req.OrderNumber, req.OriginID)
	case models.EventOrderUpdated:
		delivered, err = h.notifier.PublishOrderUpdated(req.OrderID, req.OrderNumber, req.OriginID)
	case models.EventOrderDeleted:
		delivered, err = h.notifier.PublishOrderDeleted(req.OrderID, req.OrderNumber, req.OriginID)
	case models.EventOrderStatusChanged:
		delivered, err = h.notifier.PublishStatusChanged(req.OrderID, req.OrderNumber, req.Detail, req.OriginID)
	case models.EventOrderFlagsUpdated:
		delivered, err = h.notifier.PublishFlagsUpdated(req.OrderID, req.OrderNumber, req.Detail, req.OriginID)
	default:
		RespondError(w, http.StatusBadRequest, ErrCodeValidationFailed,
			"event type cannot be published directly: "+req.Type, reqID)
		return
	}
	if err != nil {
		RespondError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), reqID)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"delivered": delivered,
	})
}

// TestBroadcast handles POST /notifications/test - fires a synthetic
// order_updated event at every subscriber so operators can verify delivery
// end to end.
func (h *Handler) TestBroadcast(w http.ResponseWriter, r *http.Request) {
	delivered, err := h.notifier.PublishOrderUpdated(testBroadcastOrderID, "TEST", "")
	if err != nil {
		reqID := logger.FromContext(r.Context())
		RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error(), reqID)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"delivered":   delivered,
		"subscribers": h.notifier.SubscriberCount(),
	})
}

// testBroadcastOrderID is a reserved synthetic id; real orders start at 1.
const testBroadcastOrderID = int64(1<<62 - 1)
