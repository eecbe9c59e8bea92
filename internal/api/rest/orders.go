package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/orderdesk/orderdesk-backend/internal/models"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/logger"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/validate"
	"github.com/orderdesk/orderdesk-backend/internal/repository"
)

func orderIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// CreateOrder handles POST /orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())

	var req struct {
		OrderNumber string `json:"order_number"`
		ClientName  string `json:"client_name"`
		Status      string `json:"status"`
		OriginID    string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body", reqID)
		return
	}
	if !validate.OrderNumber(req.OrderNumber) {
		RespondError(w, http.StatusBadRequest, ErrCodeValidationFailed, "invalid or missing order_number", reqID)
		return
	}
	if req.Status == "" {
		req.Status = models.OrderStatusPending
	}
	if !models.ValidOrderStatus(req.Status) {
		RespondError(w, http.StatusBadRequest, ErrCodeValidationFailed, "unknown order status: "+req.Status, reqID)
		return
	}

	order := &models.Order{
		OrderState: models.OrderState{Number: req.OrderNumber, Status: req.Status},
		ClientName: req.ClientName,
	}
	if err := h.repo.CreateOrder(r.Context(), order); err != nil {
		h.log.Error("create order failed", "order_number", req.OrderNumber, "error", err)
		RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to create order", reqID)
		return
	}

	if _, err := h.notifier.PublishOrderCreated(order.ID, order.Number, req.OriginID); err != nil {
		h.log.Warn("order created but notification failed", "order_id", order.ID, "error", err)
	}

	respondJSON(w, http.StatusCreated, order)
}

// GetOrder handles GET /orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())

	id, err := orderIDFromRequest(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid order id", reqID)
		return
	}

	order, err := h.repo.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			RespondError(w, http.StatusNotFound, ErrCodeNotFound, "Order not found", reqID)
			return
		}
		h.log.Error("get order failed", "order_id", id, "error", err)
		RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load order", reqID)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// DeleteOrder handles DELETE /orders/{id}
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())

	id, err := orderIDFromRequest(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid order id", reqID)
		return
	}

	order, err := h.repo.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			RespondError(w, http.StatusNotFound, ErrCodeNotFound, "Order not found", reqID)
			return
		}
		h.log.Error("load before delete failed", "order_id", id, "error", err)
		RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load order", reqID)
		return
	}

	if err := h.repo.DeleteOrder(r.Context(), id); err != nil {
		h.log.Error("delete order failed", "order_id", id, "error", err)
		RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to delete order", reqID)
		return
	}

	originID := r.URL.Query().Get("client_id")
	if _, err := h.notifier.PublishOrderDeleted(id, order.Number, originID); err != nil {
		h.log.Warn("order deleted but notification failed", "order_id", id, "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Order deleted"})
}

// UpdateOrderStatus handles PUT /orders/{id}/status
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())

	id, err := orderIDFromRequest(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid order id", reqID)
		return
	}

	var req struct {
		Status   string `json:"status"`
		OriginID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body", reqID)
		return
	}
	if !models.ValidOrderStatus(req.Status) {
		RespondError(w, http.StatusBadRequest, ErrCodeValidationFailed, "unknown order status: "+req.Status, reqID)
		return
	}

	if err := h.repo.UpdateOrderStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			RespondError(w, http.StatusNotFound, ErrCodeNotFound, "Order not found", reqID)
			return
		}
		h.log.Error("update order status failed", "order_id", id, "error", err)
		RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to update order status", reqID)
		return
	}

	order, err := h.repo.GetOrder(r.Context(), id)
	if err != nil {
		h.log.Error("reload after status update failed", "order_id", id, "error", err)
		RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load order", reqID)
		return
	}

	if _, err := h.notifier.PublishStatusChanged(id, order.Number, order.Summary(), req.OriginID); err != nil {
		h.log.Warn("status updated but notification failed", "order_id", id, "error", err)
	}

	respondJSON(w, http.StatusOK, order)
}

// UpdateOrderFlags handles PUT /orders/{id}/flags
func (h *Handler) UpdateOrderFlags(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())

	id, err := orderIDFromRequest(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid order id", reqID)
		return
	}

	var req struct {
		models.OrderFlags
		OriginID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body", reqID)
		return
	}

	if err := h.repo.UpdateOrderFlags(r.Context(), id, req.OrderFlags); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			RespondError(w, http.StatusNotFound, ErrCodeNotFound, "Order not found", reqID)
			return
		}
		h.log.Error("update order flags failed", "order_id", id, "error", err)
		RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to update order flags", reqID)
		return
	}

	order, err := h.repo.GetOrder(r.Context(), id)
	if err != nil {
		h.log.Error("reload after flags update failed", "order_id", id, "error", err)
		RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load order", reqID)
		return
	}

	if _, err := h.notifier.PublishFlagsUpdated(id, order.Number, order.Summary(), req.OriginID); err != nil {
		h.log.Warn("flags updated but notification failed", "order_id", id, "error", err)
	}

	respondJSON(w, http.StatusOK, order)
}

// ForcePoll handles POST /orders/poll - runs one change-detection cycle now
// instead of waiting for the next tick.
func (h *Handler) ForcePoll(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())

	if err := h.poller.RunCycle(r.Context()); err != nil {
		h.log.Error("forced poll cycle failed", "error", err)
		RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Poll cycle failed", reqID)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"tracked_orders": h.poller.CachedCount(),
	})
}
