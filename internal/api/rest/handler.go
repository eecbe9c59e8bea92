// Package rest exposes the order command and notification control endpoints.
package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/orderdesk/orderdesk-backend/internal/config"
	"github.com/orderdesk/orderdesk-backend/internal/repository"
	"github.com/orderdesk/orderdesk-backend/internal/service"
)

// Handler manages HTTP request handlers
type Handler struct {
	repo     repository.OrderRepository
	notifier *service.Notifier
	poller   *service.OrderPoller
	cfg      *config.Config
	log      *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(repo repository.OrderRepository, notifier *service.Notifier, poller *service.OrderPoller, cfg *config.Config, log *slog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		notifier: notifier,
		poller:   poller,
		cfg:      cfg,
		log:      log,
	}
}

// SetupRoutes configures API routes
func SetupRoutes(router *mux.Router, h *Handler) {
	// Order command routes
	router.HandleFunc("/orders", h.CreateOrder).Methods("POST")
	router.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET")
	router.HandleFunc("/orders/{id}", h.DeleteOrder).Methods("DELETE")
	router.HandleFunc("/orders/{id}/status", h.UpdateOrderStatus).Methods("PUT")
	router.HandleFunc("/orders/{id}/flags", h.UpdateOrderFlags).Methods("PUT")
	router.HandleFunc("/orders/poll", h.ForcePoll).Methods("POST")

	// Notification control routes
	router.HandleFunc("/notifications/subscribers", h.GetSubscribers).Methods("GET")
	router.HandleFunc("/notifications/subscriptions/{clientId}", h.RemoveSubscription).Methods("DELETE")
	router.HandleFunc("/notifications/heartbeat", h.Heartbeat).Methods("POST")
	router.HandleFunc("/notifications/events", h.PublishEvent).Methods("POST")
	router.HandleFunc("/notifications/test", h.TestBroadcast).Methods("POST")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
