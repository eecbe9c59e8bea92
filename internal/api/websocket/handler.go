package websocket

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/orderdesk/orderdesk-backend/internal/api/rest"
	"github.com/orderdesk/orderdesk-backend/internal/config"
	"github.com/orderdesk/orderdesk-backend/internal/models"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/logger"
	"github.com/orderdesk/orderdesk-backend/internal/pkg/validate"
	"github.com/orderdesk/orderdesk-backend/internal/service"
)

// Handler upgrades UI clients to websocket and binds each one to a bus
// subscription.
type Handler struct {
	notifier *service.Notifier
	cfg      *config.Config
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new websocket handler.
func NewHandler(notifier *service.Notifier, cfg *config.Config, log *slog.Logger) *Handler {
	h := &Handler{
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Desktop WebViews and native clients send no Origin.
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeWS handles GET /ws/notifications?client_id=...&events=kind,kind.
// Subscription happens before the protocol upgrade so rejections surface as
// proper HTTP statuses: 409 for a duplicate id, 429 inside the reconnect
// guard window.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	reqID := logger.FromContext(r.Context())

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.New().String()
	} else if !validate.ClientID(clientID) {
		rest.RespondError(w, http.StatusBadRequest, rest.ErrCodeValidationFailed, "invalid client id", reqID)
		return
	}

	filters, err := parseFilters(r.URL.Query().Get("events"))
	if err != nil {
		rest.RespondError(w, http.StatusBadRequest, rest.ErrCodeValidationFailed, err.Error(), reqID)
		return
	}

	sub, err := h.notifier.Subscribe(clientID, filters)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyConnected):
			rest.RespondError(w, http.StatusConflict, rest.ErrCodeAlreadyConnected, err.Error(), reqID)
		case errors.Is(err, service.ErrRecentlyConnected):
			rest.RespondError(w, http.StatusTooManyRequests, rest.ErrCodeRecentlyConnected, err.Error(), reqID)
		default:
			rest.RespondError(w, http.StatusInternalServerError, rest.ErrCodeInternalError, err.Error(), reqID)
		}
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "client_id", clientID, "error", err)
		h.notifier.Unsubscribe(clientID)
		return
	}

	client := NewClient(conn, sub, h.notifier, h.log, filters)
	go client.WritePump()
	go client.ReadPump()

	h.log.Info("websocket client connected", "client_id", clientID)
}

// parseFilters decodes the comma-separated events query parameter.
func parseFilters(raw string) ([]models.EventKind, error) {
	if raw == "" {
		return nil, nil
	}
	var filters []models.EventKind
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		kind, ok := models.ParseEventKind(name)
		if !ok {
			return nil, errors.New("unknown event kind: " + name)
		}
		filters = append(filters, kind)
	}
	return filters, nil
}
