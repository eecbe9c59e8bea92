package repository

import (
	"context"
	"errors"

	"github.com/orderdesk/orderdesk-backend/internal/models"
)

// ErrOrderNotFound is returned when an operation targets an order id that
// does not exist.
var ErrOrderNotFound = errors.New("order not found")

// OrderRepository is the data-access surface the notification subsystem needs:
// a read-only scan of tracked order state for the change-detection poller,
// plus the thin mutations the command handlers apply before publishing.
type OrderRepository interface {
	// ListOrderStates returns id, status, and production flags for every
	// order, in id order. The poller fingerprints this result set each cycle.
	ListOrderStates(ctx context.Context) ([]models.OrderState, error)

	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrderStatus(ctx context.Context, id int64, status string) error
	UpdateOrderFlags(ctx context.Context, id int64, flags models.OrderFlags) error
	DeleteOrder(ctx context.Context, id int64) error

	Ping(ctx context.Context) error
	Close() error
}
