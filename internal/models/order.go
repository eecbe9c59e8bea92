package models

import (
	"fmt"
	"time"
)

// Order status values stored in the orders table.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCanceled   = "canceled"
)

// ValidOrderStatus reports whether s is one of the known status values.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCanceled:
		return true
	}
	return false
}

// OrderState is the slice of an order row the change detector tracks: the
// workflow status plus the six production-stage flags.
type OrderState struct {
	ID          int64  `db:"id"           json:"id"`
	Number      string `db:"order_number" json:"order_number"`
	Status      string `db:"status"       json:"status"`
	Ready       bool   `db:"ready"        json:"ready"`
	Billing     bool   `db:"billing"      json:"billing"`
	Review      bool   `db:"review"       json:"review"`
	Sublimation bool   `db:"sublimation"  json:"sublimation"`
	Sewing      bool   `db:"sewing"       json:"sewing"`
	Shipping    bool   `db:"shipping"     json:"shipping"`
}

// Fingerprint returns a deterministic summary of every tracked field. Two
// states produce the same fingerprint iff all tracked fields are equal.
func (s OrderState) Fingerprint() string {
	return fmt.Sprintf("status:%s|ready:%t|billing:%t|review:%t|sublimation:%t|sewing:%t|shipping:%t",
		s.Status, s.Ready, s.Billing, s.Review, s.Sublimation, s.Sewing, s.Shipping)
}

// Summary is the human-readable detail string attached to change events.
func (s OrderState) Summary() string {
	return fmt.Sprintf("Order %s: status=%s, ready=%t, billing=%t, review=%t, sublimation=%t, sewing=%t, shipping=%t",
		s.Number, s.Status, s.Ready, s.Billing, s.Review, s.Sublimation, s.Sewing, s.Shipping)
}

// OrderFlags carries a production-flags update. Nil fields keep the stored value.
type OrderFlags struct {
	Ready       *bool `json:"ready,omitempty"`
	Billing     *bool `json:"billing,omitempty"`
	Review      *bool `json:"review,omitempty"`
	Sublimation *bool `json:"sublimation,omitempty"`
	Sewing      *bool `json:"sewing,omitempty"`
	Shipping    *bool `json:"shipping,omitempty"`
}

// Order is a full order row. The notification subsystem only reads the
// OrderState subset; the rest exists for the command handlers.
type Order struct {
	OrderState
	ClientName string    `db:"client_name" json:"client_name"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"  json:"updated_at"`
}
