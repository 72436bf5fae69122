package events

import (
	"context"
	"time"
)

// Order lifecycle event types.
const (
	OrderCreated  = "order.created"
	ProofUploaded = "order.proof_uploaded"
	ProofDeleted  = "order.proof_deleted"
	OrderPaid     = "order.paid"
	OrderRejected = "order.rejected"
	OrderCanceled = "order.canceled"
)

// OrderEvent is published on every order transition. A downstream
// consumer (the mailer, reporting) reacts to it; delivery is best-effort
// and never blocks the transition itself.
type OrderEvent struct {
	Type    string    `json:"type"`
	OrderID string    `json:"order_id"`
	UserID  string    `json:"user_id"`
	Email   string    `json:"email,omitempty"`
	Total   float64   `json:"total,omitempty"`
	Numbers []int64   `json:"numbers,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

type Publisher interface {
	PublishOrderEvent(ctx context.Context, ev OrderEvent) error
	Close() error
}
