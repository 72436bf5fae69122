package store

import (
	"context"
	"errors"
	"time"

	"rifa-api/internal/models"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("registro no encontrado")

	// ErrDuplicateOrder is returned by CreateOrder when an open order
	// with the same (user, fingerprint) already exists. Callers must
	// re-select the existing order instead of failing.
	ErrDuplicateOrder = errors.New("orden abierta duplicada")
)

// StatusCounts is the allocation breakdown of the whole ticket pool.
type StatusCounts struct {
	Free int `json:"free"`
	Held int `json:"held"`
	Sold int `json:"sold"`
}

// Store is the single source of truth for tickets, orders, proofs, users
// and the audit log. Every ticket mutation is conditioned on the current
// row state (compare-and-swap): a write that matches zero rows is not an
// error, and callers detect lost races by comparing the returned id set
// against the requested one.
type Store interface {
	// Tickets.
	ListTickets(ctx context.Context, offset, limit int, status models.TicketStatus) ([]models.Ticket, error)
	TicketsByID(ctx context.Context, ids []int64) ([]models.Ticket, error)
	TicketsByOrder(ctx context.Context, orderID string) ([]int64, error)
	// ClaimAsHeld transitions the subset of ids currently free to held
	// and returns exactly that subset.
	ClaimAsHeld(ctx context.Context, ids []int64, userID string, expiresAt *time.Time) ([]int64, error)
	// ReleaseHeld frees tickets held by userID that are not yet attached
	// to an order, returning the ids actually released.
	ReleaseHeld(ctx context.Context, ids []int64, userID string) ([]int64, error)
	// ReleaseExpired frees held tickets whose expiry is in the past.
	// A nil id set sweeps the whole pool (listing-time lazy expiry).
	ReleaseExpired(ctx context.Context, ids []int64, now time.Time) (int, error)
	// AttachToOrder sets order_id on tickets held by userID and still
	// unattached. Safe to re-run.
	AttachToOrder(ctx context.Context, ids []int64, userID, orderID string) ([]int64, error)
	// MarkTicketsSold flips all of an order's tickets to sold, clearing
	// the hold fields.
	MarkTicketsSold(ctx context.Context, orderID string) error
	CountTickets(ctx context.Context) (StatusCounts, error)
	CountFree(ctx context.Context) (int, error)
	ListFree(ctx context.Context, offset, limit int) ([]int64, error)

	// Orders.
	CreateOrder(ctx context.Context, o *models.Order) error
	OrderByID(ctx context.Context, id string) (*models.Order, error)
	OpenOrderByFingerprint(ctx context.Context, userID, fingerprint string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error
	UpdateOrderNotes(ctx context.Context, id, notes string) error
	CountOpenOrders(ctx context.Context, userID string) (int, error)
	RecentOrders(ctx context.Context, limit int) ([]models.Order, error)
	OrdersByUser(ctx context.Context, userID string) ([]models.Order, error)

	// Admin transitions, performed as a single transaction so the order
	// and its tickets can never be left half-applied.
	FinalizePaid(ctx context.Context, orderID string) error
	FinalizeCanceled(ctx context.Context, orderID string) error

	// Payment proofs (one per order, upsert keyed by order id).
	UpsertProof(ctx context.Context, p *models.PaymentProof) error
	ProofByOrder(ctx context.Context, orderID string) (*models.PaymentProof, error)
	DeleteProof(ctx context.Context, orderID string) error
	SetProofNotes(ctx context.Context, orderID, notes string) error

	// Users.
	UserByID(ctx context.Context, id string) (*models.User, error)
	UpsertUser(ctx context.Context, u *models.User) error
	SetActivePurchases(ctx context.Context, userID string, n int) error

	// Audit log.
	AppendAudit(ctx context.Context, e *models.AuditEntry) error
}
