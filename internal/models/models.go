package models

import (
	"time"
)

// TicketStatus is the allocation state of a raffle number.
type TicketStatus string

const (
	TicketFree TicketStatus = "free"
	TicketHeld TicketStatus = "held"
	TicketSold TicketStatus = "sold"
)

// Ticket represents a single raffle number. The number itself is the id.
type Ticket struct {
	ID            int64        `json:"id"`
	Status        TicketStatus `json:"status"`
	HeldBy        *string      `json:"held_by"`         // set iff status=held
	HoldExpiresAt *time.Time   `json:"hold_expires_at"` // nil = hold never expires
	OrderID       *string      `json:"order_id"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// OrderStatus is the review lifecycle state of an order.
type OrderStatus string

const (
	OrderPending       OrderStatus = "pending"
	OrderAwaitingProof OrderStatus = "awaiting_proof"
	OrderUnderReview   OrderStatus = "under_review"
	OrderPaid          OrderStatus = "paid"
	OrderRejected      OrderStatus = "rejected"
	OrderCanceled      OrderStatus = "canceled"
)

// Terminal reports whether no further mutation of the order, its tickets
// or its proof is permitted.
func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderCanceled
}

// Open reports whether the order still counts against the buyer's
// active-purchase limit.
func (s OrderStatus) Open() bool {
	return s == OrderPending || s == OrderAwaitingProof || s == OrderUnderReview
}

// OpenStatuses lists the states counted by the purchase limit guard and
// covered by the open-order fingerprint uniqueness.
var OpenStatuses = []OrderStatus{OrderPending, OrderAwaitingProof, OrderUnderReview}

// Order groups one user's purchase of 1..MaxPerOrder numbers.
type Order struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	Status         OrderStatus `json:"status"`
	TotalAmount    float64     `json:"total_amount"`
	PricePerNumber float64     `json:"price_per_number"`
	Fingerprint    string      `json:"fingerprint"`
	Notes          string      `json:"notes"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// PaymentProof is the uploaded payment confirmation, at most one per order.
type PaymentProof struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	FileURL    string    `json:"file_url"`
	FilePath   string    `json:"file_path"`
	FileType   string    `json:"file_type"`
	SizeBytes  int64     `json:"size_bytes"`
	Notes      string    `json:"notes"` // admin rejection reason
	UploadedAt time.Time `json:"uploaded_at"`
}

// BuyerRole distinguishes ordinary buyers from trusted sellers whose
// orders bypass manual review.
type BuyerRole string

const (
	RoleStandard      BuyerRole = "user"
	RoleTrustedSeller BuyerRole = "seller"
)

// User is the local profile of an externally-authenticated account.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	IsAdmin         bool      `json:"is_admin"`
	Role            BuyerRole `json:"role"`
	ActivePurchases int       `json:"active_purchases_count"`
}

// AuditEntry records an admin transition on an order.
type AuditEntry struct {
	ID           int64     `json:"id"`
	AdminID      string    `json:"admin_id"`
	Action       string    `json:"action"`
	OrderID      string    `json:"order_id"`
	NumbersCount int       `json:"numbers_count"`
	OrderTotal   float64   `json:"order_total"`
	Metadata     string    `json:"metadata"`
	CreatedAt    time.Time `json:"created_at"`
}
