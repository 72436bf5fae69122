package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rifa-api/internal/events"
	"rifa-api/internal/models"
	"rifa-api/internal/store"
)

// CheckoutResult is the materialized order, totals computed from the
// tickets actually attached (source of truth), never from the input.
type CheckoutResult struct {
	OrderID string  `json:"orderId"`
	Total   float64 `json:"total"`
	Price   float64 `json:"price"`
	Numbers []int64 `json:"numbers"`
}

// CreateOrder idempotently turns a user's held numbers into an order.
// Re-running the same checkout (double submit, network retry) returns
// the same order instead of creating a duplicate.
func (s *Service) CreateOrder(ctx context.Context, userID string, numbers []int64, notes string) (*CheckoutResult, error) {
	if userID == "" || len(numbers) == 0 {
		return nil, errInvalid("Faltan datos")
	}

	ids := s.normalizeIDs(numbers)
	if len(ids) == 0 || len(ids) > s.cfg.MaxPerOrder {
		return nil, errInvalid(fmt.Sprintf("Cantidad inválida (1 a %d)", s.cfg.MaxPerOrder))
	}

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNotFound("Usuario no encontrado")
		}
		return nil, errInternal(err)
	}

	// The single auditable branch point for the trusted-seller bypass.
	seller := user.Role == models.RoleTrustedSeller

	rows, err := s.store.TicketsByID(ctx, ids)
	if err != nil {
		return nil, errInternal(err)
	}
	byID := make(map[int64]models.Ticket, len(rows))
	for _, t := range rows {
		byID[t.ID] = t
	}

	// Every number must be held by this user, or already attached to an
	// order (ownership of that order is verified below).
	for _, id := range ids {
		t, ok := byID[id]
		mine := t.Status == models.TicketHeld && t.HeldBy != nil && *t.HeldBy == userID
		if !ok || (!mine && t.OrderID == nil) {
			return nil, errConflict("Algunos números no están reservados por vos")
		}
	}

	existing := make(map[string]struct{})
	for _, t := range rows {
		if t.OrderID != nil {
			existing[*t.OrderID] = struct{}{}
		}
	}
	if len(existing) > 1 {
		return nil, errConflict("Los números pertenecen a órdenes distintas")
	}

	// Retry of an already-materialized checkout: return the same order.
	// The limit guard does not apply here; it gates new orders only, and
	// a retry of the order that filled the last slot must stay idempotent.
	if len(existing) == 1 {
		var orderID string
		for id := range existing {
			orderID = id
		}
		return s.reuseOrder(ctx, userID, orderID, ids, rows)
	}

	if !seller {
		check, err := s.PurchaseLimits(ctx, userID, len(ids))
		if err != nil {
			return nil, err
		}
		if !check.CanPurchase {
			return nil, errConflict(check.Reason)
		}
	}

	// No existing order: insert, and on unique-conflict select the one a
	// concurrent duplicate request created.
	fp := fingerprint(userID, ids)
	status := models.OrderAwaitingProof
	if seller {
		status = models.OrderPaid
	}

	order := &models.Order{
		ID:             uuid.NewString(),
		UserID:         userID,
		Status:         status,
		TotalAmount:    float64(len(ids)) * s.cfg.PricePerNumber,
		PricePerNumber: s.cfg.PricePerNumber,
		Fingerprint:    fp,
		Notes:          notes,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		if !errors.Is(err, store.ErrDuplicateOrder) {
			return nil, errInternal(err)
		}
		winner, err := s.store.OpenOrderByFingerprint(ctx, userID, fp)
		if err != nil {
			return nil, errInternal(fmt.Errorf("no se pudo reutilizar la orden: %w", err))
		}
		order = winner
	}

	if _, err := s.store.AttachToOrder(ctx, ids, userID, order.ID); err != nil {
		return nil, errInternal(err)
	}

	if seller {
		if err := s.store.MarkTicketsSold(ctx, order.ID); err != nil {
			return nil, errInternal(err)
		}
	} else {
		s.refreshActivePurchases(ctx, userID)
	}

	attached, err := s.store.TicketsByOrder(ctx, order.ID)
	if err != nil {
		return nil, errInternal(err)
	}

	total := float64(len(attached)) * order.PricePerNumber
	s.notifyAdmin("🎟️ Nueva orden %s\n👤 Usuario: %s\n🔢 Números: %d\n💰 Total: $%.0f",
		order.ID, userID, len(attached), total)
	s.publish(ctx, events.OrderEvent{
		Type:    events.OrderCreated,
		OrderID: order.ID,
		UserID:  userID,
		Email:   user.Email,
		Total:   total,
		Numbers: attached,
	})

	return &CheckoutResult{
		OrderID: order.ID,
		Total:   total,
		Price:   order.PricePerNumber,
		Numbers: attached,
	}, nil
}

// reuseOrder handles checkout against numbers already attached to an
// order: verify ownership and openness, attach any stray held numbers
// from the same request, and return the order as-is.
func (s *Service) reuseOrder(ctx context.Context, userID, orderID string, ids []int64, rows []models.Ticket) (*CheckoutResult, error) {
	order, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNotFound("Orden existente no encontrada")
		}
		return nil, errInternal(err)
	}
	if order.UserID != userID {
		return nil, errForbidden("No autorizado (orden de otro usuario)")
	}
	if order.Status.Terminal() {
		return nil, errConflict("La orden ya fue cerrada")
	}

	var strays []int64
	for _, t := range rows {
		if t.Status == models.TicketHeld && t.HeldBy != nil && *t.HeldBy == userID && t.OrderID == nil {
			strays = append(strays, t.ID)
		}
	}
	if len(strays) > 0 {
		if _, err := s.store.AttachToOrder(ctx, strays, userID, orderID); err != nil {
			return nil, errInternal(err)
		}
	}

	attached, err := s.store.TicketsByOrder(ctx, orderID)
	if err != nil {
		return nil, errInternal(err)
	}

	return &CheckoutResult{
		OrderID: orderID,
		Total:   float64(len(attached)) * order.PricePerNumber,
		Price:   order.PricePerNumber,
		Numbers: attached,
	}, nil
}

// OrderWithNumbers is an order plus its sorted ticket numbers.
type OrderWithNumbers struct {
	models.Order
	Numbers []int64 `json:"numbers"`
}

// MyOrders lists the user's orders newest-first, each with its numbers,
// plus the cached active-purchase count for display.
func (s *Service) MyOrders(ctx context.Context, userID string) ([]OrderWithNumbers, int, error) {
	if userID == "" {
		return nil, 0, errInvalid("userId requerido")
	}

	orders, err := s.store.OrdersByUser(ctx, userID)
	if err != nil {
		return nil, 0, errInternal(err)
	}

	out := make([]OrderWithNumbers, 0, len(orders))
	for _, o := range orders {
		nums, err := s.store.TicketsByOrder(ctx, o.ID)
		if err != nil {
			return nil, 0, errInternal(err)
		}
		out = append(out, OrderWithNumbers{Order: o, Numbers: nums})
	}

	active := s.activePurchasesForDisplay(ctx, userID)
	return out, active, nil
}

// activePurchasesForDisplay prefers the cache; on a miss it falls back
// to the authoritative count and warms the cache.
func (s *Service) activePurchasesForDisplay(ctx context.Context, userID string) int {
	if s.counters != nil {
		if n, ok := s.counters.ActivePurchases(ctx, userID); ok {
			return n
		}
	}
	n, err := s.store.CountOpenOrders(ctx, userID)
	if err != nil {
		return 0
	}
	if s.counters != nil {
		_ = s.counters.SetActivePurchases(ctx, userID, n)
	}
	return n
}

// UpdateOrderNote lets the owner annotate a non-terminal order.
func (s *Service) UpdateOrderNote(ctx context.Context, userID, orderID, notes string) error {
	if userID == "" || orderID == "" {
		return errInvalid("Faltan datos")
	}

	order, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errNotFound("Orden no encontrada")
		}
		return errInternal(err)
	}
	if order.UserID != userID {
		return errForbidden("No autorizado")
	}
	if order.Status.Terminal() {
		return errConflict("La orden ya fue cerrada")
	}

	if err := s.store.UpdateOrderNotes(ctx, orderID, notes); err != nil {
		return errInternal(err)
	}
	return nil
}
