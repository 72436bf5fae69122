package service

import (
	"context"
	"errors"
	"fmt"

	"rifa-api/internal/events"
	"rifa-api/internal/models"
	"rifa-api/internal/store"
)

// requireAdmin re-verifies the caller's admin flag server-side. Client
// assertions are never trusted.
func (s *Service) requireAdmin(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, errInvalid("Faltan datos")
	}
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errForbidden("Forbidden")
		}
		return nil, errInternal(err)
	}
	if !user.IsAdmin {
		return nil, errForbidden("Forbidden")
	}
	return user, nil
}

func (s *Service) openOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, errInvalid("Faltan datos")
	}
	order, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNotFound("Orden no encontrada")
		}
		return nil, errInternal(err)
	}
	if order.Status.Terminal() {
		return nil, errConflict("La orden ya fue cerrada")
	}
	return order, nil
}

func (s *Service) audit(ctx context.Context, adminID, action string, order *models.Order, numbersCount int, metadata string) {
	err := s.store.AppendAudit(ctx, &models.AuditEntry{
		AdminID:      adminID,
		Action:       action,
		OrderID:      order.ID,
		NumbersCount: numbersCount,
		OrderTotal:   order.TotalAmount,
		Metadata:     metadata,
	})
	if err != nil {
		// Audit failures must never block the transition itself.
		s.log.Error().Err(err).Str("action", action).Str("order_id", order.ID).
			Msg("no se pudo registrar la auditoría")
	}
}

// MarkPaid confirms a reviewed payment: the order becomes paid and all
// of its tickets sold, atomically.
func (s *Service) MarkPaid(ctx context.Context, adminID, orderID string) error {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}
	order, err := s.openOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderUnderReview {
		return errConflict("La orden no está en revisión")
	}

	numbers, err := s.store.TicketsByOrder(ctx, orderID)
	if err != nil {
		return errInternal(err)
	}

	if err := s.store.FinalizePaid(ctx, orderID); err != nil {
		return errInternal(err)
	}

	s.refreshActivePurchases(ctx, order.UserID)
	s.audit(ctx, adminID, "mark_paid", order, len(numbers), "")

	var email string
	if user, err := s.store.UserByID(ctx, order.UserID); err == nil {
		email = user.Email
	}
	s.notifyAdmin("✅ Orden %s confirmada\n🔢 %d números vendidos\n💰 $%.0f",
		orderID, len(numbers), order.TotalAmount)
	s.publish(ctx, events.OrderEvent{
		Type:    events.OrderPaid,
		OrderID: orderID,
		UserID:  order.UserID,
		Email:   email,
		Total:   order.TotalAmount,
		Numbers: numbers,
	})

	return nil
}

// Reject sends the order back for a new proof. The optional reason is
// stored on the proof; the previous reason survives in the audit log
// even though a re-upload will overwrite the proof row.
func (s *Service) Reject(ctx context.Context, adminID, orderID, reason string) error {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}
	order, err := s.openOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderUnderReview && order.Status != models.OrderAwaitingProof {
		return errConflict("La orden no admite rechazo")
	}

	// Capture the previous reason before the new one overwrites it; the
	// audit row itself is written only once the transition succeeded.
	var previous string
	if proof, err := s.store.ProofByOrder(ctx, orderID); err == nil {
		previous = proof.Notes
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, models.OrderRejected); err != nil {
		return errInternal(err)
	}
	if reason != "" {
		if err := s.store.SetProofNotes(ctx, orderID, reason); err != nil {
			return errInternal(err)
		}
	}

	metadata := fmt.Sprintf(`{"reason":%q,"previous":%q}`, reason, previous)
	s.audit(ctx, adminID, "reject", order, 0, metadata)

	s.refreshActivePurchases(ctx, order.UserID)
	s.publish(ctx, events.OrderEvent{
		Type:    events.OrderRejected,
		OrderID: orderID,
		UserID:  order.UserID,
		Reason:  reason,
	})

	return nil
}

// Cancel closes the order and returns every attached ticket to the free
// pool, atomically.
func (s *Service) Cancel(ctx context.Context, adminID, orderID string) error {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}
	order, err := s.openOrder(ctx, orderID)
	if err != nil {
		return err
	}

	numbers, err := s.store.TicketsByOrder(ctx, orderID)
	if err != nil {
		return errInternal(err)
	}

	if err := s.store.FinalizeCanceled(ctx, orderID); err != nil {
		return errInternal(err)
	}

	s.refreshActivePurchases(ctx, order.UserID)
	s.audit(ctx, adminID, "cancel", order, len(numbers), "")
	s.publish(ctx, events.OrderEvent{
		Type:    events.OrderCanceled,
		OrderID: orderID,
		UserID:  order.UserID,
		Numbers: numbers,
	})

	return nil
}

// OverviewOrder is one row of the admin dashboard.
type OverviewOrder struct {
	models.Order
	Email    string  `json:"email"`
	Numbers  []int64 `json:"numbers"`
	ProofURL *string `json:"proofUrl"`
}

type Overview struct {
	Counts store.StatusCounts `json:"counts"`
	Orders []OverviewOrder    `json:"orders"`
}

// AdminOverview returns the pool breakdown and the latest orders with
// their numbers, buyer emails and proof links.
func (s *Service) AdminOverview(ctx context.Context, adminID string) (*Overview, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	counts, err := s.store.CountTickets(ctx)
	if err != nil {
		return nil, errInternal(err)
	}

	orders, err := s.store.RecentOrders(ctx, 30)
	if err != nil {
		return nil, errInternal(err)
	}

	out := make([]OverviewOrder, 0, len(orders))
	for _, o := range orders {
		row := OverviewOrder{Order: o, Numbers: []int64{}}

		if nums, err := s.store.TicketsByOrder(ctx, o.ID); err == nil && nums != nil {
			row.Numbers = nums
		}
		if user, err := s.store.UserByID(ctx, o.UserID); err == nil {
			row.Email = user.Email
		}
		if proof, err := s.store.ProofByOrder(ctx, o.ID); err == nil {
			url := proof.FileURL
			row.ProofURL = &url
		}
		out = append(out, row)
	}

	return &Overview{Counts: counts, Orders: out}, nil
}
