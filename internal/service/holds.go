package service

import (
	"context"
	"fmt"
	"time"

	"rifa-api/internal/models"
)

// HoldItem is the per-number outcome of a hold request. ok=false with
// reason "not_available" means somebody else got the number first; the
// client reverts its optimistic selection.
type HoldItem struct {
	Num    int64  `json:"num"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

type HoldResult struct {
	Results   []HoldItem `json:"results"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Hold claims the requested numbers for the user. Partial success is the
// normal concurrency outcome, not an error.
func (s *Service) Hold(ctx context.Context, userID string, numbers []int64) (*HoldResult, error) {
	if userID == "" || len(numbers) == 0 {
		return nil, errInvalid("Faltan datos")
	}

	ids := s.normalizeIDs(numbers)
	if len(ids) == 0 {
		return nil, errInvalid("Números inválidos")
	}
	if len(ids) > s.cfg.MaxPerOrder {
		return nil, errInvalid(fmt.Sprintf("No se pueden reservar más de %d números por vez", s.cfg.MaxPerOrder))
	}

	// Lazy expiry: reclaim expired holds inside the requested set before
	// trying to claim. Only relevant while the TTL policy is on.
	if s.cfg.HoldTTL > 0 {
		if _, err := s.store.ReleaseExpired(ctx, ids, s.now()); err != nil {
			return nil, errInternal(err)
		}
	}

	expiresAt := s.holdExpiry()
	claimed, err := s.store.ClaimAsHeld(ctx, ids, userID, expiresAt)
	if err != nil {
		return nil, errInternal(err)
	}

	claimedSet := make(map[int64]struct{}, len(claimed))
	for _, id := range claimed {
		claimedSet[id] = struct{}{}
	}

	results := make([]HoldItem, len(ids))
	for i, id := range ids {
		if _, ok := claimedSet[id]; ok {
			results[i] = HoldItem{Num: id, OK: true}
		} else {
			results[i] = HoldItem{Num: id, OK: false, Reason: "not_available"}
		}
	}

	return &HoldResult{Results: results, ExpiresAt: expiresAt}, nil
}

// HoldRandom claims up to qty free numbers, picked from a random window
// of the free pool so concurrent callers spread across the keyspace.
// Under-fulfillment is expected when inventory is scarce or contended;
// callers treat it as retryable.
func (s *Service) HoldRandom(ctx context.Context, userID string, qty int) ([]int64, *time.Time, error) {
	if userID == "" {
		return nil, nil, errInvalid("Faltan datos")
	}
	if qty < 1 {
		qty = 1
	}
	if qty > s.cfg.MaxPerOrder {
		qty = s.cfg.MaxPerOrder
	}

	if s.cfg.HoldTTL > 0 {
		if _, err := s.store.ReleaseExpired(ctx, nil, s.now()); err != nil {
			return nil, nil, errInternal(err)
		}
	}

	free, err := s.store.CountFree(ctx)
	if err != nil {
		return nil, nil, errInternal(err)
	}
	if free == 0 {
		return nil, s.holdExpiry(), nil
	}

	// Over-fetch so a lost race on part of the window can still be
	// covered by the rest of it.
	window := qty * 4
	if window > 200 {
		window = 200
	}
	if window > free {
		window = free
	}
	maxOffset := free - window
	offset := 0
	if maxOffset > 0 {
		offset = s.intn(maxOffset + 1)
	}

	candidates, err := s.store.ListFree(ctx, offset, window)
	if err != nil {
		return nil, nil, errInternal(err)
	}
	s.shuffle(candidates)

	expiresAt := s.holdExpiry()
	var held []int64
	for i := 0; i < len(candidates) && len(held) < qty; {
		batch := candidates[i:min(i+qty-len(held), len(candidates))]
		i += len(batch)
		claimed, err := s.store.ClaimAsHeld(ctx, batch, userID, expiresAt)
		if err != nil {
			return nil, nil, errInternal(err)
		}
		held = append(held, claimed...)
	}

	return held, expiresAt, nil
}

// ReleaseResult reports which numbers were freed and which were skipped
// (not held by the caller, or already attached to an order).
type ReleaseResult struct {
	Released []int64 `json:"released"`
	Skipped  []int64 `json:"skipped"`
}

func (s *Service) Release(ctx context.Context, userID string, numbers []int64) (*ReleaseResult, error) {
	if userID == "" || len(numbers) == 0 {
		return nil, errInvalid("Faltan datos")
	}

	ids := s.normalizeIDs(numbers)
	if len(ids) == 0 {
		return nil, errInvalid("Números inválidos")
	}

	released, err := s.store.ReleaseHeld(ctx, ids, userID)
	if err != nil {
		return nil, errInternal(err)
	}

	releasedSet := make(map[int64]struct{}, len(released))
	for _, id := range released {
		releasedSet[id] = struct{}{}
	}
	skipped := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := releasedSet[id]; !ok {
			skipped = append(skipped, id)
		}
	}

	if released == nil {
		released = []int64{}
	}
	return &ReleaseResult{Released: released, Skipped: skipped}, nil
}

// ListTickets pages through the pool for the grid, sweeping expired
// holds first while the TTL policy is on.
func (s *Service) ListTickets(ctx context.Context, offset, limit int, status models.TicketStatus) ([]models.Ticket, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	switch status {
	case "", models.TicketFree, models.TicketHeld, models.TicketSold:
	default:
		return nil, errInvalid("Estado inválido")
	}

	if s.cfg.HoldTTL > 0 {
		if _, err := s.store.ReleaseExpired(ctx, nil, s.now()); err != nil {
			return nil, errInternal(err)
		}
	}

	tickets, err := s.store.ListTickets(ctx, offset, limit, status)
	if err != nil {
		return nil, errInternal(err)
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	return tickets, nil
}
