package service

import (
	"context"
	"errors"
	"fmt"

	"rifa-api/internal/models"
	"rifa-api/internal/store"
)

// PurchaseLimitCheck is the guard's verdict on a prospective purchase.
type PurchaseLimitCheck struct {
	CanPurchase     bool   `json:"canPurchase"`
	Reason          string `json:"reason,omitempty"`
	ActivePurchases int    `json:"activePurchases"`
	MaxPurchases    int    `json:"maxPurchases"`
}

// PurchaseLimits caps concurrently-open orders per user so inventory
// can't be hoarded while "reviewing". Trusted sellers are exempt; the
// count always comes from the order table, never from the cache.
func (s *Service) PurchaseLimits(ctx context.Context, userID string, requestedCount int) (*PurchaseLimitCheck, error) {
	if userID == "" {
		return nil, errInvalid("Faltan datos")
	}

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNotFound("Usuario no encontrado")
		}
		return nil, errInternal(err)
	}

	if user.Role == models.RoleTrustedSeller {
		return &PurchaseLimitCheck{
			CanPurchase:  true,
			MaxPurchases: s.cfg.MaxActivePurchases,
		}, nil
	}

	if requestedCount > s.cfg.MaxPerOrder {
		return &PurchaseLimitCheck{
			CanPurchase:  false,
			Reason:       fmt.Sprintf("No podés comprar más de %d números por vez", s.cfg.MaxPerOrder),
			MaxPurchases: s.cfg.MaxActivePurchases,
		}, nil
	}

	active, err := s.store.CountOpenOrders(ctx, userID)
	if err != nil {
		return nil, errInternal(err)
	}

	// Refresh the display cache while we have the real count.
	if s.counters != nil {
		_ = s.counters.SetActivePurchases(ctx, userID, active)
	}

	if active >= s.cfg.MaxActivePurchases {
		return &PurchaseLimitCheck{
			CanPurchase:     false,
			Reason:          fmt.Sprintf("Ya tenés %d compras activas. Esperá a que se confirmen o rechacen.", s.cfg.MaxActivePurchases),
			ActivePurchases: active,
			MaxPurchases:    s.cfg.MaxActivePurchases,
		}, nil
	}

	return &PurchaseLimitCheck{
		CanPurchase:     true,
		ActivePurchases: active,
		MaxPurchases:    s.cfg.MaxActivePurchases,
	}, nil
}
