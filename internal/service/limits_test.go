package service

import (
	"context"
	"net/http"
	"testing"
)

func TestPurchaseLimitCapsOpenOrders(t *testing.T) {
	svc, _ := newTestService(t, 100)

	// Three open orders is the ceiling.
	for i, num := range []int64{1, 2, 3} {
		mustHold(t, svc, "u1", num)
		mustCheckout(t, svc, "u1", num)

		check, err := svc.PurchaseLimits(context.Background(), "u1", 1)
		if err != nil {
			t.Fatalf("check tras orden %d: %v", i+1, err)
		}
		if check.ActivePurchases != i+1 {
			t.Errorf("activePurchases = %d, se esperaba %d", check.ActivePurchases, i+1)
		}
	}

	check, err := svc.PurchaseLimits(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if check.CanPurchase {
		t.Fatal("con 3 compras activas la cuarta debía bloquearse")
	}
	if check.Reason == "" {
		t.Error("el bloqueo debía llevar un motivo")
	}

	mustHold(t, svc, "u1", 4)
	_, err = svc.CreateOrder(context.Background(), "u1", []int64{4}, "")
	assertStatus(t, err, http.StatusConflict)
}

func TestPurchaseLimitFreesSlotOnClose(t *testing.T) {
	svc, _ := newTestService(t, 100)

	var orderIDs []string
	for _, num := range []int64{1, 2, 3} {
		mustHold(t, svc, "u1", num)
		orderIDs = append(orderIDs, mustCheckout(t, svc, "u1", num).OrderID)
	}

	// Closing one order frees a slot.
	if err := svc.Cancel(context.Background(), "adm", orderIDs[0]); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	check, err := svc.PurchaseLimits(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !check.CanPurchase || check.ActivePurchases != 2 {
		t.Fatalf("check = %+v, la cancelación debía liberar un cupo", check)
	}

	mustHold(t, svc, "u1", 4)
	mustCheckout(t, svc, "u1", 4)
}

func TestPurchaseLimitSellerExempt(t *testing.T) {
	svc, _ := newTestService(t, 100)

	// Sellers create paid orders, which don't count as open anyway, but
	// the guard itself must never block them.
	for _, num := range []int64{1, 2, 3, 4, 5} {
		mustHold(t, svc, "sel", num)
		mustCheckout(t, svc, "sel", num)
	}

	check, err := svc.PurchaseLimits(context.Background(), "sel", 50)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !check.CanPurchase {
		t.Fatal("el vendedor de confianza no debía tener tope")
	}
}

func TestPurchaseLimitPerOrderCap(t *testing.T) {
	svc, _ := newTestService(t, 100)

	check, err := svc.PurchaseLimits(context.Background(), "u1", 51)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if check.CanPurchase {
		t.Fatal("51 números en una orden debía bloquearse")
	}
}

func TestPurchaseLimitUnknownUser(t *testing.T) {
	svc, _ := newTestService(t, 100)

	_, err := svc.PurchaseLimits(context.Background(), "ghost", 1)
	assertStatus(t, err, http.StatusNotFound)
}
