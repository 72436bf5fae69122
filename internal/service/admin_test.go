package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"rifa-api/internal/models"
	"rifa-api/internal/store"
)

func TestAdminRequiresAdminFlag(t *testing.T) {
	svc, _ := newTestService(t, 100)
	mustHold(t, svc, "u1", 1)
	res := mustCheckout(t, svc, "u1", 1)
	mustUpload(t, svc, "u1", res.OrderID)

	// Regular user, trusted seller and unknown id all get the same 403.
	for _, caller := range []string{"u2", "sel", "ghost"} {
		err := svc.MarkPaid(context.Background(), caller, res.OrderID)
		assertStatus(t, err, http.StatusForbidden)
	}

	_, err := svc.AdminOverview(context.Background(), "u1")
	assertStatus(t, err, http.StatusForbidden)
}

func TestMarkPaidRequiresReview(t *testing.T) {
	svc, _ := newTestService(t, 100)
	mustHold(t, svc, "u1", 1)
	res := mustCheckout(t, svc, "u1", 1)

	// Still awaiting_proof: nothing to confirm yet.
	err := svc.MarkPaid(context.Background(), "adm", res.OrderID)
	assertStatus(t, err, http.StatusConflict)
}

func TestCancelReturnsTicketsToPool(t *testing.T) {
	svc, mem := newTestService(t, 100)
	mustHold(t, svc, "u1", 1, 2, 3)
	res := mustCheckout(t, svc, "u1", 1, 2, 3)

	if err := svc.Cancel(context.Background(), "adm", res.OrderID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	order, _ := mem.OrderByID(context.Background(), res.OrderID)
	if order.Status != models.OrderCanceled {
		t.Fatalf("status = %s, se esperaba canceled", order.Status)
	}
	for _, id := range []int64{1, 2, 3} {
		tk := ticketState(t, mem, id)
		if tk.Status != models.TicketFree || tk.OrderID != nil || tk.HeldBy != nil {
			t.Errorf("ticket %d = %+v, debía volver libre", id, tk)
		}
	}
	assertCounts(t, mem, 100, 0, 0)

	// The released numbers are immediately claimable by someone else.
	mustHold(t, svc, "u2", 1, 2, 3)
}

func TestTerminalOrdersAreImmutable(t *testing.T) {
	svc, _ := newTestService(t, 100)
	mustHold(t, svc, "u1", 1)
	res := mustCheckout(t, svc, "u1", 1)
	mustUpload(t, svc, "u1", res.OrderID)
	if err := svc.MarkPaid(context.Background(), "adm", res.OrderID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	assertStatus(t, svc.MarkPaid(context.Background(), "adm", res.OrderID), http.StatusConflict)
	assertStatus(t, svc.Reject(context.Background(), "adm", res.OrderID, "x"), http.StatusConflict)
	assertStatus(t, svc.Cancel(context.Background(), "adm", res.OrderID), http.StatusConflict)
}

func TestAdminActionsAudited(t *testing.T) {
	svc, mem := newTestService(t, 100)
	mustHold(t, svc, "u1", 1, 2)
	res := mustCheckout(t, svc, "u1", 1, 2)
	mustUpload(t, svc, "u1", res.OrderID)

	if err := svc.Reject(context.Background(), "adm", res.OrderID, "monto equivocado"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	mustUpload(t, svc, "u1", res.OrderID)
	if err := svc.MarkPaid(context.Background(), "adm", res.OrderID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	entries := mem.AuditEntries()
	if len(entries) != 2 {
		t.Fatalf("auditoría = %d entradas, se esperaban 2", len(entries))
	}
	if entries[0].Action != "reject" || entries[1].Action != "mark_paid" {
		t.Errorf("acciones = %s, %s", entries[0].Action, entries[1].Action)
	}
	// The rejection reason survives in the log even though the re-upload
	// wiped the proof notes.
	if !strings.Contains(entries[0].Metadata, "monto equivocado") {
		t.Errorf("metadata = %q, debía conservar el motivo", entries[0].Metadata)
	}
	if entries[1].NumbersCount != 2 {
		t.Errorf("numbersCount = %d", entries[1].NumbersCount)
	}
}

// rejectFailingStore breaks the rejected transition to exercise the
// failure path.
type rejectFailingStore struct {
	*store.Memory
}

func (f *rejectFailingStore) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	if status == models.OrderRejected {
		return errors.New("conexión perdida")
	}
	return f.Memory.UpdateOrderStatus(ctx, id, status)
}

func TestRejectFailureLeavesNoAudit(t *testing.T) {
	mem := store.NewMemory(100)
	ctx := context.Background()
	users := []models.User{
		{ID: "u1", Email: "u1@example.com", Role: models.RoleStandard},
		{ID: "adm", Email: "admin@example.com", IsAdmin: true, Role: models.RoleStandard},
	}
	for i := range users {
		if err := mem.UpsertUser(ctx, &users[i]); err != nil {
			t.Fatalf("seeding user: %v", err)
		}
	}
	svc := New(&rejectFailingStore{Memory: mem}, testConfig(100), zerolog.Nop())

	mustHold(t, svc, "u1", 1)
	res := mustCheckout(t, svc, "u1", 1)
	mustUpload(t, svc, "u1", res.OrderID)

	err := svc.Reject(ctx, "adm", res.OrderID, "foto ilegible")
	assertStatus(t, err, http.StatusInternalServerError)

	// A transition that never happened must not leave an audit row.
	if entries := mem.AuditEntries(); len(entries) != 0 {
		t.Fatalf("auditoría = %d entradas tras un rechazo fallido", len(entries))
	}
	order, _ := mem.OrderByID(ctx, res.OrderID)
	if order.Status != models.OrderUnderReview {
		t.Errorf("status = %s, la orden debía quedar en revisión", order.Status)
	}
}

func TestAdminOverview(t *testing.T) {
	svc, _ := newTestService(t, 100)
	mustHold(t, svc, "u1", 1, 2)
	res := mustCheckout(t, svc, "u1", 1, 2)
	mustUpload(t, svc, "u1", res.OrderID)

	ov, err := svc.AdminOverview(context.Background(), "adm")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.Counts.Free != 98 || ov.Counts.Held != 2 {
		t.Errorf("counts = %+v", ov.Counts)
	}
	if len(ov.Orders) != 1 {
		t.Fatalf("orders = %d", len(ov.Orders))
	}
	row := ov.Orders[0]
	if row.Email != "u1@example.com" {
		t.Errorf("email = %q", row.Email)
	}
	if len(row.Numbers) != 2 {
		t.Errorf("numbers = %v", row.Numbers)
	}
	if row.ProofURL == nil {
		t.Error("proofUrl faltante con comprobante cargado")
	}
}
