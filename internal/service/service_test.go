package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"rifa-api/internal/config"
	"rifa-api/internal/models"
	"rifa-api/internal/store"
)

// testClock is a settable time source for expiry tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig(total int) config.RaffleConfig {
	return config.RaffleConfig{
		TotalNumbers:       total,
		PricePerNumber:     1000,
		MaxPerOrder:        50,
		MaxActivePurchases: 3,
		MaxProofSizeBytes:  10 << 20,
	}
}

// newTestService builds a Service over an in-memory store seeded with
// the usual cast: two buyers, an admin and a trusted seller.
func newTestService(t *testing.T, total int, opts ...Option) (*Service, *store.Memory) {
	t.Helper()

	mem := store.NewMemory(total)
	ctx := context.Background()
	users := []models.User{
		{ID: "u1", Email: "u1@example.com", Role: models.RoleStandard},
		{ID: "u2", Email: "u2@example.com", Role: models.RoleStandard},
		{ID: "adm", Email: "admin@example.com", IsAdmin: true, Role: models.RoleStandard},
		{ID: "sel", Email: "seller@example.com", Role: models.RoleTrustedSeller},
	}
	for i := range users {
		if err := mem.UpsertUser(ctx, &users[i]); err != nil {
			t.Fatalf("seeding user %s: %v", users[i].ID, err)
		}
	}

	svc := New(mem, testConfig(total), zerolog.Nop(), opts...)
	return svc, mem
}

func mustHold(t *testing.T, svc *Service, userID string, numbers ...int64) {
	t.Helper()
	res, err := svc.Hold(context.Background(), userID, numbers)
	if err != nil {
		t.Fatalf("hold %v: %v", numbers, err)
	}
	for _, item := range res.Results {
		if !item.OK {
			t.Fatalf("hold %v: número %d no disponible", numbers, item.Num)
		}
	}
}

func mustCheckout(t *testing.T, svc *Service, userID string, numbers ...int64) *CheckoutResult {
	t.Helper()
	res, err := svc.CreateOrder(context.Background(), userID, numbers, "")
	if err != nil {
		t.Fatalf("checkout %v: %v", numbers, err)
	}
	return res
}

func mustUpload(t *testing.T, svc *Service, userID, orderID string) {
	t.Helper()
	err := svc.UploadProof(context.Background(), UploadProofInput{
		UserID:    userID,
		OrderID:   orderID,
		FilePath:  orderID + "/proof.jpg",
		PublicURL: "https://storage.example.com/" + orderID + "/proof.jpg",
		FileType:  "image/jpeg",
		SizeBytes: 2048,
	})
	if err != nil {
		t.Fatalf("upload proof: %v", err)
	}
}

func ticketState(t *testing.T, mem *store.Memory, id int64) models.Ticket {
	t.Helper()
	rows, err := mem.TicketsByID(context.Background(), []int64{id})
	if err != nil || len(rows) != 1 {
		t.Fatalf("ticket %d no encontrado: %v", id, err)
	}
	return rows[0]
}

func assertCounts(t *testing.T, mem *store.Memory, free, held, sold int) {
	t.Helper()
	counts, err := mem.CountTickets(context.Background())
	if err != nil {
		t.Fatalf("contando: %v", err)
	}
	if counts.Free != free || counts.Held != held || counts.Sold != sold {
		t.Fatalf("counts = %+v, se esperaba free=%d held=%d sold=%d", counts, free, held, sold)
	}
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	if err == nil {
		t.Fatalf("se esperaba error con status %d, no hubo error", want)
	}
	if got := HTTPStatus(err); got != want {
		t.Fatalf("status = %d, se esperaba %d (err: %v)", got, want, err)
	}
}
