package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"rifa-api/internal/models"
)

// Memory is an in-process Store with the same conditional-update contract
// as the SQL implementation. The test suite runs the services against it;
// the mutex makes each conditional update a linearization point, exactly
// like a row-level UPDATE ... WHERE on the real database.
type Memory struct {
	mu      sync.Mutex
	tickets map[int64]*models.Ticket
	orders  map[string]*models.Order
	proofs  map[string]*models.PaymentProof
	users   map[string]*models.User
	audit   []models.AuditEntry
	now     func() time.Time
}

// NewMemory creates a Memory store seeded with the pool 0..total-1.
func NewMemory(total int) *Memory {
	m := &Memory{
		tickets: make(map[int64]*models.Ticket, total),
		orders:  make(map[string]*models.Order),
		proofs:  make(map[string]*models.PaymentProof),
		users:   make(map[string]*models.User),
		now:     time.Now,
	}
	for i := 0; i < total; i++ {
		m.tickets[int64(i)] = &models.Ticket{ID: int64(i), Status: models.TicketFree}
	}
	return m
}

// AuditEntries returns a copy of the audit log, newest last.
func (m *Memory) AuditEntries() []models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

func (m *Memory) sortedTicketIDs() []int64 {
	ids := make([]int64, 0, len(m.tickets))
	for id := range m.tickets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Memory) ListTickets(_ context.Context, offset, limit int, status models.TicketStatus) ([]models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Ticket
	skipped := 0
	for _, id := range m.sortedTicketIDs() {
		t := m.tickets[id]
		if status != "" && t.Status != status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, *t)
	}
	return out, nil
}

func (m *Memory) TicketsByID(_ context.Context, ids []int64) ([]models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Ticket
	for _, id := range ids {
		if t, ok := m.tickets[id]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *Memory) TicketsByOrder(_ context.Context, orderID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticketsByOrderLocked(orderID), nil
}

func (m *Memory) ticketsByOrderLocked(orderID string) []int64 {
	var ids []int64
	for id, t := range m.tickets {
		if t.OrderID != nil && *t.OrderID == orderID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Memory) ClaimAsHeld(_ context.Context, ids []int64, userID string, expiresAt *time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var claimed []int64
	for _, id := range ids {
		t, ok := m.tickets[id]
		if !ok || t.Status != models.TicketFree {
			continue
		}
		uid := userID
		t.Status = models.TicketHeld
		t.HeldBy = &uid
		t.HoldExpiresAt = expiresAt
		t.UpdatedAt = m.now()
		claimed = append(claimed, id)
	}
	return claimed, nil
}

func (m *Memory) ReleaseHeld(_ context.Context, ids []int64, userID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var released []int64
	for _, id := range ids {
		t, ok := m.tickets[id]
		if !ok || t.Status != models.TicketHeld || t.HeldBy == nil || *t.HeldBy != userID || t.OrderID != nil {
			continue
		}
		t.Status = models.TicketFree
		t.HeldBy = nil
		t.HoldExpiresAt = nil
		t.UpdatedAt = m.now()
		released = append(released, id)
	}
	return released, nil
}

func (m *Memory) ReleaseExpired(_ context.Context, ids []int64, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inSet := func(int64) bool { return true }
	if len(ids) > 0 {
		set := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		inSet = func(id int64) bool { _, ok := set[id]; return ok }
	}

	n := 0
	for id, t := range m.tickets {
		if !inSet(id) || t.Status != models.TicketHeld || t.OrderID != nil {
			continue
		}
		if t.HoldExpiresAt == nil || !t.HoldExpiresAt.Before(now) {
			continue
		}
		t.Status = models.TicketFree
		t.HeldBy = nil
		t.HoldExpiresAt = nil
		t.UpdatedAt = m.now()
		n++
	}
	return n, nil
}

func (m *Memory) AttachToOrder(_ context.Context, ids []int64, userID, orderID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var attached []int64
	for _, id := range ids {
		t, ok := m.tickets[id]
		if !ok || t.Status != models.TicketHeld || t.HeldBy == nil || *t.HeldBy != userID || t.OrderID != nil {
			continue
		}
		oid := orderID
		t.OrderID = &oid
		t.UpdatedAt = m.now()
		attached = append(attached, id)
	}
	return attached, nil
}

func (m *Memory) MarkTicketsSold(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markTicketsSoldLocked(orderID)
	return nil
}

func (m *Memory) markTicketsSoldLocked(orderID string) {
	for _, t := range m.tickets {
		if t.OrderID != nil && *t.OrderID == orderID {
			t.Status = models.TicketSold
			t.HeldBy = nil
			t.HoldExpiresAt = nil
			t.UpdatedAt = m.now()
		}
	}
}

func (m *Memory) CountTickets(_ context.Context) (StatusCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var c StatusCounts
	for _, t := range m.tickets {
		switch t.Status {
		case models.TicketFree:
			c.Free++
		case models.TicketHeld:
			c.Held++
		case models.TicketSold:
			c.Sold++
		}
	}
	return c, nil
}

func (m *Memory) CountFree(_ context.Context) (int, error) {
	c, _ := m.CountTickets(context.Background())
	return c.Free, nil
}

func (m *Memory) ListFree(_ context.Context, offset, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []int64
	skipped := 0
	for _, id := range m.sortedTicketIDs() {
		if m.tickets[id].Status != models.TicketFree {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, id)
	}
	return out, nil
}

func (m *Memory) CreateOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.Status.Open() {
		for _, existing := range m.orders {
			if existing.UserID == o.UserID && existing.Fingerprint == o.Fingerprint && existing.Status.Open() {
				return ErrDuplicateOrder
			}
		}
	}
	cp := *o
	cp.CreatedAt = m.now()
	cp.UpdatedAt = cp.CreatedAt
	m.orders[o.ID] = &cp
	return nil
}

func (m *Memory) OrderByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) OpenOrderByFingerprint(_ context.Context, userID, fingerprint string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.UserID == userID && o.Fingerprint == fingerprint && o.Status.Open() {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateOrderStatus(_ context.Context, id string, status models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = m.now()
	return nil
}

func (m *Memory) UpdateOrderNotes(_ context.Context, id, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Notes = notes
	o.UpdatedAt = m.now()
	return nil
}

func (m *Memory) CountOpenOrders(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, o := range m.orders {
		if o.UserID == userID && o.Status.Open() {
			n++
		}
	}
	return n, nil
}

func (m *Memory) RecentOrders(_ context.Context, limit int) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) OrdersByUser(_ context.Context, userID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) FinalizePaid(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = models.OrderPaid
	o.UpdatedAt = m.now()
	m.markTicketsSoldLocked(orderID)
	return nil
}

func (m *Memory) FinalizeCanceled(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	for _, t := range m.tickets {
		if t.OrderID != nil && *t.OrderID == orderID {
			t.Status = models.TicketFree
			t.HeldBy = nil
			t.HoldExpiresAt = nil
			t.OrderID = nil
			t.UpdatedAt = m.now()
		}
	}
	o.Status = models.OrderCanceled
	o.UpdatedAt = m.now()
	return nil
}

func (m *Memory) UpsertProof(_ context.Context, p *models.PaymentProof) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	cp.Notes = ""
	cp.UploadedAt = m.now()
	m.proofs[p.OrderID] = &cp
	return nil
}

func (m *Memory) ProofByOrder(_ context.Context, orderID string) (*models.PaymentProof, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proofs[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) DeleteProof(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.proofs, orderID)
	return nil
}

func (m *Memory) SetProofNotes(_ context.Context, orderID, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.proofs[orderID]; ok {
		p.Notes = notes
	}
	return nil
}

func (m *Memory) UserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) UpsertUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *Memory) SetActivePurchases(_ context.Context, userID string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[userID]; ok {
		u.ActivePurchases = n
	}
	return nil
}

func (m *Memory) AppendAudit(_ context.Context, e *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	cp.ID = int64(len(m.audit) + 1)
	cp.CreatedAt = m.now()
	m.audit = append(m.audit, cp)
	return nil
}
