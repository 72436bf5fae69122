package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"rifa-api/internal/config"
	"rifa-api/internal/models"
	"rifa-api/internal/service"
	"rifa-api/internal/store"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

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

	cfg := config.RaffleConfig{
		TotalNumbers:       100,
		PricePerNumber:     1000,
		MaxPerOrder:        50,
		MaxActivePurchases: 3,
		MaxProofSizeBytes:  10 << 20,
	}
	svc := service.New(mem, cfg, zerolog.Nop())
	h := New(svc, zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/api/ping", h.Ping)
	r.Get("/api/tickets", h.ListTickets)
	r.Get("/api/my-orders", h.MyOrders)
	r.Post("/api/hold", h.Hold)
	r.Post("/api/random-hold", h.RandomHold)
	r.Post("/api/release", h.Release)
	r.Post("/api/create-order", h.CreateOrder)
	r.Post("/api/upload-proof", h.UploadProof)
	r.Post("/api/delete-proof", h.DeleteProof)
	r.Post("/api/update-order-note", h.UpdateOrderNote)
	r.Post("/api/purchase-limits", h.PurchaseLimits)
	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/mark-paid", h.AdminMarkPaid)
		r.Post("/reject", h.AdminReject)
		r.Post("/cancel", h.AdminCancel)
		r.Post("/overview", h.AdminOverview)
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode respuesta: %v (body: %s)", err, rec.Body.String())
	}
}

func TestPing(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/ping", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestFullPurchaseFlow(t *testing.T) {
	router := newTestRouter(t)

	// Hold three numbers.
	rec := doJSON(t, router, http.MethodPost, "/api/hold", map[string]interface{}{
		"userId":  "u1",
		"numbers": []int64{5, 12, 99},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("hold status = %d: %s", rec.Code, rec.Body.String())
	}

	// Checkout.
	rec = doJSON(t, router, http.MethodPost, "/api/create-order", map[string]interface{}{
		"userId":  "u1",
		"numbers": []int64{5, 12, 99},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create-order status = %d: %s", rec.Code, rec.Body.String())
	}
	var order struct {
		OrderID string  `json:"orderId"`
		Total   float64 `json:"total"`
		Numbers []int64 `json:"numbers"`
	}
	decodeBody(t, rec, &order)
	if order.OrderID == "" || order.Total != 3000 || len(order.Numbers) != 3 {
		t.Fatalf("orden = %+v", order)
	}

	// Upload the payment proof.
	rec = doJSON(t, router, http.MethodPost, "/api/upload-proof", map[string]interface{}{
		"userId":    "u1",
		"orderId":   order.OrderID,
		"filePath":  order.OrderID + "/proof.jpg",
		"publicUrl": "https://storage.example.com/proof.jpg",
		"fileType":  "image/jpeg",
		"sizeBytes": 2048,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("upload-proof status = %d: %s", rec.Code, rec.Body.String())
	}

	// Admin confirms.
	rec = doJSON(t, router, http.MethodPost, "/api/admin/mark-paid", map[string]interface{}{
		"userId":  "adm",
		"orderId": order.OrderID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("mark-paid status = %d: %s", rec.Code, rec.Body.String())
	}

	// The buyer sees the paid order.
	rec = doJSON(t, router, http.MethodGet, "/api/my-orders?userId=u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("my-orders status = %d", rec.Code)
	}
	var mine struct {
		Orders []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"orders"`
		ActivePurchases int `json:"activePurchases"`
	}
	decodeBody(t, rec, &mine)
	if len(mine.Orders) != 1 || mine.Orders[0].Status != "paid" {
		t.Fatalf("my-orders = %+v", mine)
	}
	if mine.ActivePurchases != 0 {
		t.Errorf("activePurchases = %d, la orden pagada no cuenta", mine.ActivePurchases)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	router := newTestRouter(t)

	// Malformed body → 400.
	req := httptest.NewRequest(http.MethodPost, "/api/hold", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("body inválido: status = %d", rec.Code)
	}

	// Checkout on unheld numbers → 409.
	rec = doJSON(t, router, http.MethodPost, "/api/create-order", map[string]interface{}{
		"userId":  "u1",
		"numbers": []int64{1},
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("checkout sin reserva: status = %d", rec.Code)
	}

	// Unknown order → 404.
	rec = doJSON(t, router, http.MethodPost, "/api/upload-proof", map[string]interface{}{
		"userId":    "u1",
		"orderId":   "00000000-0000-0000-0000-000000000000",
		"filePath":  "x",
		"publicUrl": "https://x",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("orden inexistente: status = %d", rec.Code)
	}

	// Non-admin on an admin endpoint → 403.
	rec = doJSON(t, router, http.MethodPost, "/api/admin/overview", map[string]interface{}{
		"userId": "u1",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("overview sin admin: status = %d", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] == "" {
		t.Error("toda respuesta de error debe llevar el campo error")
	}
}

func TestListTicketsFilter(t *testing.T) {
	router := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/api/hold", map[string]interface{}{
		"userId":  "u1",
		"numbers": []int64{1, 2},
	})

	rec := doJSON(t, router, http.MethodGet, "/api/tickets?status=held&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tickets status = %d", rec.Code)
	}
	var resp struct {
		Tickets []struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"tickets"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Tickets) != 2 {
		t.Fatalf("tickets = %d, se esperaban 2 held", len(resp.Tickets))
	}
	for _, tk := range resp.Tickets {
		if tk.Status != "held" {
			t.Errorf("ticket %d = %s", tk.ID, tk.Status)
		}
	}
}

func TestRandomHoldEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/random-hold", map[string]interface{}{
		"userId": "u1",
		"qty":    5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("random-hold status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Held []int64 `json:"held"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Held) != 5 {
		t.Fatalf("held = %v", resp.Held)
	}
}
