package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"rifa-api/internal/models"
	"rifa-api/internal/service"
)

// Handlers exposes the raffle core over JSON endpoints.
type Handlers struct {
	svc *service.Service
	log zerolog.Logger
}

func New(svc *service.Service, log zerolog.Logger) *Handlers {
	return &Handlers{svc: svc, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := service.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("error interno")
	}
	writeJSON(w, status, map[string]string{"error": service.PublicMessage(err)})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Cuerpo inválido"})
		return false
	}
	return true
}

func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ListTickets serves the paged grid: GET /api/tickets?offset=&limit=&status=
func (h *Handlers) ListTickets(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	status := models.TicketStatus(r.URL.Query().Get("status"))

	tickets, err := h.svc.ListTickets(r.Context(), offset, limit, status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tickets": tickets})
}

func (h *Handlers) Hold(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID  string  `json:"userId"`
		Numbers []int64 `json:"numbers"`
	}
	if !decode(w, r, &body) {
		return
	}

	result, err := h.svc.Hold(r.Context(), body.UserID, body.Numbers)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) RandomHold(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
		Qty    int    `json:"qty"`
	}
	if !decode(w, r, &body) {
		return
	}

	held, expiresAt, err := h.svc.HoldRandom(r.Context(), body.UserID, body.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if held == nil {
		held = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"held":      held,
		"expiresAt": expiresAt,
	})
}

func (h *Handlers) Release(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID  string  `json:"userId"`
		Numbers []int64 `json:"numbers"`
	}
	if !decode(w, r, &body) {
		return
	}

	result, err := h.svc.Release(r.Context(), body.UserID, body.Numbers)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID  string  `json:"userId"`
		Numbers []int64 `json:"numbers"`
		Notes   string  `json:"notes"`
	}
	if !decode(w, r, &body) {
		return
	}

	result, err := h.svc.CreateOrder(r.Context(), body.UserID, body.Numbers, body.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) UploadProof(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID    string `json:"userId"`
		OrderID   string `json:"orderId"`
		FilePath  string `json:"filePath"`
		PublicURL string `json:"publicUrl"`
		FileType  string `json:"fileType"`
		SizeBytes int64  `json:"sizeBytes"`
		Notes     string `json:"notes"`
	}
	if !decode(w, r, &body) {
		return
	}

	err := h.svc.UploadProof(r.Context(), service.UploadProofInput{
		UserID:    body.UserID,
		OrderID:   body.OrderID,
		FilePath:  body.FilePath,
		PublicURL: body.PublicURL,
		FileType:  body.FileType,
		SizeBytes: body.SizeBytes,
		Notes:     body.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) DeleteProof(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID  string `json:"userId"`
		OrderID string `json:"orderId"`
	}
	if !decode(w, r, &body) {
		return
	}

	if err := h.svc.DeleteProof(r.Context(), body.UserID, body.OrderID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) PurchaseLimits(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID         string `json:"userId"`
		RequestedCount int    `json:"requestedCount"`
	}
	if !decode(w, r, &body) {
		return
	}

	check, err := h.svc.PurchaseLimits(r.Context(), body.UserID, body.RequestedCount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// MyOrders: GET /api/my-orders?userId=
func (h *Handlers) MyOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	orders, active, err := h.svc.MyOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders":          orders,
		"activePurchases": active,
	})
}

func (h *Handlers) UpdateOrderNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID  string `json:"userId"`
		OrderID string `json:"orderId"`
		Notes   string `json:"notes"`
	}
	if !decode(w, r, &body) {
		return
	}

	if err := h.svc.UpdateOrderNote(r.Context(), body.UserID, body.OrderID, body.Notes); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
