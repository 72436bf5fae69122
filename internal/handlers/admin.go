package handlers

import (
	"net/http"
)

// Admin endpoints re-verify the caller's admin flag inside the service;
// the userId in the body is never trusted as-is.

func (h *Handlers) AdminMarkPaid(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID  string `json:"userId"`
		OrderID string `json:"orderId"`
	}
	if !decode(w, r, &body) {
		return
	}

	if err := h.svc.MarkPaid(r.Context(), body.UserID, body.OrderID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) AdminReject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID  string `json:"userId"`
		OrderID string `json:"orderId"`
		Reason  string `json:"reason"`
	}
	if !decode(w, r, &body) {
		return
	}

	if err := h.svc.Reject(r.Context(), body.UserID, body.OrderID, body.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) AdminCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID  string `json:"userId"`
		OrderID string `json:"orderId"`
	}
	if !decode(w, r, &body) {
		return
	}

	if err := h.svc.Cancel(r.Context(), body.UserID, body.OrderID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) AdminOverview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if !decode(w, r, &body) {
		return
	}

	overview, err := h.svc.AdminOverview(r.Context(), body.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}
