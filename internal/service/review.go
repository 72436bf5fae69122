package service

import (
	"context"
	"errors"

	"rifa-api/internal/events"
	"rifa-api/internal/models"
	"rifa-api/internal/store"
)

// allowedProofTypes is the server-side re-validation of the client-side
// allow-list: images and PDF only.
var allowedProofTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

type UploadProofInput struct {
	UserID    string
	OrderID   string
	FilePath  string
	PublicURL string
	FileType  string
	SizeBytes int64
	Notes     string // optional buyer note, stored on the order
}

// UploadProof records an uploaded payment confirmation and moves the
// order under review. Re-upload replaces the previous proof (one per
// order); a trusted seller's order skips review entirely.
func (s *Service) UploadProof(ctx context.Context, in UploadProofInput) error {
	if in.UserID == "" || in.OrderID == "" || in.FilePath == "" || in.PublicURL == "" {
		return errInvalid("Faltan datos")
	}
	if in.FileType != "" && !allowedProofTypes[in.FileType] {
		return errInvalid("Tipo de archivo no permitido (imagen o PDF)")
	}
	if s.cfg.MaxProofSizeBytes > 0 && in.SizeBytes > s.cfg.MaxProofSizeBytes {
		return errInvalid("El archivo supera el tamaño máximo permitido")
	}

	order, err := s.store.OrderByID(ctx, in.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errNotFound("Orden no encontrada")
		}
		return errInternal(err)
	}
	if order.UserID != in.UserID {
		return errForbidden("No autorizado")
	}
	if order.Status.Terminal() {
		return errConflict("La orden ya está cerrada")
	}

	if err := s.store.UpsertProof(ctx, &models.PaymentProof{
		OrderID:   in.OrderID,
		UserID:    order.UserID,
		FileURL:   in.PublicURL,
		FilePath:  in.FilePath,
		FileType:  in.FileType,
		SizeBytes: in.SizeBytes,
	}); err != nil {
		return errInternal(err)
	}

	if in.Notes != "" {
		if err := s.store.UpdateOrderNotes(ctx, in.OrderID, in.Notes); err != nil {
			return errInternal(err)
		}
	}

	user, err := s.store.UserByID(ctx, order.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return errInternal(err)
	}

	// Trusted-seller path: no manual review, straight to paid+sold.
	if user != nil && user.Role == models.RoleTrustedSeller {
		if err := s.store.FinalizePaid(ctx, in.OrderID); err != nil {
			return errInternal(err)
		}
		s.publish(ctx, events.OrderEvent{
			Type:    events.OrderPaid,
			OrderID: in.OrderID,
			UserID:  order.UserID,
			Email:   user.Email,
			Total:   order.TotalAmount,
		})
		return nil
	}

	if err := s.store.UpdateOrderStatus(ctx, in.OrderID, models.OrderUnderReview); err != nil {
		return errInternal(err)
	}
	s.refreshActivePurchases(ctx, order.UserID)

	s.notifyAdmin("📄 Comprobante recibido\n🧾 Orden: %s\n💰 Total: $%.0f\n⏳ Pendiente de revisión",
		in.OrderID, order.TotalAmount)
	var email string
	if user != nil {
		email = user.Email
	}
	s.publish(ctx, events.OrderEvent{
		Type:    events.ProofUploaded,
		OrderID: in.OrderID,
		UserID:  order.UserID,
		Email:   email,
		Total:   order.TotalAmount,
	})

	return nil
}

// DeleteProof withdraws the uploaded proof and reverts the order to
// awaiting_proof. The stored file itself lives in external object
// storage; the proof-deleted event carries its path so the storage
// janitor can remove it.
func (s *Service) DeleteProof(ctx context.Context, userID, orderID string) error {
	if userID == "" || orderID == "" {
		return errInvalid("Faltan datos")
	}

	order, err := s.store.OrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errNotFound("Orden no encontrada")
		}
		return errInternal(err)
	}
	if order.UserID != userID {
		return errForbidden("No autorizado")
	}
	if order.Status.Terminal() {
		return errConflict("La orden ya está cerrada")
	}

	var filePath string
	if proof, err := s.store.ProofByOrder(ctx, orderID); err == nil {
		filePath = proof.FilePath
	}

	if err := s.store.DeleteProof(ctx, orderID); err != nil {
		return errInternal(err)
	}
	if err := s.store.UpdateOrderStatus(ctx, orderID, models.OrderAwaitingProof); err != nil {
		return errInternal(err)
	}

	s.publish(ctx, events.OrderEvent{
		Type:    events.ProofDeleted,
		OrderID: orderID,
		UserID:  userID,
		Reason:  filePath,
	})

	return nil
}
