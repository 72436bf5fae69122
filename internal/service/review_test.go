package service

import (
	"context"
	"net/http"
	"testing"

	"rifa-api/internal/models"
)

func TestUploadProofMovesOrderUnderReview(t *testing.T) {
	svc, mem := newTestService(t, 100)
	mustHold(t, svc, "u1", 1)
	res := mustCheckout(t, svc, "u1", 1)

	mustUpload(t, svc, "u1", res.OrderID)

	order, _ := mem.OrderByID(context.Background(), res.OrderID)
	if order.Status != models.OrderUnderReview {
		t.Fatalf("status = %s, se esperaba under_review", order.Status)
	}
	proof, err := mem.ProofByOrder(context.Background(), res.OrderID)
	if err != nil {
		t.Fatalf("comprobante: %v", err)
	}
	if proof.UserID != "u1" {
		t.Errorf("proof.UserID = %q", proof.UserID)
	}
}

func TestUploadProofReplacesPrevious(t *testing.T) {
	svc, mem := newTestService(t, 100)
	mustHold(t, svc, "u1", 1)
	res := mustCheckout(t, svc, "u1", 1)
	mustUpload(t, svc, "u1", res.OrderID)

	err := svc.UploadProof(context.Background(), UploadProofInput{
		UserID:    "u1",
		OrderID:   res.OrderID,
		FilePath:  res.OrderID + "/proof2.png",
		PublicURL: "https://storage.example.com/" + res.OrderID + "/proof2.png",
		FileType:  "image/png",
		SizeBytes: 1024,
	})
	if err != nil {
		t.Fatalf("re-upload: %v", err)
	}

	proof, _ := mem.ProofByOrder(context.Background(), res.OrderID)
	if proof.FileType != "image/png" {
		t.Errorf("el segundo comprobante debía reemplazar al primero: %+v", proof)
	}
}

func TestUploadProofStoresBuyerNote(t *testing.T) {
	svc, mem := newTestService(t, 100)
	mustHold(t, svc, "u1", 1)
	res := mustCheckout(t, svc, "u1", 1)

	err := svc.UploadProof(context.Background(), UploadProofInput{
		UserID:    "u1",
		OrderID:   res.OrderID,
		FilePath:  res.OrderID + "/proof.jpg",
		PublicURL: "https://storage.example.com/proof.jpg",
		FileType:  "image/jpeg",
		SizeBytes: 2048,
		Notes:     "transferí desde otra cuenta",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	order, _ := mem.OrderByID(context.Background(), res.OrderID)
	if order.Notes != "transferí desde otra cuenta" {
		t.Errorf("order.Notes = %q, debía guardar la nota del comprador", order.Notes)
	}
}

func TestUploadProofValidation(t *testing.T) {
	svc, _ := newTestService(t, 100)
	mustHold(t, svc, "u1", 1)
	res := mustCheckout(t, svc, "u1", 1)

	err := svc.UploadProof(context.Background(), UploadProofInput{
		UserID:    "u1",
		OrderID:   res.OrderID,
		FilePath:  "x",
		PublicURL: "https://x",
		FileType:  "application/zip",
		SizeBytes: 100,
	})
	assertStatus(t, err, http.StatusBadRequest)

	err = svc.UploadProof(context.Background(), UploadProofInput{
		UserID:    "u1",
		OrderID:   res.OrderID,
		FilePath:  "x",
		PublicURL: "https://x",
		FileType:  "image/jpeg",
		SizeBytes: 11 << 20,
	})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestUploadProofOwnership(t *testing.T) {
	svc, _ := newTestService(t, 100)
	mustHold(t, svc, "u1", 1)
	res := mustCheckout(t, svc, "u1", 1)

	err := svc.UploadProof(context.Background(), UploadProofInput{
		UserID:    "u2",
		OrderID:   res.OrderID,
		FilePath:  "x",
		PublicURL: "https://x",
	})
	assertStatus(t, err, http.StatusForbidden)
}

func TestUploadProofClosedOrder(t *testing.T) {
	svc, _ := newTestService(t, 100)
	mustHold(t, svc, "u1", 1)
	res := mustCheckout(t, svc, "u1", 1)
	mustUpload(t, svc, "u1", res.OrderID)
	if err := svc.MarkPaid(context.Background(), "adm", res.OrderID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	err := svc.UploadProof(context.Background(), UploadProofInput{
		UserID:    "u1",
		OrderID:   res.OrderID,
		FilePath:  "x",
		PublicURL: "https://x",
	})
	assertStatus(t, err, http.StatusConflict)
}

func TestDeleteProofRevertsToAwaiting(t *testing.T) {
	svc, mem := newTestService(t, 100)
	mustHold(t, svc, "u1", 1)
	res := mustCheckout(t, svc, "u1", 1)
	mustUpload(t, svc, "u1", res.OrderID)

	if err := svc.DeleteProof(context.Background(), "u1", res.OrderID); err != nil {
		t.Fatalf("delete proof: %v", err)
	}

	order, _ := mem.OrderByID(context.Background(), res.OrderID)
	if order.Status != models.OrderAwaitingProof {
		t.Fatalf("status = %s, se esperaba awaiting_proof", order.Status)
	}
	if _, err := mem.ProofByOrder(context.Background(), res.OrderID); err == nil {
		t.Error("el comprobante debía eliminarse")
	}
}

func TestRejectThenRetry(t *testing.T) {
	svc, mem := newTestService(t, 100)
	mustHold(t, svc, "u1", 1)
	res := mustCheckout(t, svc, "u1", 1)
	mustUpload(t, svc, "u1", res.OrderID)

	if err := svc.Reject(context.Background(), "adm", res.OrderID, "foto ilegible"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	order, _ := mem.OrderByID(context.Background(), res.OrderID)
	if order.Status != models.OrderRejected {
		t.Fatalf("status = %s, se esperaba rejected", order.Status)
	}
	proof, _ := mem.ProofByOrder(context.Background(), res.OrderID)
	if proof.Notes != "foto ilegible" {
		t.Errorf("proof.Notes = %q, debía llevar el motivo del rechazo", proof.Notes)
	}

	// A fresh proof clears the rejection note and re-enters review; the
	// tickets never left the order.
	mustUpload(t, svc, "u1", res.OrderID)
	order, _ = mem.OrderByID(context.Background(), res.OrderID)
	if order.Status != models.OrderUnderReview {
		t.Fatalf("status = %s tras reintentar", order.Status)
	}
	proof, _ = mem.ProofByOrder(context.Background(), res.OrderID)
	if proof.Notes != "" {
		t.Errorf("proof.Notes = %q, el reintento debía limpiar el motivo", proof.Notes)
	}
	if tk := ticketState(t, mem, 1); tk.OrderID == nil || *tk.OrderID != res.OrderID {
		t.Errorf("el ticket debía seguir atado a la orden: %+v", tk)
	}

	if err := svc.MarkPaid(context.Background(), "adm", res.OrderID); err != nil {
		t.Fatalf("mark paid tras reintento: %v", err)
	}
}
