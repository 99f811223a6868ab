package reconciliation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/verone/backoffice/internal/auth"
	"github.com/verone/backoffice/internal/middleware"
)

type Handler struct {
	service      Service
	respondJSON  func(w http.ResponseWriter, status int, payload interface{})
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string)
}

func NewHandler(
	service Service,
	respondJSON func(w http.ResponseWriter, status int, payload interface{}),
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string),
) *Handler {
	return &Handler{
		service:      service,
		respondJSON:  respondJSON,
		respondError: respondError,
	}
}

type reconcileRequest struct {
	TransactionID string `json:"transaction_id"`
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound):
		h.respondError(w, http.StatusNotFound, "Invoice not found")
	case errors.Is(err, ErrTransactionNotFound):
		h.respondError(w, http.StatusNotFound, "Bank transaction not found")
	case errors.Is(err, ErrReconciliationNotFound):
		h.respondError(w, http.StatusNotFound, "Reconciliation not found")
	case errors.Is(err, ErrTransactionRequired), errors.Is(err, ErrNotCreditTransaction):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTransactionReconciled), errors.Is(err, ErrInvoiceCancelled):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *Handler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	invoiceID, _ := middleware.PathUUID(r.Context(), "invoiceID")
	candidates, err := h.service.ListCandidates(r.Context(), invoiceID)
	if err != nil {
		h.handleServiceError(w, err, "Failed to retrieve candidate transactions")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Candidate transactions retrieved successfully.",
		"data":    candidates,
	})
}

func (h *Handler) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	invoiceID, _ := middleware.PathUUID(r.Context(), "invoiceID")
	recs, err := h.service.ListReconciliations(r.Context(), invoiceID)
	if err != nil {
		h.handleServiceError(w, err, "Failed to retrieve reconciliations")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Reconciliations retrieved successfully.",
		"data":    recs,
	})
}

// Reconcile answers 201 for a new link and 200 when the pair was already linked.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	invoiceID, _ := middleware.PathUUID(r.Context(), "invoiceID")

	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	reconciledBy := auth.OptionalUserID(r.Context())
	rec, err := h.service.Reconcile(r.Context(), invoiceID, req.TransactionID, reconciledBy)
	if err != nil {
		h.handleServiceError(w, err, "Failed to reconcile invoice")
		return
	}

	status, message := http.StatusCreated, "Invoice successfully reconciled."
	if rec.AlreadyReconciled {
		status, message = http.StatusOK, "Invoice was already reconciled with this transaction."
	}
	h.respondJSON(w, status, map[string]interface{}{
		"status":  "success",
		"message": message,
		"data":    rec,
	})
}

func (h *Handler) Unreconcile(w http.ResponseWriter, r *http.Request) {
	invoiceID, _ := middleware.PathUUID(r.Context(), "invoiceID")
	transactionID := r.PathValue("transactionID")

	status, err := h.service.Unreconcile(r.Context(), invoiceID, transactionID)
	if err != nil {
		h.handleServiceError(w, err, "Failed to remove reconciliation")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Reconciliation removed.",
		"data": map[string]string{
			"invoice_status": status,
		},
	})
}
