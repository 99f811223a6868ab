package invoicing

import (
	"errors"
	"net/http"

	"github.com/verone/backoffice/internal/middleware"
	"github.com/verone/backoffice/internal/qonto"
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

func (h *Handler) handleServiceError(w http.ResponseWriter, err error, fallback string) {
	var apiErr *qonto.APIError
	switch {
	case errors.Is(err, ErrOrderNotFound):
		h.respondError(w, http.StatusNotFound, "Sales order not found")
	case errors.Is(err, ErrEmptyOrder), errors.Is(err, ErrZeroInvoiceAmount):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrMissingClient), errors.Is(err, ErrQuoteExists), errors.Is(err, ErrInvoiceExists),
		errors.Is(err, ErrDocumentInProgress):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, qonto.ErrNotConfigured):
		h.respondError(w, http.StatusServiceUnavailable, "Qonto is not configured")
	case errors.Is(err, qonto.ErrUnauthorized), errors.As(err, &apiErr):
		h.respondError(w, http.StatusBadGateway, "Qonto rejected the request")
	default:
		h.respondError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *Handler) PreviewQuote(w http.ResponseWriter, r *http.Request) {
	orderID, _ := middleware.PathUUID(r.Context(), "orderID")
	req, err := h.service.BuildQuote(r.Context(), orderID)
	if err != nil {
		h.handleServiceError(w, err, "Failed to build quote")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Quote preview built.",
		"data":    req,
	})
}

func (h *Handler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	orderID, _ := middleware.PathUUID(r.Context(), "orderID")
	result, err := h.service.CreateQuote(r.Context(), orderID)
	if err != nil {
		h.handleServiceError(w, err, "Failed to create quote")
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Quote successfully created.",
		"data":    result,
	})
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	orderID, _ := middleware.PathUUID(r.Context(), "orderID")
	invoice, err := h.service.CreateInvoice(r.Context(), orderID)
	if err != nil {
		h.handleServiceError(w, err, "Failed to create invoice")
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Invoice successfully created.",
		"data":    invoice,
	})
}
