package shipping

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/verone/backoffice/internal/auth"
	appErrors "github.com/verone/backoffice/internal/errors"
	"github.com/verone/backoffice/internal/middleware"
)

const maxShipmentBody = 256 << 10

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
	if messages, ok := appErrors.AsValidationErrors(err); ok {
		h.respondError(w, http.StatusBadRequest, "Validation failed", messages)
		return
	}
	var packlinkErr *PacklinkError
	switch {
	case errors.Is(err, ErrOrderNotFound):
		h.respondError(w, http.StatusNotFound, "Sales order not found")
	case errors.Is(err, ErrOverShipment):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrPacklinkDisabled):
		h.respondError(w, http.StatusServiceUnavailable, "Packlink is not configured")
	case errors.As(err, &packlinkErr):
		h.respondError(w, http.StatusBadGateway, "Packlink rejected the shipment: "+packlinkErr.Message)
	default:
		h.respondError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	orderID, _ := middleware.PathUUID(r.Context(), "orderID")

	var input ShipmentInput
	r.Body = http.MaxBytesReader(w, r.Body, maxShipmentBody)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	shipment, err := h.service.CreateShipment(r.Context(), orderID, input, auth.OptionalUserID(r.Context()))
	if err != nil {
		h.handleServiceError(w, err, "Failed to create shipment")
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Shipment created successfully.",
		"data":    shipment,
	})
}

func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	orderID, _ := middleware.PathUUID(r.Context(), "orderID")
	shipments, err := h.service.ListShipments(r.Context(), orderID)
	if err != nil {
		h.handleServiceError(w, err, "Failed to retrieve shipments")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Shipments retrieved successfully.",
		"data":    shipments,
	})
}
