package banking

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	appErrors "github.com/verone/backoffice/internal/errors"
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
	case appErrors.IsValidationError(err):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSyncInProgress):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, qonto.ErrNotConfigured), errors.Is(err, qonto.ErrMissingBankAccount):
		h.respondError(w, http.StatusServiceUnavailable, "Bank connection is not configured")
	case errors.Is(err, qonto.ErrUnauthorized), errors.As(err, &apiErr):
		h.respondError(w, http.StatusBadGateway, "The bank rejected the request")
	default:
		h.respondError(w, http.StatusInternalServerError, fallback)
	}
}

// Sync accepts an optional RFC 3339 "since" query parameter.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		since = parsed
	}

	result, err := h.service.SyncTransactions(r.Context(), since)
	if err != nil {
		h.handleServiceError(w, err, "Failed to synchronise bank transactions")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Bank transactions synchronised.",
		"data":    result,
	})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Side: q.Get("side")}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "page": &filter.Page} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid "+name+" parameter")
			return
		}
		*dst = n
	}

	page, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, err, "Failed to retrieve bank transactions")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Bank transactions retrieved successfully.",
		"data":    page,
	})
}
