package contact

import (
	"encoding/json"
	"net/http"
	"strconv"

	appErrors "github.com/verone/backoffice/internal/errors"
)

// maxBodyBytes leaves room for a 5000-character message in multi-byte UTF-8.
const maxBodyBytes = 64 << 10

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
	return &Handler{service: service, respondJSON: respondJSON, respondError: respondError}
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var input SubmissionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub, err := h.service.Submit(r.Context(), input)
	if err != nil {
		if messages, ok := appErrors.AsValidationErrors(err); ok {
			h.respondError(w, http.StatusBadRequest, "Validation failed", messages)
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Failed to submit the form")
		return
	}

	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Thank you, your message has been received.",
		"data": map[string]string{
			"id": sub.ID.String(),
		},
	})
}

func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	subs, err := h.service.ListSubmissions(r.Context(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve form submissions")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Form submissions retrieved successfully.",
		"data":    subs,
	})
}
