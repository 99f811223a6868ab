package matching

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	appErrors "github.com/verone/backoffice/internal/errors"
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
	if service == nil || respondJSON == nil || respondError == nil {
		panic("Service and response functions must not be nil")
	}
	return &Handler{
		service:      service,
		respondJSON:  respondJSON,
		respondError: respondError,
	}
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type linkLabelRequest struct {
	Label           string    `json:"label"`
	MatchType       MatchType `json:"match_type"`
	OrganisationID  uuid.UUID `json:"organisation_id"`
	DefaultCategory string    `json:"default_category"`
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error, fallback string) {
	if messages, ok := appErrors.AsValidationErrors(err); ok {
		h.respondError(w, http.StatusBadRequest, "Validation failed", messages)
		return
	}
	switch {
	case appErrors.IsValidationError(err), errors.Is(err, ErrEmptyPatch):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRuleNotFound):
		h.respondError(w, http.StatusNotFound, "Matching rule not found")
	case errors.Is(err, ErrOrganisationNotFound):
		h.respondError(w, http.StatusNotFound, "Organisation not found")
	case errors.Is(err, ErrRuleConflict):
		h.respondError(w, http.StatusConflict, "A matching rule already exists for this label")
	case errors.Is(err, ErrRuleDisabled):
		h.respondError(w, http.StatusConflict, "Matching rule is disabled")
	default:
		h.respondError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *Handler) ruleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.PathUUID(r.Context(), "ruleID")
	if !ok {
		h.respondError(w, http.StatusBadRequest, "Invalid ruleID format")
	}
	return id, ok
}

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListRules(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve matching rules")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Matching rules retrieved successfully.",
		"data":    rules,
	})
}

func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	rule, err := h.service.GetRule(r.Context(), ruleID)
	if err != nil {
		h.handleServiceError(w, err, "Failed to retrieve matching rule")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Matching rule retrieved successfully.",
		"data":    rule,
	})
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rule, err := h.service.CreateRule(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, err, "Failed to create matching rule")
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Matching rule successfully created.",
		"data":    rule,
	})
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var req RulePatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rule, err := h.service.UpdateRule(r.Context(), ruleID, req)
	if err != nil {
		h.handleServiceError(w, err, "Failed to update matching rule")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Matching rule successfully updated.",
		"data":    rule,
	})
}

func (h *Handler) SetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		h.respondError(w, http.StatusBadRequest, "Field 'enabled' is required")
		return
	}
	rule, err := h.service.SetRuleEnabled(r.Context(), ruleID, *req.Enabled)
	if err != nil {
		h.handleServiceError(w, err, "Failed to update matching rule")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Matching rule successfully updated.",
		"data":    rule,
	})
}

func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRule(r.Context(), ruleID); err != nil {
		h.handleServiceError(w, err, "Failed to delete matching rule")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Matching rule successfully deleted.",
	})
}

func (h *Handler) ListUnclassifiedLabels(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}
	labels, err := h.service.ListUnclassifiedLabels(r.Context(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to retrieve unclassified labels")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Unclassified labels retrieved successfully.",
		"data":    labels,
	})
}

func (h *Handler) LinkLabel(w http.ResponseWriter, r *http.Request) {
	var req linkLabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rule, outcome, err := h.service.LinkLabel(r.Context(), RuleInput{
		MatchValue:      req.Label,
		MatchType:       req.MatchType,
		OrganisationID:  req.OrganisationID,
		DefaultCategory: req.DefaultCategory,
	})
	if err != nil && rule == nil {
		h.handleServiceError(w, err, "Failed to link label")
		return
	}
	message := "Label successfully linked."
	if err != nil {
		message = "Label linked, but applying the rule failed."
	}
	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": message,
		"data": map[string]interface{}{
			"rule":    rule,
			"outcome": outcome,
		},
	})
}

func (h *Handler) ApplyRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	outcome, err := h.service.ApplyRule(r.Context(), ruleID)
	if err != nil {
		h.handleServiceError(w, err, "Failed to apply matching rule")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Matching rule applied.",
		"data":    outcome,
	})
}

// ApplyAllRules answers 200 even when some rules failed; the outcomes say which.
func (h *Handler) ApplyAllRules(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ApplyAllRules(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to apply matching rules")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Matching rules applied.",
		"data":    result,
	})
}
