package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verone/backoffice/internal/middleware"
)

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, errors ...[]string) {
	payload := map[string]interface{}{
		"status":  "error",
		"message": message,
		"code":    status,
	}
	if len(errors) > 0 && len(errors[0]) > 0 {
		payload["errors"] = errors[0]
	}
	respondJSON(w, status, payload)
}

func newTestMux(h *Handler) *http.ServeMux {
	withRule := func(fn http.HandlerFunc) http.Handler {
		return middleware.ValidatePathUUIDs(respondError, "ruleID")(fn)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /matching-rules", h.ListRules)
	mux.HandleFunc("POST /matching-rules", h.CreateRule)
	mux.HandleFunc("POST /matching-rules/apply", h.ApplyAllRules)
	mux.Handle("GET /matching-rules/{ruleID}", withRule(h.GetRule))
	mux.Handle("PUT /matching-rules/{ruleID}", withRule(h.UpdateRule))
	mux.Handle("DELETE /matching-rules/{ruleID}", withRule(h.DeleteRule))
	mux.Handle("PATCH /matching-rules/{ruleID}/enabled", withRule(h.SetRuleEnabled))
	mux.Handle("POST /matching-rules/{ruleID}/apply", withRule(h.ApplyRule))
	mux.HandleFunc("GET /labels/unclassified", h.ListUnclassifiedLabels)
	mux.HandleFunc("POST /labels/link", h.LinkLabel)
	return mux
}

func doRequest(mux *http.ServeMux, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, path, &buf))
	var response map[string]interface{}
	json.NewDecoder(w.Body).Decode(&response)
	return w, response
}

func TestHandler_CreateRule(t *testing.T) {
	_, svc, orgID := newTestService()
	mux := newTestMux(NewHandler(svc, respondJSON, respondError))

	w, response := doRequest(mux, http.MethodPost, "/matching-rules", map[string]interface{}{
		"match_value":      "PRLV EDF",
		"organisation_id":  orgID,
		"default_category": "606",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "success", response["status"])

	w, response = doRequest(mux, http.MethodPost, "/matching-rules", map[string]interface{}{
		"match_value":      "prlv edf",
		"organisation_id":  orgID,
		"default_category": "606",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "A matching rule already exists for this label", response["message"])
}

func TestHandler_CreateRule_Validation(t *testing.T) {
	_, svc, _ := newTestService()
	mux := newTestMux(NewHandler(svc, respondJSON, respondError))

	w, response := doRequest(mux, http.MethodPost, "/matching-rules", map[string]interface{}{"match_type": "regex"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation failed", response["message"])
	assert.Len(t, response["errors"], 4)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/matching-rules", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_GetRule_NotFound(t *testing.T) {
	_, svc, _ := newTestService()
	mux := newTestMux(NewHandler(svc, respondJSON, respondError))

	w, response := doRequest(mux, http.MethodGet, "/matching-rules/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Matching rule not found", response["message"])

	w, _ = doRequest(mux, http.MethodGet, "/matching-rules/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_SetRuleEnabled(t *testing.T) {
	repo, svc, orgID := newTestService()
	mux := newTestMux(NewHandler(svc, respondJSON, respondError))

	rule, err := svc.CreateRule(context.Background(), RuleInput{MatchValue: "EDF", OrganisationID: orgID, DefaultCategory: "606"})
	require.NoError(t, err)

	w, _ := doRequest(mux, http.MethodPatch, "/matching-rules/"+rule.ID.String()+"/enabled", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, response := doRequest(mux, http.MethodPatch, "/matching-rules/"+rule.ID.String()+"/enabled", map[string]interface{}{"enabled": false})
	assert.Equal(t, http.StatusOK, w.Code)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, false, data["enabled"])
	assert.False(t, repo.Rules[rule.ID].Enabled)

	w, response = doRequest(mux, http.MethodPost, "/matching-rules/"+rule.ID.String()+"/apply", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Matching rule is disabled", response["message"])
}

func TestHandler_ApplyAllRules_PartialFailureIsOK(t *testing.T) {
	repo, svc, orgID := newTestService()
	mux := newTestMux(NewHandler(svc, respondJSON, respondError))

	addExpenses(repo, "EDF", -100)
	rule, err := svc.CreateRule(context.Background(), RuleInput{MatchValue: "EDF", OrganisationID: orgID, DefaultCategory: "606"})
	require.NoError(t, err)
	repo.ApplyFailures[rule.ID] = assert.AnError

	w, response := doRequest(mux, http.MethodPost, "/matching-rules/apply", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["rules_applied"])
	assert.Equal(t, float64(1), data["failed_rules"])

	repo.shouldFail = true
	w, _ = doRequest(mux, http.MethodPost, "/matching-rules/apply", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandler_ListUnclassifiedLabels(t *testing.T) {
	repo, svc, _ := newTestService()
	mux := newTestMux(NewHandler(svc, respondJSON, respondError))
	addExpenses(repo, "ORANGE SA", -3000)

	w, response := doRequest(mux, http.MethodGet, "/labels/unclassified?limit=10", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, response["data"], 1)

	w, _ = doRequest(mux, http.MethodGet, "/labels/unclassified?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_LinkLabel(t *testing.T) {
	repo, svc, orgID := newTestService()
	mux := newTestMux(NewHandler(svc, respondJSON, respondError))
	addExpenses(repo, "ORANGE SA", -3000)

	w, response := doRequest(mux, http.MethodPost, "/labels/link", map[string]interface{}{
		"label":            "ORANGE SA",
		"organisation_id":  orgID,
		"default_category": "626",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	data := response["data"].(map[string]interface{})
	outcome := data["outcome"].(map[string]interface{})
	assert.Equal(t, float64(1), outcome["classified"])
}
