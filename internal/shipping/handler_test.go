package shipping

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verone/backoffice/internal/auth"
	"github.com/verone/backoffice/internal/middleware"
)

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, errors ...[]string) {
	body := map[string]interface{}{"status": "error", "message": message, "code": status}
	if len(errors) > 0 {
		body["errors"] = errors[0]
	}
	respondJSON(w, status, body)
}

func newTestMux(h *Handler) *http.ServeMux {
	withOrder := func(fn http.HandlerFunc) http.Handler {
		return middleware.ValidatePathUUIDs(respondError, "orderID")(fn)
	}
	mux := http.NewServeMux()
	mux.Handle("POST /sales-orders/{orderID}/shipments", withOrder(h.CreateShipment))
	mux.Handle("GET /sales-orders/{orderID}/shipments", withOrder(h.ListShipments))
	return mux
}

func postShipment(mux *http.ServeMux, orderID uuid.UUID, payload interface{}, userID uuid.UUID) (*httptest.ResponseRecorder, map[string]interface{}) {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/sales-orders/"+orderID.String()+"/shipments", bytes.NewReader(body))
	req = req.WithContext(auth.WithUserID(req.Context(), userID))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	var response map[string]interface{}
	json.NewDecoder(w.Body).Decode(&response)
	return w, response
}

func TestHandler_CreateShipment(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(NewHandler(NewShipmentService(f.repo, nil), respondJSON, respondError))
	userID := uuid.New()

	w, response := postShipment(mux, f.orderID, f.twoParcels(MethodManualTracking), userID)
	require.Equal(t, http.StatusCreated, w.Code)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "manual_tracking", data["method"])
	assert.Equal(t, userID.String(), data["created_by"])
	assert.Len(t, data["parcels"], 2)

	w, response = postShipment(mux, f.orderID, f.twoParcels(MethodManualTracking), userID)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation failed", response["message"])
	assert.NotEmpty(t, response["errors"])

	w, _ = postShipment(mux, uuid.New(), f.twoParcels(MethodManual), userID)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_CreateShipment_BadBody(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(NewHandler(NewShipmentService(f.repo, nil), respondJSON, respondError))

	req := httptest.NewRequest(http.MethodPost, "/sales-orders/"+f.orderID.String()+"/shipments", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CreateShipment_PacklinkErrors(t *testing.T) {
	f := newFixture(t)

	mux := newTestMux(NewHandler(NewShipmentService(f.repo, nil), respondJSON, respondError))
	w, _ := postShipment(mux, f.orderID, packlinkInput(f), uuid.New())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	carrier := &MockCarrier{Err: &PacklinkError{StatusCode: 400, Message: "service unavailable for route"}}
	mux = newTestMux(NewHandler(NewShipmentService(f.repo, carrier), respondJSON, respondError))
	w, response := postShipment(mux, f.orderID, packlinkInput(f), uuid.New())
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, response["message"], "service unavailable for route")
}

func TestHandler_ListShipments(t *testing.T) {
	f := newFixture(t)
	svc := NewShipmentService(f.repo, nil)
	mux := newTestMux(NewHandler(svc, respondJSON, respondError))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sales-orders/"+f.orderID.String()+"/shipments", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Empty(t, response["data"])

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sales-orders/nope/shipments", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
