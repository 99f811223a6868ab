package invoicing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/verone/backoffice/internal/middleware"
	"github.com/verone/backoffice/internal/qonto"
)

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, _ ...[]string) {
	respondJSON(w, status, map[string]interface{}{"status": "error", "message": message, "code": status})
}

func newTestMux(h *Handler) *http.ServeMux {
	withOrder := func(fn http.HandlerFunc) http.Handler {
		return middleware.ValidatePathUUIDs(respondError, "orderID")(fn)
	}
	mux := http.NewServeMux()
	mux.Handle("GET /sales-orders/{orderID}/quote/preview", withOrder(h.PreviewQuote))
	mux.Handle("POST /sales-orders/{orderID}/quote", withOrder(h.CreateQuote))
	mux.Handle("POST /sales-orders/{orderID}/invoice", withOrder(h.CreateInvoice))
	return mux
}

func TestHandler_CreateQuote(t *testing.T) {
	order := sampleOrder()
	_, _, svc := newTestService(order)
	mux := newTestMux(NewHandler(svc, respondJSON, respondError))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sales-orders/"+order.ID.String()+"/quote", nil))
	assert.Equal(t, http.StatusCreated, w.Code)

	var response map[string]interface{}
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	data := response["data"].(map[string]interface{})
	assert.Len(t, data["lines"], 4)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sales-orders/"+order.ID.String()+"/quote", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandler_NotFoundAndUpstreamErrors(t *testing.T) {
	order := sampleOrder()
	repo, client, svc := newTestService(order)
	mux := newTestMux(NewHandler(svc, respondJSON, respondError))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sales-orders/"+uuid.NewString()+"/quote/preview", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	repo.ClaimDocument(context.Background(), order.ID, DocumentQuote)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sales-orders/"+order.ID.String()+"/quote", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	client.Err = qonto.ErrUnauthorized
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sales-orders/"+order.ID.String()+"/invoice", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
