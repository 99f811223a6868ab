package qonto

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verone/backoffice/internal/config"
)

func apiKeyConfig(baseURL string) *config.AppConfig {
	return &config.AppConfig{
		QontoAuthMode:         config.QontoAuthAPIKey,
		QontoBaseURL:          baseURL,
		QontoOrganizationSlug: "verone-1234",
		QontoSecretKey:        "s3cr3t",
		QontoBankAccountID:    "acc-1",
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), &config.AppConfig{QontoAuthMode: config.QontoAuthAPIKey})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(context.Background(), &config.AppConfig{QontoAuthMode: config.QontoAuthOAuth})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCreateQuote_APIKeyAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/quotes", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "verone-1234:s3cr3t", r.Header.Get("Authorization"))

		var req QuoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "client-42", req.ClientID)
		assert.Len(t, req.Items, 2)
		assert.Equal(t, "0.2", req.Items[0].VATRate)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"quote": map[string]interface{}{"id": "q-1", "number": "D-2024-001", "status": "pending_approval"},
		})
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), apiKeyConfig(server.URL))
	require.NoError(t, err)

	quote, err := client.CreateQuote(context.Background(), QuoteRequest{
		ClientID: "client-42",
		Currency: "EUR",
		Items: []Item{
			{Title: "Chair", Quantity: "2", UnitPrice: Amount{Value: "120.00", Currency: "EUR"}, VATRate: "0.2"},
			{Title: "Table", Quantity: "1", UnitPrice: Amount{Value: "899.00", Currency: "EUR"}, VATRate: "0.2"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "q-1", quote.ID)
	assert.Equal(t, "D-2024-001", quote.Number)
}

func TestCreateClientInvoice_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"code":"invalid","detail":"client_id is invalid"}]}`))
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), apiKeyConfig(server.URL))
	require.NoError(t, err)

	_, err = client.CreateClientInvoice(context.Background(), InvoiceRequest{ClientID: "nope"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "client_id is invalid", apiErr.Message)
}

func TestUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), apiKeyConfig(server.URL))
	require.NoError(t, err)

	_, err = client.CreateQuote(context.Background(), QuoteRequest{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestListTransactions_Paginates(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "acc-1", r.URL.Query().Get("bank_account_id"))
		assert.Equal(t, "2024-03-01T00:00:00Z", r.URL.Query().Get("updated_at_from"))

		page := r.URL.Query().Get("current_page")
		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "1":
			w.Write([]byte(`{"transactions":[{"transaction_id":"t1","amount_cents":1200,"side":"debit","label":"EDF","emitted_at":"2024-03-02T10:00:00Z","status":"completed"}],"meta":{"current_page":1,"next_page":2,"total_pages":2}}`))
		default:
			w.Write([]byte(`{"transactions":[{"transaction_id":"t2","amount_cents":50000,"side":"credit","label":"VIR CLIENT","emitted_at":"2024-03-03T10:00:00Z","settled_at":"2024-03-03T11:00:00Z","status":"completed"}],"meta":{"current_page":2,"next_page":null,"total_pages":2}}`))
		}
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), apiKeyConfig(server.URL))
	require.NoError(t, err)

	txs, err := client.ListTransactions(context.Background(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, txs, 2)
	assert.Equal(t, "t1", txs[0].TransactionID)
	assert.Nil(t, txs[0].SettledAt)
	assert.Equal(t, "credit", txs[1].Side)
	assert.NotNil(t, txs[1].SettledAt)
}

func TestListTransactions_RequiresBankAccount(t *testing.T) {
	cfg := apiKeyConfig("http://unused")
	cfg.QontoBankAccountID = ""
	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)

	_, err = client.ListTransactions(context.Background(), time.Time{})
	assert.ErrorIs(t, err, ErrMissingBankAccount)
}

func TestOAuthMode_UsesBearerToken(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-abc", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-xyz","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-xyz", r.Header.Get("Authorization"))
		w.Write([]byte(`{"quote":{"id":"q-2"}}`))
	}))
	defer apiServer.Close()

	client, err := NewClient(context.Background(), &config.AppConfig{
		QontoAuthMode:          config.QontoAuthOAuth,
		QontoBaseURL:           apiServer.URL,
		QontoOAuthClientID:     "client",
		QontoOAuthClientSecret: "secret",
		QontoOAuthRefreshToken: "refresh-abc",
		QontoOAuthTokenURL:     tokenServer.URL,
	})
	require.NoError(t, err)

	quote, err := client.CreateQuote(context.Background(), QuoteRequest{})
	require.NoError(t, err)
	assert.Equal(t, "q-2", quote.ID)
}
