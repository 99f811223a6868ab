package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, _ ...[]string) {
	respondJSON(w, status, map[string]interface{}{
		"status":  "error",
		"message": message,
		"code":    status,
	})
}

func (e *testEnv) mux() *http.ServeMux {
	h := NewHandler(e.service, false, respondJSON, respondError)
	protected := e.service.JWTAccessTokenMiddleware()
	refresh := e.service.JWTRefreshTokenMiddleware()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", h.HandleLogin)
	mux.HandleFunc("POST /api/auth/2fa/verify", h.HandleVerifyTwoFactor)
	mux.HandleFunc("POST /api/auth/logout", h.HandleLogout)
	mux.Handle("POST /api/refresh/token", refresh(http.HandlerFunc(h.RefreshAccessToken)))
	mux.Handle("POST /api/protected/2fa/register", protected(http.HandlerFunc(h.HandleRegisterTwoFactor)))
	mux.Handle("POST /api/protected/2fa/confirm", protected(http.HandlerFunc(h.HandleConfirmTwoFactor)))
	mux.Handle("DELETE /api/protected/2fa", protected(http.HandlerFunc(h.HandleDisableTwoFactor)))
	mux.Handle("GET /api/protected/ping", protected(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		respondJSON(w, http.StatusOK, map[string]string{"user_id": userID.String()})
	})))
	return mux
}

func serve(mux http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	var body map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func jsonRequest(method, path string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	return httptest.NewRequest(method, path, &buf)
}

func TestHandleLogin(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "claire@verone.fr")
	mux := env.mux()

	t.Run("sets refresh cookie and returns access token", func(t *testing.T) {
		w, body := serve(mux, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
			"email": "claire@verone.fr", "password": testPassword,
		}))
		require.Equal(t, http.StatusOK, w.Code)
		data := body["data"].(map[string]interface{})
		assert.NotEmpty(t, data["access_token"])

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, RefreshTokenCookie, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, refreshCookiePath, cookies[0].Path)
	})

	t.Run("bad credentials", func(t *testing.T) {
		w, _ := serve(mux, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
			"email": "claire@verone.fr", "password": "nope",
		}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		w, _ := serve(mux, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{"email": "claire@verone.fr"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTwoFactorLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, "claire@verone.fr")
	env.enableTwoFactor(t, u.ID)
	mux := env.mux()

	w, body := serve(mux, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "claire@verone.fr", "password": testPassword,
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies())
	sessionToken := body["data"].(map[string]interface{})["session_token"].(string)

	w, _ = serve(mux, jsonRequest(http.MethodPost, "/api/auth/2fa/verify", map[string]string{
		"session_token": sessionToken, "code": "000000",
	}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = serve(mux, jsonRequest(http.MethodPost, "/api/auth/2fa/verify", map[string]string{
		"session_token": sessionToken, "code": "123456",
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["data"].(map[string]interface{})["access_token"])
}

func TestJWTAccessTokenMiddleware(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, "claire@verone.fr")
	mux := env.mux()

	token, err := env.jwt.GenerateAccessJWT(u.ID.String())
	require.NoError(t, err)

	t.Run("valid bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/protected/ping", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w, body := serve(mux, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, u.ID.String(), body["user_id"])
	})

	cases := map[string]string{
		"missing header": "",
		"not bearer":     token,
		"garbage token":  "Bearer abc.def.ghi",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/protected/ping", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w, body := serve(mux, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "error", body["status"])
		})
	}

	t.Run("expired token", func(t *testing.T) {
		expired, err := NewJWTManager("test-secret", -time.Minute).GenerateAccessJWT(u.ID.String())
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/protected/ping", nil)
		req.Header.Set("Authorization", "Bearer "+expired)
		w, _ := serve(mux, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("deleted user", func(t *testing.T) {
		ghost, err := env.jwt.GenerateAccessJWT(uuid.NewString())
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/protected/ping", nil)
		req.Header.Set("Authorization", "Bearer "+ghost)
		w, _ := serve(mux, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, "claire@verone.fr")
	mux := env.mux()

	refresh, err := env.jwt.GenerateRefreshJWT(u.ID.String(), u.HashToken)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/refresh/token", nil)
	req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: refresh})
	w, body := serve(mux, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["data"].(map[string]interface{})["access_token"])

	w, _ = serve(mux, httptest.NewRequest(http.MethodPost, "/api/refresh/token", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	env.users.Users[u.ID].HashToken = "rotated"
	req = httptest.NewRequest(http.MethodPost, "/api/refresh/token", nil)
	req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: refresh})
	w, _ = serve(mux, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "rotating the hash token revokes refresh tokens")
}

func TestTwoFactorEndpoints(t *testing.T) {
	env := newTestEnv(t)
	u := env.addUser(t, "claire@verone.fr")
	mux := env.mux()
	token, err := env.jwt.GenerateAccessJWT(u.ID.String())
	require.NoError(t, err)

	authed := func(method, path string, body interface{}) *http.Request {
		req := jsonRequest(method, path, body)
		req.Header.Set("Authorization", "Bearer "+token)
		return req
	}

	w, body := serve(mux, authed(http.MethodPost, "/api/protected/2fa/register", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body["data"].(map[string]interface{})["otp_uri"], "otpauth://")

	w, _ = serve(mux, authed(http.MethodPost, "/api/protected/2fa/confirm", map[string]string{"code": "123456"}))
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = serve(mux, authed(http.MethodPost, "/api/protected/2fa/register", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = serve(mux, authed(http.MethodDelete, "/api/protected/2fa", map[string]string{"code": "111111"}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = serve(mux, authed(http.MethodDelete, "/api/protected/2fa", map[string]string{"code": "123456"}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.users.Users[u.ID].TwoFactorEnabled)
}

func TestHandleLogout(t *testing.T) {
	env := newTestEnv(t)
	w, _ := serve(env.mux(), httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.True(t, cookies[0].MaxAge < 0)
}

func TestOptionalUserID(t *testing.T) {
	assert.Nil(t, OptionalUserID(context.Background()))
	id := uuid.New()
	got := OptionalUserID(WithUserID(context.Background(), id))
	require.NotNil(t, got)
	assert.Equal(t, id, *got)
}
