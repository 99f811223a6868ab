package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/verone/backoffice/internal/logger"
)

const refreshCookiePath = "/api/refresh/token"

type Handler struct {
	authService  Service
	secureCookie bool
	respondJSON  func(w http.ResponseWriter, status int, payload interface{})
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string)
}

func NewHandler(
	authService Service,
	secureCookie bool,
	respondJSON func(w http.ResponseWriter, status int, payload interface{}),
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string),
) *Handler {
	return &Handler{
		authService:  authService,
		secureCookie: secureCookie,
		respondJSON:  respondJSON,
		respondError: respondError,
	}
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, value string, maxAge int) {
	cookie := &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    value,
		Path:     refreshCookiePath,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	}
	if maxAge < 0 {
		cookie.Expires = time.Unix(0, 0)
	}
	http.SetCookie(w, cookie)
}

func (h *Handler) respondTokens(w http.ResponseWriter, result *LoginResult) {
	h.setRefreshCookie(w, result.RefreshToken, int(defaultJWTRefreshDuration.Seconds()))
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Login successful.",
		"data": map[string]interface{}{
			"access_token": result.AccessToken,
			"user":         result.User,
		},
	})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if result.TwoFactorRequired {
		h.respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "success",
			"message": "Two-factor authentication required",
			"data": map[string]string{
				"session_token": result.SessionToken,
			},
		})
		return
	}
	h.respondTokens(w, result)
}

func (h *Handler) HandleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionToken string `json:"session_token"`
		Code         string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionToken == "" || req.Code == "" {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.authService.VerifyTwoFactor(r.Context(), req.SessionToken, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSessionToken), errors.Is(err, ErrExpiredSessionToken),
			errors.Is(err, ErrInvalid2FACode), errors.Is(err, ErrUser2FANotEnabled):
			h.respondError(w, http.StatusUnauthorized, err.Error())
		default:
			h.respondError(w, http.StatusInternalServerError, "Could not verify two-factor authentication")
		}
		return
	}
	h.respondTokens(w, result)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.setRefreshCookie(w, "", -1)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Logout successful",
	})
}

func (h *Handler) HandleRegisterTwoFactor(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "User not authorized")
		return
	}

	otpURI, err := h.authService.RegisterTwoFactor(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUser2FAAlreadyEnabled) {
			h.respondError(w, http.StatusConflict, "Two-factor authentication is already enabled")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Could not register two-factor authentication")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Two-factor authentication initiated. Please verify to enable.",
		"data": map[string]string{
			"otp_uri": otpURI,
		},
	})
}

func (h *Handler) HandleConfirmTwoFactor(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "User not authorized")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.authService.ConfirmTwoFactor(r.Context(), userID, req.Code); err != nil {
		switch {
		case errors.Is(err, ErrInvalid2FACode):
			h.respondError(w, http.StatusUnauthorized, "Invalid 2fa code")
		case errors.Is(err, ErrUser2FAAlreadyEnabled):
			h.respondError(w, http.StatusConflict, "Two-factor authentication is already enabled")
		case errors.Is(err, ErrTwoFactorNotRegistered):
			h.respondError(w, http.StatusBadRequest, "Two-factor authentication has not been registered")
		default:
			h.respondError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Two-factor authentication enabled",
	})
}

func (h *Handler) HandleDisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "User not authorized")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.authService.DisableTwoFactor(r.Context(), userID, req.Code); err != nil {
		switch {
		case errors.Is(err, ErrInvalid2FACode):
			h.respondError(w, http.StatusUnauthorized, "Invalid 2FA code")
		case errors.Is(err, ErrUser2FANotEnabled):
			h.respondError(w, http.StatusBadRequest, "Two-factor authentication is not enabled")
		default:
			h.respondError(w, http.StatusInternalServerError, "Could not disable two-factor authentication")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Two-factor authentication disabled successfully",
	})
}

func (h *Handler) RefreshAccessToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, ErrUserNotFound.Error())
		return
	}

	accessToken, refreshToken, err := h.authService.RefreshAccessToken(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			h.respondError(w, http.StatusUnauthorized, ErrUserNotFound.Error())
			return
		}
		logger.L.Error("token refresh failed", "user_id", userID, "error", err)
		h.respondError(w, http.StatusInternalServerError, ErrInternalError.Error())
		return
	}

	h.setRefreshCookie(w, refreshToken, int(defaultJWTRefreshDuration.Seconds()))
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data": map[string]string{
			"access_token": accessToken,
		},
	})
}
