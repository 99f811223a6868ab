package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// UserIDFunc extracts the authenticated user id from the request context.
type UserIDFunc func(r *http.Request) (uuid.UUID, bool)

type Handler struct {
	userService  Service
	currentUser  UserIDFunc
	respondJSON  func(w http.ResponseWriter, status int, payload interface{})
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string)
}

func NewHandler(
	userService Service,
	currentUser UserIDFunc,
	respondJSON func(w http.ResponseWriter, status int, payload interface{}),
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string),
) *Handler {
	return &Handler{
		userService:  userService,
		currentUser:  currentUser,
		respondJSON:  respondJSON,
		respondError: respondError,
	}
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		h.respondError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrEmailAlreadyExists):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrFullNameRequired),
		errors.Is(err, ErrFullNameLength), errors.Is(err, ErrPasswordTooShort):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidOldPassword):
		h.respondError(w, http.StatusUnauthorized, err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "User not authorized")
		return
	}
	u, err := h.userService.GetUserByID(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err, "Could not retrieve user")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "User retrieved successfully.",
		"data":    u,
	})
}

func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.ListUsers(r.Context())
	if err != nil {
		h.handleServiceError(w, err, "Could not retrieve users")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Users retrieved successfully.",
		"data":    users,
	})
}

func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		FullName string `json:"full_name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := h.userService.CreateUser(r.Context(), req.Email, req.FullName, req.Password)
	if err != nil {
		h.handleServiceError(w, err, "Could not create user")
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "User created successfully.",
		"data":    u,
	})
}

func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "User not authorized")
		return
	}

	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OldPassword == "" || req.NewPassword == "" {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.userService.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		h.handleServiceError(w, err, "Could not change password")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Password changed successfully. Please log in again.",
	})
}
