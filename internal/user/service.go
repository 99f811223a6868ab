package user

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"github.com/verone/backoffice/internal/logger"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxEmailLength    = 254
	maxFullNameLength = 120
	minPasswordLength = 10
)

var bcryptCost = 12

var (
	ErrInvalidEmail       = errors.New("email address is not valid")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrFullNameRequired   = errors.New("full name is required")
	ErrFullNameLength     = fmt.Errorf("full name is too long, max length: %d", maxFullNameLength)
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrInvalidOldPassword = errors.New("invalid old password")
	ErrInternalError      = errors.New("internal Server Error")
)

type User struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	FullName         string    `json:"full_name"`
	PasswordHash     string    `json:"-"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	HashToken        string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Service interface {
	CreateUser(ctx context.Context, email, fullName, password string) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	ChangePassword(ctx context.Context, id uuid.UUID, oldPassword, newPassword string) error
}

type service struct {
	repo Repository
}

func NewUserService(repo Repository) Service {
	return &service{repo: repo}
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(hashed), err
}

// DoPasswordsMatch compares a bcrypt hash with a clear-text password.
func DoPasswordsMatch(hashedPassword, currPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(currPassword)) == nil
}

func GenerateHashToken() (string, error) {
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		return "", fmt.Errorf("could not generate hash token: %w", err)
	}
	return hex.EncodeToString(token), nil
}

// validateEmailAddress only checks the format; staff accounts are created
// offline by the CLI where MX lookups are not available.
func validateEmailAddress(email string) error {
	if len(email) > maxEmailLength {
		return ErrInvalidEmail
	}
	if err := checkmail.ValidateFormat(email); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

func (s *service) CreateUser(ctx context.Context, email, fullName, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	fullName = strings.TrimSpace(fullName)

	if err := validateEmailAddress(email); err != nil {
		return nil, err
	}
	if fullName == "" {
		return nil, ErrFullNameRequired
	}
	if len(fullName) > maxFullNameLength {
		return nil, ErrFullNameLength
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		return nil, ErrEmailAlreadyExists
	}
	if !errors.Is(err, ErrUserNotFound) {
		logger.L.Error("user lookup failed", "error", err)
		return nil, ErrInternalError
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, ErrInternalError
	}
	hashToken, err := GenerateHashToken()
	if err != nil {
		return nil, ErrInternalError
	}

	u := &User{
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		HashToken:    hashToken,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailAlreadyExists) {
			return nil, err
		}
		logger.L.Error("user creation failed", "error", err)
		return nil, ErrInternalError
	}
	logger.L.Info("staff user created", "user_id", u.ID)
	return u, nil
}

func (s *service) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		logger.L.Error("user lookup failed", "user_id", id, "error", err)
		return nil, ErrInternalError
	}
	return u, nil
}

func (s *service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		logger.L.Error("user lookup failed", "error", err)
		return nil, ErrInternalError
	}
	return u, nil
}

func (s *service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		logger.L.Error("user listing failed", "error", err)
		return nil, ErrInternalError
	}
	return users, nil
}

func (s *service) ChangePassword(ctx context.Context, id uuid.UUID, oldPassword, newPassword string) error {
	u, err := s.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if !DoPasswordsMatch(u.PasswordHash, oldPassword) {
		return ErrInvalidOldPassword
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	passwordHash, err := hashPassword(newPassword)
	if err != nil {
		return ErrInternalError
	}
	hashToken, err := GenerateHashToken()
	if err != nil {
		return ErrInternalError
	}
	if err := s.repo.UpdatePasswordAndHashToken(ctx, id, passwordHash, hashToken); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		logger.L.Error("password update failed", "user_id", id, "error", err)
		return ErrInternalError
	}
	return nil
}
