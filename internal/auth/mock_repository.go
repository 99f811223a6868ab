package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/verone/backoffice/internal/user"
)

// MockUserRepository keeps the 2FA columns next to the users held by a
// user.MockUserRepository.
type MockUserRepository struct {
	users   *user.MockUserRepository
	secrets map[uuid.UUID]string
}

func NewMockUserRepository(users *user.MockUserRepository) *MockUserRepository {
	return &MockUserRepository{users: users, secrets: map[uuid.UUID]string{}}
}

func (m *MockUserRepository) SaveTwoFactorSecret(_ context.Context, userID uuid.UUID, secret string) error {
	u, ok := m.users.Users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if u.TwoFactorEnabled {
		return ErrUser2FAAlreadyEnabled
	}
	m.secrets[userID] = secret
	return nil
}

func (m *MockUserRepository) GetTwoFactorSecret(_ context.Context, userID uuid.UUID) (string, error) {
	if _, ok := m.users.Users[userID]; !ok {
		return "", ErrUserNotFound
	}
	secret, ok := m.secrets[userID]
	if !ok || secret == "" {
		return "", ErrTwoFactorNotRegistered
	}
	return secret, nil
}

func (m *MockUserRepository) EnableTwoFactor(_ context.Context, userID uuid.UUID) error {
	u, ok := m.users.Users[userID]
	if !ok || m.secrets[userID] == "" {
		return ErrTwoFactorNotRegistered
	}
	u.TwoFactorEnabled = true
	return nil
}

func (m *MockUserRepository) DisableTwoFactor(_ context.Context, userID uuid.UUID) error {
	if u, ok := m.users.Users[userID]; ok {
		u.TwoFactorEnabled = false
	}
	delete(m.secrets, userID)
	return nil
}

// MockAuthenticator accepts a single fixed code.
type MockAuthenticator struct {
	Secret    string
	ValidCode string
}

func (m *MockAuthenticator) GenerateSecret(accountName string) (string, string, error) {
	return "otpauth://totp/" + totpIssuer + ":" + accountName + "?secret=" + m.Secret, m.Secret, nil
}

func (m *MockAuthenticator) VerifyCode(secret, code string) bool {
	return secret == m.Secret && code == m.ValidCode
}
