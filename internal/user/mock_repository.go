package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MockUserRepository struct {
	Users      map[uuid.UUID]*User
	shouldFail bool
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{Users: map[uuid.UUID]*User{}}
}

var errMockRepository = errors.New("repository error")

func (m *MockUserRepository) Create(_ context.Context, u *User) error {
	if m.shouldFail {
		return errMockRepository
	}
	for _, existing := range m.Users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrEmailAlreadyExists
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	m.Users[u.ID] = &copied
	return nil
}

func (m *MockUserRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	if m.shouldFail {
		return nil, errMockRepository
	}
	for _, u := range m.Users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockUserRepository) FindByID(_ context.Context, id uuid.UUID) (*User, error) {
	if m.shouldFail {
		return nil, errMockRepository
	}
	u, ok := m.Users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *MockUserRepository) List(_ context.Context) ([]User, error) {
	if m.shouldFail {
		return nil, errMockRepository
	}
	users := []User{}
	for _, u := range m.Users {
		users = append(users, *u)
	}
	return users, nil
}

func (m *MockUserRepository) UpdatePasswordAndHashToken(_ context.Context, id uuid.UUID, passwordHash, hashToken string) error {
	if m.shouldFail {
		return errMockRepository
	}
	u, ok := m.Users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.HashToken = hashToken
	return nil
}
