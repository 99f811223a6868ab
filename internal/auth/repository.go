package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type UserRepository interface {
	SaveTwoFactorSecret(ctx context.Context, userID uuid.UUID, secret string) error
	GetTwoFactorSecret(ctx context.Context, userID uuid.UUID) (string, error)
	EnableTwoFactor(ctx context.Context, userID uuid.UUID) error
	DisableTwoFactor(ctx context.Context, userID uuid.UUID) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// SaveTwoFactorSecret stores a pending secret; it only takes effect once
// EnableTwoFactor is called after a valid code.
func (r *userRepository) SaveTwoFactorSecret(ctx context.Context, userID uuid.UUID, secret string) error {
	query := `
		UPDATE users
		SET two_factor_secret = $1, updated_at = NOW()
		WHERE id = $2 AND two_factor_enabled = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, secret, userID)
	if err != nil {
		return fmt.Errorf("could not save two-factor secret: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUser2FAAlreadyEnabled
	}
	return nil
}

func (r *userRepository) GetTwoFactorSecret(ctx context.Context, userID uuid.UUID) (string, error) {
	var secret string
	err := r.db.QueryRowContext(ctx, `SELECT two_factor_secret FROM users WHERE id = $1`, userID).Scan(&secret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("could not read two-factor secret: %w", err)
	}
	if secret == "" {
		return "", ErrTwoFactorNotRegistered
	}
	return secret, nil
}

func (r *userRepository) EnableTwoFactor(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE users
		SET two_factor_enabled = TRUE, updated_at = NOW()
		WHERE id = $1 AND two_factor_secret <> ''
	`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("could not enable two-factor authentication: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTwoFactorNotRegistered
	}
	return nil
}

func (r *userRepository) DisableTwoFactor(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE users
		SET two_factor_enabled = FALSE, two_factor_secret = '', updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("could not disable two-factor authentication: %w", err)
	}
	return nil
}
