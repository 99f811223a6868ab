package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const userIDKey contextKey = "userID"

func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}

// OptionalUserID returns nil for requests without an authenticated user.
func OptionalUserID(ctx context.Context) *uuid.UUID {
	userID, ok := UserIDFromContext(ctx)
	if !ok {
		return nil
	}
	return &userID
}
