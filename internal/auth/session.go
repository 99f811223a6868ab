package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

var (
	ErrInvalidSessionToken = errors.New("session token is invalid")
	ErrExpiredSessionToken = errors.New("session token is expired")
)

// defaultSessionTokenDuration bounds the time between password check and TOTP.
const defaultSessionTokenDuration = 5 * time.Minute

type SessionManagerInterface interface {
	GenerateSessionToken(userID string) (string, error)
	VerifySessionToken(sessionToken string) (string, error)
	DeleteSessionToken(sessionToken string)
	StartCleanup(ctx context.Context, interval time.Duration)
}

type pendingSession struct {
	UserID    string
	ExpiresAt time.Time
}

// SessionManager keeps the short-lived tokens of logins waiting for a TOTP code.
type SessionManager struct {
	mu     sync.RWMutex
	tokens map[string]pendingSession
	ttl    time.Duration
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		tokens: make(map[string]pendingSession),
		ttl:    defaultSessionTokenDuration,
	}
}

func (sm *SessionManager) GenerateSessionToken(userID string) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", ErrInternalError
	}
	token := hex.EncodeToString(tokenBytes)

	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.tokens[token] = pendingSession{
		UserID:    userID,
		ExpiresAt: time.Now().Add(sm.ttl),
	}
	return token, nil
}

func (sm *SessionManager) VerifySessionToken(sessionToken string) (string, error) {
	sm.mu.RLock()
	session, exists := sm.tokens[sessionToken]
	sm.mu.RUnlock()

	if !exists {
		return "", ErrInvalidSessionToken
	}
	if time.Now().After(session.ExpiresAt) {
		sm.DeleteSessionToken(sessionToken)
		return "", ErrExpiredSessionToken
	}
	return session.UserID, nil
}

func (sm *SessionManager) DeleteSessionToken(sessionToken string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.tokens, sessionToken)
}

func (sm *SessionManager) removeExpired(now time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for token, session := range sm.tokens {
		if now.After(session.ExpiresAt) {
			delete(sm.tokens, token)
		}
	}
}

// StartCleanup drops expired tokens every interval until ctx is done.
func (sm *SessionManager) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				sm.removeExpired(now)
			}
		}
	}()
}
