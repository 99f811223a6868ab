package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/verone/backoffice/internal/logger"
	"github.com/verone/backoffice/internal/user"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInternalError          = errors.New("internal Server Error")
	ErrUser2FANotEnabled      = errors.New("two factor auth is not enabled")
	ErrUser2FAAlreadyEnabled  = errors.New("2fa auth already enabled")
	ErrTwoFactorNotRegistered = errors.New("two factor auth has not been registered")
	ErrInvalid2FACode         = errors.New("2fa code is invalid")
)

// LoginResult carries either a pending 2FA session token or a token pair.
type LoginResult struct {
	User              *user.User
	TwoFactorRequired bool
	SessionToken      string
	AccessToken       string
	RefreshToken      string
}

type Service interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	VerifyTwoFactor(ctx context.Context, sessionToken, code string) (*LoginResult, error)
	RegisterTwoFactor(ctx context.Context, userID uuid.UUID) (string, error)
	ConfirmTwoFactor(ctx context.Context, userID uuid.UUID, code string) error
	DisableTwoFactor(ctx context.Context, userID uuid.UUID, code string) error
	RefreshAccessToken(ctx context.Context, userID uuid.UUID) (string, string, error)
	JWTAccessTokenMiddleware() func(http.Handler) http.Handler
	JWTRefreshTokenMiddleware() func(http.Handler) http.Handler
}

type service struct {
	repo           UserRepository
	userService    user.Service
	sessionManager SessionManagerInterface
	jwtManager     JWTManagerInterface
	authenticator  TwoFactorAuthenticator
}

func NewAuthService(repo UserRepository, userService user.Service, sessionManager SessionManagerInterface, jwtManager JWTManagerInterface, authenticator TwoFactorAuthenticator) Service {
	return &service{
		repo:           repo,
		userService:    userService,
		sessionManager: sessionManager,
		jwtManager:     jwtManager,
		authenticator:  authenticator,
	}
}

func (s *service) loadUser(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := s.userService.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, ErrInternalError
	}
	return u, nil
}

func (s *service) issueTokens(u *user.User) (*LoginResult, error) {
	accessToken, err := s.jwtManager.GenerateAccessJWT(u.ID.String())
	if err != nil {
		logger.L.Error("access token generation failed", "user_id", u.ID, "error", err)
		return nil, ErrInternalError
	}
	refreshToken, err := s.jwtManager.GenerateRefreshJWT(u.ID.String(), u.HashToken)
	if err != nil {
		logger.L.Error("refresh token generation failed", "user_id", u.ID, "error", err)
		return nil, ErrInternalError
	}
	return &LoginResult{User: u, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.userService.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, ErrInternalError
	}

	if !user.DoPasswordsMatch(u.PasswordHash, password) {
		logger.L.Warn("failed login attempt", "user_id", u.ID)
		return nil, ErrInvalidCredentials
	}

	if u.TwoFactorEnabled {
		sessionToken, err := s.sessionManager.GenerateSessionToken(u.ID.String())
		if err != nil {
			return nil, ErrInternalError
		}
		return &LoginResult{User: u, TwoFactorRequired: true, SessionToken: sessionToken}, nil
	}

	return s.issueTokens(u)
}

func (s *service) VerifyTwoFactor(ctx context.Context, sessionToken, code string) (*LoginResult, error) {
	rawID, err := s.sessionManager.VerifySessionToken(sessionToken)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrInvalidSessionToken
	}

	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.TwoFactorEnabled {
		return nil, ErrUser2FANotEnabled
	}

	secret, err := s.repo.GetTwoFactorSecret(ctx, userID)
	if err != nil {
		return nil, ErrInternalError
	}
	if !s.authenticator.VerifyCode(secret, code) {
		return nil, ErrInvalid2FACode
	}

	s.sessionManager.DeleteSessionToken(sessionToken)
	return s.issueTokens(u)
}

// RegisterTwoFactor stores a fresh TOTP secret and returns its otpauth:// URI.
func (s *service) RegisterTwoFactor(ctx context.Context, userID uuid.UUID) (string, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.TwoFactorEnabled {
		return "", ErrUser2FAAlreadyEnabled
	}

	otpURI, secret, err := s.authenticator.GenerateSecret(u.Email)
	if err != nil {
		return "", ErrInternalError
	}
	if err := s.repo.SaveTwoFactorSecret(ctx, userID, secret); err != nil {
		if errors.Is(err, ErrUser2FAAlreadyEnabled) {
			return "", err
		}
		logger.L.Error("saving two-factor secret failed", "user_id", userID, "error", err)
		return "", ErrInternalError
	}
	return otpURI, nil
}

func (s *service) ConfirmTwoFactor(ctx context.Context, userID uuid.UUID, code string) error {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if u.TwoFactorEnabled {
		return ErrUser2FAAlreadyEnabled
	}

	secret, err := s.repo.GetTwoFactorSecret(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrTwoFactorNotRegistered) {
			return err
		}
		return ErrInternalError
	}
	if !s.authenticator.VerifyCode(secret, code) {
		return ErrInvalid2FACode
	}

	if err := s.repo.EnableTwoFactor(ctx, userID); err != nil {
		logger.L.Error("enabling two-factor failed", "user_id", userID, "error", err)
		return ErrInternalError
	}
	logger.L.Info("two-factor authentication enabled", "user_id", userID)
	return nil
}

func (s *service) DisableTwoFactor(ctx context.Context, userID uuid.UUID, code string) error {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TwoFactorEnabled {
		return ErrUser2FANotEnabled
	}

	secret, err := s.repo.GetTwoFactorSecret(ctx, userID)
	if err != nil {
		return ErrInternalError
	}
	if !s.authenticator.VerifyCode(secret, code) {
		return ErrInvalid2FACode
	}

	if err := s.repo.DisableTwoFactor(ctx, userID); err != nil {
		logger.L.Error("disabling two-factor failed", "user_id", userID, "error", err)
		return ErrInternalError
	}
	logger.L.Info("two-factor authentication disabled", "user_id", userID)
	return nil
}

// RefreshAccessToken is reached only through JWTRefreshTokenMiddleware, which
// has already checked the refresh token against the user's hash token.
func (s *service) RefreshAccessToken(ctx context.Context, userID uuid.UUID) (string, string, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return "", "", err
	}
	result, err := s.issueTokens(u)
	if err != nil {
		return "", "", err
	}
	return result.AccessToken, result.RefreshToken, nil
}
