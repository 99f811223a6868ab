package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

var (
	ErrInvalidJWTToken        = errors.New("JWT token is invalid")
	ErrExpiredJWTToken        = errors.New("JWT token is expired")
	ErrInvalidJWTRefreshToken = errors.New("JWT Refresh token is invalid")
)

const defaultJWTRefreshDuration = 7 * 24 * time.Hour

type JWTManagerInterface interface {
	GenerateAccessJWT(userID string) (string, error)
	ValidateAccessToken(tokenString string) (string, error)
	GenerateRefreshJWT(userID, tokenHash string) (string, error)
	ValidateRefreshToken(tokenString, tokenHash string) (string, error)
	RefreshTokenSubject(tokenString string) (string, error)
}

type AccessTokenCustomClaims struct {
	UserID string `json:"user_id"`
	jwt.StandardClaims
}

// RefreshTokenCustomClaims binds the token to the user's hash token, so
// rotating that value revokes every refresh token issued before.
type RefreshTokenCustomClaims struct {
	UserID string `json:"user_id"`
	CusKey string `json:"cus_key"`
	jwt.StandardClaims
}

type JWTManager struct {
	secret         []byte
	accessDuration time.Duration
}

func NewJWTManager(secret string, accessDuration time.Duration) JWTManagerInterface {
	return &JWTManager{
		secret:         []byte(secret),
		accessDuration: accessDuration,
	}
}

func (j *JWTManager) customKey(userID, tokenHash string) string {
	h := hmac.New(sha256.New, []byte(tokenHash))
	h.Write([]byte(userID))
	return hex.EncodeToString(h.Sum(nil))
}

func standardClaims(userID string, duration time.Duration) jwt.StandardClaims {
	now := time.Now()
	return jwt.StandardClaims{
		Subject:   userID,
		Issuer:    "verone-backoffice",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(duration).Unix(),
	}
}

func (j *JWTManager) GenerateAccessJWT(userID string) (string, error) {
	claims := &AccessTokenCustomClaims{
		UserID:         userID,
		StandardClaims: standardClaims(userID, j.accessDuration),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

func (j *JWTManager) GenerateRefreshJWT(userID, tokenHash string) (string, error) {
	claims := &RefreshTokenCustomClaims{
		UserID:         userID,
		CusKey:         j.customKey(userID, tokenHash),
		StandardClaims: standardClaims(userID, defaultJWTRefreshDuration),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

func (j *JWTManager) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidJWTToken
		}
		return j.secret, nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return ErrExpiredJWTToken
		}
		return ErrInvalidJWTToken
	}
	if !token.Valid {
		return ErrInvalidJWTToken
	}
	return nil
}

func (j *JWTManager) ValidateAccessToken(tokenString string) (string, error) {
	claims := &AccessTokenCustomClaims{}
	if err := j.parse(tokenString, claims); err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", ErrInvalidJWTToken
	}
	return claims.UserID, nil
}

// ValidateRefreshToken checks the signature, expiry and the hash-token binding
// and returns the user id.
func (j *JWTManager) ValidateRefreshToken(tokenString, tokenHash string) (string, error) {
	claims := &RefreshTokenCustomClaims{}
	if err := j.parse(tokenString, claims); err != nil {
		return "", err
	}
	if claims.UserID == "" || !hmac.Equal([]byte(claims.CusKey), []byte(j.customKey(claims.UserID, tokenHash))) {
		return "", ErrInvalidJWTRefreshToken
	}
	return claims.UserID, nil
}

// RefreshTokenSubject reads the user id from a refresh token without checking
// the hash-token binding, which needs the user row first.
func (j *JWTManager) RefreshTokenSubject(tokenString string) (string, error) {
	claims := &RefreshTokenCustomClaims{}
	if err := j.parse(tokenString, claims); err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", ErrInvalidJWTToken
	}
	return claims.UserID, nil
}
