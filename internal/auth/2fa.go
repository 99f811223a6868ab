package auth

import (
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/verone/backoffice/internal/logger"
)

const totpIssuer = "Verone Back-office"

type TwoFactorAuthenticator interface {
	GenerateSecret(accountName string) (otpURI string, secret string, err error)
	VerifyCode(secret, code string) bool
}

type Authenticator struct{}

// GenerateSecret uses SHA1 for authenticator app compatibility.
func (Authenticator) GenerateSecret(accountName string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: accountName,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		logger.L.Error("totp secret generation failed", "error", err)
		return "", "", ErrInternalError
	}
	return key.URL(), key.Secret(), nil
}

func (Authenticator) VerifyCode(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	return totp.Validate(code, secret)
}
