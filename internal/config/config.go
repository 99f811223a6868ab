package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	QontoAuthAPIKey = "api_key"
	QontoAuthOAuth  = "oauth"
)

type AppConfig struct {
	Port               string
	DBConnectionString string
	JWTSecret          string
	LogLevel           string
	AllowedOrigin      string
	AccessTokenExpiry  time.Duration
	MigrationsAuto     bool

	QontoAuthMode          string
	QontoBaseURL           string
	QontoOrganizationSlug  string
	QontoSecretKey         string
	QontoAPIKey            string
	QontoOAuthClientID     string
	QontoOAuthClientSecret string
	QontoOAuthRefreshToken string
	QontoOAuthTokenURL     string
	QontoBankAccountID     string
	QontoSyncSchedule      string

	PacklinkAPIKey           string
	PacklinkBaseURL          string
	PacklinkSenderName       string
	PacklinkSenderSurname    string
	PacklinkSenderStreet     string
	PacklinkSenderPostalCode string
	PacklinkSenderCity       string
	PacklinkSenderCountry    string
	PacklinkSenderEmail      string
	PacklinkSenderPhone      string

	EmailServiceProvider string
	SMTPServer           string
	SMTPPort             int
	SMTPUser             string
	SMTPPassword         string
	MailgunDomain        string
	MailgunPrivateAPIKey string
	SenderEmail          string
	ContactNotifyEmail   string
}

var (
	ErrMissingDBConnection = errors.New("missing DB_CONNECTION_STRING in environment variables")
	ErrMissingJWTSecret    = errors.New("no JWT_SECRET provided")
	ErrInvalidQontoAuth    = errors.New("QONTO_AUTH_MODE must be 'api_key' or 'oauth'")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ALLOWED_ORIGIN", "http://localhost:3000")
	v.SetDefault("ACCESS_TOKEN_EXPIRY", "30m")
	v.SetDefault("MIGRATIONS_AUTO", true)
	v.SetDefault("QONTO_AUTH_MODE", QontoAuthAPIKey)
	v.SetDefault("QONTO_BASE_URL", "https://thirdparty.qonto.com")
	v.SetDefault("QONTO_OAUTH_TOKEN_URL", "https://oauth.qonto.com/oauth2/token")
	v.SetDefault("QONTO_SYNC_SCHEDULE", "@every 1h")
	v.SetDefault("PACKLINK_BASE_URL", "https://api.packlink.com")
	v.SetDefault("PACKLINK_SENDER_COUNTRY", "FR")
	v.SetDefault("EMAIL_SERVICE_PROVIDER", "smtp")
	v.SetDefault("SMTP_PORT", 587)
}

// Load reads the .env file when present and resolves every setting from the
// environment, falling back to defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file, continuing with system environment variables")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	expiry, err := time.ParseDuration(v.GetString("ACCESS_TOKEN_EXPIRY"))
	if err != nil {
		log.Printf("WARNING: invalid ACCESS_TOKEN_EXPIRY %q, using 30m", v.GetString("ACCESS_TOKEN_EXPIRY"))
		expiry = 30 * time.Minute
	}

	cfg := &AppConfig{
		Port:               v.GetString("PORT"),
		DBConnectionString: v.GetString("DB_CONNECTION_STRING"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		AllowedOrigin:      v.GetString("ALLOWED_ORIGIN"),
		AccessTokenExpiry:  expiry,
		MigrationsAuto:     v.GetBool("MIGRATIONS_AUTO"),

		QontoAuthMode:          strings.ToLower(v.GetString("QONTO_AUTH_MODE")),
		QontoBaseURL:           strings.TrimRight(v.GetString("QONTO_BASE_URL"), "/"),
		QontoOrganizationSlug:  v.GetString("QONTO_ORGANIZATION_SLUG"),
		QontoSecretKey:         v.GetString("QONTO_SECRET_KEY"),
		QontoAPIKey:            v.GetString("QONTO_API_KEY"),
		QontoOAuthClientID:     v.GetString("QONTO_OAUTH_CLIENT_ID"),
		QontoOAuthClientSecret: v.GetString("QONTO_OAUTH_CLIENT_SECRET"),
		QontoOAuthRefreshToken: v.GetString("QONTO_OAUTH_REFRESH_TOKEN"),
		QontoOAuthTokenURL:     v.GetString("QONTO_OAUTH_TOKEN_URL"),
		QontoBankAccountID:     v.GetString("QONTO_BANK_ACCOUNT_ID"),
		QontoSyncSchedule:      v.GetString("QONTO_SYNC_SCHEDULE"),

		PacklinkAPIKey:           v.GetString("PACKLINK_API_KEY"),
		PacklinkBaseURL:          strings.TrimRight(v.GetString("PACKLINK_BASE_URL"), "/"),
		PacklinkSenderName:       v.GetString("PACKLINK_SENDER_NAME"),
		PacklinkSenderSurname:    v.GetString("PACKLINK_SENDER_SURNAME"),
		PacklinkSenderStreet:     v.GetString("PACKLINK_SENDER_STREET"),
		PacklinkSenderPostalCode: v.GetString("PACKLINK_SENDER_POSTAL_CODE"),
		PacklinkSenderCity:       v.GetString("PACKLINK_SENDER_CITY"),
		PacklinkSenderCountry:    v.GetString("PACKLINK_SENDER_COUNTRY"),
		PacklinkSenderEmail:      v.GetString("PACKLINK_SENDER_EMAIL"),
		PacklinkSenderPhone:      v.GetString("PACKLINK_SENDER_PHONE"),

		EmailServiceProvider: strings.ToLower(v.GetString("EMAIL_SERVICE_PROVIDER")),
		SMTPServer:           v.GetString("SMTP_SERVER"),
		SMTPPort:             v.GetInt("SMTP_PORT"),
		SMTPUser:             v.GetString("SMTP_USER"),
		SMTPPassword:         v.GetString("SMTP_PASSWORD"),
		MailgunDomain:        v.GetString("MAILGUN_DOMAIN"),
		MailgunPrivateAPIKey: v.GetString("MAILGUN_PRIVATE_API_KEY"),
		SenderEmail:          v.GetString("SENDER_EMAIL"),
		ContactNotifyEmail:   v.GetString("CONTACT_NOTIFY_EMAIL"),
	}

	return cfg, cfg.Validate()
}

// Validate only checks what the server cannot start without.
func (c *AppConfig) Validate() error {
	if c.DBConnectionString == "" {
		return ErrMissingDBConnection
	}
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.QontoAuthMode != QontoAuthAPIKey && c.QontoAuthMode != QontoAuthOAuth {
		return ErrInvalidQontoAuth
	}
	return nil
}
