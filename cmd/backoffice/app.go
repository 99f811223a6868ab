package main

import (
	"context"
	"errors"
	"strings"
	"time"

	database "github.com/verone/backoffice/db"
	"github.com/verone/backoffice/internal/auth"
	"github.com/verone/backoffice/internal/banking"
	"github.com/verone/backoffice/internal/config"
	"github.com/verone/backoffice/internal/contact"
	"github.com/verone/backoffice/internal/email"
	"github.com/verone/backoffice/internal/invoicing"
	"github.com/verone/backoffice/internal/logger"
	"github.com/verone/backoffice/internal/matching"
	"github.com/verone/backoffice/internal/qonto"
	"github.com/verone/backoffice/internal/reconciliation"
	"github.com/verone/backoffice/internal/shipping"
	"github.com/verone/backoffice/internal/user"
)

// app holds every service built from one configuration.
type app struct {
	cfg    *config.AppConfig
	db     *database.DBService
	mailer *email.EmailService

	sessions *auth.SessionManager

	userService           user.Service
	authService           auth.Service
	ruleService           matching.Service
	reconciliationService reconciliation.Service
	invoicingService      invoicing.Service
	shipmentService       shipping.Service
	bankingService        banking.Service
	contactService        contact.Service
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel)
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	if cfg.MigrationsAuto {
		if err := database.RunMigrations(cfg.DBConnectionString); err != nil {
			return nil, err
		}
		logger.L.Info("database migrations applied")
	}

	dbService, err := database.NewDBService(ctx, cfg.DBConnectionString)
	if err != nil {
		return nil, err
	}
	db := dbService.DB

	a := &app{
		cfg:      cfg,
		db:       dbService,
		mailer:   email.NewEmailService(cfg),
		sessions: auth.NewSessionManager(),
	}

	a.userService = user.NewUserService(user.NewUserRepository(db))
	a.authService = auth.NewAuthService(
		auth.NewUserRepository(db),
		a.userService,
		a.sessions,
		auth.NewJWTManager(cfg.JWTSecret, cfg.AccessTokenExpiry),
		auth.Authenticator{},
	)

	var (
		quoteClient invoicing.QontoClient
		bankSource  banking.TransactionSource
	)
	qontoClient, err := qonto.NewClient(ctx, cfg)
	switch {
	case errors.Is(err, qonto.ErrNotConfigured):
		logger.L.Warn("qonto is not configured, quotes, invoices and bank sync are disabled", "reason", err.Error())
	case err != nil:
		a.Close()
		return nil, err
	default:
		quoteClient = qontoClient
		bankSource = qontoClient
	}

	var carrier shipping.Carrier
	packlinkClient, err := shipping.NewPacklinkClient(cfg)
	if err != nil {
		logger.L.Warn("packlink is not configured, only manual shipments are available")
	} else {
		carrier = packlinkClient
	}

	a.ruleService = matching.NewRuleService(matching.NewRuleRepository(db))
	a.reconciliationService = reconciliation.NewReconciliationService(reconciliation.NewReconciliationRepository(db))
	a.invoicingService = invoicing.NewInvoicingService(invoicing.NewOrderRepository(db), quoteClient)
	a.shipmentService = shipping.NewShipmentService(shipping.NewShipmentRepository(db), carrier)
	a.bankingService = banking.NewBankingService(banking.NewTransactionRepository(db), bankSource, a.ruleService, a.mailer, cfg.ContactNotifyEmail)
	a.contactService = contact.NewContactService(contact.NewSubmissionRepository(db), a.mailer, cfg.ContactNotifyEmail)

	return a, nil
}

// secureCookies is true when the front end is served over TLS.
func (a *app) secureCookies() bool {
	return strings.HasPrefix(a.cfg.AllowedOrigin, "https://")
}

func (a *app) services() services {
	return services{
		auth:           a.authService,
		users:          a.userService,
		rules:          a.ruleService,
		reconciliation: a.reconciliationService,
		invoicing:      a.invoicingService,
		shipments:      a.shipmentService,
		banking:        a.bankingService,
		contact:        a.contactService,
		secureCookies:  a.secureCookies(),
		ready: func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return a.db.DB.PingContext(ctx) == nil
		},
	}
}

// Close drains queued e-mails and closes the database pool.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.mailer.Shutdown(ctx); err != nil {
		logger.L.Warn("email queue not drained", "error", err)
	}
	if err := a.db.Close(); err != nil {
		logger.L.Error("closing database", "error", err)
	}
}
