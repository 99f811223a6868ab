package main

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/verone/backoffice/internal/auth"
	"github.com/verone/backoffice/internal/banking"
	"github.com/verone/backoffice/internal/contact"
	"github.com/verone/backoffice/internal/invoicing"
	"github.com/verone/backoffice/internal/matching"
	"github.com/verone/backoffice/internal/middleware"
	"github.com/verone/backoffice/internal/reconciliation"
	"github.com/verone/backoffice/internal/shipping"
	"github.com/verone/backoffice/internal/user"
	"golang.org/x/time/rate"
)

type Response struct {
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, errors ...[]string) {
	body := map[string]interface{}{
		"status":  "error",
		"message": message,
		"code":    status,
	}
	if len(errors) > 0 && len(errors[0]) > 0 {
		body["errors"] = errors[0]
	}
	respondJSON(w, status, body)
}

func currentUser(r *http.Request) (uuid.UUID, bool) {
	return auth.UserIDFromContext(r.Context())
}

// services is what the HTTP layer needs from the application.
type services struct {
	auth           auth.Service
	users          user.Service
	rules          matching.Service
	reconciliation reconciliation.Service
	invoicing      invoicing.Service
	shipments      shipping.Service
	banking        banking.Service
	contact        contact.Service
	secureCookies  bool
	ready          func() bool
}

type Server struct {
	router         http.Handler
	authService    auth.Service
	authHandler    *auth.Handler
	userHandler    *user.Handler
	ruleHandler    *matching.Handler
	reconHandler   *reconciliation.Handler
	invoiceHandler *invoicing.Handler
	shipHandler    *shipping.Handler
	bankHandler    *banking.Handler
	contactHandler *contact.Handler
	authLimiter    *rate.Limiter
	contactLimiter *rate.Limiter
	ready          func() bool
}

func NewServer(svc services) *Server {
	return &Server{
		authService:    svc.auth,
		authHandler:    auth.NewHandler(svc.auth, svc.secureCookies, respondJSON, respondError),
		userHandler:    user.NewHandler(svc.users, currentUser, respondJSON, respondError),
		ruleHandler:    matching.NewHandler(svc.rules, respondJSON, respondError),
		reconHandler:   reconciliation.NewHandler(svc.reconciliation, respondJSON, respondError),
		invoiceHandler: invoicing.NewHandler(svc.invoicing, respondJSON, respondError),
		shipHandler:    shipping.NewHandler(svc.shipments, respondJSON, respondError),
		bankHandler:    banking.NewHandler(svc.banking, respondJSON, respondError),
		contactHandler: contact.NewHandler(svc.contact, respondJSON, respondError),
		// one login attempt every 2s, bursts of 10
		authLimiter: rate.NewLimiter(rate.Limit(0.5), 10),
		// one contact form every 5s, bursts of 5
		contactLimiter: rate.NewLimiter(rate.Limit(0.2), 5),
		ready:          svc.ready,
	}
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(Response{Message: "Path not found"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil && !s.ready() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) RegisterRoutes(allowedOrigin string) {
	authLimited := middleware.RateLimit(s.authLimiter)
	contactLimited := middleware.RateLimit(s.contactLimiter)

	// Public routes
	publicRoutes := http.NewServeMux()
	publicRoutes.Handle("POST /api/auth/login", authLimited(http.HandlerFunc(s.authHandler.HandleLogin)))
	publicRoutes.Handle("POST /api/auth/2fa/verify", authLimited(http.HandlerFunc(s.authHandler.HandleVerifyTwoFactor)))
	publicRoutes.Handle("POST /api/auth/logout", http.HandlerFunc(s.authHandler.HandleLogout))
	publicRoutes.Handle("POST /api/contact", contactLimited(http.HandlerFunc(s.contactHandler.Submit)))
	publicRoutes.Handle("GET /api/ready", http.HandlerFunc(s.handleReady))

	// Protected routes (using JWT Access Token Middleware)
	protect := s.authService.JWTAccessTokenMiddleware()
	withIDs := func(h http.HandlerFunc, params ...string) http.Handler {
		return protect(middleware.ValidatePathUUIDs(respondError, params...)(h))
	}
	protectedRoutes := http.NewServeMux()

	// users and 2fa
	protectedRoutes.Handle("GET /api/protected/users/me", protect(http.HandlerFunc(s.userHandler.HandleMe)))
	protectedRoutes.Handle("PUT /api/protected/users/me/password", protect(http.HandlerFunc(s.userHandler.HandleChangePassword)))
	protectedRoutes.Handle("GET /api/protected/users", protect(http.HandlerFunc(s.userHandler.HandleListUsers)))
	protectedRoutes.Handle("POST /api/protected/users", protect(http.HandlerFunc(s.userHandler.HandleCreateUser)))
	protectedRoutes.Handle("POST /api/protected/2fa/register", protect(http.HandlerFunc(s.authHandler.HandleRegisterTwoFactor)))
	protectedRoutes.Handle("POST /api/protected/2fa/confirm", protect(http.HandlerFunc(s.authHandler.HandleConfirmTwoFactor)))
	protectedRoutes.Handle("DELETE /api/protected/2fa", protect(http.HandlerFunc(s.authHandler.HandleDisableTwoFactor)))

	// matching rules
	protectedRoutes.Handle("GET /api/protected/matching-rules", protect(http.HandlerFunc(s.ruleHandler.ListRules)))
	protectedRoutes.Handle("POST /api/protected/matching-rules", protect(http.HandlerFunc(s.ruleHandler.CreateRule)))
	protectedRoutes.Handle("POST /api/protected/matching-rules/apply", protect(http.HandlerFunc(s.ruleHandler.ApplyAllRules)))
	protectedRoutes.Handle("GET /api/protected/matching-rules/{ruleID}", withIDs(s.ruleHandler.GetRule, "ruleID"))
	protectedRoutes.Handle("PUT /api/protected/matching-rules/{ruleID}", withIDs(s.ruleHandler.UpdateRule, "ruleID"))
	protectedRoutes.Handle("DELETE /api/protected/matching-rules/{ruleID}", withIDs(s.ruleHandler.DeleteRule, "ruleID"))
	protectedRoutes.Handle("PATCH /api/protected/matching-rules/{ruleID}/enabled", withIDs(s.ruleHandler.SetRuleEnabled, "ruleID"))
	protectedRoutes.Handle("POST /api/protected/matching-rules/{ruleID}/apply", withIDs(s.ruleHandler.ApplyRule, "ruleID"))
	protectedRoutes.Handle("GET /api/protected/labels/unclassified", protect(http.HandlerFunc(s.ruleHandler.ListUnclassifiedLabels)))
	protectedRoutes.Handle("POST /api/protected/labels/link", protect(http.HandlerFunc(s.ruleHandler.LinkLabel)))

	// reconciliation
	protectedRoutes.Handle("GET /api/protected/invoices/{invoiceID}/reconciliation/candidates", withIDs(s.reconHandler.ListCandidates, "invoiceID"))
	protectedRoutes.Handle("GET /api/protected/invoices/{invoiceID}/reconciliations", withIDs(s.reconHandler.ListReconciliations, "invoiceID"))
	protectedRoutes.Handle("POST /api/protected/invoices/{invoiceID}/reconcile", withIDs(s.reconHandler.Reconcile, "invoiceID"))
	protectedRoutes.Handle("DELETE /api/protected/invoices/{invoiceID}/reconcile/{transactionID}", withIDs(s.reconHandler.Unreconcile, "invoiceID"))

	// sales orders
	protectedRoutes.Handle("GET /api/protected/sales-orders/{orderID}/quote/preview", withIDs(s.invoiceHandler.PreviewQuote, "orderID"))
	protectedRoutes.Handle("POST /api/protected/sales-orders/{orderID}/quote", withIDs(s.invoiceHandler.CreateQuote, "orderID"))
	protectedRoutes.Handle("POST /api/protected/sales-orders/{orderID}/invoice", withIDs(s.invoiceHandler.CreateInvoice, "orderID"))
	protectedRoutes.Handle("POST /api/protected/sales-orders/{orderID}/shipments", withIDs(s.shipHandler.CreateShipment, "orderID"))
	protectedRoutes.Handle("GET /api/protected/sales-orders/{orderID}/shipments", withIDs(s.shipHandler.ListShipments, "orderID"))

	// bank
	protectedRoutes.Handle("POST /api/protected/bank/sync", protect(http.HandlerFunc(s.bankHandler.Sync)))
	protectedRoutes.Handle("GET /api/protected/bank/transactions", protect(http.HandlerFunc(s.bankHandler.ListTransactions)))

	// contact inbox
	protectedRoutes.Handle("GET /api/protected/contact-submissions", protect(http.HandlerFunc(s.contactHandler.ListSubmissions)))

	// Refresh token routes
	refreshTokenRoutes := http.NewServeMux()
	refreshTokenRoutes.Handle("PUT /api/refresh/token", s.authService.JWTRefreshTokenMiddleware()(http.HandlerFunc(s.authHandler.RefreshAccessToken)))

	// Main router
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/api/", publicRoutes)
	mainRouter.Handle("/api/protected/", protectedRoutes)
	mainRouter.Handle("/api/refresh/", refreshTokenRoutes)
	mainRouter.Handle("/", http.HandlerFunc(notFoundHandler))

	s.router = middleware.Logging(middleware.CORS(allowedOrigin)(mainRouter))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
