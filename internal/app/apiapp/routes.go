package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/trusteero/getlost-portal-sub003/internal/config"
	authsvc "github.com/trusteero/getlost-portal-sub003/internal/services/auth"
	confsvc "github.com/trusteero/getlost-portal-sub003/internal/services/confirmations"
	creditsvc "github.com/trusteero/getlost-portal-sub003/internal/services/credits"
	entsvc "github.com/trusteero/getlost-portal-sub003/internal/services/entitlements"
	paymentsvc "github.com/trusteero/getlost-portal-sub003/internal/services/payments"
	ratesvc "github.com/trusteero/getlost-portal-sub003/internal/services/rate"
	"github.com/trusteero/getlost-portal-sub003/internal/transport/http/handlers"
)

type Dependencies struct {
	AuthService         *authsvc.Service
	PaymentService      *paymentsvc.Service
	ConfirmationService *confsvc.Service
	EntitlementService  *entsvc.Service
	CreditService       *creditsvc.Service
	RateLimiter         *ratesvc.Limiter
	Logger              *zap.Logger
	Config              config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	billingHandler := handlers.NewBillingHandler(deps.PaymentService, deps.ConfirmationService, deps.RateLimiter)
	entitlementHandler := handlers.NewEntitlementHandler(deps.EntitlementService)
	creditHandler := handlers.NewCreditHandler(deps.CreditService)
	authMW := AuthMiddleware(deps.AuthService, deps.Logger)

	r.Get("/healthz", healthHandler.Get)

	r.Route("/billing", func(r chi.Router) {
		r.Post("/webhook", billingHandler.Webhook)
		r.With(authMW).Post("/purchases", billingHandler.Create)
		r.With(authMW).Get("/purchases", billingHandler.List)
		r.With(authMW).Get("/purchases/{purchaseID}", billingHandler.Get)
		r.With(authMW).Post("/purchases/{purchaseID}/verify", billingHandler.Verify)
		r.With(authMW).Get("/entitlements/{bookID}/{capability}", entitlementHandler.Get)
		r.With(authMW).Get("/credits/{capability}", creditHandler.Get)
	})
}
