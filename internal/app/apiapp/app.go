package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/trusteero/getlost-portal-sub003/internal/config"
	"github.com/trusteero/getlost-portal-sub003/internal/infra/httpclient"
	"github.com/trusteero/getlost-portal-sub003/internal/infra/provider"
	s3infra "github.com/trusteero/getlost-portal-sub003/internal/infra/s3"
	pgrepo "github.com/trusteero/getlost-portal-sub003/internal/repo/postgres"
	redrepo "github.com/trusteero/getlost-portal-sub003/internal/repo/redis"
	auditsvc "github.com/trusteero/getlost-portal-sub003/internal/services/audit"
	authsvc "github.com/trusteero/getlost-portal-sub003/internal/services/auth"
	confsvc "github.com/trusteero/getlost-portal-sub003/internal/services/confirmations"
	creditsvc "github.com/trusteero/getlost-portal-sub003/internal/services/credits"
	entsvc "github.com/trusteero/getlost-portal-sub003/internal/services/entitlements"
	paymentsvc "github.com/trusteero/getlost-portal-sub003/internal/services/payments"
	ratesvc "github.com/trusteero/getlost-portal-sub003/internal/services/rate"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	sessionRepo := redrepo.NewSessionRepo(redisClient)
	rateRepo := redrepo.NewRateRepo(redisClient)
	purchaseRepo := pgrepo.NewPurchaseRepo(pool)
	entitlementRepo := pgrepo.NewEntitlementRepo(pool)
	consumptionRepo := pgrepo.NewConsumptionRepo(pool)
	auditLogRepo := pgrepo.NewAuditLogRepo(pool)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)
	authService := authsvc.NewService(jwtManager, sessionRepo)

	auditService := auditsvc.NewService(auditLogRepo, log)

	paymentService := paymentsvc.NewService(paymentsvc.Dependencies{
		Pool:         pool,
		Purchases:    purchaseRepo,
		Entitlements: entitlementRepo,
		Logger:       log,
	}, paymentsvc.Config{
		DefaultCurrency: cfg.Billing.Currency,
	})
	paymentService.AttachAudit(auditService)

	confirmationService := confsvc.NewService(confsvc.Dependencies{
		Reconciler: paymentService,
		Logger:     log,
	}, cfg.Provider.WebhookSecret)

	if providerClient, err := provider.NewClient(provider.Config{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
	}, httpclient.New(cfg.Provider.Timeout)); err != nil {
		log.Warn("payment provider init failed, fallback verification disabled", zap.Error(err))
	} else {
		confirmationService.AttachProvider(providerClient)
	}

	entitlementService := entsvc.NewService(entitlementRepo)
	creditService := creditsvc.NewService(purchaseRepo, consumptionRepo)
	rateLimiter := ratesvc.NewLimiter(
		rateRepo,
		cfg.Billing.VerifyRatePerMinute,
		cfg.Billing.VerifyRatePer10Sec,
	)

	var s3Client *minio.Client
	if cfg.Billing.ArchiveWebhookBodies {
		if c, err := s3infra.NewClient(s3infra.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
		}); err != nil {
			log.Warn("s3 init failed, webhook archiving disabled", zap.Error(err))
		} else {
			s3Client = c
			confirmationService.AttachArchive(s3infra.NewPayloadArchive(s3Client, cfg.S3.Bucket))
		}
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		AuthService:         authService,
		PaymentService:      paymentService,
		ConfirmationService: confirmationService,
		EntitlementService:  entitlementService,
		CreditService:       creditService,
		RateLimiter:         rateLimiter,
		Logger:              log,
		Config:              cfg,
	})

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
