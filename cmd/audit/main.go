package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/trusteero/getlost-portal-sub003/internal/config"
	"github.com/trusteero/getlost-portal-sub003/internal/infra/logger"
	"github.com/trusteero/getlost-portal-sub003/internal/infra/telegram"
	auditjob "github.com/trusteero/getlost-portal-sub003/internal/jobs/audit"
	pgrepo "github.com/trusteero/getlost-portal-sub003/internal/repo/postgres"
)

// One-shot integrity scan. Exits non-zero when any completed purchase
// is missing its entitlement, so a cron wrapper can page on it.
func main() {
	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	job := auditjob.New(pgrepo.NewPurchaseRepo(pool), cfg.Billing.AuditScanBatchLimit, log)

	if cfg.Alerts.TelegramToken != "" && cfg.Alerts.TelegramChatID != 0 {
		notifier, err := telegram.NewNotifier(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramChatID)
		if err != nil {
			log.Warn("telegram notifier init failed, alerts disabled", zap.Error(err))
		} else {
			job.AttachNotifier(notifier)
		}
	}

	violations, err := job.Run(ctx)
	if err != nil {
		log.Fatal("integrity scan failed", zap.Error(err))
	}
	if violations > 0 {
		log.Error("integrity scan found violations", zap.Int("count", violations))
		os.Exit(1)
	}
}
