// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rental-payments/internal/config"
	"rental-payments/internal/domain/ports/adapter"
	payAdapters "rental-payments/internal/infra/adapters/payment"
	"rental-payments/internal/infra/api"
	pg "rental-payments/internal/infra/db/postgres"
	"rental-payments/internal/infra/logging"
	"rental-payments/internal/infra/metrics"
	red "rental-payments/internal/infra/redis"
	"rental-payments/internal/infra/sched"
	"rental-payments/internal/infra/security"
	"rental-payments/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed redaction)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis (optional: token sharing and rate limiting) ----
	var (
		tokenCache  adapter.GatewayTokenCache
		rateLimiter api.RateLimiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connect failed")
		}
		defer redisClient.Close()
		tokenCache = red.NewTokenCache(redisClient)
		rateLimiter = red.NewRateLimiter(redisClient)
	} else {
		logger.Warn().Msg("redis.url not set; gateway tokens are per-instance and verify rate limiting is off")
	}

	// ---- Signer ----
	signer, err := security.NewMetadataSigner(cfg.Payments.SigningSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("metadata signer init failed")
	}

	// ---- Gateway ----
	gateway, err := payAdapters.NewPesapalGateway(
		cfg.Pesapal.ConsumerKey, cfg.Pesapal.ConsumerSecret,
		cfg.Pesapal.BaseURL, cfg.Pesapal.Sandbox,
		tokenCache, logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("pesapal gateway init failed")
	}
	logger.Info().
		Str("consumer_key", logging.Redact(cfg.Pesapal.ConsumerKey, cfg.Runtime.Dev)).
		Bool("sandbox", cfg.Pesapal.Sandbox).
		Msg("pesapal gateway ready")

	// ---- Repositories ----
	payRepo := pg.NewPendingPaymentRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	creditRepo := pg.NewCreditRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Use cases ----
	fulfillUC := usecase.NewFulfillmentUseCase(subRepo, creditRepo, logger)
	verifyUC := usecase.NewVerificationUseCase(
		payRepo, gateway, signer, fulfillUC, txManager,
		cfg.Payments.AmountTolerance, logger,
	)

	// ---- HTTP ----
	srv := api.NewServer(
		verifyUC,
		api.NewAuthManager(cfg.Auth.JWTSecret),
		rateLimiter,
		api.RateLimitConfig{Limit: cfg.Payments.VerifyRateLimit, Window: cfg.Payments.VerifyRateWindow},
		red.VerifyKey,
		logger,
	)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Reconciler ----
	reconciler := sched.NewPaymentReconciler(
		verifyUC, payRepo,
		cfg.Payments.ReconcileInterval, cfg.Payments.ReconcileStaleAfter,
		logger,
	)
	go func() { _ = reconciler.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}
