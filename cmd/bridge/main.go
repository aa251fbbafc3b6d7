package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"walletbridge/internal/auth"
	"walletbridge/internal/codes"
	"walletbridge/internal/forwarder"
	"walletbridge/internal/handler"
	"walletbridge/internal/ledger"
	"walletbridge/internal/middleware"
	"walletbridge/internal/redemption"
	"walletbridge/internal/repository/postgres"
	"walletbridge/internal/scheduler"
	"walletbridge/pkg/cache"
	"walletbridge/pkg/config"
	"walletbridge/pkg/logger"
	"walletbridge/pkg/validator"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("wallet-bridge")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting Wallet Bridge", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Database connection
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.Info("Database connected", nil)

	// Redis connection
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer redisCache.Close()

	log.Info("Redis connected", nil)

	// Repositories
	ledgerRepo := postgres.NewLedgerRepository(db)
	codeRepo := postgres.NewCodeRepository(db)
	dispatchRepo := postgres.NewDispatchRepository(db)

	// Services
	ledgerService := ledger.NewService(ledgerRepo, log)
	codeService := codes.NewService(codeRepo, cfg.Redeem.DefaultExpiryDays, cfg.Redeem.Currency, log)
	redeemLimiter := redemption.NewRedisRateLimiter(redisCache, cfg.Redeem.RateLimitMax, cfg.Redeem.RateLimitWin)
	redeemService := redemption.NewService(codeService, ledgerService, redeemLimiter, log)
	forwardService := forwarder.NewService(dispatchRepo, cfg.Forward, log)

	// Handlers
	val := validator.New()
	codesHandler := handler.NewCodesHandler(codeService, val, log)
	redeemHandler := handler.NewRedeemHandler(redeemService, val, log)
	walletHandler := handler.NewWalletHandler(ledgerService, log)
	dispatchHandler := handler.NewDispatchHandler(forwardService, val, log)
	systemHandler := handler.NewSystemHandler(db, redisCache.Client(), log)

	// Router
	r := mux.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.BodyLimit(1 << 20)) // 1MB global cap

	r.HandleFunc("/health", systemHandler.Health).Methods("GET")
	r.HandleFunc("/ready", systemHandler.Ready).Methods("GET")

	// Bridge routes, HMAC-signed by partner stores
	keyring := auth.NewKeyring(cfg.Bridge.APIKeys, cfg.Bridge.TimestampSkew)
	hmacMW := middleware.NewHMACMiddleware(keyring, redisCache, cfg.Bridge.RateLimitMax, cfg.Bridge.RateLimitWin, log)

	bridge := r.PathPrefix("/bridge/v1").Subrouter()
	bridge.Use(hmacMW.Authenticate)
	bridge.HandleFunc("/wallet-codes", codesHandler.Upsert).Methods("POST")
	bridge.HandleFunc("/redeem", redeemHandler.Redeem).Methods("POST")

	// Operator routes, JWT bearer
	authMW := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Authenticate)
	api.HandleFunc("/wallet/{user_id}/balance", walletHandler.GetBalance).Methods("GET")
	api.HandleFunc("/wallet/{user_id}/transactions", walletHandler.GetTransactions).Methods("GET")
	api.HandleFunc("/dispatches", dispatchHandler.List).Methods("GET")
	api.HandleFunc("/dispatches/{uuid}/retry", dispatchHandler.Retry).Methods("POST")
	api.HandleFunc("/forward", dispatchHandler.Forward).Methods("POST")

	// Background expiry sweep
	sweeper := scheduler.NewScheduler(codeService, cfg.Forward.SweepEvery, log)
	sweeper.Start()

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Wallet bridge started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down wallet bridge...", nil)
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Wallet bridge stopped", nil)
}
