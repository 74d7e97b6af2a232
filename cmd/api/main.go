package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"loan-dash/internal/config"
	"loan-dash/internal/db"
	apihttp "loan-dash/internal/http"
	"loan-dash/internal/identity"
	"loan-dash/internal/metrics"
	"loan-dash/internal/repository"
	"loan-dash/internal/service"
	"loan-dash/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Ping(ctx, pool); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("db schema", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sessionMetrics := metrics.New(reg)

	var (
		redisClient *redis.Client
		tokenStore  identity.RefreshTokenStore
		eventBus    identity.EventBus = identity.NewMemoryEventBus()
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
			redisClient = nil
		} else {
			tokenStore = identity.NewRedisRefreshTokenStore(redisClient)
			redisBus := identity.NewRedisEventBus(redisClient, logger)
			go func() {
				if err := redisBus.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("auth event bus stopped", zap.Error(err))
				}
			}()
			eventBus = redisBus
		}
		cancel()
	}
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	tokens := identity.NewTokenIssuer(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	accountRepo := repository.NewPgIdentityAccountRepository(pool)
	identitySvc := identity.NewService(logger, accountRepo, tokens, eventBus)

	profileRepo := repository.NewPgProfileRepository(pool)
	profileLoader := service.NewProfileLoader(
		logger,
		profileRepo,
		repository.NewPgPerformanceRepository(pool),
		repository.NewPgBadgeRepository(pool),
		repository.NewPgTaskRepository(pool),
		cfg.StarterBadgeID,
	)
	settingsSvc := service.NewSettingsService(logger, repository.NewPgSettingsRepository(pool), redisClient, cfg.DefaultAutoLogoutMinutes)

	registry := session.NewRegistry(logger, func() *session.Machine {
		return session.NewMachine(
			logger,
			identity.NewClient(identitySvc),
			profileLoader,
			settingsSvc,
			session.WithMetrics(sessionMetrics),
		)
	}, time.Duration(cfg.SessionRegistryTTLMinutes)*time.Minute, sessionMetrics, nil)
	defer registry.Close()
	go registry.Run(ctx, time.Minute)

	loginLimiter := service.NewRedisLoginLimiter(redisClient, time.Duration(cfg.LoginRateLimitWindowMinutes)*time.Minute, cfg.LoginRateLimitMax)
	if loginLimiter == nil {
		loginLimiter = service.NewMemoryLoginLimiter(time.Duration(cfg.LoginRateLimitWindowMinutes)*time.Minute, cfg.LoginRateLimitMax)
	}

	sessionHandler := apihttp.NewSessionHandler(logger, registry, loginLimiter)
	profileHandler := apihttp.NewProfileHandler(logger, profileRepo)
	adminHandler := apihttp.NewAdminHandler(logger, registry, identitySvc)
	accountHandler := apihttp.NewAccountHandler(logger, identitySvc, tokens, loginLimiter)
	router := apihttp.NewRouter(logger, registry, tokens, reg, sessionHandler, profileHandler, adminHandler, accountHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
