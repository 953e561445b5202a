package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/matt-iam/iam-api/internal/api"
	"github.com/matt-iam/iam-api/internal/core/ports"
	"github.com/matt-iam/iam-api/internal/core/service"
	"github.com/matt-iam/iam-api/internal/infrastructure/audit"
	"github.com/matt-iam/iam-api/internal/infrastructure/config"
	mongodb "github.com/matt-iam/iam-api/internal/infrastructure/db/mongo"
	redisdb "github.com/matt-iam/iam-api/internal/infrastructure/db/redis"
	"github.com/matt-iam/iam-api/internal/infrastructure/queue"
	"github.com/matt-iam/iam-api/internal/seed"
	"github.com/matt-iam/iam-api/internal/token"
	"github.com/matt-iam/iam-api/pkg/logger"
)

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connection failed")
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer func() { _ = rdb.Close() }()

	userRepo := mongodb.NewUserRepository(db)
	roleRepo := mongodb.NewRoleRepository(db)
	refreshRepo := mongodb.NewRefreshTokenRepository(db)
	blacklistRepo := mongodb.NewBlacklistRepository(db)

	for name, ensure := range map[string]func(context.Context) error{
		"users":          userRepo.EnsureIndexes,
		"refresh_tokens": refreshRepo.EnsureIndexes,
		"blacklist":      blacklistRepo.EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			log.Fatal().Err(err).Str("collection", name).Msg("index creation failed")
		}
	}

	if err := seed.Roles(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("role seeding failed")
	}

	blacklist := redisdb.NewCachedBlacklist(rdb, blacklistRepo, log)

	// --- Audit trail ---
	var publisher ports.AuditPublisher = audit.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer func() { _ = kp.Close() }()
		publisher = kp
	}

	// --- Core services ---
	codec := token.NewCodec(cfg.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	tokenService := service.NewTokenService(userRepo, refreshRepo, blacklist, codec, publisher, log)
	cleanupService := service.NewTokenCleanupService(refreshRepo, blacklist, log)

	dispatcher := queue.NewDispatcher(cfg.Auth.SweepWorkers, cleanupService, log)
	dispatcher.Start(ctx)
	dispatcher.StartBlacklistSweeper(ctx, cfg.Auth.BlacklistSweepTick)

	authService := service.NewAuthService(
		userRepo, roleRepo, refreshRepo, blacklist,
		tokenService, codec, publisher, dispatcher, log,
	)

	// --- HTTP ---
	e := api.NewRouter(api.Deps{
		Mongo:     db,
		Redis:     rdb,
		Codec:     codec,
		Auth:      authService,
		Tokens:    tokenService,
		Users:     userRepo,
		Blacklist: blacklist,
		Log:       log,
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("iam-api started")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
