package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/movu/auth-service/internal/auth"
	"github.com/movu/auth-service/internal/config"
	"github.com/movu/auth-service/internal/database"
	"github.com/movu/auth-service/internal/federation"
	"github.com/movu/auth-service/internal/handler"
	"github.com/movu/auth-service/internal/logger"
	"github.com/movu/auth-service/internal/queue"
	"github.com/movu/auth-service/internal/repository"
	"github.com/movu/auth-service/internal/router"
	"github.com/movu/auth-service/internal/token"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Configuration errors are fatal: the process must not serve
		// traffic with malformed lifetimes or missing secrets.
		log.Fatalf("configuration error: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	db, err := database.Params{
		User: cfg.DBUser, Pass: cfg.DBPass,
		Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	}.Open()
	if err != nil {
		zl.Fatal("database connect failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	rdb := config.NewRedisClient()
	if rdb == nil {
		zl.Warn("redis unavailable, role listing cache disabled")
	}

	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	ledger := repository.NewTokenRepo(db)

	codec := token.NewCodec(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	hasher := auth.BcryptHasher{Cost: cfg.BcryptCost}
	events := queue.NewPublisher(cfg.AMQPURL, zl)

	svc := auth.NewService(users, ledger, codec, hasher, events, cfg.SlidingWindow, zl)

	var google *federation.GoogleExchanger
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		google = federation.NewGoogleExchanger(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	} else {
		zl.Info("google oauth not configured, federated login disabled")
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(e, handler.NewAuthHandler(svc, codec, google), handler.NewRoleHandler(roles, users),
		codec, rdb, cfg.CacheTTL)

	addr := ":" + cfg.Port
	zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}
