package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/example/coolpis/internal/apperr"
	"github.com/example/coolpis/internal/config"
	"github.com/example/coolpis/internal/database"
	"github.com/example/coolpis/internal/logger"
	"github.com/example/coolpis/internal/repository"
	"github.com/example/coolpis/internal/repository/memory"
	"github.com/example/coolpis/internal/repository/postgres"
	"github.com/example/coolpis/internal/routes"
	"github.com/example/coolpis/internal/services"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	deps := routes.Deps{}

	switch cfg.StoreDriver {
	case "memory":
		deps.Store = memory.New()
		zlog.Warn("using in-memory store, data is lost on restart")
	default:
		db, err := database.Connect(cfg.DatabaseURL, zlog)
		if err != nil {
			zlog.Fatal("database unavailable", zap.Error(err))
		}
		deps.Store = postgres.New(db)
	}

	if cfg.RedisAddr != "" {
		redisRepo := repository.NewRedisRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisRepo.Ping(ctx)
		cancel()
		if err != nil {
			zlog.Warn("redis unavailable, using in-process revocation and no OCR cache", zap.Error(err))
			_ = redisRepo.Close()
		} else {
			deps.Revoker = redisRepo
			deps.Cache = redisRepo
			defer redisRepo.Close()
		}
	}

	if cfg.MongoURI != "" {
		auditRepo, err := repository.NewMongoAuditRepository(context.Background(), cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			zlog.Warn("mongo unavailable, dispatch audit disabled", zap.Error(err))
		} else {
			deps.Audit = auditRepo
			defer func() { _ = auditRepo.Close(context.Background()) }()
		}
	}

	if cfg.TelegramBotToken != "" && cfg.TelegramAdminChat != "" {
		deps.Notifier = services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, zlog)
	}

	app := fiber.New(fiber.Config{
		AppName:      "Coolpis Wholesale Backend",
		ErrorHandler: apperr.ErrorHandler(zlog),
		BodyLimit:    12 * 1024 * 1024,
		Immutable:    true,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	routes.Register(app, cfg, deps, zlog)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		zlog.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zlog.Error("shutdown failed", zap.Error(err))
		}
	}()

	zlog.Info("starting server", zap.String("port", cfg.AppPort), zap.String("store", cfg.StoreDriver))
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		zlog.Fatal("fiber.Listen error", zap.Error(err))
	}
}
