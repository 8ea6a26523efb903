package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"adminkit/internal/auth"
	"adminkit/internal/config"
	"adminkit/internal/engine"
	"adminkit/internal/mapping"
	"adminkit/internal/storage"
	"adminkit/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("config loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("driver", cfg.Database.Driver),
		zap.String("database", cfg.Database.Name))

	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := db.Bootstrap(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		zlog.Fatal("bootstrap failed", zap.Error(err))
	}
	zlog.Info("system tables ready")

	reg, err := registerTypes()
	if err != nil {
		zlog.Fatal("type registration failed", zap.Error(err))
	}

	migrator := store.NewMigrator(db)
	if err := migrator.MigrateAll(ctx, reg); err != nil {
		zlog.Fatal("migration failed", zap.Error(err))
	}
	zlog.Info("entity tables ready", zap.Int("types", len(reg.All())))

	plugins := mapping.NewPluginRegistry()
	files := storage.NewLocalStorage(cfg.Storage.LocalPath)

	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler(zlog),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Auth routes carry no middleware; everything else requires a token.
	authHandler := auth.NewAuthHandler(db, cfg.Auth.JWTSecret)
	auth.RegisterAuthRoutes(app, authHandler)

	authMW := auth.AuthMiddleware(cfg.Auth.JWTSecret)

	fileHandler := engine.NewFileHandler(db, files, cfg.Storage.MaxFileSize)
	engine.RegisterFileRoutes(app, fileHandler, authMW)

	handler := engine.NewHandler(db, reg, plugins, files, zlog)
	engine.RegisterRoutes(app, handler, authMW)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	zlog.Info("starting server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		zc.Level = lvl
	}
	return zc.Build()
}
