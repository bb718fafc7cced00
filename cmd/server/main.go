package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rocket-relations/internal/admin"
	"rocket-relations/internal/auth"
	"rocket-relations/internal/config"
	"rocket-relations/internal/engine"
	"rocket-relations/internal/instrument"
	"rocket-relations/internal/logging"
	"rocket-relations/internal/metadata"
	"rocket-relations/internal/record"
	"rocket-relations/internal/relation"
	"rocket-relations/internal/store"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	zl.Info("database connected", zap.String("driver", db.Driver()))

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}

	// 4. Seed definitions from the schema file, if any
	if cfg.SchemaFile != "" {
		schema, err := metadata.LoadFile(cfg.SchemaFile)
		if err != nil {
			return err
		}
		if err := db.SaveDefinitions(ctx, schema.Entities, schema.Relations); err != nil {
			return fmt.Errorf("save definitions: %w", err)
		}
		zl.Info("schema file applied", zap.String("path", cfg.SchemaFile))
	}

	// 5. Load the registry and migrate the declared tables
	reg := metadata.NewRegistry()
	inspector := store.NewInspector(db.DB, db.Dialect)
	adminHandler := admin.NewHandler(db, reg, store.NewMigrator(db, zl), inspector, zl)
	if err := adminHandler.Sync(ctx); err != nil {
		return err
	}

	repo := record.NewRepo(db, reg, zl)
	manager := relation.NewManager(repo, inspector, zl)

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          engine.NewErrorHandler(zl),
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(instrument.Middleware(zl))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 7. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 8. Admin and entity routes
	var adminMW, apiMW []fiber.Handler
	if cfg.Auth.Enabled {
		authMW := auth.AuthMiddleware(cfg.JWTSecret)
		adminMW = []fiber.Handler{authMW, auth.RequireAdmin()}
		apiMW = []fiber.Handler{authMW}
	} else {
		zl.Warn("authentication disabled")
	}
	admin.RegisterAdminRoutes(app, adminHandler, adminMW...)
	engine.RegisterDynamicRoutes(app, engine.NewHandler(manager, zl), apiMW...)

	// 9. Serve until a signal arrives
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("starting server", zap.String("addr", addr))
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		zl.Info("shutting down")
		return app.ShutdownWithContext(shutdownCtx)
	})
	return g.Wait()
}
