package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/pathkeep/pathkeep/aclgorm"
	"github.com/pathkeep/pathkeep/api"
	"github.com/pathkeep/pathkeep/core/acl"
	"github.com/pathkeep/pathkeep/core/config"
	"github.com/pathkeep/pathkeep/core/health"
	"github.com/pathkeep/pathkeep/core/logger"
)

// Version is set at build time
var Version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	logger.InitLogger(cfg.LogLevel)
	defer logger.Log.Sync()

	logger.Log.Info("Starting Pathkeep ACL Service",
		zap.Int("port", cfg.Port),
		zap.String("db_type", cfg.DBType),
	)

	// Initialize Repository
	open := aclgorm.Open
	if cfg.SkipAutoMigrate {
		open = aclgorm.OpenNoMigrate
	}
	repo, err := open(cfg.DBType, cfg.DSN, nil)
	if err != nil {
		logger.Log.Fatal("failed to initialize repository", zap.Error(err))
	}

	// Initialize Engine; a restart against an existing store is a no-op.
	engine := acl.New(repo, acl.WithLogger(logger.Log))
	err = engine.Initialize(context.Background(), time.Now(), acl.InitParams{
		CreatedBy:   cfg.Operator,
		Operator:    acl.Operator{Kind: acl.OperatorKind(cfg.OperatorKind), Value: cfg.Operator},
		Name:        cfg.ACLName,
		Description: cfg.ACLDescription,
	})
	switch {
	case errors.Is(err, acl.ErrAlreadyExists):
		logger.Log.Info("ACL already initialized")
	case err != nil:
		logger.Log.Fatal("failed to initialize ACL", zap.Error(err))
	}

	// Initialize Handler
	h := api.NewHandler(engine, []byte(cfg.JWTSecret), api.WithLogger(logger.Log))

	// Health checks
	hm := health.NewManager(Version)
	hm.Register("database", func(ctx context.Context) error {
		db, err := repo.DB().DB()
		if err != nil {
			return err
		}
		return db.PingContext(ctx)
	})
	hm.Register("store", func(ctx context.Context) error {
		_, err := engine.Metadata(ctx)
		return err
	})

	// Setup Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Routes
	e.GET("/healthz", hm.LiveHandler())
	e.GET("/ready", hm.ReadyHandler())
	g := e.Group("/api/v1")
	h.RegisterRoutes(g)

	logger.Log.Info("Server is starting", zap.Int("port", cfg.Port))
	if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Log.Fatal("server failed to start", zap.Error(err))
	}
}
