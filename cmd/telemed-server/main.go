package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/telemed/telemed/internal/config"
	"github.com/telemed/telemed/internal/domain/calls"
	"github.com/telemed/telemed/internal/domain/messaging"
	"github.com/telemed/telemed/internal/domain/scheduling"
	"github.com/telemed/telemed/internal/platform/auth"
	"github.com/telemed/telemed/internal/platform/db"
	"github.com/telemed/telemed/internal/platform/middleware"
	"github.com/telemed/telemed/internal/platform/realtime"
	"github.com/telemed/telemed/internal/platform/uploads"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "telemed-server",
		Short: "Telehealth messaging and video call server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API and realtime server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolConfig{
				URL:      cfg.DatabaseURL,
				MaxConns: cfg.DBMaxConns,
				MinConns: cfg.DBMinConns,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolConfig{
				URL:      cfg.DatabaseURL,
				MaxConns: cfg.DBMaxConns,
				MinConns: cfg.DBMinConns,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Token verification, shared by the HTTP middleware and the socket
	// handshake so a token means the same thing on both surfaces.
	verifier := auth.NewHMACVerifier(cfg.JWTAccessSecret)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "database unreachable")
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Authenticated API group
	api := e.Group("/api")
	api.Use(auth.Middleware(verifier))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	// Attachment storage
	store, err := uploads.NewDiskStore(cfg.UploadDir, cfg.ServerURL+"/uploads")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize upload storage")
	}
	uploadsHandler := uploads.NewHandler(store)
	uploadsHandler.RegisterRoutes(api, e)

	// Scheduling domain
	apptRepo := scheduling.NewAppointmentRepoPG(pool)
	schedSvc := scheduling.NewService(apptRepo, logger)
	scheduling.NewHandler(schedSvc).RegisterRoutes(api)

	// Messaging domain
	msgRepo := messaging.NewMessageRepoPG(pool)
	msgSvc := messaging.NewService(msgRepo, schedSvc, logger)
	messaging.NewHandler(msgSvc).RegisterRoutes(api)

	// Calls domain
	callRepo := calls.NewCallLogRepoPG(pool)
	callSvc := calls.NewService(callRepo, schedSvc, logger)
	calls.NewHandler(callSvc).RegisterRoutes(api)

	// Realtime gateway
	registry := realtime.NewMemoryRegistry()
	relay := realtime.NewRelay(msgSvc, registry, logger)
	signaling := realtime.NewSignaling(registry, logger)
	gateway := realtime.NewGateway(verifier, registry, relay, signaling, logger)
	gateway.RegisterRoutes(e)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
