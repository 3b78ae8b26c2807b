package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/app"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/config"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backendstub"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/db"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "staff-portal",
		Short: "Hospital staff portal",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mockBackendCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the staff portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func mockBackendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Serve the hospital API from built-in fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetString("port")
			viewerURL, _ := cmd.Flags().GetString("viewer-url")
			key, _ := cmd.Flags().GetString("signing-key")
			return runMockBackend(port, viewerURL, key)
		},
	}
	cmd.Flags().String("port", "8081", "Port to listen on")
	cmd.Flags().String("viewer-url", "http://localhost:8081/viewer", "Base URL of issued web viewer links")
	cmd.Flags().String("signing-key", "mock-backend-signing-key", "HS256 key for issued bearer tokens")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres session schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
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
			})
		},
	})

	return cmd
}

func withMigrator(fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool))
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	sessions, err := app.OpenSessions(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.SessionBackend).Msg("failed to open session store")
	}
	defer sessions.Close()
	logger.Info().Str("backend", cfg.SessionBackend).Msg("session store ready")

	e, err := app.New(cfg, sessions, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	return serve(e, cfg.Port, cfg.TLSEnabled, cfg.TLSCertFile, cfg.TLSKeyFile, logger)
}

func runMockBackend(port, viewerURL, signingKey string) error {
	logger := newLogger().With().Str("component", "mock-backend").Logger()

	cfg := backendstub.DefaultConfig()
	cfg.ViewerBaseURL = viewerURL
	cfg.SigningKey = []byte(signingKey)
	stub := backendstub.New(cfg, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	stub.RegisterRoutes(e.Group("/api"))
	stub.RegisterViewer(e, "/viewer")

	return serve(e, port, false, "", "", logger)
}

// serve runs e until SIGINT or SIGTERM, then shuts down gracefully.
func serve(e *echo.Echo, port string, tls bool, certFile, keyFile string, logger zerolog.Logger) error {
	go func() {
		addr := ":" + port
		logger.Info().Str("addr", addr).Bool("tls", tls).Msg("starting server")
		var err error
		if tls {
			err = e.StartTLS(addr, certFile, keyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
