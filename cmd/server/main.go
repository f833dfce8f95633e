package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Clanvaro/unigrc-m-production-sub010/internal/client"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/config"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/database"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/handler"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/repository"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/service"
	"github.com/Clanvaro/unigrc-m-production-sub010/internal/worker"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the UniGRC approvals and audit-prioritization service",
		RunE:  runServer,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "",
		"Path to an optional YAML config file (environment variables override it)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", cfg.Service.Name).
		Logger()

	log.Info().
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting approvals service")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		DSN:         cfg.Database.DSN(),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnLife: cfg.Database.MaxConnLife,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// NATS is optional; the publisher treats a nil connection as disabled.
	var natsConn *nats.Conn
	if cfg.NATS.Enabled {
		natsConn, err = nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		defer natsConn.Drain()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	}
	notifier := client.NewNotificationPublisher(natsConn, log)

	// Repositories
	factorRepo := repository.NewPrioritizationRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	escalationRepo := repository.NewEscalationRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Services
	scoringSvc := service.NewScoringService(factorRepo, cfg.Scoring, log)
	approvalSvc := service.NewApprovalService(approvalRepo, auditRepo, notifier, log)
	escalationSvc := service.NewEscalationService(approvalRepo, approvalSvc, cfg.SLA, log)
	dashboardSvc := service.NewDashboardService(approvalRepo, escalationRepo, cfg.SLA, cfg.Dashboard.TrendDays)

	// Background SLA sweep
	escalationWorker := worker.NewEscalationWorker(escalationSvc, cfg.Worker.EscalationInterval, log)
	go escalationWorker.Run(ctx)

	// HTTP server
	httpHandler := handler.NewHTTPHandler(scoringSvc, approvalSvc, dashboardSvc, db)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(handler.RequestLogger(&log))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))
	httpHandler.Routes(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-quit:
	}

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
		return httpServer.Close()
	}

	log.Info().Msg("Server stopped")
	return nil
}
