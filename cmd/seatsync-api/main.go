// Package main is the entry point for the seatsync-api server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/seatsync/seatsync-api/internal/config"
	"github.com/seatsync/seatsync-api/internal/database"
	"github.com/seatsync/seatsync-api/internal/http/handlers"
	"github.com/seatsync/seatsync-api/internal/http/mw"
	"github.com/seatsync/seatsync-api/internal/logging"
	"github.com/seatsync/seatsync-api/internal/provider"
	"github.com/seatsync/seatsync-api/internal/repository"
	"github.com/seatsync/seatsync-api/internal/service"
	"github.com/seatsync/seatsync-api/internal/version"
	"github.com/seatsync/seatsync-api/internal/worker"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting seatsync-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	schemaVersion, err := database.GetLatestSchemaVersion(db)
	if err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		migrationCount, _ := database.GetMigrationCount(db)
		logger.Info("database schema ready", "schema_version", schemaVersion, "migrations_applied", migrationCount)
	}

	repos := repository.NewRepositories(db)

	var gateway provider.SubscriptionGateway
	if cfg.StripeSecretKey != "" {
		gateway = provider.NewStripeGateway(cfg.StripeSecretKey, cfg.ProviderTimeout)
		logger.Info("stripe gateway enabled", "timeout", cfg.ProviderTimeout.String())
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set - provider sync disabled")
	}

	services := service.NewServices(cfg, repos, gateway, logger)

	// Monthly proration batch
	var prorationWorker *worker.ProrationWorker
	if cfg.ProrationEnabled {
		prorationWorker = worker.NewProrationWorker(repos, services.SeatChange, services.Flags, nil, cfg.ProrationSchedule, logger)
		if err := prorationWorker.Start(); err != nil {
			logger.Error("failed to start proration worker", "error", err)
			os.Exit(1)
		}
	}

	// Create router
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (1MB) - prevent large payload attacks
	router.Use(middleware.RequestSize(1 * 1024 * 1024))

	// Global rate limit by IP
	router.Use(httprate.LimitByIP(100, time.Minute))

	humaConfig := huma.DefaultConfig("SeatSync API", version.Version)
	humaConfig.Info.Description = "Seat billing reconciliation engine: keeps provider subscription quantities aligned with membership rosters."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {
			Type:        "http",
			Scheme:      "bearer",
			Description: "Static API key authentication. Include the shared key in the Authorization header.",
		},
	}

	api := humachi.New(router, humaConfig)

	// Health check (public)
	huma.Get(api, "/api/v1/health", handlers.HealthCheck)

	// Stripe webhook (signature verified by handler, not user auth)
	stripeWebhook := handlers.NewStripeWebhookHandler(cfg, services, logger)
	router.Post("/api/v1/webhooks/stripe", stripeWebhook.HandleWebhook)

	// Config for protected routes (docs are served by the main API)
	protectedConfig := huma.DefaultConfig("SeatSync API", version.Version)
	protectedConfig.Info.Description = humaConfig.Info.Description
	protectedConfig.Servers = humaConfig.Servers
	protectedConfig.DocsPath = ""
	protectedConfig.OpenAPIPath = ""
	protectedConfig.SchemasPath = ""

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(mw.APIKeyAuth(cfg.APIKey))

		protectedAPI := humachi.New(r, protectedConfig)

		// Roster mutations drive the reconciliation engine
		membersHandler := handlers.NewMembersHandler(repos, services, logger)
		huma.Post(protectedAPI, "/api/v1/entities/{entityId}/members", membersHandler.AddMember)
		huma.Delete(protectedAPI, "/api/v1/entities/{entityId}/members/{userId}", membersHandler.RemoveMember)

		// Seat change audit log
		seatChangesHandler := handlers.NewSeatChangesHandler(services.SeatChange, logger)
		huma.Get(protectedAPI, "/api/v1/entities/{entityId}/seat-changes", seatChangesHandler.GetMonthlyChanges)
		huma.Get(protectedAPI, "/api/v1/entities/{entityId}/seat-changes/unprocessed", seatChangesHandler.GetUnprocessedChanges)
		huma.Post(protectedAPI, "/api/v1/entities/{entityId}/seat-changes/process", seatChangesHandler.MarkProcessed)

		// Operational endpoints
		adminHandler := handlers.NewAdminHandler(repos, services, logger)
		huma.Get(protectedAPI, "/api/v1/admin/flags/{name}", adminHandler.GetFlag)
		huma.Put(protectedAPI, "/api/v1/admin/flags/{name}", adminHandler.SetFlag)
		huma.Get(protectedAPI, "/api/v1/admin/entities/{entityId}/billing-config", adminHandler.GetBillingConfig)
		huma.Put(protectedAPI, "/api/v1/admin/entities/{entityId}/billing-config", adminHandler.UpsertBillingConfig)
		huma.Post(protectedAPI, "/api/v1/admin/teams", adminHandler.CreateTeam)
		huma.Get(protectedAPI, "/api/v1/admin/proration-runs", adminHandler.ListProrationRuns)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		if prorationWorker != nil {
			prorationWorker.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
