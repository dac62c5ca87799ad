package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/events"
	"github.com/medflow/pharmacy-inventory/internal/inventory/handler"
	"github.com/medflow/pharmacy-inventory/internal/inventory/migrations"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/internal/inventory/service"
	"github.com/medflow/pharmacy-inventory/pkg/actor"
	"github.com/medflow/pharmacy-inventory/pkg/config"
	"github.com/medflow/pharmacy-inventory/pkg/database"
	"github.com/medflow/pharmacy-inventory/pkg/httputil"
	"github.com/medflow/pharmacy-inventory/pkg/i18n"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
	"github.com/medflow/pharmacy-inventory/pkg/messaging"
)

const serviceName = "pharmacy-inventory-service"

func main() {
	// Fails fast in production if required config is missing
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Pharmacy Inventory Service")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.AutoMigrate {
		if err := migrations.Run(ctx, db, log); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	// RabbitMQ is optional; without it events are dropped
	var rmq *messaging.RabbitMQ
	var publisher *events.InventoryEventPublisher
	if cfg.RabbitMQ.Enabled() {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = events.NewInventoryEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	} else {
		log.Warn().Msg("RabbitMQ not configured, inventory events are disabled")
	}

	classifier := domain.NewExpiryClassifier(cfg.Inventory.NearExpiryDays)

	// Repositories
	locationRepo := repository.NewLocationRepository(db)
	shelfRepo := repository.NewShelfRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)

	// Services
	services := handler.Services{
		Locations:   service.NewLocationService(db, locationRepo, log),
		Shelves:     service.NewShelfService(db, shelfRepo, locationRepo, log),
		Batches:     service.NewBatchService(db, batchRepo, locationRepo, allocationRepo, classifier, publisher, log),
		Allocations: service.NewAllocationService(db, batchRepo, shelfRepo, allocationRepo, publisher, log),
		Dispense:    service.NewDispenseService(locationRepo, allocationRepo, classifier, log),
		StockLevels: service.NewStockLevelService(batchRepo, locationRepo, log),
	}
	handlers := handler.New(services, handler.Paging{
		Default: cfg.Inventory.DefaultPageSize,
		Max:     cfg.Inventory.MaxPageSize,
	}, log)

	var scheduler *service.ScanScheduler
	if cfg.Inventory.ExpiryScanInterval > 0 {
		scanner := service.NewExpiryScanner(batchRepo, allocationRepo, classifier, publisher, log)
		scheduler = service.NewScanScheduler(scanner, cfg.Inventory.ExpiryScanInterval, log)
		scheduler.Start(ctx)
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(actor.Middleware)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           cfg.CORS.MaxAge,
	}))
	r.Use(i18n.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, status)
	})

	r.Route("/api/v1/inventory", handlers.Routes)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	if scheduler != nil {
		scheduler.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
