package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/atlanteavila/sovos-tax-plugin/internal"
	"github.com/atlanteavila/sovos-tax-plugin/internal/address"
	"github.com/atlanteavila/sovos-tax-plugin/internal/events"
	"github.com/atlanteavila/sovos-tax-plugin/internal/exemption"
	"github.com/atlanteavila/sovos-tax-plugin/internal/handler"
	"github.com/atlanteavila/sovos-tax-plugin/internal/kv"
	"github.com/atlanteavila/sovos-tax-plugin/internal/middleware"
	"github.com/atlanteavila/sovos-tax-plugin/internal/postgres"
	"github.com/atlanteavila/sovos-tax-plugin/internal/quote"
	"github.com/atlanteavila/sovos-tax-plugin/internal/router"
	"github.com/atlanteavila/sovos-tax-plugin/internal/sovos"
	"github.com/atlanteavila/sovos-tax-plugin/internal/tax"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	// Reference lookups back every port the engine reads from
	lookups := postgres.NewLookups(pool)

	allowlist, err := lookups.LoadAllowlist(ctx)
	if err != nil {
		return fmt.Errorf("failed to load exempt email allowlist: %w", err)
	}
	logger.Info("Exempt email allowlist loaded",
		"emails", len(allowlist.Emails), "domains", len(allowlist.Domains))

	// Session-scoped state: quote cache, quote lock, exemption markers
	store := kv.NewMemoryStore()
	cache := quote.NewCache(store, quote.CacheConfig{
		SharedTTL:    cfg.Quote.SharedCacheTTL,
		PollInterval: cfg.Quote.PollInterval,
		PollAttempts: cfg.Quote.PollAttempts,
	})
	lock := quote.NewLock(store, quote.LockConfig{
		TTL:   cfg.Quote.LockTTL,
		Stale: cfg.Quote.LockStale,
	})
	resolver := exemption.NewResolver(lookups, lookups, allowlist, store)

	// Outbound tax service client
	client, err := sovos.NewHTTPClient(sovos.ClientConfig{
		BaseURL: cfg.Sovos.BaseURL,
		Credentials: sovos.Credentials{
			Username: cfg.Sovos.Username,
			Password: cfg.Sovos.Password,
			HMACKey:  cfg.Sovos.HMACKey,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tax service client: %w", err)
	}

	builder := sovos.NewBuilder(address.NewBasicValidator())
	realloc := tax.NewReallocator(internal.FeeMarkers(), lookups)

	engine, err := tax.NewEngine(tax.EngineDeps{
		Client:  client,
		Builder: builder,
		Cache:   cache,
		Lock:    lock,
		Exempt:  resolver,
		Catalog: lookups,
		States:  lookups,
		Realloc: realloc,
		Tender:  lookups,
		Logger:  logger,
	}, tax.EngineConfig{
		Company: cfg.Sovos.Company,
		Origin:  cfg.Origin,
		Mode:    sovos.ShipmentMode(cfg.Sovos.Mode),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tax engine: %w", err)
	}
	logger.Info("Tax engine initialized",
		"company", cfg.Sovos.Company, "mode", cfg.Sovos.Mode)

	// Optional order-event subscriber
	var subscriber *events.Subscriber
	if cfg.NatsUrl != "" {
		subscriber, err = events.NewSubscriber(cfg.NatsUrl, cache, resolver, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer subscriber.Close()
		if err := subscriber.Start(); err != nil {
			return fmt.Errorf("failed to start event subscriber: %w", err)
		}
	} else {
		logger.Info("NATS_URL not set, order event subscriber disabled")
	}

	// HTTP surface
	metrics := middleware.NewMetrics("")

	r := router.New(
		middleware.RequestID,
		metrics.Middleware,
		middleware.WithRequestLogger(logger),
	)

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.Handler().ServeHTTP(w, req)
	})

	api := handler.NewHandler(engine, logger)
	api.Register(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		logger.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
