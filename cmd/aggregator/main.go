// aggregator runs the multi-venue order book aggregation service.
// Usage: go run ./cmd/aggregator --config configs/aggregator.local.yaml
//
// Optional environment variables (also read from a .env file):
//
//	DERIBIT_CLIENT_ID - Deribit API client id
//	DERIBIT_API_KEY   - Deribit API client secret
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/rickgao/book-aggregator/internal/book"
	"github.com/rickgao/book-aggregator/internal/config"
	"github.com/rickgao/book-aggregator/internal/database"
	"github.com/rickgao/book-aggregator/internal/model"
	"github.com/rickgao/book-aggregator/internal/sampler"
	"github.com/rickgao/book-aggregator/internal/venue"
	"github.com/rickgao/book-aggregator/internal/venue/binance"
	"github.com/rickgao/book-aggregator/internal/venue/deribit"
	"github.com/rickgao/book-aggregator/internal/version"
	"github.com/rickgao/book-aggregator/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/aggregator.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting aggregator",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// A missing .env file is fine; credentials may come from the real
	// environment.
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"instruments", cfg.Books.Instruments,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database and start the metrics writer when history
	// persistence is enabled.
	var db *pgxpool.Pool
	var metricsWriter *writer.MetricsWriter
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		db, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		logger.Info("database connected")

		metricsWriter = writer.NewMetricsWriter(cfg.Writer, db, logger)
		if err := metricsWriter.Start(ctx); err != nil {
			logger.Error("failed to start metrics writer", "error", err)
			os.Exit(1)
		}
	}

	// Connect venues
	connectors, err := connectVenues(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect venues", "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, c := range connectors {
			c.Stop()
		}
	}()

	// Build one aggregated book per configured instrument
	registry := book.NewRegistry()
	for _, name := range cfg.Books.Instruments {
		instrument, ok := model.ParseInstrument(name)
		if !ok {
			logger.Error("unknown instrument in config", "instrument", name)
			os.Exit(1)
		}
		b := book.NewWithDepth(instrument, connectors, cfg.Books.Depth, logger)
		handle := registry.Insert(b)
		logger.Info("book registered", "instrument", instrument.String(), "handle", handle)
	}

	// Start the sampler
	var handler sampler.SampleHandler
	if metricsWriter != nil {
		handler = metricsWriter
	}
	smp := sampler.New(sampler.Config{
		Interval:        cfg.Sampler.Interval,
		Concurrency:     cfg.Sampler.Concurrency,
		HistoryCapacity: cfg.Sampler.HistoryCapacity,
	}, registry, handler, logger)

	if err := smp.Start(ctx); err != nil {
		logger.Error("failed to start sampler", "error", err)
		os.Exit(1)
	}

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(db, registry, connectors, logger),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("aggregator running",
		"instance_id", cfg.Instance.ID,
		"books", registry.Len(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	healthServer.Shutdown(shutdownCtx)
	smp.Stop(shutdownCtx)
	if metricsWriter != nil {
		metricsWriter.Stop(shutdownCtx)
	}

	logger.Info("aggregator stopped")
}

// connectVenues establishes a session with every enabled venue.
func connectVenues(ctx context.Context, cfg *config.AggregatorConfig, logger *slog.Logger) ([]venue.Connector, error) {
	var connectors []venue.Connector

	if cfg.Venues.Binance.Enabled {
		bcfg := binance.DefaultConfig()
		bcfg.URL = venueURL(cfg.Venues.Binance.WSURL, cfg.Venues.Binance.UseTestnet, binance.ProdURL, binance.TestURL)
		if cfg.Venues.Binance.WriteTimeout > 0 {
			bcfg.WriteTimeout = cfg.Venues.Binance.WriteTimeout
		}
		if cfg.Venues.Binance.BufferSize > 0 {
			bcfg.BufferSize = cfg.Venues.Binance.BufferSize
		}

		conn, err := binance.Connect(ctx, bcfg, logger)
		if err != nil {
			return nil, fmt.Errorf("binance: %w", err)
		}
		connectors = append(connectors, conn)
	}

	if cfg.Venues.Deribit.Enabled {
		creds := venue.Credentials{
			ClientID:     os.Getenv("DERIBIT_CLIENT_ID"),
			ClientSecret: os.Getenv("DERIBIT_API_KEY"),
		}
		if creds.ClientID == "" || creds.ClientSecret == "" {
			return nil, fmt.Errorf("deribit enabled but DERIBIT_CLIENT_ID or DERIBIT_API_KEY not set")
		}

		dcfg := deribit.DefaultConfig()
		dcfg.URL = venueURL(cfg.Venues.Deribit.WSURL, cfg.Venues.Deribit.UseTestnet, deribit.ProdURL, deribit.TestURL)
		if cfg.Venues.Deribit.HeartbeatInterval > 0 {
			dcfg.HeartbeatInterval = cfg.Venues.Deribit.HeartbeatInterval
		}
		if cfg.Venues.Deribit.WriteTimeout > 0 {
			dcfg.WriteTimeout = cfg.Venues.Deribit.WriteTimeout
		}
		if cfg.Venues.Deribit.BufferSize > 0 {
			dcfg.BufferSize = cfg.Venues.Deribit.BufferSize
		}

		conn, err := deribit.Connect(ctx, dcfg, creds, logger)
		if err != nil {
			return nil, fmt.Errorf("deribit: %w", err)
		}
		connectors = append(connectors, conn)
	}

	if len(connectors) == 0 {
		return nil, fmt.Errorf("no venues enabled")
	}

	return connectors, nil
}

// venueURL resolves the WebSocket URL for a venue. An explicit URL wins;
// otherwise the testnet flag selects between the well-known endpoints.
func venueURL(explicit string, testnet bool, prod, test string) string {
	if explicit != "" {
		return explicit
	}
	if testnet {
		return test
	}
	return prod
}

// aliveReporter is the view of a connector the health endpoint needs.
type aliveReporter interface {
	Venue() model.Venue
	Alive() bool
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(db *pgxpool.Pool, registry *book.Registry, connectors []venue.Connector, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		// Check venue sessions
		venues := make(map[string]string)
		for _, c := range connectors {
			rep, ok := c.(aliveReporter)
			if !ok {
				continue
			}
			if rep.Alive() {
				venues[string(rep.Venue())] = "alive"
			} else {
				venues[string(rep.Venue())] = "stopped"
				health.Status = "degraded"
			}
		}
		health.Components["venues"] = venues
		health.Components["books"] = registry.Len()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/books", func(w http.ResponseWriter, r *http.Request) {
		type bookInfo struct {
			Handle     uint64   `json:"handle"`
			Instrument string   `json:"instrument"`
			Venues     []string `json:"venues"`
			LastUpdate string   `json:"last_update"`
		}

		var books []bookInfo
		for _, handle := range registry.Handles() {
			b, ok := registry.Get(handle)
			if !ok {
				continue
			}
			venues := make([]string, 0)
			for _, v := range b.Venues() {
				venues = append(venues, string(v))
			}
			books = append(books, bookInfo{
				Handle:     handle,
				Instrument: b.Instrument().String(),
				Venues:     venues,
				LastUpdate: b.LastUpdateTime().Format(time.RFC3339Nano),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count": registry.Len(),
			"books": books,
		})
	})

	return mux
}
