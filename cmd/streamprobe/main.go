// streamprobe connects to a single venue and prints aggregated book
// snapshots to the console.
// Usage: go run ./cmd/streamprobe --venue binance --instrument BTC_USDT
//
// Deribit requires environment variables (also read from a .env file):
//
//	DERIBIT_CLIENT_ID - Deribit API client id
//	DERIBIT_API_KEY   - Deribit API client secret
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/book-aggregator/internal/book"
	"github.com/rickgao/book-aggregator/internal/model"
	"github.com/rickgao/book-aggregator/internal/venue"
	"github.com/rickgao/book-aggregator/internal/venue/binance"
	"github.com/rickgao/book-aggregator/internal/venue/deribit"
)

func main() {
	venueName := flag.String("venue", "binance", "venue to probe (binance or deribit)")
	instrumentName := flag.String("instrument", "BTC_USDT", "instrument to pull")
	depth := flag.Int("depth", 10, "levels per side")
	interval := flag.Duration("interval", 2*time.Second, "pull interval")
	testnet := flag.Bool("testnet", false, "use the venue's test endpoint")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	instrument, ok := model.ParseInstrument(*instrumentName)
	if !ok {
		logger.Error("unknown instrument", "instrument", *instrumentName)
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	conn, err := connect(ctx, *venueName, *testnet, logger)
	if err != nil {
		logger.Error("failed to connect", "venue", *venueName, "error", err)
		os.Exit(1)
	}
	defer conn.Stop()

	b := book.NewWithDepth(instrument, []venue.Connector{conn}, *depth, logger)

	logger.Info("probing started - press Ctrl+C to stop",
		"venue", *venueName,
		"instrument", instrument.String(),
	)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("probe stopped")
			return
		case <-ticker.C:
			if err := b.Refresh(ctx); err != nil {
				logger.Error("refresh failed", "error", err)
				continue
			}
			fmt.Println(b.Snapshot())
		}
	}
}

func connect(ctx context.Context, venueName string, testnet bool, logger *slog.Logger) (venue.Connector, error) {
	switch venueName {
	case "binance":
		cfg := binance.DefaultConfig()
		if testnet {
			cfg.URL = binance.TestURL
		}
		return binance.Connect(ctx, cfg, logger)

	case "deribit":
		creds := venue.Credentials{
			ClientID:     os.Getenv("DERIBIT_CLIENT_ID"),
			ClientSecret: os.Getenv("DERIBIT_API_KEY"),
		}
		if creds.ClientID == "" || creds.ClientSecret == "" {
			return nil, fmt.Errorf("DERIBIT_CLIENT_ID or DERIBIT_API_KEY not set")
		}
		cfg := deribit.DefaultConfig()
		if testnet {
			cfg.URL = deribit.TestURL
		}
		return deribit.Connect(ctx, cfg, creds, logger)

	default:
		return nil, fmt.Errorf("unknown venue %q", venueName)
	}
}
