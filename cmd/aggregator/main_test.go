package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rickgao/book-aggregator/internal/book"
	"github.com/rickgao/book-aggregator/internal/model"
	"github.com/rickgao/book-aggregator/internal/venue"
)

// stubConnector reports a fixed venue tag and liveness.
type stubConnector struct {
	venue model.Venue
	alive bool
}

func (c *stubConnector) Venue() model.Venue { return c.venue }
func (c *stubConnector) Alive() bool        { return c.alive }
func (c *stubConnector) Stop()              {}

func (c *stubConnector) PullTopOfBook(ctx context.Context, depth int, instrument model.Instrument) ([]model.Level, []model.Level, time.Time, error) {
	return nil, nil, time.Time{}, nil
}

type healthResponse struct {
	Status     string         `json:"status"`
	Components map[string]any `json:"components"`
}

func getHealth(t *testing.T, connectors []venue.Connector, registry *book.Registry) healthResponse {
	t.Helper()

	handler := createHealthHandler(nil, registry, connectors, slog.Default())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var health healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	return health
}

func TestHealthHandler_Healthy(t *testing.T) {
	connectors := []venue.Connector{
		&stubConnector{venue: model.VenueBinance, alive: true},
		&stubConnector{venue: model.VenueDeribit, alive: true},
	}
	registry := book.NewRegistry()
	registry.Insert(book.New(model.BtcUsdt, connectors, slog.Default()))

	health := getHealth(t, connectors, registry)

	if health.Status != "healthy" {
		t.Errorf("status = %q, want healthy", health.Status)
	}

	venues, ok := health.Components["venues"].(map[string]any)
	if !ok {
		t.Fatalf("venues component = %v", health.Components["venues"])
	}
	if venues["binance"] != "alive" || venues["deribit"] != "alive" {
		t.Errorf("venues = %v, want both alive", venues)
	}
	if got := health.Components["books"].(float64); got != 1 {
		t.Errorf("books = %v, want 1", got)
	}

	// No pool was passed, so no database component is reported.
	if _, ok := health.Components["database"]; ok {
		t.Error("unexpected database component without a pool")
	}
}

func TestHealthHandler_DegradedWhenVenueStops(t *testing.T) {
	connectors := []venue.Connector{
		&stubConnector{venue: model.VenueBinance, alive: true},
		&stubConnector{venue: model.VenueDeribit, alive: false},
	}

	health := getHealth(t, connectors, book.NewRegistry())

	if health.Status != "degraded" {
		t.Errorf("status = %q, want degraded", health.Status)
	}
	venues := health.Components["venues"].(map[string]any)
	if venues["deribit"] != "stopped" {
		t.Errorf("deribit = %v, want stopped", venues["deribit"])
	}
}

func TestHealthHandler_DebugBooks(t *testing.T) {
	connectors := []venue.Connector{
		&stubConnector{venue: model.VenueBinance, alive: true},
	}
	registry := book.NewRegistry()
	handle := registry.Insert(book.New(model.EthUsdc, connectors, slog.Default()))

	handler := createHealthHandler(nil, registry, connectors, slog.Default())

	req := httptest.NewRequest("GET", "/debug/books", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp struct {
		Count int `json:"count"`
		Books []struct {
			Handle     uint64   `json:"handle"`
			Instrument string   `json:"instrument"`
			Venues     []string `json:"venues"`
		} `json:"books"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode books response: %v", err)
	}

	if resp.Count != 1 || len(resp.Books) != 1 {
		t.Fatalf("count = %d, books = %d, want 1 each", resp.Count, len(resp.Books))
	}
	if resp.Books[0].Handle != handle {
		t.Errorf("handle = %d, want %d", resp.Books[0].Handle, handle)
	}
	if resp.Books[0].Instrument != "ETH_USDC" {
		t.Errorf("instrument = %q, want ETH_USDC", resp.Books[0].Instrument)
	}
	if len(resp.Books[0].Venues) != 1 || resp.Books[0].Venues[0] != "binance" {
		t.Errorf("venues = %v, want [binance]", resp.Books[0].Venues)
	}
}

func TestVenueURL(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		testnet  bool
		want     string
	}{
		{"explicit wins", "wss://custom", true, "wss://custom"},
		{"testnet", "", true, "wss://test"},
		{"prod", "", false, "wss://prod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := venueURL(tt.explicit, tt.testnet, "wss://prod", "wss://test")
			if got != tt.want {
				t.Errorf("venueURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
