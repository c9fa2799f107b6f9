// Package binance implements the venue connector for Binance's WebSocket
// API. Binance frames requests in a flat {id, method, params} envelope with
// string-encoded ids and answers server-originated JSON pings in kind.
package binance

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rickgao/book-aggregator/internal/connection"
	"github.com/rickgao/book-aggregator/internal/model"
	"github.com/rickgao/book-aggregator/internal/venue"
)

// WebSocket API endpoints.
const (
	ProdURL = "wss://ws-api.binance.com:9443/ws-api/v3"
	TestURL = "wss://testnet.binance.vision/ws-api/v3"
)

// MaxDepth is the deepest book Binance serves per side.
const MaxDepth = 5000

// Config configures a Binance connector.
type Config struct {
	URL          string        // WebSocket URL (empty = ProdURL)
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Frame channel buffer size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:          ProdURL,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// Connector is a live Binance session. Binance requires no authentication
// for market data; the only session maintenance is answering server pings.
type Connector struct {
	client  connection.Client
	logger  *slog.Logger
	pending *venue.PendingTable
	ids     *venue.IDCounter
	alive   atomic.Bool
}

// envelope is the flat request/response framing Binance uses. Ids are
// strings on the wire even though the program allocates them numerically.
type envelope struct {
	ID     string          `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Connect establishes the streaming session and starts the session loop.
// Failures are reported, not retried.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = ProdURL
	}

	client := connection.NewClient(connection.ClientConfig{
		URL:          cfg.URL,
		WriteTimeout: cfg.WriteTimeout,
		BufferSize:   cfg.BufferSize,
	}, logger.With("venue", model.VenueBinance))

	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	c := &Connector{
		client:  client,
		logger:  logger.With("venue", model.VenueBinance),
		pending: venue.NewPendingTable(),
		ids:     venue.NewIDCounter(),
	}
	c.alive.Store(true)

	go c.sessionLoop()

	c.logger.Info("binance session established", "url", cfg.URL)

	return c, nil
}

// Venue identifies this connector.
func (c *Connector) Venue() model.Venue {
	return model.VenueBinance
}

// Stop clears the liveness flag. The session loop observes it at its next
// iteration boundary and closes the connection.
func (c *Connector) Stop() {
	c.alive.Store(false)
}

// Alive reports whether the session loop is still running.
func (c *Connector) Alive() bool {
	return c.alive.Load()
}

// sessionLoop reads frames until the liveness flag clears or the transport
// fails. Each frame is dispatched by shape: server ping, correlated
// response, or noise.
func (c *Connector) sessionLoop() {
	defer c.client.Close()

	for c.alive.Load() {
		select {
		case err := <-c.client.Errors():
			// Transport failure is fatal to this connector instance;
			// outstanding requests time out and no reconnect is attempted.
			c.logger.Error("transport error, session terminating", "error", err)
			c.alive.Store(false)
			return

		case msg, ok := <-c.client.Messages():
			if !ok {
				c.logger.Warn("message channel closed")
				c.alive.Store(false)
				return
			}
			c.handleFrame(msg.Data)
		}
	}

	c.logger.Info("session loop shutting down gracefully")
}

// handleFrame dispatches one inbound frame. Decode errors here are logged
// and skipped; unsolicited stream noise must not kill the session.
func (c *Connector) handleFrame(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("skipping undecodable frame", "error", err)
		return
	}

	if env.Method == "ping" {
		if err := c.sendPong(env.ID); err != nil {
			c.logger.Error("failed to answer ping", "error", err)
			return
		}
		c.logger.Debug("answered server ping", "id", env.ID)
		return
	}

	if id, err := strconv.ParseUint(env.ID, 10, 64); err == nil {
		c.pending.Store(id, data)
		c.logger.Debug("stored correlated response", "id", id)
		return
	}

	c.logger.Debug("discarding frame with no usable id", "len", len(data))
}

// sendPong answers a server ping, echoing its identifier.
func (c *Connector) sendPong(id string) error {
	msg, err := json.Marshal(envelope{ID: id, Method: "pong"})
	if err != nil {
		return err
	}
	return c.client.Send(msg)
}

// instrumentName maps an instrument to Binance's symbol convention.
func instrumentName(instrument model.Instrument) string {
	switch instrument {
	case model.BtcUsdt:
		return "BTCUSDT"
	case model.EthUsdc:
		return "ETHUSDC"
	case model.EthBtc:
		return "ETHBTC"
	default:
		return ""
	}
}
