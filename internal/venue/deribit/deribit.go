// Package deribit implements the venue connector for Deribit's JSON-RPC 2.0
// WebSocket API. The session authenticates with client credentials at
// connect time, negotiates a heartbeat, answers every server heartbeat with
// a liveness probe, and re-authenticates in the background via the refresh
// token before it expires.
package deribit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/book-aggregator/internal/connection"
	"github.com/rickgao/book-aggregator/internal/model"
	"github.com/rickgao/book-aggregator/internal/venue"
)

// WebSocket API endpoints.
const (
	ProdURL = "wss://www.deribit.com/ws/api/v2"
	TestURL = "wss://test.deribit.com/ws/api/v2"
)

// Reserved correlation ids for fixed protocol traffic. Data requests draw
// from the shared counter, which starts above these.
const (
	authID           = 9929
	heartbeatSetupID = 9098
	heartbeatReplyID = 8212
)

const (
	// tokenSafetyMargin is subtracted from the advertised token validity
	// so re-auth happens comfortably before real expiry.
	tokenSafetyMargin = 240 * time.Second

	// defaultTokenValidity stands in when the auth response omits
	// expires_in.
	defaultTokenValidity = 540 * time.Second

	// refreshCheckInterval is how often the background loop wakes to
	// check whether the token needs refreshing.
	refreshCheckInterval = 150 * time.Second
)

// Config configures a Deribit connector.
type Config struct {
	URL               string        // WebSocket URL (empty = ProdURL)
	HeartbeatInterval int           // Heartbeat interval negotiated at connect, in seconds
	WriteTimeout      time.Duration // Write deadline for sends
	BufferSize        int           // Frame channel buffer size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:               ProdURL,
		HeartbeatInterval: 30,
		WriteTimeout:      5 * time.Second,
		BufferSize:        1000,
	}
}

// Connector is a live authenticated Deribit session.
type Connector struct {
	client  connection.Client
	logger  *slog.Logger
	pending *venue.PendingTable
	ids     *venue.IDCounter
	alive   atomic.Bool
	creds   venue.Credentials

	// Credential state captured from auth responses, shared between the
	// session loop (writer) and the refresh loop (reader).
	tokenMu      sync.Mutex
	refreshToken string
	tokenExpiry  time.Time
}

// request is the JSON-RPC 2.0 envelope for outbound messages.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// response is the JSON-RPC 2.0 envelope for inbound messages. Server
// notifications carry a method and no id.
type response struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
}

// authResult is the payload of an auth response.
type authResult struct {
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

// Connect establishes the streaming session, performs the credential
// handshake, negotiates the heartbeat, and starts the session and refresh
// loops. Failures are reported, not retried.
func Connect(ctx context.Context, cfg Config, creds venue.Credentials, logger *slog.Logger) (*Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = ProdURL
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30
	}

	client := connection.NewClient(connection.ClientConfig{
		URL:          cfg.URL,
		WriteTimeout: cfg.WriteTimeout,
		BufferSize:   cfg.BufferSize,
	}, logger.With("venue", model.VenueDeribit))

	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	c := &Connector{
		client:  client,
		logger:  logger.With("venue", model.VenueDeribit),
		pending: venue.NewPendingTable(),
		ids:     venue.NewIDCounter(),
		creds:   creds,
	}
	c.alive.Store(true)

	if err := c.sendAuth(); err != nil {
		client.Close()
		return nil, err
	}
	if err := c.sendHeartbeatSetup(cfg.HeartbeatInterval); err != nil {
		client.Close()
		return nil, err
	}

	go c.sessionLoop()
	go c.refreshLoop()

	c.logger.Info("deribit session established",
		"url", cfg.URL,
		"heartbeat_interval", cfg.HeartbeatInterval,
	)

	return c, nil
}

// Venue identifies this connector.
func (c *Connector) Venue() model.Venue {
	return model.VenueDeribit
}

// Stop clears the liveness flag. The session and refresh loops observe it
// at their next iteration boundary.
func (c *Connector) Stop() {
	c.alive.Store(false)
}

// Alive reports whether the session loop is still running.
func (c *Connector) Alive() bool {
	return c.alive.Load()
}

// sendAuth performs the client-credentials handshake. The response lands
// on the session loop under the reserved auth id.
func (c *Connector) sendAuth() error {
	return c.send(request{
		JSONRPC: "2.0",
		ID:      authID,
		Method:  "public/auth",
		Params: map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     c.creds.ClientID,
			"client_secret": c.creds.ClientSecret,
		},
	})
}

// sendHeartbeatSetup negotiates the server heartbeat interval.
func (c *Connector) sendHeartbeatSetup(interval int) error {
	return c.send(request{
		JSONRPC: "2.0",
		ID:      heartbeatSetupID,
		Method:  "public/set_heartbeat",
		Params:  map[string]int{"interval": interval},
	})
}

// sendHeartbeatReply answers a server heartbeat with a liveness probe.
func (c *Connector) sendHeartbeatReply() error {
	return c.send(request{
		JSONRPC: "2.0",
		ID:      heartbeatReplyID,
		Method:  "public/test",
		Params:  map[string]string{},
	})
}

func (c *Connector) send(req request) error {
	msg, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.client.Send(msg)
}

// sessionLoop reads frames until the liveness flag clears or the transport
// fails, dispatching each by shape.
func (c *Connector) sessionLoop() {
	defer c.client.Close()

	for c.alive.Load() {
		select {
		case err := <-c.client.Errors():
			// Fatal to this connector instance; no reconnect.
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
// and skipped.
func (c *Connector) handleFrame(data []byte) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("skipping undecodable frame", "error", err)
		return
	}

	switch {
	case resp.ID == authID:
		if err := c.updateAuthTokens(resp.Result); err != nil {
			c.logger.Error("failed to capture auth tokens", "error", err)
		}

	case resp.Method == "heartbeat":
		if err := c.sendHeartbeatReply(); err != nil {
			c.logger.Error("failed to answer heartbeat", "error", err)
		} else {
			c.logger.Debug("answered server heartbeat")
		}

	case resp.ID == heartbeatReplyID:
		c.logger.Debug("heartbeat probe acknowledged")

	case resp.ID != 0:
		c.pending.Store(resp.ID, data)
		c.logger.Debug("stored correlated response", "id", resp.ID)

	default:
		c.logger.Debug("discarding frame with no usable id", "len", len(data))
	}
}

// updateAuthTokens captures the refresh token and its expiry, minus the
// safety margin, from an auth response.
func (c *Connector) updateAuthTokens(result json.RawMessage) error {
	var auth authResult
	if err := json.Unmarshal(result, &auth); err != nil {
		return &venue.DecodeError{Venue: model.VenueDeribit, Cause: err}
	}

	validity := defaultTokenValidity
	if auth.ExpiresIn > 0 {
		validity = time.Duration(auth.ExpiresIn) * time.Second
	}

	c.tokenMu.Lock()
	c.refreshToken = auth.RefreshToken
	c.tokenExpiry = time.Now().Add(validity - tokenSafetyMargin)
	c.tokenMu.Unlock()

	c.logger.Info("auth tokens updated", "refresh_due", validity-tokenSafetyMargin)
	return nil
}

// refreshLoop wakes on a fixed interval and re-authenticates via the
// refresh token once the remaining validity falls inside the safety
// margin. It runs until the liveness flag clears.
func (c *Connector) refreshLoop() {
	ticker := time.NewTicker(refreshCheckInterval)
	defer ticker.Stop()

	for c.alive.Load() {
		<-ticker.C

		c.tokenMu.Lock()
		token := c.refreshToken
		expiry := c.tokenExpiry
		c.tokenMu.Unlock()

		if token == "" {
			continue
		}

		if time.Now().Before(expiry) {
			c.logger.Debug("auth token still valid", "expiry", expiry)
			continue
		}

		err := c.send(request{
			JSONRPC: "2.0",
			ID:      authID,
			Method:  "public/auth",
			Params: map[string]string{
				"grant_type":    "refresh_token",
				"refresh_token": token,
			},
		})
		if err != nil {
			c.logger.Error("failed to send re-auth request", "error", err)
		} else {
			c.logger.Info("re-auth requested via refresh token")
		}
	}
}

// instrumentName maps an instrument to Deribit's naming convention.
func instrumentName(instrument model.Instrument) string {
	switch instrument {
	case model.BtcUsdt:
		return "BTC_USDT"
	case model.EthUsdc:
		return "ETH_USDC"
	case model.EthBtc:
		return "ETH_BTC"
	default:
		return ""
	}
}
