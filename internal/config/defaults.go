package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWriteTimeout      = 5 * time.Second
	DefaultBufferSize        = 1000
	DefaultHeartbeatInterval = 30
	DefaultBookDepth         = 10
	DefaultSampleInterval    = 1 * time.Second
	DefaultSampleConcurrency = 4
	DefaultHistoryCapacity   = 100000
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultBatchSize         = 500
	DefaultFlushInterval     = 1 * time.Second
	DefaultHealthPort        = 8080
)

func (c *AggregatorConfig) applyDefaults() {
	// Venue defaults
	if c.Venues.Binance.WriteTimeout == 0 {
		c.Venues.Binance.WriteTimeout = DefaultWriteTimeout
	}
	if c.Venues.Binance.BufferSize == 0 {
		c.Venues.Binance.BufferSize = DefaultBufferSize
	}
	if c.Venues.Deribit.WriteTimeout == 0 {
		c.Venues.Deribit.WriteTimeout = DefaultWriteTimeout
	}
	if c.Venues.Deribit.BufferSize == 0 {
		c.Venues.Deribit.BufferSize = DefaultBufferSize
	}
	if c.Venues.Deribit.HeartbeatInterval == 0 {
		c.Venues.Deribit.HeartbeatInterval = DefaultHeartbeatInterval
	}

	// Books defaults
	if c.Books.Depth == 0 {
		c.Books.Depth = DefaultBookDepth
	}

	// Sampler defaults
	if c.Sampler.Interval == 0 {
		c.Sampler.Interval = DefaultSampleInterval
	}
	if c.Sampler.Concurrency == 0 {
		c.Sampler.Concurrency = DefaultSampleConcurrency
	}
	if c.Sampler.HistoryCapacity == 0 {
		c.Sampler.HistoryCapacity = DefaultHistoryCapacity
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}
