// Package config loads and validates the aggregator's YAML configuration.
package config

import "time"

// AggregatorConfig is the root configuration for an aggregator instance.
type AggregatorConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Venues   VenuesConfig   `yaml:"venues"`
	Books    BooksConfig    `yaml:"books"`
	Sampler  SamplerConfig  `yaml:"sampler"`
	Database DatabaseConfig `yaml:"database"`
	Writer   WriterConfig   `yaml:"writer"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this aggregator.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// VenuesConfig holds per-venue connection settings.
type VenuesConfig struct {
	Binance BinanceConfig `yaml:"binance"`
	Deribit DeribitConfig `yaml:"deribit"`
}

// BinanceConfig holds Binance connector settings. Binance needs no
// credentials for market data.
type BinanceConfig struct {
	Enabled      bool          `yaml:"enabled"`
	WSURL        string        `yaml:"ws_url"`
	UseTestnet   bool          `yaml:"use_testnet"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
}

// DeribitConfig holds Deribit connector settings. Credentials come from
// the environment, not this file.
type DeribitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	WSURL             string        `yaml:"ws_url"`
	UseTestnet        bool          `yaml:"use_testnet"`
	HeartbeatInterval int           `yaml:"heartbeat_interval"` // seconds
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	BufferSize        int           `yaml:"buffer_size"`
}

// BooksConfig selects which instruments get an aggregated book and how
// deep each refresh pulls.
type BooksConfig struct {
	Instruments []string `yaml:"instruments"`
	Depth       int      `yaml:"depth"`
}

// SamplerConfig holds the periodic refresh loop settings.
type SamplerConfig struct {
	Interval        time.Duration `yaml:"interval"`
	Concurrency     int           `yaml:"concurrency"`
	HistoryCapacity int           `yaml:"history_capacity"`
}

// DatabaseConfig holds the optional metrics-history database. When
// disabled, samples stay in memory only.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WriterConfig holds batch writer settings for metrics history.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
