package config

import (
	"errors"
	"fmt"

	"github.com/rickgao/book-aggregator/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *AggregatorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if !c.Venues.Binance.Enabled && !c.Venues.Deribit.Enabled {
		return errors.New("at least one venue must be enabled")
	}

	if len(c.Books.Instruments) == 0 {
		return errors.New("books.instruments must name at least one instrument")
	}
	for _, name := range c.Books.Instruments {
		if _, ok := model.ParseInstrument(name); !ok {
			return fmt.Errorf("books.instruments: unknown instrument %q", name)
		}
	}
	if c.Books.Depth < 1 {
		return errors.New("books.depth must be >= 1")
	}

	if c.Sampler.Concurrency < 1 {
		return errors.New("sampler.concurrency must be >= 1")
	}
	if c.Sampler.HistoryCapacity < 1 {
		return errors.New("sampler.history_capacity must be >= 1")
	}

	if c.Venues.Deribit.HeartbeatInterval < 10 {
		return fmt.Errorf("venues.deribit.heartbeat_interval must be >= 10 seconds, got %d", c.Venues.Deribit.HeartbeatInterval)
	}

	if c.Database.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Writer.BatchSize < 1 {
			return errors.New("writer.batch_size must be >= 1")
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (db *DatabaseConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
