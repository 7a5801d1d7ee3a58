package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return errors.New("feed.url is required")
	}

	if c.Subscriptions.Symbol == "" {
		return errors.New("subscriptions.symbol is required")
	}
	if c.Subscriptions.Count < 1 || c.Subscriptions.Count > MaxSubscriptionCount {
		return fmt.Errorf("subscriptions.count must be between 1 and %d, got %d",
			MaxSubscriptionCount, c.Subscriptions.Count)
	}
	if c.Subscriptions.CloseTag < 0 || c.Subscriptions.CloseTag > c.Subscriptions.Count {
		return fmt.Errorf("subscriptions.close_tag must be between 0 and count (%d), got %d",
			c.Subscriptions.Count, c.Subscriptions.CloseTag)
	}

	if c.Recorder.Enabled {
		if err := c.Recorder.Database.validate("recorder.database"); err != nil {
			return err
		}
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if c.Recorder.BufferSize < 1 {
			return errors.New("recorder.buffer_size must be >= 1")
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
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
