package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	yaml := `
feed:
  url: ws://feed.example.com/feed
  token: abc123
subscriptions:
  symbol: BTC/USD
  count: 3
logging:
  level: debug
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Feed.URL != "ws://feed.example.com/feed" {
		t.Errorf("Feed.URL = %q, want %q", cfg.Feed.URL, "ws://feed.example.com/feed")
	}
	if cfg.Feed.Token != "abc123" {
		t.Errorf("Feed.Token = %q, want %q", cfg.Feed.Token, "abc123")
	}
	if cfg.Subscriptions.Symbol != "BTC/USD" {
		t.Errorf("Subscriptions.Symbol = %q, want %q", cfg.Subscriptions.Symbol, "BTC/USD")
	}
	if cfg.Subscriptions.Count != 3 {
		t.Errorf("Subscriptions.Count = %d, want 3", cfg.Subscriptions.Count)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_FEED_TOKEN", "secret123")

	yaml := `
feed:
  url: ws://localhost:7300/feed
  token: ${TEST_FEED_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Feed.Token != "secret123" {
		t.Errorf("Feed.Token = %q, want %q", cfg.Feed.Token, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
feed:
  url: ws://localhost:7300/feed
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Feed.SubscribeTimeout != DefaultSubscribeTimeout {
		t.Errorf("Feed.SubscribeTimeout = %v, want default %v", cfg.Feed.SubscribeTimeout, DefaultSubscribeTimeout)
	}
	if cfg.Feed.PingInterval != DefaultPingInterval {
		t.Errorf("Feed.PingInterval = %v, want default %v", cfg.Feed.PingInterval, DefaultPingInterval)
	}
	if cfg.Subscriptions.Symbol != DefaultSymbol {
		t.Errorf("Subscriptions.Symbol = %q, want default %q", cfg.Subscriptions.Symbol, DefaultSymbol)
	}
	if cfg.Subscriptions.Count != DefaultSubscriptionCount {
		t.Errorf("Subscriptions.Count = %d, want default %d", cfg.Subscriptions.Count, DefaultSubscriptionCount)
	}
	if cfg.Subscriptions.CloseTag != DefaultCloseTag {
		t.Errorf("Subscriptions.CloseTag = %d, want default %d", cfg.Subscriptions.CloseTag, DefaultCloseTag)
	}
	if cfg.Recorder.BatchSize != DefaultBatchSize {
		t.Errorf("Recorder.BatchSize = %d, want default %d", cfg.Recorder.BatchSize, DefaultBatchSize)
	}
	if cfg.Recorder.Database.Port != DefaultDBPort {
		t.Errorf("Recorder.Database.Port = %d, want default %d", cfg.Recorder.Database.Port, DefaultDBPort)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, DefaultLogLevel)
	}
}

func TestDefaults_CloseTagSkippedForSmallCount(t *testing.T) {
	yaml := `
feed:
  url: ws://localhost:7300/feed
subscriptions:
  count: 2
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Default close tag would exceed the count; none is set.
	if cfg.Subscriptions.CloseTag != 0 {
		t.Errorf("Subscriptions.CloseTag = %d, want 0 for count 2", cfg.Subscriptions.CloseTag)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Feed: FeedConfig{URL: "ws://localhost:7300/feed"},
			Subscriptions: SubscriptionsConfig{
				Symbol:   "ETH/USD",
				Count:    5,
				CloseTag: 3,
			},
			Logging: LoggingConfig{Level: "info"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing feed url",
			mutate:  func(c *Config) { c.Feed.URL = "" },
			wantErr: "feed.url is required",
		},
		{
			name:    "missing symbol",
			mutate:  func(c *Config) { c.Subscriptions.Symbol = "" },
			wantErr: "subscriptions.symbol is required",
		},
		{
			name:    "count too high",
			mutate:  func(c *Config) { c.Subscriptions.Count = 6 },
			wantErr: "subscriptions.count must be between 1 and 5, got 6",
		},
		{
			name:    "count zero",
			mutate:  func(c *Config) { c.Subscriptions.Count = 0 },
			wantErr: "subscriptions.count must be between 1 and 5, got 0",
		},
		{
			name:    "close tag beyond count",
			mutate:  func(c *Config) { c.Subscriptions.Count = 2; c.Subscriptions.CloseTag = 3 },
			wantErr: "subscriptions.close_tag must be between 0 and count (2), got 3",
		},
		{
			name: "recorder enabled without database",
			mutate: func(c *Config) {
				c.Recorder.Enabled = true
				c.Recorder.BatchSize = 100
				c.Recorder.BufferSize = 100
			},
			wantErr: "recorder.database.host is required",
		},
		{
			name: "recorder min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Recorder.Enabled = true
				c.Recorder.BatchSize = 100
				c.Recorder.BufferSize = 100
				c.Recorder.Database = DBConfig{
					Host: "localhost", Name: "db", User: "user", Password: "pass",
					MaxConns: 5, MinConns: 10,
				}
			},
			wantErr: "recorder.database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: `logging.level must be one of debug, info, warn, error; got "verbose"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
