package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultFeedURL           = "ws://localhost:7300/feed"
	DefaultSubscribeTimeout  = 10 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultPingTimeout       = 60 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultReconnectBaseWait = 1 * time.Second
	DefaultReconnectMaxWait  = 60 * time.Second
	DefaultFrameBufferSize   = 1000
	DefaultQueueSize         = 256

	DefaultSymbol            = "ETH/USD"
	DefaultSubscriptionCount = 5
	MaxSubscriptionCount     = 5
	DefaultStaggerDelay      = 3 * time.Second
	DefaultCloseTag          = 3
	DefaultLinger            = 3 * time.Second

	DefaultBatchSize     = 1000
	DefaultFlushInterval = 5 * time.Second
	DefaultBufferSize    = 10000
	DefaultDBPort        = 5432
	DefaultDBSSLMode     = "prefer"
	DefaultMaxConns      = 10
	DefaultMinConns      = 2

	DefaultLogLevel = "info"
)

func (c *Config) applyDefaults() {
	// Feed defaults
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.SubscribeTimeout == 0 {
		c.Feed.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = DefaultPingTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.ReconnectBaseWait == 0 {
		c.Feed.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if c.Feed.ReconnectMaxWait == 0 {
		c.Feed.ReconnectMaxWait = DefaultReconnectMaxWait
	}
	if c.Feed.FrameBufferSize == 0 {
		c.Feed.FrameBufferSize = DefaultFrameBufferSize
	}
	if c.Feed.QueueSize == 0 {
		c.Feed.QueueSize = DefaultQueueSize
	}

	// Subscription defaults
	if c.Subscriptions.Symbol == "" {
		c.Subscriptions.Symbol = DefaultSymbol
	}
	if c.Subscriptions.Count == 0 {
		c.Subscriptions.Count = DefaultSubscriptionCount
	}
	if c.Subscriptions.StaggerDelay == 0 {
		c.Subscriptions.StaggerDelay = DefaultStaggerDelay
	}
	if c.Subscriptions.CloseTag == 0 && c.Subscriptions.Count >= DefaultCloseTag {
		c.Subscriptions.CloseTag = DefaultCloseTag
	}
	if c.Subscriptions.Linger == 0 {
		c.Subscriptions.Linger = DefaultLinger
	}

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultBufferSize
	}
	applyDBDefaults(&c.Recorder.Database)

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
