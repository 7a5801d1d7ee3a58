package config

import "time"

// Config is the root configuration for a quotetap instance.
type Config struct {
	Feed          FeedConfig          `yaml:"feed"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Recorder      RecorderConfig      `yaml:"recorder"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// FeedConfig holds feed endpoint and session settings.
type FeedConfig struct {
	URL               string        `yaml:"url"`
	Token             string        `yaml:"token"` // Optional bearer token
	SubscribeTimeout  time.Duration `yaml:"subscribe_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ReconnectBaseWait time.Duration `yaml:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `yaml:"reconnect_max_wait"`
	FrameBufferSize   int           `yaml:"frame_buffer_size"`
	QueueSize         int           `yaml:"queue_size"`
}

// SubscriptionsConfig drives the demo subscription sequence.
type SubscriptionsConfig struct {
	Symbol       string        `yaml:"symbol"`
	Count        int           `yaml:"count"`         // Number of subscriptions (1-5)
	StaggerDelay time.Duration `yaml:"stagger_delay"` // Delay between creating each subscription
	CloseTag     int           `yaml:"close_tag"`     // Tag to close early after setup (0 = none)
	Linger       time.Duration `yaml:"linger"`        // Wait after the early close before teardown
}

// RecorderConfig holds optional quote persistence settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
}
