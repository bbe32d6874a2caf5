package config

import "time"

// FeedDriver selects the change-feed backend.
type FeedDriver string

const (
	// FeedDriverMemory runs the in-process broadcast bus (single server).
	FeedDriverMemory FeedDriver = "memory"
	// FeedDriverNATS runs the JetStream-backed feed (multi-process).
	FeedDriverNATS FeedDriver = "nats"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// ReadDelay is how long a live-arrived message sits in an open thread
	// before being marked read.
	ReadDelay time.Duration `mapstructure:"read_delay" yaml:"read_delay"`

	FeedDriver FeedDriver `mapstructure:"feed_driver" yaml:"feed_driver"`
	NATSURL    string     `mapstructure:"nats_url" yaml:"nats_url"`
	NATSStream string     `mapstructure:"nats_stream" yaml:"nats_stream"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "salechat.db",
		JWTSecret:         "",
		JWTIssuer:         "salechat",
		JWTAudience:       "salechat",
		ReadDelay:         time.Second,
		FeedDriver:        FeedDriverMemory,
		NATSURL:           "nats://127.0.0.1:4222",
		NATSStream:        "SALECHAT",
	}
}
