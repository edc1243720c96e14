package config

import (
	"time"

	"github.com/rickgao/kucoin-data/internal/logging"
)

// GathererConfig is the root configuration for a gatherer instance.
type GathererConfig struct {
	Instance    InstanceConfig    `yaml:"instance"`
	API         APIConfig         `yaml:"api"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Feed        FeedConfig        `yaml:"feed"`
	Database    DatabaseConfig    `yaml:"database"`
	Writers     WritersConfig     `yaml:"writers"`
	Poller      PollerConfig      `yaml:"poller"`
	Registry    RegistryConfig    `yaml:"registry"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     logging.Config    `yaml:"logging"`
}

// InstanceConfig identifies this gatherer.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// APIConfig holds REST settings.
type APIConfig struct {
	RestURL      string        `yaml:"rest_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	RateLimit    float64       `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst    int           `yaml:"rate_burst"`
}

// CredentialsConfig holds the API key set. Leave empty for public-only use.
type CredentialsConfig struct {
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	Passphrase string `yaml:"passphrase"`
	KeyVersion string `yaml:"key_version"`
}

// FeedConfig holds realtime session and subscription settings.
type FeedConfig struct {
	// Topics in "name[:p1,p2]" form, e.g. "ticker:BTC-USDT,ETH-USDT".
	Topics        []string `yaml:"topics"`
	PrivateTopics []string `yaml:"private_topics"`

	TopicFormat    string        `yaml:"topic_format"` // name or path
	WelcomeTimeout time.Duration `yaml:"welcome_timeout"`
	// Keepalive overrides; zero uses the server's values.
	PingInterval time.Duration `yaml:"ping_interval"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`

	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	AckTimeout         time.Duration `yaml:"ack_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// DatabaseConfig holds the TimescaleDB connection.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
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

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// PollerConfig holds REST order book snapshot settings.
type PollerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Symbols     []string      `yaml:"symbols"`
	Depth       string        `yaml:"depth"` // 20, 100 or full
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
}

// RegistryConfig holds symbol registry settings.
type RegistryConfig struct {
	Market       string        `yaml:"market"` // optional market filter, e.g. USDS
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}
