package config

import (
	"time"

	"github.com/rickgao/kucoin-data/internal/logging"
)

// Default values for optional configuration fields.
const (
	DefaultRestURL            = "https://api.kucoin.com"
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultRetryBackoff       = 500 * time.Millisecond
	DefaultTopicFormat        = "name"
	DefaultWelcomeTimeout     = 10 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultAckTimeout         = 10 * time.Second
	DefaultFeedBufferSize     = 1024
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultBatchSize          = 1000
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 10000
	DefaultPollDepth          = "20"
	DefaultPollInterval       = 1 * time.Minute
	DefaultPollConcurrency    = 10
	DefaultSyncInterval       = 15 * time.Minute
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "kucoin_data"
)

func (c *GathererConfig) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Feed defaults
	if c.Feed.TopicFormat == "" {
		c.Feed.TopicFormat = DefaultTopicFormat
	}
	if c.Feed.WelcomeTimeout == 0 {
		c.Feed.WelcomeTimeout = DefaultWelcomeTimeout
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.AckTimeout == 0 {
		c.Feed.AckTimeout = DefaultAckTimeout
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}

	applyDBDefaults(&c.Database.Timescale)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultBufferSize
	}

	// Poller defaults
	if c.Poller.Depth == "" {
		c.Poller.Depth = DefaultPollDepth
	}
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}

	if c.Registry.SyncInterval == 0 {
		c.Registry.SyncInterval = DefaultSyncInterval
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}

	applyLoggingDefaults(&c.Logging)
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

func applyLoggingDefaults(l *logging.Config) {
	d := logging.DefaultConfig()
	if l.Level == "" {
		l.Level = d.Level
	}
	if l.Format == "" {
		l.Format = d.Format
	}
	if l.Output == "" {
		l.Output = d.Output
	}
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = d.MaxSizeMB
	}
	if l.MaxAgeDays == 0 {
		l.MaxAgeDays = d.MaxAgeDays
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = d.MaxBackups
	}
}
