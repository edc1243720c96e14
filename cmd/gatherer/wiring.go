package main

import (
	"fmt"
	"log/slog"

	"github.com/rickgao/kucoin-data/internal/api"
	"github.com/rickgao/kucoin-data/internal/auth"
	"github.com/rickgao/kucoin-data/internal/config"
	"github.com/rickgao/kucoin-data/internal/connection"
	"github.com/rickgao/kucoin-data/internal/metrics"
	"github.com/rickgao/kucoin-data/internal/poller"
	"github.com/rickgao/kucoin-data/internal/writer"
)

// newAPIClient builds the REST client from config. creds may be nil.
func newAPIClient(cfg config.APIConfig, creds *auth.Credentials, m *metrics.Metrics, logger *slog.Logger) *api.Client {
	opts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithTimeout(cfg.Timeout),
		api.WithRetries(cfg.MaxRetries, cfg.RetryBackoff),
		api.WithMetrics(m),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, api.WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if creds != nil {
		opts = append(opts, api.WithCredentials(creds))
	}
	return api.NewClient(cfg.RestURL, opts...)
}

// supervisorConfig maps feed settings onto a supervisor for one feed.
func supervisorConfig(feed config.FeedConfig, private bool, m *metrics.Metrics) connection.SupervisorConfig {
	sess := connection.DefaultSessionConfig()
	sess.Private = private
	sess.WelcomeTimeout = feed.WelcomeTimeout
	sess.PingInterval = feed.PingInterval
	sess.PingTimeout = feed.PingTimeout
	sess.EventBufferSize = feed.BufferSize
	sess.Metrics = m
	if feed.TopicFormat == "path" {
		sess.TopicFormat = connection.PathFormat
	}

	cfg := connection.DefaultSupervisorConfig()
	cfg.Session = sess
	cfg.ReconnectBaseWait = feed.ReconnectBaseDelay
	cfg.ReconnectMaxWait = feed.ReconnectMaxDelay
	cfg.AckTimeout = feed.AckTimeout
	cfg.BufferSize = feed.BufferSize
	return cfg
}

func writerConfig(cfg config.WritersConfig) writer.WriterConfig {
	w := writer.DefaultWriterConfig()
	w.BatchSize = cfg.BatchSize
	w.FlushInterval = cfg.FlushInterval
	return w
}

func pollerConfig(cfg config.PollerConfig) (poller.Config, error) {
	depth, ok := api.ParseOrderBookDepth(cfg.Depth)
	if !ok {
		return poller.Config{}, fmt.Errorf("poller.depth %q: want 20, 100 or full", cfg.Depth)
	}
	p := poller.DefaultConfig()
	p.Interval = cfg.Interval
	p.Concurrency = cfg.Concurrency
	p.Depth = depth
	return p, nil
}
