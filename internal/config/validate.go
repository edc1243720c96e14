package config

import (
	"errors"
	"fmt"

	"github.com/rickgao/kucoin-data/internal/api"
	"github.com/rickgao/kucoin-data/internal/router"
)

// Validate checks that all required fields are set and values are valid.
func (c *GathererConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.RateLimit < 0 {
		return errors.New("api.rate_limit must be >= 0")
	}

	if _, err := c.Credentials.Build(); err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	if err := c.validateFeed(); err != nil {
		return err
	}

	if err := c.Database.Timescale.validate("database.timescale"); err != nil {
		return err
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}

	if err := c.validatePoller(); err != nil {
		return err
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	return nil
}

func (c *GathererConfig) validateFeed() error {
	if len(c.Feed.Topics) == 0 && len(c.Feed.PrivateTopics) == 0 {
		return errors.New("feed.topics or feed.private_topics is required")
	}
	if _, err := c.Feed.PublicTopics(); err != nil {
		return fmt.Errorf("feed.topics: %w", err)
	}
	if _, err := c.Feed.PrivateTopicList(); err != nil {
		return fmt.Errorf("feed.private_topics: %w", err)
	}
	if len(c.Feed.PrivateTopics) > 0 && !c.Credentials.IsSet() {
		return errors.New("feed.private_topics requires credentials")
	}
	switch c.Feed.TopicFormat {
	case "name", "path":
	default:
		return fmt.Errorf("feed.topic_format must be name or path, got %q", c.Feed.TopicFormat)
	}
	if c.Feed.BufferSize < 1 {
		return errors.New("feed.buffer_size must be >= 1")
	}
	return nil
}

func (c *GathererConfig) validatePoller() error {
	if !c.Poller.Enabled {
		return nil
	}
	if len(c.Poller.Symbols) == 0 {
		return errors.New("poller.symbols is required when the poller is enabled")
	}
	depth, ok := api.ParseOrderBookDepth(c.Poller.Depth)
	if !ok {
		return fmt.Errorf("poller.depth must be 20, 100 or full, got %q", c.Poller.Depth)
	}
	if depth == api.DepthFull && !c.Credentials.IsSet() {
		return errors.New("poller.depth full requires credentials")
	}
	if c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}
	return nil
}

// PublicTopics parses Topics.
func (f FeedConfig) PublicTopics() ([]router.Topic, error) {
	return parseTopics(f.Topics)
}

// PrivateTopicList parses PrivateTopics.
func (f FeedConfig) PrivateTopicList() ([]router.Topic, error) {
	return parseTopics(f.PrivateTopics)
}

func parseTopics(in []string) ([]router.Topic, error) {
	out := make([]router.Topic, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		t, err := router.ParseTopic(s)
		if err != nil {
			return nil, err
		}
		if seen[t.String()] {
			return nil, fmt.Errorf("duplicate topic %q", t.String())
		}
		seen[t.String()] = true
		out = append(out, t)
	}
	return out, nil
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
