package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rickgao/kucoin-data/internal/api"
	"github.com/rickgao/kucoin-data/internal/auth"
	"github.com/rickgao/kucoin-data/internal/router"
)

// Supervisor keeps one Session open, re-opening it with exponential backoff
// whenever it ends, and replays the desired subscriptions on every new
// session. Events from consecutive sessions are forwarded to one channel.
type Supervisor struct {
	negotiator Negotiator
	cfg        SupervisorConfig
	logger     *slog.Logger

	out chan router.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	desired map[string]subscription
	session *Session
	err     error

	opened     atomic.Int64
	reconnects atomic.Int64
}

type subscription struct {
	topic   router.Topic
	private bool
}

// SupervisorStats reports supervisor counters.
type SupervisorStats struct {
	Connected     bool
	State         State
	Sessions      int64
	Reconnects    int64
	Subscriptions int
}

// NewSupervisor creates a supervisor. Call Start to begin connecting.
func NewSupervisor(negotiator Negotiator, cfg SupervisorConfig, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultSupervisorConfig()
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = d.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = d.ReconnectMaxWait
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = d.AckTimeout
	}
	if cfg.BufferSize < 0 {
		cfg.BufferSize = 0
	}

	return &Supervisor{
		negotiator: negotiator,
		cfg:        cfg,
		logger:     logger,
		out:        make(chan router.Event, cfg.BufferSize),
		desired:    make(map[string]subscription),
	}
}

// Start begins the connect loop. It does not wait for the first session.
func (m *Supervisor) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("supervisor started", "private", m.cfg.Session.Private)
	return nil
}

// Stop closes the current session and waits for the connect loop to exit.
func (m *Supervisor) Stop(ctx context.Context) error {
	m.logger.Info("stopping supervisor")

	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
		return ctx.Err()
	}

	m.logger.Info("supervisor stopped")
	return nil
}

// Events returns the continuous event stream. It is closed when the
// supervisor stops or gives up.
func (m *Supervisor) Events() <-chan router.Event {
	return m.out
}

// Err returns the error that made the supervisor give up, if any.
func (m *Supervisor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Subscribe adds topic to the desired set. With a live session the call
// waits for the ack; otherwise the topic is subscribed on the next session.
// A server rejection removes the topic again and is returned.
func (m *Supervisor) Subscribe(ctx context.Context, topic router.Topic, private bool) error {
	if err := topic.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.desired[topic.String()] = subscription{topic: topic, private: private}
	s := m.session
	m.mu.Unlock()

	if s == nil {
		return nil
	}

	p, err := s.Subscribe(ctx, topic, private)
	if err != nil {
		if errors.Is(err, ErrSessionClosed) || errors.Is(err, ErrNotConnected) {
			return nil
		}
		return err
	}
	return m.awaitAck(ctx, p)
}

// Unsubscribe removes topic from the desired set and from the live session.
func (m *Supervisor) Unsubscribe(ctx context.Context, topic router.Topic) error {
	m.mu.Lock()
	delete(m.desired, topic.String())
	s := m.session
	m.mu.Unlock()

	if s == nil {
		return nil
	}

	p, err := s.Unsubscribe(ctx, topic)
	if err != nil {
		if errors.Is(err, ErrSessionClosed) || errors.Is(err, ErrNotConnected) {
			return nil
		}
		return err
	}
	if err := p.Wait(ctx); err != nil && !errors.Is(err, ErrCancelled) {
		return err
	}
	return nil
}

func (m *Supervisor) awaitAck(ctx context.Context, p *Pending) error {
	err := p.Wait(ctx)
	var serr *ServerError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &serr):
		m.drop(p.Topic())
		return err
	case errors.Is(err, ErrCancelled):
		// Session ended; the next one replays it.
		return nil
	default:
		return err
	}
}

// Topics returns the desired subscriptions, sorted.
func (m *Supervisor) Topics() []router.Topic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topicsLocked()
}

func (m *Supervisor) topicsLocked() []router.Topic {
	topics := make([]router.Topic, 0, len(m.desired))
	for _, sub := range m.desired {
		topics = append(topics, sub.topic)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].String() < topics[j].String() })
	return topics
}

// Stats returns current statistics.
func (m *Supervisor) Stats() SupervisorStats {
	m.mu.Lock()
	s := m.session
	subs := len(m.desired)
	m.mu.Unlock()

	stats := SupervisorStats{
		Sessions:      m.opened.Load(),
		Reconnects:    m.reconnects.Load(),
		Subscriptions: subs,
		State:         StateIdle,
	}
	if s != nil {
		stats.State = s.State()
		stats.Connected = stats.State == StateActive
	}
	return stats
}

func (m *Supervisor) drop(topic router.Topic) {
	m.mu.Lock()
	delete(m.desired, topic.String())
	m.mu.Unlock()
}

func (m *Supervisor) setSession(s *Session) {
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
}

func (m *Supervisor) run() {
	defer m.wg.Done()
	defer close(m.out)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.ReconnectBaseWait
	b.MaxInterval = m.cfg.ReconnectMaxWait

	var failingSince time.Time
	for {
		s, err := m.open()
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			if permanent(err) {
				m.giveUp(err)
				return
			}
			if failingSince.IsZero() {
				failingSince = time.Now()
			}
			wait := b.NextBackOff()
			if m.cfg.MaxElapsed > 0 && time.Since(failingSince)+wait > m.cfg.MaxElapsed {
				m.giveUp(fmt.Errorf("reconnect: %w", err))
				return
			}
			m.logger.Warn("open session failed, retrying",
				"error", err,
				"wait", wait,
			)
			if !m.sleep(wait) {
				return
			}
			continue
		}

		failingSince = time.Time{}
		started := time.Now()
		m.forward(s)
		m.setSession(nil)

		if m.ctx.Err() != nil {
			return
		}

		// A session that stayed up long enough resets the backoff.
		if time.Since(started) > m.cfg.ReconnectMaxWait {
			b.Reset()
		}
		m.reconnects.Add(1)
		wait := b.NextBackOff()
		m.logger.Warn("session ended, reconnecting",
			"error", s.Err(),
			"wait", wait,
		)
		if !m.sleep(wait) {
			return
		}
	}
}

func (m *Supervisor) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-m.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (m *Supervisor) giveUp(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	m.logger.Error("supervisor giving up", "error", err)
}

// permanent reports errors that a reconnect cannot fix.
func permanent(err error) bool {
	return errors.Is(err, api.ErrAuthentication) ||
		errors.Is(err, api.ErrNoCredentials) ||
		errors.Is(err, auth.ErrInvalidCredentials)
}

// open opens a session and replays the desired subscriptions on it.
func (m *Supervisor) open() (*Session, error) {
	s, err := Open(m.ctx, m.negotiator, m.cfg.Session, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.session = s
	subs := make([]subscription, 0, len(m.desired))
	for _, sub := range m.desired {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	if err := m.replay(s, subs); err != nil {
		m.setSession(nil)
		s.Close()
		return nil, err
	}

	m.opened.Add(1)
	return s, nil
}

func (m *Supervisor) replay(s *Session, subs []subscription) error {
	if len(subs) == 0 {
		return nil
	}

	pending := make([]*Pending, 0, len(subs))
	for _, sub := range subs {
		p, err := s.Subscribe(m.ctx, sub.topic, sub.private)
		if err != nil {
			return fmt.Errorf("replay %s: %w", sub.topic, err)
		}
		pending = append(pending, p)
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.AckTimeout)
	defer cancel()

	for _, p := range pending {
		err := p.Wait(ctx)
		var serr *ServerError
		switch {
		case err == nil:
		case errors.As(err, &serr):
			m.logger.Warn("subscription rejected, dropping",
				"topic", p.Topic().String(),
				"code", serr.Code,
				"message", serr.Message,
			)
			m.drop(p.Topic())
		default:
			return fmt.Errorf("replay %s: %w", p.Topic(), err)
		}
	}

	m.logger.Info("subscriptions replayed", "count", len(subs))
	return nil
}

// forward copies events until the session ends or the supervisor stops.
func (m *Supervisor) forward(s *Session) {
	events := s.Events()
	for {
		select {
		case <-m.ctx.Done():
			s.Close()
			return
		case ev, ok := <-events:
			if !ok {
				// Events closes after Done; Close releases the pump.
				s.Close()
				return
			}
			select {
			case m.out <- ev:
			case <-m.ctx.Done():
				s.Close()
				return
			}
		}
	}
}
