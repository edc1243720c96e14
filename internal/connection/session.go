package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/kucoin-data/internal/api"
	"github.com/rickgao/kucoin-data/internal/metrics"
	"github.com/rickgao/kucoin-data/internal/router"
)

const (
	defaultPingInterval = 18 * time.Second
	defaultPingTimeout  = 10 * time.Second
)

// Negotiator obtains a connection token and instance servers.
// *api.Client satisfies it.
type Negotiator interface {
	Negotiate(ctx context.Context, private bool) (*api.Bullet, error)
}

// Session is one realtime feed connection: negotiation, dial, welcome,
// keepalive, subscription acks and event delivery. A Session never
// reconnects; see Supervisor.
type Session struct {
	negotiator Negotiator
	cfg        SessionConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics

	connectID string
	state     atomic.Int32

	cmds   chan command
	queue  *router.GrowableBuffer[router.Event]
	events chan router.Event

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	err    error

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// NewSession creates an idle session.
func NewSession(negotiator Negotiator, cfg SessionConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	connectID := uuid.NewString()
	return &Session{
		negotiator: negotiator,
		cfg:        cfg,
		logger:     logger.With("connect_id", connectID),
		metrics:    cfg.Metrics,
		connectID:  connectID,
		cmds:       make(chan command),
		queue:      router.NewGrowableBuffer[router.Event](cfg.EventBufferSize),
		events:     make(chan router.Event),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Open creates a session and drives it to Active.
func Open(ctx context.Context, negotiator Negotiator, cfg SessionConfig, logger *slog.Logger) (*Session, error) {
	s := NewSession(negotiator, cfg, logger)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Open negotiates, dials the first reachable instance server and waits for
// the welcome frame. The session stays alive until ctx is cancelled, Close
// is called or the connection fails.
func (s *Session) Open(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateNegotiating)) {
		return ErrAlreadyOpened
	}
	s.metrics.SetSessionState(int(StateNegotiating))

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	ctx = s.ctx
	s.mu.Unlock()
	select {
	case <-s.closing:
		s.cancel()
	default:
	}

	go s.pump()

	bullet, err := s.negotiator.Negotiate(ctx, s.cfg.Private)
	if err != nil {
		return s.abort(fmt.Errorf("negotiate: %w", err))
	}

	s.setState(StateConnecting)
	client, server, err := s.dial(ctx, bullet)
	if err != nil {
		return s.abort(err)
	}

	s.setState(StateAwaitingWelcome)
	if err := s.awaitWelcome(ctx, client); err != nil {
		client.Close()
		return s.abort(err)
	}

	interval, timeout := s.keepalive(server)
	s.setState(StateActive)
	s.metrics.SessionOpened()
	s.logger.Info("session active",
		"endpoint", server.Endpoint,
		"private", s.cfg.Private,
		"ping_interval", interval,
		"ping_timeout", timeout,
	)

	go s.run(client, interval, timeout)

	return nil
}

// abort ends a session that never became active.
func (s *Session) abort(err error) error {
	state := StateFailed
	if s.ctx.Err() != nil {
		state = StateClosed
	}
	s.cancel()
	s.finish(state, err)
	return err
}

func (s *Session) keepalive(server api.InstanceServer) (time.Duration, time.Duration) {
	interval, timeout := server.Interval(), server.Timeout()
	if s.cfg.PingInterval > 0 {
		interval = s.cfg.PingInterval
	}
	if s.cfg.PingTimeout > 0 {
		timeout = s.cfg.PingTimeout
	}
	if interval <= 0 {
		interval = defaultPingInterval
	}
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return interval, timeout
}

// dial tries each instance server in order. Only connection failures fall
// through to the next server.
func (s *Session) dial(ctx context.Context, bullet *api.Bullet) (Client, api.InstanceServer, error) {
	if len(bullet.InstanceServers) == 0 {
		return nil, api.InstanceServer{}, api.ErrNoInstanceServers
	}

	var lastErr error
	for i, server := range bullet.InstanceServers {
		u, err := connectURL(server.Endpoint, bullet.Token, s.connectID)
		if err != nil {
			lastErr = err
			s.logger.Warn("invalid instance server", "index", i, "error", err)
			continue
		}

		c := NewClient(ClientConfig{
			URL:              u,
			HandshakeTimeout: s.cfg.HandshakeTimeout,
			WriteTimeout:     s.cfg.WriteTimeout,
		}, s.logger)
		if err := c.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, server, ctx.Err()
			}
			lastErr = err
			s.logger.Warn("instance server unreachable",
				"index", i,
				"endpoint", server.Endpoint,
				"error", err,
			)
			continue
		}
		return c, server, nil
	}

	return nil, api.InstanceServer{}, fmt.Errorf("%w: %w", ErrUnreachable, lastErr)
}

// connectURL appends the token and connect id to endpoint.
func connectURL(endpoint, token, connectID string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("connectId", connectID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Session) awaitWelcome(ctx context.Context, c Client) error {
	timer := time.NewTimer(s.cfg.WelcomeTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: %w", ErrConnectionLost, ErrWelcomeTimeout)
	case err := <-c.Errors():
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	case msg := <-c.Messages():
		if msg.Binary {
			return fmt.Errorf("%w: binary frame before welcome", ErrUnexpectedFrame)
		}
		var f Frame
		if err := json.Unmarshal(msg.Data, &f); err != nil {
			return fmt.Errorf("%w: %w", ErrUnexpectedFrame, err)
		}
		if f.Type != FrameWelcome {
			return fmt.Errorf("%w: %q before welcome", ErrUnexpectedFrame, f.Type)
		}
		s.metrics.FrameReceived(f.Type)
		if f.ID != s.connectID {
			s.logger.Debug("welcome id differs from connect id", "welcome_id", f.ID)
		}
		return nil
	}
}

// SubscribeOption configures a subscribe request.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	response bool
}

// NoResponse asks the server not to ack. The topic is reported active as
// soon as the frame is written and the Pending resolves immediately.
func NoResponse() SubscribeOption {
	return func(o *subscribeOptions) { o.response = false }
}

// Subscribe sends a subscribe frame. The topic is reported by ActiveTopics
// only after the ack arrives.
func (s *Session) Subscribe(ctx context.Context, topic router.Topic, private bool, opts ...SubscribeOption) (*Pending, error) {
	if err := topic.Validate(); err != nil {
		return nil, err
	}
	o := subscribeOptions{response: true}
	for _, opt := range opts {
		opt(&o)
	}

	p := newPending(uuid.NewString(), topic, false)
	cmd := command{
		kind:     cmdSubscribe,
		topic:    topic,
		private:  private,
		response: o.response,
		pending:  p,
	}
	if err := s.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	return p, nil
}

// Unsubscribe sends an unsubscribe frame. The topic leaves ActiveTopics when
// the ack arrives.
func (s *Session) Unsubscribe(ctx context.Context, topic router.Topic) (*Pending, error) {
	if err := topic.Validate(); err != nil {
		return nil, err
	}

	p := newPending(uuid.NewString(), topic, true)
	cmd := command{
		kind:     cmdUnsubscribe,
		topic:    topic,
		private:  topic.Private(),
		response: true,
		pending:  p,
	}
	if err := s.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	return p, nil
}

// ActiveTopics returns the acknowledged subscriptions, sorted.
func (s *Session) ActiveTopics(ctx context.Context) ([]router.Topic, error) {
	reply := make(chan []router.Topic, 1)
	if err := s.enqueue(ctx, command{kind: cmdTopics, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case topics := <-reply:
		return topics, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) enqueue(ctx context.Context, cmd command) error {
	switch st := s.State(); {
	case st.Terminal():
		return ErrSessionClosed
	case st != StateActive:
		return ErrNotConnected
	}

	select {
	case s.cmds <- cmd:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events delivers decoded events in arrival order. It is closed once the
// session has ended and every queued event has been delivered, or at once
// when Close is called.
func (s *Session) Events() <-chan router.Event {
	return s.events
}

// State returns a snapshot of the lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed when the session reaches Closed or Failed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error. It is nil while the session is running and
// after a clean close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ConnectID returns the id sent as connectId on the dial URL.
func (s *Session) ConnectID() string {
	return s.connectID
}

// Close shuts the session down and waits for the owner goroutine to exit.
// Pending requests resolve with ErrCancelled. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })

	if s.state.CompareAndSwap(int32(StateIdle), int32(StateClosed)) {
		s.metrics.SetSessionState(int(StateClosed))
		close(s.events)
		close(s.done)
		return nil
	}

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	<-s.done
	return nil
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.metrics.SetSessionState(int(st))
}

// finish records the terminal state and releases consumers.
func (s *Session) finish(st State, err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.setState(st)
	if st == StateFailed {
		s.metrics.SessionFailed(failureReason(err))
		s.logger.Warn("session failed", "error", err)
	} else {
		s.logger.Info("session closed")
	}

	s.queue.Close()
	close(s.done)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrPongTimeout):
		return "pong_timeout"
	case errors.Is(err, ErrWelcomeTimeout):
		return "welcome_timeout"
	case errors.Is(err, ErrUnexpectedFrame):
		return "unexpected_frame"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed_frame"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, api.ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrConnectionLost):
		return "connection_lost"
	default:
		return "other"
	}
}

// pump moves events from the queue to the Events channel.
func (s *Session) pump() {
	defer close(s.events)

	for {
		ev, ok := s.queue.Receive(context.Background())
		if !ok {
			return
		}
		select {
		case s.events <- ev:
		case <-s.closing:
			return
		}
	}
}

type cmdKind int

const (
	cmdSubscribe cmdKind = iota
	cmdUnsubscribe
	cmdTopics
)

type command struct {
	kind     cmdKind
	topic    router.Topic
	private  bool
	response bool
	pending  *Pending
	reply    chan []router.Topic
}

// loop is the state owned by the run goroutine.
type loop struct {
	client  Client
	pending map[string]*Pending
	active  map[string]router.Topic
	pings   map[string]time.Time // outstanding ping id -> sent at

	pongTimer *time.Timer
	pongC     <-chan time.Time
}

func (l *loop) disarmPong() {
	if l.pongTimer != nil {
		l.pongTimer.Stop()
	}
	l.pongTimer, l.pongC = nil, nil
	clear(l.pings)
}

// run is the single owner of the connection once the session is active.
func (s *Session) run(client Client, interval, timeout time.Duration) {
	l := &loop{
		client:  client,
		pending: make(map[string]*Pending),
		active:  make(map[string]router.Topic),
		pings:   make(map[string]time.Time),
	}

	pingTimer := time.NewTimer(interval)

	state, cause := StateClosed, error(nil)
	defer func() {
		pingTimer.Stop()
		l.disarmPong()

		cancelErr := ErrCancelled
		if cause != nil {
			cancelErr = fmt.Errorf("%w: %w", ErrCancelled, cause)
		}
		for id, p := range l.pending {
			p.resolve(cancelErr)
			delete(l.pending, id)
		}

		client.Close()
		s.cancel()
		s.finish(state, cause)
	}()

	for {
		select {
		case <-s.ctx.Done():
			return

		case err := <-client.Errors():
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.Info("server closed connection")
				return
			}
			state, cause = StateFailed, fmt.Errorf("%w: %w", ErrConnectionLost, err)
			return

		case msg := <-client.Messages():
			if err := s.handleFrame(l, msg); err != nil {
				state, cause = StateFailed, err
				return
			}

		case cmd := <-s.cmds:
			if err := s.handleCommand(l, cmd); err != nil {
				state, cause = StateFailed, err
				return
			}

		case <-pingTimer.C:
			id := uuid.NewString()
			if err := s.write(l, controlFrame{ID: id, Type: FramePing}); err != nil {
				state, cause = StateFailed, err
				return
			}
			l.pings[id] = time.Now()
			if l.pongC == nil {
				l.pongTimer = time.NewTimer(timeout)
				l.pongC = l.pongTimer.C
			}
			pingTimer.Reset(interval)

		case <-l.pongC:
			state, cause = StateFailed, fmt.Errorf("%w: %w", ErrConnectionLost, ErrPongTimeout)
			return
		}
	}
}

func (s *Session) write(l *loop, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := l.client.Send(data); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return nil
}

func (s *Session) handleCommand(l *loop, cmd command) error {
	if cmd.kind == cmdTopics {
		topics := make([]router.Topic, 0, len(l.active))
		for _, t := range l.active {
			topics = append(topics, t)
		}
		sort.Slice(topics, func(i, j int) bool { return topics[i].String() < topics[j].String() })
		cmd.reply <- topics
		return nil
	}

	frameType := FrameSubscribe
	if cmd.kind == cmdUnsubscribe {
		frameType = FrameUnsubscribe
	}
	p := cmd.pending

	err := s.write(l, subscribeFrame{
		ID:             p.id,
		Type:           frameType,
		Topic:          s.cfg.TopicFormat(cmd.topic),
		PrivateChannel: cmd.private,
		Response:       cmd.response,
	})
	if err != nil {
		p.resolve(err)
		return err
	}

	s.logger.Debug("request sent", "type", frameType, "topic", cmd.topic.String(), "id", p.id)

	if !cmd.response {
		l.apply(p)
		p.resolve(nil)
		return nil
	}
	l.pending[p.id] = p
	return nil
}

// apply updates the active set for an acknowledged request.
func (l *loop) apply(p *Pending) {
	key := p.topic.String()
	if p.unsubscribe {
		delete(l.active, key)
		return
	}
	l.active[key] = p.topic
}

func (s *Session) handleFrame(l *loop, msg TimestampedMessage) error {
	if msg.Binary {
		s.metrics.FrameReceived("binary")
		s.emit(&router.Binary{
			Meta: router.Meta{Kind: router.KindBinary, ReceivedAt: msg.ReceivedAt},
			Data: msg.Data,
		})
		return nil
	}

	var f Frame
	if err := json.Unmarshal(msg.Data, &f); err != nil {
		return fmt.Errorf("%w: %w: %w", ErrConnectionLost, ErrMalformedFrame, err)
	}
	s.metrics.FrameReceived(f.Type)

	switch f.Type {
	case FrameMessage:
		ev := router.DecodeAt(f.Topic, f.Subject, f.Data, msg.ReceivedAt)
		s.observe(ev)
		s.emit(ev)

	case FrameAck:
		p, ok := l.pending[f.ID]
		if !ok {
			s.logger.Debug("ack for unknown request", "id", f.ID)
			return nil
		}
		delete(l.pending, f.ID)
		l.apply(p)
		p.resolve(nil)

	case FramePong:
		sentAt, ok := l.pings[f.ID]
		if !ok {
			s.logger.Debug("pong for unknown ping", "id", f.ID)
			return nil
		}
		s.metrics.PongReceived(msg.ReceivedAt.Sub(sentAt))
		l.disarmPong()

	case FramePing:
		return s.write(l, controlFrame{ID: f.ID, Type: FramePong})

	case FrameError:
		serr := &ServerError{Code: f.Code, Message: f.errorMessage()}
		p, ok := l.pending[f.ID]
		if !ok {
			s.logger.Warn("server error", "id", f.ID, "code", serr.Code, "message", serr.Message)
			return nil
		}
		delete(l.pending, f.ID)
		s.logger.Warn("request rejected", "topic", p.topic.String(), "code", serr.Code, "message", serr.Message)
		p.resolve(serr)

	case FrameWelcome:
		s.logger.Debug("duplicate welcome", "id", f.ID)

	default:
		s.logger.Debug("ignoring frame", "type", f.Type)
	}
	return nil
}

func (s *Session) observe(ev router.Event) {
	switch e := ev.(type) {
	case *router.Unknown:
		s.metrics.UnknownFrame(e.Subject)
		s.logger.Debug("unknown topic/subject", "topic", e.Topic, "subject", e.Subject)
	case *router.DecodeFailure:
		s.metrics.DecodeFailure(string(e.Want))
		s.logger.Warn("decode failed", "topic", e.Topic, "subject", e.Subject, "error", e.Err)
	default:
		s.metrics.EventDecoded(string(ev.EventMeta().Kind))
	}
}

func (s *Session) emit(ev router.Event) {
	s.queue.Send(ev)
	s.metrics.SetBufferDepth("events", s.queue.Len())
}

// Pending is an in-flight subscribe or unsubscribe request.
type Pending struct {
	id          string
	topic       router.Topic
	unsubscribe bool

	done chan struct{}
	err  error
}

func newPending(id string, topic router.Topic, unsubscribe bool) *Pending {
	return &Pending{id: id, topic: topic, unsubscribe: unsubscribe, done: make(chan struct{})}
}

// ID returns the request id carried on the wire.
func (p *Pending) ID() string { return p.id }

// Topic returns the requested topic.
func (p *Pending) Topic() router.Topic { return p.topic }

// Done is closed when the request resolves.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the outcome once Done is closed: nil for an ack, *ServerError
// for a rejection, ErrCancelled if the session ended first.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the request resolves or ctx ends.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pending) resolve(err error) {
	p.err = err
	close(p.done)
}
