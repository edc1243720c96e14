package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/kucoin-data/internal/metrics"
	"github.com/rickgao/kucoin-data/internal/router"
)

// Session errors.
var (
	ErrConnectionLost  = errors.New("connection lost")
	ErrUnreachable     = errors.New("no instance server reachable")
	ErrWelcomeTimeout  = errors.New("welcome timeout")
	ErrPongTimeout     = errors.New("pong timeout")
	ErrUnexpectedFrame = errors.New("unexpected frame")
	ErrMalformedFrame  = errors.New("malformed frame")
	ErrCancelled       = errors.New("request cancelled")
	ErrSessionClosed   = errors.New("session closed")
	ErrNotConnected    = errors.New("not connected")
	ErrAlreadyClosed   = errors.New("client already closed")
	ErrAlreadyOpened   = errors.New("session already opened")
)

// ServerError is the payload of a `type:"error"` frame answering a request.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// State is the lifecycle state of a Session.
type State int32

const (
	StateIdle State = iota
	StateNegotiating
	StateConnecting
	StateAwaitingWelcome
	StateActive
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnecting:
		return "connecting"
	case StateAwaitingWelcome:
		return "awaiting_welcome"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateClosed || s == StateFailed }

// Frame types.
const (
	FrameWelcome     = "welcome"
	FrameAck         = "ack"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameError       = "error"
	FrameMessage     = "message"
	FrameNotice      = "notice"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
)

// Frame is an inbound frame. Only the fields relevant to Type are set.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Subject string          `json:"subject,omitempty"`
	Code    int             `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// errorMessage extracts the human-readable part of an error frame.
func (f Frame) errorMessage() string {
	var s string
	if err := json.Unmarshal(f.Data, &s); err == nil {
		return s
	}
	return string(f.Data)
}

// subscribeFrame is the outbound subscribe/unsubscribe request.
type subscribeFrame struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Topic          string `json:"topic"`
	PrivateChannel bool   `json:"privateChannel"`
	Response       bool   `json:"response"`
}

// controlFrame is an outbound ping or pong.
type controlFrame struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// TimestampedMessage is a raw frame with its local receive time.
type TimestampedMessage struct {
	Data       []byte
	Binary     bool
	ReceivedAt time.Time
}

// ClientConfig holds transport configuration.
type ClientConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	BufferSize       int
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        1 << 20,
		BufferSize:       64,
	}
}

// TopicFormat renders a topic for the subscribe frame.
type TopicFormat func(router.Topic) string

// Topic formats.
var (
	// NameFormat renders `ticker:BTC-USDT`.
	NameFormat TopicFormat = router.Topic.String
	// PathFormat renders the venue form `/market/ticker:BTC-USDT`.
	PathFormat TopicFormat = router.Topic.Path
)

// SessionConfig holds Session configuration.
type SessionConfig struct {
	// Private requests a private bullet (requires credentials).
	Private bool

	WelcomeTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// PingInterval and PingTimeout override the server's values when > 0.
	PingInterval time.Duration
	PingTimeout  time.Duration

	// EventBufferSize is the initial capacity of the event queue. The
	// queue grows; it never drops.
	EventBufferSize int

	TopicFormat TopicFormat
	Metrics     *metrics.Metrics
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		WelcomeTimeout:   10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		EventBufferSize:  1024,
		TopicFormat:      NameFormat,
	}
}

func (c *SessionConfig) applyDefaults() {
	d := DefaultSessionConfig()
	if c.WelcomeTimeout <= 0 {
		c.WelcomeTimeout = d.WelcomeTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = d.EventBufferSize
	}
	if c.TopicFormat == nil {
		c.TopicFormat = d.TopicFormat
	}
}

// SupervisorConfig holds Supervisor configuration.
type SupervisorConfig struct {
	Session SessionConfig

	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
	// MaxElapsed bounds one reconnect cycle; 0 retries until the context ends.
	MaxElapsed time.Duration

	// AckTimeout bounds each replayed subscription.
	AckTimeout time.Duration
	BufferSize int
}

// DefaultSupervisorConfig returns sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		Session:           DefaultSessionConfig(),
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		AckTimeout:        10 * time.Second,
		BufferSize:        1024,
	}
}
