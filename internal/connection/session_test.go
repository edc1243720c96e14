package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/kucoin-data/internal/api"
	"github.com/rickgao/kucoin-data/internal/model"
	"github.com/rickgao/kucoin-data/internal/router"
)

// stubNegotiator hands out a fixed bullet.
type stubNegotiator struct {
	bullet *api.Bullet
	err    error
	calls  atomic.Int32
}

func (n *stubNegotiator) Negotiate(ctx context.Context, private bool) (*api.Bullet, error) {
	n.calls.Add(1)
	if n.err != nil {
		return nil, n.err
	}
	b := *n.bullet
	b.Private = private
	return &b, nil
}

func bulletFor(endpoints ...string) *api.Bullet {
	b := &api.Bullet{Token: "test-token"}
	for _, ep := range endpoints {
		b.InstanceServers = append(b.InstanceServers, api.InstanceServer{
			Endpoint:     ep,
			Protocol:     "websocket",
			PingInterval: 18000,
			PingTimeout:  10000,
		})
	}
	return b
}

// instanceServer is a scripted realtime endpoint. It records the dial
// query of every connection.
type instanceServer struct {
	*httptest.Server

	mu      sync.Mutex
	queries []url.Values
}

func newInstanceServer(t *testing.T, handler func(*websocket.Conn)) *instanceServer {
	s := &instanceServer{}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.queries = append(s.queries, r.URL.Query())
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	return s
}

func (s *instanceServer) url() string { return wsURL(s.Server) }

func (s *instanceServer) lastQuery() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return nil
	}
	return s.queries[len(s.queries)-1]
}

// welcome sends the welcome frame with the stub's fixed id.
func welcome(conn *websocket.Conn) error {
	return conn.WriteJSON(map[string]string{"id": "0", "type": "welcome"})
}

// readRequest reads frames until one of the given type arrives.
func readRequest(conn *websocket.Conn, typ string) (subscribeFrame, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return subscribeFrame{}, err
		}
		var f subscribeFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return subscribeFrame{}, err
		}
		if f.Type == typ {
			return f, nil
		}
	}
}

// drain reads until the connection dies.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func tickerFrame(topic, price string) map[string]any {
	return map[string]any{
		"type":    "message",
		"topic":   topic,
		"subject": "trade.ticker",
		"data": map[string]any{
			"sequence": "1545896668986",
			"price":    price,
			"size":     "0.1",
			"bestAsk":  "0.08",
			"bestBid":  "0.07",
		},
	}
}

func testSessionConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.WelcomeTimeout = time.Second
	return cfg
}

func openSession(t *testing.T, srv *instanceServer, cfg SessionConfig) *Session {
	t.Helper()
	s, err := Open(context.Background(), &stubNegotiator{bullet: bulletFor(srv.url())}, cfg, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func nextEvent(t *testing.T, s *Session) router.Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if !ok {
			t.Fatal("events closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return nil
}

func TestSession_OpenActive(t *testing.T) {
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		drain(conn)
	})
	defer srv.Close()

	s := NewSession(&stubNegotiator{bullet: bulletFor(srv.url())}, testSessionConfig(), nil)
	if got := s.State(); got != StateIdle {
		t.Fatalf("State() = %v, want idle", got)
	}

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := s.State(); got != StateActive {
		t.Fatalf("State() = %v, want active", got)
	}

	q := srv.lastQuery()
	if q.Get("token") != "test-token" {
		t.Errorf("token = %q, want test-token", q.Get("token"))
	}
	if q.Get("connectId") != s.ConnectID() || s.ConnectID() == "" {
		t.Errorf("connectId = %q, want %q", q.Get("connectId"), s.ConnectID())
	}

	if err := s.Open(context.Background()); !errors.Is(err, ErrAlreadyOpened) {
		t.Errorf("second Open = %v, want ErrAlreadyOpened", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := s.State(); got != StateClosed {
		t.Errorf("State() after Close = %v, want closed", got)
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() after Close = %v, want nil", err)
	}
	if _, ok := <-s.Events(); ok {
		t.Error("expected events channel to be closed")
	}
}

func TestSession_CloseIdle(t *testing.T) {
	s := NewSession(&stubNegotiator{}, testSessionConfig(), nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := s.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
	if err := s.Open(context.Background()); !errors.Is(err, ErrAlreadyOpened) {
		t.Errorf("Open after Close = %v, want ErrAlreadyOpened", err)
	}
	if _, err := s.Subscribe(context.Background(), router.NewTopic(router.TopicTicker, "BTC-USDT"), false); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrSessionClosed", err)
	}
}

func TestSession_SubscribeBeforeOpen(t *testing.T) {
	s := NewSession(&stubNegotiator{}, testSessionConfig(), nil)
	defer s.Close()

	_, err := s.Subscribe(context.Background(), router.NewTopic(router.TopicTicker, "BTC-USDT"), false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe before Open = %v, want ErrNotConnected", err)
	}
}

func TestSession_SubscribeAckGating(t *testing.T) {
	gotSub := make(chan subscribeFrame, 1)
	release := make(chan struct{})

	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		f, err := readRequest(conn, FrameSubscribe)
		if err != nil {
			return
		}
		gotSub <- f
		<-release
		conn.WriteJSON(map[string]string{"id": f.ID, "type": "ack"})
		conn.WriteJSON(tickerFrame("/market/ticker:BTC-USD", "0.075"))
		drain(conn)
	})
	defer srv.Close()

	s := openSession(t, srv, testSessionConfig())
	ctx := context.Background()

	topic, err := router.ParseTopic("ticker:BTC-USD")
	if err != nil {
		t.Fatalf("ParseTopic failed: %v", err)
	}
	p, err := s.Subscribe(ctx, topic, false)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	var f subscribeFrame
	select {
	case f = <-gotSub:
	case <-time.After(time.Second):
		t.Fatal("server never saw subscribe")
	}
	if f.Topic != "ticker:BTC-USD" || f.PrivateChannel || !f.Response {
		t.Errorf("frame = %+v, want topic ticker:BTC-USD, public, response", f)
	}
	if f.ID != p.ID() {
		t.Errorf("frame id = %q, want %q", f.ID, p.ID())
	}

	active, err := s.ActiveTopics(ctx)
	if err != nil {
		t.Fatalf("ActiveTopics failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active before ack = %v, want none", active)
	}
	if p.Err() != nil {
		t.Errorf("Err() before ack = %v, want nil", p.Err())
	}

	close(release)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Wait(waitCtx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	active, err = s.ActiveTopics(ctx)
	if err != nil {
		t.Fatalf("ActiveTopics failed: %v", err)
	}
	if len(active) != 1 || !active[0].Equal(topic) {
		t.Errorf("active after ack = %v, want [%v]", active, topic)
	}

	ev := nextEvent(t, s)
	msg, ok := ev.(*router.Message[model.SymbolTicker])
	if !ok {
		t.Fatalf("event = %T, want ticker message", ev)
	}
	if msg.Kind != router.KindTicker || msg.Data.Price != "0.075" {
		t.Errorf("event = %+v", msg)
	}
	if msg.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should be set")
	}
}

func TestSession_UnsubscribeRemovesTopic(t *testing.T) {
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f subscribeFrame
			json.Unmarshal(data, &f)
			if f.Type == FrameSubscribe || f.Type == FrameUnsubscribe {
				conn.WriteJSON(map[string]string{"id": f.ID, "type": "ack"})
			}
		}
	})
	defer srv.Close()

	s := openSession(t, srv, testSessionConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	btc := router.NewTopic(router.TopicTicker, "BTC-USDT")
	eth := router.NewTopic(router.TopicMatch, "ETH-USDT")
	for _, topic := range []router.Topic{btc, eth} {
		p, err := s.Subscribe(ctx, topic, false)
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}

	p, err := s.Unsubscribe(ctx, btc)
	if err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	active, _ := s.ActiveTopics(ctx)
	if len(active) != 1 || !active[0].Equal(eth) {
		t.Errorf("active = %v, want [%v]", active, eth)
	}
}

func TestSession_SubscribeInvalidTopic(t *testing.T) {
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		drain(conn)
	})
	defer srv.Close()

	s := openSession(t, srv, testSessionConfig())

	_, err := s.Subscribe(context.Background(), router.NewTopic(router.TopicTicker), false)
	if !errors.Is(err, router.ErrInvalidTopic) {
		t.Errorf("Subscribe = %v, want ErrInvalidTopic", err)
	}
}

func TestSession_NoResponse(t *testing.T) {
	gotSub := make(chan subscribeFrame, 1)
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		if f, err := readRequest(conn, FrameSubscribe); err == nil {
			gotSub <- f
		}
		drain(conn)
	})
	defer srv.Close()

	s := openSession(t, srv, testSessionConfig())
	ctx := context.Background()

	topic := router.NewTopic(router.TopicBalances)
	p, err := s.Subscribe(ctx, topic, true, NoResponse())
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pending not resolved")
	}
	if p.Err() != nil {
		t.Errorf("Err() = %v, want nil", p.Err())
	}

	f := <-gotSub
	if f.Response || !f.PrivateChannel || f.Topic != "balances" {
		t.Errorf("frame = %+v, want private balances without response", f)
	}

	active, _ := s.ActiveTopics(ctx)
	if len(active) != 1 {
		t.Errorf("active = %v, want 1 topic", active)
	}
}

func TestSession_PathTopicFormat(t *testing.T) {
	gotSub := make(chan subscribeFrame, 1)
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		if f, err := readRequest(conn, FrameSubscribe); err == nil {
			gotSub <- f
		}
		drain(conn)
	})
	defer srv.Close()

	cfg := testSessionConfig()
	cfg.TopicFormat = PathFormat
	s := openSession(t, srv, cfg)

	if _, err := s.Subscribe(context.Background(), router.NewTopic(router.TopicTicker, "BTC-USDT", "ETH-USDT"), false); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case f := <-gotSub:
		if f.Topic != "/market/ticker:BTC-USDT,ETH-USDT" {
			t.Errorf("topic = %q, want venue path form", f.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("server never saw subscribe")
	}
}

func TestSession_ErrorFrameRejectsRequest(t *testing.T) {
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		f, err := readRequest(conn, FrameSubscribe)
		if err != nil {
			return
		}
		conn.WriteJSON(map[string]any{
			"id":   f.ID,
			"type": "error",
			"code": 404,
			"data": "topic /market/ticker:NOPE is not found",
		})
		drain(conn)
	})
	defer srv.Close()

	s := openSession(t, srv, testSessionConfig())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	p, err := s.Subscribe(ctx, router.NewTopic(router.TopicTicker, "NOPE"), false)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	err = p.Wait(ctx)
	var serr *ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("Wait = %v, want *ServerError", err)
	}
	if serr.Code != 404 || serr.Message != "topic /market/ticker:NOPE is not found" {
		t.Errorf("ServerError = %+v", serr)
	}

	active, _ := s.ActiveTopics(ctx)
	if len(active) != 0 {
		t.Errorf("active = %v, want none", active)
	}
	if s.State() != StateActive {
		t.Errorf("State() = %v, want active", s.State())
	}
}

func TestSession_UnknownAckIgnored(t *testing.T) {
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		conn.WriteJSON(map[string]string{"id": "nobody-asked", "type": "ack"})
		conn.WriteJSON(map[string]string{"id": "nobody-pinged", "type": "pong"})
		conn.WriteJSON(map[string]string{"id": "1", "type": "notice"})
		conn.WriteJSON(tickerFrame("/market/ticker:BTC-USDT", "1"))
		drain(conn)
	})
	defer srv.Close()

	s := openSession(t, srv, testSessionConfig())

	ev := nextEvent(t, s)
	if ev.EventMeta().Kind != router.KindTicker {
		t.Errorf("event kind = %v, want ticker", ev.EventMeta().Kind)
	}
	if s.State() != StateActive {
		t.Errorf("State() = %v, want active", s.State())
	}
}

func TestSession_UnknownTopicSingleEvent(t *testing.T) {
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		conn.WriteJSON(map[string]any{
			"type":    "message",
			"topic":   "/spotMarket/somethingNew:BTC-USDT",
			"subject": "brand.new",
			"data":    map[string]any{"x": 1},
		})
		conn.WriteJSON(tickerFrame("/market/ticker:BTC-USDT", "2"))
		drain(conn)
	})
	defer srv.Close()

	s := openSession(t, srv, testSessionConfig())

	ev := nextEvent(t, s)
	unk, ok := ev.(*router.Unknown)
	if !ok {
		t.Fatalf("event = %T, want *router.Unknown", ev)
	}
	if unk.Topic != "/spotMarket/somethingNew:BTC-USDT" || unk.Subject != "brand.new" {
		t.Errorf("unknown = %+v", unk.Meta)
	}
	if string(unk.Raw) != `{"x":1}` {
		t.Errorf("Raw = %s", unk.Raw)
	}

	// The next frame is the ticker; nothing else was emitted for the unknown.
	if ev := nextEvent(t, s); ev.EventMeta().Kind != router.KindTicker {
		t.Errorf("second event kind = %v, want ticker", ev.EventMeta().Kind)
	}
}

func TestSession_BinaryFrame(t *testing.T) {
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		conn.WriteMessage(websocket.BinaryMessage, []byte{0xde, 0xad})
		drain(conn)
	})
	defer srv.Close()

	s := openSession(t, srv, testSessionConfig())

	ev := nextEvent(t, s)
	bin, ok := ev.(*router.Binary)
	if !ok {
		t.Fatalf("event = %T, want *router.Binary", ev)
	}
	if len(bin.Data) != 2 || bin.Data[0] != 0xde {
		t.Errorf("Data = %x", bin.Data)
	}
}

func TestSession_AnswersServerPing(t *testing.T) {
	pong := make(chan controlFrame, 1)
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		conn.WriteJSON(map[string]string{"id": "srv-1", "type": "ping"})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f controlFrame
			json.Unmarshal(data, &f)
			if f.Type == FramePong {
				pong <- f
				drain(conn)
				return
			}
		}
	})
	defer srv.Close()

	openSession(t, srv, testSessionConfig())

	select {
	case f := <-pong:
		if f.ID != "srv-1" {
			t.Errorf("pong id = %q, want srv-1", f.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no pong for server ping")
	}
}

func TestSession_PongTimeoutWindow(t *testing.T) {
	const (
		interval = 200 * time.Millisecond
		timeout  = 100 * time.Millisecond
	)

	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		drain(conn) // never answers pings
	})
	defer srv.Close()

	cfg := testSessionConfig()
	cfg.PingInterval = interval
	cfg.PingTimeout = timeout
	s := openSession(t, srv, cfg)
	start := time.Now()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not fail")
	}
	elapsed := time.Since(start)

	if elapsed < interval {
		t.Errorf("failed after %v, before the first ping was due (%v)", elapsed, interval)
	}
	if elapsed > interval+timeout+150*time.Millisecond {
		t.Errorf("failed after %v, want within %v", elapsed, interval+timeout)
	}
	if s.State() != StateFailed {
		t.Errorf("State() = %v, want failed", s.State())
	}
	err := s.Err()
	if !errors.Is(err, ErrPongTimeout) || !errors.Is(err, ErrConnectionLost) {
		t.Errorf("Err() = %v, want pong timeout / connection lost", err)
	}
}

func TestSession_PongKeepsAlive(t *testing.T) {
	const (
		interval = 200 * time.Millisecond
		timeout  = 100 * time.Millisecond
		delay    = 80 * time.Millisecond
	)

	var pings atomic.Int32
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f controlFrame
			json.Unmarshal(data, &f)
			if f.Type != FramePing {
				continue
			}
			pings.Add(1)
			time.Sleep(delay)
			if err := conn.WriteJSON(controlFrame{ID: f.ID, Type: FramePong}); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	cfg := testSessionConfig()
	cfg.PingInterval = interval
	cfg.PingTimeout = timeout
	s := openSession(t, srv, cfg)

	select {
	case <-s.Done():
		t.Fatalf("session ended: %v", s.Err())
	case <-time.After(3*interval + interval/2):
	}

	if s.State() != StateActive {
		t.Errorf("State() = %v, want active", s.State())
	}
	if n := pings.Load(); n < 2 {
		t.Errorf("pings = %d, want at least 2", n)
	}
}

func TestSession_CloseCancelsPending(t *testing.T) {
	gotSub := make(chan struct{})
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		if _, err := readRequest(conn, FrameSubscribe); err == nil {
			close(gotSub)
		}
		drain(conn) // never acks
	})
	defer srv.Close()

	s := openSession(t, srv, testSessionConfig())

	p, err := s.Subscribe(context.Background(), router.NewTopic(router.TopicMatch, "BTC-USDT"), false)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	<-gotSub

	s.Close()

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pending not resolved by Close")
	}
	if !errors.Is(p.Err(), ErrCancelled) {
		t.Errorf("Err() = %v, want ErrCancelled", p.Err())
	}
}

func TestSession_ContextCancelCloses(t *testing.T) {
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		drain(conn)
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s, err := Open(ctx, &stubNegotiator{bullet: bulletFor(srv.url())}, testSessionConfig(), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not close on cancel")
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
}

func TestSession_EventsDrainedAfterFailure(t *testing.T) {
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		for i := 0; i < 3; i++ {
			conn.WriteJSON(tickerFrame("/market/ticker:BTC-USDT", fmt.Sprint(i)))
		}
		// Return without a close frame: the client sees an abnormal closure.
	})
	defer srv.Close()

	s := openSession(t, srv, testSessionConfig())

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not fail")
	}
	if s.State() != StateFailed || !errors.Is(s.Err(), ErrConnectionLost) {
		t.Errorf("State() = %v, Err() = %v, want failed / connection lost", s.State(), s.Err())
	}

	var prices []string
	for ev := range s.Events() {
		msg, ok := ev.(*router.Message[model.SymbolTicker])
		if !ok {
			t.Fatalf("event = %T", ev)
		}
		prices = append(prices, msg.Data.Price)
	}
	if len(prices) != 3 || prices[0] != "0" || prices[2] != "2" {
		t.Errorf("prices = %v, want [0 1 2]", prices)
	}
}

func TestSession_ServerCloseIsClean(t *testing.T) {
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		drain(conn)
	})
	defer srv.Close()

	s := openSession(t, srv, testSessionConfig())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not close")
	}
	if s.State() != StateClosed || s.Err() != nil {
		t.Errorf("State() = %v, Err() = %v, want closed / nil", s.State(), s.Err())
	}
}

func TestSession_WelcomeTimeout(t *testing.T) {
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		drain(conn) // never welcomes
	})
	defer srv.Close()

	cfg := testSessionConfig()
	cfg.WelcomeTimeout = 100 * time.Millisecond
	s := NewSession(&stubNegotiator{bullet: bulletFor(srv.url())}, cfg, nil)

	err := s.Open(context.Background())
	if !errors.Is(err, ErrWelcomeTimeout) || !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("Open = %v, want welcome timeout / connection lost", err)
	}
	if s.State() != StateFailed {
		t.Errorf("State() = %v, want failed", s.State())
	}
	if !errors.Is(s.Err(), ErrWelcomeTimeout) {
		t.Errorf("Err() = %v", s.Err())
	}
	if _, ok := <-s.Events(); ok {
		t.Error("expected events channel to be closed")
	}
}

func TestSession_UnexpectedFrameBeforeWelcome(t *testing.T) {
	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]string{"id": "1", "type": "ack"})
		drain(conn)
	})
	defer srv.Close()

	_, err := Open(context.Background(), &stubNegotiator{bullet: bulletFor(srv.url())}, testSessionConfig(), nil)
	if !errors.Is(err, ErrUnexpectedFrame) {
		t.Fatalf("Open = %v, want ErrUnexpectedFrame", err)
	}
}

func TestSession_DialFallthrough(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := wsURL(dead)
	dead.Close()

	srv := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		drain(conn)
	})
	defer srv.Close()

	s, err := Open(context.Background(), &stubNegotiator{bullet: bulletFor(deadURL, srv.url())}, testSessionConfig(), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if s.State() != StateActive {
		t.Errorf("State() = %v, want active", s.State())
	}
	if srv.lastQuery() == nil {
		t.Error("second server was not dialed")
	}
}

func TestSession_AllServersUnreachable(t *testing.T) {
	var urls []string
	for i := 0; i < 2; i++ {
		dead := httptest.NewServer(http.NotFoundHandler())
		urls = append(urls, wsURL(dead))
		dead.Close()
	}

	_, err := Open(context.Background(), &stubNegotiator{bullet: bulletFor(urls...)}, testSessionConfig(), nil)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Open = %v, want ErrUnreachable", err)
	}
}

func TestSession_NoInstanceServers(t *testing.T) {
	_, err := Open(context.Background(), &stubNegotiator{bullet: &api.Bullet{Token: "t"}}, testSessionConfig(), nil)
	if !errors.Is(err, api.ErrNoInstanceServers) {
		t.Fatalf("Open = %v, want ErrNoInstanceServers", err)
	}
}

func TestSession_NegotiateError(t *testing.T) {
	neg := &stubNegotiator{err: fmt.Errorf("bullet: %w", api.ErrAuthentication)}
	s := NewSession(neg, testSessionConfig(), nil)

	err := s.Open(context.Background())
	if !errors.Is(err, api.ErrAuthentication) {
		t.Fatalf("Open = %v, want ErrAuthentication", err)
	}
	if s.State() != StateFailed {
		t.Errorf("State() = %v, want failed", s.State())
	}
}

func TestSession_BootstrapThroughRESTClient(t *testing.T) {
	gotSub := make(chan subscribeFrame, 1)
	ws := newInstanceServer(t, func(conn *websocket.Conn) {
		welcome(conn)
		f, err := readRequest(conn, FrameSubscribe)
		if err != nil {
			return
		}
		gotSub <- f
		conn.WriteJSON(map[string]string{"id": f.ID, "type": "ack"})
		drain(conn)
	})
	defer ws.Close()

	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/bullet-public" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"code": "200000",
			"data": map[string]any{
				"token": "public-token",
				"instanceServers": []map[string]any{{
					"endpoint":     ws.url(),
					"encrypt":      false,
					"protocol":     "websocket",
					"pingInterval": 18000,
					"pingTimeout":  10000,
				}},
			},
		})
	}))
	defer rest.Close()

	client := api.NewClient(rest.URL)
	s, err := Open(context.Background(), client, testSessionConfig(), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if got := ws.lastQuery().Get("token"); got != "public-token" {
		t.Errorf("token = %q, want public-token", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := s.Subscribe(ctx, router.NewTopic(router.TopicTicker, "BTC-USD"), false)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if f := <-gotSub; f.Topic != "ticker:BTC-USD" {
		t.Errorf("topic = %q", f.Topic)
	}
}

func TestConnectURL(t *testing.T) {
	got, err := connectURL("wss://ws-api.example.com/endpoint", "tok en", "cid")
	if err != nil {
		t.Fatalf("connectURL failed: %v", err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "ws-api.example.com" || u.Path != "/endpoint" {
		t.Errorf("url = %s", got)
	}
	if u.Query().Get("token") != "tok en" || u.Query().Get("connectId") != "cid" {
		t.Errorf("query = %v", u.Query())
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:            "idle",
		StateAwaitingWelcome: "awaiting_welcome",
		StateActive:          "active",
		StateFailed:          "failed",
		State(42):            "state(42)",
	}
	for st, want := range tests {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(st), got, want)
		}
	}
	if !StateClosed.Terminal() || StateActive.Terminal() {
		t.Error("Terminal() mismatch")
	}
}
