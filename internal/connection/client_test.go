package connection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testClientConfig(server *httptest.Server) ClientConfig {
	return ClientConfig{
		URL:          wsURL(server),
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_ConnectRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(server)
	server.Close()

	client := NewClient(ClientConfig{URL: url, HandshakeTimeout: time.Second}, nil)
	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false")
	}
}

func TestClient_ConnectAfterClose(t *testing.T) {
	client := NewClient(ClientConfig{URL: "ws://localhost:1"}, nil)
	client.Close()

	if err := client.Connect(context.Background()); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_Send(t *testing.T) {
	var received []byte
	var mu sync.Mutex

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	testMsg := []byte(`{"id":"1","type":"ping"}`)
	if err := client.Send(testMsg); err != nil {
		t.Errorf("Send failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if string(received) != string(testMsg) {
		t.Errorf("received %q, want %q", received, testMsg)
	}
}

func TestClient_Messages(t *testing.T) {
	testMessages := []string{
		`{"id":"1","type":"message","data":1}`,
		`{"id":"2","type":"message","data":2}`,
		`{"id":"3","type":"message","data":3}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}); err != nil {
			return
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	// Unbuffered: every frame must still arrive.
	cfg := testClientConfig(server)
	cfg.BufferSize = 0
	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	timeout := time.After(500 * time.Millisecond)
	var received []TimestampedMessage
	for len(received) < len(testMessages)+1 {
		select {
		case msg := <-client.Messages():
			received = append(received, msg)
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for messages, received %d", len(received))
		}
	}

	for i, want := range testMessages {
		if string(received[i].Data) != want || received[i].Binary {
			t.Errorf("message %d: got %q (binary=%v), want text %q", i, received[i].Data, received[i].Binary, want)
		}
	}
	if last := received[len(testMessages)]; !last.Binary || len(last.Data) != 2 {
		t.Errorf("last message = %+v, want 2-byte binary frame", last)
	}
}

func TestClient_ReadError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("error = %v, want normal closure", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for read error")
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient(ClientConfig{URL: "ws://localhost:12345"}, nil)

	if err := client.Send([]byte("test")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestClient_PingHandler(t *testing.T) {
	pong := make(chan string, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.SetPongHandler(func(data string) error {
			pong <- data
			return nil
		})
		if err := conn.WriteControl(websocket.PingMessage, []byte("heartbeat"), time.Now().Add(time.Second)); err != nil {
			t.Logf("ping error: %v", err)
			return
		}
		// Control frames are processed by the read loop.
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		conn.ReadMessage()
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case data := <-pong:
		if data != "heartbeat" {
			t.Errorf("pong payload = %q, want heartbeat", data)
		}
	case <-time.After(time.Second):
		t.Fatal("no pong for protocol ping")
	}
}

func TestDefaultConfigs(t *testing.T) {
	clientCfg := DefaultClientConfig()
	if clientCfg.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", clientCfg.HandshakeTimeout)
	}
	if clientCfg.WriteTimeout != 5*time.Second {
		t.Errorf("WriteTimeout = %v, want 5s", clientCfg.WriteTimeout)
	}

	sessCfg := DefaultSessionConfig()
	if sessCfg.WelcomeTimeout != 10*time.Second {
		t.Errorf("WelcomeTimeout = %v, want 10s", sessCfg.WelcomeTimeout)
	}
	if sessCfg.EventBufferSize != 1024 {
		t.Errorf("EventBufferSize = %d, want 1024", sessCfg.EventBufferSize)
	}

	supCfg := DefaultSupervisorConfig()
	if supCfg.ReconnectBaseWait != time.Second || supCfg.ReconnectMaxWait != time.Minute {
		t.Errorf("reconnect waits = %v/%v, want 1s/1m", supCfg.ReconnectBaseWait, supCfg.ReconnectMaxWait)
	}
}
