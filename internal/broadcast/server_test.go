package broadcast

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startTestServer(t *testing.T, maxClients int) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(Config{MaxClients: maxClients, PingInterval: time.Hour})
	ts := httptest.NewServer(s.router)
	t.Cleanup(ts.Close)
	return s, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPushFrameDeliversToConnectedClient(t *testing.T) {
	s, ts := startTestServer(t, 4)
	conn := dialWS(t, ts)

	// Give the server a moment to register the client.
	deadline := time.Now().Add(time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.ClientCount() != 1 {
		t.Fatalf("expected 1 registered client, got %d", s.ClientCount())
	}

	payload := []byte{0xFF, 0xD8, 0x01, 0x02}
	s.PushFrame(payload)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read pushed frame: %v", err)
	}
	if string(msg) != string(payload) {
		t.Fatalf("unexpected payload: %x", msg)
	}
}

func TestMaxClientsRejectsExtraConnection(t *testing.T) {
	_, ts := startTestServer(t, 1)
	dialWS(t, ts) // consumes the only slot

	time.Sleep(20 * time.Millisecond)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected the second connection to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", resp)
	}
}

func TestPushFrameDropsForFullRingWithoutBlocking(t *testing.T) {
	s, ts := startTestServer(t, 4)
	dialWS(t, ts) // never read from, so its ring fills up

	deadline := time.Now().Add(time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < outboundRingCapacity*4; i++ {
			s.PushFrame([]byte{byte(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PushFrame blocked on a full client ring")
	}
}

func TestAverageLatencyMsZeroWithNoClients(t *testing.T) {
	s, _ := startTestServer(t, 4)
	if got := s.AverageLatencyMs(); got != 0 {
		t.Fatalf("expected 0 average latency with no clients, got %v", got)
	}
}

func TestAverageLatencyMsIgnoresClientsWithoutAPong(t *testing.T) {
	s, ts := startTestServer(t, 4)
	dialWS(t, ts)

	deadline := time.Now().Add(time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := s.AverageLatencyMs(); got != 0 {
		t.Fatalf("expected 0 average latency before any pong is recorded, got %v", got)
	}
}

func TestClientIDFallsBackWhenRemoteAddrUnparsable(t *testing.T) {
	r := &http.Request{RemoteAddr: "not-a-host-port"}
	id := clientID(r)
	if id == "" {
		t.Fatal("expected a non-empty fallback id")
	}
	if id == r.RemoteAddr {
		t.Fatal("expected fallback id to differ from the unparsable RemoteAddr")
	}
}

func TestClientIDUsesRemoteAddrWhenParsable(t *testing.T) {
	r := &http.Request{RemoteAddr: "127.0.0.1:54321"}
	if got := clientID(r); got != r.RemoteAddr {
		t.Fatalf("expected %s, got %s", r.RemoteAddr, got)
	}
}
