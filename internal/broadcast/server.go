// Package broadcast accepts viewer connections over websocket, registers
// each as a client with its own outbound SPSC ring and single writer
// goroutine, and fans encoded frames out to all of them without letting a
// slow client block the others — spec.md §4.G.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/duplicast/duplicast/internal/logger"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Config configures the broadcast server.
type Config struct {
	Host         string
	Port         int
	MaxClients   int
	PingInterval time.Duration
}

// Server accepts websocket connections, maintains the client registry,
// and drives fan-out.
type Server struct {
	cfg Config

	mu      sync.RWMutex
	clients map[string]*client

	upgrader websocket.Upgrader
	router   *mux.Router
	http     *http.Server

	onConnect    func(id string)
	onDisconnect func(id string)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewServer constructs a Server without starting to listen.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:     cfg,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		stopCh: make(chan struct{}),
	}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/stats", s.handleStats)
	return s
}

// OnClientConnect registers a callback fired after a client is registered.
func (s *Server) OnClientConnect(fn func(id string)) { s.onConnect = fn }

// OnClientDisconnect registers a callback fired after a client is removed.
func (s *Server) OnClientDisconnect(fn func(id string)) { s.onDisconnect = fn }

// Start begins listening and the per-client ping cadence. It returns once
// the listener is up; serving happens on a background goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("broadcast: listen on %s: %w", addr, err)
	}

	s.http = &http.Server{Handler: s.router}
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.WithComponent("broadcast").Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()

	go s.pingLoop()
	logger.WithComponent("broadcast").Info().Str("addr", addr).Msg("broadcast server listening")
	return nil
}

// Stop closes all client connections and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	for id, c := range s.clients {
		c.conn.Close()
		delete(s.clients, id)
	}
	s.mu.Unlock()

	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(ctx)
	}
	return nil
}

// PushFrame fans data out to every registered client. It takes a shared
// read lock on the registry and never blocks on a slow consumer: a full
// per-client ring just drops the frame for that client.
func (s *Server) PushFrame(data []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		c.pushFrame(data)
	}
}

// ClientCount returns the number of currently registered clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// AverageLatencyMs returns the mean ping/pong latency across connected
// clients that have completed at least one round trip. Clients with no
// recorded latency yet don't pull the average down to zero.
func (s *Server) AverageLatencyMs() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	var n int
	for _, c := range s.clients {
		if lat := c.latencyMs.Load(); lat > 0 {
			sum += lat
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	full := s.cfg.MaxClients > 0 && len(s.clients) >= s.cfg.MaxClients
	s.mu.RUnlock()
	if full {
		http.Error(w, ErrMaxClients.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("broadcast").Warn().Err(err).Msg("websocket handshake failed")
		return
	}

	id := clientID(r)
	c := newClient(id, conn)
	c.setTCPOptions()
	conn.SetPongHandler(c.onPong)

	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()

	if s.onConnect != nil {
		s.onConnect(id)
	}
	logger.WithComponent("broadcast").Info().Str("client", id).Msg("client connected")

	s.readPump(c)
}

// readPump handles control messages and peer-close/read-error detection.
// Control message payloads are accepted but treated as opaque.
func (s *Server) readPump(c *client) {
	defer s.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()

	c.conn.Close()
	c.triggerClose()

	if s.onDisconnect != nil {
		s.onDisconnect(c.id)
	}
	logger.WithComponent("broadcast").Info().Str("client", c.id).Msg("client disconnected")
}

func (s *Server) pingLoop() {
	interval := s.cfg.PingInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			targets := make([]*client, 0, len(s.clients))
			for _, c := range s.clients {
				targets = append(targets, c)
			}
			s.mu.RUnlock()

			for _, c := range targets {
				if err := c.ping(); err != nil {
					logger.WithComponent("broadcast").Debug().Str("client", c.id).Err(err).Msg("ping failed")
				}
			}
		}
	}
}

// StatsSnapshot is the JSON body served at /stats.
type StatsSnapshot struct {
	ClientCount int      `json:"client_count"`
	Clients     []stats  `json:"clients"`
}

func (s *Server) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := StatsSnapshot{ClientCount: len(s.clients), Clients: make([]stats, 0, len(s.clients))}
	for _, c := range s.clients {
		snap.Clients = append(snap.Clients, c.snapshot())
	}
	return snap
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Snapshot())
}

// clientID derives a registry key from the request's remote address,
// falling back to a random id when RemoteAddr doesn't parse as
// host:port (e.g. behind certain proxies or in tests).
func clientID(r *http.Request) string {
	if r.RemoteAddr != "" {
		if _, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return r.RemoteAddr
		}
	}
	return uuid.NewString()
}
