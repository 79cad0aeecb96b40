package broadcast

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duplicast/duplicast/internal/logger"
	"github.com/duplicast/duplicast/internal/ring"
	"github.com/gorilla/websocket"
)

// outboundRingCapacity bounds how many undelivered frames a slow client
// can accumulate before push_frame starts dropping frames for it alone.
const outboundRingCapacity = 8

// client is a single connected viewer: its websocket connection, its
// outbound SPSC ring, and the CAS-guarded "writing" flag that lets
// push_frame resume a dormant writer without spawning a second one.
type client struct {
	id   string
	conn *websocket.Conn

	outbound *ring.Ring[[]byte]
	writing  atomic.Bool
	writeMu  sync.Mutex // serializes all writes to conn (frames + pings)

	connectedAt time.Time
	lastPingAt  time.Time
	latencyMs   atomic.Int64 // milliseconds, fixed-point-free since it's always >= 0 and small

	framesSent uint64
	bytesSent  uint64
	dropped    uint64

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:          id,
		conn:        conn,
		outbound:    ring.New[[]byte](outboundRingCapacity),
		connectedAt: time.Now(),
		closed:      make(chan struct{}),
	}
}

// setTCPOptions disables Nagle's algorithm on the underlying socket, the
// way spec.md §4.G's "low-latency stream options" requires.
func (c *client) setTCPOptions() {
	if tcp, ok := c.conn.UnderlyingConn().(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
}

// pushFrame tries to enqueue data for delivery. A full ring drops the
// frame for this client only and is not an error.
func (c *client) pushFrame(data []byte) {
	if !c.outbound.TryPush(data) {
		atomic.AddUint64(&c.dropped, 1)
		return
	}
	c.wake()
}

// wake starts the write loop if it is not already running, via
// compare-and-swap so a dormant writer is resumed exactly once even when
// multiple push_frame calls race to wake it.
func (c *client) wake() {
	if c.writing.CompareAndSwap(false, true) {
		go c.writeLoop()
	}
}

func (c *client) writeLoop() {
	for {
		item, ok := c.outbound.TryPop()
		if !ok {
			c.writing.Store(false)
			// A push_frame may have landed between our last TryPop and
			// the Store above without observing writing==true; resume
			// if the ring is non-empty again.
			if c.outbound.Empty() || !c.writing.CompareAndSwap(false, true) {
				return
			}
			continue
		}

		c.writeMu.Lock()
		err := c.conn.WriteMessage(websocket.BinaryMessage, item)
		c.writeMu.Unlock()
		if err != nil {
			logger.WithComponent("broadcast").Debug().Str("client", c.id).Err(err).Msg("write failed, closing client")
			c.triggerClose()
			return
		}
		atomic.AddUint64(&c.framesSent, 1)
		atomic.AddUint64(&c.bytesSent, uint64(len(item)))
	}
}

// ping writes a ping frame and records the send time for latency
// computation on the matching pong.
func (c *client) ping() error {
	c.lastPingAt = time.Now()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// onPong records latency_ms = (now - last_ping) / 2.
func (c *client) onPong(string) error {
	if !c.lastPingAt.IsZero() {
		c.latencyMs.Store(time.Since(c.lastPingAt).Milliseconds() / 2)
	}
	return nil
}

func (c *client) triggerClose() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// stats is a point-in-time snapshot of this client's counters.
type stats struct {
	ID          string
	ConnectedAt time.Time
	LatencyMs   int64
	FramesSent  uint64
	BytesSent   uint64
	Dropped     uint64
}

func (c *client) snapshot() stats {
	return stats{
		ID:          c.id,
		ConnectedAt: c.connectedAt,
		LatencyMs:   c.latencyMs.Load(),
		FramesSent:  atomic.LoadUint64(&c.framesSent),
		BytesSent:   atomic.LoadUint64(&c.bytesSent),
		Dropped:     atomic.LoadUint64(&c.dropped),
	}
}
