// Package pool implements the pre-allocated, reusable buffers that let the
// capture and encode stages hand frames downstream without allocating on
// the hot path.
package pool

import (
	"sync"

	"github.com/duplicast/duplicast/internal/logger"
)

// PixelFormat identifies the channel layout of a RawFrame's pixel data.
type PixelFormat int

// BGRA is the only pixel format captured frames are ever populated with;
// the field still exists so a future capture backend can report something
// else without changing RawFrame's shape.
const BGRA PixelFormat = 0

// RawFrame is a captured image: a page-aligned byte region plus the
// metadata needed to interpret it. It is owned exclusively by whichever
// stage currently holds it (pool free-list, capture thread, Q1, or the
// encode thread).
type RawFrame struct {
	Data         []byte
	Capacity     int
	Size         int
	Width        int
	Height       int
	Stride       int
	PixelFormat  PixelFormat
	TimestampNs  int64
	FrameID      uint64
}

// Allocate grows the frame's backing region to at least cap bytes. It
// never shrinks an existing, larger allocation.
func (f *RawFrame) Allocate(cap int) {
	if cap <= f.Capacity {
		return
	}
	buf := newAlignedBytes(cap)
	copy(buf, f.Data[:f.Size])
	f.Data = buf
	f.Capacity = cap
}

// Reset zeros the frame's size and dimensions but preserves its capacity
// so the backing allocation can be reused without another syscall/alloc.
func (f *RawFrame) Reset() {
	f.Size = 0
	f.Width = 0
	f.Height = 0
	f.Stride = 0
	f.TimestampNs = 0
	f.FrameID = 0
}

// RawFramePool pre-allocates PoolSize RawFrames of BufferSize capacity and
// hands them out on Acquire/Release. A single mutex guards the free list;
// every operation under it is O(1).
type RawFramePool struct {
	mu         sync.Mutex
	free       []*RawFrame
	bufferSize int
	poolSize   int
	synthesized uint64 // count of soft-overflow allocations, for stats
}

// NewRawFramePool pre-allocates poolSize buffers of bufferSize bytes each.
func NewRawFramePool(bufferSize, poolSize int) *RawFramePool {
	p := &RawFramePool{
		bufferSize: bufferSize,
		poolSize:   poolSize,
		free:       make([]*RawFrame, 0, poolSize),
	}
	for i := 0; i < poolSize; i++ {
		p.free = append(p.free, &RawFrame{
			Data:     newAlignedBytes(bufferSize),
			Capacity: bufferSize,
		})
	}
	return p
}

// Acquire returns a free buffer. If the free list is empty it synthesizes
// a new one rather than blocking the capture thread — a soft overflow that
// is tolerated for hot-path safety and recorded in stats.
func (p *RawFramePool) Acquire() *RawFrame {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.synthesized++
		overflow := p.synthesized
		p.mu.Unlock()
		logger.WithComponent("pool").Warn().
			Uint64("synthesized_total", overflow).
			Msg("raw frame pool exhausted, synthesizing overflow buffer")
		return &RawFrame{
			Data:     newAlignedBytes(p.bufferSize),
			Capacity: p.bufferSize,
		}
	}
	buf := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()
	return buf
}

// Release returns buf to the free list, unless the free list already holds
// 2*poolSize buffers, in which case it is dropped so the pool cannot grow
// unboundedly under a sustained burst of soft overflows.
func (p *RawFramePool) Release(buf *RawFrame) {
	buf.Reset()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= 2*p.poolSize {
		return
	}
	p.free = append(p.free, buf)
}

// FreeCount returns the number of buffers currently on the free list.
func (p *RawFramePool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Synthesized returns the number of soft-overflow buffers allocated since
// construction.
func (p *RawFramePool) Synthesized() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.synthesized
}
