package pool

import (
	"sync"

	"github.com/duplicast/duplicast/internal/logger"
)

// EncodedFrame is a compressed payload: bytes[0:Size] is a complete JPEG
// bitstream whenever Size > 0. Unlike RawFrame it backs onto a growable
// byte slice rather than a fixed page-aligned region, since compressed
// size varies frame to frame.
type EncodedFrame struct {
	Bytes         []byte
	Width         int
	Height        int
	TimestampNs   int64
	FrameID       uint64
	EncodeTimeMs  float64
}

// Size returns the number of valid bytes currently held.
func (f *EncodedFrame) Size() int {
	return len(f.Bytes)
}

// Grow ensures the frame's backing slice has at least cap bytes of
// capacity without touching its current contents length.
func (f *EncodedFrame) Grow(cap int) {
	if c := cap; c > 0 && c > len(f.Bytes) {
		grown := make([]byte, len(f.Bytes), c)
		copy(grown, f.Bytes)
		f.Bytes = grown
	}
}

// Reset truncates the frame to zero length but keeps the underlying
// allocation for reuse.
func (f *EncodedFrame) Reset() {
	f.Bytes = f.Bytes[:0]
	f.Width = 0
	f.Height = 0
	f.TimestampNs = 0
	f.FrameID = 0
	f.EncodeTimeMs = 0
}

// EncodedFramePool mirrors RawFramePool's acquire/release contract for the
// encode stage's output buffers.
type EncodedFramePool struct {
	mu          sync.Mutex
	free        []*EncodedFrame
	initialCap  int
	poolSize    int
	synthesized uint64
}

// NewEncodedFramePool pre-allocates poolSize frames with initialCap bytes
// of backing capacity each.
func NewEncodedFramePool(initialCap, poolSize int) *EncodedFramePool {
	p := &EncodedFramePool{
		initialCap: initialCap,
		poolSize:   poolSize,
		free:       make([]*EncodedFrame, 0, poolSize),
	}
	for i := 0; i < poolSize; i++ {
		p.free = append(p.free, &EncodedFrame{Bytes: make([]byte, 0, initialCap)})
	}
	return p
}

// Acquire returns a free frame, synthesizing one on soft overflow.
func (p *EncodedFramePool) Acquire() *EncodedFrame {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.synthesized++
		overflow := p.synthesized
		p.mu.Unlock()
		logger.WithComponent("pool").Warn().
			Uint64("synthesized_total", overflow).
			Msg("encoded frame pool exhausted, synthesizing overflow buffer")
		return &EncodedFrame{Bytes: make([]byte, 0, p.initialCap)}
	}
	f := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()
	return f
}

// Release returns f to the free list unless it is already at 2*poolSize.
func (p *EncodedFramePool) Release(f *EncodedFrame) {
	f.Reset()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= 2*p.poolSize {
		return
	}
	p.free = append(p.free, f)
}

// FreeCount returns the number of frames currently on the free list.
func (p *EncodedFramePool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
