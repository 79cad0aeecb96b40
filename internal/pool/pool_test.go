package pool

import "testing"

func TestRawFramePoolAcquireReleaseConservesFreeCount(t *testing.T) {
	p := NewRawFramePool(1024, 4)
	before := p.FreeCount()

	buf := p.Acquire()
	if p.FreeCount() != before-1 {
		t.Fatalf("expected free count to drop by one, got %d", p.FreeCount())
	}

	p.Release(buf)
	if p.FreeCount() != before {
		t.Fatalf("expected free count to return to %d, got %d", before, p.FreeCount())
	}
}

func TestRawFramePoolSoftOverflow(t *testing.T) {
	p := NewRawFramePool(64, 1)
	a := p.Acquire()
	b := p.Acquire() // pool exhausted, should synthesize rather than block
	if b == nil {
		t.Fatal("expected synthesized overflow buffer, got nil")
	}
	if p.Synthesized() != 1 {
		t.Fatalf("expected 1 synthesized buffer, got %d", p.Synthesized())
	}
	p.Release(a)
	p.Release(b)
}

func TestRawFramePoolBoundsFreeListGrowth(t *testing.T) {
	p := NewRawFramePool(64, 2)
	var bufs []*RawFrame
	for i := 0; i < 10; i++ {
		bufs = append(bufs, p.Acquire())
	}
	for _, b := range bufs {
		p.Release(b)
	}
	if got := p.FreeCount(); got > 2*2 {
		t.Fatalf("free count %d exceeds 2*poolSize", got)
	}
}

func TestRawFrameAllocateNeverShrinks(t *testing.T) {
	f := &RawFrame{Data: newAlignedBytes(128), Capacity: 128}
	f.Allocate(64)
	if f.Capacity != 128 {
		t.Fatalf("expected Allocate with smaller cap to be a no-op, got %d", f.Capacity)
	}
	f.Allocate(256)
	if f.Capacity != 256 {
		t.Fatalf("expected capacity to grow to 256, got %d", f.Capacity)
	}
}

func TestRawFrameResetPreservesCapacity(t *testing.T) {
	f := &RawFrame{Data: newAlignedBytes(256), Capacity: 256, Size: 100, Width: 10, Height: 10}
	f.Reset()
	if f.Capacity != 256 {
		t.Fatalf("expected capacity preserved, got %d", f.Capacity)
	}
	if f.Size != 0 || f.Width != 0 || f.Height != 0 {
		t.Fatal("expected size/dims zeroed")
	}
}

func TestEncodedFramePoolAcquireReleaseConservesFreeCount(t *testing.T) {
	p := NewEncodedFramePool(4096, 4)
	before := p.FreeCount()
	f := p.Acquire()
	f.Bytes = append(f.Bytes, 1, 2, 3)
	p.Release(f)
	if p.FreeCount() != before {
		t.Fatalf("expected free count restored, got %d", p.FreeCount())
	}
	if f.Size() != 0 {
		t.Fatalf("expected released frame reset to zero length, got %d", f.Size())
	}
}
