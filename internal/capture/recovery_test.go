package capture

import (
	"errors"
	"testing"

	"github.com/duplicast/duplicast/internal/pool"
)

// fakeSource lets the recovery Manager's retry logic be tested
// without a real X server.
type fakeSource struct {
	initCalls      int
	failInitUntil  int
	nextFrameCalls int
	failNextFrames int
	nextFrameErr   error
	frame          *Frame
}

func (f *fakeSource) InitMonitor(index int) error {
	f.initCalls++
	if f.initCalls <= f.failInitUntil {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeSource) InitWindow(handle WindowHandle, bounds BoundsProvider) error {
	return f.InitMonitor(0)
}

func (f *fakeSource) NextFrame(timeoutMs int) (*Frame, error) {
	f.nextFrameCalls++
	if f.nextFrameCalls <= f.failNextFrames {
		return nil, f.nextFrameErr
	}
	return f.frame, nil
}

func (f *fakeSource) CopyToCPU(fr *Frame, dst *pool.RawFrame) error { return nil }
func (f *fakeSource) ReleaseFrame(fr *Frame) error                  { return nil }
func (f *fakeSource) Close() error                                  { return nil }
func (f *fakeSource) Name() string                                  { return "fake" }

func TestManagerInitializesLazilyOnFirstCall(t *testing.T) {
	src := &fakeSource{}
	m := NewManager(src, Target{})
	if src.initCalls != 0 {
		t.Fatal("expected no init call before first NextFrame")
	}
	if _, err := m.NextFrame(10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.initCalls != 1 {
		t.Fatalf("expected exactly one init call, got %d", src.initCalls)
	}
}

func TestManagerRetriesInitUpToBound(t *testing.T) {
	src := &fakeSource{failInitUntil: 2}
	m := NewManager(src, Target{})
	if _, err := m.NextFrame(10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.initCalls != 3 {
		t.Fatalf("expected 3 init attempts, got %d", src.initCalls)
	}
}

func TestManagerPropagatesFatalInitFailure(t *testing.T) {
	src := &fakeSource{failInitUntil: 100}
	m := NewManager(src, Target{})
	_, err := m.NextFrame(10)
	if err == nil {
		t.Fatal("expected an error once the retry bound is exhausted")
	}
	if src.initCalls != defaultMaxInitRetries {
		t.Fatalf("expected exactly %d attempts, got %d", defaultMaxInitRetries, src.initCalls)
	}
}

func TestManagerReinitsOnNotInitialized(t *testing.T) {
	src := &fakeSource{nextFrameErr: ErrNotInitialized, failNextFrames: 1}
	m := NewManager(src, Target{})
	m.initialized = true // simulate a source that was initialized then lost it
	if _, err := m.NextFrame(10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.initCalls == 0 {
		t.Fatal("expected manager to re-init after ErrNotInitialized")
	}
}
