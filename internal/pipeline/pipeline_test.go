package pipeline

import (
	"testing"
	"time"

	"github.com/duplicast/duplicast/internal/broadcast"
	"github.com/duplicast/duplicast/internal/capture"
	"github.com/duplicast/duplicast/internal/encoder"
	"github.com/duplicast/duplicast/internal/pool"
)

// fakeSource is a minimal capture.Source that produces a fixed-size BGRA
// frame on every call, so the pipeline's capture/encode loops can be
// exercised without a real X server.
type fakeSource struct {
	width, height int
}

func (f *fakeSource) Name() string { return "fake" }
func (f *fakeSource) InitMonitor(index int) error { return nil }
func (f *fakeSource) InitWindow(handle capture.WindowHandle, bounds capture.BoundsProvider) error {
	return nil
}
func (f *fakeSource) NextFrame(timeoutMs int) (*capture.Frame, error) {
	data := make([]byte, f.width*f.height*4)
	return capture.NewFrame(data, f.width, f.height, pool.BGRA, 0, 0, capture.CursorPos{}), nil
}
func (f *fakeSource) CopyToCPU(fr *capture.Frame, dst *pool.RawFrame) error {
	w, h := f.width, f.height
	stride := w * 4
	dst.Allocate(stride * h)
	dst.Width, dst.Height, dst.Stride = w, h, stride
	dst.Size = stride * h
	return nil
}
func (f *fakeSource) ReleaseFrame(fr *capture.Frame) error { return nil }
func (f *fakeSource) Close() error                          { return nil }

func newTestOrchestrator(t *testing.T, fps int) (*Orchestrator, *broadcast.Server) {
	t.Helper()
	source := &fakeSource{width: 64, height: 48}
	mgr := capture.NewManager(source, capture.Target{Monitor: new(int)})

	encPipe := encoder.New(encoder.Config{Quality: 50, DownscaleFactor: 1.0})
	server := broadcast.NewServer(broadcast.Config{Host: "127.0.0.1", Port: 0, MaxClients: 4, PingInterval: time.Hour})

	rawPool := pool.NewRawFramePool(64*48*4, 2)
	encPool := pool.NewEncodedFramePool(4096, 2)

	o := New(Config{TargetFPS: fps}, mgr, encPipe, server, rawPool, encPool)
	return o, server
}

func TestOrchestratorStartStopIsClean(t *testing.T) {
	o, _ := newTestOrchestrator(t, 60)
	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := o.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestOrchestratorProducesEncodedBytes(t *testing.T) {
	o, _ := newTestOrchestrator(t, 200)
	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer o.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.Snapshot().FramesEncoded > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected at least one frame to be encoded within the deadline")
}

func TestSnapshotReportsMeasuredCaptureFPS(t *testing.T) {
	o, _ := newTestOrchestrator(t, 200)
	if err := o.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer o.Stop()

	// Prime lastStatsAt/lastFramesCaptured with a first snapshot, then let
	// frames accumulate before measuring the delta-based rate.
	o.Snapshot()
	time.Sleep(200 * time.Millisecond)
	snap := o.Snapshot()
	if snap.CaptureFPS <= 0 {
		t.Fatalf("expected a positive measured capture fps, got %v", snap.CaptureFPS)
	}
	if snap.UptimeSeconds <= 0 {
		t.Fatalf("expected positive uptime after Start, got %v", snap.UptimeSeconds)
	}
	if snap.CurrentQuality != 50 {
		t.Fatalf("expected current_quality to mirror encoder config, got %d", snap.CurrentQuality)
	}
	if snap.CurrentDownscale != 1.0 {
		t.Fatalf("expected current_downscale to mirror encoder config, got %v", snap.CurrentDownscale)
	}
}

func TestSnapshotBeforeStartReportsZeroRates(t *testing.T) {
	o, _ := newTestOrchestrator(t, 60)
	snap := o.Snapshot()
	if snap.CaptureFPS != 0 || snap.EncodeFPS != 0 || snap.StreamFPS != 0 {
		t.Fatalf("expected zero rates before any frames flow, got capture=%v encode=%v stream=%v", snap.CaptureFPS, snap.EncodeFPS, snap.StreamFPS)
	}
}

func TestSetQualityTakesEffect(t *testing.T) {
	o, _ := newTestOrchestrator(t, 60)
	o.SetQuality(10)
	if got := o.encPipe.Config().Quality; got != 10 {
		t.Fatalf("expected quality 10, got %d", got)
	}
}

func TestApplyPresetForwardsToEncoder(t *testing.T) {
	o, _ := newTestOrchestrator(t, 60)
	if !o.ApplyPreset(encoder.PresetQuality) {
		t.Fatal("expected PresetQuality to be recognized")
	}
	if got := o.encPipe.Config().Quality; got != 85 {
		t.Fatalf("expected quality 85 from PresetQuality, got %d", got)
	}
}

func TestApplyPresetAlsoUpdatesTargetFPS(t *testing.T) {
	o, _ := newTestOrchestrator(t, 60)
	if !o.ApplyPreset(encoder.PresetBalanced) {
		t.Fatal("expected PresetBalanced to be recognized")
	}
	if got := o.targetFPS(); got != 45 {
		t.Fatalf("expected target_fps 45 from balanced preset, got %d", got)
	}
}

func TestSetTargetFPSAffectsPacer(t *testing.T) {
	o, _ := newTestOrchestrator(t, 60)
	o.SetTargetFPS(120)
	if got := o.targetFPS(); got != 120 {
		t.Fatalf("expected targetFPS 120, got %d", got)
	}
}

func TestStopBeforeStartIsSafe(t *testing.T) {
	o, _ := newTestOrchestrator(t, 60)
	// wg has no Add calls yet, Wait returns immediately.
	if err := o.Stop(); err != nil {
		t.Fatalf("Stop before Start should not error, got: %v", err)
	}
}
