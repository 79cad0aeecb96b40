package encoder

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"testing"
)

func buildBGRA(w, h int) []byte {
	buf := make([]byte, w*h*4)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	return buf
}

func TestEncodePassThroughWithoutVR(t *testing.T) {
	p := New(Config{Quality: 80, DownscaleFactor: 1.0, VREnabled: false})
	input := buildBGRA(64, 64)
	var out []byte
	n, err := p.Encode(input, 64, 64, 64*4, 4, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n == 0 {
		t.Fatal("expected non-zero bytes written")
	}
	stats := p.Stats()
	if stats.Frames != 1 {
		t.Fatalf("expected 1 frame recorded, got %d", stats.Frames)
	}
	if stats.LastStereoMs != 0 {
		t.Fatalf("expected zero stereo time when VR disabled, got %v", stats.LastStereoMs)
	}
}

func TestEncodeDownscaleAppliesWithoutVR(t *testing.T) {
	p := New(Config{Quality: 80, DownscaleFactor: 0.5, VREnabled: false})
	input := buildBGRA(64, 64)
	var out []byte
	n, err := p.Encode(input, 64, 64, 64*4, 4, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n == 0 {
		t.Fatal("expected non-zero bytes written")
	}
	img, _, err := image.Decode(bytes.NewReader(out[:n]))
	if err != nil {
		t.Fatalf("failed to decode output jpeg: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 32 || bounds.Dy() != 32 {
		t.Fatalf("expected downscaled output 32x32, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestEncodeOutputResolutionAppliesWithoutVR(t *testing.T) {
	p := New(Config{Quality: 80, DownscaleFactor: 1.0, OutputWidth: 48, OutputHeight: 24, VREnabled: false})
	input := buildBGRA(64, 64)
	var out []byte
	n, err := p.Encode(input, 64, 64, 64*4, 4, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(out[:n]))
	if err != nil {
		t.Fatalf("failed to decode output jpeg: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 48 || bounds.Dy() != 24 {
		t.Fatalf("expected output resolution 48x24, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestEncodeWithVRProducesSideBySideDims(t *testing.T) {
	p := New(Config{Quality: 80, DownscaleFactor: 1.0, VREnabled: true, EyeSeparation: 0.02})
	input := buildBGRA(64, 64)
	var out []byte
	n, err := p.Encode(input, 64, 64, 64*4, 4, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n == 0 {
		t.Fatal("expected non-zero bytes written")
	}
	img, _, err := image.Decode(bytes.NewReader(out[:n]))
	if err != nil {
		t.Fatalf("failed to decode output jpeg: %v", err)
	}
	// Downscale 1.0 keeps 64x64; each eye is 32 wide.
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Fatalf("expected side-by-side output 64x64, got %dx%d", b.Dx(), b.Dy())
	}
	stats := p.Stats()
	if stats.LastCompressRatio <= 0 {
		t.Fatal("expected a positive compression ratio")
	}
}

func TestUpdateConfigTakesEffectOnNextEncode(t *testing.T) {
	p := New(Config{Quality: 50, DownscaleFactor: 1.0})
	p.UpdateConfig(Config{Quality: 90, DownscaleFactor: 0.5})
	if got := p.Config().Quality; got != 90 {
		t.Fatalf("expected updated quality 90, got %d", got)
	}
}

func TestApplyPresetIdempotent(t *testing.T) {
	p := New(Config{Quality: 10, DownscaleFactor: 1.0})
	if !p.ApplyPreset(PresetBalanced) {
		t.Fatal("expected ApplyPreset to succeed for a known preset")
	}
	first := p.Config()
	if !p.ApplyPreset(PresetBalanced) {
		t.Fatal("expected ApplyPreset to succeed again")
	}
	second := p.Config()
	if first.Quality != second.Quality || first.DownscaleFactor != second.DownscaleFactor {
		t.Fatal("expected applying the same preset twice to be a no-op")
	}
}

func TestApplyPresetUnknownReturnsFalse(t *testing.T) {
	p := New(Config{Quality: 50, DownscaleFactor: 1.0})
	if p.ApplyPreset("nonexistent") {
		t.Fatal("expected unknown preset to be rejected")
	}
}

func TestApplyPresetMatchesOriginalTable(t *testing.T) {
	p := New(Config{Quality: 10, DownscaleFactor: 1.0})
	if !p.ApplyPreset(PresetUltraPerformance) {
		t.Fatal("expected ultra_performance to be a known preset")
	}
	cfg := p.Config()
	if cfg.Quality != 40 || cfg.DownscaleFactor != 0.35 {
		t.Fatalf("expected ultra_performance to set quality=40 downscale=0.35, got %+v", cfg)
	}
}

func TestPresetTargetFPS(t *testing.T) {
	fps, ok := PresetTargetFPS(PresetQuality)
	if !ok || fps != 30 {
		t.Fatalf("expected quality preset target_fps=30, got %d (ok=%v)", fps, ok)
	}
	if _, ok := PresetTargetFPS("nonexistent"); ok {
		t.Fatal("expected unknown preset to report not-found")
	}
}

func TestMethodRawSkipsCompression(t *testing.T) {
	p := New(Config{Quality: 80, DownscaleFactor: 1.0, Method: MethodRaw})
	input := buildBGRA(16, 16)
	var out []byte
	n, err := p.Encode(input, 16, 16, 16*4, 4, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(input) {
		t.Fatalf("expected raw passthrough to write %d bytes, wrote %d", len(input), n)
	}
	if string(out[:n]) != string(input) {
		t.Fatal("expected raw output to match input bytes exactly")
	}
	if ratio := p.Stats().LastCompressRatio; ratio != 1 {
		t.Fatalf("expected a 1:1 compression ratio for raw passthrough, got %v", ratio)
	}
}

func TestMethodH264ReturnsUnsupported(t *testing.T) {
	p := New(Config{Quality: 80, DownscaleFactor: 1.0, Method: MethodH264})
	input := buildBGRA(16, 16)
	var out []byte
	if _, err := p.Encode(input, 16, 16, 16*4, 4, &out); err != ErrMethodUnsupported {
		t.Fatalf("expected ErrMethodUnsupported, got %v", err)
	}
}

func TestUpdateConfigSwapsMethodCompressor(t *testing.T) {
	p := New(Config{Quality: 50, DownscaleFactor: 1.0, Method: MethodPlain})
	input := buildBGRA(16, 16)
	var out []byte
	if _, err := p.Encode(input, 16, 16, 16*4, 4, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p.UpdateConfig(Config{Quality: 50, DownscaleFactor: 1.0, Method: MethodRaw})
	n, err := p.Encode(input, 16, 16, 16*4, 4, &out)
	if err != nil {
		t.Fatalf("unexpected error after switching to raw: %v", err)
	}
	if n != len(input) {
		t.Fatalf("expected raw passthrough after UpdateConfig, got %d bytes", n)
	}
}

func TestStereoBufferReusedAcrossCalls(t *testing.T) {
	p := New(Config{Quality: 80, DownscaleFactor: 1.0, VREnabled: true})
	input := buildBGRA(32, 32)
	var out []byte
	if _, err := p.Encode(input, 32, 32, 32*4, 4, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstCap := cap(p.stereoBuf)
	if _, err := p.Encode(input, 32, 32, 32*4, 4, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cap(p.stereoBuf) != firstCap {
		t.Fatalf("expected stereo buffer capacity to stay stable across identical-size calls, got %d -> %d", firstCap, cap(p.stereoBuf))
	}
}
