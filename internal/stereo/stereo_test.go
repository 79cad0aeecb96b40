package stereo

import "testing"

func TestRoundEven(t *testing.T) {
	cases := []struct{ in float64; want int }{
		{100, 100},
		{99, 100},
		{100.4, 100},
		{101.6, 102},
		{3, 4},
	}
	for _, c := range cases {
		if got := RoundEven(c.in); got != c.want {
			t.Errorf("RoundEven(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestOutputDimsAlwaysEven(t *testing.T) {
	wo, ho := OutputDims(1921, 1081, 1.0)
	if wo%2 != 0 || ho%2 != 0 {
		t.Fatalf("expected even output dims, got %dx%d", wo, ho)
	}
}

func TestEyeSeparationSeparationMath(t *testing.T) {
	// spec scenario: eye separation 0.03 on a 1920-wide input -> sep=57
	wi := 1920
	eyeSep := 0.03
	sep := int(float64(wi) * eyeSep)
	if sep != 57 {
		t.Fatalf("expected sep=57, got %d", sep)
	}
}

// buildInput creates a wi x hi BGRA raster where each pixel's blue
// channel encodes its column and green channel encodes its row, so
// sampled source coordinates can be recovered from the output.
func buildInput(wi, hi int) []byte {
	buf := make([]byte, wi*hi*4)
	for y := 0; y < hi; y++ {
		for x := 0; x < wi; x++ {
			o := (y*wi + x) * 4
			buf[o] = byte(x % 256)   // B encodes column
			buf[o+1] = byte(y % 256) // G encodes row
			buf[o+2] = 0
			buf[o+3] = 255
		}
	}
	return buf
}

func TestShapeNearestNoSeparationLeftHalfSampling(t *testing.T) {
	wi, hi := 100, 50
	input := buildInput(wi, hi)
	s := New(Config{DownscaleFactor: 1.0, EyeSeparation: 0})
	wo, ho := wi, hi // downscale 1.0 on even dims stays identical
	dst := make([]byte, wo*ho*3)
	gotWo, gotHo, err := s.Shape(input, wi, hi, wi*4, 4, dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotWo != wo || gotHo != ho {
		t.Fatalf("unexpected output dims %dx%d", gotWo, gotHo)
	}

	half := wo / 2
	outStride := wo * 3
	// Left half pixel (5, 5) should sample input column 5*sxScale=10
	// (sxScale = wi/half = 100/50 = 2).
	o := 5*outStride + 5*3
	if dst[o] != byte(10) {
		t.Fatalf("left half column sample mismatch: got %d want 10", dst[o])
	}
	_ = half
}

func TestShapeRejectsUndersizedDst(t *testing.T) {
	s := New(Config{DownscaleFactor: 1.0})
	input := buildInput(10, 10)
	dst := make([]byte, 4) // far too small
	_, _, err := s.Shape(input, 10, 10, 40, 4, dst)
	if err == nil {
		t.Fatal("expected error for undersized dst")
	}
}

func TestShapeRejectsBadChannelCount(t *testing.T) {
	s := New(Config{DownscaleFactor: 1.0})
	input := buildInput(10, 10)
	dst := make([]byte, 10*10*3)
	_, _, err := s.Shape(input, 10, 10, 40, 2, dst)
	if err == nil {
		t.Fatal("expected error for unsupported channel count")
	}
}

func TestStatsTrackFramesAndAverage(t *testing.T) {
	s := New(Config{DownscaleFactor: 1.0})
	input := buildInput(20, 20)
	dst := make([]byte, 20*20*3)
	for i := 0; i < 5; i++ {
		if _, _, err := s.Shape(input, 20, 20, 80, 4, dst); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if s.Stats().Frames() != 5 {
		t.Fatalf("expected 5 frames recorded, got %d", s.Stats().Frames())
	}
	if s.Stats().AvgFrameMs() < 0 {
		t.Fatal("expected non-negative average frame time")
	}
}
