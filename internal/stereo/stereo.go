// Package stereo reshapes a single BGRA/BGR raster into a side-by-side
// stereo BGR image for VR-style viewers, per spec.md §4.D's nearest
// neighbor sampling algorithm.
package stereo

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the shaper's tunables. DownscaleFactor must be in (0, 1];
// EyeSeparation must be in [0, 0.1].
type Config struct {
	DownscaleFactor float64
	EyeSeparation   float64
	Bilinear        bool
}

// Stats tracks per-frame shaping time and a running average, the way
// internal/encoder tracks stereo/encode/total time.
type Stats struct {
	frames   uint64
	totalNs  uint64
	lastNs   int64
}

func (s *Stats) record(d time.Duration) {
	atomic.StoreInt64(&s.lastNs, int64(d))
	atomic.AddUint64(&s.frames, 1)
	atomic.AddUint64(&s.totalNs, uint64(d))
}

// LastFrameMs returns the duration of the most recent Shape call.
func (s *Stats) LastFrameMs() float64 {
	return float64(atomic.LoadInt64(&s.lastNs)) / 1e6
}

// AvgFrameMs returns the running average duration across all Shape calls.
func (s *Stats) AvgFrameMs() float64 {
	frames := atomic.LoadUint64(&s.frames)
	if frames == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.totalNs)) / float64(frames) / 1e6
}

// Frames returns the number of frames shaped so far.
func (s *Stats) Frames() uint64 {
	return atomic.LoadUint64(&s.frames)
}

// Shaper reshapes BGRA/BGR input into side-by-side BGR output.
type Shaper struct {
	mu     sync.RWMutex
	config Config
	stats  Stats
}

// New constructs a Shaper with the given initial config.
func New(cfg Config) *Shaper {
	return &Shaper{config: cfg}
}

// UpdateConfig atomically swaps the shaper's config.
func (s *Shaper) UpdateConfig(cfg Config) {
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
}

func (s *Shaper) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func (s *Shaper) Stats() *Stats { return &s.stats }

// OutputDims computes (Wo, Ho) from an input size and downscale factor,
// forcing both to even per spec.md §4.D.
func OutputDims(wi, hi int, downscale float64) (wo, ho int) {
	return RoundEven(float64(wi) * downscale), RoundEven(float64(hi) * downscale)
}

// RoundEven rounds x to the nearest integer and then, if that integer is
// odd, nudges it up by one so it is always even.
func RoundEven(x float64) int {
	n := int(x + 0.5)
	if n%2 != 0 {
		n++
	}
	return n
}

// Shape reshapes an input BGRA (channels=4) or BGR (channels=3) raster of
// dimensions (wi, hi) with row pitch inStride into a side-by-side BGR
// image written to dst. dst must have length of at least wo*3*ho bytes,
// with (wo, ho) as OutputDims computes them. Returns the output dimensions actually used.
func (s *Shaper) Shape(input []byte, wi, hi, inStride, channels int, dst []byte) (wo, ho int, err error) {
	if channels != 3 && channels != 4 {
		return 0, 0, fmt.Errorf("stereo: unsupported channel count %d", channels)
	}
	start := time.Now()
	cfg := s.Config()

	wo, ho = OutputDims(wi, hi, cfg.DownscaleFactor)
	half := wo / 2
	outStride := wo * 3

	if len(dst) < outStride*ho {
		return 0, 0, fmt.Errorf("stereo: dst too small: have %d need %d", len(dst), outStride*ho)
	}

	sxScale := float64(wi) / float64(half)
	syScale := float64(hi) / float64(ho)
	sep := int(float64(wi) * cfg.EyeSeparation)

	if cfg.Bilinear {
		shapeBilinear(input, wi, hi, inStride, channels, dst, wo, ho, half, sxScale, syScale, sep)
	} else {
		shapeNearest(input, wi, hi, inStride, channels, dst, wo, ho, half, sxScale, syScale, sep)
	}

	s.stats.record(time.Since(start))
	return wo, ho, nil
}

func shapeNearest(input []byte, wi, hi, inStride, channels int, dst []byte, wo, ho, half int, sxScale, syScale float64, sep int) {
	outStride := wo * 3

	for y := 0; y < ho; y++ {
		sy := int(float64(y) * syScale)
		if sy >= hi {
			sy = hi - 1
		}
		rowOff := sy * inStride
		dstRow := y * outStride

		for x := 0; x < half; x++ {
			sx := int(float64(x) * sxScale)
			if max := wi - sep - 1; sx > max {
				sx = max
			}
			if sx < 0 {
				sx = 0
			}
			copyPixel(input, rowOff+sx*channels, channels, dst, dstRow+x*3)
		}

		for x := half; x < wo; x++ {
			sx := int(float64(x-half)*sxScale) + sep
			if sx > wi-1 {
				sx = wi - 1
			}
			copyPixel(input, rowOff+sx*channels, channels, dst, dstRow+x*3)
		}
	}
}

func copyPixel(src []byte, srcOff, channels int, dst []byte, dstOff int) {
	if srcOff+channels > len(src) || dstOff+3 > len(dst) {
		return
	}
	dst[dstOff] = src[srcOff]
	dst[dstOff+1] = src[srcOff+1]
	dst[dstOff+2] = src[srcOff+2]
}
