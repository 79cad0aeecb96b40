// Package jpegenc implements the JPEG compressor abstraction of
// spec.md §4.E: a fixed-for-instance-lifetime selection ladder over a GPU
// variant, a SIMD (libjpeg-turbo via gocv) variant, and a generic
// (stdlib image/jpeg) fallback.
package jpegenc

import (
	"fmt"
	"sync/atomic"
)

// Compressor encodes a BGR (channels=3) or BGRA (channels=4) raster into
// a JPEG bitstream at the given quality (1-100). Errors return zero
// bytes written and are logged by the caller; a Compressor itself never
// panics on bad input.
type Compressor interface {
	Encode(input []byte, width, height, stride, channels, quality int, output *[]byte) (int, error)
	Available() bool
	Name() string
	LastEncodeMs() float64
}

// timingCompressor is embedded by each variant to give it LastEncodeMs
// bookkeeping without repeating the atomic plumbing three times.
type timingCompressor struct {
	lastNs int64
}

func (t *timingCompressor) recordNs(ns int64) { atomic.StoreInt64(&t.lastNs, ns) }

func (t *timingCompressor) LastEncodeMs() float64 {
	return float64(atomic.LoadInt64(&t.lastNs)) / 1e6
}

// Selector picks the first available compressor from {GPU, SIMD, generic}
// at construction and holds to that choice for its lifetime.
type Selector struct {
	active Compressor
}

// NewSelector builds the ladder and fixes the active variant.
func NewSelector() *Selector {
	candidates := []Compressor{
		newGPUCompressor(),
		newSIMDCompressor(),
		newGenericCompressor(),
	}
	for _, c := range candidates {
		if c.Available() {
			return &Selector{active: c}
		}
	}
	// The generic fallback always reports available, so this should be
	// unreachable; guard it anyway rather than returning a nil Compressor.
	return &Selector{active: newGenericCompressor()}
}

// NewSelectorNamed pins the selector to a specific rung of the ladder
// ("gpu-jpeg" or "simd-jpeg") instead of picking the first available one.
// An unrecognized name or an unavailable rung falls back to the normal
// auto-selecting ladder; the fallback is not logged.
func NewSelectorNamed(name string) *Selector {
	var want Compressor
	switch name {
	case "gpu-jpeg":
		want = newGPUCompressor()
	case "simd-jpeg":
		want = newSIMDCompressor()
	default:
		return NewSelector()
	}
	if want.Available() {
		return &Selector{active: want}
	}
	return NewSelector()
}

func (s *Selector) Encode(input []byte, width, height, stride, channels, quality int, output *[]byte) (int, error) {
	if channels != 3 && channels != 4 {
		return 0, fmt.Errorf("jpegenc: unsupported channel count %d", channels)
	}
	return s.active.Encode(input, width, height, stride, channels, quality, output)
}

func (s *Selector) Name() string           { return s.active.Name() }
func (s *Selector) Available() bool        { return s.active.Available() }
func (s *Selector) LastEncodeMs() float64  { return s.active.LastEncodeMs() }
