//go:build !gocv

package jpegenc

import "fmt"

// simdCompressor is the no-cgo build's stand-in for the gocv-backed SIMD
// variant; it always reports unavailable so the selection ladder falls
// through to the generic fallback.
type simdCompressor struct {
	timingCompressor
}

func newSIMDCompressor() *simdCompressor { return &simdCompressor{} }

func (s *simdCompressor) Name() string { return "simd-gocv" }

func (s *simdCompressor) Available() bool { return false }

func (s *simdCompressor) Encode(input []byte, width, height, stride, channels, quality int, output *[]byte) (int, error) {
	return 0, fmt.Errorf("jpegenc: simd compressor not built (missing gocv build tag)")
}
