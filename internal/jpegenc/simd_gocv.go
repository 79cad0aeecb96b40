//go:build gocv

package jpegenc

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// simdCompressor encodes through OpenCV's IMEncodeWithParams, which is
// backed by libjpeg-turbo's SIMD DCT path — the accelerated variant
// spec.md §4.E names between the GPU slot and the generic fallback.
type simdCompressor struct {
	timingCompressor
}

func newSIMDCompressor() *simdCompressor { return &simdCompressor{} }

func (s *simdCompressor) Name() string { return "simd-gocv" }

func (s *simdCompressor) Available() bool { return true }

func (s *simdCompressor) Encode(input []byte, width, height, stride, channels, quality int, output *[]byte) (int, error) {
	start := time.Now()
	defer func() { s.recordNs(int64(time.Since(start))) }()

	matType := gocv.MatTypeCV8UC3
	if channels == 4 {
		matType = gocv.MatTypeCV8UC4
	}

	mat, err := gocv.NewMatWithSizesFromBytes([]int{height, width}, matType, packRows(input, width, height, stride, channels))
	if err != nil {
		return 0, fmt.Errorf("jpegenc: build mat: %w", err)
	}
	defer mat.Close()

	// Pin chroma subsampling to 4:2:0 explicitly: libjpeg-turbo switches to
	// 4:4:4 on its own above roughly quality 90, and every quality setting
	// here needs to produce 4:2:0 output.
	params := []int{
		gocv.IMWriteJpegQuality, quality,
		gocv.IMWriteJpegSamplingFactor, gocv.IMWriteJpegSamplingFactor420,
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, params)
	if err != nil {
		return 0, fmt.Errorf("jpegenc: encode jpeg: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	n := len(data)
	if cap(*output) < n {
		*output = make([]byte, n)
	} else {
		*output = (*output)[:n]
	}
	copy(*output, data)
	return n, nil
}

// packRows returns a tightly packed copy of input with its row pitch
// stripped down to width*channels, since gocv's Mat constructor assumes
// no row padding.
func packRows(input []byte, width, height, stride, channels int) []byte {
	rowBytes := width * channels
	if stride == rowBytes {
		return input
	}
	packed := make([]byte, rowBytes*height)
	for y := 0; y < height; y++ {
		copy(packed[y*rowBytes:(y+1)*rowBytes], input[y*stride:y*stride+rowBytes])
	}
	return packed
}
