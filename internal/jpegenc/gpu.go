package jpegenc

import "fmt"

// gpuCompressor is the reserved GPU-accelerated slot named in spec.md
// §4.E. No GPU JPEG encode path (e.g. nvjpeg) is wired into this build, so
// it always reports unavailable and the selection ladder falls through to
// the SIMD or generic variant.
type gpuCompressor struct {
	timingCompressor
}

func newGPUCompressor() *gpuCompressor { return &gpuCompressor{} }

func (g *gpuCompressor) Name() string { return "gpu" }

func (g *gpuCompressor) Available() bool { return false }

func (g *gpuCompressor) Encode(input []byte, width, height, stride, channels, quality int, output *[]byte) (int, error) {
	return 0, fmt.Errorf("jpegenc: gpu compressor unavailable")
}
