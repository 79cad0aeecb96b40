package jpegenc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/duplicast/duplicast/internal/logger"
)

// genericCompressor encodes via the standard library's image/jpeg. It is
// always available, so it is the guaranteed last rung of the selection
// ladder. The stdlib encoder does not expose a 4:2:0-vs-4:4:4 knob or a
// fast/slow DCT choice the way libjpeg-turbo does; it always subsamples
// chroma, which matches spec.md §4.E's fixed 4:2:0 requirement.
type genericCompressor struct {
	timingCompressor
}

func newGenericCompressor() *genericCompressor { return &genericCompressor{} }

func (g *genericCompressor) Name() string { return "generic" }

func (g *genericCompressor) Available() bool { return true }

func (g *genericCompressor) Encode(input []byte, width, height, stride, channels, quality int, output *[]byte) (int, error) {
	start := time.Now()
	defer func() { g.recordNs(int64(time.Since(start))) }()

	if width <= 0 || height <= 0 {
		return 0, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		rowOff := y * stride
		for x := 0; x < width; x++ {
			srcOff := rowOff + x*channels
			if srcOff+channels > len(input) {
				continue
			}
			i := img.PixOffset(x, y)
			img.Pix[i] = input[srcOff+2]   // R
			img.Pix[i+1] = input[srcOff+1] // G
			img.Pix[i+2] = input[srcOff]   // B
			img.Pix[i+3] = 255
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		logger.WithComponent("jpegenc").Error().Err(err).Msg("generic jpeg encode failed")
		return 0, fmt.Errorf("jpegenc: generic encode: %w", err)
	}

	n := buf.Len()
	if cap(*output) < n {
		*output = make([]byte, n)
	} else {
		*output = (*output)[:n]
	}
	copy(*output, buf.Bytes())
	return n, nil
}
