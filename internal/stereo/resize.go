package stereo

import "fmt"

// Resize scales a BGR(A) raster from (wi, hi) to (wo, ho) with nearest
// neighbor sampling, preserving the input's channel count and row-major
// layout. Used by the non-VR encode path, where only a plain
// downscale/output-resolution resize is needed and no stereo split.
func Resize(input []byte, wi, hi, inStride, channels, wo, ho int, dst []byte) error {
	if channels != 3 && channels != 4 {
		return fmt.Errorf("stereo: unsupported channel count %d", channels)
	}
	outStride := wo * channels
	if len(dst) < outStride*ho {
		return fmt.Errorf("stereo: resize dst too small: have %d need %d", len(dst), outStride*ho)
	}

	sxScale := float64(wi) / float64(wo)
	syScale := float64(hi) / float64(ho)

	for y := 0; y < ho; y++ {
		sy := int(float64(y) * syScale)
		if sy >= hi {
			sy = hi - 1
		}
		rowOff := sy * inStride
		dstRow := y * outStride

		for x := 0; x < wo; x++ {
			sx := int(float64(x) * sxScale)
			if sx >= wi {
				sx = wi - 1
			}
			srcOff := rowOff + sx*channels
			dstOff := dstRow + x*channels
			for c := 0; c < channels; c++ {
				dst[dstOff+c] = input[srcOff+c]
			}
		}
	}
	return nil
}
