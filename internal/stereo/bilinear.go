package stereo

import (
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// shapeBilinear is the quality-over-throughput variant spec.md §4.D
// allows: each eye's half is built by a proper bilinear resample via
// golang.org/x/image/draw instead of nearest-neighbor sampling. The eye
// separation shift is applied by offsetting the source rectangle handed
// to the scaler, matching the nearest-neighbor variant's column shift.
func shapeBilinear(input []byte, wi, hi, inStride, channels int, dst []byte, wo, ho, half int, sxScale, syScale float64, sep int) {
	src := wrapAsNRGBA(input, wi, hi, inStride, channels)

	leftSrcW := wi - sep
	if leftSrcW < 1 {
		leftSrcW = 1
	}
	leftRect := image.Rect(0, 0, leftSrcW, hi)
	rightSrcX := sep
	if rightSrcX > wi-1 {
		rightSrcX = wi - 1
	}
	rightRect := image.Rect(rightSrcX, 0, wi, hi)

	leftOut := image.NewRGBA(image.Rect(0, 0, half, ho))
	rightOut := image.NewRGBA(image.Rect(0, 0, half, ho))

	xdraw.BiLinear.Scale(leftOut, leftOut.Bounds(), src, leftRect, xdraw.Over, nil)
	xdraw.BiLinear.Scale(rightOut, rightOut.Bounds(), src, rightRect, xdraw.Over, nil)

	outStride := wo * 3
	for y := 0; y < ho; y++ {
		dstRow := y * outStride
		for x := 0; x < half; x++ {
			c := leftOut.RGBAAt(x, y)
			o := dstRow + x*3
			dst[o], dst[o+1], dst[o+2] = c.B, c.G, c.R
		}
		for x := 0; x < half; x++ {
			c := rightOut.RGBAAt(x, y)
			o := dstRow + (half+x)*3
			dst[o], dst[o+1], dst[o+2] = c.B, c.G, c.R
		}
	}
}

// wrapAsNRGBA copies raw BGR(A) bytes into a new NRGBA image, swapping
// channel order to RGBA order as draw.Image expects. channels==3 rows are treated as opaque BGR.
func wrapAsNRGBA(input []byte, wi, hi, inStride, channels int) draw.Image {
	img := image.NewNRGBA(image.Rect(0, 0, wi, hi))
	for y := 0; y < hi; y++ {
		rowOff := y * inStride
		for x := 0; x < wi; x++ {
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
	return img
}
