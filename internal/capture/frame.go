package capture

import "github.com/duplicast/duplicast/internal/pool"

// WindowHandle identifies a capture target that follows a specific window
// rather than a whole monitor.
type WindowHandle struct {
	ID uint32
}

// CursorPos is the pointer position recorded at acquisition time, in
// monitor-local coordinates.
type CursorPos struct {
	X, Y    int
	Visible bool
}

// rect is a monitor- or root-relative pixel rectangle.
type rect struct {
	X, Y, W, H int
}

// Frame is the resource handed back by NextFrame. It holds raw BGRA bytes
// already resident on the CPU (X11's GetImage has no separate GPU
// acquisition step, unlike the DXGI/KMS duplication facilities this
// contract is modeled on) plus the metadata CopyToCPU and the stereo stage
// need downstream.
type Frame struct {
	data        []byte
	width       int
	height      int
	pixelFormat pool.PixelFormat
	timestampNs int64
	frameID     uint64
	cursor      CursorPos

	released bool
}

// NewFrame constructs a Frame from already-resident pixel bytes. Source
// implementations outside this package use it to satisfy NextFrame's
// return type, since Frame's fields are otherwise unexported.
func NewFrame(data []byte, width, height int, format pool.PixelFormat, timestampNs int64, frameID uint64, cursor CursorPos) *Frame {
	return &Frame{
		data:        data,
		width:       width,
		height:      height,
		pixelFormat: format,
		timestampNs: timestampNs,
		frameID:     frameID,
		cursor:      cursor,
	}
}

// clipToBounds implements spec step 4's clip math: translate a window's
// extended-frame-bounds rectangle into monitor-local coordinates, clamp to
// the monitor's own extent, and report whether the result clears the
// 10x10 floor.
func clipToBounds(monitor, window rect) (clipped rect, ok bool) {
	x0 := window.X - monitor.X
	y0 := window.Y - monitor.Y
	x1 := x0 + window.W
	y1 := y0 + window.H

	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > monitor.W {
		x1 = monitor.W
	}
	if y1 > monitor.H {
		y1 = monitor.H
	}

	w := x1 - x0
	h := y1 - y0
	if w < 10 || h < 10 {
		return rect{}, false
	}
	return rect{X: x0, Y: y0, W: w, H: h}, true
}
