// Package capture implements the platform display-duplication source:
// initialize against a monitor or window, pull frames with a timeout,
// copy them into a reusable CPU buffer (clipping to a tracked window's
// bounds along the way), and release them.
package capture

import "github.com/duplicast/duplicast/internal/pool"

// BoundsProvider resolves a window handle's current extended-frame-bounds
// rectangle in root/desktop coordinates. internal/window implementations
// satisfy this without capture needing to import that package's backend
// types directly.
type BoundsProvider interface {
	WindowBounds(handle WindowHandle) (x, y, w, h int, err error)
}

// Source is the capture contract described in spec.md §4.C. A single
// Source is initialized against exactly one target (a monitor index or a
// window handle) for its lifetime; switching targets means constructing a
// new Source.
type Source interface {
	// InitMonitor selects a whole monitor by index as the capture target.
	// A non-existent monitor is a fatal init error.
	InitMonitor(index int) error

	// InitWindow selects a window as the capture target. The source
	// resolves the window's containing monitor and records both the
	// monitor's desktop rectangle and the window's extended bounds.
	InitWindow(handle WindowHandle, bounds BoundsProvider) error

	// NextFrame asks the duplication endpoint for the next frame, waiting
	// up to timeoutMs. Returns (nil, nil) on timeout or any transient
	// failure (access lost, other platform error); returns
	// ErrNotInitialized if called before a successful Init; returns
	// ErrFrameOutstanding if the previous frame was never released.
	NextFrame(timeoutMs int) (*Frame, error)

	// CopyToCPU blits f into dst, clipping to the tracked window's
	// current bounds when the source is window-bound. Returns
	// ErrWindowTooSmall if the clipped region falls below 10x10 and the
	// frame should be skipped.
	CopyToCPU(f *Frame, dst *pool.RawFrame) error

	// ReleaseFrame releases the resources backing f. Re-acquiring a new
	// frame without releasing the previous one is an error, and so is
	// releasing the same frame twice.
	ReleaseFrame(f *Frame) error

	// Close tears down the duplication endpoint entirely.
	Close() error

	// Name identifies the backend for logging and stats.
	Name() string
}
