// Package window discovers windows and tracks their geometry so
// internal/capture can clip a window-bound source to its live bounds even
// as the window moves or resizes.
package window

// Info describes a single window as returned by a Backend.
type Info struct {
	ID      uint32
	Title   string
	Class   string
	PID     int
	X       int
	Y       int
	Width   int
	Height  int
	Focused bool
}

// Backend is a window discovery/tracking facility for one display
// protocol (X11, KWin's D-Bus interface, ...).
type Backend interface {
	// Connect establishes the connection to the display server.
	Connect() error

	// Close tears the connection down.
	Close() error

	// ListWindows returns all currently visible, titled windows.
	ListWindows() ([]Info, error)

	// GetFocusedWindow returns the window currently holding input focus.
	GetFocusedWindow() (Info, error)

	// Bounds resolves a single window's current extended-frame-bounds
	// rectangle by ID, for use as a capture.BoundsProvider.
	Bounds(id uint32) (x, y, w, h int, err error)

	// WatchFocus starts watching for focus changes, invoking callback on
	// a background goroutine each time the focused window changes.
	WatchFocus(callback func(Info)) error

	// StopWatching stops the focus-watching loop started by WatchFocus.
	StopWatching()

	// Name identifies the backend for logging.
	Name() string
}
