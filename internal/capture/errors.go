package capture

import "errors"

// ErrAccessLost names the condition where the duplication endpoint has
// been revoked by the compositor — another process took over, the display
// mode changed, or the desktop switched. It is transient. X11Source does
// not return it: on access loss it recreates its own connection and
// NextFrame returns (nil, nil), so the caller retries on the next tick.
var ErrAccessLost = errors.New("capture: access to duplication endpoint lost")

// ErrWindowTooSmall is returned when a window-bound source's clipped
// region falls below the 10x10 pixel floor; the frame is skipped rather
// than delivered.
var ErrWindowTooSmall = errors.New("capture: clipped region smaller than 10x10")

// ErrNotInitialized is returned by a Source when a capture call arrives
// before successful initialization. The recovery Manager treats this as
// the trigger to retry Init using the last configured target.
var ErrNotInitialized = errors.New("capture: source not initialized")

// ErrFrameOutstanding is returned when NextFrame is called again before
// the previously acquired frame has been released.
var ErrFrameOutstanding = errors.New("capture: previous frame not released")

// ErrDoubleRelease is returned when ReleaseFrame is called on a frame that
// was already released.
var ErrDoubleRelease = errors.New("capture: frame already released")

// ErrMonitorNotFound is a fatal init error for an out-of-range monitor
// index.
var ErrMonitorNotFound = errors.New("capture: monitor index not found")
