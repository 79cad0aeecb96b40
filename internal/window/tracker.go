package window

import (
	"fmt"

	"github.com/duplicast/duplicast/internal/capture"
	"github.com/duplicast/duplicast/internal/logger"
)

// Tracker adapts a Backend into a capture.BoundsProvider, so a
// window-bound capture source can re-read the window's live position every
// frame. It keeps no cache: each WindowBounds call queries the backend.
type Tracker struct {
	backend Backend
}

// NewTracker wraps backend.
func NewTracker(backend Backend) *Tracker {
	return &Tracker{backend: backend}
}

// WindowBounds implements capture.BoundsProvider.
func (t *Tracker) WindowBounds(handle capture.WindowHandle) (x, y, w, h int, err error) {
	return t.backend.Bounds(handle.ID)
}

// Detect tries each known backend in order and returns the first one that
// connects successfully: KWin's D-Bus interface first (it is the only one
// that can see native Wayland windows), falling back to plain X11.
func Detect() (Backend, error) {
	log := logger.WithComponent("window")

	if kwin, err := NewKWinBackend(); err == nil {
		log.Info().Msg("using kwin backend for window tracking")
		return kwin, nil
	} else {
		log.Debug().Err(err).Msg("kwin backend unavailable")
	}

	if x11, err := NewX11Backend(); err == nil {
		log.Info().Msg("using x11 backend for window tracking")
		return x11, nil
	} else {
		log.Debug().Err(err).Msg("x11 backend unavailable")
	}

	return nil, fmt.Errorf("window: no backend available")
}
