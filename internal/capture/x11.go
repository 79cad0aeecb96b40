package capture

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/duplicast/duplicast/internal/logger"
	"github.com/duplicast/duplicast/internal/pool"
)

// settleDelay is how long X11Source waits after tearing down a connection
// before recreating it, giving the compositor a moment to finish whatever
// took the access away.
const settleDelay = 250 * time.Millisecond

// X11Source captures via X11/XWayland GetImage, using the Composite
// extension to redirect obscured windows when available. xgb exposes only
// the root screen, so "monitor index" here only ever resolves to 0 — a
// simplification the X11 backend makes so the one-screen case behaves
// exactly like the spec's multi-monitor contract would.
type X11Source struct {
	mu   sync.Mutex
	conn *xgb.Conn
	root xproto.Window
	screen *xproto.ScreenInfo

	compositeEnabled bool

	windowBound bool
	window      WindowHandle
	bounds      BoundsProvider
	monitorRect rect

	frameCounter  uint64
	framesDropped uint64
	outstanding   bool

	clipBuf []byte
}

// NewX11Source connects to the X server but does not select a target yet.
func NewX11Source() (*X11Source, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("capture: connect to X server: %w", err)
	}
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	s := &X11Source{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
	}
	if err := composite.Init(conn); err != nil {
		logger.WithComponent("x11-source").Warn().Err(err).
			Msg("composite extension unavailable, obscured windows may fail to capture")
		s.compositeEnabled = false
	} else {
		s.compositeEnabled = true
	}
	return s, nil
}

func (s *X11Source) Name() string { return "x11" }

// InitMonitor records the root window's geometry as the desktop rectangle.
func (s *X11Source) InitMonitor(index int) error {
	if index != 0 {
		return ErrMonitorNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	geom, err := xproto.GetGeometry(s.conn, xproto.Drawable(s.root)).Reply()
	if err != nil {
		return fmt.Errorf("capture: query root geometry: %w", err)
	}
	s.monitorRect = rect{X: 0, Y: 0, W: int(geom.Width), H: int(geom.Height)}
	s.windowBound = false
	return nil
}

// InitWindow resolves the window's containing monitor (always the root
// screen for this backend) and records both rectangles.
func (s *X11Source) InitWindow(handle WindowHandle, bounds BoundsProvider) error {
	if err := s.InitMonitor(0); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windowBound = true
	s.window = handle
	s.bounds = bounds
	return nil
}

// NextFrame implements the per-frame algorithm of spec.md §4.C. X11's
// GetImage is synchronous, so timeoutMs only bounds how long the caller
// would have waited on an async facility; here it either returns
// immediately or fails outright.
func (s *X11Source) NextFrame(timeoutMs int) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.monitorRect.W == 0 {
		return nil, ErrNotInitialized
	}
	if s.outstanding {
		return nil, ErrFrameOutstanding
	}

	win := xproto.Window(s.window.ID)
	drawable := xproto.Drawable(s.root)
	var cleanup func()

	if s.windowBound {
		d, cu, err := s.windowDrawable(win)
		if err != nil {
			// Treat a window that has disappeared or lost its
			// pixmap as access-lost: recreate the connection and
			// let the caller retry.
			s.recreateLocked()
			return nil, nil
		}
		drawable = d
		cleanup = cu
	}

	w, h := s.monitorRect.W, s.monitorRect.H
	if s.windowBound {
		geom, err := xproto.GetGeometry(s.conn, drawable).Reply()
		if err != nil {
			if cleanup != nil {
				cleanup()
			}
			s.recreateLocked()
			return nil, nil
		}
		w, h = int(geom.Width), int(geom.Height)
	}

	reply, err := xproto.GetImage(
		s.conn,
		xproto.ImageFormatZPixmap,
		drawable,
		0, 0,
		uint16(w), uint16(h),
		0xffffffff,
	).Reply()
	if cleanup != nil {
		cleanup()
	}
	if err != nil {
		if isAccessLostErr(err) {
			s.recreateLocked()
			return nil, nil
		}
		s.framesDropped++
		return nil, nil
	}

	id := atomic.AddUint64(&s.frameCounter, 1)
	f := &Frame{
		data:        reply.Data,
		width:       w,
		height:      h,
		pixelFormat: pool.BGRA,
		timestampNs: time.Now().UnixNano(),
		frameID:     id,
	}
	s.outstanding = true
	return f, nil
}

// windowDrawable resolves win into a drawable suitable for GetImage,
// redirecting it through Composite when available so obscured windows can
// still be captured.
func (s *X11Source) windowDrawable(win xproto.Window) (xproto.Drawable, func(), error) {
	if !s.compositeEnabled {
		return xproto.Drawable(win), func() {}, nil
	}
	if err := composite.RedirectWindowChecked(s.conn, win, composite.RedirectAutomatic).Check(); err != nil {
		return xproto.Drawable(win), func() {}, nil
	}
	pixmap, err := xproto.NewPixmapId(s.conn)
	if err != nil {
		composite.UnredirectWindow(s.conn, win, composite.RedirectAutomatic)
		return xproto.Drawable(win), func() {}, nil
	}
	if err := composite.NameWindowPixmapChecked(s.conn, win, pixmap).Check(); err != nil {
		composite.UnredirectWindow(s.conn, win, composite.RedirectAutomatic)
		return xproto.Drawable(win), func() {}, nil
	}
	cleanup := func() {
		xproto.FreePixmap(s.conn, pixmap)
		composite.UnredirectWindow(s.conn, win, composite.RedirectAutomatic)
	}
	return xproto.Drawable(pixmap), cleanup, nil
}

// CopyToCPU implements step 3-4: convert the captured BGRA bytes into dst,
// clipping to the tracked window's live bounds first when window-bound.
func (s *X11Source) CopyToCPU(f *Frame, dst *pool.RawFrame) error {
	s.mu.Lock()
	monitorRect := s.monitorRect
	windowBound := s.windowBound
	window := s.window
	bounds := s.bounds
	s.mu.Unlock()

	srcW, srcH := f.width, f.height
	clip := rect{X: 0, Y: 0, W: srcW, H: srcH}
	// srcX0/srcY0 are the monitor-local coordinates of f's top-left pixel.
	srcX0, srcY0 := 0, 0

	if windowBound {
		x, y, w, h, err := bounds.WindowBounds(window)
		if err != nil {
			return fmt.Errorf("capture: resolve window bounds: %w", err)
		}
		c, ok := clipToBounds(monitorRect, rect{X: x, Y: y, W: w, H: h})
		if !ok {
			return ErrWindowTooSmall
		}
		clip = c
		// A window-bound f holds the window's own image, whose origin is
		// the window's monitor-local position.
		srcX0, srcY0 = x-monitorRect.X, y-monitorRect.Y
	}

	stride := clip.W * 4
	dst.Allocate(stride * clip.H)
	dst.Width = clip.W
	dst.Height = clip.H
	dst.Stride = stride
	dst.PixelFormat = f.pixelFormat
	dst.TimestampNs = f.timestampNs
	dst.FrameID = f.frameID

	srcStride := srcW * 4
	for row := 0; row < clip.H; row++ {
		srcOff := (clip.Y-srcY0+row)*srcStride + (clip.X-srcX0)*4
		dstOff := row * stride
		if srcOff+stride > len(f.data) {
			break
		}
		copy(dst.Data[dstOff:dstOff+stride], f.data[srcOff:srcOff+stride])
	}
	dst.Size = stride * clip.H
	return nil
}

// ReleaseFrame marks f released. X11's GetImage already delivered the
// bytes synchronously, so there is no staging texture to unmap, but the
// outstanding-frame bookkeeping still enforces the acquire/release pairing
// the duplication contract requires.
func (s *X11Source) ReleaseFrame(f *Frame) error {
	if f.released {
		return ErrDoubleRelease
	}
	f.released = true
	s.mu.Lock()
	s.outstanding = false
	s.mu.Unlock()
	return nil
}

func (s *X11Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return nil
}

// recreateLocked tears down and reconnects after an access-lost error.
// Caller holds s.mu.
func (s *X11Source) recreateLocked() {
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = nil
	s.outstanding = false
	time.Sleep(settleDelay)

	conn, err := xgb.NewConn()
	if err != nil {
		logger.WithComponent("x11-source").Warn().Err(err).Msg("failed to recreate X11 connection")
		return
	}
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)
	s.conn = conn
	s.root = screen.Root
	s.screen = screen
	if err := composite.Init(conn); err == nil {
		s.compositeEnabled = true
	}
}

// isAccessLostErr reports whether err from an X request indicates the
// drawable/connection is no longer valid, as opposed to a one-off
// request error.
func isAccessLostErr(err error) bool {
	switch err.(type) {
	case xproto.DrawableError, xproto.WindowError, xproto.MatchError:
		return true
	default:
		return false
	}
}
