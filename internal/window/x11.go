package window

import (
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/duplicast/duplicast/internal/logger"
)

// focusPollInterval mirrors the teacher's window-focus poll cadence; X11
// has no convenient blocking "focus changed" event across window
// managers, so both this backend and KWinBackend poll.
const focusPollInterval = 500 * time.Millisecond

// X11Backend discovers and tracks windows via core X11 protocol requests.
type X11Backend struct {
	conn *xgb.Conn
	root xproto.Window

	mu            sync.RWMutex
	currentWindow Info
	listeners     []chan Info
	stopChan      chan struct{}
	watching      bool
}

// NewX11Backend connects to the X server.
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("window: connect to X server: %w", err)
	}
	root := xproto.Setup(conn).DefaultScreen(conn).Root
	return &X11Backend{conn: conn, root: root}, nil
}

func (b *X11Backend) Connect() error { return nil }

func (b *X11Backend) Close() error {
	b.StopWatching()
	b.conn.Close()
	return nil
}

func (b *X11Backend) Name() string { return "x11" }

// Bounds implements capture.BoundsProvider's shape directly (see
// internal/window/tracker.go for the adapter that satisfies the
// interface by name).
func (b *X11Backend) Bounds(id uint32) (x, y, w, h int, err error) {
	geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(xproto.Window(id))).Reply()
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("window: get geometry for %d: %w", id, err)
	}
	// GetGeometry reports coordinates relative to the window's parent;
	// translate to root coordinates the way the spec's extended bounds
	// rectangle requires.
	translated, err := xproto.TranslateCoordinates(b.conn, xproto.Window(id), b.root, 0, 0).Reply()
	if err != nil {
		return int(geom.X), int(geom.Y), int(geom.Width), int(geom.Height), nil
	}
	return int(translated.DstX), int(translated.DstY), int(geom.Width), int(geom.Height), nil
}

func (b *X11Backend) ListWindows() ([]Info, error) {
	tree, err := xproto.QueryTree(b.conn, b.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("window: query tree: %w", err)
	}

	windows := make([]Info, 0, len(tree.Children))
	for _, child := range tree.Children {
		info, err := b.windowInfo(child)
		if err != nil {
			continue
		}
		if info.Title == "" {
			continue
		}
		windows = append(windows, info)
	}
	return windows, nil
}

func (b *X11Backend) GetFocusedWindow() (Info, error) {
	focusReply, err := xproto.GetInputFocus(b.conn).Reply()
	if err != nil {
		return Info{}, fmt.Errorf("window: get input focus: %w", err)
	}
	info, err := b.windowInfo(focusReply.Focus)
	if err != nil {
		return Info{}, err
	}
	info.Focused = true
	return info, nil
}

func (b *X11Backend) WatchFocus(callback func(Info)) error {
	const eventMask = xproto.EventMaskPropertyChange | xproto.EventMaskFocusChange
	if err := xproto.ChangeWindowAttributesChecked(
		b.conn, b.root, xproto.CwEventMask, []uint32{eventMask},
	).Check(); err != nil {
		return fmt.Errorf("window: set event mask: %w", err)
	}

	b.mu.Lock()
	if b.watching {
		b.mu.Unlock()
		return nil
	}
	b.watching = true
	b.stopChan = make(chan struct{})
	stop := b.stopChan
	b.mu.Unlock()

	go b.pollFocus(stop, callback)
	return nil
}

func (b *X11Backend) StopWatching() {
	b.mu.Lock()
	if !b.watching {
		b.mu.Unlock()
		return
	}
	b.watching = false
	close(b.stopChan)
	b.mu.Unlock()
}

func (b *X11Backend) pollFocus(stop chan struct{}, callback func(Info)) {
	log := logger.WithComponent("x11-window")
	ticker := time.NewTicker(focusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			info, err := b.GetFocusedWindow()
			if err != nil {
				log.Debug().Err(err).Msg("failed to poll focused window")
				continue
			}
			b.mu.Lock()
			changed := b.currentWindow.ID != info.ID
			b.currentWindow = info
			b.mu.Unlock()
			if changed {
				callback(info)
			}
		}
	}
}

func (b *X11Backend) windowInfo(win xproto.Window) (Info, error) {
	info := Info{ID: uint32(win)}

	if geom, err := xproto.GetGeometry(b.conn, xproto.Drawable(win)).Reply(); err == nil {
		info.X = int(geom.X)
		info.Y = int(geom.Y)
		info.Width = int(geom.Width)
		info.Height = int(geom.Height)
	}

	if title, err := b.property(win, "_NET_WM_NAME"); err == nil && title != "" {
		info.Title = title
	} else if title, err := b.property(win, "WM_NAME"); err == nil {
		info.Title = title
	}

	if class, err := b.property(win, "WM_CLASS"); err == nil {
		info.Class = class
	}

	if pidReply, err := b.cardinalProperty(win, "_NET_WM_PID"); err == nil {
		info.PID = int(pidReply)
	}

	return info, nil
}

func (b *X11Backend) atom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

func (b *X11Backend) property(win xproto.Window, atomName string) (string, error) {
	atom, err := b.atom(atomName)
	if err != nil {
		return "", err
	}
	reply, err := xproto.GetProperty(b.conn, false, win, atom, xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("window: empty property %s", atomName)
	}
	return string(reply.Value), nil
}

func (b *X11Backend) cardinalProperty(win xproto.Window, atomName string) (uint32, error) {
	atom, err := b.atom(atomName)
	if err != nil {
		return 0, err
	}
	reply, err := xproto.GetProperty(b.conn, false, win, atom, xproto.AtomCardinal, 0, 1).Reply()
	if err != nil {
		return 0, err
	}
	if len(reply.Value) < 4 {
		return 0, fmt.Errorf("window: short cardinal property %s", atomName)
	}
	return uint32(reply.Value[0]) | uint32(reply.Value[1])<<8 | uint32(reply.Value[2])<<16 | uint32(reply.Value[3])<<24, nil
}
