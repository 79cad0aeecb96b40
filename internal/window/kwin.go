package window

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/duplicast/duplicast/internal/logger"
	"github.com/godbus/dbus/v5"
)

// KWin D-Bus service constants, used only to confirm a KWin session is
// present before falling back to the kdotool subprocess path KWin itself
// recommends for window enumeration.
const (
	kwinService = "org.kde.KWin"
)

// KWinBackend discovers windows on a KWin (Wayland or XWayland) session
// via the kdotool CLI, which wraps KWin's scripting D-Bus interface.
// Native Wayland windows have no X11 window ID, so this backend hashes
// their string UUID into a uint32 handle and keeps the original UUID
// around for geometry re-queries.
type KWinBackend struct {
	conn *dbus.Conn

	mu            sync.RWMutex
	uuidByHandle  map[uint32]string
	currentWindow Info
	stopChan      chan struct{}
	watching      bool
}

// NewKWinBackend connects to the session bus and verifies KWin is present.
func NewKWinBackend() (*KWinBackend, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("window: connect to session bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("window: list D-Bus names: %w", err)
	}
	found := false
	for _, n := range names {
		if n == kwinService {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("window: KWin service not found on D-Bus")
	}

	if _, err := exec.LookPath("kdotool"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("window: kdotool not found in PATH: %w", err)
	}

	return &KWinBackend{conn: conn, uuidByHandle: make(map[uint32]string)}, nil
}

func (b *KWinBackend) Connect() error { return nil }

func (b *KWinBackend) Close() error {
	b.StopWatching()
	return b.conn.Close()
}

func (b *KWinBackend) Name() string { return "kwin" }

func (b *KWinBackend) ListWindows() ([]Info, error) {
	out, err := exec.Command("kdotool", "search", "--name", ".").Output()
	if err != nil {
		return nil, fmt.Errorf("window: kdotool search: %w", err)
	}

	var windows []Info
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		uuid := strings.TrimSpace(scanner.Text())
		if uuid == "" {
			continue
		}
		info, err := b.windowInfo(uuid)
		if err != nil {
			logger.WithComponent("kwin-window").Debug().Str("uuid", uuid).Err(err).Msg("failed to resolve kdotool window")
			continue
		}
		if info.Title == "" && info.Class == "" {
			continue
		}
		windows = append(windows, info)
	}
	return windows, nil
}

func (b *KWinBackend) GetFocusedWindow() (Info, error) {
	out, err := exec.Command("kdotool", "getactivewindow").Output()
	if err != nil {
		return Info{}, fmt.Errorf("window: kdotool getactivewindow: %w", err)
	}
	uuid := strings.TrimSpace(string(out))
	info, err := b.windowInfo(uuid)
	if err != nil {
		return Info{}, err
	}
	info.Focused = true
	return info, nil
}

// Bounds re-queries kdotool by the UUID recorded for handle at list/focus
// time. Unknown handles (never seen through this backend) are an error.
func (b *KWinBackend) Bounds(handle uint32) (x, y, w, h int, err error) {
	b.mu.RLock()
	uuid, ok := b.uuidByHandle[handle]
	b.mu.RUnlock()
	if !ok {
		return 0, 0, 0, 0, fmt.Errorf("window: unknown kwin window handle %d", handle)
	}
	out, err := exec.Command("kdotool", "getwindowgeometry", uuid).Output()
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("window: kdotool getwindowgeometry: %w", err)
	}
	geom := parseKdotoolGeometry(string(out))
	return geom.X, geom.Y, geom.Width, geom.Height, nil
}

func (b *KWinBackend) WatchFocus(callback func(Info)) error {
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

func (b *KWinBackend) StopWatching() {
	b.mu.Lock()
	if !b.watching {
		b.mu.Unlock()
		return
	}
	b.watching = false
	close(b.stopChan)
	b.mu.Unlock()
}

func (b *KWinBackend) pollFocus(stop chan struct{}, callback func(Info)) {
	ticker := time.NewTicker(focusPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			info, err := b.GetFocusedWindow()
			if err != nil {
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

func (b *KWinBackend) windowInfo(uuid string) (Info, error) {
	name, _ := exec.Command("kdotool", "getwindowname", uuid).Output()
	class, _ := exec.Command("kdotool", "getwindowclassname", uuid).Output()
	pidOut, _ := exec.Command("kdotool", "getwindowpid", uuid).Output()
	geomOut, _ := exec.Command("kdotool", "getwindowgeometry", uuid).Output()

	pid, _ := strconv.Atoi(strings.TrimSpace(string(pidOut)))
	geom := parseKdotoolGeometry(string(geomOut))
	handle := hashStringToUint32(uuid)

	b.mu.Lock()
	b.uuidByHandle[handle] = uuid
	b.mu.Unlock()

	return Info{
		ID:     handle,
		Title:  strings.TrimSpace(string(name)),
		Class:  strings.TrimSpace(string(class)),
		PID:    pid,
		X:      geom.X,
		Y:      geom.Y,
		Width:  geom.Width,
		Height: geom.Height,
	}, nil
}

type kdotoolGeometry struct {
	X, Y, Width, Height int
}

// parseKdotoolGeometry parses kdotool's "Position: X,Y\n  Geometry: WxH"
// text output.
func parseKdotoolGeometry(output string) kdotoolGeometry {
	var g kdotoolGeometry
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Position:"):
			parts := strings.Split(strings.TrimSpace(strings.TrimPrefix(line, "Position:")), ",")
			if len(parts) >= 2 {
				g.X, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
				g.Y, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
			}
		case strings.HasPrefix(line, "Geometry:"):
			parts := strings.Split(strings.TrimSpace(strings.TrimPrefix(line, "Geometry:")), "x")
			if len(parts) >= 2 {
				g.Width, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
				g.Height, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
			}
		}
	}
	return g
}

// hashStringToUint32 gives native-Wayland window UUIDs (which have no X11
// window ID) a stable uint32 handle.
func hashStringToUint32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
