package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/duplicast/duplicast/internal/pool"
)

// defaultMaxInitRetries bounds how many times Manager retries Init before
// giving up and propagating an error to the orchestrator.
const defaultMaxInitRetries = 3

// Target is the last-configured capture target a Manager re-initializes
// against after a fatal-looking failure.
type Target struct {
	Monitor *int
	Window  *WindowHandle
	Bounds  BoundsProvider
}

// Manager is the thin recovery wrapper described in spec.md §4.C: it
// retries Source initialization up to a fixed bound whenever a capture
// call finds the source uninitialized, using the last configured target.
type Manager struct {
	mu          sync.Mutex
	source      Source
	target      Target
	maxRetries  int
	initialized bool
}

// NewManager wraps source. Manager performs the Init calls against target
// itself, lazily on the first NextFrame.
func NewManager(source Source, target Target) *Manager {
	return &Manager{source: source, target: target, maxRetries: defaultMaxInitRetries}
}

func (m *Manager) init() error {
	var lastErr error
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		var err error
		if m.target.Window != nil {
			err = m.source.InitWindow(*m.target.Window, m.target.Bounds)
		} else {
			idx := 0
			if m.target.Monitor != nil {
				idx = *m.target.Monitor
			}
			err = m.source.InitMonitor(idx)
		}
		if err == nil {
			m.initialized = true
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("capture: init failed after %d retries: %w", m.maxRetries, lastErr)
}

// NextFrame re-initializes the source on demand and otherwise delegates
// straight through. A nil, nil result means "no frame this tick" and is
// not an error; a non-nil error means init exhausted its retry bound and
// should propagate to the orchestrator's error callback.
func (m *Manager) NextFrame(timeoutMs int) (*Frame, error) {
	m.mu.Lock()
	needInit := !m.initialized
	m.mu.Unlock()

	if needInit {
		if err := m.init(); err != nil {
			return nil, err
		}
	}

	f, err := m.source.NextFrame(timeoutMs)
	if errors.Is(err, ErrNotInitialized) {
		m.mu.Lock()
		m.initialized = false
		m.mu.Unlock()
		if err := m.init(); err != nil {
			return nil, err
		}
		return m.source.NextFrame(timeoutMs)
	}
	return f, err
}

func (m *Manager) CopyToCPU(f *Frame, dst *pool.RawFrame) error {
	return m.source.CopyToCPU(f, dst)
}

func (m *Manager) ReleaseFrame(f *Frame) error {
	return m.source.ReleaseFrame(f)
}

func (m *Manager) Close() error {
	return m.source.Close()
}

func (m *Manager) Name() string {
	return m.source.Name()
}
