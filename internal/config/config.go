// Package config holds the Config{Capture,Encoder,Network} value recognized
// by the pipeline core (spec §6) and the Manager that loads/saves it as
// YAML, the way the teacher's config.Manager persists its own settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/duplicast/duplicast/internal/logger"
	"gopkg.in/yaml.v3"
)

// EncodeMethod selects which compressor backend the encoder pipeline
// should prefer. "plain" lets the selection ladder in internal/jpegenc
// pick the best available variant itself.
type EncodeMethod string

const (
	MethodPlain    EncodeMethod = "plain"
	MethodGPUJPEG  EncodeMethod = "gpu-jpeg"
	MethodSIMDJPEG EncodeMethod = "simd-jpeg"
	MethodH264     EncodeMethod = "h264"
	MethodRaw      EncodeMethod = "raw"
)

// CaptureConfig configures the capture stage.
type CaptureConfig struct {
	TargetFPS      int  `json:"target_fps" yaml:"target_fps"`
	MonitorIndex   int  `json:"monitor_index" yaml:"monitor_index"`
	CaptureCursor  bool `json:"capture_cursor" yaml:"capture_cursor"`
}

// EncoderConfig configures the stereo-shape + JPEG-compress stage.
type EncoderConfig struct {
	JPEGQuality      int          `json:"jpeg_quality" yaml:"jpeg_quality"`
	DownscaleFactor  float64      `json:"downscale_factor" yaml:"downscale_factor"`
	OutputWidth      int          `json:"output_width" yaml:"output_width"`
	OutputHeight     int          `json:"output_height" yaml:"output_height"`
	Method           EncodeMethod `json:"method" yaml:"method"`
	VREnabled        bool         `json:"vr_enabled" yaml:"vr_enabled"`
	EyeSeparation    float64      `json:"eye_separation" yaml:"eye_separation"`
}

// NetworkConfig configures the broadcast stage.
type NetworkConfig struct {
	Host          string `json:"host" yaml:"host"`
	Port          int    `json:"port" yaml:"port"`
	MaxClients    int    `json:"max_clients" yaml:"max_clients"`
	PingInterval  int    `json:"ping_interval" yaml:"ping_interval"`
	UseTCPNoDelay bool   `json:"use_tcp_nodelay" yaml:"use_tcp_nodelay"`
}

// CaptureTarget names a switchable capture target: either a monitor index
// or a tracked window ID. Exactly one of MonitorIndex/WindowID is set.
type CaptureTarget struct {
	Name         string  `json:"name" yaml:"name"`
	MonitorIndex *int    `json:"monitor_index,omitempty" yaml:"monitor_index,omitempty"`
	WindowID     *uint32 `json:"window_id,omitempty" yaml:"window_id,omitempty"`
}

// Config is the value the orchestrator is Init'd and reconfigured with.
type Config struct {
	Capture  CaptureConfig `json:"capture" yaml:"capture"`
	Encoder  EncoderConfig `json:"encoder" yaml:"encoder"`
	Network  NetworkConfig `json:"network" yaml:"network"`
	LogLevel string        `json:"log_level" yaml:"log_level"`

	// CaptureTargets and ActiveTarget mirror the teacher's named, switchable
	// Profiles/ActiveProfileID pattern, applied here to capture targets
	// instead of application allowlists.
	CaptureTargets []CaptureTarget `json:"capture_targets" yaml:"capture_targets"`
	ActiveTarget   string          `json:"active_target" yaml:"active_target"`
}

// QualityPreset is a named (quality, downscale, target_fps) triple applied
// atomically by Manager.ApplyPreset.
type QualityPreset string

const (
	PresetUltraPerformance QualityPreset = "ultra_performance"
	PresetUltraLowLatency  QualityPreset = "ultra_low_latency"
	PresetLowLatency       QualityPreset = "low_latency"
	PresetBalanced         QualityPreset = "balanced"
	PresetQuality          QualityPreset = "quality"
)

var presetTable = map[QualityPreset]struct {
	quality   int
	downscale float64
	targetFPS int
}{
	PresetUltraPerformance: {quality: 40, downscale: 0.35, targetFPS: 60},
	PresetUltraLowLatency:  {quality: 50, downscale: 0.5, targetFPS: 60},
	PresetLowLatency:       {quality: 65, downscale: 0.65, targetFPS: 60},
	PresetBalanced:         {quality: 75, downscale: 0.75, targetFPS: 45},
	PresetQuality:          {quality: 85, downscale: 0.85, targetFPS: 30},
}

// Manager owns the on-disk Config, guarding it with a single mutex the way
// the teacher's config.Manager does for its YAML-backed settings.
type Manager struct {
	mu         sync.RWMutex
	configPath string
	config     *Config
}

// NewManager loads configFile (or the default
// $HOME/.config/duplicast/config.yaml) if it exists, otherwise writes out
// defaults and loads those.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir := filepath.Join(homeDir, ".config", "duplicast")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}

	m := &Manager{configPath: path}

	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		logger.WithComponent("config").Info().Str("path", path).Msg("wrote default config")
	}

	return m, nil
}

// Defaults returns the configuration used when no config file exists yet.
func Defaults() *Config {
	return &Config{
		Capture: CaptureConfig{
			TargetFPS:     60,
			MonitorIndex:  0,
			CaptureCursor: false,
		},
		Encoder: EncoderConfig{
			JPEGQuality:     75,
			DownscaleFactor: 1.0,
			Method:          MethodPlain,
			VREnabled:       false,
			EyeSeparation:   0.0,
		},
		Network: NetworkConfig{
			Host:          "0.0.0.0",
			Port:          9191,
			MaxClients:    16,
			PingInterval:  10,
			UseTCPNoDelay: true,
		},
		LogLevel: "info",
		CaptureTargets: []CaptureTarget{
			{Name: "primary-monitor", MonitorIndex: intPtr(0)},
		},
		ActiveTarget: "primary-monitor",
	}
}

func intPtr(v int) *int { return &v }

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Save writes the current config to disk as YAML.
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current config.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.config
}

// Update replaces the current config wholesale.
func (m *Manager) Update(cfg Config) {
	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
}

// ConfigPath returns the path the manager loads/saves from.
func (m *Manager) ConfigPath() string {
	return m.configPath
}

// ListCaptureTargets returns a copy of the configured capture targets.
func (m *Manager) ListCaptureTargets() []CaptureTarget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CaptureTarget, len(m.config.CaptureTargets))
	copy(out, m.config.CaptureTargets)
	return out
}

// ActiveCaptureTarget returns the currently active target, or false if
// ActiveTarget doesn't name a configured one.
func (m *Manager) ActiveCaptureTarget() (CaptureTarget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.config.CaptureTargets {
		if t.Name == m.config.ActiveTarget {
			return t, true
		}
	}
	return CaptureTarget{}, false
}

// SetActiveCaptureTarget switches the active capture target by name.
func (m *Manager) SetActiveCaptureTarget(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.config.CaptureTargets {
		if t.Name == name {
			m.config.ActiveTarget = name
			return nil
		}
	}
	return fmt.Errorf("capture target not found: %s", name)
}

// AddCaptureTarget appends a new named target, replacing any existing one
// with the same name.
func (m *Manager) AddCaptureTarget(target CaptureTarget) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.config.CaptureTargets {
		if t.Name == target.Name {
			m.config.CaptureTargets[i] = target
			return
		}
	}
	m.config.CaptureTargets = append(m.config.CaptureTargets, target)
}

// RemoveCaptureTarget deletes a named target. Removing the active target
// leaves ActiveTarget pointing at a name that no longer resolves; callers
// should switch to another target first.
func (m *Manager) RemoveCaptureTarget(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	filtered := make([]CaptureTarget, 0, len(m.config.CaptureTargets))
	for _, t := range m.config.CaptureTargets {
		if t.Name != name {
			filtered = append(filtered, t)
		}
	}
	m.config.CaptureTargets = filtered
}

// ApplyPreset replaces the encoder's quality/downscale pair and the
// capture target FPS with the named preset's values. Idempotent: applying
// the same preset twice leaves the config unchanged (spec §8).
func (m *Manager) ApplyPreset(p QualityPreset) error {
	vals, ok := presetTable[p]
	if !ok {
		return fmt.Errorf("unknown quality preset %q", p)
	}
	m.mu.Lock()
	m.config.Encoder.JPEGQuality = vals.quality
	m.config.Encoder.DownscaleFactor = vals.downscale
	m.config.Capture.TargetFPS = vals.targetFPS
	m.mu.Unlock()
	return nil
}
