// Package encoder composes the stereo shaper and the JPEG compressor into
// the single encode(...) operation of spec.md §4.F: shape into a reusable
// stereo buffer when VR is enabled, then compress, tracking timing and
// compression-ratio stats along the way.
package encoder

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duplicast/duplicast/internal/jpegenc"
	"github.com/duplicast/duplicast/internal/stereo"
)

// Method names which backend Encode uses to turn pixels into wire bytes,
// matching spec.md's encoder.method config enum.
type Method string

const (
	// MethodPlain lets internal/jpegenc's ladder auto-select GPU, SIMD, or
	// generic JPEG, whichever is available.
	MethodPlain Method = "plain"
	// MethodGPUJPEG and MethodSIMDJPEG pin the ladder to a specific rung,
	// falling back to the auto ladder if that rung isn't available.
	MethodGPUJPEG  Method = "gpu-jpeg"
	MethodSIMDJPEG Method = "simd-jpeg"
	// MethodRaw skips compression entirely and writes the shaped pixels
	// through unchanged, for viewers willing to trade bandwidth for zero
	// encode latency.
	MethodRaw Method = "raw"
	// MethodH264 is a recognized config value with no implementation here;
	// Encode returns ErrMethodUnsupported. Real-time H264 encoding needs a
	// GPU codec path this repo doesn't build (see the H264 Non-goal).
	MethodH264 Method = "h264"
)

// ErrMethodUnsupported is returned by Encode when Config.Method names a
// recognized but unimplemented backend (currently only MethodH264).
var ErrMethodUnsupported = fmt.Errorf("encoder: method not implemented")

// Config is the encoder's tunable state, swapped atomically by
// UpdateConfig so a concurrent Encode call always sees a consistent copy.
type Config struct {
	Quality         int
	DownscaleFactor float64
	// OutputWidth/OutputHeight override the derived size when both are > 0
	// (0 means "derive from DownscaleFactor"). The override applies only
	// with VREnabled false; the stereo shaper always sizes its output from
	// DownscaleFactor.
	OutputWidth     int
	OutputHeight    int
	Method          Method // zero value behaves like MethodPlain
	VREnabled       bool
	EyeSeparation   float64
}

// QualityPreset names a fixed (quality, downscale, target_fps) triple.
// ApplyPreset is idempotent: applying the same preset twice leaves the
// config unchanged.
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

// PresetTargetFPS returns the capture target_fps bound to preset, since
// Config itself has no FPS field (that's owned by internal/pipeline.Config).
// Callers that also control the capture pacer should apply it alongside
// ApplyPreset so all three preset fields take effect atomically.
func PresetTargetFPS(preset QualityPreset) (int, bool) {
	vals, ok := presetTable[preset]
	if !ok {
		return 0, false
	}
	return vals.targetFPS, true
}

// Stats is a snapshot of the encoder's running counters.
type Stats struct {
	Frames            uint64
	Bytes             uint64
	LastStereoMs      float64
	LastEncodeMs      float64
	LastTotalMs       float64
	AvgTotalMs        float64
	LastCompressRatio float64
}

// Pipeline owns the stereo shaper, the compressor, and the reusable
// stereo scratch buffer so Encode never allocates on its hot path once
// the buffer has grown to its steady-state size.
type Pipeline struct {
	mu     sync.RWMutex
	config Config

	shaper     *stereo.Shaper
	compressor *jpegenc.Selector

	stereoBuf []byte
	resizeBuf []byte

	frames      uint64
	bytesTotal  uint64
	lastStereoNs int64
	lastEncodeNs int64
	lastTotalNs  int64
	totalNs      uint64
	lastRatio    float64
	ratioMu      sync.Mutex
}

// New constructs a Pipeline with the given initial config.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		config:     cfg,
		shaper:     stereo.New(stereo.Config{DownscaleFactor: cfg.DownscaleFactor, EyeSeparation: cfg.EyeSeparation}),
		compressor: selectorForMethod(cfg.Method),
	}
}

// selectorForMethod builds the compressor for a given method. MethodRaw and
// MethodH264 don't reach here; Encode branches on those before touching the
// compressor at all.
func selectorForMethod(m Method) *jpegenc.Selector {
	switch m {
	case MethodGPUJPEG:
		return jpegenc.NewSelectorNamed("gpu-jpeg")
	case MethodSIMDJPEG:
		return jpegenc.NewSelectorNamed("simd-jpeg")
	default:
		return jpegenc.NewSelector()
	}
}

// UpdateConfig atomically swaps the pipeline's config. Per-call reads
// within a single Encode invocation are still consistent because only the
// owning thread calls Encode (spec.md §4.F). Changing Method rebuilds the
// compressor to match.
func (p *Pipeline) UpdateConfig(cfg Config) {
	p.mu.Lock()
	methodChanged := cfg.Method != p.config.Method
	p.config = cfg
	if methodChanged {
		p.compressor = selectorForMethod(cfg.Method)
	}
	p.mu.Unlock()
	p.shaper.UpdateConfig(stereo.Config{DownscaleFactor: cfg.DownscaleFactor, EyeSeparation: cfg.EyeSeparation})
}

func (p *Pipeline) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// ApplyPreset replaces quality/downscale with preset's fixed values,
// leaving VR/eye-separation settings untouched.
func (p *Pipeline) ApplyPreset(preset QualityPreset) bool {
	vals, ok := presetTable[preset]
	if !ok {
		return false
	}
	cfg := p.Config()
	cfg.Quality = vals.quality
	cfg.DownscaleFactor = vals.downscale
	p.UpdateConfig(cfg)
	return true
}

// activeCompressor returns the currently selected compressor under lock,
// since UpdateConfig may rebuild it concurrently with Encode.
func (p *Pipeline) activeCompressor() *jpegenc.Selector {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.compressor
}

// Encode implements spec.md §4.F's encode operation.
func (p *Pipeline) Encode(input []byte, width, height, stride, channels int, output *[]byte) (int, error) {
	start := time.Now()
	cfg := p.Config()

	if cfg.Method == MethodH264 {
		return 0, ErrMethodUnsupported
	}

	wo, ho := width, height
	if cfg.OutputWidth > 0 && cfg.OutputHeight > 0 {
		wo, ho = cfg.OutputWidth, cfg.OutputHeight
	} else {
		wo, ho = stereo.RoundEven(float64(width)*cfg.DownscaleFactor), stereo.RoundEven(float64(height)*cfg.DownscaleFactor)
	}

	encInput := input
	encWidth, encHeight, encStride, encChannels := width, height, stride, channels

	var stereoNs int64
	if cfg.VREnabled {
		swo, sho := stereo.OutputDims(width, height, cfg.DownscaleFactor)
		needed := swo * sho * 3
		p.mu.Lock()
		if len(p.stereoBuf) < needed {
			p.stereoBuf = make([]byte, needed)
		}
		buf := p.stereoBuf[:needed]
		p.mu.Unlock()

		stereoStart := time.Now()
		gotWo, gotHo, err := p.shaper.Shape(input, width, height, stride, channels, buf)
		stereoNs = int64(time.Since(stereoStart))
		if err != nil {
			return 0, err
		}
		encInput = buf
		encWidth, encHeight = gotWo, gotHo
		encStride = gotWo * 3
		encChannels = 3
	} else if wo != width || ho != height {
		needed := wo * ho * channels
		p.mu.Lock()
		if len(p.resizeBuf) < needed {
			p.resizeBuf = make([]byte, needed)
		}
		buf := p.resizeBuf[:needed]
		p.mu.Unlock()

		if err := stereo.Resize(input, width, height, stride, channels, wo, ho, buf); err != nil {
			return 0, err
		}
		encInput = buf
		encWidth, encHeight = wo, ho
		encStride = wo * channels
	}

	encodeStart := time.Now()
	var n int
	var err error
	if cfg.Method == MethodRaw {
		needed := encHeight * encStride
		if cap(*output) < needed {
			*output = make([]byte, needed)
		}
		*output = (*output)[:needed]
		n = copyRaw(encInput, *output, encHeight, encStride)
	} else {
		n, err = p.activeCompressor().Encode(encInput, encWidth, encHeight, encStride, encChannels, cfg.Quality, output)
	}
	encodeNs := int64(time.Since(encodeStart))
	if err != nil {
		return 0, err
	}

	totalNs := int64(time.Since(start))
	p.recordStats(stereoNs, encodeNs, totalNs, n, encWidth*encHeight*encChannels)
	return n, nil
}

// copyRaw writes height rows of stride bytes from src into dst and returns
// the byte count written, trimming a src that's already exactly sized.
func copyRaw(src, dst []byte, height, stride int) int {
	n := height * stride
	if n > len(src) {
		n = len(src)
	}
	copy(dst, src[:n])
	return n
}

func (p *Pipeline) recordStats(stereoNs, encodeNs, totalNs int64, bytesWritten, rawSize int) {
	atomic.StoreInt64(&p.lastStereoNs, stereoNs)
	atomic.StoreInt64(&p.lastEncodeNs, encodeNs)
	atomic.StoreInt64(&p.lastTotalNs, totalNs)
	atomic.AddUint64(&p.totalNs, uint64(totalNs))
	atomic.AddUint64(&p.frames, 1)
	atomic.AddUint64(&p.bytesTotal, uint64(bytesWritten))

	p.ratioMu.Lock()
	if bytesWritten > 0 {
		p.lastRatio = float64(rawSize) / float64(bytesWritten)
	}
	p.ratioMu.Unlock()
}

// Stats returns a snapshot of the pipeline's running counters.
func (p *Pipeline) Stats() Stats {
	frames := atomic.LoadUint64(&p.frames)
	var avg float64
	if frames > 0 {
		avg = float64(atomic.LoadUint64(&p.totalNs)) / float64(frames) / 1e6
	}
	p.ratioMu.Lock()
	ratio := p.lastRatio
	p.ratioMu.Unlock()

	return Stats{
		Frames:            frames,
		Bytes:             atomic.LoadUint64(&p.bytesTotal),
		LastStereoMs:      float64(atomic.LoadInt64(&p.lastStereoNs)) / 1e6,
		LastEncodeMs:      float64(atomic.LoadInt64(&p.lastEncodeNs)) / 1e6,
		LastTotalMs:       float64(atomic.LoadInt64(&p.lastTotalNs)) / 1e6,
		AvgTotalMs:        avg,
		LastCompressRatio: ratio,
	}
}
