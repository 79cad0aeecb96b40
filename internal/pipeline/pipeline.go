// Package pipeline is the orchestrator of spec.md §4.H: it owns the
// capture source, the encoder pipeline, the broadcast server, the two
// frame pools, the inter-stage queue, and the three threads (capture,
// encode, stats) that drive them.
package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duplicast/duplicast/internal/broadcast"
	"github.com/duplicast/duplicast/internal/capture"
	"github.com/duplicast/duplicast/internal/encoder"
	"github.com/duplicast/duplicast/internal/logger"
	"github.com/duplicast/duplicast/internal/pool"
	"github.com/duplicast/duplicast/internal/ring"
)

// queueCapacity bounds Q1, the capture->encode handoff ring.
const queueCapacity = 8

// statsInterval is how often the stats thread snapshots and fires its
// callback.
const statsInterval = 1 * time.Second

// PipelineStats is the snapshot fired to the stats callback once a
// second.
type PipelineStats struct {
	CaptureFPS       float64
	EncodeFPS        float64
	StreamFPS        float64
	FramesCaptured   uint64
	FramesDropped    uint64
	FramesEncoded    uint64
	BytesEncoded     uint64
	AvgEncodeMs      float64
	CompressRatio    float64
	ConnectedClients int
	AverageLatencyMs float64
	UptimeSeconds    float64
	CurrentQuality   int
	CurrentDownscale float64
}

// Config is the subset of runtime knobs the orchestrator needs beyond
// what internal/config.Config already carries: a target frame rate for
// the capture pacer.
type Config struct {
	TargetFPS int
}

// Orchestrator drives the capture -> encode -> broadcast pipeline.
type Orchestrator struct {
	cfgMu sync.RWMutex
	cfg   Config

	captureMgr *capture.Manager
	encPipe    *encoder.Pipeline
	server     *broadcast.Server

	rawPool *pool.RawFramePool
	encPool *pool.EncodedFramePool
	q1      *ring.Ring[*pool.RawFrame]

	stopRequested atomic.Bool
	wg            sync.WaitGroup

	framesCaptured uint64
	framesDropped  uint64
	framesPushed   uint64

	startedAt time.Time

	statsMu            sync.Mutex
	lastStatsAt        time.Time
	lastFramesCaptured uint64
	lastFramesEncoded  uint64
	lastFramesPushed   uint64

	onStatsUpdate      func(PipelineStats)
	onClientConnect    func(id string)
	onClientDisconnect func(id string)
	onError            func(error)
}

// New constructs an Orchestrator. The caller still has to call Start.
func New(cfg Config, captureMgr *capture.Manager, encPipe *encoder.Pipeline, server *broadcast.Server, rawPool *pool.RawFramePool, encPool *pool.EncodedFramePool) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		captureMgr: captureMgr,
		encPipe:    encPipe,
		server:     server,
		rawPool:    rawPool,
		encPool:    encPool,
		q1:         ring.New[*pool.RawFrame](queueCapacity),
	}
	server.OnClientConnect(func(id string) {
		if o.onClientConnect != nil {
			o.onClientConnect(id)
		}
	})
	server.OnClientDisconnect(func(id string) {
		if o.onClientDisconnect != nil {
			o.onClientDisconnect(id)
		}
	})
	return o
}

func (o *Orchestrator) OnStatsUpdate(fn func(PipelineStats))       { o.onStatsUpdate = fn }
func (o *Orchestrator) OnClientConnect(fn func(id string))         { o.onClientConnect = fn }
func (o *Orchestrator) OnClientDisconnect(fn func(id string))      { o.onClientDisconnect = fn }
func (o *Orchestrator) OnError(fn func(error))                     { o.onError = fn }

func (o *Orchestrator) targetFPS() int {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	if o.cfg.TargetFPS <= 0 {
		return 30
	}
	return o.cfg.TargetFPS
}

// SetTargetFPS adjusts the capture pacer's target frame rate.
func (o *Orchestrator) SetTargetFPS(fps int) {
	o.cfgMu.Lock()
	o.cfg.TargetFPS = fps
	o.cfgMu.Unlock()
}

// SetQuality, SetDownscale, ApplyPreset forward to the encoder pipeline,
// matching spec.md §4.H's quality controls, callable at any time.
func (o *Orchestrator) SetQuality(q int) {
	cfg := o.encPipe.Config()
	cfg.Quality = q
	o.encPipe.UpdateConfig(cfg)
}

func (o *Orchestrator) SetDownscale(f float64) {
	cfg := o.encPipe.Config()
	cfg.DownscaleFactor = f
	o.encPipe.UpdateConfig(cfg)
}

// SetMethod switches the encoder's compressor backend at runtime.
func (o *Orchestrator) SetMethod(m encoder.Method) {
	cfg := o.encPipe.Config()
	cfg.Method = m
	o.encPipe.UpdateConfig(cfg)
}

// ApplyPreset forwards to the encoder pipeline and also updates the
// capture pacer's target frame rate, since a preset binds all three
// fields atomically.
func (o *Orchestrator) ApplyPreset(p encoder.QualityPreset) bool {
	if !o.encPipe.ApplyPreset(p) {
		return false
	}
	if fps, ok := encoder.PresetTargetFPS(p); ok {
		o.SetTargetFPS(fps)
	}
	return true
}

// Start launches the broadcast server and the three threads.
func (o *Orchestrator) Start() error {
	if err := o.server.Start(); err != nil {
		return fmt.Errorf("pipeline: start broadcast server: %w", err)
	}

	now := time.Now()
	o.startedAt = now
	o.statsMu.Lock()
	o.lastStatsAt = now
	o.statsMu.Unlock()

	o.stopRequested.Store(false)
	o.wg.Add(3)
	go o.captureLoop()
	go o.encodeLoop()
	go o.statsLoop()
	return nil
}

// Stop is cooperative: set stop_requested, wait for all three threads
// (capture, encode, stats) to notice and exit, then stop the server — joining threads first
// ensures no frame is produced after the server halts.
func (o *Orchestrator) Stop() error {
	o.stopRequested.Store(true)
	o.wg.Wait()
	return o.server.Stop()
}

func (o *Orchestrator) captureLoop() {
	defer o.wg.Done()
	log := logger.WithComponent("pipeline-capture")

	for !o.stopRequested.Load() {
		frameStart := time.Now()
		slot := time.Duration(1000/o.targetFPS()) * time.Millisecond

		frame, err := o.captureMgr.NextFrame(16)
		if err != nil {
			log.Error().Err(err).Msg("capture init exhausted retry bound")
			if o.onError != nil {
				o.onError(err)
			}
			time.Sleep(slot)
			continue
		}
		if frame != nil {
			raw := o.rawPool.Acquire()
			if cpErr := o.captureMgr.CopyToCPU(frame, raw); cpErr != nil {
				o.rawPool.Release(raw)
			} else if !o.q1.TryPush(raw) {
				o.rawPool.Release(raw)
			} else {
				atomic.AddUint64(&o.framesCaptured, 1)
			}
			if relErr := o.captureMgr.ReleaseFrame(frame); relErr != nil {
				log.Debug().Err(relErr).Msg("release_frame failed")
			}
		}

		if remaining := slot - time.Since(frameStart); remaining > 0 {
			time.Sleep(remaining)
		}
	}
}

func (o *Orchestrator) encodeLoop() {
	defer o.wg.Done()

	for !o.stopRequested.Load() {
		raw, ok := o.q1.TryPop()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}

		ef := o.encPool.Acquire()
		n, err := o.encPipe.Encode(raw.Data[:raw.Size], raw.Width, raw.Height, raw.Stride, 4, &ef.Bytes)
		o.rawPool.Release(raw)
		if err != nil {
			atomic.AddUint64(&o.framesDropped, 1)
			o.encPool.Release(ef)
			if o.onError != nil {
				o.onError(err)
			}
			continue
		}

		// The encoded bytes are handed to every connected client; copy
		// them out of the pooled scratch buffer into an independently
		// owned slice so the pool can safely reuse ef on the next
		// iteration regardless of how long a slow client takes to drain
		// its outbound ring. Go's GC is the "shared owner" here.
		owned := make([]byte, n)
		copy(owned, ef.Bytes[:n])
		o.encPool.Release(ef)

		o.server.PushFrame(owned)
		atomic.AddUint64(&o.framesPushed, 1)
	}
}

func (o *Orchestrator) statsLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		if o.stopRequested.Load() {
			return
		}
		select {
		case <-ticker.C:
			if o.onStatsUpdate != nil {
				o.onStatsUpdate(o.Snapshot())
			}
		}
	}
}

// Snapshot composes a PipelineStats from the encoder and broadcast
// server's own lock-guarded stats, measuring capture/encode/stream rates
// from counter deltas since the previous snapshot rather than echoing the
// configured target.
func (o *Orchestrator) Snapshot() PipelineStats {
	es := o.encPipe.Stats()
	encCfg := o.encPipe.Config()

	framesCaptured := atomic.LoadUint64(&o.framesCaptured)
	framesPushed := atomic.LoadUint64(&o.framesPushed)

	now := time.Now()
	o.statsMu.Lock()
	elapsed := now.Sub(o.lastStatsAt).Seconds()
	var captureFPS, encodeFPS, streamFPS float64
	if elapsed > 0 {
		captureFPS = float64(framesCaptured-o.lastFramesCaptured) / elapsed
		encodeFPS = float64(es.Frames-o.lastFramesEncoded) / elapsed
		streamFPS = float64(framesPushed-o.lastFramesPushed) / elapsed
	}
	o.lastStatsAt = now
	o.lastFramesCaptured = framesCaptured
	o.lastFramesEncoded = es.Frames
	o.lastFramesPushed = framesPushed
	o.statsMu.Unlock()

	var uptime float64
	if !o.startedAt.IsZero() {
		uptime = now.Sub(o.startedAt).Seconds()
	}

	return PipelineStats{
		CaptureFPS:       captureFPS,
		EncodeFPS:        encodeFPS,
		StreamFPS:        streamFPS,
		FramesCaptured:   framesCaptured,
		FramesDropped:    atomic.LoadUint64(&o.framesDropped),
		FramesEncoded:    es.Frames,
		BytesEncoded:     es.Bytes,
		AvgEncodeMs:      es.AvgTotalMs,
		CompressRatio:    es.LastCompressRatio,
		ConnectedClients: o.server.ClientCount(),
		AverageLatencyMs: o.server.AverageLatencyMs(),
		UptimeSeconds:    uptime,
		CurrentQuality:   encCfg.Quality,
		CurrentDownscale: encCfg.DownscaleFactor,
	}
}
