package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duplicast/duplicast/internal/broadcast"
	"github.com/duplicast/duplicast/internal/capture"
	"github.com/duplicast/duplicast/internal/config"
	"github.com/duplicast/duplicast/internal/encoder"
	"github.com/duplicast/duplicast/internal/logger"
	"github.com/duplicast/duplicast/internal/pipeline"
	"github.com/duplicast/duplicast/internal/pool"
	"github.com/duplicast/duplicast/internal/window"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the duplicast capture and broadcast server",
	Long: `Start capturing the configured monitor or window, encode each frame,
and broadcast it to any number of websocket viewers.`,
	Example: `  # Start on the default port (9191)
  duplicast serve

  # Start on a custom port
  duplicast serve --port 9200

  # Start with debug logging
  duplicast serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			cfg := configMgr.Get()
			cfg.Network.Port = port
			configMgr.Update(cfg)
		}
	}
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			cfg := configMgr.Get()
			cfg.LogLevel = level
			configMgr.Update(cfg)
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, true)
	log.Info().Str("path", configMgr.ConfigPath()).Msg("configuration loaded")

	source, err := capture.NewX11Source()
	if err != nil {
		return fmt.Errorf("failed to connect capture source: %w", err)
	}

	backend, backendErr := window.Detect()
	if backendErr != nil {
		log.Warn().Err(backendErr).Msg("no window backend available, falling back to monitor capture only")
	}

	target := capture.Target{Monitor: &cfg.Capture.MonitorIndex}
	active, hasActive := configMgr.ActiveCaptureTarget()
	if hasActive && active.WindowID != nil && backend != nil {
		handle := capture.WindowHandle{ID: *active.WindowID}
		target = capture.Target{Window: &handle, Bounds: window.NewTracker(backend)}
	} else if hasActive && active.MonitorIndex != nil {
		target = capture.Target{Monitor: active.MonitorIndex}
		if backend != nil {
			_ = backend.Close()
		}
	} else if backend != nil {
		_ = backend.Close()
	}

	captureMgr := capture.NewManager(source, target)

	encPipe := encoder.New(encoder.Config{
		Quality:         cfg.Encoder.JPEGQuality,
		DownscaleFactor: cfg.Encoder.DownscaleFactor,
		OutputWidth:     cfg.Encoder.OutputWidth,
		OutputHeight:    cfg.Encoder.OutputHeight,
		Method:          encoder.Method(cfg.Encoder.Method),
		VREnabled:       cfg.Encoder.VREnabled,
		EyeSeparation:   cfg.Encoder.EyeSeparation,
	})

	server := broadcast.NewServer(broadcast.Config{
		Host:         cfg.Network.Host,
		Port:         cfg.Network.Port,
		MaxClients:   cfg.Network.MaxClients,
		PingInterval: time.Duration(cfg.Network.PingInterval) * time.Second,
	})

	const (
		rawFrameBytes = 7680 * 4320 * 4 // up to 8K BGRA per buffer
		rawPoolSize   = 4
		encInitialCap = 256 * 1024
		encPoolSize   = 4
	)
	rawPool := pool.NewRawFramePool(rawFrameBytes, rawPoolSize)
	encPool := pool.NewEncodedFramePool(encInitialCap, encPoolSize)

	orch := pipeline.New(pipeline.Config{TargetFPS: cfg.Capture.TargetFPS}, captureMgr, encPipe, server, rawPool, encPool)
	orch.OnStatsUpdate(func(s pipeline.PipelineStats) {
		log.Debug().
			Uint64("captured", s.FramesCaptured).
			Uint64("encoded", s.FramesEncoded).
			Float64("capture_fps", s.CaptureFPS).
			Float64("encode_fps", s.EncodeFPS).
			Float64("stream_fps", s.StreamFPS).
			Int("clients", s.ConnectedClients).
			Float64("avg_encode_ms", s.AvgEncodeMs).
			Float64("avg_latency_ms", s.AverageLatencyMs).
			Float64("uptime_s", s.UptimeSeconds).
			Msg("pipeline stats")
	})
	orch.OnClientConnect(func(id string) { log.Info().Str("client", id).Msg("client connected") })
	orch.OnClientDisconnect(func(id string) { log.Info().Str("client", id).Msg("client disconnected") })
	orch.OnError(func(err error) { log.Error().Err(err).Msg("pipeline error") })

	if err := orch.Start(); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	advertiseHost := cfg.Network.Host
	if advertiseHost == "" || advertiseHost == "0.0.0.0" {
		if ip, ipErr := broadcast.LocalOutboundIP(); ipErr != nil {
			log.Warn().Err(ipErr).Msg("could not discover outbound ip, clients must be told the address manually")
		} else {
			advertiseHost = ip
		}
	}

	log.Info().
		Str("addr", fmt.Sprintf("%s:%d", advertiseHost, cfg.Network.Port)).
		Msg("duplicast is running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	if err := orch.Stop(); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}
	return source.Close()
}

