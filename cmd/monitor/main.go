package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openacoustics/inaudible-monitor/internal/capture"
	"github.com/openacoustics/inaudible-monitor/internal/classify"
	"github.com/openacoustics/inaudible-monitor/internal/config"
	"github.com/openacoustics/inaudible-monitor/internal/detect"
	"github.com/openacoustics/inaudible-monitor/internal/dispatch"
	"github.com/openacoustics/inaudible-monitor/internal/dsp"
	"github.com/openacoustics/inaudible-monitor/internal/engine"
	"github.com/openacoustics/inaudible-monitor/internal/metrics"
	"github.com/openacoustics/inaudible-monitor/internal/report"
	"github.com/openacoustics/inaudible-monitor/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "inaudible-monitor"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	filePath := flag.String("file", "", "Analyze a WAV file instead of capturing live audio")
	jsonPath := flag.String("json", "", "Append detected events to this JSON lines file")
	csvPath := flag.String("csv", "", "Append detected events to this CSV file")
	listDevices := flag.Bool("devices", false, "List available input devices and exit")
	flag.Parse()

	if *listDevices {
		printDevices()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("fft_size", cfg.DSP.FFTSize),
		slog.Int("hop_length", cfg.DSP.HopLength),
		slog.String("window", cfg.DSP.Window),
		slog.Int("filter_order", cfg.DSP.FilterOrder),
		slog.Int("bands", len(cfg.Bands)),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()

	src, err := buildSource(cfg, *filePath, logger)
	if err != nil {
		logger.Error("Failed to create audio source", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ecfg := engineConfig(cfg)
	if fileSrc, ok := src.(*capture.FileSource); ok {
		// Offline analysis must see every sample: buffer the whole file
		// and never shed backlog.
		if need := fileSrc.SampleCount() + ecfg.FFTSize; need > ecfg.BufferCapacity {
			ecfg.BufferCapacity = need
		}
		ecfg.MaxBacklog = 0
	}

	eng, err := engine.New(ecfg, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Event consumers: in-memory recorder for the API, optional exporters.
	recorder := report.NewRecorder(1000)
	eng.Register("recorder", recorder)

	for _, exp := range []struct {
		name string
		path string
		mk   func(f *os.File) dispatch.Consumer
	}{
		{"json-export", *jsonPath, func(f *os.File) dispatch.Consumer { return report.NewJSONWriter(f) }},
		{"csv-export", *csvPath, func(f *os.File) dispatch.Consumer { return report.NewCSVWriter(f) }},
	} {
		if exp.path == "" {
			continue
		}
		f, err := os.OpenFile(exp.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Error("Failed to open export file",
				slog.String("path", exp.path),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		defer f.Close()
		eng.Register(exp.name, exp.mk(f))
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, eng, recorder, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Stop on SIGINT/SIGTERM; file analysis also ends on its own.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := eng.Run(ctx, src); err != nil {
		logger.Error("Monitoring session failed", slog.String("error", err.Error()))
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	stats := eng.GetStats()
	logger.Info("Final session statistics",
		slog.Uint64("frames_processed", stats.FramesProcessed),
		slog.Uint64("events_detected", stats.EventsDetected),
		slog.Uint64("samples_skipped", stats.SamplesSkipped),
		slog.Uint64("buffer_overruns", stats.Buffer.OverrunSamples),
		slog.Uint64("events_dropped", stats.Dispatcher.EventsDropped),
	)

	logger.Info("Service stopped")
}

// engineConfig maps the loaded YAML configuration onto the pipeline config.
func engineConfig(cfg *config.Config) engine.Config {
	bands := make([]detect.BandConfig, 0, len(cfg.Bands))
	for _, b := range cfg.Bands {
		bands = append(bands, detect.BandConfig{
			Name:              b.Name,
			MinHz:             b.MinHz,
			MaxHz:             b.MaxHz,
			ThresholdDB:       b.ThresholdDB,
			MinDuration:       b.MinDuration(),
			MinPeakDistanceHz: b.MinPeakDistanceHz,
			ReleaseHops:       b.ReleaseHops,
		})
	}

	rules := make([]classify.Rule, 0, len(cfg.Classification.Rules))
	for _, r := range cfg.Classification.Rules {
		rules = append(rules, classify.Rule{
			Band:    r.Band,
			MinHz:   r.MinHz,
			MaxHz:   r.MaxHz,
			Subtype: r.Subtype,
		})
	}

	return engine.Config{
		SampleRate:     cfg.Audio.SampleRate,
		FFTSize:        cfg.DSP.FFTSize,
		HopSize:        cfg.DSP.HopLength,
		Window:         dsp.WindowType(cfg.DSP.Window),
		Normalize:      cfg.DSP.Normalize,
		FilterOrder:    cfg.DSP.FilterOrder,
		MinFrequency:   cfg.DSP.MinFrequency,
		BufferCapacity: int(cfg.Audio.BufferSeconds * float64(cfg.Audio.SampleRate)),
		MaxBacklog:     time.Duration(cfg.Audio.MaxBacklogSeconds * float64(time.Second)),
		Bands:          bands,
		Rules:          rules,
		Dispatcher: dispatch.Config{
			QueueSize:       cfg.Dispatcher.QueueSize,
			ConsumerTimeout: cfg.Dispatcher.ConsumerTimeout(),
		},
	}
}

// buildSource selects offline file replay or live device capture. Offline
// analysis disables backlog shedding so the whole file is processed.
func buildSource(cfg *config.Config, filePath string, logger *slog.Logger) (engine.Source, error) {
	if filePath != "" {
		src, err := capture.NewFileSource(filePath, cfg.Audio.ChunkSize)
		if err != nil {
			return nil, err
		}

		if src.SampleRate() != cfg.Audio.SampleRate {
			return nil, fmt.Errorf("file sample rate %d does not match configured %d; adjust audio.sample_rate",
				src.SampleRate(), cfg.Audio.SampleRate)
		}

		logger.Info("Analyzing file",
			slog.String("path", filePath),
			slog.Int("sample_rate", src.SampleRate()),
			slog.Float64("duration_s", src.Duration()),
		)

		return src, nil
	}

	return capture.NewDeviceSource(cfg.Audio.SampleRate, cfg.Audio.ChunkSize, cfg.Audio.Device, logger)
}

func printDevices() {
	devices, err := capture.ListInputDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list devices: %v\n", err)
		os.Exit(1)
	}

	if len(devices) == 0 {
		fmt.Println("No input devices found")
		return
	}

	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %-40s channels=%d default_rate=%.0f\n",
			marker, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
