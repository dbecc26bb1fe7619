package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"detectmesh/internal/core/domain"
	"detectmesh/internal/core/services"
	"detectmesh/internal/infrastructure/benchmark"
	"detectmesh/internal/infrastructure/inference"
	"detectmesh/internal/infrastructure/viewer"
	"detectmesh/pkg/config"
	"detectmesh/pkg/logger"
	"detectmesh/pkg/retry"
	"detectmesh/pkg/utils"

	"go.uber.org/zap"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
	exitTerminated  = 143
)

func main() {
	os.Exit(run())
}

func run() int {
	duration := flag.Int("duration", 0, "benchmark duration in seconds (minimum 5)")
	mode := flag.String("mode", "", "dispatch mode to benchmark: local or offload")
	output := flag.String("output", "", "path of the JSON results file")
	server := flag.String("server", "http://localhost:8080", "broker base URL (health check and offload signaling)")
	room := flag.String("room", "bench", "room to use in offload mode")
	flag.Parse()

	zapLogger := logger.New("info")
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if *duration < 5 {
		fmt.Fprintln(os.Stderr, "bench: --duration must be at least 5 seconds")
		return exitFailure
	}
	if *mode != "local" && *mode != "offload" {
		fmt.Fprintln(os.Stderr, "bench: --mode must be local or offload")
		return exitFailure
	}
	if *output == "" {
		fmt.Fprintln(os.Stderr, "bench: --output is required")
		return exitFailure
	}

	cfg := config.DefaultConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := checkServer(ctx, *server); err != nil {
		log.Errorw("broker health check failed", "server", *server, "error", err)
		return exitFailure
	}

	source, err := benchmark.NewFrameSource(domain.RoomID(*room), cfg.Engine.InputSize)
	if err != nil {
		log.Errorw("failed to build frame source", "error", err)
		return exitFailure
	}
	collector := benchmark.NewCollector(*mode)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	aborted := make(chan os.Signal, 1)
	go func() {
		sig := <-sigChan
		aborted <- sig
		cancel()
	}()

	started := time.Now()
	runDuration := time.Duration(*duration) * time.Second

	switch *mode {
	case "local":
		err = runLocal(ctx, cfg, runDuration, source, collector, log)
	case "offload":
		err = runOffload(ctx, cfg, *server, domain.RoomID(*room), runDuration, source, collector, log)
	}
	elapsed := time.Since(started)

	if err != nil {
		log.Errorw("benchmark run failed", "error", err)
		return exitFailure
	}

	select {
	case sig := <-aborted:
		code := exitInterrupted
		if sig == syscall.SIGTERM {
			code = exitTerminated
		}
		if collector.SampleCount() > 0 {
			partial := benchmark.PartialPath(*output)
			if werr := benchmark.WriteReport(context.Background(), partial, collector.Report(elapsed)); werr != nil {
				log.Errorw("failed to write partial results", "path", partial, "error", werr)
			} else {
				log.Infow("partial results written", "path", partial, "frames", collector.SampleCount())
			}
		}
		return code
	default:
	}

	report := collector.Report(elapsed)
	if err := benchmark.WriteReport(ctx, *output, report); err != nil {
		log.Errorw("failed to write results", "path", *output, "error", err)
		return exitFailure
	}

	log.Infow("benchmark complete",
		"path", *output,
		"elapsed", utils.FormatDuration(elapsed),
		"mode", report.Benchmark.Mode,
		"frames", report.Benchmark.TotalFrames,
		"detection_rate_percent", report.Benchmark.DetectionRatePercent,
		"processed_fps", report.Performance.ProcessedFPS,
		"e2e_median_ms", report.Performance.E2ELatency.MedianMs,
		"e2e_p95_ms", report.Performance.E2ELatency.P95Ms,
	)
	return exitOK
}

// checkServer probes the broker's liveness endpoint, retrying briefly so a
// broker still coming up does not fail the run outright.
func checkServer(ctx context.Context, server string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	return retry.Do(ctx, retry.Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, func() error {
		resp, err := client.Get(server + "/health")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
		}
		return nil
	})
}

func runLocal(ctx context.Context, cfg *config.Config, duration time.Duration, source *benchmark.FrameSource, collector *benchmark.Collector, log *zap.SugaredLogger) error {
	detector := inference.NewReferenceDetector(cfg.Engine.InputSize)
	if _, err := detector.Load(ctx); err != nil {
		return err
	}

	post := services.NewInferenceService(cfg.Engine.ScoreThreshold)
	post.IOUThreshold = cfg.Engine.IOUThreshold
	post.InputSize = float64(cfg.Engine.InputSize)

	runner := &benchmark.LocalRunner{
		Detector:  detector,
		Post:      post,
		InputSize: cfg.Engine.InputSize,
		Interval:  time.Duration(cfg.Engine.MinFrameIntervalMs) * time.Millisecond,
		Logger:    log,
	}
	return runner.Run(ctx, duration, source, collector)
}

func runOffload(ctx context.Context, cfg *config.Config, server string, room domain.RoomID, duration time.Duration, source *benchmark.FrameSource, collector *benchmark.Collector, log *zap.SugaredLogger) error {
	wsURL, err := signalingURL(server)
	if err != nil {
		return err
	}

	signalClient, err := viewer.DialSignal(ctx, wsURL, log)
	if err != nil {
		return err
	}
	defer signalClient.Close()

	runner := &benchmark.OffloadRunner{
		Signal:   signalClient,
		Room:     room,
		Interval: time.Duration(cfg.Engine.MinFrameIntervalMs) * time.Millisecond,
		Timeout:  cfg.Viewer.OffloadTimeout,
		Logger:   log,
	}
	return runner.Run(ctx, duration, source, collector)
}

// signalingURL derives the broker's websocket endpoint from its HTTP base
// URL: http becomes ws, https becomes wss, path becomes /ws.
func signalingURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}
