package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"detectmesh/internal/core/domain"
	"detectmesh/internal/core/services"
	"detectmesh/internal/infrastructure/inference"
	"detectmesh/internal/infrastructure/viewer"
	"detectmesh/pkg/config"
	"detectmesh/pkg/logger"
	"detectmesh/pkg/tracing"
	"detectmesh/pkg/utils"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

func main() {
	brokerURL := flag.String("broker", "ws://localhost:8080/ws", "signaling broker websocket URL")
	room := flag.String("room", "", "room to join (generated when omitted)")
	mode := flag.String("mode", "", "dispatch mode: local, offload or auto (defaults to config)")
	flag.Parse()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/root/configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "detectmesh-viewer",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Warnw("tracing init failed, continuing without tracing", "error", err)
	} else {
		defer tp.Shutdown(context.Background())
	}

	if *room == "" {
		*room = utils.GenerateRoomID()
		log.Infow("generated room id", "room", *room)
	}

	dispatchMode := cfg.Viewer.DefaultDispatchMode
	if *mode != "" {
		dispatchMode = *mode
	}
	orchCfg, err := orchestratorConfig(cfg, domain.RoomID(*room), dispatchMode)
	if err != nil {
		log.Fatalw("invalid viewer configuration", "error", err)
	}

	detector := inference.NewReferenceDetector(cfg.Engine.InputSize)
	if _, lerr := detector.Load(context.Background()); lerr != nil {
		log.Fatalw("detector load failed", "error", lerr)
	}

	inferenceService := services.NewInferenceService(cfg.Engine.ScoreThreshold)
	inferenceService.IOUThreshold = cfg.Engine.IOUThreshold
	inferenceService.InputSize = float64(cfg.Engine.InputSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalClient, err := viewer.DialSignal(ctx, *brokerURL, log)
	if err != nil {
		log.Fatalw("failed to dial signaling broker", "url", *brokerURL, "error", err)
	}

	emitter := viewer.NewBatchedEmitter(logEmitter(log), 10, time.Second)
	defer emitter.Stop()

	orch := viewer.NewOrchestrator(orchCfg, signalClient, detector, inferenceService, emitter, log)
	orch.StartDetection()

	runErr := make(chan error, 1)
	go func() { runErr <- orch.Run(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			log.Fatalw("viewer session ended", "error", err)
		}
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
		orch.Close()
		<-runErr
	}

	log.Info("viewer stopped")
}

// orchestratorConfig folds the YAML config and CLI overrides into the
// orchestrator's session settings.
func orchestratorConfig(cfg *config.Config, room domain.RoomID, mode string) (viewer.Config, error) {
	oc := viewer.Config{
		Room:           room,
		OffloadTimeout: cfg.Viewer.OffloadTimeout,
		InputSize:      cfg.Engine.InputSize,
	}

	switch mode {
	case "local":
		oc.Mode = domain.DispatchLocal
	case "offload":
		oc.Mode = domain.DispatchOffload
	case "auto":
		oc.Mode = domain.DispatchLocal
		oc.AutoMode = true
	default:
		return viewer.Config{}, domain.ErrInvalidDispatchMode
	}

	for _, ice := range cfg.WebRTC.ICEServers {
		server := webrtc.ICEServer{URLs: ice.URLs}
		if ice.Username != "" {
			server.Username = ice.Username
			server.Credential = ice.Credential
		}
		oc.ICEServers = append(oc.ICEServers, server)
	}
	oc.PortRange.Min = cfg.WebRTC.PortRange.Min
	oc.PortRange.Max = cfg.WebRTC.PortRange.Max

	return oc, nil
}

// logEmitter is the headless UI collaborator: each telemetry snapshot goes
// to the structured log instead of a dashboard.
func logEmitter(log *zap.SugaredLogger) viewer.TelemetryEmitter {
	return viewer.EmitterFunc(func(_ context.Context, snap viewer.TelemetrySnapshot) error {
		log.Infow("telemetry",
			"room", snap.Room,
			"mode", snap.Mode,
			"e2e_ms", snap.EndToEndMs,
			"median_ms", snap.MedianMs,
			"p95_ms", snap.P95Ms,
			"uplink_kbps", snap.UplinkKbps,
			"downlink_kbps", snap.DownlinkKbps,
			"processed", snap.ProcessedFrames,
			"with_detections", snap.FramesWithDetections,
		)
		return nil
	})
}
