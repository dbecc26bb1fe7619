package viewer

import (
	"context"
	"encoding/json"
	"time"

	"detectmesh/internal/core/domain"
	"detectmesh/internal/core/ports"
	"detectmesh/internal/core/services"
	"detectmesh/pkg/circuitbreaker"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config carries the orchestrator's per-session settings, resolved from
// pkg/config by the caller.
type Config struct {
	Room           domain.RoomID
	Mode           domain.DispatchMode
	AutoMode       bool
	OffloadTimeout time.Duration
	InputSize      int
	ICEServers     []webrtc.ICEServer
	PortRange      struct{ Min, Max uint16 }
}

// Orchestrator owns the viewer side of one room's session: the control
// connection, the peer connection and its two data channels, the
// latest-only frame pipeline, dispatch, and telemetry. All session state is
// mutated from a single event loop (run); callbacks from pion and the
// signaling read pump only post events into it, which is what makes the
// pending-slot/in-flight pair safe without locks.
type Orchestrator struct {
	cfg    Config
	signal *SignalClient
	logger *zap.SugaredLogger

	sm *StateMachine

	detector  ports.DetectorLoader
	post      *services.InferenceService
	telemetry *services.TelemetryService
	advisor   *services.DispatchModeService
	emitter   TelemetryEmitter

	// offloadBreaker opens after repeated offload timeouts so a dead or
	// unreachable engine degrades the session to local inference instead of
	// paying the full timeout on every frame.
	offloadBreaker *circuitbreaker.CircuitBreaker

	pc        *webrtc.PeerConnection
	resultsDC *webrtc.DataChannel
	preview   previewStats

	// Latest-only pipeline state, owned by the event loop.
	pending  *domain.FrameRequest
	inFlight bool

	// Offload correlation, owned by the event loop.
	awaitedFrameID string
	awaitedReq     domain.FrameRequest
	offloadTimer   *time.Timer

	remoteSet bool
	queuedICE []webrtc.ICECandidateInit
	detecting bool

	processedFrames      uint64
	framesWithDetections uint64

	frames          chan domain.FrameRequest
	dispatchDone    chan dispatchOutcome
	encoded         chan encodedFrame
	offloadTimeouts chan string
	dcOpen          chan struct{}
	pcFailed        chan struct{}
	stop            chan struct{}
	stopped         chan struct{}
}

// NewOrchestrator builds the viewer orchestrator for one room. The detector
// is only invoked in local mode; offload mode forwards frames to the engine
// behind the broker.
func NewOrchestrator(
	cfg Config,
	signal *SignalClient,
	detector ports.DetectorLoader,
	post *services.InferenceService,
	emitter TelemetryEmitter,
	logger *zap.SugaredLogger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		signal:    signal,
		logger:    logger,
		sm:        NewStateMachine(),
		detector:  detector,
		post:      post,
		telemetry: services.NewTelemetryService(),
		advisor:   services.NewDispatchModeService(),
		emitter:   emitter,
		offloadBreaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold:    3,
			SuccessThreshold:    2,
			Timeout:             10 * time.Second,
			MaxRequestsHalfOpen: 1,
		}),
		frames:          make(chan domain.FrameRequest, 1),
		dispatchDone:    make(chan dispatchOutcome, 1),
		encoded:         make(chan encodedFrame, 1),
		offloadTimeouts: make(chan string, 4),
		dcOpen:          make(chan struct{}, 2),
		pcFailed:        make(chan struct{}, 1),
		stop:            make(chan struct{}),
		stopped:         make(chan struct{}),
	}
}

// Run joins the room and drives the session until ctx is cancelled or the
// control connection drops. It blocks; callers run it in its own goroutine.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.stopped)

	o.sm.Transition(StateConnecting)
	if err := o.signal.Send("join-room", map[string]interface{}{
		"room": o.cfg.Room,
		"type": domain.WireTypeViewer,
	}); err != nil {
		o.sm.Transition(StateClosed)
		return err
	}
	// The broker does not acknowledge join-room explicitly; the join is
	// in effect as soon as the write succeeds.
	o.sm.Transition(StateWaitingForPeer)

	statsTicker := time.NewTicker(time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return ctx.Err()

		case <-o.stop:
			o.shutdown()
			return nil

		case env, ok := <-o.signal.Inbox():
			if !ok {
				o.shutdown()
				return domain.ErrPeerNotFound
			}
			o.handleSignal(ctx, env)

		case req := <-o.frames:
			o.handleFrame(ctx, req)

		case out := <-o.dispatchDone:
			if out.err != nil {
				o.logger.Warnw("local dispatch failed", "room", o.cfg.Room, "frame_id", out.result.FrameID, "error", out.err)
			}
			o.completeDispatch(ctx, out.result)

		case enc := <-o.encoded:
			o.sendOffload(ctx, enc)

		case frameID := <-o.offloadTimeouts:
			o.handleOffloadTimeout(ctx, frameID)

		case <-o.dcOpen:
			if o.sm.Current() == StateNegotiating {
				o.sm.Transition(StateConnected)
				o.logger.Infow("peer-to-peer transport established", "room", o.cfg.Room)
				if o.detecting {
					o.sm.Transition(StateDetecting)
				}
			}

		case <-o.pcFailed:
			o.logger.Warnw("peer connection failed, returning to waiting-for-peer", "room", o.cfg.Room)
			o.teardownSession(ctx)

		case <-statsTicker.C:
			o.sampleStats(ctx)
		}
	}
}

// StartDetection toggles frame consumption on (Connected→Detecting).
func (o *Orchestrator) StartDetection() {
	o.detecting = true
}

// StopDetection toggles frame consumption off.
func (o *Orchestrator) StopDetection() {
	o.detecting = false
}

// Close ends the session from outside the loop.
func (o *Orchestrator) Close() {
	select {
	case <-o.stop:
	default:
		close(o.stop)
	}
	<-o.stopped
}

// InjectFrame hands a frame to the event loop with latest-only semantics at
// the handoff: if the loop has not yet drained the previous frame, it is
// replaced. The loop applies the same policy again against its pending
// slot, so total queued depth never exceeds one pending plus one in-flight.
func (o *Orchestrator) InjectFrame(req domain.FrameRequest) {
	for {
		select {
		case o.frames <- req:
			return
		default:
		}
		select {
		case <-o.frames:
		default:
		}
	}
}

// --- signaling events ---

func (o *Orchestrator) handleSignal(ctx context.Context, env Envelope) {
	switch env.Event {
	case "peer-joined":
		var ev struct {
			PeerID domain.PeerID `json:"peerId"`
			Type   string        `json:"type"`
		}
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.Type != domain.WireTypeCapture {
			return
		}
		o.logger.Infow("capture peer joined", "room", o.cfg.Room, "peer_id", ev.PeerID)
		o.startSession(ctx)

	case "peer-left":
		var ev struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(env.Data, &ev); err != nil || ev.Type != domain.WireTypeCapture {
			return
		}
		o.logger.Infow("capture peer left", "room", o.cfg.Room)
		o.teardownSession(ctx)

	case "answer":
		o.handleAnswer(env.Data)

	case "ice-candidate":
		o.handleRemoteCandidate(env.Data)

	case "detection-result":
		var result domain.DetectionResult
		if err := json.Unmarshal(env.Data, &result); err != nil {
			o.logger.Warnw("malformed detection-result, dropping", "error", err)
			return
		}
		if result.FrameID != o.awaitedFrameID {
			// Late reply for an abandoned correlation: discard.
			return
		}
		o.clearAwait()
		o.recordOffloadOutcome(nil)
		o.completeDispatch(ctx, result)

	case "processing-error":
		var ev struct {
			Error string `json:"error"`
		}
		json.Unmarshal(env.Data, &ev)
		o.logger.Warnw("engine reported processing error", "room", o.cfg.Room, "error", ev.Error)
		if o.awaitedFrameID != "" {
			req := o.awaitedReq
			o.clearAwait()
			o.recordOffloadOutcome(domain.ErrInferenceFailed)
			o.completeDispatch(ctx, emptyResult(req))
		}

	case "model-initialization-result":
		o.logger.Infow("model initialization result", "data", string(env.Data))
	}
}

// --- WebRTC session lifecycle ---

// startSession creates the peer connection, both data channels, and the
// offer. The viewer initiates uniformly; the capture peer only answers.
func (o *Orchestrator) startSession(ctx context.Context) {
	if err := o.sm.Transition(StateOffering); err != nil {
		o.logger.Debugw("ignoring peer-joined in current state", "state", o.sm.Current())
		return
	}

	pc, err := o.createPeerConnection()
	if err != nil {
		o.logger.Errorw("failed to create peer connection", "error", err)
		o.sm.Transition(StateWaitingForPeer)
		return
	}
	o.pc = pc
	o.remoteSet = false
	o.queuedICE = nil

	framesDC, err := pc.CreateDataChannel("frames", nil)
	if err != nil {
		o.logger.Errorw("failed to create frames channel", "error", err)
		o.abortSession()
		return
	}
	framesDC.OnMessage(func(msg webrtc.DataChannelMessage) {
		var req domain.FrameRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			o.logger.Warnw("malformed frame on data channel, dropping", "error", err)
			return
		}
		if req.Room == "" {
			req.Room = o.cfg.Room
		}
		o.InjectFrame(req)
	})

	resultsDC, err := pc.CreateDataChannel("detections", nil)
	if err != nil {
		o.logger.Errorw("failed to create detections channel", "error", err)
		o.abortSession()
		return
	}
	resultsDC.OnOpen(func() {
		select {
		case o.dcOpen <- struct{}{}:
		default:
		}
	})
	o.resultsDC = resultsDC

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := o.signal.Send("ice-candidate", map[string]interface{}{
			"room":      o.cfg.Room,
			"candidate": c.ToJSON(),
		}); err != nil {
			o.logger.Warnw("failed to send ice candidate", "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		o.logger.Infow("peer connection state changed", "room", o.cfg.Room, "state", state)
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateDisconnected {
			select {
			case o.pcFailed <- struct{}{}:
			default:
			}
		}
	})

	pc.OnTrack(o.handlePreviewTrack)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		o.logger.Errorw("failed to create offer", "error", err)
		o.abortSession()
		return
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		o.logger.Errorw("failed to set local description", "error", err)
		o.abortSession()
		return
	}

	if err := o.signal.Send("offer", map[string]interface{}{
		"room":  o.cfg.Room,
		"offer": offer,
	}); err != nil {
		o.logger.Errorw("failed to send offer", "error", err)
		o.abortSession()
		return
	}
	o.sm.Transition(StateNegotiating)
}

func (o *Orchestrator) createPeerConnection() (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	if o.cfg.PortRange.Min > 0 && o.cfg.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(o.cfg.PortRange.Min, o.cfg.PortRange.Max); err != nil {
			return nil, err
		}
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   o.cfg.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
}

func (o *Orchestrator) handleAnswer(data json.RawMessage) {
	if o.pc == nil {
		return
	}
	var ev struct {
		Answer webrtc.SessionDescription `json:"answer"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		o.logger.Warnw("malformed answer, dropping", "error", err)
		return
	}
	if err := o.pc.SetRemoteDescription(ev.Answer); err != nil {
		o.logger.Errorw("failed to set remote description", "error", err)
		return
	}
	o.remoteSet = true
	for _, c := range o.queuedICE {
		if err := o.pc.AddICECandidate(c); err != nil {
			o.logger.Warnw("failed to add queued ice candidate", "error", err)
		}
	}
	o.queuedICE = nil
}

func (o *Orchestrator) handleRemoteCandidate(data json.RawMessage) {
	if o.pc == nil {
		return
	}
	var ev struct {
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		o.logger.Warnw("malformed ice-candidate, dropping", "error", err)
		return
	}
	if !o.remoteSet {
		o.queuedICE = append(o.queuedICE, ev.Candidate)
		return
	}
	if err := o.pc.AddICECandidate(ev.Candidate); err != nil {
		o.logger.Warnw("failed to add ice candidate", "error", err)
	}
}

// teardownSession releases the peer connection and returns to
// Waiting-for-peer. A pending offload await is resolved immediately with an
// empty result; peer-left terminates any in-flight offload await.
func (o *Orchestrator) teardownSession(ctx context.Context) {
	if o.awaitedFrameID != "" {
		req := o.awaitedReq
		o.clearAwait()
		o.completeDispatch(ctx, emptyResult(req))
	}
	o.pending = nil
	o.inFlight = false
	o.abortSession()
	switch o.sm.Current() {
	case StateConnected, StateDetecting, StateOffering, StateNegotiating:
		o.sm.Transition(StateWaitingForPeer)
	}
}

func (o *Orchestrator) abortSession() {
	if o.pc != nil {
		o.pc.Close()
		o.pc = nil
	}
	o.resultsDC = nil
	o.remoteSet = false
	o.queuedICE = nil
	if o.sm.Current() == StateOffering || o.sm.Current() == StateNegotiating {
		o.sm.Transition(StateWaitingForPeer)
	}
}

// shutdown is the terminal Closed transition: releases the peer connection,
// clears buffers, cancels awaits.
func (o *Orchestrator) shutdown() {
	o.clearAwait()
	o.pending = nil
	o.inFlight = false
	if o.pc != nil {
		o.pc.Close()
		o.pc = nil
	}
	o.signal.Close()
	o.sm.Transition(StateClosed)
}

// --- frame pipeline (replace-with-newest) ---

func (o *Orchestrator) handleFrame(ctx context.Context, req domain.FrameRequest) {
	// Apply the StartDetection/StopDetection toggle before deciding whether
	// this frame is consumed.
	switch {
	case o.detecting && o.sm.Current() == StateConnected:
		o.sm.Transition(StateDetecting)
	case !o.detecting && o.sm.Current() == StateDetecting:
		o.sm.Transition(StateConnected)
	}
	if o.sm.Current() != StateDetecting {
		return
	}
	if o.inFlight {
		// Overwrite whatever was pending: old frames are unconditionally
		// discarded in favor of the newest.
		o.pending = &req
		return
	}
	o.inFlight = true
	o.dispatch(ctx, req)
}

func (o *Orchestrator) completeDispatch(ctx context.Context, result domain.DetectionResult) {
	o.processedFrames++
	if len(result.Detections) > 0 {
		o.framesWithDetections++
	}

	o.emitResult(ctx, result)
	o.sendToCapture(result)

	if o.pending != nil {
		next := *o.pending
		o.pending = nil
		o.dispatch(ctx, next)
		return
	}
	o.inFlight = false
}

func (o *Orchestrator) dispatch(ctx context.Context, req domain.FrameRequest) {
	mode := o.currentMode()
	if mode == domain.DispatchOffload {
		go encodeForOffload(req, o.cfg.InputSize, o.encoded)
		return
	}
	go runLocal(ctx, req, o.detector, o.post, o.cfg.InputSize, o.dispatchDone)
}

func (o *Orchestrator) currentMode() domain.DispatchMode {
	mode := o.cfg.Mode
	if o.cfg.AutoMode {
		mode = o.advisor.Current()
	}
	if mode == domain.DispatchOffload && !o.offloadBreaker.Allow() {
		return domain.DispatchLocal
	}
	return mode
}

// --- offload path ---

// sendOffload forwards an encoded frame to the engine and arms the offload
// timeout. The await is registered before the write so a fast engine reply
// cannot race past its own correlation.
func (o *Orchestrator) sendOffload(ctx context.Context, enc encodedFrame) {
	if enc.err != nil {
		o.logger.Warnw("offload encode failed, synthesizing empty result", "frame_id", enc.req.FrameID, "error", enc.err)
		o.completeDispatch(ctx, emptyResult(enc.req))
		return
	}

	o.awaitedFrameID = enc.req.FrameID
	o.awaitedReq = enc.req
	frameID := enc.req.FrameID
	o.offloadTimer = time.AfterFunc(o.cfg.OffloadTimeout, func() {
		select {
		case o.offloadTimeouts <- frameID:
		default:
		}
	})

	if err := o.signal.Send("process-frame", enc.req); err != nil {
		o.logger.Warnw("failed to send process-frame", "frame_id", enc.req.FrameID, "error", err)
		o.clearAwait()
		o.recordOffloadOutcome(err)
		o.completeDispatch(ctx, emptyResult(enc.req))
	}
}

func (o *Orchestrator) handleOffloadTimeout(ctx context.Context, frameID string) {
	if frameID != o.awaitedFrameID {
		return
	}
	o.logger.Warnw("offload inference timed out, synthesizing empty result", "room", o.cfg.Room, "frame_id", frameID)
	req := o.awaitedReq
	o.clearAwait()
	o.recordOffloadOutcome(domain.ErrInferenceFailed)
	o.completeDispatch(ctx, emptyResult(req))
}

func (o *Orchestrator) clearAwait() {
	if o.offloadTimer != nil {
		o.offloadTimer.Stop()
		o.offloadTimer = nil
	}
	o.awaitedFrameID = ""
}

func (o *Orchestrator) recordOffloadOutcome(err error) {
	if err != nil {
		o.offloadBreaker.RecordFailure()
		return
	}
	o.offloadBreaker.RecordSuccess()
}

// --- return path + telemetry ---

// sendToCapture echoes the result to the capture peer over the reverse data
// channel if it is open. A closed channel skips the send; never retried,
// never buffered.
func (o *Orchestrator) sendToCapture(result domain.DetectionResult) {
	if o.resultsDC == nil || o.resultsDC.ReadyState() != webrtc.DataChannelStateOpen {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := o.resultsDC.Send(payload); err != nil {
		o.logger.Warnw("failed to send detection result to capture peer", "room", o.cfg.Room, "error", err)
	}
}

func (o *Orchestrator) emitResult(ctx context.Context, result domain.DetectionResult) {
	now := time.Now()
	breakdown := services.Latency(result, now)
	o.telemetry.RecordLatency(breakdown.EndToEndMs)
	median, p95 := o.telemetry.Percentiles()
	uplink, downlink := o.telemetry.BandwidthKbps()

	snap := TelemetrySnapshot{
		Room:                 o.cfg.Room,
		Mode:                 string(o.currentMode()),
		EndToEndMs:           breakdown.EndToEndMs,
		ServerMs:             breakdown.ServerMs,
		NetworkMs:            breakdown.NetworkMs,
		MedianMs:             median,
		P95Ms:                p95,
		UplinkKbps:           uplink,
		DownlinkKbps:         downlink,
		ProcessedFrames:      o.processedFrames,
		FramesWithDetections: o.framesWithDetections,
		DetectionCount:       len(result.Detections),
		At:                   now,
	}
	if o.emitter != nil {
		if err := o.emitter.Emit(ctx, snap); err != nil {
			o.logger.Debugw("telemetry emit failed", "error", err)
		}
	}
}

// sampleStats takes a transport snapshot from the peer connection's stats
// report into the 10-entry bandwidth ring, and in auto mode feeds the
// advisor the current trend.
func (o *Orchestrator) sampleStats(ctx context.Context) {
	if o.pc == nil {
		return
	}

	var bytesSent, bytesReceived uint64
	report := o.pc.GetStats()
	for _, s := range report {
		if ts, ok := s.(webrtc.TransportStats); ok {
			bytesSent += ts.BytesSent
			bytesReceived += ts.BytesReceived
		}
	}

	o.telemetry.RecordBandwidthSample(domain.BandwidthSample{
		At:            time.Now(),
		BytesSent:     bytesSent,
		BytesReceived: bytesReceived,
	})

	if o.cfg.AutoMode {
		median, _ := o.telemetry.Percentiles()
		uplink, _ := o.telemetry.BandwidthKbps()
		o.advisor.Observe(median, uplink, time.Now())
	}
}

// Telemetry exposes the session's telemetry window so callers can read
// aggregates after a run.
func (o *Orchestrator) Telemetry() *services.TelemetryService {
	return o.telemetry
}

// Counters returns total processed frames and how many carried detections.
func (o *Orchestrator) Counters() (processed, withDetections uint64) {
	return o.processedFrames, o.framesWithDetections
}

// State reports the current state-machine node, mainly for tests and the
// UI collaborator.
func (o *Orchestrator) State() State {
	return o.sm.Current()
}
