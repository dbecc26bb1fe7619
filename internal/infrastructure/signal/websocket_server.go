package signal

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"detectmesh/internal/core/domain"
	"detectmesh/internal/core/ports"
	"detectmesh/internal/core/services"
	"detectmesh/internal/infrastructure/monitoring"
	"detectmesh/pkg/config"
	"detectmesh/pkg/tracing"
	"detectmesh/pkg/validation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin allow-list, if any, is enforced by AllowedOrigins at the reverse proxy
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// inbound is the envelope every client-to-broker message arrives in:
// a name identifying the message and an opaque, per-message data object.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// outbound is the same envelope shape used for broker-to-client messages.
type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// wsTransport adapts a single gorilla/websocket connection to
// ports.Transport, serializing concurrent writers (the connection's own
// read loop sends pings; the dispatcher goroutine sends detection results)
// behind one mutex.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (t *wsTransport) Send(v interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// connEntry is a connection's membership state, updated on join-room and
// consulted on relay/disconnect.
type connEntry struct {
	transport *wsTransport
	role      domain.Role
	room      domain.RoomID
	hasRoom   bool

	msgLimiter *rate.Limiter
}

// Server implements the signaling wire protocol: room join/leave,
// SDP/ICE relay, Frame Request routing into the Inference Engine, and
// Detection Result/processing-error delivery back to the viewer/capture
// peer. It also implements ports.FrameSink so the Dispatcher can reach
// whichever viewer is currently registered for a room.
type Server struct {
	broker      *services.BrokerService
	registry    ports.RoomRegistry
	auth        services.AuthService
	requireAuth bool

	dispatcher interface {
		Submit(room domain.RoomID, originID domain.PeerID, req domain.FrameRequest) bool
	}
	detector ports.DetectorLoader

	peers sync.Map // domain.PeerID -> *connEntry

	pingInterval time.Duration
	pongTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	wsConnLimiter *connRateLimiterStore
	msgRate       rate.Limit
	msgBurst      int
	rateLimiting  bool

	metrics *monitoring.PrometheusCollector

	logger *zap.SugaredLogger
}

// SetMetrics wires Prometheus counters/gauges for peer membership and
// detection throughput. Optional: a nil collector (the default) disables
// recording without changing any other behavior.
func (s *Server) SetMetrics(m *monitoring.PrometheusCollector) {
	s.metrics = m
}

// NewServer builds a signaling server bound to the given room registry and
// broker service. SetDispatcher and SetDetector are called once the
// Dispatcher exists, since the Dispatcher itself needs this Server as its
// FrameSink; see cmd/signal/main.go for the two-phase wiring this implies.
func NewServer(broker *services.BrokerService, registry ports.RoomRegistry, auth services.AuthService, cfg *config.Config, logger *zap.SugaredLogger) *Server {
	s := &Server{
		broker:       broker,
		registry:     registry,
		auth:         auth,
		requireAuth:  cfg.Auth.RequireToken,
		pingInterval: cfg.Broker.PingInterval,
		pongTimeout:  cfg.Broker.PongTimeout,
		readTimeout:  cfg.Broker.PongTimeout,
		writeTimeout: 10 * time.Second,
		rateLimiting: cfg.RateLimiting.Enabled,
		logger:       logger,
	}
	if s.rateLimiting {
		s.wsConnLimiter = newConnRateLimiterStore(
			rate.Every(time.Minute/time.Duration(maxInt(cfg.RateLimiting.WebSocket.ConnectionsPerMinute, 1))),
			cfg.RateLimiting.WebSocket.Burst,
		)
		s.msgRate = rate.Limit(cfg.RateLimiting.WebSocket.MessagesPerSecond)
		s.msgBurst = cfg.RateLimiting.WebSocket.Burst
	}
	return s
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// SetDispatcher wires the inference dispatcher once constructed.
func (s *Server) SetDispatcher(d interface {
	Submit(room domain.RoomID, originID domain.PeerID, req domain.FrameRequest) bool
}) {
	s.dispatcher = d
}

// SetDetector wires the detector loader used by initialize-server-model.
func (s *Server) SetDetector(d ports.DetectorLoader) {
	s.detector = d
}

// --- ports.FrameSink ---

// SendDetectionResult routes a completed Detection Result to the viewer
// currently registered for room. If no viewer
// is present the result is dropped silently; there is no queue to hold it
// for a viewer that has not joined yet.
func (s *Server) SendDetectionResult(ctx context.Context, room domain.RoomID, result domain.DetectionResult) error {
	viewer, ok := s.broker.ViewerFor(ctx, room)
	if !ok {
		return nil
	}
	if s.metrics != nil {
		s.metrics.RecordDetectionResult(room, result)
	}
	return s.send(viewer.ID, "detection-result", result)
}

// SendProcessingError delivers a processing-error notification to the
// connection that originated the failing Frame Request.
func (s *Server) SendProcessingError(ctx context.Context, peerID domain.PeerID, message string) error {
	return s.send(peerID, "processing-error", map[string]string{"error": message})
}

func (s *Server) send(peerID domain.PeerID, event string, data interface{}) error {
	v, ok := s.peers.Load(peerID)
	if !ok {
		return nil
	}
	entry := v.(*connEntry)
	return entry.transport.Send(outbound{Event: event, Data: data})
}

// --- HTTP upgrade + connection lifecycle ---

// HandleWebSocket upgrades the request and runs the connection's lifetime:
// read loop, ping ticker, and message dispatch. Connection identifiers are
// server-assigned via uuid, independent of any later join-room role.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.requireAuth {
		if !s.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	if s.rateLimiting {
		host, _, _ := net.SplitHostPort(r.RemoteAddr)
		if host == "" {
			host = r.RemoteAddr
		}
		if !s.wsConnLimiter.getLimiter(host).Allow() {
			http.Error(w, "too many connections", http.StatusTooManyRequests)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	peerID := domain.PeerID(uuid.NewString())
	entry := &connEntry{transport: &wsTransport{conn: conn}}
	if s.rateLimiting {
		entry.msgLimiter = rate.NewLimiter(s.msgRate, s.msgBurst)
	}
	s.peers.Store(peerID, entry)

	s.logger.Infow("peer connected", "peer_id", peerID)

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	s.serve(peerID, entry)
}

func (s *Server) serve(peerID domain.PeerID, entry *connEntry) {
	conn := entry.transport.conn

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	msgCh := make(chan inbound, 16)
	errCh := make(chan error, 1)

	go func() {
		for {
			var msg inbound
			if err := conn.ReadJSON(&msg); err != nil {
				errCh <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			msgCh <- msg
		}
	}()

loop:
	for {
		select {
		case msg := <-msgCh:
			if entry.msgLimiter != nil && !entry.msgLimiter.Allow() {
				continue
			}
			s.handleMessage(context.Background(), peerID, entry, msg)

		case <-pingTicker.C:
			entry.transport.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			entry.transport.mu.Unlock()
			if err != nil {
				break loop
			}

		case <-errCh:
			break loop
		}
	}

	s.cleanup(peerID, entry)
}

func (s *Server) cleanup(peerID domain.PeerID, entry *connEntry) {
	s.peers.Delete(peerID)
	entry.transport.Close()

	if !entry.hasRoom {
		return
	}
	if s.metrics != nil {
		s.metrics.RecordPeerLeft()
	}
	lr := s.broker.Leave(context.Background(), peerID, entry.role)
	if lr.Left && lr.Remaining != nil {
		s.send(lr.Remaining.ID, "peer-left", peerEvent{PeerID: peerID, Type: domain.WireRole(entry.role)})
	}
	s.logger.Infow("peer disconnected", "peer_id", peerID, "room", entry.room)
}

func (s *Server) authorized(r *http.Request) bool {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
			token = h[7:]
		}
	}
	if token == "" {
		return false
	}
	_, err := s.auth.ValidateToken(token)
	return err == nil
}

// --- message dispatch ---

func (s *Server) handleMessage(ctx context.Context, peerID domain.PeerID, entry *connEntry, msg inbound) {
	switch msg.Event {
	case "join-room":
		s.handleJoinRoom(ctx, peerID, entry, msg.Data)
	case "offer":
		s.relay(ctx, peerID, entry, "offer", msg.Data)
	case "answer":
		s.relay(ctx, peerID, entry, "answer", msg.Data)
	case "ice-candidate":
		s.relay(ctx, peerID, entry, "ice-candidate", msg.Data)
	case "process-frame":
		s.handleProcessFrame(ctx, peerID, msg.Data)
	case "initialize-server-model":
		s.handleInitializeModel(ctx, peerID, msg.Data)
	default:
		s.logger.Warnw("unknown message type, dropping", "peer_id", peerID, "event", msg.Event)
	}
}

type joinRoomData struct {
	Room domain.RoomID `json:"room"`
	Type string        `json:"type"`
}

type peerEvent struct {
	PeerID domain.PeerID `json:"peerId"`
	Type   string        `json:"type"`
}

// handleJoinRoom implements join-room: a second join to an already-occupied
// role evicts the incumbent rather than being rejected. A newcomer that
// finds the opposite slot already filled learns about it immediately,
// before the broadcast that informs both peers of the newcomer.
func (s *Server) handleJoinRoom(ctx context.Context, peerID domain.PeerID, entry *connEntry, data json.RawMessage) {
	var req joinRoomData
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Warnw("malformed join-room payload, dropping", "peer_id", peerID, "error", err)
		return
	}
	if err := validation.ValidateRoomID(string(req.Room)); err != nil {
		s.logger.Warnw("invalid room id, dropping join-room", "peer_id", peerID, "error", err)
		return
	}
	role, ok := domain.RoleFromWire(req.Type)
	if !ok {
		s.logger.Warnw("invalid peer type, dropping join-room", "peer_id", peerID, "type", req.Type)
		return
	}

	ctx, span := tracing.TraceWebRTC(ctx, "join-room", string(peerID), string(req.Room))
	defer span.End()

	jr, err := s.broker.Join(ctx, req.Room, peerID, role)
	if err != nil {
		s.logger.Warnw("join-room failed", "peer_id", peerID, "room", req.Room, "error", err)
		return
	}

	entry.room = req.Room
	entry.role = role
	entry.hasRoom = true
	if s.metrics != nil {
		s.metrics.RecordPeerJoined()
	}

	if jr.Evicted != nil {
		if jr.Other != nil {
			s.send(jr.Other.ID, "peer-left", peerEvent{PeerID: jr.Evicted.ID, Type: domain.WireRole(role)})
		}
		if v, ok := s.peers.Load(jr.Evicted.ID); ok {
			v.(*connEntry).transport.Close()
		}
	}

	if jr.Other != nil {
		s.send(peerID, "peer-joined", peerEvent{PeerID: jr.Other.ID, Type: domain.WireRole(domain.Opposite(role))})
		s.send(jr.Other.ID, "peer-joined", peerEvent{PeerID: peerID, Type: domain.WireRole(role)})
	}
}

// relay forwards offer/answer/ice-candidate payloads verbatim to the
// opposite-role occupant of the sender's room, attaching a from field. The
// broker looks only at the room field to find the target; it never
// interprets SDP or candidate contents.
func (s *Server) relay(ctx context.Context, peerID domain.PeerID, entry *connEntry, event string, data json.RawMessage) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		s.logger.Warnw("malformed relay payload, dropping", "peer_id", peerID, "event", event, "error", err)
		return
	}

	var room domain.RoomID
	if raw, ok := fields["room"]; ok {
		json.Unmarshal(raw, &room)
	}
	if room == "" {
		room = entry.room
	}
	if !entry.hasRoom || room != entry.room {
		s.logger.Warnw("relay for unknown room, dropping", "peer_id", peerID, "event", event)
		return
	}

	_, span := tracing.TraceWebRTC(ctx, event, string(peerID), string(room))
	defer span.End()

	other, ok := s.broker.OtherPeer(ctx, room, peerID, entry.role)
	if !ok {
		return
	}

	fromJSON, _ := json.Marshal(peerID)
	fields["from"] = fromJSON
	s.send(other.ID, event, fields)
}

// handleProcessFrame submits an offloaded Frame Request to the Inference
// Engine's dispatcher. Acceptance, throttling, and failure delivery are all
// handled by the Dispatcher; a throttled frame produces no reply here.
// Rejection is silent.
func (s *Server) handleProcessFrame(ctx context.Context, peerID domain.PeerID, data json.RawMessage) {
	var req domain.FrameRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Warnw("malformed process-frame payload, dropping", "peer_id", peerID, "error", err)
		return
	}
	if err := validation.ValidateRoomID(string(req.Room)); err != nil {
		return
	}
	if err := validation.ValidateFrameID(req.FrameID); err != nil {
		return
	}
	if err := validation.ValidateFrameDimensions(req.Width, req.Height); err != nil {
		return
	}
	if s.dispatcher == nil {
		s.send(peerID, "processing-error", map[string]string{"error": "detector unavailable"})
		return
	}

	_, span := tracing.TraceFrameProcessing(ctx, "received", string(req.Room), req.FrameID)
	span.End()

	s.dispatcher.Submit(req.Room, peerID, req)
}

type initModelData struct {
	Room domain.RoomID `json:"room"`
}

type modelInitResult struct {
	Room      domain.RoomID `json:"room"`
	Success   bool          `json:"success"`
	LoadTimeMs int64        `json:"loadTimeMs,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// handleInitializeModel is the WebSocket counterpart of the on-demand
// model-initialization HTTP endpoint, for callers already holding an open
// control connection.
func (s *Server) handleInitializeModel(ctx context.Context, peerID domain.PeerID, data json.RawMessage) {
	var req initModelData
	json.Unmarshal(data, &req)

	if s.detector == nil {
		s.send(peerID, "model-initialization-result", modelInitResult{Room: req.Room, Success: false, Error: "detector not configured"})
		return
	}

	d, err := s.detector.Load(ctx)
	if err != nil {
		s.send(peerID, "model-initialization-result", modelInitResult{Room: req.Room, Success: false, Error: err.Error()})
		return
	}
	s.send(peerID, "model-initialization-result", modelInitResult{Room: req.Room, Success: true, LoadTimeMs: d.Milliseconds()})
}

// --- connection-rate limiting ---

type connRateLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newConnRateLimiterStore(r rate.Limit, burst int) *connRateLimiterStore {
	return &connRateLimiterStore{limiters: make(map[string]*rate.Limiter), rate: r, burst: burst}
}

func (s *connRateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.rate, s.burst)
		s.limiters[key] = l
	}
	return l
}
