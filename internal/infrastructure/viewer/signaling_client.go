package viewer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Envelope is the wire shape every signaling message travels in: an event
// name plus an opaque, per-event data object.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SignalClient is the viewer's side of the broker's control connection. It
// serializes writes behind a mutex (the orchestrator loop and the ping
// handler, which writes pongs, both touch the connection) and feeds every inbound envelope to a
// single receive channel consumed by the orchestrator's event loop.
type SignalClient struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *zap.SugaredLogger

	inbox  chan Envelope
	closed chan struct{}
	once   sync.Once
}

// DialSignal opens the control connection to the broker's /ws endpoint and
// starts the read pump.
func DialSignal(ctx context.Context, url string, logger *zap.SugaredLogger) (*SignalClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := &SignalClient{
		conn:   conn,
		logger: logger,
		inbox:  make(chan Envelope, 32),
		closed: make(chan struct{}),
	}

	conn.SetPingHandler(func(appData string) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	go c.readPump()
	return c, nil
}

func (c *SignalClient) readPump() {
	defer close(c.inbox)
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Warnw("signaling read failed", "error", err)
			}
			return
		}
		select {
		case c.inbox <- env:
		case <-c.closed:
			return
		}
	}
}

// Inbox returns the channel of inbound envelopes. It is closed when the
// connection drops or Close is called.
func (c *SignalClient) Inbox() <-chan Envelope {
	return c.inbox
}

// Send marshals data under the named event and writes it to the broker.
func (c *SignalClient) Send(event string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(Envelope{Event: event, Data: mustMarshal(data)})
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

func (c *SignalClient) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.conn.Close()
}
