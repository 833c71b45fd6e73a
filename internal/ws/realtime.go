package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"talkie/internal/creds"
	"talkie/internal/metrics"
	"talkie/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// State of the per-room realtime connection.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateSuspended  State = "suspended"
	StateFailed     State = "failed"
)

// ErrEventDecode marks a single undecodable inbound event. It is emitted on
// the live sequence without terminating it: one malformed payload does not
// kill the subscription.
var ErrEventDecode = errors.New("undecodable event")

// ProtocolError is an explicit error event from the server. It is terminal:
// the subscription ends and the caller must subscribe again.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// Event is one item of the live sequence: either a message or an error.
// Events with a non-terminal error (decode failures) are followed by more
// items; a ProtocolError is always the last item.
type Event struct {
	Message *models.Message
	Err     error
}

type Config struct {
	// BaseURL is the websocket base, e.g. wss://host/ws. A room address is
	// BaseURL + /rooms/<roomID>.
	BaseURL string

	// ReconnectWait is the fixed interval between reconnect attempts after
	// a transport-level drop.
	ReconnectWait time.Duration

	// Buffer bounds the live event channel. The producer blocks once the
	// consumer falls this far behind.
	Buffer int

	Dialer *websocket.Dialer
}

func (c *Config) defaults() {
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 3 * time.Second
	}
	if c.Buffer == 0 {
		c.Buffer = 64
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

// Conn manages one logical per-room streaming connection: connect,
// transparent reconnect, suspend/resume, teardown. At most one subscription
// is live at a time; subscribing to a new room tears down the previous one.
type Conn struct {
	cfg   Config
	store creds.Store
	log   zerolog.Logger

	mu        sync.Mutex
	state     State
	roomID    string
	ws        *websocket.Conn
	cancel    context.CancelFunc
	done      chan struct{}
	suspended bool
	resume    chan struct{}
}

func NewConn(cfg Config, store creds.Store, logger zerolog.Logger) *Conn {
	cfg.defaults()
	return &Conn{
		cfg:   cfg,
		store: store,
		log:   logger,
		state: StateIdle,
	}
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe tears down any existing subscription and opens a connection to
// the given room. The returned channel is single-consumer; it is closed on
// teardown, on context cancellation, and after a terminal protocol error.
func (c *Conn) Subscribe(ctx context.Context, roomID string) (<-chan Event, error) {
	if roomID == "" {
		return nil, errors.New("empty room id")
	}
	c.Close()

	runCtx, cancel := context.WithCancel(ctx)
	events := make(chan Event, c.cfg.Buffer)
	done := make(chan struct{})

	c.mu.Lock()
	c.roomID = roomID
	c.state = StateConnecting
	c.cancel = cancel
	c.done = done
	c.suspended = false
	c.resume = nil
	c.mu.Unlock()

	go c.run(runCtx, roomID, events, done)
	return events, nil
}

// Suspend drops the transport but keeps room targeting, so Resume can
// re-establish connectivity without another Subscribe call. A no-op unless
// the connection is live.
func (c *Conn) Suspend() {
	c.mu.Lock()
	if c.suspended || c.state == StateIdle || c.state == StateFailed {
		c.mu.Unlock()
		return
	}
	c.suspended = true
	c.resume = make(chan struct{})
	c.state = StateSuspended
	ws := c.ws
	c.ws = nil
	roomID := c.roomID
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close()
	}
	c.log.Debug().Str("room", roomID).Msg("realtime suspended")
}

// Resume reconnects a suspended connection to the room it was targeting.
func (c *Conn) Resume() {
	c.mu.Lock()
	if !c.suspended {
		c.mu.Unlock()
		return
	}
	c.suspended = false
	resume := c.resume
	c.resume = nil
	c.mu.Unlock()

	close(resume)
}

// Close tears the subscription down: disconnects the transport, stops the
// run loop, and waits for the event channel to be closed. Idempotent.
func (c *Conn) Close() {
	c.mu.Lock()
	cancel := c.cancel
	ws := c.ws
	done := c.done
	c.cancel = nil
	c.ws = nil
	c.done = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		_ = ws.Close()
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	c.state = StateIdle
	c.suspended = false
	c.mu.Unlock()
}

// run owns the connection lifecycle for one subscription. Transport drops
// are retried forever at a fixed interval without surfacing anything on the
// live sequence; protocol errors end it.
func (c *Conn) run(ctx context.Context, roomID string, events chan Event, done chan struct{}) {
	defer close(done)
	defer close(events)

	for {
		if !c.awaitResume(ctx) {
			return
		}
		c.setState(StateConnecting)

		conn, err := c.dial(ctx, roomID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Debug().Err(err).Str("room", roomID).Msg("dial failed, will retry")
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		if c.done != done || ctx.Err() != nil {
			// Torn down between dial and registration; nobody else will
			// close this conn.
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		if c.suspended {
			c.mu.Unlock()
			_ = conn.Close()
			continue
		}
		c.ws = conn
		c.state = StateConnected
		c.mu.Unlock()

		metrics.WsConnections.Inc()
		c.log.Debug().Str("room", roomID).Msg("realtime connected")

		terminal := c.readLoop(ctx, conn, events)

		metrics.WsConnections.Dec()

		c.mu.Lock()
		if c.ws == conn {
			c.ws = nil
		}
		suspended := c.suspended
		c.mu.Unlock()
		_ = conn.Close()

		if terminal {
			c.setState(StateFailed)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !suspended {
			metrics.WsReconnects.Inc()
			if !c.sleep(ctx) {
				return
			}
		}
	}
}

// awaitResume blocks while the connection is suspended. Returns false when
// the subscription context ended.
func (c *Conn) awaitResume(ctx context.Context) bool {
	c.mu.Lock()
	if !c.suspended {
		c.mu.Unlock()
		return ctx.Err() == nil
	}
	c.state = StateSuspended
	resume := c.resume
	c.mu.Unlock()

	select {
	case <-resume:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Conn) dial(ctx context.Context, roomID string) (*websocket.Conn, error) {
	token, err := c.store.ReadAccess(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read access token: %w", err)
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	addr, err := url.JoinPath(c.cfg.BaseURL, "rooms", roomID)
	if err != nil {
		return nil, fmt.Errorf("bad room address: %w", err)
	}

	conn, resp, err := c.cfg.Dialer.DialContext(ctx, addr, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// readLoop pumps inbound events into the live sequence until the transport
// drops (terminal=false, reconnect) or the server reports a protocol error
// (terminal=true).
func (c *Conn) readLoop(ctx context.Context, conn *websocket.Conn, events chan Event) (terminal bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Transport-level drop: transparent to the caller.
			return false
		}

		var ev models.ServerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			if !c.emit(ctx, events, Event{Err: fmt.Errorf("%w: %v", ErrEventDecode, err)}) {
				return false
			}
			continue
		}

		switch ev.Type {
		case models.ServerEventTypeError:
			c.emit(ctx, events, Event{Err: &ProtocolError{Reason: ev.Error}})
			return true
		case models.ServerEventTypeMessage:
			if ev.Message == nil {
				if !c.emit(ctx, events, Event{Err: fmt.Errorf("%w: message event without message", ErrEventDecode)}) {
					return false
				}
				continue
			}
			metrics.MessagesReceived.Inc()
			if !c.emit(ctx, events, Event{Message: ev.Message}) {
				return false
			}
		default:
			c.log.Debug().Str("type", string(ev.Type)).Msg("ignoring unknown event")
		}
	}
}

// emit delivers in order, blocking on the bounded channel until the consumer
// catches up or the subscription ends.
func (c *Conn) emit(ctx context.Context, events chan Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Conn) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.cfg.ReconnectWait)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
