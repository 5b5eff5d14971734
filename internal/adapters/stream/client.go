// Package stream maintains the websocket connection to the live position
// feed. It owns the connection lifecycle (connect, authenticate, subscribe,
// read, reconnect) and hands validated position frames to a Sink; it never
// touches the entity store directly.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/vigilops/livetrack/internal/domain/model"
	"github.com/vigilops/livetrack/pkg/logger"
	"github.com/vigilops/livetrack/pkg/metrics"
)

// State is the connection lifecycle phase. Transitions only move forward
// within one connection attempt; any failure drops back to StateDisconnected.
type State string

// Connection states.
const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateConnected      State = "connected"
	StateAuthenticating State = "authenticating"
	StateSubscribed     State = "subscribed"
)

// Default connection tuning.
const (
	defaultMaxAttempts = 10
	defaultBaseBackoff = time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultReadLimit   = 1 << 20

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Identity is the claim presented to the feed on connect.
type Identity struct {
	SubjectID string
	Role      string
}

// Sink receives the client's output. HandlePosition is called once per valid
// inbound frame; HandleDisconnect is called whenever an established
// connection is lost, before any reconnect attempt.
type Sink interface {
	HandlePosition(ctx context.Context, p model.LivePosition)
	HandleDisconnect(ctx context.Context)
}

// Client is the feed connection state machine.
type Client struct {
	endpoint string
	identity Identity
	sink     Sink

	dialer      *websocket.Dialer
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	validate *validator.Validate

	mu      sync.Mutex
	state   State
	eventID string
	conn    *websocket.Conn
	writeMu sync.Mutex

	logger logger.Logger
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithMaxAttempts bounds consecutive failed connection attempts before the
// client gives up with ErrReconnectExhausted. Zero or negative means a
// single attempt.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the reconnect backoff range. The delay doubles per
// consecutive failure, starting at base and capped at max.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.baseBackoff = base
		}
		if max >= base {
			c.maxBackoff = max
		}
	}
}

// WithDialer sets a custom websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a feed client for the given endpoint and identity. eventID is
// the initial subscription scope; it can be changed later with SetScope.
func New(endpoint string, identity Identity, eventID string, sink Sink, opts ...Option) *Client {
	c := &Client{
		endpoint:    endpoint,
		identity:    identity,
		eventID:     eventID,
		sink:        sink,
		dialer:      websocket.DefaultDialer,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		validate:    validator.New(),
		state:       StateDisconnected,
		logger:      logger.Get().Named("stream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetScope switches the subscription to a new event without tearing the
// connection down. The caller is responsible for clearing any state built
// from the old scope before frames for the new one start flowing.
func (c *Client) SetScope(ctx context.Context, eventID string) error {
	c.mu.Lock()
	c.eventID = eventID
	conn := c.conn
	subscribed := c.state == StateSubscribed
	c.mu.Unlock()

	if conn == nil || !subscribed {
		// Not connected yet; the next session subscribes with the new scope.
		return nil
	}
	return c.writeJSON(conn, envelope{Type: msgSubscribe, EventID: eventID})
}

// Run connects and keeps the connection alive until ctx is canceled, the
// reconnect budget is exhausted, or authentication is rejected. Blocking;
// callers run it in a goroutine.
func (c *Client) Run(ctx context.Context) error {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			c.setState(StateDisconnected)
			return err
		}

		c.setState(StateConnecting)
		conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, http.Header{})
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			attempts++
			c.setState(StateDisconnected)
			if waitErr := c.backoff(ctx, attempts); waitErr != nil {
				return waitErr
			}
			continue
		}

		attempts = 0
		c.setConn(conn)
		c.setState(StateConnected)
		c.logger.Info(ctx, "connected to position feed", logger.String("endpoint", c.endpoint))

		err = c.session(ctx, conn)

		c.setConn(nil)
		c.setState(StateDisconnected)
		conn.Close()
		c.sink.HandleDisconnect(ctx)

		if errors.Is(err, ErrAuthRejected) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn(ctx, "position feed connection lost", logger.Error(err))
		attempts++
		if waitErr := c.backoff(ctx, attempts); waitErr != nil {
			return waitErr
		}
	}
}

// session runs one established connection: authenticate, subscribe, then
// read frames until the connection drops.
func (c *Client) session(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(defaultReadLimit)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingCtx, stopPings := context.WithCancel(ctx)
	defer stopPings()
	go c.pingLoop(pingCtx, conn)

	// ReadJSON takes no context; close the connection out from under it on
	// cancellation so teardown does not wait out the pong deadline.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-readDone:
		}
	}()

	c.setState(StateAuthenticating)
	auth := envelope{
		Type:      msgAuth,
		SubjectID: c.identity.SubjectID,
		Role:      c.identity.Role,
		EventID:   c.currentEventID(),
	}
	if err := c.writeJSON(conn, auth); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		if err := c.handleFrame(ctx, conn, env); err != nil {
			return err
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, conn *websocket.Conn, env envelope) error {
	switch env.Type {
	case msgAuthAck:
		if env.OK == nil || !*env.OK {
			return fmt.Errorf("%w: %s", ErrAuthRejected, env.Message)
		}
		if err := c.writeJSON(conn, envelope{Type: msgSubscribe, EventID: c.currentEventID()}); err != nil {
			return fmt.Errorf("send subscribe: %w", err)
		}
		c.setState(StateSubscribed)
		c.logger.Info(ctx, "subscribed to event feed", logger.String("eventID", c.currentEventID()))

	case msgSnapshot:
		for _, wp := range env.Positions {
			c.deliver(ctx, wp)
		}

	case msgPosition:
		if env.Position != nil {
			c.deliver(ctx, *env.Position)
		}

	case msgError:
		c.logger.Warn(ctx, "feed reported an error", logger.String("message", env.Message))

	default:
		// Unknown frame types are ignored so the feed can evolve.
		c.logger.Debug(ctx, "ignoring unknown frame type", logger.String("type", env.Type))
	}
	return nil
}

// deliver validates one wire frame and hands it to the sink. Malformed
// frames are counted and dropped; they never abort the connection.
func (c *Client) deliver(ctx context.Context, wp wirePosition) {
	p, err := wp.toModel(c.validate)
	if err != nil {
		metrics.RecordFrameInvalid()
		c.logger.Debug(ctx, "dropping malformed position frame", logger.Error(err))
		return
	}
	metrics.RecordFrameReceived()
	c.sink.HandlePosition(ctx, p)
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// backoff sleeps for the attempt's delay, or returns ErrReconnectExhausted
// once the budget is spent.
func (c *Client) backoff(ctx context.Context, attempts int) error {
	if attempts >= c.maxAttempts {
		return fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, attempts)
	}
	metrics.RecordStreamReconnect()

	delay := c.baseBackoff
	for i := 1; i < attempts && delay < c.maxBackoff; i++ {
		delay *= 2
	}
	if delay > c.maxBackoff {
		delay = c.maxBackoff
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (c *Client) writeJSON(conn *websocket.Conn, env envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(env)
}

func (c *Client) currentEventID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eventID
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	metrics.UpdateStreamState(string(s))
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}
