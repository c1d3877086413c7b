package voiceconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StateChangeTimeout bounds how long the controller waits for the transport
// to confirm a state transition. A disconnect with no reconnect activity
// inside this window is treated as genuine.
const StateChangeTimeout = 5 * time.Second

var (
	// ErrAlreadyConnecting is returned by Join while another join is in flight.
	ErrAlreadyConnecting = errors.New("voice join already in progress")
	// ErrAlreadyConnected is returned by Join while attached to a channel.
	ErrAlreadyConnected = errors.New("already connected to a voice channel")
	// ErrNotConnected is returned when playback is requested with no connection.
	ErrNotConnected = errors.New("not connected to a voice channel")
)

// Controller owns the voice connection for one guild. It serializes
// join/switch/disconnect operations and absorbs transient transport
// disconnects, reporting only genuine ones through the release callback.
type Controller struct {
	guildID    string
	transport  Transport
	onReleased func(reason string)
	timeout    time.Duration
	log        *slog.Logger

	mu          sync.Mutex
	state       State
	conn        Conn
	watchCancel context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithStateChangeTimeout overrides the disambiguation window. Tests shrink it.
func WithStateChangeTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// New returns a Controller for guildID. onReleased fires exactly once per
// genuine disconnect; it may be nil.
func New(guildID string, transport Transport, onReleased func(reason string), opts ...Option) *Controller {
	c := &Controller{
		guildID:    guildID,
		transport:  transport,
		onReleased: onReleased,
		timeout:    StateChangeTimeout,
		log:        slog.Default().With("guildID", guildID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the controller's view of the connection.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ChannelID returns the attached channel, or "" when disconnected.
func (c *Controller) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.ChannelID()
}

// Sink returns the current connection for playback.
func (c *Controller) Sink() (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// Join connects to channelID. It rejects a second join while one is in
// flight and rejects joining while already attached.
func (c *Controller) Join(ctx context.Context, channelID string) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting:
		c.mu.Unlock()
		return ErrAlreadyConnecting
	case StateConnected, StateReconnecting:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()

	return c.connect(ctx, channelID)
}

// Switch moves to a different channel without tearing down session state.
// With no existing connection it behaves as Join.
func (c *Controller) Switch(ctx context.Context, channelID string) error {
	c.mu.Lock()
	old := c.conn
	if old == nil {
		c.mu.Unlock()
		return c.Join(ctx, channelID)
	}
	if old.ChannelID() == channelID {
		c.mu.Unlock()
		c.log.Info("voice channel already joined", "channelID", channelID)
		return nil
	}

	// Cancel the old watcher before the transport re-routes the connection.
	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	err := c.connect(ctx, channelID)

	// The transport has re-routed (or lost) the underlying link either way.
	// The superseded wrapper only needs its state reporting stopped.
	old.Release()
	return err
}

func (c *Controller) connect(ctx context.Context, channelID string) error {
	conn, err := c.transport.Connect(ctx, c.guildID, channelID)

	c.mu.Lock()
	if err != nil {
		c.state = StateDisconnected
		c.conn = nil
		c.mu.Unlock()
		return fmt.Errorf("failed to join voice channel %s: %w", channelID, err)
	}

	c.conn = conn
	c.state = StateConnected
	watchCtx, cancel := context.WithCancel(context.Background())
	c.watchCancel = cancel
	c.mu.Unlock()

	go c.watch(watchCtx, conn)
	return nil
}

// Disconnect tears the connection down, waiting (bounded) for the transport
// to confirm destruction. Idempotent; a timeout is logged, not returned.
func (c *Controller) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	cancel := c.watchCancel
	c.conn = nil
	c.watchCancel = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	states := conn.States()
	if err := conn.Close(); err != nil {
		c.log.Warn("failed to close voice connection", "error", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	for {
		select {
		case s, ok := <-states:
			if !ok || s == StateDestroyed {
				return nil
			}
		case <-timer.C:
			c.log.Warn("timed out waiting for voice connection teardown")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) watch(ctx context.Context, conn Conn) {
	states := conn.States()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-states:
			if !ok {
				c.finalize(conn, "transport closed")
				return
			}
			switch s {
			case StateDisconnected:
				if c.genuineDisconnect(ctx, states) {
					c.finalize(conn, "disconnect")
					return
				}
				c.setStateIfCurrent(conn, StateConnected)
			case StateDestroyed:
				c.finalize(conn, "destroyed")
				return
			case StateReconnecting, StateConnecting:
				c.setStateIfCurrent(conn, StateReconnecting)
			case StateConnected:
				c.setStateIfCurrent(conn, StateConnected)
			}
		}
	}
}

// genuineDisconnect races the transport re-entering a connecting state
// against the timeout window. Only a window with no reconnect activity
// reports true.
func (c *Controller) genuineDisconnect(ctx context.Context, states <-chan State) bool {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case s, ok := <-states:
			if !ok {
				return true
			}
			switch s {
			case StateConnecting, StateReconnecting, StateConnected:
				// Channel move or reconnect in progress; ignore the disconnect.
				return false
			case StateDestroyed:
				return true
			case StateDisconnected:
				// Still down; keep waiting out the window.
			}
		}
	}
}

func (c *Controller) setStateIfCurrent(conn Conn, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.state = s
	}
}

// finalize reclaims the connection exactly once and reports the release.
func (c *Controller) finalize(conn Conn, reason string) {
	c.mu.Lock()
	if c.conn != conn {
		// Superseded by a Switch or an explicit Disconnect.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.watchCancel = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if err := conn.Close(); err != nil {
		c.log.Warn("failed to close voice connection", "error", err)
	}
	c.log.Info("voice connection released", "reason", reason)

	if c.onReleased != nil {
		c.onReleased(reason)
	}
}
