package voiceconn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// sendTimeout guards against a voice connection that stops draining
// its send channel.
const sendTimeout = time.Minute

// readyPollInterval is how often the adapter samples the underlying
// connection's readiness. discordgo does not expose state transitions
// directly, so the adapter derives them.
const readyPollInterval = 250 * time.Millisecond

// ErrSendTimeout indicates the transport stopped accepting audio frames.
var ErrSendTimeout = errors.New("voice connection send timeout")

// DiscordTransport adapts a discordgo session to the Transport interface.
type DiscordTransport struct {
	session *discordgo.Session
}

func NewDiscordTransport(session *discordgo.Session) *DiscordTransport {
	return &DiscordTransport{session: session}
}

func (t *DiscordTransport) Connect(ctx context.Context, guildID, channelID string) (Conn, error) {
	vc, err := t.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}

	conn := &discordConn{
		vc:     vc,
		states: make(chan State, 8),
		done:   make(chan struct{}),
	}
	go conn.pollStates()
	return conn, nil
}

var _ Transport = (*DiscordTransport)(nil)

type discordConn struct {
	vc     *discordgo.VoiceConnection
	states chan State

	closeOnce sync.Once
	done      chan struct{}
}

func (c *discordConn) SendFrame(ctx context.Context, frame []byte) error {
	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()

	select {
	case c.vc.OpusSend <- frame:
		return nil
	case <-timer.C:
		return ErrSendTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrNotConnected
	}
}

func (c *discordConn) Speaking(on bool) error {
	return c.vc.Speaking(on)
}

func (c *discordConn) ChannelID() string {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.ChannelID
}

func (c *discordConn) States() <-chan State {
	return c.states
}

func (c *discordConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.vc.Disconnect()
	})
	return err
}

// Release stops the state polling without calling Disconnect. The gateway
// has re-routed the underlying voice connection to a newer wrapper, so
// destroying it here would tear down the new channel too.
func (c *discordConn) Release() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// pollStates derives transport state transitions from the connection's
// readiness flag and forwards them to the states channel.
func (c *discordConn) pollStates() {
	defer close(c.states)

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	wasReady := true
	for {
		select {
		case <-c.done:
			c.emit(StateDestroyed)
			return
		case <-ticker.C:
			c.vc.RLock()
			ready := c.vc.Ready
			c.vc.RUnlock()

			if ready != wasReady {
				if ready {
					// A drop followed by readiness means the gateway
					// re-routed the connection (e.g. a channel move).
					c.emit(StateConnected)
				} else {
					c.emit(StateDisconnected)
				}
				wasReady = ready
			}
		}
	}
}

func (c *discordConn) emit(s State) {
	select {
	case c.states <- s:
	default:
		// State watcher is behind; drop rather than block the poll loop.
	}
}

var _ Conn = (*discordConn)(nil)
