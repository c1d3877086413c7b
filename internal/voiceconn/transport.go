// Package voiceconn manages the lifecycle of a guild's voice-channel
// connection: joining, switching channels, tearing down, and telling a benign
// transport hiccup apart from a genuine disconnect.
package voiceconn

import "context"

// State of a voice connection as reported by the transport.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Conn is a live connection to one voice channel.
type Conn interface {
	// SendFrame pushes one Opus frame to the channel. Blocks until the
	// transport accepts it or ctx is done.
	SendFrame(ctx context.Context, frame []byte) error

	// Speaking toggles the speaking indicator.
	Speaking(on bool) error

	// ChannelID is the channel this connection is attached to.
	ChannelID() string

	// States delivers transport-level state transitions. The channel is
	// closed when the connection is destroyed.
	States() <-chan State

	// Close destroys the connection. Idempotent.
	Close() error

	// Release reclaims the wrapper without destroying the underlying
	// transport link. Used when the transport re-routes the connection to
	// another channel and a new Conn takes over. Idempotent.
	Release()
}

// Transport opens voice connections. Implemented by the discordgo adapter in
// production and by fakes in tests.
type Transport interface {
	Connect(ctx context.Context, guildID, channelID string) (Conn, error)
}
