// Package session holds the per-guild voice session: who controls the bot,
// the lifecycle of its voice connection, the playback queue, and the
// inactivity watchdog. Each guild gets exactly one Session and sessions never
// share mutable state, so one guild's failures never touch another's.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/glizzus/talkward/internal/events"
	"github.com/glizzus/talkward/internal/generator"
	"github.com/glizzus/talkward/internal/opus"
	"github.com/glizzus/talkward/internal/playback"
	"github.com/glizzus/talkward/internal/settings"
	"github.com/glizzus/talkward/internal/sfx"
	"github.com/glizzus/talkward/internal/textproc"
	"github.com/glizzus/talkward/internal/translate"
	"github.com/glizzus/talkward/internal/tts"
	"github.com/glizzus/talkward/internal/voiceconn"
)

// DefaultGracePeriod is how long a neglect warning gets to play out before
// the session releases itself.
const DefaultGracePeriod = 3 * time.Second

// DefaultNeglectTimeout is how long a bound session may sit idle.
const DefaultNeglectTimeout = 2 * time.Hour

var (
	// ErrFollowInProgress rejects a second follow while one is in flight.
	ErrFollowInProgress = errors.New("a follow is already in progress")
	// ErrAlreadyBound rejects following while the session is bound.
	ErrAlreadyBound = errors.New("session is already bound to a voice channel")
	// ErrNotBound rejects operations that require a bound session.
	ErrNotBound = errors.New("session is not bound to a voice channel")
	// ErrFollowCancelled reports a follow undone by a release or dispose
	// that arrived while the voice join was still in flight.
	ErrFollowCancelled = errors.New("follow cancelled by release")
	// ErrDisposed rejects follows on a session removed from the world.
	ErrDisposed = errors.New("session is disposed")
)

// State of a guild session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateBound
	StateLeaving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateBound:
		return "bound"
	case StateLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// Message is an inbound chat message considered for speech.
type Message struct {
	MemberID string
	Roles    []string
	Content  string
}

// Config holds the session tunables. Zero values get defaults.
type Config struct {
	NeglectTimeout  time.Duration
	NeglectMessages []string
	GracePeriod     time.Duration
	CharLimit       int
}

func (c *Config) applyDefaults() {
	if c.NeglectTimeout <= 0 {
		c.NeglectTimeout = DefaultNeglectTimeout
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.CharLimit <= 0 {
		c.CharLimit = textproc.MaxMessageLength
	}
}

// Deps are the collaborators a session needs. Registry, Settings, and
// Transport are required; the rest may be nil.
type Deps struct {
	Registry    *tts.Registry
	Settings    settings.Store
	Translator  translate.Translator
	Clips       *sfx.Library
	Bus         *events.Bus
	Transport   voiceconn.Transport
	IDGenerator generator.Generator[string]

	// VoiceOptions are passed through to the voice connection controller.
	// Tests shrink the disconnect disambiguation window with these.
	VoiceOptions []voiceconn.Option
}

// Session is the aggregate state machine for one guild.
type Session struct {
	guildID string
	deps    Deps
	cfg     Config
	log     *slog.Logger

	controller *voiceconn.Controller
	queue      *playback.Queue
	watchdog   *Watchdog

	mu            sync.Mutex
	state         State
	epoch         uint64
	boundTo       string
	permitted     map[string]struct{}
	guildSettings *settings.GuildSettings
	lastActivity  time.Time
	disposed      bool
}

func New(guildID string, deps Deps, cfg Config) *Session {
	cfg.applyDefaults()
	if deps.Translator == nil {
		deps.Translator = translate.Noop{}
	}

	s := &Session{
		guildID:   guildID,
		deps:      deps,
		cfg:       cfg,
		log:       slog.Default().With("guildID", guildID),
		permitted: make(map[string]struct{}),
	}
	s.controller = voiceconn.New(guildID, deps.Transport, s.handleDisconnect, deps.VoiceOptions...)
	s.queue = playback.NewQueue(guildID, deps.IDGenerator)
	s.watchdog = NewWatchdog(cfg.NeglectTimeout, s.neglected)
	return s
}

func (s *Session) GuildID() string {
	return s.guildID
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Master returns the controlling member, or "" when unbound.
func (s *Session) Master() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundTo
}

func (s *Session) IsMaster(memberID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundTo != "" && s.boundTo == memberID
}

// SetMaster transfers control of a bound session to another member. The new
// master is permitted automatically; the old master keeps its permit.
func (s *Session) SetMaster(memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateBound {
		return ErrNotBound
	}
	s.boundTo = memberID
	s.permitted[memberID] = struct{}{}
	return nil
}

// LastActivity returns when the session last accepted an interaction.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Follow binds the session to memberID and joins channelID. A second follow
// while one is in flight is rejected, as is following a bound session.
func (s *Session) Follow(ctx context.Context, memberID, channelID string) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	switch s.state {
	case StateConnecting:
		s.mu.Unlock()
		return ErrFollowInProgress
	case StateBound, StateLeaving:
		s.mu.Unlock()
		return ErrAlreadyBound
	}
	s.state = StateConnecting
	s.boundTo = memberID
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	if err := s.controller.Join(ctx, channelID); err != nil {
		s.mu.Lock()
		if s.epoch == epoch {
			s.state = StateIdle
			s.boundTo = ""
			s.permitted = make(map[string]struct{})
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to follow member %s: %w", memberID, err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		// A release or dispose cut in while the join was in flight. The
		// session is already Idle; reclaim the fresh connection.
		s.mu.Unlock()
		if err := s.controller.Disconnect(ctx); err != nil {
			s.log.Warn("failed to disconnect cancelled follow", "error", err)
		}
		return ErrFollowCancelled
	}
	s.state = StateBound
	s.permitted[memberID] = struct{}{}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.watchdog.Reset()
	s.log.Info("session bound", "memberID", memberID, "channelID", channelID)
	if s.deps.Bus != nil {
		s.deps.Bus.PublishFollow(events.FollowEvent{
			GuildID:   s.guildID,
			MemberID:  memberID,
			ChannelID: channelID,
		})
	}
	return nil
}

// Release unbinds the session and disconnects from voice. Idempotent.
func (s *Session) Release(ctx context.Context) error {
	return s.release(ctx, "release")
}

func (s *Session) release(ctx context.Context, reason string) error {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateLeaving {
		s.mu.Unlock()
		return nil
	}
	s.state = StateLeaving
	// Invalidate any follow whose join is still in flight.
	s.epoch++
	s.mu.Unlock()

	s.watchdog.Stop()
	s.queue.Stop(reason, true)
	err := s.controller.Disconnect(ctx)

	s.mu.Lock()
	s.state = StateIdle
	s.boundTo = ""
	s.permitted = make(map[string]struct{})
	s.mu.Unlock()

	s.log.Info("session released", "reason", reason)
	if s.deps.Bus != nil {
		s.deps.Bus.PublishRelease(events.ReleaseEvent{GuildID: s.guildID, Reason: reason})
	}
	return err
}

// handleDisconnect is the controller's release callback; it fires only for
// genuine disconnects. The connection is already gone, so this clears
// session state without going back through the controller.
func (s *Session) handleDisconnect(reason string) {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateLeaving {
		// An explicit release is already tearing the session down.
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.epoch++
	s.boundTo = ""
	s.permitted = make(map[string]struct{})
	s.mu.Unlock()

	s.watchdog.Stop()
	s.queue.Stop(reason, true)

	s.log.Warn("voice connection lost, session released", "reason", reason)
	if s.deps.Bus != nil {
		s.deps.Bus.PublishRelease(events.ReleaseEvent{GuildID: s.guildID, Reason: reason})
	}
}

// SwitchChannel moves a bound session to another voice channel without
// dropping the master or the permitted set.
func (s *Session) SwitchChannel(ctx context.Context, channelID string) error {
	s.mu.Lock()
	if s.state != StateBound {
		s.mu.Unlock()
		return ErrNotBound
	}
	s.mu.Unlock()

	if err := s.controller.Switch(ctx, channelID); err != nil {
		return fmt.Errorf("failed to switch to channel %s: %w", channelID, err)
	}
	s.touch()
	return nil
}

// Permit allows id (a member or role identifier) to trigger speech.
func (s *Session) Permit(id string) error {
	s.mu.Lock()
	if s.state != StateBound {
		s.mu.Unlock()
		return ErrNotBound
	}
	s.permitted[id] = struct{}{}
	s.mu.Unlock()

	s.touch()
	return nil
}

// Unpermit revokes id's permission.
func (s *Session) Unpermit(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.permitted, id)
}

// IsPermitted reports whether the member may trigger speech, either directly
// or through one of its roles.
func (s *Session) IsPermitted(memberID string, roles []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPermittedLocked(memberID, roles)
}

func (s *Session) isPermittedLocked(memberID string, roles []string) bool {
	if _, ok := s.permitted[memberID]; ok {
		return true
	}
	for _, role := range roles {
		if _, ok := s.permitted[role]; ok {
			return true
		}
	}
	return false
}

// Speak considers a chat message for synthesis. Messages are silently
// dropped unless the session is bound, the content survives cleaning, the
// author is permitted, and the author is not muted. Translation or voice
// resolution failures drop the message too; they are logged, never retried.
func (s *Session) Speak(ctx context.Context, msg Message) error {
	s.mu.Lock()
	if s.state != StateBound {
		s.mu.Unlock()
		return nil
	}
	permitted := s.isPermittedLocked(msg.MemberID, msg.Roles)
	s.mu.Unlock()
	if !permitted {
		return nil
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" || textproc.IsExcluded(content) {
		return nil
	}

	gs, err := s.loadSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load guild settings: %w", err)
	}
	member := s.memberSettings(gs, msg.MemberID)
	if member.Muted {
		return nil
	}

	content = textproc.Truncate(textproc.Clean(content), s.cfg.CharLimit)
	if content == "" {
		return nil
	}

	if member.TranslateLanguage != "" {
		translated, err := s.deps.Translator.Translate(ctx, content, member.TranslateLanguage)
		if err != nil {
			s.log.Warn("translation failed, dropping message",
				"memberID", msg.MemberID, "target", member.TranslateLanguage, "error", err)
			return nil
		}
		content = translated
	}

	match, err := s.deps.Registry.Resolve(tts.Selector{
		Provider: gs.DefaultProvider,
		Voice:    member.Voice,
		Language: member.Language,
		Gender:   tts.Gender(member.Gender),
		Seed:     s.guildID + ":" + msg.MemberID,
	})
	if err != nil {
		s.log.Warn("no voice for member, dropping message", "memberID", msg.MemberID, "error", err)
		return nil
	}

	s.touch()
	s.enqueueSpeech(msg.MemberID, content, match, tts.SynthesisOptions{
		Pitch: member.Pitch,
		Speed: member.Speed,
	})
	return nil
}

// Talk speaks text through the guild's default voice, bypassing permission
// checks. Used for announcements and system messages. No-op when unbound.
func (s *Session) Talk(ctx context.Context, text string) error {
	s.mu.Lock()
	bound := s.state == StateBound
	s.mu.Unlock()
	if !bound {
		return nil
	}

	if err := s.announce(ctx, text); err != nil {
		return err
	}
	s.touch()
	return nil
}

// announce enqueues text in the guild's default voice without resetting the
// watchdog, so the neglect warning cannot postpone its own release.
func (s *Session) announce(ctx context.Context, text string) error {
	text = textproc.Clean(text)
	if text == "" {
		return nil
	}

	var defaultProvider string
	if gs, err := s.loadSettings(ctx); err == nil {
		defaultProvider = gs.DefaultProvider
	}

	match, err := s.deps.Registry.Resolve(tts.Selector{
		Provider: defaultProvider,
		Seed:     s.guildID,
	})
	if err != nil {
		return fmt.Errorf("failed to resolve announcement voice: %w", err)
	}

	s.enqueueSpeech("", text, match, tts.SynthesisOptions{})
	return nil
}

// PlaySound queues a stored sound effect clip. No-op when unbound.
func (s *Session) PlaySound(ctx context.Context, name string) error {
	if s.deps.Clips == nil {
		return errors.New("no sound library configured")
	}

	s.mu.Lock()
	bound := s.state == StateBound
	s.mu.Unlock()
	if !bound {
		return nil
	}

	s.touch()
	s.queue.Enqueue(playback.Job{
		Name: "sfx:" + name,
		Play: func(ctx context.Context) error {
			clip, err := s.deps.Clips.Open(ctx, name)
			if err != nil {
				return err
			}
			defer clip.Close()
			return s.play(ctx, clip)
		},
	})
	return nil
}

func (s *Session) enqueueSpeech(memberID, text string, match tts.Match, opts tts.SynthesisOptions) {
	s.queue.Enqueue(playback.Job{
		Name: "speech",
		Play: func(ctx context.Context) error {
			stream, err := s.deps.Registry.Synthesize(ctx, match, text, opts)
			if err != nil {
				return fmt.Errorf("synthesis failed: %w", err)
			}
			defer stream.Close()
			return s.play(ctx, stream)
		},
		OnDone: func(err error) {
			// Announcements have no author and do not count toward usage.
			if memberID == "" {
				return
			}
			if err == nil && s.deps.Bus != nil {
				s.deps.Bus.PublishMessageDelivered(events.MessageDeliveredEvent{
					GuildID:    s.guildID,
					MemberID:   memberID,
					Characters: len(text),
				})
			}
		},
	})
}

// play streams an OGG/Opus source through the current voice connection.
func (s *Session) play(ctx context.Context, source io.Reader) error {
	sink, err := s.controller.Sink()
	if err != nil {
		return err
	}

	if err := sink.Speaking(true); err != nil {
		s.log.Warn("failed to set speaking state", "error", err)
	}
	defer func() {
		if err := sink.Speaking(false); err != nil {
			s.log.Warn("failed to clear speaking state", "error", err)
		}
	}()

	return opus.Stream(ctx, opus.NewPacketReader(source), sink)
}

// neglected runs when the watchdog expires: warn the channel if bound, give
// the warning a grace period to play, then release.
func (s *Session) neglected() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s.mu.Lock()
	bound := s.state == StateBound
	s.mu.Unlock()

	if bound && len(s.cfg.NeglectMessages) > 0 {
		warning := s.cfg.NeglectMessages[rand.IntN(len(s.cfg.NeglectMessages))]
		if err := s.announce(ctx, warning); err != nil {
			s.log.Warn("failed to speak neglect warning", "error", err)
		}
		time.Sleep(s.cfg.GracePeriod)
	}

	if err := s.release(ctx, "neglect"); err != nil {
		s.log.Warn("failed to release neglected session", "error", err)
	}
}

// Dispose forces the session to Idle and rejects future follows. Called when
// the bot leaves the guild or the process shuts down.
func (s *Session) Dispose(ctx context.Context) error {
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
	return s.release(ctx, "dispose")
}

// touch records an accepted interaction and pushes the neglect deadline out.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
	s.watchdog.Reset()
}

func (s *Session) loadSettings(ctx context.Context) (*settings.GuildSettings, error) {
	s.mu.Lock()
	if s.guildSettings != nil {
		gs := s.guildSettings
		s.mu.Unlock()
		return gs, nil
	}
	s.mu.Unlock()

	gs, err := s.deps.Settings.Load(ctx, s.guildID)
	if errors.Is(err, settings.ErrNotFound) {
		gs = settings.NewGuildSettings(s.guildID)
	} else if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.guildSettings = gs
	s.mu.Unlock()
	return gs, nil
}

func (s *Session) memberSettings(gs *settings.GuildSettings, memberID string) settings.MemberSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gs.Member(memberID)
}

// MemberSettings returns the stored voice preferences for memberID.
func (s *Session) MemberSettings(ctx context.Context, memberID string) (settings.MemberSettings, error) {
	gs, err := s.loadSettings(ctx)
	if err != nil {
		return settings.MemberSettings{}, err
	}
	return s.memberSettings(gs, memberID), nil
}

// UpdateMemberSettings stores and persists new voice preferences.
func (s *Session) UpdateMemberSettings(ctx context.Context, memberID string, m settings.MemberSettings) error {
	gs, err := s.loadSettings(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	gs.SetMember(memberID, m)
	s.mu.Unlock()

	if err := s.deps.Settings.Save(ctx, gs); err != nil {
		return fmt.Errorf("failed to save guild settings: %w", err)
	}
	return nil
}

// ResetMemberSettings drops every stored preference for memberID.
func (s *Session) ResetMemberSettings(ctx context.Context, memberID string) error {
	gs, err := s.loadSettings(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	gs.ResetMember(memberID)
	s.mu.Unlock()

	if err := s.deps.Settings.Save(ctx, gs); err != nil {
		return fmt.Errorf("failed to save guild settings: %w", err)
	}
	return nil
}
