package session_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/glizzus/talkward/internal/events"
	"github.com/glizzus/talkward/internal/session"
	"github.com/glizzus/talkward/internal/settings"
	"github.com/glizzus/talkward/internal/translate"
	"github.com/glizzus/talkward/internal/tts"
	"github.com/glizzus/talkward/internal/voiceconn"
)

// testWindow shrinks the disconnect disambiguation window so genuine
// disconnects resolve quickly in tests.
const testWindow = 40 * time.Millisecond

type fakeConn struct {
	channelID string
	states    chan voiceconn.State

	mu     sync.Mutex
	closed bool
}

func newFakeConn(channelID string) *fakeConn {
	return &fakeConn{
		channelID: channelID,
		states:    make(chan voiceconn.State, 8),
	}
}

func (c *fakeConn) SendFrame(ctx context.Context, frame []byte) error { return nil }
func (c *fakeConn) Speaking(on bool) error                            { return nil }
func (c *fakeConn) ChannelID() string                                 { return c.channelID }
func (c *fakeConn) States() <-chan voiceconn.State                    { return c.states }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.states)
	}
	return nil
}

func (c *fakeConn) Release() {
	c.Close()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeTransport struct {
	mu         sync.Mutex
	conns      []*fakeConn
	connectErr error
	block      chan struct{}
	attempts   int
}

func (t *fakeTransport) Connect(ctx context.Context, guildID, channelID string) (voiceconn.Conn, error) {
	t.mu.Lock()
	t.attempts++
	block := t.block
	err := t.connectErr
	t.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	conn := newFakeConn(channelID)
	t.mu.Lock()
	t.conns = append(t.conns, conn)
	t.mu.Unlock()
	return conn, nil
}

func (t *fakeTransport) connectAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

func (t *fakeTransport) lastConn() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

type synthCall struct {
	text string
	opts tts.SynthesisOptions
}

type fakeProvider struct {
	mu    sync.Mutex
	calls []synthCall
}

func (p *fakeProvider) Shortname() string  { return "fake" }
func (p *fakeProvider) Enabled() bool      { return true }
func (p *fakeProvider) CharLimit() int     { return 5000 }
func (p *fakeProvider) Format() tts.Format { return tts.FormatOggOpus }

func (p *fakeProvider) Voices() []tts.Voice {
	return []tts.Voice{
		{Provider: "fake", Language: "en-US", Gender: tts.GenderFemale, ID: "v1", Alias: "amy", TranslateCode: "en"},
		{Provider: "fake", Language: "en-US", Gender: tts.GenderMale, ID: "v2", Alias: "brian", TranslateCode: "en"},
	}
}

func (p *fakeProvider) SelfCheck(ctx context.Context) error { return nil }

func (p *fakeProvider) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) (io.ReadCloser, error) {
	p.mu.Lock()
	p.calls = append(p.calls, synthCall{text: text, opts: opts})
	p.mu.Unlock()
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (p *fakeProvider) synthCalls() []synthCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]synthCall(nil), p.calls...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

type translateFunc func(ctx context.Context, text, target string) (string, error)

func (f translateFunc) Translate(ctx context.Context, text, target string) (string, error) {
	return f(ctx, text, target)
}

type fixture struct {
	session   *session.Session
	transport *fakeTransport
	provider  *fakeProvider
	store     *settings.MemoryStore
	bus       *events.Bus
}

func newFixture(t *testing.T, cfg session.Config, translator translate.Translator) *fixture {
	t.Helper()

	provider := &fakeProvider{}
	registry, err := tts.NewRegistry(context.Background(), nil, provider)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	transport := &fakeTransport{}
	store := settings.NewMemoryStore()
	bus := events.NewBus()

	s := session.New("guild-1", session.Deps{
		Registry:     registry,
		Settings:     store,
		Translator:   translator,
		Bus:          bus,
		Transport:    transport,
		VoiceOptions: []voiceconn.Option{voiceconn.WithStateChangeTimeout(testWindow)},
	}, cfg)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Dispose(ctx)
	})

	return &fixture{
		session:   s,
		transport: transport,
		provider:  provider,
		store:     store,
		bus:       bus,
	}
}

func (f *fixture) follow(t *testing.T, memberID string) {
	t.Helper()
	if err := f.session.Follow(context.Background(), memberID, "chan-1"); err != nil {
		t.Fatalf("Follow: %v", err)
	}
}

func TestFollowBindsSession(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)

	var followed []events.FollowEvent
	f.bus.SubscribeFollow(func(e events.FollowEvent) { followed = append(followed, e) })

	f.follow(t, "member-1")

	if got := f.session.State(); got != session.StateBound {
		t.Errorf("state = %v, want bound", got)
	}
	if !f.session.IsMaster("member-1") {
		t.Error("follower should be master")
	}
	if !f.session.IsPermitted("member-1", nil) {
		t.Error("follower should be auto-permitted")
	}
	if len(followed) != 1 || followed[0].MemberID != "member-1" {
		t.Errorf("follow events = %v, want one for member-1", followed)
	}
}

func TestFollowWhileConnectingRejected(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)
	f.transport.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- f.session.Follow(context.Background(), "member-1", "chan-1")
	}()

	waitFor(t, time.Second, func() bool {
		return f.session.State() == session.StateConnecting
	}, "first follow never started connecting")

	if err := f.session.Follow(context.Background(), "member-2", "chan-2"); !errors.Is(err, session.ErrFollowInProgress) {
		t.Errorf("second follow error = %v, want ErrFollowInProgress", err)
	}

	close(f.transport.block)
	if err := <-done; err != nil {
		t.Fatalf("first follow: %v", err)
	}
	if got := f.transport.connectAttempts(); got != 1 {
		t.Errorf("connect attempts = %d, want 1", got)
	}
	if !f.session.IsMaster("member-1") {
		t.Error("first follower should be master")
	}
}

func TestFollowWhileBoundRejected(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)
	f.follow(t, "member-1")

	if err := f.session.Follow(context.Background(), "member-2", "chan-2"); !errors.Is(err, session.ErrAlreadyBound) {
		t.Errorf("Follow error = %v, want ErrAlreadyBound", err)
	}
}

func TestFollowFailureRevertsToIdle(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)
	f.transport.connectErr = errors.New("no such channel")

	if err := f.session.Follow(context.Background(), "member-1", "chan-1"); err == nil {
		t.Fatal("expected follow to fail")
	}
	if got := f.session.State(); got != session.StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
	if f.session.Master() != "" {
		t.Error("master should be cleared after failed follow")
	}

	// The caller may retry.
	f.transport.connectErr = nil
	f.follow(t, "member-1")
	if got := f.session.State(); got != session.StateBound {
		t.Errorf("state after retry = %v, want bound", got)
	}
}

func TestReleaseDuringFollowCancelsIt(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)
	f.transport.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- f.session.Follow(context.Background(), "member-1", "chan-1")
	}()
	waitFor(t, time.Second, func() bool {
		return f.session.State() == session.StateConnecting
	}, "follow never started connecting")

	if err := f.session.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}

	close(f.transport.block)
	if err := <-done; !errors.Is(err, session.ErrFollowCancelled) {
		t.Errorf("follow error = %v, want ErrFollowCancelled", err)
	}

	if got := f.session.State(); got != session.StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
	if f.session.Master() != "" {
		t.Error("master should be cleared")
	}
	waitFor(t, time.Second, func() bool {
		conn := f.transport.lastConn()
		return conn != nil && conn.isClosed()
	}, "connection from the cancelled follow was never torn down")

	// The session stays usable afterwards.
	f.follow(t, "member-2")
	if !f.session.IsMaster("member-2") {
		t.Error("member-2 should be master after a fresh follow")
	}
}

func TestReleaseClearsSessionAndIsIdempotent(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)

	var released []events.ReleaseEvent
	f.bus.SubscribeRelease(func(e events.ReleaseEvent) { released = append(released, e) })

	f.follow(t, "member-1")
	if err := f.session.Permit("member-2"); err != nil {
		t.Fatalf("Permit: %v", err)
	}

	ctx := context.Background()
	if err := f.session.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := f.session.Release(ctx); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	if got := f.session.State(); got != session.StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
	if f.session.Master() != "" {
		t.Error("master should be cleared")
	}
	if f.session.IsPermitted("member-2", nil) {
		t.Error("permitted set should be cleared")
	}
	if len(released) != 1 {
		t.Errorf("release events = %d, want 1", len(released))
	}
}

func TestSpeakWhileIdleNeverSynthesizes(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)

	err := f.session.Speak(context.Background(), session.Message{MemberID: "member-1", Content: "hello"})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := len(f.provider.synthCalls()); got != 0 {
		t.Errorf("synthesis calls = %d, want 0", got)
	}
}

func TestSpeakByMasterSynthesizesOnce(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)
	f.follow(t, "member-1")

	if err := f.session.UpdateMemberSettings(context.Background(), "member-1", settings.MemberSettings{
		Voice: "amy",
		Pitch: 2,
		Speed: 1.5,
	}); err != nil {
		t.Fatalf("UpdateMemberSettings: %v", err)
	}

	if err := f.session.Speak(context.Background(), session.Message{MemberID: "member-1", Content: "hello"}); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return len(f.provider.synthCalls()) == 1
	}, "synthesis never happened")

	call := f.provider.synthCalls()[0]
	if call.text != "hello" {
		t.Errorf("synthesized text = %q, want %q", call.text, "hello")
	}
	if call.opts.Voice.ID != "v1" {
		t.Errorf("voice = %q, want v1 (alias amy)", call.opts.Voice.ID)
	}
	if call.opts.Pitch != 2 || call.opts.Speed != 1.5 {
		t.Errorf("opts = %+v, want pitch 2 speed 1.5", call.opts)
	}
}

func TestSpeakDropsUnqualifiedMessages(t *testing.T) {
	tests := []struct {
		name    string
		member  string
		content string
		setup   func(t *testing.T, f *fixture)
	}{
		{
			name:    "unpermitted author",
			member:  "stranger",
			content: "hello",
		},
		{
			name:    "blank content",
			member:  "member-1",
			content: "   \n  ",
		},
		{
			name:    "literal block",
			member:  "member-1",
			content: "```code```",
		},
		{
			name:    "muted author",
			member:  "member-1",
			content: "hello",
			setup: func(t *testing.T, f *fixture) {
				err := f.session.UpdateMemberSettings(context.Background(), "member-1", settings.MemberSettings{Muted: true})
				if err != nil {
					t.Fatalf("UpdateMemberSettings: %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, session.Config{}, nil)
			f.follow(t, "member-1")
			if tt.setup != nil {
				tt.setup(t, f)
			}

			err := f.session.Speak(context.Background(), session.Message{MemberID: tt.member, Content: tt.content})
			if err != nil {
				t.Fatalf("Speak: %v", err)
			}

			time.Sleep(50 * time.Millisecond)
			if got := len(f.provider.synthCalls()); got != 0 {
				t.Errorf("synthesis calls = %d, want 0", got)
			}
		})
	}
}

func TestSpeakPermittedViaRole(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)
	f.follow(t, "member-1")
	if err := f.session.Permit("role-dj"); err != nil {
		t.Fatalf("Permit: %v", err)
	}

	msg := session.Message{MemberID: "member-2", Roles: []string{"role-dj"}, Content: "hi there"}
	if err := f.session.Speak(context.Background(), msg); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return len(f.provider.synthCalls()) == 1
	}, "role-permitted member was not spoken")
}

func TestSpeakTranslates(t *testing.T) {
	translator := translateFunc(func(ctx context.Context, text, target string) (string, error) {
		if target != "es" {
			t.Errorf("target = %q, want es", target)
		}
		return "hola", nil
	})

	f := newFixture(t, session.Config{}, translator)
	f.follow(t, "member-1")
	err := f.session.UpdateMemberSettings(context.Background(), "member-1", settings.MemberSettings{TranslateLanguage: "es"})
	if err != nil {
		t.Fatalf("UpdateMemberSettings: %v", err)
	}

	if err := f.session.Speak(context.Background(), session.Message{MemberID: "member-1", Content: "hello"}); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		calls := f.provider.synthCalls()
		return len(calls) == 1 && calls[0].text == "hola"
	}, "translated text was not synthesized")
}

func TestSpeakDropsOnTranslationFailure(t *testing.T) {
	translator := translateFunc(func(ctx context.Context, text, target string) (string, error) {
		return "", errors.New("quota exceeded")
	})

	f := newFixture(t, session.Config{}, translator)
	f.follow(t, "member-1")
	err := f.session.UpdateMemberSettings(context.Background(), "member-1", settings.MemberSettings{TranslateLanguage: "es"})
	if err != nil {
		t.Fatalf("UpdateMemberSettings: %v", err)
	}

	if err := f.session.Speak(context.Background(), session.Message{MemberID: "member-1", Content: "hello"}); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := len(f.provider.synthCalls()); got != 0 {
		t.Errorf("synthesis calls = %d, want 0 after translation failure", got)
	}
}

func TestTalkWhileIdleIsNoop(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)

	if err := f.session.Talk(context.Background(), "announcement"); err != nil {
		t.Fatalf("Talk: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := len(f.provider.synthCalls()); got != 0 {
		t.Errorf("synthesis calls = %d, want 0", got)
	}
}

func TestGenuineDisconnectReleasesOnce(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)

	var mu sync.Mutex
	var released []events.ReleaseEvent
	f.bus.SubscribeRelease(func(e events.ReleaseEvent) {
		mu.Lock()
		released = append(released, e)
		mu.Unlock()
	})

	f.follow(t, "member-1")
	conn := f.transport.lastConn()

	conn.states <- voiceconn.StateDisconnected

	waitFor(t, time.Second, func() bool {
		return f.session.State() == session.StateIdle
	}, "session never released after genuine disconnect")

	if f.session.Master() != "" {
		t.Error("master should be cleared")
	}
	if f.session.IsPermitted("member-1", nil) {
		t.Error("permitted set should be cleared")
	}

	time.Sleep(2 * testWindow)
	mu.Lock()
	defer mu.Unlock()
	if len(released) != 1 {
		t.Errorf("release events = %d, want exactly 1", len(released))
	}
}

func TestTransientDisconnectKeepsSession(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)
	f.follow(t, "member-1")
	conn := f.transport.lastConn()

	// A disconnect immediately followed by reconnect activity is benign.
	conn.states <- voiceconn.StateDisconnected
	conn.states <- voiceconn.StateReconnecting
	conn.states <- voiceconn.StateConnected

	time.Sleep(3 * testWindow)
	if got := f.session.State(); got != session.StateBound {
		t.Errorf("state = %v, want bound after transient disconnect", got)
	}
	if !f.session.IsMaster("member-1") {
		t.Error("master should survive a transient disconnect")
	}
	if !f.session.IsPermitted("member-1", nil) {
		t.Error("permitted set should survive a transient disconnect")
	}
}

func TestNeglectWarnsThenReleases(t *testing.T) {
	cfg := session.Config{
		NeglectTimeout:  60 * time.Millisecond,
		NeglectMessages: []string{"time to go"},
		GracePeriod:     10 * time.Millisecond,
	}
	f := newFixture(t, cfg, nil)

	var mu sync.Mutex
	var released []events.ReleaseEvent
	f.bus.SubscribeRelease(func(e events.ReleaseEvent) {
		mu.Lock()
		released = append(released, e)
		mu.Unlock()
	})

	f.follow(t, "member-1")

	waitFor(t, time.Second, func() bool {
		return len(f.provider.synthCalls()) == 1
	}, "warning utterance was never synthesized")
	waitFor(t, time.Second, func() bool {
		return f.session.State() == session.StateIdle
	}, "neglected session never released")

	calls := f.provider.synthCalls()
	if len(calls) != 1 || calls[0].text != "time to go" {
		t.Errorf("synthesis calls = %v, want one warning utterance", calls)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(released) != 1 || released[0].Reason != "neglect" {
		t.Errorf("release events = %v, want one with reason neglect", released)
	}
}

func TestAnnouncementsNotCountedAsDeliveries(t *testing.T) {
	cfg := session.Config{
		NeglectTimeout:  60 * time.Millisecond,
		NeglectMessages: []string{"time to go"},
		GracePeriod:     10 * time.Millisecond,
	}
	f := newFixture(t, cfg, nil)

	var mu sync.Mutex
	var delivered []events.MessageDeliveredEvent
	f.bus.SubscribeMessageDelivered(func(e events.MessageDeliveredEvent) {
		mu.Lock()
		delivered = append(delivered, e)
		mu.Unlock()
	})

	f.follow(t, "member-1")
	if err := f.session.Speak(context.Background(), session.Message{MemberID: "member-1", Content: "hello"}); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 1
	}, "spoken message was never reported delivered")

	// Let the neglect warning play and the session release itself.
	waitFor(t, time.Second, func() bool {
		return len(f.provider.synthCalls()) == 2
	}, "neglect warning was never synthesized")
	waitFor(t, time.Second, func() bool {
		return f.session.State() == session.StateIdle
	}, "neglected session never released")

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 {
		t.Errorf("delivery events = %d, want 1: announcements do not count", len(delivered))
	}
	if delivered[0].MemberID != "member-1" || delivered[0].Characters != len("hello") {
		t.Errorf("delivery event = %+v, want member-1 with %d characters", delivered[0], len("hello"))
	}
}

func TestActivityPushesNeglectOut(t *testing.T) {
	cfg := session.Config{
		NeglectTimeout:  80 * time.Millisecond,
		NeglectMessages: []string{"bye"},
		GracePeriod:     5 * time.Millisecond,
	}
	f := newFixture(t, cfg, nil)
	f.follow(t, "member-1")

	// Keep talking just before the deadline; the session must stay bound.
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		err := f.session.Speak(context.Background(), session.Message{MemberID: "member-1", Content: "still here"})
		if err != nil {
			t.Fatalf("Speak: %v", err)
		}
	}
	if got := f.session.State(); got != session.StateBound {
		t.Fatalf("state = %v, want bound while active", got)
	}

	waitFor(t, time.Second, func() bool {
		return f.session.State() == session.StateIdle
	}, "session never released after activity stopped")
}

func TestSetMasterTransfersControl(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)

	if err := f.session.SetMaster("member-2"); !errors.Is(err, session.ErrNotBound) {
		t.Errorf("SetMaster on idle session = %v, want ErrNotBound", err)
	}

	f.follow(t, "member-1")
	if err := f.session.SetMaster("member-2"); err != nil {
		t.Fatalf("SetMaster: %v", err)
	}

	if !f.session.IsMaster("member-2") {
		t.Error("member-2 should be master after transfer")
	}
	if f.session.IsMaster("member-1") {
		t.Error("member-1 should no longer be master")
	}
	if !f.session.IsPermitted("member-2", nil) {
		t.Error("new master should be permitted")
	}
	if !f.session.IsPermitted("member-1", nil) {
		t.Error("old master keeps its permit")
	}
}

func TestDisposeRejectsFutureFollows(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)
	f.follow(t, "member-1")

	if err := f.session.Dispose(context.Background()); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if got := f.session.State(); got != session.StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
	if err := f.session.Follow(context.Background(), "member-1", "chan-1"); !errors.Is(err, session.ErrDisposed) {
		t.Errorf("Follow after dispose = %v, want ErrDisposed", err)
	}
}

func TestMemberSettingsRoundTrip(t *testing.T) {
	f := newFixture(t, session.Config{}, nil)
	ctx := context.Background()

	want := settings.MemberSettings{Voice: "amy", Language: "en-US", Pitch: -3, Speed: 0.75}
	if err := f.session.UpdateMemberSettings(ctx, "member-1", want); err != nil {
		t.Fatalf("UpdateMemberSettings: %v", err)
	}

	got, err := f.session.MemberSettings(ctx, "member-1")
	if err != nil {
		t.Fatalf("MemberSettings: %v", err)
	}
	if got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}

	if err := f.session.ResetMemberSettings(ctx, "member-1"); err != nil {
		t.Fatalf("ResetMemberSettings: %v", err)
	}
	got, err = f.session.MemberSettings(ctx, "member-1")
	if err != nil {
		t.Fatalf("MemberSettings: %v", err)
	}
	if got != (settings.MemberSettings{}) {
		t.Errorf("settings after reset = %+v, want zero", got)
	}
}
