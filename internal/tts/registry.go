package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/glizzus/talkward/internal/textproc"
	"github.com/glizzus/talkward/internal/util"
	"golang.org/x/time/rate"
)

// ErrNoCapableProvider indicates no enabled provider can satisfy a selector.
// Callers drop the message; this is never a crash.
var ErrNoCapableProvider = errors.New("no capable provider for voice selection")

// Selector describes a requested voice: either an explicit voice name/alias,
// or a language+gender pair. Provider optionally pins the search to one
// provider. Seed makes the language+gender pick deterministic for a given
// caller (typically guildID:memberID).
type Selector struct {
	Provider string
	Voice    string
	Language string
	Gender   Gender
	Seed     string
}

// Match is a resolved selection.
type Match struct {
	Provider Provider
	Voice    Voice
}

// Registry holds the enabled providers in registration order and resolves
// voice selections against their catalogues. It also rate-limits synthesis
// per provider so a burst of chat cannot hammer a vendor API.
type Registry struct {
	providers []Provider
	byName    map[string]Provider
	limiters  map[string]*rate.Limiter
}

// NewRegistry validates every enabled provider and builds the registry.
// Provider order is preserved; it decides resolution precedence.
//
// A provider that fails its self-check or violates the voice contract makes
// this return an error. The process must not start in that case.
func NewRegistry(ctx context.Context, charsPerSecond map[string]int, providers ...Provider) (*Registry, error) {
	r := &Registry{
		byName:   make(map[string]Provider),
		limiters: make(map[string]*rate.Limiter),
	}

	for _, p := range providers {
		if !p.Enabled() {
			continue
		}
		if err := p.SelfCheck(ctx); err != nil {
			return nil, fmt.Errorf("provider %s failed self-check: %w", p.Shortname(), err)
		}
		if err := CheckProviderContract(p); err != nil {
			return nil, fmt.Errorf("provider contract violation: %w", err)
		}
		if _, dup := r.byName[p.Shortname()]; dup {
			return nil, fmt.Errorf("duplicate provider shortname %q", p.Shortname())
		}

		r.providers = append(r.providers, p)
		r.byName[p.Shortname()] = p

		cps := charsPerSecond[p.Shortname()]
		if cps <= 0 {
			r.limiters[p.Shortname()] = rate.NewLimiter(rate.Inf, 0)
		} else {
			r.limiters[p.Shortname()] = rate.NewLimiter(rate.Limit(cps), p.CharLimit())
		}
	}

	if len(r.providers) == 0 {
		return nil, errors.New("no enabled providers")
	}
	return r, nil
}

// Default returns the first enabled provider.
func (r *Registry) Default() Provider {
	return r.providers[0]
}

// Voices returns every enabled provider's catalogue in registration order.
func (r *Registry) Voices() []Voice {
	var out []Voice
	for _, p := range r.providers {
		out = append(out, p.Voices()...)
	}
	return out
}

// Provider looks up an enabled provider by shortname.
func (r *Registry) Provider(shortname string) (Provider, bool) {
	p, ok := r.byName[shortname]
	return p, ok
}

// Resolve maps a selector to a provider and voice.
//
// If the selector pins a provider, only that provider's catalogue is
// searched. Otherwise providers are scanned in registration order and the
// first capable one wins. An explicit voice matches on ID or alias,
// case-insensitively; a language+gender pair picks a seeded pseudo-random
// voice from the candidates.
func (r *Registry) Resolve(sel Selector) (Match, error) {
	scan := r.providers
	if sel.Provider != "" {
		p, ok := r.byName[sel.Provider]
		if !ok {
			return Match{}, fmt.Errorf("%w: provider %q not enabled", ErrNoCapableProvider, sel.Provider)
		}
		scan = []Provider{p}
	}

	if sel.Voice != "" {
		for _, p := range scan {
			if v, ok := findVoice(p, sel.Voice); ok {
				return Match{Provider: p, Voice: v}, nil
			}
		}
		return Match{}, fmt.Errorf("%w: voice %q", ErrNoCapableProvider, sel.Voice)
	}

	for _, p := range scan {
		candidates := voicesFor(p, sel.Language, sel.Gender)
		if len(candidates) == 0 {
			continue
		}
		idx := int(util.HashString(sel.Seed)) % len(candidates)
		return Match{Provider: p, Voice: candidates[idx]}, nil
	}
	return Match{}, fmt.Errorf("%w: language %q gender %q", ErrNoCapableProvider, sel.Language, sel.Gender)
}

// Synthesize renders text through the matched provider, honoring the
// provider's char limit and rate limit.
func (r *Registry) Synthesize(ctx context.Context, match Match, text string, opts SynthesisOptions) (io.ReadCloser, error) {
	p := match.Provider
	if limit := p.CharLimit(); limit > 0 {
		text = textproc.Truncate(text, limit)
	}

	if limiter, ok := r.limiters[p.Shortname()]; ok {
		n := len(text)
		if n > limiter.Burst() && limiter.Burst() > 0 {
			n = limiter.Burst()
		}
		if err := limiter.WaitN(ctx, n); err != nil {
			return nil, fmt.Errorf("rate limit wait for provider %s: %w", p.Shortname(), err)
		}
	}

	opts.Voice = match.Voice
	return p.Synthesize(ctx, text, opts)
}

func findVoice(p Provider, name string) (Voice, bool) {
	name = strings.ToLower(name)
	for _, v := range p.Voices() {
		if strings.ToLower(v.ID) == name || strings.ToLower(v.Alias) == name {
			return v, true
		}
	}
	return Voice{}, false
}

func voicesFor(p Provider, language string, gender Gender) []Voice {
	var out []Voice
	for _, v := range p.Voices() {
		if language != "" && !strings.EqualFold(langBase(v.Language), langBase(language)) {
			continue
		}
		if gender != "" && v.Gender != gender {
			continue
		}
		out = append(out, v)
	}
	return out
}

// langBase reduces a locale to its language part: "en-US" -> "en".
func langBase(code string) string {
	if i := strings.IndexAny(code, "-_"); i > 0 {
		return code[:i]
	}
	return code
}
