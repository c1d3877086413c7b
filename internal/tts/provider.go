// Package tts holds the speech-synthesis provider contract and the registry
// that resolves voice selections to a concrete provider.
package tts

import (
	"context"
	"io"
)

// SynthesisOptions shape how a single utterance is rendered.
type SynthesisOptions struct {
	Voice Voice
	// Pitch adjustment in the range [-10, 10]. 0 is the voice default.
	Pitch float64
	// Speed multiplier in the range [0.25, 4]. 1 is the voice default.
	Speed float64
}

// Provider is a text-to-speech backend.
//
// Implementations must be safe for concurrent use; a single provider serves
// every guild session in the process.
type Provider interface {
	// Shortname identifies the provider, e.g. "azure" or "google".
	Shortname() string

	// Enabled reports whether the provider is configured for use.
	// Disabled providers are skipped by the registry without validation.
	Enabled() bool

	// CharLimit is the maximum text length a single synthesis call accepts.
	CharLimit() int

	// Format is the audio format Synthesize emits.
	Format() Format

	// Voices returns the declared voice catalogue. Populated by SelfCheck.
	Voices() []Voice

	// SelfCheck verifies credentials and fetches capability metadata.
	// A failure here is fatal for process startup.
	SelfCheck(ctx context.Context) error

	// Synthesize renders text into an audio stream. The caller owns the
	// returned reader and must close it.
	Synthesize(ctx context.Context, text string, opts SynthesisOptions) (io.ReadCloser, error)
}
