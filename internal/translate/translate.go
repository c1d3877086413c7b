// Package translate converts member messages into the member's configured
// translate language before synthesis. Translation is opt-in per member and
// a failed translation drops the message rather than speaking the original.
package translate

import (
	"context"
)

// Translator turns text into the target language. target is a translate
// code like "es" or "pt-BR".
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// Noop passes text through unchanged. Used when translation is disabled.
type Noop struct{}

func (Noop) Translate(ctx context.Context, text, target string) (string, error) {
	return text, nil
}

var _ Translator = Noop{}
