package generator

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces a new value of type T on each call.
// Used for playback job identifiers.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator is a generator that produces UUIDv4 strings.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

var _ Generator[string] = &UUIDV4Generator{}

// SequenceGenerator produces "prefix-1", "prefix-2", ... and is safe for
// concurrent use. Intended for tests that need stable identifiers.
type SequenceGenerator struct {
	Prefix string
	n      atomic.Int64
}

func (g *SequenceGenerator) Next() (string, error) {
	return fmt.Sprintf("%s-%d", g.Prefix, g.n.Add(1)), nil
}

var _ Generator[string] = (*SequenceGenerator)(nil)
