// Package sfx manages the sound effect clips that members can trigger with
// audio emoji. Clips are stored as OGG/Opus blobs so playback can hand the
// stream straight to the voice connection without re-encoding.
package sfx

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/glizzus/talkward/internal/datalayer"
	"github.com/glizzus/talkward/internal/opus"
)

// Clip names are keyboard-typeable identifiers like "airhorn" or "sad_trombone".
var validClipName = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

type InvalidClipNameError struct {
	Name string
}

func (e *InvalidClipNameError) Error() string {
	return fmt.Sprintf("sfx: invalid clip name %q", e.Name)
}

var _ error = (*InvalidClipNameError)(nil)

// Library stores and retrieves sound effect clips for a single bot
// installation. Clips are global, not per guild.
type Library struct {
	storage datalayer.BlobStorage
}

func NewLibrary(storage datalayer.BlobStorage) *Library {
	return &Library{storage: storage}
}

func clipKey(name string) string {
	return "clips/" + name + ".ogg"
}

// Add transcodes the given audio to OGG/Opus and stores it under name.
// The input may be any container ffmpeg understands.
func (l *Library) Add(ctx context.Context, name string, audio io.Reader) error {
	if !validClipName.MatchString(name) {
		return &InvalidClipNameError{Name: name}
	}

	encoded, err := opus.Encode(audio)
	if err != nil {
		return fmt.Errorf("failed to transcode clip %q: %w", name, err)
	}
	defer encoded.Close()

	// Size is unknown after transcoding, so stream with -1 and let the
	// client fall back to multipart upload.
	err = l.storage.Put(ctx, clipKey(name), encoded, datalayer.PutOptions{
		Size:        -1,
		ContentType: "audio/ogg",
	})
	if err != nil {
		return fmt.Errorf("failed to store clip %q: %w", name, err)
	}
	return nil
}

// Open returns the stored OGG/Opus stream for name. The caller owns the
// returned reader.
func (l *Library) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !validClipName.MatchString(name) {
		return nil, &InvalidClipNameError{Name: name}
	}
	rc, err := l.storage.Get(ctx, clipKey(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open clip %q: %w", name, err)
	}
	return rc, nil
}
