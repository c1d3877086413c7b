package opus

import (
	"context"
	"errors"
	"io"
)

// Sink accepts Opus frames for playback. The voice connection adapter
// implements this over its send channel.
type Sink interface {
	SendFrame(ctx context.Context, frame []byte) error
}

// Stream reads Opus frames from source and pushes them into sink until the
// source is exhausted or ctx is cancelled. Returns nil on clean EOF.
func Stream(ctx context.Context, source FrameSource, sink Sink) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := source.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}

		if err := sink.SendFrame(ctx, frame); err != nil {
			return err
		}
	}
}
