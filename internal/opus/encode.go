package opus

import (
	"io"
	"os/exec"
)

// Encode transcodes arbitrary audio into an OGG/Opus stream via FFmpeg.
// The returned reader must be closed to clean up the FFmpeg process.
// Used when ingesting uploaded sfx clips for storage.
func Encode(r io.Reader) (io.ReadCloser, error) {
	ffmpeg := exec.Command("ffmpeg",
		"-i", "pipe:0",
		"-vn",
		"-map", "0:a",
		"-acodec", "libopus",
		"-f", "ogg",
		"-vbr", "on",
		"-compression_level", "10",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", "64000",
		"-application", "audio",
		"-frame_duration", "20",
		"-packet_loss", "1",
		"-threads", "0",
		"pipe:1",
	)

	ffmpeg.Stdin = r

	stdout, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := ffmpeg.Start(); err != nil {
		return nil, err
	}

	return &encodeCloser{ReadCloser: stdout, cmd: ffmpeg}, nil
}

// encodeCloser wraps the pipe reader and ensures the FFmpeg process is cleaned up.
type encodeCloser struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (e *encodeCloser) Close() error {
	err := e.ReadCloser.Close()
	// Kill FFmpeg if still running (e.g. pipe closed early).
	if e.cmd.Process != nil {
		e.cmd.Process.Kill()
	}
	e.cmd.Wait()
	return err
}
