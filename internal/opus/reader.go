package opus

import (
	"io"

	"github.com/jonas747/ogg"
)

// FrameSource yields raw Opus packets. Returns io.EOF when exhausted.
type FrameSource interface {
	ReadFrame() ([]byte, error)
}

// PacketReader extracts Opus packets from an OGG container stream.
type PacketReader struct {
	decoder *ogg.PacketDecoder
	skip    int
}

// NewPacketReader returns a PacketReader over an OGG/Opus stream.
// The OpusHead and OpusTags metadata packets are skipped.
func NewPacketReader(r io.Reader) *PacketReader {
	return &PacketReader{
		decoder: ogg.NewPacketDecoder(ogg.NewDecoder(r)),
		skip:    2,
	}
}

// ReadFrame returns the next raw Opus packet. Returns io.EOF at end of stream.
func (p *PacketReader) ReadFrame() ([]byte, error) {
	for {
		packet, _, err := p.decoder.Decode()
		if err != nil {
			return nil, err
		}
		if p.skip > 0 {
			p.skip--
			continue
		}
		return packet, nil
	}
}

var _ FrameSource = (*PacketReader)(nil)
