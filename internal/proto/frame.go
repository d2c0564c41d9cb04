package proto

import (
	"fmt"
	"io"

	"github.com/tuannm99/novagrid/internal/bx"
)

const (
	// MaxFrameSize limits memory usage on malformed/hostile input.
	MaxFrameSize = 8 << 20 // 8 MiB
)

// ReadFrame reads a single length-prefixed MessagePack frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := bx.U32BE(hdr[:])
	if n == 0 {
		return nil, fmt.Errorf("proto: empty frame")
	}
	if n > MaxFrameSize {
		return nil, fmt.Errorf("proto: frame too large: %d > %d", n, MaxFrameSize)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes body as a length-prefixed frame.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) == 0 {
		return fmt.Errorf("proto: empty body")
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("proto: body too large: %d > %d", len(body), MaxFrameSize)
	}

	var hdr [4]byte
	bx.PutU32BE(hdr[:], uint32(len(body)))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}
