// Package proto implements the client side of the NovaGrid wire protocol:
// length-prefixed frames carrying MessagePack bodies, plus the handful of
// primitives the data operations are built from.
package proto

import (
	"bytes"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ExtUUID is the MessagePack extension type id for UUID values
// (16 bytes, big-endian).
const ExtUUID = 3

// Writer builds a single request body. It writes MessagePack values into
// an internal buffer; the finished body goes out as one frame.
type Writer struct {
	buf bytes.Buffer
	enc *msgpack.Encoder
}

func NewWriter() *Writer {
	w := &Writer{}
	w.enc = msgpack.NewEncoder(&w.buf)
	return w
}

// Bytes returns the body accumulated so far.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) WriteInt32(v int32) error {
	return w.enc.EncodeInt(int64(v))
}

func (w *Writer) WriteInt64(v int64) error {
	return w.enc.EncodeInt(v)
}

func (w *Writer) WriteBool(v bool) error {
	return w.enc.EncodeBool(v)
}

func (w *Writer) WriteString(v string) error {
	return w.enc.EncodeString(v)
}

func (w *Writer) WriteNil() error {
	return w.enc.EncodeNil()
}

// WriteUUID writes v as a MessagePack extension value of type ExtUUID.
func (w *Writer) WriteUUID(v uuid.UUID) error {
	if err := w.enc.EncodeExtHeader(ExtUUID, 16); err != nil {
		return err
	}
	// The encoder writes straight through to the buffer, so the payload
	// can follow the header directly.
	_, err := w.buf.Write(v[:])
	return err
}

func (w *Writer) WriteMapLen(n int) error {
	return w.enc.EncodeMapLen(n)
}

func (w *Writer) WriteArrayLen(n int) error {
	return w.enc.EncodeArrayLen(n)
}

// WriteBitSet writes a bit vector as a binary blob.
func (w *Writer) WriteBitSet(bits []byte) error {
	return w.enc.EncodeBytes(bits)
}

// WriteBinary writes an opaque byte blob.
func (w *Writer) WriteBinary(data []byte) error {
	return w.enc.EncodeBytes(data)
}

// WriteRaw appends already-encoded bytes to the body.
func (w *Writer) WriteRaw(data []byte) error {
	_, err := w.buf.Write(data)
	return err
}

// WriteFrameTo frames the accumulated body and writes it to out.
func (w *Writer) WriteFrameTo(out io.Writer) error {
	if w.buf.Len() == 0 {
		return fmt.Errorf("proto: nothing to send")
	}
	return WriteFrame(out, w.buf.Bytes())
}
