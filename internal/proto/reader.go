package proto

import (
	"bytes"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Reader decodes a single response body. The whole frame is in memory, so
// a consumer that has to stop mid-body (for example to fetch a schema it
// does not know yet) can grab the undecoded Remainder and resume later.
type Reader struct {
	dec *msgpack.Decoder
	br  *bytes.Reader
}

func NewReader(data []byte) *Reader {
	br := bytes.NewReader(data)
	return &Reader{dec: msgpack.NewDecoder(br), br: br}
}

func (r *Reader) ReadInt32() (int32, error) {
	return r.dec.DecodeInt32()
}

func (r *Reader) ReadInt64() (int64, error) {
	return r.dec.DecodeInt64()
}

func (r *Reader) ReadBool() (bool, error) {
	return r.dec.DecodeBool()
}

func (r *Reader) ReadString() (string, error) {
	return r.dec.DecodeString()
}

// ReadBinary reads a binary blob.
func (r *Reader) ReadBinary() ([]byte, error) {
	return r.dec.DecodeBytes()
}

// TryReadNil consumes a nil value if one is next and reports whether it did.
func (r *Reader) TryReadNil() (bool, error) {
	c, err := r.dec.PeekCode()
	if err != nil {
		return false, err
	}
	if c != msgpcode.Nil {
		return false, nil
	}
	if err := r.dec.DecodeNil(); err != nil {
		return false, err
	}
	return true, nil
}

// ReadUUID reads a MessagePack extension value of type ExtUUID.
func (r *Reader) ReadUUID() (uuid.UUID, error) {
	id, n, err := r.dec.DecodeExtHeader()
	if err != nil {
		return uuid.Nil, err
	}
	if id != ExtUUID || n != 16 {
		return uuid.Nil, fmt.Errorf("proto: unexpected extension: type %d len %d", id, n)
	}
	var u uuid.UUID
	if _, err := io.ReadFull(r.dec.Buffered(), u[:]); err != nil {
		return uuid.Nil, err
	}
	return u, nil
}

func (r *Reader) ReadMapLen() (int, error) {
	return r.dec.DecodeMapLen()
}

func (r *Reader) ReadArrayLen() (int, error) {
	return r.dec.DecodeArrayLen()
}

// Remainder returns all bytes not yet consumed by the decoder. The Reader
// must not be used afterwards.
func (r *Reader) Remainder() []byte {
	buffered, err := io.ReadAll(r.dec.Buffered())
	if err != nil {
		return nil
	}
	rest, err := io.ReadAll(r.br)
	if err != nil {
		return buffered
	}
	return append(buffered, rest...)
}
