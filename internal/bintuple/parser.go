package bintuple

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/tuannm99/novagrid/internal/bx"
)

// Parser walks the fields of one tuple in order.
type Parser struct {
	count     int
	data      []byte
	nulls     []byte
	entrySize int
	tableOff  int
	dataOff   int

	idx     int
	prevEnd int
}

// NewParser validates the tuple header for a tuple of count fields.
func NewParser(count int, data []byte) (*Parser, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("bintuple: empty tuple")
	}
	flags := data[0]
	var entrySize int
	switch flags & 0x03 {
	case 0:
		entrySize = 1
	case 1:
		entrySize = 2
	case 2:
		entrySize = 4
	default:
		return nil, fmt.Errorf("bintuple: bad offset entry width in flags 0x%02x", flags)
	}

	p := &Parser{count: count, data: data, entrySize: entrySize, tableOff: 1}
	if flags&flagNullMap != 0 {
		n := (count + 7) / 8
		if len(data) < 1+n {
			return nil, fmt.Errorf("bintuple: truncated nullmap")
		}
		p.nulls = data[1 : 1+n]
		p.tableOff = 1 + n
	}
	p.dataOff = p.tableOff + count*entrySize
	if len(data) < p.dataOff {
		return nil, fmt.Errorf("bintuple: truncated offset table")
	}
	return p, nil
}

func (p *Parser) entry(i int) int {
	off := p.tableOff + i*p.entrySize
	switch p.entrySize {
	case 1:
		return int(p.data[off])
	case 2:
		return int(bx.U16At(p.data, off))
	default:
		return int(bx.U32At(p.data, off))
	}
}

// Next returns the next field's payload. present is false for an absent
// field. The returned slice aliases the tuple buffer.
func (p *Parser) Next() (val []byte, present bool, err error) {
	if p.idx >= p.count {
		return nil, false, fmt.Errorf("bintuple: no more fields")
	}
	i := p.idx
	p.idx++

	end := p.entry(i)
	if end < p.prevEnd || p.dataOff+end > len(p.data) {
		return nil, false, fmt.Errorf("bintuple: field %d: bad offset %d", i, end)
	}
	start := p.prevEnd
	p.prevEnd = end

	if p.nulls != nil && (p.nulls[i/8]>>(uint(i)&7))&1 == 1 {
		if end != start {
			return nil, false, fmt.Errorf("bintuple: field %d: absent with payload", i)
		}
		return nil, false, nil
	}
	return p.data[p.dataOff+start : p.dataOff+end], true, nil
}

// --- payload decoders ---
//
// Integers arrive trimmed to 1/2/4/8 bytes; narrower widths sign-extend.

func Int8(b []byte) (int8, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("bintuple: int8 payload of %d bytes", len(b))
	}
	return int8(b[0]), nil
}

func Int16(b []byte) (int16, error) {
	switch len(b) {
	case 1:
		return int16(int8(b[0])), nil
	case 2:
		return bx.I16(b), nil
	}
	return 0, fmt.Errorf("bintuple: int16 payload of %d bytes", len(b))
}

func Int32(b []byte) (int32, error) {
	switch len(b) {
	case 1:
		return int32(int8(b[0])), nil
	case 2:
		return int32(bx.I16(b)), nil
	case 4:
		return bx.I32(b), nil
	}
	return 0, fmt.Errorf("bintuple: int32 payload of %d bytes", len(b))
}

func Int64(b []byte) (int64, error) {
	switch len(b) {
	case 1:
		return int64(int8(b[0])), nil
	case 2:
		return int64(bx.I16(b)), nil
	case 4:
		return int64(bx.I32(b)), nil
	case 8:
		return bx.I64(b), nil
	}
	return 0, fmt.Errorf("bintuple: int64 payload of %d bytes", len(b))
}

func Float32(b []byte) (float32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("bintuple: float32 payload of %d bytes", len(b))
	}
	return math.Float32frombits(bx.U32(b)), nil
}

func Float64(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("bintuple: float64 payload of %d bytes", len(b))
	}
	return math.Float64frombits(bx.U64(b)), nil
}

func UUID(b []byte) (uuid.UUID, error) {
	if len(b) != 16 {
		return uuid.Nil, fmt.Errorf("bintuple: uuid payload of %d bytes", len(b))
	}
	var u uuid.UUID
	copy(u[:], b)
	return u, nil
}

// Bytes copies the payload so the caller does not alias the frame buffer.
func Bytes(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
