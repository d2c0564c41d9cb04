// Package bintuple implements the cluster's binary tuple layout: a compact
// encoding of a fixed-arity field sequence where every field payload is
// located through a per-tuple offset table.
//
// Layout:
//
//	[flags u8] [nullmap ceil(n/8) bytes, if flags&flagNullMap]
//	[offset table: n entries, little-endian] [payload]
//
// Flags bits 0..1 hold log2 of the offset entry width (1, 2 or 4 bytes);
// entry i is the cumulative end offset of field i's payload. An absent
// field has its nullmap bit set and a zero-length payload. A present
// zero-length payload (empty string, empty blob) is a value, not absence.
package bintuple

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/tuannm99/novagrid/internal/bx"
)

const flagNullMap = 0x04

// Builder assembles one tuple in two passes: claim every field to compute
// the layout, then append every field in the same order. Errors stick to
// the builder and surface from Build.
type Builder struct {
	count int
	sizes []int
	nulls []byte
	some  bool // any field absent

	claimed  int
	appended int

	entrySize int
	buf       []byte
	tableOff  int
	dataOff   int
	written   int

	err error
}

func NewBuilder(count int) *Builder {
	return &Builder{
		count: count,
		sizes: make([]int, count),
		nulls: make([]byte, (count+7)/8),
	}
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("bintuple: "+format, args...)
	}
}

func (b *Builder) claim(n int) {
	if b.err != nil {
		return
	}
	if b.claimed >= b.count {
		b.fail("claimed more than %d fields", b.count)
		return
	}
	b.sizes[b.claimed] = n
	b.claimed++
}

// ClaimAbsent reserves field slot i with no payload and marks it absent.
func (b *Builder) ClaimAbsent() {
	if b.err != nil {
		return
	}
	i := b.claimed
	b.claim(0)
	if b.err == nil {
		b.nulls[i/8] |= 1 << (uint(i) & 7)
		b.some = true
	}
}

func (b *Builder) ClaimInt8(int8)       { b.claim(1) }
func (b *Builder) ClaimInt16(v int16)   { b.claim(sizeInt(int64(v), 2)) }
func (b *Builder) ClaimInt32(v int32)   { b.claim(sizeInt(int64(v), 4)) }
func (b *Builder) ClaimInt64(v int64)   { b.claim(sizeInt(v, 8)) }
func (b *Builder) ClaimFloat32(float32) { b.claim(4) }
func (b *Builder) ClaimFloat64(float64) { b.claim(8) }
func (b *Builder) ClaimUUID(uuid.UUID)  { b.claim(16) }
func (b *Builder) ClaimString(s string) { b.claim(len(s)) }
func (b *Builder) ClaimBytes(v []byte)  { b.claim(len(v)) }

// Layout freezes the claimed sizes and allocates the output buffer.
func (b *Builder) Layout() {
	if b.err != nil {
		return
	}
	if b.claimed != b.count {
		b.fail("claimed %d of %d fields", b.claimed, b.count)
		return
	}

	total := 0
	for _, n := range b.sizes {
		total += n
	}
	switch {
	case total <= math.MaxUint8:
		b.entrySize = 1
	case total <= math.MaxUint16:
		b.entrySize = 2
	default:
		b.entrySize = 4
	}

	var flags byte
	switch b.entrySize {
	case 1:
		flags = 0
	case 2:
		flags = 1
	case 4:
		flags = 2
	}

	headerLen := 1
	if b.some {
		flags |= flagNullMap
		headerLen += len(b.nulls)
	}
	b.tableOff = headerLen
	b.dataOff = headerLen + b.count*b.entrySize

	b.buf = make([]byte, b.dataOff+total)
	b.buf[0] = flags
	if b.some {
		copy(b.buf[1:], b.nulls)
	}
}

func (b *Builder) append(data []byte, want int) {
	if b.err != nil {
		return
	}
	if b.buf == nil {
		b.fail("append before layout")
		return
	}
	if b.appended >= b.count {
		b.fail("appended more than %d fields", b.count)
		return
	}
	i := b.appended
	if len(data) != b.sizes[i] || len(data) != want {
		b.fail("field %d: claimed %d bytes, appending %d", i, b.sizes[i], len(data))
		return
	}
	copy(b.buf[b.dataOff+b.written:], data)
	b.written += len(data)
	b.putEntry(i, b.written)
	b.appended++
}

func (b *Builder) putEntry(i, end int) {
	off := b.tableOff + i*b.entrySize
	switch b.entrySize {
	case 1:
		b.buf[off] = byte(end)
	case 2:
		bx.PutU16At(b.buf, off, uint16(end))
	case 4:
		bx.PutU32At(b.buf, off, uint32(end))
	}
}

// AppendAbsent emits the zero-length payload claimed by ClaimAbsent.
func (b *Builder) AppendAbsent() { b.append(nil, 0) }

func (b *Builder) AppendInt8(v int8) {
	b.append([]byte{byte(v)}, 1)
}

func (b *Builder) AppendInt16(v int16) {
	b.append(trimInt(int64(v), sizeInt(int64(v), 2)), sizeInt(int64(v), 2))
}

func (b *Builder) AppendInt32(v int32) {
	b.append(trimInt(int64(v), sizeInt(int64(v), 4)), sizeInt(int64(v), 4))
}

func (b *Builder) AppendInt64(v int64) {
	b.append(trimInt(v, sizeInt(v, 8)), sizeInt(v, 8))
}

func (b *Builder) AppendFloat32(v float32) {
	var p [4]byte
	bx.PutU32(p[:], math.Float32bits(v))
	b.append(p[:], 4)
}

func (b *Builder) AppendFloat64(v float64) {
	var p [8]byte
	bx.PutU64(p[:], math.Float64bits(v))
	b.append(p[:], 8)
}

func (b *Builder) AppendUUID(v uuid.UUID) {
	b.append(v[:], 16)
}

func (b *Builder) AppendString(s string) {
	b.append([]byte(s), len(s))
}

func (b *Builder) AppendBytes(v []byte) {
	b.append(v, len(v))
}

// Build returns the finished tuple bytes, or the first error recorded by
// any claim/append call.
func (b *Builder) Build() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.appended != b.count {
		return nil, fmt.Errorf("bintuple: appended %d of %d fields", b.appended, b.count)
	}
	return b.buf, nil
}

// sizeInt returns the shortest of 1/2/4/8 bytes that round-trips v,
// capped at max.
func sizeInt(v int64, max int) int {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return 1
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return min(2, max)
	case v >= math.MinInt32 && v <= math.MaxInt32:
		return min(4, max)
	default:
		return min(8, max)
	}
}

func trimInt(v int64, n int) []byte {
	var p [8]byte
	bx.PutU64(p[:], uint64(v))
	return p[:n]
}
