package proto

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte{0x01, 0x02, 0x03}
	require.NoError(t, WriteFrame(&buf, body))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, body, got)
}

func TestFrame_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, WriteFrame(&buf, nil))

	buf.Write([]byte{0, 0, 0, 0})
	_, err := ReadFrame(&buf)
	require.Error(t, err)
}

func TestFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	_, err := ReadFrame(&buf)
	require.Error(t, err)
}

func TestWriterReader_Primitives(t *testing.T) {
	u := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")

	w := NewWriter()
	require.NoError(t, w.WriteInt32(-7))
	require.NoError(t, w.WriteInt64(1<<40))
	require.NoError(t, w.WriteBool(true))
	require.NoError(t, w.WriteString("grid"))
	require.NoError(t, w.WriteNil())
	require.NoError(t, w.WriteUUID(u))
	require.NoError(t, w.WriteBinary([]byte{9, 8, 7}))

	r := NewReader(w.Bytes())

	i32, err := r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, int32(-7), i32)

	i64, err := r.ReadInt64()
	require.NoError(t, err)
	require.Equal(t, int64(1<<40), i64)

	b, err := r.ReadBool()
	require.NoError(t, err)
	require.True(t, b)

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "grid", s)

	isNil, err := r.TryReadNil()
	require.NoError(t, err)
	require.True(t, isNil)

	gu, err := r.ReadUUID()
	require.NoError(t, err)
	require.Equal(t, u, gu)

	bin, err := r.ReadBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{9, 8, 7}, bin)
}

func TestReader_TryReadNil_NotNil(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteInt32(5))

	r := NewReader(w.Bytes())
	isNil, err := r.TryReadNil()
	require.NoError(t, err)
	require.False(t, isNil)

	// The value is still there.
	v, err := r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, int32(5), v)
}

func TestReader_MapAndArray(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteMapLen(1))
	require.NoError(t, w.WriteInt32(3))
	require.NoError(t, w.WriteArrayLen(2))
	require.NoError(t, w.WriteString("a"))
	require.NoError(t, w.WriteString("b"))

	r := NewReader(w.Bytes())
	n, err := r.ReadMapLen()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	k, err := r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, int32(3), k)

	m, err := r.ReadArrayLen()
	require.NoError(t, err)
	require.Equal(t, 2, m)
}

func TestReader_Remainder(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.WriteInt32(1))
	require.NoError(t, w.WriteString("tail"))
	require.NoError(t, w.WriteBinary([]byte{1, 2, 3, 4}))

	r := NewReader(w.Bytes())
	_, err := r.ReadInt32()
	require.NoError(t, err)

	rest := r.Remainder()

	// The remainder decodes on its own.
	r2 := NewReader(rest)
	s, err := r2.ReadString()
	require.NoError(t, err)
	require.Equal(t, "tail", s)

	bin, err := r2.ReadBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, bin)
}
