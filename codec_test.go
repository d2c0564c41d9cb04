package novagrid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novagrid/internal/proto"
)

func wideSchema() *Schema {
	return &Schema{
		Version:        1,
		KeyColumnCount: 2,
		Columns: []Column{
			{Name: "tiny", Type: TypeInt8, Key: true},
			{Name: "id", Type: TypeInt64, Key: true},
			{Name: "short", Type: TypeInt16, Nullable: true},
			{Name: "num", Type: TypeInt32, Nullable: true},
			{Name: "ratio", Type: TypeFloat, Nullable: true},
			{Name: "score", Type: TypeDouble, Nullable: true},
			{Name: "token", Type: TypeUUID, Nullable: true},
			{Name: "name", Type: TypeString, Nullable: true},
			{Name: "blob", Type: TypeBytes, Nullable: true},
		},
	}
}

// writeRead pushes a record through writeTuple and back through readTuple.
func writeRead(t *testing.T, sch *Schema, rec *Tuple, keyOnly bool) *Tuple {
	t.Helper()
	w := proto.NewWriter()
	require.NoError(t, writeTuple(w, sch, rec, keyOnly))

	r := proto.NewReader(w.Bytes())
	_, err := r.ReadBinary() // no-value bitset, not part of the tuple
	require.NoError(t, err)

	got, err := readTuple(r, sch, keyOnly)
	require.NoError(t, err)
	return got
}

func TestCodec_RoundTripFull(t *testing.T) {
	sch := wideSchema()
	u := uuid.MustParse("a6eef3b4-bd5a-4dee-91ad-7f16a71c0fcd")
	rec := NewTuple().
		Set("tiny", int8(3)).
		Set("id", int64(42)).
		Set("short", int16(-2)).
		Set("num", int32(123456)).
		Set("ratio", float32(0.5)).
		Set("score", 2.75).
		Set("token", u).
		Set("name", "alice").
		Set("blob", []byte{0xDE, 0xAD})

	got := writeRead(t, sch, rec, false)

	require.Equal(t, int8(3), mustGet(t, got, "tiny"))
	require.Equal(t, int64(42), mustGet(t, got, "id"))
	require.Equal(t, int16(-2), mustGet(t, got, "short"))
	require.Equal(t, int32(123456), mustGet(t, got, "num"))
	require.Equal(t, float32(0.5), mustGet(t, got, "ratio"))
	require.Equal(t, 2.75, mustGet(t, got, "score"))
	require.Equal(t, u, mustGet(t, got, "token"))
	require.Equal(t, "alice", mustGet(t, got, "name"))
	require.Equal(t, []byte{0xDE, 0xAD}, mustGet(t, got, "blob"))
}

func mustGet(t *testing.T, rec *Tuple, name string) any {
	t.Helper()
	v, err := rec.Get(name)
	require.NoError(t, err)
	return v
}

func TestCodec_RoundTripSubset(t *testing.T) {
	sch := wideSchema()
	// A sparse record in arbitrary field order.
	rec := NewTuple().
		Set("name", "bob").
		Set("id", int64(7)).
		Set("tiny", int8(1))

	got := writeRead(t, sch, rec, false)

	require.Equal(t, int64(7), mustGet(t, got, "id"))
	require.Equal(t, "bob", mustGet(t, got, "name"))
	// Columns the record did not name come back absent.
	require.False(t, got.Has("num"))
	require.False(t, got.Has("blob"))
}

func TestCodec_KeyOnly(t *testing.T) {
	sch := wideSchema()
	rec := NewTuple().
		Set("tiny", int8(9)).
		Set("id", int64(100)).
		Set("name", "ignored in key-only mode")

	got := writeRead(t, sch, rec, true)

	require.Equal(t, int8(9), mustGet(t, got, "tiny"))
	require.Equal(t, int64(100), mustGet(t, got, "id"))
	require.Equal(t, -1, got.ColumnOrdinal("name"))
}

func TestCodec_NoValueBitset(t *testing.T) {
	sch := wideSchema()
	rec := NewTuple().Set("id", int64(1)).Set("name", "x")

	noValue := make([]byte, 2)
	data, err := packTuple(sch, rec, false, noValue)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	// 9 columns; present: id (1) and name (7). All others omitted.
	for i := 0; i < len(sch.Columns); i++ {
		bit := noValue[i/8]>>(uint(i)&7)&1 == 1
		switch sch.Columns[i].Name {
		case "id", "name":
			require.False(t, bit, "column %d unexpectedly omitted", i)
		default:
			require.True(t, bit, "column %d should be omitted", i)
		}
	}
}

func TestCodec_NullIsNotOmitted(t *testing.T) {
	sch := wideSchema()
	rec := NewTuple().Set("id", int64(1)).Set("name", nil)

	noValue := make([]byte, 2)
	_, err := packTuple(sch, rec, false, noValue)
	require.NoError(t, err)

	// name carries an explicit null: its no-value bit stays clear.
	require.Zero(t, noValue[0]>>7&1)
}

func TestCodec_EmptyStringSurvives(t *testing.T) {
	sch := wideSchema()
	rec := NewTuple().Set("id", int64(1)).Set("tiny", int8(0)).Set("name", "")

	got := writeRead(t, sch, rec, false)
	require.Equal(t, "", mustGet(t, got, "name"))
	require.True(t, got.Has("name"))
}

func TestCodec_TypeMismatch(t *testing.T) {
	sch := wideSchema()
	rec := NewTuple().Set("tiny", int8(1)).Set("id", "not a number")

	w := proto.NewWriter()
	err := writeTuple(w, sch, rec, true)
	var tm *TypeMismatchError
	require.ErrorAs(t, err, &tm)
	require.Equal(t, "id", tm.Column)
	require.Equal(t, "INT64", tm.Expected)
}

func TestCodec_UnsupportedType(t *testing.T) {
	sch := &Schema{
		Version:        1,
		KeyColumnCount: 1,
		Columns:        []Column{{Name: "k", Type: ColumnType(99), Key: true}},
	}
	rec := NewTuple().Set("k", int64(1))

	w := proto.NewWriter()
	err := writeTuple(w, sch, rec, false)
	var ut *UnsupportedTypeError
	require.ErrorAs(t, err, &ut)
	require.Equal(t, int32(99), ut.TypeID)
}

func TestCodec_MergeKeyBack(t *testing.T) {
	sch := wideSchema()
	key := NewTuple().Set("tiny", int8(2)).Set("id", int64(42))

	// Server row: value columns only (columns 2..8).
	w := proto.NewWriter()
	valueCols := sch.Columns[sch.KeyColumnCount:]
	row := NewTuple().Set("name", "alice")
	sub := &Schema{Version: 1, KeyColumnCount: 0, Columns: valueCols}
	require.NoError(t, writeTuple(w, sub, row, false))

	r := proto.NewReader(w.Bytes())
	_, err := r.ReadBinary() // bitset not sent on responses
	require.NoError(t, err)

	got, err := readTupleMerge(r, sch, key)
	require.NoError(t, err)

	// Key columns come from the request key, whatever the payload says.
	require.Equal(t, int8(2), mustGet(t, got, "tiny"))
	require.Equal(t, int64(42), mustGet(t, got, "id"))
	require.Equal(t, "alice", mustGet(t, got, "name"))
	require.False(t, got.Has("blob"))
}
