package novagrid

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/tuannm99/novagrid/internal/bintuple"
	"github.com/tuannm99/novagrid/internal/proto"
)

// The codec packs user records into binary tuples and unpacks server rows
// back into records. The server tells an intentionally omitted field apart
// from a value by the no-value bitset that travels next to the tuple: bit
// i set means the caller said nothing about column i. A null value sets
// the tuple's own nullmap bit instead, and a value that happens to encode
// to zero bytes is neither.

func claimColumn(b *bintuple.Builder, col Column, v any) error {
	switch col.Type {
	case TypeInt8:
		x, err := intColumn[int8](col, v, math.MinInt8, math.MaxInt8)
		if err != nil {
			return err
		}
		b.ClaimInt8(x)
	case TypeInt16:
		x, err := intColumn[int16](col, v, math.MinInt16, math.MaxInt16)
		if err != nil {
			return err
		}
		b.ClaimInt16(x)
	case TypeInt32:
		x, err := intColumn[int32](col, v, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		b.ClaimInt32(x)
	case TypeInt64:
		x, err := intColumn[int64](col, v, math.MinInt64, math.MaxInt64)
		if err != nil {
			return err
		}
		b.ClaimInt64(x)
	case TypeFloat:
		x, err := floatColumn(col, v)
		if err != nil {
			return err
		}
		b.ClaimFloat32(x)
	case TypeDouble:
		x, err := doubleColumn(col, v)
		if err != nil {
			return err
		}
		b.ClaimFloat64(x)
	case TypeUUID:
		x, err := uuidColumn(col, v)
		if err != nil {
			return err
		}
		b.ClaimUUID(x)
	case TypeString:
		x, err := stringColumn(col, v)
		if err != nil {
			return err
		}
		b.ClaimString(x)
	case TypeBytes:
		x, err := bytesColumn(col, v)
		if err != nil {
			return err
		}
		b.ClaimBytes(x)
	default:
		return &UnsupportedTypeError{TypeID: int32(col.Type)}
	}
	return nil
}

func appendColumn(b *bintuple.Builder, col Column, v any) error {
	switch col.Type {
	case TypeInt8:
		x, err := intColumn[int8](col, v, math.MinInt8, math.MaxInt8)
		if err != nil {
			return err
		}
		b.AppendInt8(x)
	case TypeInt16:
		x, err := intColumn[int16](col, v, math.MinInt16, math.MaxInt16)
		if err != nil {
			return err
		}
		b.AppendInt16(x)
	case TypeInt32:
		x, err := intColumn[int32](col, v, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		b.AppendInt32(x)
	case TypeInt64:
		x, err := intColumn[int64](col, v, math.MinInt64, math.MaxInt64)
		if err != nil {
			return err
		}
		b.AppendInt64(x)
	case TypeFloat:
		x, err := floatColumn(col, v)
		if err != nil {
			return err
		}
		b.AppendFloat32(x)
	case TypeDouble:
		x, err := doubleColumn(col, v)
		if err != nil {
			return err
		}
		b.AppendFloat64(x)
	case TypeUUID:
		x, err := uuidColumn(col, v)
		if err != nil {
			return err
		}
		b.AppendUUID(x)
	case TypeString:
		x, err := stringColumn(col, v)
		if err != nil {
			return err
		}
		b.AppendString(x)
	case TypeBytes:
		x, err := bytesColumn(col, v)
		if err != nil {
			return err
		}
		b.AppendBytes(x)
	default:
		return &UnsupportedTypeError{TypeID: int32(col.Type)}
	}
	return nil
}

// readNextColumn consumes one field from the parser and decodes it per the
// column type. Null and elided fields come back as Absent.
func readNextColumn(p *bintuple.Parser, col Column) (any, error) {
	raw, present, err := p.Next()
	if err != nil {
		return nil, err
	}
	if !present {
		return Absent, nil
	}

	switch col.Type {
	case TypeInt8:
		return bintuple.Int8(raw)
	case TypeInt16:
		return bintuple.Int16(raw)
	case TypeInt32:
		return bintuple.Int32(raw)
	case TypeInt64:
		return bintuple.Int64(raw)
	case TypeFloat:
		return bintuple.Float32(raw)
	case TypeDouble:
		return bintuple.Float64(raw)
	case TypeUUID:
		return bintuple.UUID(raw)
	case TypeString:
		return string(raw), nil
	case TypeBytes:
		return bintuple.Bytes(raw), nil
	}
	return nil, &UnsupportedTypeError{TypeID: int32(col.Type)}
}

// packTuple serializes rec against sch. With keyOnly only the key
// projection is packed. Bits of noValue are set for columns rec does not
// name; noValue must span at least the packed column count.
func packTuple(sch *Schema, rec *Tuple, keyOnly bool, noValue []byte) ([]byte, error) {
	count := len(sch.Columns)
	if keyOnly {
		count = sch.KeyColumnCount
	}
	b := bintuple.NewBuilder(count)

	for i := 0; i < count; i++ {
		col := sch.Columns[i]
		v, omitted := fieldValue(rec, col.Name)
		switch {
		case omitted, v == nil:
			b.ClaimAbsent()
		default:
			if err := claimColumn(b, col, v); err != nil {
				return nil, err
			}
		}
	}

	b.Layout()

	for i := 0; i < count; i++ {
		col := sch.Columns[i]
		v, omitted := fieldValue(rec, col.Name)
		switch {
		case omitted:
			b.AppendAbsent()
			noValue[i/8] |= 1 << (uint(i) & 7)
		case v == nil:
			b.AppendAbsent()
		default:
			if err := appendColumn(b, col, v); err != nil {
				return nil, err
			}
		}
	}

	return b.Build()
}

// fieldValue reports the record's value for the column, with omitted true
// when the record says nothing about it.
func fieldValue(rec *Tuple, name string) (v any, omitted bool) {
	i := rec.ColumnOrdinal(name)
	if i < 0 {
		return nil, true
	}
	if !rec.Has(name) {
		return nil, true
	}
	v, _ = rec.GetAt(i)
	return v, false
}

// writeTuple emits the no-value bitset and tuple bytes for one record.
func writeTuple(w *proto.Writer, sch *Schema, rec *Tuple, keyOnly bool) error {
	count := len(sch.Columns)
	if keyOnly {
		count = sch.KeyColumnCount
	}
	noValue := make([]byte, (count+7)/8)

	data, err := packTuple(sch, rec, keyOnly, noValue)
	if err != nil {
		return err
	}
	if err := w.WriteBitSet(noValue); err != nil {
		return err
	}
	return w.WriteBinary(data)
}

func writeTuples(w *proto.Writer, sch *Schema, recs []*Tuple, keyOnly bool) error {
	if err := w.WriteInt32(int32(len(recs))); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := writeTuple(w, sch, rec, keyOnly); err != nil {
			return err
		}
	}
	return nil
}

// readTuple decodes one row. With keyOnly only the key projection is read.
func readTuple(r *proto.Reader, sch *Schema, keyOnly bool) (*Tuple, error) {
	data, err := r.ReadBinary()
	if err != nil {
		return nil, protocolf(err, "row bytes")
	}

	count := len(sch.Columns)
	if keyOnly {
		count = sch.KeyColumnCount
	}
	p, err := bintuple.NewParser(count, data)
	if err != nil {
		return nil, protocolf(err, "row")
	}

	res := NewTuple()
	for i := 0; i < count; i++ {
		col := sch.Columns[i]
		v, err := readNextColumn(p, col)
		if err != nil {
			return nil, protocolf(err, "column %q", col.Name)
		}
		res.Set(col.Name, v)
	}
	return res, nil
}

// readTupleMerge decodes a row whose key fields the server elided: value
// columns come from the wire, key columns straight from the request key.
func readTupleMerge(r *proto.Reader, sch *Schema, key *Tuple) (*Tuple, error) {
	data, err := r.ReadBinary()
	if err != nil {
		return nil, protocolf(err, "row bytes")
	}

	p, err := bintuple.NewParser(len(sch.Columns)-sch.KeyColumnCount, data)
	if err != nil {
		return nil, protocolf(err, "row")
	}

	res := NewTuple()
	for i, col := range sch.Columns {
		if i < sch.KeyColumnCount {
			v, err := key.Get(col.Name)
			if err != nil {
				return nil, fmt.Errorf("novagrid: key column %q: %w", col.Name, err)
			}
			res.Set(col.Name, v)
			continue
		}
		v, err := readNextColumn(p, col)
		if err != nil {
			return nil, protocolf(err, "column %q", col.Name)
		}
		res.Set(col.Name, v)
	}
	return res, nil
}

// readTuples decodes a row list. A nil schema means the response carried
// no rows.
func readTuples(r *proto.Reader, sch *Schema, keyOnly bool) ([]*Tuple, error) {
	if sch == nil {
		return nil, nil
	}
	count, err := r.ReadInt32()
	if err != nil {
		return nil, protocolf(err, "row count")
	}
	res := make([]*Tuple, 0, count)
	for i := int32(0); i < count; i++ {
		row, err := readTuple(r, sch, keyOnly)
		if err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, nil
}

// readTuplesOpt decodes a row list where each entry is preceded by an
// exists flag; missing entries come back nil.
func readTuplesOpt(r *proto.Reader, sch *Schema, keyOnly bool) ([]*Tuple, error) {
	if sch == nil {
		return nil, nil
	}
	count, err := r.ReadInt32()
	if err != nil {
		return nil, protocolf(err, "row count")
	}
	res := make([]*Tuple, 0, count)
	for i := int32(0); i < count; i++ {
		exists, err := r.ReadBool()
		if err != nil {
			return nil, protocolf(err, "row %d flag", i)
		}
		if !exists {
			res = append(res, nil)
			continue
		}
		row, err := readTuple(r, sch, keyOnly)
		if err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, nil
}

// --- value coercion against a schema column ---

func intColumn[T int8 | int16 | int32 | int64](col Column, v any, lo, hi int64) (T, error) {
	x, ok := asInt64(v)
	if !ok || x < lo || x > hi {
		return 0, mismatch(col, v)
	}
	return T(x), nil
}

func floatColumn(col Column, v any) (float32, error) {
	switch x := v.(type) {
	case float32:
		return x, nil
	case float64:
		return float32(x), nil
	}
	return 0, mismatch(col, v)
}

func doubleColumn(col Column, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	}
	return 0, mismatch(col, v)
}

func uuidColumn(col Column, v any) (uuid.UUID, error) {
	x, ok := v.(uuid.UUID)
	if !ok {
		return uuid.Nil, mismatch(col, v)
	}
	return x, nil
}

func stringColumn(col Column, v any) (string, error) {
	x, ok := v.(string)
	if !ok {
		return "", mismatch(col, v)
	}
	return x, nil
}

func bytesColumn(col Column, v any) ([]byte, error) {
	x, ok := v.([]byte)
	if !ok {
		return nil, mismatch(col, v)
	}
	return x, nil
}

func mismatch(col Column, v any) error {
	return &TypeMismatchError{
		Column:   col.Name,
		Expected: col.Type.String(),
		Actual:   fmt.Sprintf("%T", v),
	}
}
