package novagrid

import (
	"github.com/tuannm99/novagrid/internal/proto"
)

// ColumnType identifies a column's primitive type on the wire.
type ColumnType int32

const (
	TypeInt8   ColumnType = 1
	TypeInt16  ColumnType = 2
	TypeInt32  ColumnType = 3
	TypeInt64  ColumnType = 4
	TypeFloat  ColumnType = 5
	TypeDouble ColumnType = 6
	TypeUUID   ColumnType = 7
	TypeString ColumnType = 8
	TypeBytes  ColumnType = 9
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt8:
		return "INT8"
	case TypeInt16:
		return "INT16"
	case TypeInt32:
		return "INT32"
	case TypeInt64:
		return "INT64"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	case TypeUUID:
		return "UUID"
	case TypeString:
		return "STRING"
	case TypeBytes:
		return "BYTES"
	}
	return "UNKNOWN"
}

// Column describes one table column. Immutable once part of a Schema.
type Column struct {
	Name     string
	Type     ColumnType
	Key      bool
	Nullable bool
}

// Schema is one immutable versioned snapshot of a table's columns. Key
// columns always precede value columns; Columns[:KeyColumnCount] is the
// key projection.
type Schema struct {
	Version        int32
	KeyColumnCount int
	Columns        []Column
}

// readSchema decodes one schema map entry: the version has already been
// read, the value is an array of [name, type, key, nullable] arrays.
// Columns are re-ordered key-first so the key-projection invariant does
// not depend on server ordering.
func readSchema(r *proto.Reader, version int32) (*Schema, error) {
	n, err := r.ReadArrayLen()
	if err != nil {
		return nil, protocolf(err, "schema v%d columns", version)
	}

	keys := make([]Column, 0, n)
	vals := make([]Column, 0, n)
	for i := 0; i < n; i++ {
		col, err := readColumn(r)
		if err != nil {
			return nil, protocolf(err, "schema v%d column %d", version, i)
		}
		if col.Key {
			keys = append(keys, col)
		} else {
			vals = append(vals, col)
		}
	}

	return &Schema{
		Version:        version,
		KeyColumnCount: len(keys),
		Columns:        append(keys, vals...),
	}, nil
}

func readColumn(r *proto.Reader) (Column, error) {
	n, err := r.ReadArrayLen()
	if err != nil {
		return Column{}, err
	}
	if n < 4 {
		return Column{}, protocolf(nil, "column descriptor of %d elements", n)
	}

	var col Column
	if col.Name, err = r.ReadString(); err != nil {
		return Column{}, err
	}
	typ, err := r.ReadInt32()
	if err != nil {
		return Column{}, err
	}
	col.Type = ColumnType(typ)
	if col.Key, err = r.ReadBool(); err != nil {
		return Column{}, err
	}
	if col.Nullable, err = r.ReadBool(); err != nil {
		return Column{}, err
	}
	return col, nil
}
