package proto

// Op identifies a cluster RPC.
type Op int32

const (
	OpTableGet   Op = 4
	OpSchemasGet Op = 5

	OpTupleUpsert         Op = 10
	OpTupleGet            Op = 12
	OpTupleUpsertAll      Op = 13
	OpTupleGetAll         Op = 15
	OpTupleGetAndUpsert   Op = 16
	OpTupleInsert         Op = 18
	OpTupleInsertAll      Op = 20
	OpTupleReplace        Op = 22
	OpTupleReplaceExact   Op = 24
	OpTupleGetAndReplace  Op = 26
	OpTupleDelete         Op = 28
	OpTupleDeleteAll      Op = 29
	OpTupleDeleteExact    Op = 30
	OpTupleDeleteAllExact Op = 31
	OpTupleGetAndDelete   Op = 32
)

func (op Op) String() string {
	switch op {
	case OpTableGet:
		return "TABLE_GET"
	case OpSchemasGet:
		return "SCHEMAS_GET"
	case OpTupleUpsert:
		return "TUPLE_UPSERT"
	case OpTupleGet:
		return "TUPLE_GET"
	case OpTupleUpsertAll:
		return "TUPLE_UPSERT_ALL"
	case OpTupleGetAll:
		return "TUPLE_GET_ALL"
	case OpTupleGetAndUpsert:
		return "TUPLE_GET_AND_UPSERT"
	case OpTupleInsert:
		return "TUPLE_INSERT"
	case OpTupleInsertAll:
		return "TUPLE_INSERT_ALL"
	case OpTupleReplace:
		return "TUPLE_REPLACE"
	case OpTupleReplaceExact:
		return "TUPLE_REPLACE_EXACT"
	case OpTupleGetAndReplace:
		return "TUPLE_GET_AND_REPLACE"
	case OpTupleDelete:
		return "TUPLE_DELETE"
	case OpTupleDeleteAll:
		return "TUPLE_DELETE_ALL"
	case OpTupleDeleteExact:
		return "TUPLE_DELETE_EXACT"
	case OpTupleDeleteAllExact:
		return "TUPLE_DELETE_ALL_EXACT"
	case OpTupleGetAndDelete:
		return "TUPLE_GET_AND_DELETE"
	}
	return "UNKNOWN"
}
