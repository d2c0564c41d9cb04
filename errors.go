package novagrid

import (
	"errors"
	"fmt"
)

var (
	// ErrTransactionsUnsupported is reported when any data operation is
	// given a non-nil transaction handle.
	ErrTransactionsUnsupported = errors.New("novagrid: transactions are not supported")

	// ErrSchemaMissing is reported when the cluster returns no schema for
	// a table.
	ErrSchemaMissing = errors.New("novagrid: table schema not found")

	// ErrTableNotFound is reported by Tables.Get for an unknown table.
	ErrTableNotFound = errors.New("novagrid: table does not exist")
)

// UnsupportedTypeError is reported when a schema column carries a type id
// outside the supported set.
type UnsupportedTypeError struct {
	TypeID int32
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("novagrid: column type with id %d is not supported", e.TypeID)
}

// TypeMismatchError is reported when a record value's runtime type
// disagrees with the type expected for it.
type TypeMismatchError struct {
	Column   string
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("novagrid: column %q: expected %s, got %s", e.Column, e.Expected, e.Actual)
}

// FieldNotFoundError is reported by tuple accessors for a field the
// record does not carry.
type FieldNotFoundError struct {
	Name string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("novagrid: field %q not found", e.Name)
}

// ProtocolError is reported for malformed frames, unexpected tags and
// short reads, including failures while decoding an otherwise successful
// response.
type ProtocolError struct {
	msg string
	err error
}

func protocolf(err error, format string, args ...any) *ProtocolError {
	return &ProtocolError{msg: fmt.Sprintf(format, args...), err: err}
}

func (e *ProtocolError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("novagrid: protocol: %s: %v", e.msg, e.err)
	}
	return "novagrid: protocol: " + e.msg
}

func (e *ProtocolError) Unwrap() error { return e.err }
