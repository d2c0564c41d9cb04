package novagrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tuannm99/novagrid/internal/conn"
	"github.com/tuannm99/novagrid/internal/proto"
)

// requester is the slice of the cluster connection the table needs.
// Satisfied by *conn.Conn; tests substitute an in-process fake.
type requester interface {
	PerformRequest(op proto.Op, write conn.WriteFunc, read conn.ReadFunc, cb conn.Callback)
	PerformRequestWr(op proto.Op, write conn.WriteFunc, cb func(error))
}

// Table provides the record view of one cluster table. All operations are
// asynchronous at the core: the *Async form returns after enqueuing and
// invokes its callback exactly once, on a connection worker goroutine when
// a response arrives. Failures found before anything is sent (a non-nil
// transaction, a record that does not encode) may be reported on the
// calling goroutine before the *Async call returns.
// Each async form has a blocking twin that waits under a context.
type Table struct {
	name string
	id   uuid.UUID
	rq   requester
	log  *slog.Logger

	schemas *schemaRegistry
	loads   singleflight.Group
}

func newTable(name string, id uuid.UUID, rq requester, log *slog.Logger) *Table {
	return &Table{
		name:    name,
		id:      id,
		rq:      rq,
		log:     log,
		schemas: newSchemaRegistry(),
	}
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// ID returns the table id.
func (t *Table) ID() uuid.UUID { return t.id }

// --- schema resolution ---

// latestSchemaAsync delivers the newest known schema, fetching from the
// cluster only when the cache is empty. The callback may run
// synchronously on a cache hit.
func (t *Table) latestSchemaAsync(cb func(*Schema, error)) {
	if v := t.schemas.latestVersion(); v >= 0 {
		cb(t.schemas.get(v), nil)
		return
	}
	t.loadSchemasAsync(nil, cb)
}

// loadSchemasAsync issues SCHEMAS_GET for one version, or for everything
// the server has when version is nil. Every schema in the reply is
// learned; the last one is delivered. Concurrent loads for the same key
// coalesce onto one RPC.
func (t *Table) loadSchemasAsync(version *int32, cb func(*Schema, error)) {
	key := "latest"
	if version != nil {
		key = strconv.FormatInt(int64(*version), 10)
	}

	ch := t.loads.DoChan(key, func() (any, error) {
		type result struct {
			sch *Schema
			err error
		}
		done := make(chan result, 1)

		write := func(w *proto.Writer) error {
			if err := w.WriteUUID(t.id); err != nil {
				return err
			}
			if version == nil {
				return w.WriteNil()
			}
			return w.WriteInt32(*version)
		}

		read := func(r *proto.Reader) (any, error) {
			n, err := r.ReadMapLen()
			if err != nil {
				return nil, protocolf(err, "schema map")
			}
			if n == 0 {
				return nil, ErrSchemaMissing
			}
			var last *Schema
			for i := 0; i < n; i++ {
				ver, err := r.ReadInt32()
				if err != nil {
					return nil, protocolf(err, "schema version")
				}
				sch, err := readSchema(r, ver)
				if err != nil {
					return nil, err
				}
				t.schemas.add(sch)
				last = sch
			}
			t.log.Debug("schemas loaded", "table", t.name, "count", n, "latest", last.Version)
			return last, nil
		}

		t.rq.PerformRequest(proto.OpSchemasGet, write, read, func(v any, err error) {
			sch, _ := v.(*Schema)
			done <- result{sch, err}
		})

		res := <-done
		return res.sch, res.err
	})

	go func() {
		res := <-ch
		if res.Err != nil {
			cb(nil, res.Err)
			return
		}
		sch, _ := res.Val.(*Schema)
		cb(sch, nil)
	}()
}

// schemaMiss aborts a response decode when the server answered in a
// schema version the cache has never seen. The dispatcher fetches that
// version and resumes from the saved remainder of the buffered frame.
type schemaMiss struct {
	version   int32
	remainder []byte
	decode    func(*Schema, *proto.Reader) (any, error)
}

func (e *schemaMiss) Error() string {
	return fmt.Sprintf("novagrid: unknown schema version %d", e.version)
}

// readWithSchema resolves the schema reference that precedes a response
// body, then decodes the body with it. A nil reference hands decode a nil
// schema, which every operation treats as "no rows follow".
func (t *Table) readWithSchema(r *proto.Reader, decode func(*Schema, *proto.Reader) (any, error)) (any, error) {
	isNil, err := r.TryReadNil()
	if err != nil {
		return nil, protocolf(err, "response schema")
	}
	if isNil {
		return decode(nil, r)
	}

	ver, err := r.ReadInt32()
	if err != nil {
		return nil, protocolf(err, "response schema version")
	}
	sch := t.schemas.get(ver)
	if sch == nil {
		return nil, &schemaMiss{version: ver, remainder: r.Remainder(), decode: decode}
	}
	return decode(sch, r)
}

// withLatestSchema is the spine of every operation: resolve the latest
// schema, short-circuit the callback on failure, otherwise let body issue
// the RPC with a callback that can recover from unknown response schema
// versions.
func (t *Table) withLatestSchema(cb conn.Callback, body func(sch *Schema, done conn.Callback)) {
	t.latestSchemaAsync(func(sch *Schema, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		body(sch, t.recovering(cb))
	})
}

func (t *Table) recovering(cb conn.Callback) conn.Callback {
	return func(res any, err error) {
		var miss *schemaMiss
		if !errors.As(err, &miss) {
			cb(res, err)
			return
		}
		v := miss.version
		t.log.Debug("fetching schema for response", "table", t.name, "version", v)
		t.loadSchemasAsync(&v, func(_ *Schema, err error) {
			if err != nil {
				cb(nil, err)
				return
			}
			sch := t.schemas.get(v)
			if sch == nil {
				cb(nil, protocolf(nil, "schema version %d not returned by cluster", v))
				return
			}
			res, err := miss.decode(sch, proto.NewReader(miss.remainder))
			cb(res, err)
		})
	}
}

func (t *Table) writeHeader(w *proto.Writer, sch *Schema) error {
	if err := w.WriteUUID(t.id); err != nil {
		return err
	}
	if err := w.WriteNil(); err != nil { // transaction id
		return err
	}
	return w.WriteInt32(sch.Version)
}

func txErr(tx *Tx) error {
	if tx != nil {
		return ErrTransactionsUnsupported
	}
	return nil
}

// adapt narrows an untyped connection callback to the operation's result
// type.
func adapt[T any](cb func(T, error)) conn.Callback {
	return func(v any, err error) {
		if err != nil {
			var zero T
			cb(zero, err)
			return
		}
		out, _ := v.(T)
		cb(out, nil)
	}
}

func readBoolBody(r *proto.Reader) (any, error) {
	v, err := r.ReadBool()
	if err != nil {
		return nil, protocolf(err, "bool result")
	}
	return v, nil
}

// --- operations ---

// GetAsync retrieves the record matching key. The result is nil when the
// key does not exist; key fields of the result are taken from key itself.
func (t *Table) GetAsync(tx *Tx, key *Tuple, cb func(*Tuple, error)) {
	if err := txErr(tx); err != nil {
		cb(nil, err)
		return
	}
	t.withLatestSchema(adapt(cb), func(sch *Schema, done conn.Callback) {
		write := func(w *proto.Writer) error {
			if err := t.writeHeader(w, sch); err != nil {
				return err
			}
			return writeTuple(w, sch, key, true)
		}
		read := func(r *proto.Reader) (any, error) {
			return t.readWithSchema(r, func(sch *Schema, r *proto.Reader) (any, error) {
				if sch == nil {
					return (*Tuple)(nil), nil
				}
				return readTupleMerge(r, sch, key)
			})
		}
		t.rq.PerformRequest(proto.OpTupleGet, write, read, done)
	})
}

// GetAllAsync retrieves the records matching keys. The result holds one
// entry per key in order, nil where the key does not exist.
func (t *Table) GetAllAsync(tx *Tx, keys []*Tuple, cb func([]*Tuple, error)) {
	if err := txErr(tx); err != nil {
		cb(nil, err)
		return
	}
	t.withLatestSchema(adapt(cb), func(sch *Schema, done conn.Callback) {
		write := func(w *proto.Writer) error {
			if err := t.writeHeader(w, sch); err != nil {
				return err
			}
			return writeTuples(w, sch, keys, true)
		}
		read := func(r *proto.Reader) (any, error) {
			return t.readWithSchema(r, func(sch *Schema, r *proto.Reader) (any, error) {
				return readTuplesOpt(r, sch, false)
			})
		}
		t.rq.PerformRequest(proto.OpTupleGetAll, write, read, done)
	})
}

// UpsertAsync inserts or overwrites the record.
func (t *Table) UpsertAsync(tx *Tx, rec *Tuple, cb func(error)) {
	if err := txErr(tx); err != nil {
		cb(err)
		return
	}
	t.withLatestSchema(func(_ any, err error) { cb(err) }, func(sch *Schema, done conn.Callback) {
		write := func(w *proto.Writer) error {
			if err := t.writeHeader(w, sch); err != nil {
				return err
			}
			return writeTuple(w, sch, rec, false)
		}
		t.rq.PerformRequestWr(proto.OpTupleUpsert, write, func(err error) { done(nil, err) })
	})
}

// UpsertAllAsync inserts or overwrites every record.
func (t *Table) UpsertAllAsync(tx *Tx, recs []*Tuple, cb func(error)) {
	if err := txErr(tx); err != nil {
		cb(err)
		return
	}
	t.withLatestSchema(func(_ any, err error) { cb(err) }, func(sch *Schema, done conn.Callback) {
		write := func(w *proto.Writer) error {
			if err := t.writeHeader(w, sch); err != nil {
				return err
			}
			return writeTuples(w, sch, recs, false)
		}
		t.rq.PerformRequestWr(proto.OpTupleUpsertAll, write, func(err error) { done(nil, err) })
	})
}

// GetAndUpsertAsync overwrites the record and returns the previous one,
// nil if there was none.
func (t *Table) GetAndUpsertAsync(tx *Tx, rec *Tuple, cb func(*Tuple, error)) {
	t.getAndModify(tx, rec, proto.OpTupleGetAndUpsert, cb)
}

// InsertAsync stores the record if its key is not taken and reports
// whether it was stored.
func (t *Table) InsertAsync(tx *Tx, rec *Tuple, cb func(bool, error)) {
	t.boolOp(tx, proto.OpTupleInsert, []*Tuple{rec}, false, cb)
}

// InsertAllAsync stores the records whose keys are not taken and returns
// the records that were skipped.
func (t *Table) InsertAllAsync(tx *Tx, recs []*Tuple, cb func([]*Tuple, error)) {
	t.multiOp(tx, proto.OpTupleInsertAll, recs, false, false, cb)
}

// ReplaceAsync overwrites the record only if its key exists and reports
// whether it did.
func (t *Table) ReplaceAsync(tx *Tx, rec *Tuple, cb func(bool, error)) {
	t.boolOp(tx, proto.OpTupleReplace, []*Tuple{rec}, false, cb)
}

// ReplaceExactAsync overwrites the stored record with next only if it
// currently equals expected.
func (t *Table) ReplaceExactAsync(tx *Tx, expected, next *Tuple, cb func(bool, error)) {
	t.boolOp(tx, proto.OpTupleReplaceExact, []*Tuple{expected, next}, false, cb)
}

// GetAndReplaceAsync overwrites the record only if its key exists and
// returns the previous record, nil otherwise.
func (t *Table) GetAndReplaceAsync(tx *Tx, rec *Tuple, cb func(*Tuple, error)) {
	t.getAndModify(tx, rec, proto.OpTupleGetAndReplace, cb)
}

// RemoveAsync deletes the record matching key and reports whether one
// existed.
func (t *Table) RemoveAsync(tx *Tx, key *Tuple, cb func(bool, error)) {
	t.boolOp(tx, proto.OpTupleDelete, []*Tuple{key}, true, cb)
}

// RemoveExactAsync deletes the record only if it equals rec entirely.
func (t *Table) RemoveExactAsync(tx *Tx, rec *Tuple, cb func(bool, error)) {
	t.boolOp(tx, proto.OpTupleDeleteExact, []*Tuple{rec}, false, cb)
}

// GetAndRemoveAsync deletes the record matching key and returns it, nil
// if there was none.
func (t *Table) GetAndRemoveAsync(tx *Tx, key *Tuple, cb func(*Tuple, error)) {
	if err := txErr(tx); err != nil {
		cb(nil, err)
		return
	}
	t.withLatestSchema(adapt(cb), func(sch *Schema, done conn.Callback) {
		write := func(w *proto.Writer) error {
			if err := t.writeHeader(w, sch); err != nil {
				return err
			}
			return writeTuple(w, sch, key, true)
		}
		read := func(r *proto.Reader) (any, error) {
			return t.readWithSchema(r, func(sch *Schema, r *proto.Reader) (any, error) {
				if sch == nil {
					return (*Tuple)(nil), nil
				}
				return readTupleMerge(r, sch, key)
			})
		}
		t.rq.PerformRequest(proto.OpTupleGetAndDelete, write, read, done)
	})
}

// RemoveAllAsync deletes the records matching keys and returns the keys
// that matched nothing.
func (t *Table) RemoveAllAsync(tx *Tx, keys []*Tuple, cb func([]*Tuple, error)) {
	t.multiOp(tx, proto.OpTupleDeleteAll, keys, true, true, cb)
}

// RemoveAllExactAsync deletes the records equal to recs entirely and
// returns the ones that were not deleted.
func (t *Table) RemoveAllExactAsync(tx *Tx, recs []*Tuple, cb func([]*Tuple, error)) {
	t.multiOp(tx, proto.OpTupleDeleteAllExact, recs, false, false, cb)
}

// getAndModify covers the write-one, get-previous operations: full record
// out, optional merged record back.
func (t *Table) getAndModify(tx *Tx, rec *Tuple, op proto.Op, cb func(*Tuple, error)) {
	if err := txErr(tx); err != nil {
		cb(nil, err)
		return
	}
	t.withLatestSchema(adapt(cb), func(sch *Schema, done conn.Callback) {
		write := func(w *proto.Writer) error {
			if err := t.writeHeader(w, sch); err != nil {
				return err
			}
			return writeTuple(w, sch, rec, false)
		}
		read := func(r *proto.Reader) (any, error) {
			return t.readWithSchema(r, func(sch *Schema, r *proto.Reader) (any, error) {
				if sch == nil {
					return (*Tuple)(nil), nil
				}
				return readTupleMerge(r, sch, rec)
			})
		}
		t.rq.PerformRequest(op, write, read, done)
	})
}

// boolOp covers the operations that send one or two tuples and get a
// bare bool back.
func (t *Table) boolOp(tx *Tx, op proto.Op, recs []*Tuple, keyOnly bool, cb func(bool, error)) {
	if err := txErr(tx); err != nil {
		cb(false, err)
		return
	}
	t.withLatestSchema(adapt(cb), func(sch *Schema, done conn.Callback) {
		write := func(w *proto.Writer) error {
			if err := t.writeHeader(w, sch); err != nil {
				return err
			}
			for _, rec := range recs {
				if err := writeTuple(w, sch, rec, keyOnly); err != nil {
					return err
				}
			}
			return nil
		}
		t.rq.PerformRequest(op, write, readBoolBody, done)
	})
}

// multiOp covers the operations that send a tuple list and get a tuple
// list back (rejected, skipped or not-deleted entries).
func (t *Table) multiOp(tx *Tx, op proto.Op, recs []*Tuple, writeKeyOnly, readKeyOnly bool, cb func([]*Tuple, error)) {
	if err := txErr(tx); err != nil {
		cb(nil, err)
		return
	}
	t.withLatestSchema(adapt(cb), func(sch *Schema, done conn.Callback) {
		write := func(w *proto.Writer) error {
			if err := t.writeHeader(w, sch); err != nil {
				return err
			}
			return writeTuples(w, sch, recs, writeKeyOnly)
		}
		read := func(r *proto.Reader) (any, error) {
			return t.readWithSchema(r, func(sch *Schema, r *proto.Reader) (any, error) {
				return readTuples(r, sch, readKeyOnly)
			})
		}
		t.rq.PerformRequest(op, write, read, done)
	})
}

// --- blocking wrappers ---

type outcome[T any] struct {
	v   T
	err error
}

func await[T any](ctx context.Context, start func(cb func(T, error))) (T, error) {
	ch := make(chan outcome[T], 1)
	start(func(v T, err error) { ch <- outcome[T]{v, err} })
	select {
	case out := <-ch:
		return out.v, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func awaitErr(ctx context.Context, start func(cb func(error))) error {
	_, err := await(ctx, func(cb func(struct{}, error)) {
		start(func(err error) { cb(struct{}{}, err) })
	})
	return err
}

func (t *Table) Get(ctx context.Context, tx *Tx, key *Tuple) (*Tuple, error) {
	return await(ctx, func(cb func(*Tuple, error)) { t.GetAsync(tx, key, cb) })
}

func (t *Table) GetAll(ctx context.Context, tx *Tx, keys []*Tuple) ([]*Tuple, error) {
	return await(ctx, func(cb func([]*Tuple, error)) { t.GetAllAsync(tx, keys, cb) })
}

func (t *Table) Upsert(ctx context.Context, tx *Tx, rec *Tuple) error {
	return awaitErr(ctx, func(cb func(error)) { t.UpsertAsync(tx, rec, cb) })
}

func (t *Table) UpsertAll(ctx context.Context, tx *Tx, recs []*Tuple) error {
	return awaitErr(ctx, func(cb func(error)) { t.UpsertAllAsync(tx, recs, cb) })
}

func (t *Table) GetAndUpsert(ctx context.Context, tx *Tx, rec *Tuple) (*Tuple, error) {
	return await(ctx, func(cb func(*Tuple, error)) { t.GetAndUpsertAsync(tx, rec, cb) })
}

func (t *Table) Insert(ctx context.Context, tx *Tx, rec *Tuple) (bool, error) {
	return await(ctx, func(cb func(bool, error)) { t.InsertAsync(tx, rec, cb) })
}

func (t *Table) InsertAll(ctx context.Context, tx *Tx, recs []*Tuple) ([]*Tuple, error) {
	return await(ctx, func(cb func([]*Tuple, error)) { t.InsertAllAsync(tx, recs, cb) })
}

func (t *Table) Replace(ctx context.Context, tx *Tx, rec *Tuple) (bool, error) {
	return await(ctx, func(cb func(bool, error)) { t.ReplaceAsync(tx, rec, cb) })
}

func (t *Table) ReplaceExact(ctx context.Context, tx *Tx, expected, next *Tuple) (bool, error) {
	return await(ctx, func(cb func(bool, error)) { t.ReplaceExactAsync(tx, expected, next, cb) })
}

func (t *Table) GetAndReplace(ctx context.Context, tx *Tx, rec *Tuple) (*Tuple, error) {
	return await(ctx, func(cb func(*Tuple, error)) { t.GetAndReplaceAsync(tx, rec, cb) })
}

func (t *Table) Remove(ctx context.Context, tx *Tx, key *Tuple) (bool, error) {
	return await(ctx, func(cb func(bool, error)) { t.RemoveAsync(tx, key, cb) })
}

func (t *Table) RemoveExact(ctx context.Context, tx *Tx, rec *Tuple) (bool, error) {
	return await(ctx, func(cb func(bool, error)) { t.RemoveExactAsync(tx, rec, cb) })
}

func (t *Table) GetAndRemove(ctx context.Context, tx *Tx, key *Tuple) (*Tuple, error) {
	return await(ctx, func(cb func(*Tuple, error)) { t.GetAndRemoveAsync(tx, key, cb) })
}

func (t *Table) RemoveAll(ctx context.Context, tx *Tx, keys []*Tuple) ([]*Tuple, error) {
	return await(ctx, func(cb func([]*Tuple, error)) { t.RemoveAllAsync(tx, keys, cb) })
}

func (t *Table) RemoveAllExact(ctx context.Context, tx *Tx, recs []*Tuple) ([]*Tuple, error) {
	return await(ctx, func(cb func([]*Tuple, error)) { t.RemoveAllExactAsync(tx, recs, cb) })
}
