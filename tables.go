package novagrid

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tuannm99/novagrid/internal/conn"
	"github.com/tuannm99/novagrid/internal/proto"
)

// Tables resolves table names to Table handles. Handles are cached per
// name (case-insensitive) and shared; they stay valid for the life of the
// client.
type Tables struct {
	rq  requester
	log *slog.Logger

	mu    sync.Mutex
	cache map[string]*Table
}

func newTables(rq requester, log *slog.Logger) *Tables {
	return &Tables{rq: rq, log: log, cache: make(map[string]*Table)}
}

// GetAsync resolves the named table. Unknown names report
// ErrTableNotFound.
func (ts *Tables) GetAsync(name string, cb func(*Table, error)) {
	key := strings.ToLower(name)

	ts.mu.Lock()
	if t, ok := ts.cache[key]; ok {
		ts.mu.Unlock()
		cb(t, nil)
		return
	}
	ts.mu.Unlock()

	write := func(w *proto.Writer) error {
		return w.WriteString(name)
	}
	read := func(r *proto.Reader) (any, error) {
		isNil, err := r.TryReadNil()
		if err != nil {
			return nil, protocolf(err, "table id")
		}
		if isNil {
			return nil, ErrTableNotFound
		}
		id, err := r.ReadUUID()
		if err != nil {
			return nil, protocolf(err, "table id")
		}
		return id, nil
	}

	ts.rq.PerformRequest(proto.OpTableGet, write, read, func(v any, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		id, _ := v.(uuid.UUID)

		ts.mu.Lock()
		t, ok := ts.cache[key]
		if !ok {
			t = newTable(name, id, ts.rq, ts.log)
			ts.cache[key] = t
		}
		ts.mu.Unlock()
		cb(t, nil)
	})
}

// Get resolves the named table, blocking under ctx.
func (ts *Tables) Get(ctx context.Context, name string) (*Table, error) {
	return await(ctx, func(cb func(*Table, error)) { ts.GetAsync(name, cb) })
}

var _ requester = (*conn.Conn)(nil)
