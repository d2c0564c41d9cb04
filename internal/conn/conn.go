// Package conn maintains the shared connection to the cluster: dialing,
// handshake, request framing and in-flight request tracking. Callers hand
// in writer and reader closures; reader closures and callbacks run on the
// connection's reader goroutine.
package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tuannm99/novagrid/internal/proto"
)

// Protocol version spoken by this client.
const (
	VersionMajor = 3
	VersionMinor = 0
	VersionPatch = 0

	clientTypeGeneral = 2
)

var magic = []byte("NGRD")

// ErrClosed is delivered to every callback still pending when the
// connection goes away.
var ErrClosed = errors.New("conn: connection closed")

// WriteFunc emits a request body. A returned error aborts the request
// before anything hits the wire.
type WriteFunc func(*proto.Writer) error

// ReadFunc decodes a response body.
type ReadFunc func(*proto.Reader) (any, error)

// Callback receives the decoded response or the first error on the way
// there. Invoked exactly once per request.
type Callback func(any, error)

type Config struct {
	Addresses   []string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

type pending struct {
	read ReadFunc
	cb   Callback
}

// Conn is a single cluster connection. Exec-style callers can issue
// requests concurrently; frames serialize on the write mutex and a reader
// goroutine dispatches responses by request id.
type Conn struct {
	nc  net.Conn
	log *slog.Logger

	reqID atomic.Int64

	wmu sync.Mutex // serializes outgoing frames

	mu       sync.Mutex
	inflight map[int64]pending
	closed   bool
}

// Dial connects to the first reachable address and performs the
// handshake.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("conn: no addresses")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	var lastErr error
	for _, addr := range cfg.Addresses {
		d := net.Dialer{Timeout: cfg.DialTimeout}
		nc, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			log.Debug("dial failed", "addr", addr, "err", err)
			lastErr = err
			continue
		}

		c := &Conn{nc: nc, log: log, inflight: make(map[int64]pending)}
		if err := c.handshake(ctx); err != nil {
			_ = nc.Close()
			lastErr = err
			continue
		}

		log.Debug("connected", "addr", addr)
		go c.readLoop()
		return c, nil
	}
	return nil, fmt.Errorf("conn: all addresses failed: %w", lastErr)
}

func (c *Conn) handshake(ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.nc.SetDeadline(dl)
	}
	defer func() { _ = c.nc.SetDeadline(time.Time{}) }()

	if _, err := c.nc.Write(magic); err != nil {
		return fmt.Errorf("conn: handshake write: %w", err)
	}

	w := proto.NewWriter()
	for _, v := range []int32{VersionMajor, VersionMinor, VersionPatch, clientTypeGeneral} {
		if err := w.WriteInt32(v); err != nil {
			return err
		}
	}
	if err := w.WriteFrameTo(c.nc); err != nil {
		return fmt.Errorf("conn: handshake write: %w", err)
	}

	body, err := proto.ReadFrame(c.nc)
	if err != nil {
		return fmt.Errorf("conn: handshake read: %w", err)
	}
	r := proto.NewReader(body)
	var got [3]int32
	for i := range got {
		if got[i], err = r.ReadInt32(); err != nil {
			return fmt.Errorf("conn: handshake version: %w", err)
		}
	}
	isNil, err := r.TryReadNil()
	if err != nil {
		return fmt.Errorf("conn: handshake: %w", err)
	}
	if !isNil {
		msg, err := r.ReadString()
		if err != nil {
			return fmt.Errorf("conn: handshake: %w", err)
		}
		return fmt.Errorf("conn: handshake rejected: %s", msg)
	}
	if got[0] != VersionMajor {
		return fmt.Errorf("conn: unsupported server version %d.%d.%d", got[0], got[1], got[2])
	}
	return nil
}

// PerformRequest issues one RPC. write runs synchronously; read and cb
// run on the reader goroutine when the response arrives. If write fails,
// the connection is already closed or the frame cannot be sent, cb runs on
// the calling goroutine instead. cb fires exactly once.
func (c *Conn) PerformRequest(op proto.Op, write WriteFunc, read ReadFunc, cb Callback) {
	id := c.reqID.Add(1)

	w := proto.NewWriter()
	if err := w.WriteInt32(int32(op)); err != nil {
		cb(nil, err)
		return
	}
	if err := w.WriteInt64(id); err != nil {
		cb(nil, err)
		return
	}
	if write != nil {
		if err := write(w); err != nil {
			cb(nil, err)
			return
		}
	}

	// Register before sending so a fast response cannot miss the entry.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cb(nil, ErrClosed)
		return
	}
	c.inflight[id] = pending{read: read, cb: cb}
	c.mu.Unlock()

	c.wmu.Lock()
	err := w.WriteFrameTo(c.nc)
	c.wmu.Unlock()

	if err != nil {
		if p, ok := c.take(id); ok {
			p.cb(nil, err)
		}
		return
	}
}

// PerformRequestWr issues an RPC whose response carries no payload.
func (c *Conn) PerformRequestWr(op proto.Op, write WriteFunc, cb func(error)) {
	c.PerformRequest(op, write, nil, func(_ any, err error) { cb(err) })
}

func (c *Conn) take(id int64) (pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.inflight[id]
	if ok {
		delete(c.inflight, id)
	}
	return p, ok
}

func (c *Conn) readLoop() {
	for {
		body, err := proto.ReadFrame(c.nc)
		if err != nil {
			c.teardown(err)
			return
		}

		r := proto.NewReader(body)
		id, err := r.ReadInt64()
		if err != nil {
			c.teardown(fmt.Errorf("conn: malformed response: %w", err))
			return
		}
		p, ok := c.take(id)
		if !ok {
			c.log.Warn("response for unknown request", "id", id)
			continue
		}

		isNil, err := r.TryReadNil()
		if err != nil {
			p.cb(nil, fmt.Errorf("conn: malformed response: %w", err))
			continue
		}
		if !isNil {
			msg, err := r.ReadString()
			if err != nil {
				p.cb(nil, fmt.Errorf("conn: malformed response: %w", err))
				continue
			}
			p.cb(nil, fmt.Errorf("conn: server error: %s", msg))
			continue
		}

		if p.read == nil {
			p.cb(nil, nil)
			continue
		}
		res, err := p.read(r)
		p.cb(res, err)
	}
}

// teardown fails every in-flight request once and marks the connection
// unusable.
func (c *Conn) teardown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	left := c.inflight
	c.inflight = make(map[int64]pending)
	c.mu.Unlock()

	_ = c.nc.Close()
	if len(left) > 0 {
		c.log.Debug("failing in-flight requests", "count", len(left), "cause", cause)
	}
	for _, p := range left {
		p.cb(nil, fmt.Errorf("%w: %v", ErrClosed, cause))
	}
}

// Close shuts the connection down; pending callbacks fail with ErrClosed.
func (c *Conn) Close() error {
	c.teardown(errors.New("closed by client"))
	return nil
}
