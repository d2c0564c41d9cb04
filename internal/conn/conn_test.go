package conn

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novagrid/internal/proto"
)

// testServer speaks the frame protocol on a loopback listener: it accepts
// one connection, answers the handshake and hands every request to serve.
type testServer struct {
	ln    net.Listener
	wg    sync.WaitGroup
	serve func(op proto.Op, r *proto.Reader, w *proto.Writer) error
}

func startServer(t *testing.T, serve func(op proto.Op, r *proto.Reader, w *proto.Writer) error) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testServer{ln: ln, serve: serve}
	s.wg.Add(1)
	go s.run(t)
	t.Cleanup(func() {
		_ = ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *testServer) addr() string { return s.ln.Addr().String() }

func (s *testServer) run(t *testing.T) {
	defer s.wg.Done()
	nc, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer func() { _ = nc.Close() }()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(nc, magic); err != nil || string(magic) != "NGRD" {
		return
	}
	if _, err := proto.ReadFrame(nc); err != nil {
		return
	}
	hw := proto.NewWriter()
	for _, v := range []int32{VersionMajor, VersionMinor, VersionPatch} {
		_ = hw.WriteInt32(v)
	}
	_ = hw.WriteNil()
	if err := hw.WriteFrameTo(nc); err != nil {
		return
	}

	for {
		body, err := proto.ReadFrame(nc)
		if err != nil {
			return
		}
		r := proto.NewReader(body)
		op, err := r.ReadInt32()
		if err != nil {
			return
		}
		id, err := r.ReadInt64()
		if err != nil {
			return
		}

		w := proto.NewWriter()
		_ = w.WriteInt64(id)
		if s.serve == nil {
			_ = w.WriteNil()
		} else {
			payload := proto.NewWriter()
			if err := s.serve(proto.Op(op), r, payload); err != nil {
				_ = w.WriteString(err.Error())
			} else {
				_ = w.WriteNil()
				if err := appendBody(w, payload); err != nil {
					return
				}
			}
		}
		if err := w.WriteFrameTo(nc); err != nil {
			return
		}
	}
}

// appendBody splices an already-encoded payload after the response header.
func appendBody(dst, src *proto.Writer) error {
	return dst.WriteRaw(src.Bytes())
}

func dialTest(t *testing.T, s *testServer) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, Config{Addresses: []string{s.addr()}, DialTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDial_HandshakeAndRoundTrip(t *testing.T) {
	s := startServer(t, func(op proto.Op, r *proto.Reader, w *proto.Writer) error {
		v, err := r.ReadInt32()
		if err != nil {
			return err
		}
		return w.WriteInt32(v + 1)
	})
	c := dialTest(t, s)

	got := make(chan int32, 1)
	errs := make(chan error, 1)
	c.PerformRequest(proto.OpTupleGet,
		func(w *proto.Writer) error { return w.WriteInt32(41) },
		func(r *proto.Reader) (any, error) { return r.ReadInt32() },
		func(v any, err error) {
			if err != nil {
				errs <- err
				return
			}
			got <- v.(int32)
		})

	select {
	case v := <-got:
		require.Equal(t, int32(42), v)
	case err := <-errs:
		t.Fatalf("request failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestPerformRequest_ServerError(t *testing.T) {
	s := startServer(t, func(proto.Op, *proto.Reader, *proto.Writer) error {
		return errors.New("boom")
	})
	c := dialTest(t, s)

	errs := make(chan error, 1)
	c.PerformRequest(proto.OpTupleGet,
		func(w *proto.Writer) error { return w.WriteInt32(1) },
		func(r *proto.Reader) (any, error) { return r.ReadInt32() },
		func(_ any, err error) { errs <- err })

	select {
	case err := <-errs:
		require.ErrorContains(t, err, "boom")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestPerformRequest_WriteFuncErrorSendsNothing(t *testing.T) {
	served := make(chan struct{}, 1)
	s := startServer(t, func(proto.Op, *proto.Reader, *proto.Writer) error {
		served <- struct{}{}
		return nil
	})
	c := dialTest(t, s)

	sentinel := errors.New("bad record")
	errs := make(chan error, 1)
	c.PerformRequest(proto.OpTupleUpsert,
		func(*proto.Writer) error { return sentinel },
		nil,
		func(_ any, err error) { errs <- err })

	require.ErrorIs(t, <-errs, sentinel)
	select {
	case <-served:
		t.Fatal("request hit the wire despite writer failure")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClose_FailsPending(t *testing.T) {
	block := make(chan struct{})
	s := startServer(t, func(proto.Op, *proto.Reader, *proto.Writer) error {
		<-block
		return nil
	})
	defer close(block)
	c := dialTest(t, s)

	errs := make(chan error, 1)
	c.PerformRequest(proto.OpTupleGet,
		func(w *proto.Writer) error { return w.WriteInt32(1) },
		func(r *proto.Reader) (any, error) { return r.ReadInt32() },
		func(_ any, err error) { errs <- err })

	time.Sleep(50 * time.Millisecond) // let the request leave
	require.NoError(t, c.Close())

	select {
	case err := <-errs:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("pending callback never fired")
	}
}
