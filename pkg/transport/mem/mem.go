// Package mem is an in-process transport over net.Pipe. Frames are
// length-prefixed (u32 LE) so that encoded messages keep their boundaries.
package mem

import (
    "bufio"
    "context"
    "encoding/binary"
    "errors"
    "fmt"
    "io"
    "net"
    "sync"
    "sync/atomic"
    "time"

    "github.com/ZettaScaleLabs/zenoh-flow-examples/pkg/transport"
)

// MaxFrame bounds a single frame.
const MaxFrame = 1 << 24

var errFrameSize = errors.New("mem: invalid frame size")

// Transport connects dialers to listeners registered under a name in the
// same process.
type Transport struct {
    mu        sync.Mutex
    listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
    t.mu.Lock(); defer t.mu.Unlock()
    if _, ok := t.listeners[name]; ok {
        return nil, fmt.Errorf("mem: listener %q already exists", name)
    }
    l := &listener{name: name, newCh: make(chan *stream, 8), closeCh: make(chan struct{})}
    l.release = func() { t.mu.Lock(); delete(t.listeners, name); t.mu.Unlock() }
    t.listeners[name] = l
    go func() {
        select {
        case <-ctx.Done():
            _ = l.Close()
        case <-l.closeCh:
        }
    }()
    return l, nil
}

// Dial connects to a listener. The stream is handed to Accept; it fails if
// the listener backlog is full.
func (t *Transport) Dial(ctx context.Context, name string) (transport.Stream, error) {
    t.mu.Lock(); l := t.listeners[name]; t.mu.Unlock()
    if l == nil { return nil, fmt.Errorf("mem: no listener %q", name) }
    c1, c2 := net.Pipe()
    srv, cli := newStream(c1), newStream(c2)
    select {
    case l.newCh <- srv:
    case <-l.closeCh:
        _ = srv.Close(); _ = cli.Close()
        return nil, transport.ErrClosed
    case <-ctx.Done():
        _ = srv.Close(); _ = cli.Close()
        return nil, ctx.Err()
    }
    return cli, nil
}

type listener struct {
    name      string
    newCh     chan *stream
    closeCh   chan struct{}
    closeOnce sync.Once
    release   func()
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (transport.Stream, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, transport.ErrClosed
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *listener) Close() error {
    l.closeOnce.Do(func() { close(l.closeCh); l.release() })
    return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

type stream struct {
    mu sync.Mutex
    c  net.Conn
    br *bufio.Reader
    bw *bufio.Writer

    establishedAt time.Time
    lastSeen      atomic.Int64
    framesOut, framesIn, bytesOut, bytesIn atomic.Uint64
}

func newStream(c net.Conn) *stream {
    return &stream{c: c, br: bufio.NewReader(c), bw: bufio.NewWriter(c), establishedAt: time.Now()}
}

func (s *stream) SendBytes(b []byte) error {
    if len(b) > MaxFrame { return fmt.Errorf("%w: %d", errFrameSize, len(b)) }
    s.mu.Lock(); defer s.mu.Unlock()
    var lenbuf [4]byte
    binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
    if _, err := s.bw.Write(lenbuf[:]); err != nil { return mapErr(err) }
    if _, err := s.bw.Write(b); err != nil { return mapErr(err) }
    if err := s.bw.Flush(); err != nil { return mapErr(err) }
    s.framesOut.Add(1); s.bytesOut.Add(uint64(len(b)))
    s.lastSeen.Store(time.Now().UnixNano())
    return nil
}

func (s *stream) RecvBytes() ([]byte, error) {
    var lenbuf [4]byte
    if _, err := io.ReadFull(s.br, lenbuf[:]); err != nil { return nil, mapErr(err) }
    n := binary.LittleEndian.Uint32(lenbuf[:])
    if n > MaxFrame { return nil, fmt.Errorf("%w: %d", errFrameSize, n) }
    buf := make([]byte, n)
    if _, err := io.ReadFull(s.br, buf); err != nil { return nil, mapErr(err) }
    s.framesIn.Add(1); s.bytesIn.Add(uint64(n))
    s.lastSeen.Store(time.Now().UnixNano())
    return buf, nil
}

func (s *stream) Stats() transport.Stats {
    st := transport.Stats{
        EstablishedAt: s.establishedAt,
        FramesOut:     s.framesOut.Load(),
        FramesIn:      s.framesIn.Load(),
        BytesOut:      s.bytesOut.Load(),
        BytesIn:       s.bytesIn.Load(),
    }
    if ns := s.lastSeen.Load(); ns != 0 { st.LastSeen = time.Unix(0, ns) }
    return st
}

func (s *stream) Close() error { return s.c.Close() }

// mapErr reports a peer close as io.EOF and a local close as ErrClosed.
func mapErr(err error) error {
    switch {
    case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
        return io.EOF
    case errors.Is(err, io.ErrClosedPipe), errors.Is(err, net.ErrClosed):
        return transport.ErrClosed
    }
    return err
}
