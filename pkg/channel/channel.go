// Package channel implements the typed, single-producer/single-consumer queue
// that connects exactly one output port to exactly one input port.
//
// A channel is created as a pair of endpoints. The Sender is owned by the
// producing node and the Receiver by the consuming node; neither endpoint may
// be shared across nodes. Messages sent by the producer are delivered in FIFO
// order. Either side may tear down its endpoint:
//   - Sender.Close: the consumer drains what is buffered, then sees ErrClosed
//   - Receiver.Close: every further Send fails with ErrClosed
package channel

import (
    "context"
    "errors"
    "sync"
    "sync/atomic"
    "time"
)

// ErrClosed is returned when the peer endpoint has been torn down.
var ErrClosed = errors.New("channel: closed")

// DefaultCapacity is used when New is called with a non-positive capacity.
const DefaultCapacity = 16

// Message is one discrete item carried by a channel. Data is either a native
// Go value or encoded bytes (see port.Value).
type Message struct {
    Data      any
    Timestamp time.Time
}

// NewMessage stamps v with the current time.
func NewMessage(v any) Message { return Message{Data: v, Timestamp: time.Now()} }

type pipe struct {
    ch       chan Message
    done     chan struct{} // closed by the consumer
    doneOnce sync.Once
    sendOnce sync.Once
    sent     atomic.Bool // producer closed
}

// New creates a channel with the given buffer capacity and returns its two
// endpoints.
func New(capacity int) (*Sender, *Receiver) {
    if capacity <= 0 { capacity = DefaultCapacity }
    p := &pipe{ch: make(chan Message, capacity), done: make(chan struct{})}
    return &Sender{p: p}, &Receiver{p: p}
}

// Sender is the producing endpoint. It must be used by a single goroutine.
type Sender struct{ p *pipe }

// Send enqueues m, suspending while the buffer is full. It fails with
// ErrClosed once either side has torn down, or with ctx.Err().
func (s *Sender) Send(ctx context.Context, m Message) error {
    if s.p.sent.Load() { return ErrClosed }
    select {
    case <-s.p.done:
        return ErrClosed
    default:
    }
    select {
    case s.p.ch <- m:
        return nil
    case <-s.p.done:
        return ErrClosed
    case <-ctx.Done():
        return ctx.Err()
    }
}

// Close tears down the producing side. Buffered messages stay readable.
func (s *Sender) Close() {
    s.p.sendOnce.Do(func() {
        s.p.sent.Store(true)
        close(s.p.ch)
    })
}

// Closed reports whether the consumer has gone away.
func (s *Sender) Closed() bool {
    select {
    case <-s.p.done:
        return true
    default:
        return s.p.sent.Load()
    }
}

// Receiver is the consuming endpoint. It must be used by a single goroutine.
type Receiver struct{ p *pipe }

// TryRecv polls without suspending. It returns a Pending token when nothing
// is buffered, and ErrClosed when the producer is gone and the buffer is
// drained.
func (r *Receiver) TryRecv() (Token, error) {
    select {
    case m, ok := <-r.p.ch:
        if !ok { return Token{}, ErrClosed }
        return ReadyToken(m), nil
    default:
        return Token{}, nil
    }
}

// Recv suspends until a message is available. It fails with ErrClosed once
// either side has been closed and nothing is left to read.
func (r *Receiver) Recv(ctx context.Context) (Message, error) {
    select {
    case m, ok := <-r.p.ch:
        if !ok { return Message{}, ErrClosed }
        return m, nil
    case <-r.p.done:
        return Message{}, ErrClosed
    case <-ctx.Done():
        return Message{}, ctx.Err()
    }
}

// C exposes the underlying queue for select-style races. A receive that
// reports !ok means the producer closed the channel.
func (r *Receiver) C() <-chan Message { return r.p.ch }

// Len returns the number of buffered messages.
func (r *Receiver) Len() int { return len(r.p.ch) }

// Close tears down the consuming side; pending and future sends fail.
func (r *Receiver) Close() { r.p.doneOnce.Do(func() { close(r.p.done) }) }
