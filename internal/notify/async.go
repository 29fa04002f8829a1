package notify

import (
    "context"
    "errors"
    "sync"
    "sync/atomic"

    "github.com/rs/zerolog/log"
)

// ErrClosed is returned by Async.Send after Close.
var ErrClosed = errors.New("sink closed")

// DefaultQueue is the Async buffer size when none is given.
const DefaultQueue = 64

// Async delivers events to an inner sink from a background goroutine, so
// Send never blocks the caller. Events are dropped when the buffer is full.
type Async struct {
    inner   Sink
    queue   chan Event
    done    chan struct{}
    dropped atomic.Uint64

    mu     sync.RWMutex
    closed bool
}

// NewAsync wraps inner with a buffer of size events.
func NewAsync(inner Sink, size int) *Async {
    if size <= 0 {
        size = DefaultQueue
    }
    a := &Async{inner: inner, queue: make(chan Event, size), done: make(chan struct{})}
    go a.run()
    return a
}

func (a *Async) run() {
    defer close(a.done)
    for ev := range a.queue {
        if err := a.inner.Send(context.Background(), ev); err != nil {
            log.Debug().Err(err).Str("kind", string(ev.Kind)).Msg("async sink delivery failed")
        }
    }
}

// Send enqueues ev. It returns immediately.
func (a *Async) Send(_ context.Context, ev Event) error {
    a.mu.RLock()
    defer a.mu.RUnlock()
    if a.closed {
        return ErrClosed
    }
    select {
    case a.queue <- ev:
    default:
        a.dropped.Add(1)
        log.Warn().Str("kind", string(ev.Kind)).Msg("event queue full; dropping event")
    }
    return nil
}

// Dropped reports how many events were discarded because the buffer was full.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Close delivers what is already queued, then closes the inner sink.
func (a *Async) Close() error {
    a.mu.Lock()
    if a.closed {
        a.mu.Unlock()
        return nil
    }
    a.closed = true
    close(a.queue)
    a.mu.Unlock()
    <-a.done
    return a.inner.Close()
}
