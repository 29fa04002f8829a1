// Package coalesce turns bursts of document change signals into single
// triggers fired after a quiet period.
package coalesce

import (
    "context"
    "errors"
    "sync"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/autodiscover/internal/clock"
)

// DefaultWindow is the quiet period required before a trigger fires.
const DefaultWindow = 1200 * time.Millisecond

// Source supplies "document mutated" signals. Implementations close the
// returned channel when ctx is done or the source is closed.
type Source interface {
    Changes(ctx context.Context) (<-chan struct{}, error)
    Close() error
}

// ErrStopped is returned when starting a coalescer that was already stopped.
var ErrStopped = errors.New("coalescer stopped")

// Debouncer restarts a timer on every Signal and calls fn once the timer
// survives a full window without another signal.
type Debouncer struct {
    clock  clock.Clock
    window time.Duration
    fn     func()

    mu      sync.Mutex
    timer   clock.Timer
    stopped bool
}

// NewDebouncer returns a debouncer. A nil clock means the wall clock; a
// non-positive window means DefaultWindow.
func NewDebouncer(c clock.Clock, window time.Duration, fn func()) *Debouncer {
    if c == nil {
        c = clock.Real{}
    }
    if window <= 0 {
        window = DefaultWindow
    }
    return &Debouncer{clock: c, window: window, fn: fn}
}

// Signal records a change and (re)starts the quiet-period timer.
func (d *Debouncer) Signal() {
    d.mu.Lock()
    defer d.mu.Unlock()
    if d.stopped {
        return
    }
    if d.timer != nil {
        d.timer.Stop()
    }
    var t clock.Timer
    t = d.clock.AfterFunc(d.window, func() {
        d.mu.Lock()
        if d.stopped || d.timer != t {
            d.mu.Unlock()
            return
        }
        d.timer = nil
        d.mu.Unlock()
        d.fn()
    })
    d.timer = t
}

// Pending reports whether a trigger is scheduled.
func (d *Debouncer) Pending() bool {
    d.mu.Lock()
    defer d.mu.Unlock()
    return d.timer != nil
}

// Cancel drops a scheduled trigger, if any.
func (d *Debouncer) Cancel() {
    d.mu.Lock()
    defer d.mu.Unlock()
    if d.timer != nil {
        d.timer.Stop()
        d.timer = nil
    }
}

// Stop cancels any scheduled trigger and ignores all later signals.
func (d *Debouncer) Stop() {
    d.mu.Lock()
    defer d.mu.Unlock()
    d.stopped = true
    if d.timer != nil {
        d.timer.Stop()
        d.timer = nil
    }
}

// Coalescer connects a Source to a Debouncer.
type Coalescer struct {
    src Source
    deb *Debouncer

    mu      sync.Mutex
    cancel  context.CancelFunc
    done    chan struct{}
    stopped bool
}

// New builds a coalescer that calls fn at most once per quiet window.
func New(src Source, c clock.Clock, window time.Duration, fn func()) *Coalescer {
    return &Coalescer{src: src, deb: NewDebouncer(c, window, fn)}
}

// Start subscribes to the source and feeds its signals into the debouncer
// until Stop is called or ctx is done.
func (c *Coalescer) Start(ctx context.Context) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.stopped {
        return ErrStopped
    }
    if c.cancel != nil {
        return nil
    }
    ctx, cancel := context.WithCancel(ctx)
    ch, err := c.src.Changes(ctx)
    if err != nil {
        cancel()
        return err
    }
    c.cancel = cancel
    c.done = make(chan struct{})
    go c.loop(ctx, ch, c.done)
    return nil
}

func (c *Coalescer) loop(ctx context.Context, ch <-chan struct{}, done chan struct{}) {
    defer close(done)
    for {
        select {
        case <-ctx.Done():
            return
        case _, ok := <-ch:
            if !ok {
                log.Debug().Msg("change source closed")
                return
            }
            c.deb.Signal()
        }
    }
}

// Signal injects a change signal directly, bypassing the source.
func (c *Coalescer) Signal() { c.deb.Signal() }

// Pending reports whether a debounced trigger is scheduled.
func (c *Coalescer) Pending() bool { return c.deb.Pending() }

// Stop disconnects the source, cancels any pending trigger and waits for the
// forwarding goroutine to exit. It is safe to call more than once.
func (c *Coalescer) Stop() {
    c.mu.Lock()
    if c.stopped {
        c.mu.Unlock()
        return
    }
    c.stopped = true
    cancel, done := c.cancel, c.done
    c.mu.Unlock()

    c.deb.Stop()
    if cancel != nil {
        cancel()
    }
    if err := c.src.Close(); err != nil {
        log.Warn().Err(err).Msg("close change source")
    }
    if done != nil {
        <-done
    }
}

// ChanSource is an in-process Source fed by Notify.
type ChanSource struct {
    ch     chan struct{}
    once   sync.Once
    closed chan struct{}
}

// NewChanSource returns a source with a small buffer; signals beyond the
// buffer are dropped since one pending signal is enough to trigger.
func NewChanSource() *ChanSource {
    return &ChanSource{ch: make(chan struct{}, 16), closed: make(chan struct{})}
}

// Notify records a change.
func (s *ChanSource) Notify() {
    select {
    case <-s.closed:
    case s.ch <- struct{}{}:
    default:
    }
}

func (s *ChanSource) Changes(ctx context.Context) (<-chan struct{}, error) {
    out := make(chan struct{})
    go func() {
        defer close(out)
        for {
            select {
            case <-ctx.Done():
                return
            case <-s.closed:
                return
            case <-s.ch:
                select {
                case out <- struct{}{}:
                case <-ctx.Done():
                    return
                case <-s.closed:
                    return
                }
            }
        }
    }()
    return out, nil
}

func (s *ChanSource) Close() error {
    s.once.Do(func() { close(s.closed) })
    return nil
}
