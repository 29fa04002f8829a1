package pipeline

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "sync/atomic"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/autodiscover/internal/clock"
    "github.com/hyperifyio/autodiscover/internal/coalesce"
    "github.com/hyperifyio/autodiscover/internal/notify"
)

// DefaultInitialDelay is how long after Start the first cycle runs.
const DefaultInitialDelay = 400 * time.Millisecond

// ErrNotRunning is returned by Trigger while observation is stopped.
var ErrNotRunning = errors.New("observation is stopped")

// ErrNotReconfigurable is returned when the completer cannot change its key
// or endpoint.
var ErrNotReconfigurable = errors.New("completer cannot be reconfigured")

// Reconfigurer is implemented by completers whose key and endpoint can change
// at runtime.
type Reconfigurer interface {
    SetAPIKey(key string)
    SetBaseURL(url string)
}

// SourceFunc opens a fresh change source for each Start.
type SourceFunc func() (coalesce.Source, error)

// ControllerOptions configure a Controller.
type ControllerOptions struct {
    // Source opens the change source. Without one, only the initial cycle and
    // explicit triggers run.
    Source       SourceFunc
    Window       time.Duration
    InitialDelay time.Duration
}

// Status is a snapshot of the controller for the control surface.
type Status struct {
    Running    bool      `json:"running"`
    Processing bool      `json:"processing"`
    SeenTexts  int       `json:"seen_texts"`
    Cycles     int64     `json:"cycles"`
    LastCycle  time.Time `json:"last_cycle,omitempty"`
    LastError  string    `json:"last_error,omitempty"`
}

// Controller owns the session lifecycle: it connects the change source to the
// processor through the debouncer, and exposes start, stop, trigger and
// runtime reconfiguration.
type Controller struct {
    proc  *Processor
    opts  ControllerOptions
    clock clock.Clock

    running atomic.Bool
    cycles  atomic.Int64

    mu        sync.Mutex
    ctx       context.Context
    cancel    context.CancelFunc
    coalescer *coalesce.Coalescer
    initTimer clock.Timer
    lastCycle time.Time
    lastErr   error

    wg sync.WaitGroup
}

// NewController wires p to the change source described by opts. It takes over
// p.Stopped.
func NewController(p *Processor, opts ControllerOptions) *Controller {
    if opts.Window <= 0 {
        opts.Window = coalesce.DefaultWindow
    }
    if opts.InitialDelay <= 0 {
        opts.InitialDelay = DefaultInitialDelay
    }
    if p.Session == nil {
        p.Session = NewSession()
    }
    c := &Controller{proc: p, opts: opts, clock: p.clock()}
    p.Stopped = func() bool { return !c.running.Load() }
    return c
}

// Start begins observation: the first cycle runs after the initial delay and
// every debounced change after that triggers another. Starting a running
// controller is a no-op.
func (c *Controller) Start(ctx context.Context) error {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.running.Load() {
        return nil
    }
    // A cycle left over from before the last Stop belongs to the old run.
    if c.cancel != nil {
        c.cancel()
    }
    c.ctx, c.cancel = context.WithCancel(ctx)
    if c.opts.Source != nil {
        src, err := c.opts.Source()
        if err != nil {
            c.cancel()
            return fmt.Errorf("open change source: %w", err)
        }
        co := coalesce.New(src, c.clock, c.opts.Window, c.fire)
        if err := co.Start(c.ctx); err != nil {
            c.cancel()
            return fmt.Errorf("observe changes: %w", err)
        }
        c.coalescer = co
    }
    c.running.Store(true)
    c.initTimer = c.clock.AfterFunc(c.opts.InitialDelay, c.fire)
    c.proc.emit(c.ctx, notify.Status(notify.StatusActive))
    log.Info().Dur("debounce", c.opts.Window).Msg("observing changes")
    return nil
}

// Stop disconnects the change source and cancels any pending trigger. A
// cycle already in flight finishes its current call; see StopPolicy.
func (c *Controller) Stop() {
    c.mu.Lock()
    if !c.running.Load() {
        c.mu.Unlock()
        return
    }
    c.running.Store(false)
    co, t := c.coalescer, c.initTimer
    c.coalescer, c.initTimer = nil, nil
    ctx := c.ctx
    c.mu.Unlock()

    if t != nil {
        t.Stop()
    }
    if co != nil {
        co.Stop()
    }
    c.proc.emit(ctx, notify.Status(notify.StatusStopped))
    log.Info().Msg("observer stopped")
}

// Close stops observation, cancels in-flight work and waits for it.
func (c *Controller) Close() {
    c.Stop()
    c.mu.Lock()
    cancel := c.cancel
    c.mu.Unlock()
    if cancel != nil {
        cancel()
    }
    c.wg.Wait()
}

// Trigger runs a cycle now, in the background.
func (c *Controller) Trigger() error {
    if !c.running.Load() {
        return ErrNotRunning
    }
    if c.proc.Session.Processing() {
        c.proc.Metrics.CycleSkipped()
        return ErrCycleActive
    }
    c.fire()
    return nil
}

// Signal feeds a change notice into the debouncer, as the change source
// would.
func (c *Controller) Signal() {
    c.mu.Lock()
    co := c.coalescer
    c.mu.Unlock()
    if co != nil {
        co.Signal()
    }
}

// fire starts a cycle on its own goroutine so timers and callers never wait
// on the completion service.
func (c *Controller) fire() {
    c.mu.Lock()
    ctx := c.ctx
    if ctx == nil || !c.running.Load() {
        c.mu.Unlock()
        return
    }
    c.wg.Add(1)
    c.mu.Unlock()
    go func() {
        defer c.wg.Done()
        c.RunOnce(ctx)
    }()
}

// RunOnce runs a cycle on the calling goroutine.
func (c *Controller) RunOnce(ctx context.Context) (Summary, error) {
    sum, err := c.proc.Cycle(ctx)
    if errors.Is(err, ErrCycleActive) {
        return sum, err
    }
    c.cycles.Add(1)
    c.mu.Lock()
    c.lastCycle = c.clock.Now()
    c.lastErr = err
    c.mu.Unlock()
    if err != nil && !errors.Is(err, context.Canceled) {
        log.Warn().Err(err).Msg("processing cycle failed")
    }
    return sum, err
}

// SetAPIKey replaces the completion key for subsequent calls.
func (c *Controller) SetAPIKey(key string) error {
    r, ok := c.proc.Completer.(Reconfigurer)
    if !ok {
        return ErrNotReconfigurable
    }
    r.SetAPIKey(key)
    return nil
}

// SetEndpoint replaces the completion endpoint for subsequent calls.
func (c *Controller) SetEndpoint(url string) error {
    r, ok := c.proc.Completer.(Reconfigurer)
    if !ok {
        return ErrNotReconfigurable
    }
    r.SetBaseURL(url)
    return nil
}

// Reset forgets every processed text so it can be answered again.
func (c *Controller) Reset() {
    c.proc.Session.Reset()
    log.Info().Msg("processed texts cleared")
}

// Session returns the controller's session.
func (c *Controller) Session() *Session { return c.proc.Session }

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
    c.mu.Lock()
    defer c.mu.Unlock()
    s := Status{
        Running:    c.running.Load(),
        Processing: c.proc.Session.Processing(),
        SeenTexts:  c.proc.Session.Len(),
        Cycles:     c.cycles.Load(),
        LastCycle:  c.lastCycle,
    }
    if c.lastErr != nil {
        s.LastError = c.lastErr.Error()
    }
    return s
}
