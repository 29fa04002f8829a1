// Package pipeline runs processing cycles: scan the document, send each new
// candidate for completion, reduce the reply to a letter and report it.
package pipeline

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/autodiscover/internal/answer"
    "github.com/hyperifyio/autodiscover/internal/clock"
    "github.com/hyperifyio/autodiscover/internal/document"
    "github.com/hyperifyio/autodiscover/internal/llm"
    "github.com/hyperifyio/autodiscover/internal/metrics"
    "github.com/hyperifyio/autodiscover/internal/notify"
    "github.com/hyperifyio/autodiscover/internal/scan"
    "github.com/hyperifyio/autodiscover/internal/textnorm"
)

// DefaultDelay is the pause after each completion call before the next
// candidate of the same cycle.
const DefaultDelay = 800 * time.Millisecond

// ErrCycleActive is returned when a cycle is requested while another runs.
// The request is dropped, not queued.
var ErrCycleActive = errors.New("processing cycle already active")

// Completer sends one normalized text for completion.
type Completer interface {
    Complete(ctx context.Context, text string) (llm.Reply, error)
}

// StopPolicy decides what happens to the outcome of a completion call that
// was in flight when observation stopped.
type StopPolicy int

const (
    // StopDiscard drops the outcome without notifying.
    StopDiscard StopPolicy = iota
    // StopEmit reports the outcome as usual.
    StopEmit
)

func (p StopPolicy) String() string {
    if p == StopEmit {
        return "emit"
    }
    return "discard"
}

// ParseStopPolicy maps "emit" or "discard" to a StopPolicy.
func ParseStopPolicy(s string) (StopPolicy, error) {
    switch s {
    case "", "discard":
        return StopDiscard, nil
    case "emit":
        return StopEmit, nil
    }
    return StopDiscard, fmt.Errorf("unknown stop policy %q", s)
}

// Processor runs one cycle at a time over a fresh view of the document.
type Processor struct {
    Loader    document.Loader
    Scanner   *scan.Scanner
    Completer Completer
    Sink      notify.Sink
    Session   *Session
    Clock     clock.Clock
    Metrics   *metrics.Metrics

    // MaxChars bounds the text sent per candidate (textnorm.DefaultMaxChars
    // when zero).
    MaxChars int
    // Delay is the pause after each completion call; zero disables it.
    Delay      time.Duration
    StopPolicy StopPolicy
    // Stopped, when set, reports that observation has stopped. No further
    // candidate is started once it returns true.
    Stopped func() bool
}

// Summary counts what one cycle did.
type Summary struct {
    Candidates int
    Skipped    int
    Sent       int
    Answers    int
    Unparsed   int
    Errors     int
    Fallback   bool
}

// Cycle scans the document once and dispatches each new candidate in turn.
// Failures of individual candidates are reported to the sink and never abort
// the rest of the batch. It returns ErrCycleActive when another cycle holds
// the session.
func (p *Processor) Cycle(ctx context.Context) (Summary, error) {
    var sum Summary
    if !p.Session.begin() {
        p.Metrics.CycleSkipped()
        log.Debug().Msg("still processing previous cycle; skipping")
        return sum, ErrCycleActive
    }
    defer p.Session.end()
    p.Metrics.CycleStarted()

    doc, err := p.Loader.Load(ctx)
    if err != nil {
        return sum, fmt.Errorf("load document: %w", err)
    }
    cands, err := p.scanner().Scan(ctx, doc)
    if err != nil {
        return sum, fmt.Errorf("scan: %w", err)
    }
    if len(cands) == 0 {
        cands, err = p.scanner().Fallback(ctx, doc)
        if err != nil {
            return sum, fmt.Errorf("fallback capture: %w", err)
        }
        sum.Fallback = len(cands) > 0
    }
    sum.Candidates = len(cands)

    for _, c := range cands {
        if p.stopped() || ctx.Err() != nil {
            break
        }
        p.Metrics.Candidate()
        text := textnorm.Normalize(c.Text, p.maxChars())
        if !p.Session.MarkSeen(text) {
            sum.Skipped++
            p.Metrics.Duplicate()
            log.Debug().Uint32("hash", textnorm.Fingerprint(text)).Msg("text already processed")
            continue
        }
        p.dispatch(ctx, c, text, &sum)
        if p.Delay > 0 {
            if err := p.clock().Sleep(ctx, p.Delay); err != nil {
                break
            }
        }
    }
    log.Debug().Int("candidates", sum.Candidates).Int("sent", sum.Sent).Int("skipped", sum.Skipped).Int("answers", sum.Answers).Msg("cycle complete")
    return sum, ctx.Err()
}

func (p *Processor) dispatch(ctx context.Context, c scan.Candidate, text string, sum *Summary) {
    p.emit(ctx, notify.Status(notify.StatusSending))
    log.Debug().Int("chars", textnorm.Len(text)).Str("source", c.Source).Str("rule", c.Rule).Msg("sending candidate")
    sum.Sent++
    reply, err := p.Completer.Complete(ctx, text)
    discard := p.stopped() && p.StopPolicy == StopDiscard
    if err != nil {
        sum.Errors++
        p.Metrics.Completed(metrics.OutcomeError, reply.Latency)
        log.Error().Err(err).Msg("completion failed")
        if !discard {
            p.emit(ctx, notify.Status(notify.StatusAPIError))
            p.emit(ctx, notify.Error(err.Error()))
        }
        return
    }
    a, rule := answer.ExtractWithRule(reply.Raw)
    if !a.Found {
        sum.Unparsed++
        p.Metrics.Completed(metrics.OutcomeRaw, reply.Latency)
        log.Warn().Str("raw", reply.Raw).Msg("could not extract a letter A-E")
        if !discard {
            p.emit(ctx, notify.Status(notify.StatusNoLetter))
            p.emit(ctx, notify.Raw(reply.Raw))
        }
        return
    }
    sum.Answers++
    p.Metrics.Completed(metrics.OutcomeResult, reply.Latency)
    log.Info().Str("letter", a.String()).Str("rule", rule).Str("source", c.Source).Dur("latency", reply.Latency).Msg("letter detected")
    if discard {
        log.Debug().Str("letter", a.String()).Msg("stopped; discarding result")
        return
    }
    p.emit(ctx, notify.Status(notify.Answered(a.Letter)))
    p.emit(ctx, notify.Result(a.Letter, reply.Raw, c.Source))
}

func (p *Processor) emit(ctx context.Context, ev notify.Event) {
    if p.Sink == nil {
        return
    }
    if err := p.Sink.Send(ctx, ev); err != nil {
        log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("notify failed")
    }
}

func (p *Processor) stopped() bool { return p.Stopped != nil && p.Stopped() }

func (p *Processor) scanner() *scan.Scanner {
    if p.Scanner == nil {
        p.Scanner = scan.New(scan.Options{})
    }
    return p.Scanner
}

func (p *Processor) clock() clock.Clock {
    if p.Clock == nil {
        return clock.Real{}
    }
    return p.Clock
}

func (p *Processor) maxChars() int {
    if p.MaxChars <= 0 {
        return textnorm.DefaultMaxChars
    }
    return p.MaxChars
}
