package notify

import (
    "context"
    "encoding/json"
    "io"
    "os"
    "sync"

    "github.com/rs/zerolog/log"
)

// Func adapts a function to Sink, for in-process consumers.
type Func func(ctx context.Context, ev Event) error

func (f Func) Send(ctx context.Context, ev Event) error {
    if f == nil {
        return nil
    }
    return f(ctx, ev)
}

func (Func) Close() error { return nil }

// Lines writes events as JSON lines to an io.Writer (default os.Stdout).
type Lines struct {
    mu  sync.Mutex
    enc *json.Encoder
}

// NewLines creates a Lines sink. If w is nil, os.Stdout is used.
func NewLines(w io.Writer) *Lines {
    if w == nil {
        w = os.Stdout
    }
    return &Lines{enc: json.NewEncoder(w)}
}

func (l *Lines) Send(_ context.Context, ev Event) error {
    l.mu.Lock()
    defer l.mu.Unlock()
    return l.enc.Encode(envelope{Type: string(ev.Kind), Data: ev})
}

func (l *Lines) Close() error { return nil }

// LogSink writes events to the global zerolog logger.
type LogSink struct{}

func (LogSink) Send(_ context.Context, ev Event) error {
    switch ev.Kind {
    case KindResult:
        log.Info().Str("letter", ev.Letter).Str("source", ev.Source).Msg("letter detected")
    case KindRaw:
        log.Warn().Str("raw", ev.Raw).Msg("could not extract a letter A-E")
    case KindError:
        log.Error().Str("error", ev.Message).Msg("completion failed")
    default:
        log.Debug().Str("status", ev.Message).Msg("notice")
    }
    return nil
}

func (LogSink) Close() error { return nil }
