package notify

import (
    "context"

    "github.com/rs/zerolog/log"
)

// Router fans events out to all configured sinks. One sink error does not
// block the others: errors are logged and the first is returned.
type Router struct {
    sinks []Sink
}

// NewRouter creates a fan-out router delivering to all sinks. Nil sinks are
// skipped.
func NewRouter(sinks ...Sink) *Router {
    r := &Router{}
    for _, s := range sinks {
        if s != nil {
            r.sinks = append(r.sinks, s)
        }
    }
    return r
}

func (r *Router) Send(ctx context.Context, ev Event) error {
    var firstErr error
    for _, s := range r.sinks {
        if err := s.Send(ctx, ev); err != nil {
            log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("sink: send event failed")
            if firstErr == nil {
                firstErr = err
            }
        }
    }
    return firstErr
}

func (r *Router) Close() error {
    var firstErr error
    for _, s := range r.sinks {
        if err := s.Close(); err != nil && firstErr == nil {
            firstErr = err
        }
    }
    return firstErr
}
