package browser

import (
    "context"
    "sync"
    "time"

    "github.com/rs/zerolog/log"
)

// DefaultPollInterval is how often MutationSource reads the mutation
// counter.
const DefaultPollInterval = 250 * time.Millisecond

// counterScript installs a MutationObserver on first use and returns the
// document's time origin with the number of mutation batches seen. A
// navigation drops the observer; the new time origin still reads as a change.
const counterScript = `() => {
    if (!window.__autodiscoverObserver) {
        window.__autodiscoverMutations = 0;
        window.__autodiscoverObserver = new MutationObserver(() => { window.__autodiscoverMutations++; });
        window.__autodiscoverObserver.observe(document.documentElement,
            { childList: true, subtree: true, characterData: true });
    }
    return performance.timeOrigin + ':' + window.__autodiscoverMutations;
}`

// MutationSource reports DOM mutations in the session's tab. Each Start of
// the controller takes a fresh source.
type MutationSource struct {
    session  *Session
    interval time.Duration

    once   sync.Once
    closed chan struct{}
}

func NewMutationSource(s *Session, interval time.Duration) *MutationSource {
    if interval <= 0 {
        interval = DefaultPollInterval
    }
    return &MutationSource{session: s, interval: interval, closed: make(chan struct{})}
}

func (m *MutationSource) read(ctx context.Context) (string, error) {
    return m.session.eval(ctx, counterScript)
}

func (m *MutationSource) Changes(ctx context.Context) (<-chan struct{}, error) {
    last, err := m.read(ctx)
    if err != nil {
        return nil, err
    }
    out := make(chan struct{}, 1)
    go func() {
        defer close(out)
        t := time.NewTicker(m.interval)
        defer t.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-m.closed:
                return
            case <-t.C:
            }
            n, err := m.read(ctx)
            if err != nil {
                log.Debug().Err(err).Msg("browser: read mutation counter")
                continue
            }
            if n == last {
                continue
            }
            last = n
            select {
            case out <- struct{}{}:
            default:
            }
        }
    }()
    return out, nil
}

func (m *MutationSource) Close() error {
    m.once.Do(func() { close(m.closed) })
    return nil
}
