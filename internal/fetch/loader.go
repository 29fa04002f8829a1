package fetch

import (
    "context"
    "crypto/sha256"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/autodiscover/internal/document"
)

// Loader fetches and parses a page for every processing cycle. A 304 answer
// reuses the previously parsed document.
type Loader struct {
    URL    string
    Client *Client

    mu   sync.Mutex
    last *document.HTMLDocument
}

func (l *Loader) Load(ctx context.Context) (document.Document, error) {
    page, err := l.Client.Get(ctx, l.URL)
    if err != nil {
        return nil, fmt.Errorf("fetch %s: %w", l.URL, err)
    }
    l.mu.Lock()
    defer l.mu.Unlock()
    if page.NotModified {
        if l.last != nil {
            return l.last, nil
        }
        // Nothing cached to reuse; fetch unconditionally.
        l.Client.Forget(l.URL)
        page, err = l.Client.Get(ctx, l.URL)
        if err != nil {
            return nil, fmt.Errorf("fetch %s: %w", l.URL, err)
        }
    }
    doc, err := document.FromHTML(page.Body)
    if err != nil {
        return nil, err
    }
    l.last = doc
    return doc, nil
}

// DefaultPollInterval is how often PollSource re-fetches the page.
const DefaultPollInterval = 2 * time.Second

// PollSource signals a change whenever the fetched page body differs from
// the previous fetch. Give it its own Client: validators are per client.
type PollSource struct {
    URL      string
    Client   *Client
    Interval time.Duration

    once   sync.Once
    closed chan struct{}
}

// NewPollSource polls url every interval (DefaultPollInterval when zero).
func NewPollSource(url string, c *Client, interval time.Duration) *PollSource {
    if interval <= 0 {
        interval = DefaultPollInterval
    }
    return &PollSource{URL: url, Client: c, Interval: interval, closed: make(chan struct{})}
}

// Changes fetches the page once as the baseline, then polls until ctx is done
// or Close is called.
func (p *PollSource) Changes(ctx context.Context) (<-chan struct{}, error) {
    if p.closed == nil {
        return nil, errors.New("poll source not initialised; use NewPollSource")
    }
    last, err := p.digest(ctx)
    if err != nil {
        return nil, err
    }
    out := make(chan struct{}, 1)
    go func() {
        defer close(out)
        t := time.NewTicker(p.Interval)
        defer t.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-p.closed:
                return
            case <-t.C:
            }
            d, err := p.digest(ctx)
            if err != nil {
                log.Debug().Err(err).Str("url", p.URL).Msg("poll failed")
                continue
            }
            if d == last || d == ([sha256.Size]byte{}) {
                continue
            }
            last = d
            select {
            case out <- struct{}{}:
            default:
            }
        }
    }()
    return out, nil
}

// digest returns the body hash, or the zero hash when the server reports
// the page unchanged.
func (p *PollSource) digest(ctx context.Context) ([sha256.Size]byte, error) {
    page, err := p.Client.Get(ctx, p.URL)
    if err != nil {
        return [sha256.Size]byte{}, err
    }
    if page.NotModified {
        return [sha256.Size]byte{}, nil
    }
    return sha256.Sum256(page.Body), nil
}

func (p *PollSource) Close() error {
    if p.closed != nil {
        p.once.Do(func() { close(p.closed) })
    }
    return nil
}
