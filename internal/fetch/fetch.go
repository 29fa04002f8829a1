package fetch

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "sync"
    "time"
)

// DefaultMaxBytes caps the size of a fetched page.
const DefaultMaxBytes = 8 << 20

// Page is the result of a GET.
type Page struct {
    Body        []byte
    ContentType string
    // NotModified is set when the server answered 304 to a conditional
    // request; Body is then empty.
    NotModified bool
}

// Client wraps http.Client and provides timeouts, limited retry on transient
// errors and conditional requests against the last seen validators.
type Client struct {
    HTTPClient *http.Client
    UserAgent  string
    // MaxAttempts includes the initial attempt. Minimum 1.
    MaxAttempts int
    // PerRequestTimeout bounds each request.
    PerRequestTimeout time.Duration
    // RedirectMaxHops caps redirect following to avoid loops. Zero means default (5).
    RedirectMaxHops int
    // MaxBytes caps the body size. Zero means DefaultMaxBytes.
    MaxBytes int64
    // Conditional sends If-None-Match/If-Modified-Since from the previous
    // response of the same URL.
    Conditional bool

    mu         sync.Mutex
    validators map[string]validator
}

type validator struct {
    etag    string
    lastMod string
}

func (c *Client) getHTTPClient() *http.Client {
    if c.HTTPClient != nil {
        // Clone to attach our redirect policy without mutating caller's client
        base := *c.HTTPClient
        base.CheckRedirect = c.checkRedirectFunc()
        return &base
    }
    return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirectFunc()}
}

// Get issues a GET with context, user-agent, and bounded retry for transient errors.
func (c *Client) Get(ctx context.Context, rawURL string) (Page, error) {
    v := c.validatorFor(rawURL)
    attempts := c.MaxAttempts
    if attempts <= 0 {
        attempts = 1
    }
    var lastErr error
    for i := 0; i < attempts; i++ {
        page, next, err := c.tryOnce(ctx, rawURL, v)
        if err == nil {
            if c.Conditional && !page.NotModified {
                c.remember(rawURL, next)
            }
            return page, nil
        }
        if !isTransient(err) || i == attempts-1 {
            return Page{}, err
        }
        lastErr = err
        select {
        case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
        case <-ctx.Done():
            return Page{}, ctx.Err()
        }
    }
    if lastErr == nil {
        lastErr = errors.New("unknown error")
    }
    return Page{}, lastErr
}

// Forget drops the validators remembered for rawURL so the next Get is
// unconditional.
func (c *Client) Forget(rawURL string) {
    c.mu.Lock()
    defer c.mu.Unlock()
    delete(c.validators, rawURL)
}

func (c *Client) validatorFor(rawURL string) validator {
    if !c.Conditional {
        return validator{}
    }
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.validators[rawURL]
}

func (c *Client) remember(rawURL string, v validator) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.validators == nil {
        c.validators = make(map[string]validator)
    }
    c.validators[rawURL] = v
}

// errServer marks 5xx responses, which are retried.
type errServer struct{ status int }

func (e errServer) Error() string { return fmt.Sprintf("server error: %d", e.status) }

func (c *Client) tryOnce(ctx context.Context, rawURL string, v validator) (Page, validator, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
    if err != nil {
        return Page{}, validator{}, fmt.Errorf("new request: %w", err)
    }
    // Reject non-HTTP(S) schemes early
    if !isHTTPScheme(req.URL) {
        return Page{}, validator{}, fmt.Errorf("unsupported URL scheme: %q", req.URL.String())
    }
    if c.UserAgent != "" {
        req.Header.Set("User-Agent", c.UserAgent)
    }
    if v.etag != "" {
        req.Header.Set("If-None-Match", v.etag)
    }
    if v.lastMod != "" {
        req.Header.Set("If-Modified-Since", v.lastMod)
    }

    if c.PerRequestTimeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(req.Context(), c.PerRequestTimeout)
        defer cancel()
        req = req.WithContext(ctx)
    }

    resp, err := c.getHTTPClient().Do(req)
    if err != nil {
        return Page{}, validator{}, err
    }
    defer resp.Body.Close()

    if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
        return Page{}, validator{}, errServer{status: resp.StatusCode}
    }
    if resp.StatusCode == http.StatusNotModified {
        return Page{ContentType: resp.Header.Get("Content-Type"), NotModified: true}, v, nil
    }
    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        return Page{}, validator{}, fmt.Errorf("unexpected status: %d", resp.StatusCode)
    }

    contentType := resp.Header.Get("Content-Type")
    if !isAllowedHTMLContentType(contentType) {
        return Page{}, validator{}, fmt.Errorf("unsupported content type: %s", contentType)
    }
    limit := c.MaxBytes
    if limit <= 0 {
        limit = DefaultMaxBytes
    }
    b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
    if err != nil {
        return Page{}, validator{}, fmt.Errorf("read body: %w", err)
    }
    next := validator{etag: resp.Header.Get("ETag"), lastMod: resp.Header.Get("Last-Modified")}
    return Page{Body: b, ContentType: contentType}, next, nil
}

func isTransient(err error) bool {
    // Treat HTTP 5xx and context deadline as transient.
    if errors.Is(err, context.DeadlineExceeded) {
        return true
    }
    var se errServer
    return errors.As(err, &se)
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
    max := c.RedirectMaxHops
    if max <= 0 {
        max = 5
    }
    return func(req *http.Request, via []*http.Request) error {
        if len(via) >= max {
            return errors.New("too many redirects")
        }
        // Only allow http/https during redirects
        if !isHTTPScheme(req.URL) {
            return errors.New("redirect to unsupported scheme")
        }
        return nil
    }
}

func isHTTPScheme(u *url.URL) bool {
    if u == nil {
        return false
    }
    scheme := strings.ToLower(u.Scheme)
    return scheme == "http" || scheme == "https"
}

func isAllowedHTMLContentType(ct string) bool {
    ct = strings.ToLower(strings.TrimSpace(ct))
    // allow text/html variants and application/xhtml+xml
    return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}
