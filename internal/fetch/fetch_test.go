package fetch

import (
    "context"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "sync/atomic"
    "testing"
    "time"
)

func TestGet_Success(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Header.Get("User-Agent") != "autodiscover-test" {
            w.WriteHeader(http.StatusForbidden)
            return
        }
        w.Header().Set("Content-Type", "text/html; charset=utf-8")
        w.WriteHeader(200)
        _, _ = w.Write([]byte("<html><body>ok</body></html>"))
    }))
    defer srv.Close()

    c := &Client{UserAgent: "autodiscover-test", MaxAttempts: 2, PerRequestTimeout: 2 * time.Second}
    page, err := c.Get(context.Background(), srv.URL)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if page.ContentType == "" || string(page.Body) == "" || page.NotModified {
        t.Fatalf("unexpected page %+v", page)
    }
}

func TestGet_RetryOn5xx(t *testing.T) {
    var calls int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if atomic.AddInt32(&calls, 1) == 1 {
            w.WriteHeader(502)
            return
        }
        w.Header().Set("Content-Type", "text/html; charset=utf-8")
        w.WriteHeader(200)
        _, _ = w.Write([]byte("<html>ok</html>"))
    }))
    defer srv.Close()

    c := &Client{MaxAttempts: 2, PerRequestTimeout: 2 * time.Second}
    if _, err := c.Get(context.Background(), srv.URL); err != nil {
        t.Fatalf("expected success after retry, got %v", err)
    }
    if atomic.LoadInt32(&calls) != 2 {
        t.Fatalf("calls=%d", calls)
    }
}

func TestGet_NoRetryOn4xx(t *testing.T) {
    var calls int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        atomic.AddInt32(&calls, 1)
        w.WriteHeader(404)
    }))
    defer srv.Close()

    c := &Client{MaxAttempts: 3, PerRequestTimeout: 2 * time.Second}
    if _, err := c.Get(context.Background(), srv.URL); err == nil || !strings.Contains(err.Error(), "404") {
        t.Fatalf("expected status error, got %v", err)
    }
    if atomic.LoadInt32(&calls) != 1 {
        t.Fatalf("4xx should not be retried, calls=%d", calls)
    }
}

func TestGet_ConditionalRequest(t *testing.T) {
    etag := `"abc123"`
    var conditional int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "text/html")
        if r.Header.Get("If-None-Match") == etag {
            atomic.AddInt32(&conditional, 1)
            w.WriteHeader(http.StatusNotModified)
            return
        }
        w.Header().Set("ETag", etag)
        _, _ = w.Write([]byte("first"))
    }))
    defer srv.Close()

    c := &Client{MaxAttempts: 1, PerRequestTimeout: 2 * time.Second, Conditional: true}
    p1, err := c.Get(context.Background(), srv.URL)
    if err != nil || string(p1.Body) != "first" {
        t.Fatalf("first get: %v %q", err, p1.Body)
    }
    p2, err := c.Get(context.Background(), srv.URL)
    if err != nil || !p2.NotModified {
        t.Fatalf("second get should be 304: %v %+v", err, p2)
    }
    c.Forget(srv.URL)
    p3, err := c.Get(context.Background(), srv.URL)
    if err != nil || p3.NotModified || atomic.LoadInt32(&conditional) != 1 {
        t.Fatalf("forget should make the next get unconditional: %v %+v", err, p3)
    }
}

func TestGet_RejectsNonHTTP(t *testing.T) {
    c := &Client{MaxAttempts: 1, PerRequestTimeout: 1 * time.Second}
    if _, err := c.Get(context.Background(), "file:///etc/hosts"); err == nil {
        t.Fatalf("expected error for non-http scheme")
    }
}

func TestGet_ContentTypeGating(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "application/pdf")
        w.WriteHeader(200)
        _, _ = w.Write([]byte("%PDF-1.7"))
    }))
    defer srv.Close()

    c := &Client{MaxAttempts: 1, PerRequestTimeout: 2 * time.Second}
    if _, err := c.Get(context.Background(), srv.URL); err == nil {
        t.Fatalf("expected error for unsupported content type")
    }
}

func TestGet_RedirectLimit(t *testing.T) {
    // With RedirectMaxHops=1 a single redirect already fails.
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path == "/" {
            http.Redirect(w, r, "/next", http.StatusFound)
            return
        }
        w.Header().Set("Content-Type", "text/html")
        _, _ = w.Write([]byte("ok"))
    }))
    defer srv.Close()

    c := &Client{MaxAttempts: 1, PerRequestTimeout: 2 * time.Second, RedirectMaxHops: 1}
    if _, err := c.Get(context.Background(), srv.URL); err == nil {
        t.Fatalf("expected redirect limit error")
    }
}

func TestGet_MaxBytes(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "text/html")
        _, _ = w.Write([]byte(strings.Repeat("x", 1000)))
    }))
    defer srv.Close()

    c := &Client{MaxAttempts: 1, MaxBytes: 10}
    page, err := c.Get(context.Background(), srv.URL)
    if err != nil || len(page.Body) != 10 {
        t.Fatalf("body not capped: %v %d", err, len(page.Body))
    }
}

type pageServer struct {
    mu   sync.Mutex
    body string
    hits int
}

func (p *pageServer) set(body string) {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.body = body
}

func (p *pageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
    p.mu.Lock()
    body := p.body
    p.hits++
    p.mu.Unlock()
    etag := `"` + strings.ReplaceAll(body, `"`, "") + `"`
    if len(body) < 200 && r.Header.Get("If-None-Match") == etag {
        w.WriteHeader(http.StatusNotModified)
        return
    }
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    if len(body) < 200 {
        w.Header().Set("ETag", etag)
    }
    _, _ = w.Write([]byte(body))
}

func TestLoader_ParsesAndReusesOn304(t *testing.T) {
    ps := &pageServer{body: `<html><body><div id="q">Question? A) x B) y</div></body></html>`}
    srv := httptest.NewServer(ps)
    defer srv.Close()

    l := &Loader{URL: srv.URL, Client: &Client{MaxAttempts: 1, Conditional: true}}
    d1, err := l.Load(context.Background())
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    els, _ := d1.Elements(context.Background())
    if len(els) != 1 || els[0].ID() != "q" {
        t.Fatalf("unexpected elements %v", els)
    }
    d2, err := l.Load(context.Background())
    if err != nil {
        t.Fatalf("second load: %v", err)
    }
    if d2 != d1 {
        t.Fatalf("304 should reuse the parsed document")
    }
}

func TestPollSource_SignalsOnBodyChange(t *testing.T) {
    ps := &pageServer{body: "<html><body>one</body></html>"}
    srv := httptest.NewServer(ps)
    defer srv.Close()

    src := NewPollSource(srv.URL, &Client{MaxAttempts: 1, Conditional: true}, 10*time.Millisecond)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    ch, err := src.Changes(ctx)
    if err != nil {
        t.Fatalf("changes: %v", err)
    }
    select {
    case <-ch:
        t.Fatalf("signal without a change")
    case <-time.After(60 * time.Millisecond):
    }
    ps.set("<html><body>two</body></html>")
    select {
    case <-ch:
    case <-time.After(2 * time.Second):
        t.Fatalf("no signal after the page changed")
    }
    _ = src.Close()
    for range ch {
    }
}

func TestPollSource_UnreachableBaseline(t *testing.T) {
    src := NewPollSource("http://127.0.0.1:1/", &Client{MaxAttempts: 1, PerRequestTimeout: time.Second}, 0)
    if _, err := src.Changes(context.Background()); err == nil {
        t.Fatalf("expected baseline fetch error")
    }
}
