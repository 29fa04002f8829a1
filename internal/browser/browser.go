// Package browser drives a real Chrome tab through the DevTools protocol so
// pages that render their questions with script can be scanned as the user
// sees them.
package browser

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/go-rod/rod"
    "github.com/go-rod/rod/lib/launcher"
    "github.com/go-rod/rod/lib/proto"
    "github.com/go-rod/stealth"
    "github.com/rs/zerolog/log"
)

// DefaultNavigateTimeout bounds the initial navigation and load wait.
const DefaultNavigateTimeout = 30 * time.Second

// Config selects how Chrome is reached.
type Config struct {
    // RemoteURL is the DevTools WebSocket URL of an already running Chrome.
    // Empty launches a local headless instance.
    RemoteURL string
    // Headful shows the launched window. Ignored for remote browsers.
    Headful bool
    // Stealth applies the go-rod/stealth evasions to the tab.
    Stealth         bool
    NavigateTimeout time.Duration
}

// Session owns one browser connection and the tab the watched page is
// loaded in.
type Session struct {
    URL string

    mu      sync.Mutex
    browser *rod.Browser
    lnch    *launcher.Launcher
    page    *rod.Page
    closed  bool
}

// Open connects to Chrome, opens a tab and navigates it to pageURL.
func Open(ctx context.Context, cfg Config, pageURL string) (*Session, error) {
    if pageURL == "" {
        return nil, errors.New("browser: page url required")
    }
    s := &Session{URL: pageURL}
    wsURL := cfg.RemoteURL
    if wsURL == "" {
        l := launcher.New().Headless(!cfg.Headful).Set("disable-blink-features", "AutomationControlled")
        u, err := l.Launch()
        if err != nil {
            return nil, fmt.Errorf("browser: launch: %w", err)
        }
        wsURL = u
        s.lnch = l
        log.Debug().Str("url", wsURL).Msg("browser: launched local chrome")
    } else {
        log.Debug().Str("url", wsURL).Msg("browser: connecting to remote")
    }

    b := rod.New().ControlURL(wsURL)
    if err := b.Connect(); err != nil {
        s.cleanup()
        return nil, fmt.Errorf("browser: connect: %w", err)
    }
    s.browser = b

    var page *rod.Page
    var err error
    if cfg.Stealth {
        page, err = stealth.Page(b)
    } else {
        page, err = b.Page(proto.TargetCreateTarget{URL: ""})
    }
    if err != nil {
        s.cleanup()
        return nil, fmt.Errorf("browser: create tab: %w", err)
    }
    s.page = page

    timeout := cfg.NavigateTimeout
    if timeout <= 0 {
        timeout = DefaultNavigateTimeout
    }
    navCtx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()
    if err := page.Context(navCtx).Navigate(pageURL); err != nil {
        s.cleanup()
        return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
    }
    if err := page.Context(navCtx).WaitLoad(); err != nil {
        log.Warn().Err(err).Str("url", pageURL).Msg("browser: wait load")
    }
    return s, nil
}

// eval runs a script returning a string in the tab.
func (s *Session) eval(ctx context.Context, js string) (string, error) {
    s.mu.Lock()
    page, closed := s.page, s.closed
    s.mu.Unlock()
    if closed || page == nil {
        return "", errors.New("browser: session closed")
    }
    res, err := page.Context(ctx).Eval(js)
    if err != nil {
        return "", err
    }
    return res.Value.Str(), nil
}

// Close closes the tab and, when it was launched here, the browser.
func (s *Session) Close() error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed {
        return nil
    }
    s.closed = true
    s.cleanup()
    return nil
}

func (s *Session) cleanup() {
    if s.page != nil {
        _ = s.page.Close()
        s.page = nil
    }
    // A remote Chrome belongs to whoever started it.
    if s.browser != nil && s.lnch != nil {
        _ = s.browser.Close()
    }
    s.browser = nil
    if s.lnch != nil {
        s.lnch.Cleanup()
        s.lnch = nil
    }
}
