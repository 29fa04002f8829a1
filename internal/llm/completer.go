package llm

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "sync"
    "time"

    "github.com/rs/zerolog/log"
    openai "github.com/sashabaranov/go-openai"
)

// SystemPrompt instructs the model to answer with a bare option letter.
const SystemPrompt = "You answer multiple-choice questions. Read the question and its options and respond with exactly one letter from A to E, with no explanation."

const (
    // DefaultTimeout bounds a single completion call.
    DefaultTimeout = 30 * time.Second
    // RawLimit caps the JSON fallback used when a reply carries no message text.
    RawLimit = 2000
    // errDetailLimit caps the server detail quoted in transport errors.
    errDetailLimit = 200
)

// ErrTransport marks failures to obtain a reply: network errors, non-2xx
// statuses, undecodable bodies and timeouts.
var ErrTransport = errors.New("completion transport error")

// ErrNotConfigured is returned when no model has been set.
var ErrNotConfigured = errors.New("completion client not configured")

// Reply is the text the completion service answered with.
type Reply struct {
    Raw     string
    Model   string
    Latency time.Duration
}

// Settings configure a Completer.
type Settings struct {
    BaseURL    string
    APIKey     string
    Model      string
    Timeout    time.Duration
    HTTPClient *http.Client
}

// Completer sends candidate texts to an OpenAI-compatible chat endpoint. The
// key and endpoint can be changed while it is in use; calls already in
// flight keep the settings they started with.
type Completer struct {
    mu        sync.RWMutex
    settings  Settings
    client    Client
    newClient func(Settings) Client
}

// NewCompleter returns a Completer backed by go-openai.
func NewCompleter(s Settings) *Completer {
    c := &Completer{settings: s, newClient: func(s Settings) Client {
        return NewOpenAI(s.BaseURL, s.APIKey, s.HTTPClient)
    }}
    c.client = c.newClient(s)
    return c
}

// NewCompleterWithClient returns a Completer that always uses client,
// whatever key or endpoint is set later.
func NewCompleterWithClient(client Client, s Settings) *Completer {
    return &Completer{settings: s, client: client, newClient: func(Settings) Client { return client }}
}

// SetAPIKey replaces the bearer key for subsequent calls. It is not persisted.
func (c *Completer) SetAPIKey(key string) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.settings.APIKey = key
    c.client = c.newClient(c.settings)
    log.Info().Msg("completion API key updated")
}

// SetBaseURL replaces the endpoint for subsequent calls. It is not persisted.
func (c *Completer) SetBaseURL(url string) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.settings.BaseURL = BaseURL(url)
    c.client = c.newClient(c.settings)
    log.Info().Str("base_url", c.settings.BaseURL).Msg("completion endpoint updated")
}

// Settings returns the current settings with the key redacted.
func (c *Completer) Settings() Settings {
    c.mu.RLock()
    defer c.mu.RUnlock()
    s := c.settings
    if s.APIKey != "" {
        s.APIKey = "***"
    }
    return s
}

// Lister returns the underlying client's model lister, if it has one.
func (c *Completer) Lister() (ModelLister, bool) {
    c.mu.RLock()
    defer c.mu.RUnlock()
    l, ok := c.client.(ModelLister)
    return l, ok
}

// Complete sends text as the user message and returns the reply. Every
// failure to get a reply wraps ErrTransport.
func (c *Completer) Complete(ctx context.Context, text string) (Reply, error) {
    c.mu.RLock()
    s, client := c.settings, c.client
    c.mu.RUnlock()
    if client == nil || strings.TrimSpace(s.Model) == "" {
        return Reply{}, ErrNotConfigured
    }
    timeout := s.Timeout
    if timeout <= 0 {
        timeout = DefaultTimeout
    }
    ctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()

    req := openai.ChatCompletionRequest{
        Model: s.Model,
        Messages: []openai.ChatCompletionMessage{
            {Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
            {Role: openai.ChatMessageRoleUser, Content: text},
        },
        Temperature: 0,
        N:           1,
    }
    log.Debug().Int("chars", len([]rune(text))).Str("model", s.Model).Msg("sending completion")
    start := time.Now()
    resp, err := client.CreateChatCompletion(ctx, req)
    latency := time.Since(start)
    if err != nil {
        return Reply{Latency: latency}, describe(ctx, err, timeout)
    }
    model := resp.Model
    if model == "" {
        model = s.Model
    }
    return Reply{Raw: Envelope(resp), Model: model, Latency: latency}, nil
}

// Envelope pulls the reply text out of a response: the first choice's message
// content, or else the response itself as JSON, truncated to RawLimit
// characters.
func Envelope(resp openai.ChatCompletionResponse) string {
    if len(resp.Choices) > 0 {
        if s := resp.Choices[0].Message.Content; strings.TrimSpace(s) != "" {
            return s
        }
    }
    b, err := json.Marshal(resp)
    if err != nil {
        return ""
    }
    return truncate(string(b), RawLimit)
}

// describe turns a client error into an ErrTransport carrying the HTTP status
// and a bounded slice of the server's message.
func describe(ctx context.Context, err error, timeout time.Duration) error {
    var apiErr *openai.APIError
    if errors.As(err, &apiErr) {
        return fmt.Errorf("%w: %s", ErrTransport, statusLine(apiErr.HTTPStatusCode, apiErr.Message))
    }
    var reqErr *openai.RequestError
    if errors.As(err, &reqErr) {
        detail := ""
        if reqErr.Err != nil {
            detail = reqErr.Err.Error()
        }
        return fmt.Errorf("%w: %s", ErrTransport, statusLine(reqErr.HTTPStatusCode, detail))
    }
    if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
        return fmt.Errorf("%w: no reply within %s: %w", ErrTransport, timeout, context.DeadlineExceeded)
    }
    return fmt.Errorf("%w: %w", ErrTransport, err)
}

func statusLine(code int, detail string) string {
    line := fmt.Sprintf("HTTP %d %s", code, http.StatusText(code))
    if d := strings.TrimSpace(detail); d != "" {
        line += " - " + truncate(d, errDetailLimit)
    }
    return line
}

func truncate(s string, n int) string {
    r := []rune(s)
    if len(r) <= n {
        return s
    }
    return string(r[:n])
}
