package app

import "time"

// Config holds runtime configuration for the application.
type Config struct {
    // LLM
    LLMBaseURL        string
    LLMModel          string
    LLMAPIKey         string
    CompletionTimeout time.Duration

    // Document source: exactly one of WatchURL or WatchFile. Browser loads
    // WatchURL in Chrome instead of fetching it over plain HTTP.
    WatchURL      string
    WatchFile     string
    Browser       bool
    BrowserRemote string
    PollInterval  time.Duration

    // Processing
    Debounce      time.Duration
    Delay         time.Duration
    MaxCandidates int
    MaxChars      int
    Order         string
    StopPolicy    string

    // Surfaces
    ControlAddr    string
    WebhookURL     string
    TranscriptPath string

    // Behavior
    Once    bool
    Verbose bool
}
