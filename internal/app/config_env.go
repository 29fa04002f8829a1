package app

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
    if cfg == nil { return }

    setString := func(dst *string, envKey string) {
        if *dst == "" { *dst = strings.TrimSpace(os.Getenv(envKey)) }
    }
    setString(&cfg.LLMBaseURL, "LLM_BASE_URL")
    setString(&cfg.LLMModel, "LLM_MODEL")
    setString(&cfg.LLMAPIKey, "LLM_API_KEY")
    setString(&cfg.WatchURL, "WATCH_URL")
    setString(&cfg.WatchFile, "WATCH_FILE")
    setString(&cfg.BrowserRemote, "BROWSER_REMOTE")
    setString(&cfg.ControlAddr, "CONTROL_ADDR")
    setString(&cfg.WebhookURL, "WEBHOOK_URL")
    setString(&cfg.TranscriptPath, "TRANSCRIPT_PATH")

    setDuration := func(dst *time.Duration, envKey string) {
        if *dst != 0 { return }
        if d, ok := envDuration(envKey); ok { *dst = d }
    }
    setDuration(&cfg.Debounce, "DEBOUNCE")
    setDuration(&cfg.CompletionTimeout, "COMPLETION_TIMEOUT")

    if cfg.MaxCandidates == 0 {
        if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("MAX_CANDIDATES"))); err == nil && n > 0 {
            cfg.MaxCandidates = n
        }
    }

    // Booleans
    setBool := func(dst *bool, envKey string) {
        if *dst { return }
        if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
            if s == "1" || s == "true" || s == "yes" || s == "on" {
                *dst = true
            }
        }
    }
    setBool(&cfg.Verbose, "VERBOSE")
    setBool(&cfg.Browser, "BROWSER")
}

// ApplyEnvOverrides forcefully overrides cfg fields with environment variables
// when the corresponding env vars are set. This is used to let env take
// precedence over values coming from a config file while still allowing flags
// to remain highest precedence.
func ApplyEnvOverrides(cfg *Config) {
    if cfg == nil { return }

    if v := os.Getenv("LLM_BASE_URL"); v != "" { cfg.LLMBaseURL = v }
    if v := os.Getenv("LLM_MODEL"); v != "" { cfg.LLMModel = v }
    if v := os.Getenv("LLM_API_KEY"); v != "" { cfg.LLMAPIKey = v }
    if v := os.Getenv("WATCH_URL"); v != "" { cfg.WatchURL = v }
    if v := os.Getenv("WATCH_FILE"); v != "" { cfg.WatchFile = v }
    if v := os.Getenv("BROWSER_REMOTE"); v != "" { cfg.BrowserRemote = v }
    if v := os.Getenv("CONTROL_ADDR"); v != "" { cfg.ControlAddr = v }
    if v := os.Getenv("WEBHOOK_URL"); v != "" { cfg.WebhookURL = v }
    if v := os.Getenv("TRANSCRIPT_PATH"); v != "" { cfg.TranscriptPath = v }

    if d, ok := envDuration("DEBOUNCE"); ok { cfg.Debounce = d }
    if d, ok := envDuration("COMPLETION_TIMEOUT"); ok { cfg.CompletionTimeout = d }
    if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("MAX_CANDIDATES"))); err == nil && n > 0 {
        cfg.MaxCandidates = n
    }

    // Booleans override when env present and truthy/falsey
    setBool := func(dst *bool, envKey string) {
        if s := strings.ToLower(strings.TrimSpace(os.Getenv(envKey))); s != "" {
            switch s {
            case "1", "true", "yes", "on":
                *dst = true
            case "0", "false", "no", "off":
                *dst = false
            }
        }
    }
    setBool(&cfg.Verbose, "VERBOSE")
    setBool(&cfg.Browser, "BROWSER")
}

// envDuration reads a Go duration ("1.5s") or a bare number of milliseconds.
func envDuration(key string) (time.Duration, bool) {
    s := strings.TrimSpace(os.Getenv(key))
    if s == "" { return 0, false }
    if n, err := strconv.Atoi(s); err == nil && n >= 0 {
        return time.Duration(n) * time.Millisecond, true
    }
    d, err := time.ParseDuration(s)
    if err != nil || d < 0 { return 0, false }
    return d, true
}
