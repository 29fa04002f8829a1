package app

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "os"
    "path/filepath"
    "strings"
    "time"

    yaml "gopkg.in/yaml.v3"

    "github.com/hyperifyio/autodiscover/internal/pipeline"
    "github.com/hyperifyio/autodiscover/internal/scan"
)

// FileConfig represents the single-file configuration schema.
// Nested sections improve readability and map naturally to flags/env.
// Durations are Go duration strings ("1200ms").
type FileConfig struct {
    LLM struct {
        BaseURL string `yaml:"base" json:"base"`
        Model   string `yaml:"model" json:"model"`
        APIKey  string `yaml:"key" json:"key"`
        Timeout string `yaml:"timeout" json:"timeout"`
    } `yaml:"llm" json:"llm"`

    Watch struct {
        URL          string `yaml:"url" json:"url"`
        File         string `yaml:"file" json:"file"`
        PollInterval string `yaml:"pollInterval" json:"pollInterval"`
    } `yaml:"watch" json:"watch"`

    Browser struct {
        Enable bool   `yaml:"enable" json:"enable"`
        Remote string `yaml:"remote" json:"remote"`
    } `yaml:"browser" json:"browser"`

    Scan struct {
        MaxCandidates int    `yaml:"maxCandidates" json:"maxCandidates"`
        MaxChars      int    `yaml:"maxChars" json:"maxChars"`
        Order         string `yaml:"order" json:"order"`
    } `yaml:"scan" json:"scan"`

    Debounce   string `yaml:"debounce" json:"debounce"`
    Delay      string `yaml:"delay" json:"delay"`
    StopPolicy string `yaml:"stopPolicy" json:"stopPolicy"`

    Control struct {
        Addr string `yaml:"addr" json:"addr"`
    } `yaml:"control" json:"control"`

    Notify struct {
        Webhook    string `yaml:"webhook" json:"webhook"`
        Transcript string `yaml:"transcript" json:"transcript"`
    } `yaml:"notify" json:"notify"`

    Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
    var fc FileConfig
    b, err := os.ReadFile(path)
    if err != nil {
        return fc, err
    }
    switch ext := filepath.Ext(path); ext {
    case ".yaml", ".yml":
        if err := yaml.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse yaml: %w", err)
        }
    case ".json":
        if err := json.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse json: %w", err)
        }
    default:
        // Try YAML then JSON
        if err := yaml.Unmarshal(b, &fc); err != nil {
            if jerr := json.Unmarshal(b, &fc); jerr != nil {
                return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
            }
        }
    }
    return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are currently unset/zero in cfg. Flags should already have been parsed; this
// function lets file config supply defaults while preserving explicit flags.
// Unparseable durations are reported; everything else is applied.
func ApplyFileConfig(cfg *Config, fc FileConfig) error {
    if cfg == nil { return nil }
    var errs []error

    if cfg.LLMBaseURL == "" && fc.LLM.BaseURL != "" { cfg.LLMBaseURL = fc.LLM.BaseURL }
    if cfg.LLMModel == "" && fc.LLM.Model != "" { cfg.LLMModel = fc.LLM.Model }
    if cfg.LLMAPIKey == "" && fc.LLM.APIKey != "" { cfg.LLMAPIKey = fc.LLM.APIKey }

    if cfg.WatchURL == "" && fc.Watch.URL != "" { cfg.WatchURL = fc.Watch.URL }
    if cfg.WatchFile == "" && fc.Watch.File != "" { cfg.WatchFile = fc.Watch.File }
    if !cfg.Browser && fc.Browser.Enable { cfg.Browser = true }
    if cfg.BrowserRemote == "" && fc.Browser.Remote != "" { cfg.BrowserRemote = fc.Browser.Remote }

    if cfg.MaxCandidates == 0 && fc.Scan.MaxCandidates > 0 { cfg.MaxCandidates = fc.Scan.MaxCandidates }
    if cfg.MaxChars == 0 && fc.Scan.MaxChars > 0 { cfg.MaxChars = fc.Scan.MaxChars }
    if cfg.Order == "" && fc.Scan.Order != "" { cfg.Order = fc.Scan.Order }
    if cfg.StopPolicy == "" && fc.StopPolicy != "" { cfg.StopPolicy = fc.StopPolicy }

    if cfg.ControlAddr == "" && fc.Control.Addr != "" { cfg.ControlAddr = fc.Control.Addr }
    if cfg.WebhookURL == "" && fc.Notify.Webhook != "" { cfg.WebhookURL = fc.Notify.Webhook }
    if cfg.TranscriptPath == "" && fc.Notify.Transcript != "" { cfg.TranscriptPath = fc.Notify.Transcript }
    if !cfg.Verbose && fc.Verbose { cfg.Verbose = true }

    for _, d := range []struct {
        name string
        raw  string
        dst  *time.Duration
    }{
        {"llm.timeout", fc.LLM.Timeout, &cfg.CompletionTimeout},
        {"watch.pollInterval", fc.Watch.PollInterval, &cfg.PollInterval},
        {"debounce", fc.Debounce, &cfg.Debounce},
        {"delay", fc.Delay, &cfg.Delay},
    } {
        if d.raw == "" || *d.dst != 0 { continue }
        v, err := time.ParseDuration(d.raw)
        if err != nil {
            errs = append(errs, fmt.Errorf("config: %s: %w", d.name, err))
            continue
        }
        *d.dst = v
    }
    return errors.Join(errs...)
}

// ValidateConfig performs minimal schema validation for required settings.
// A missing model is allowed: the key and endpoint can be supplied later
// through the control surface, and completions fail until then.
func ValidateConfig(cfg Config) error {
    hasURL := strings.TrimSpace(cfg.WatchURL) != ""
    hasFile := strings.TrimSpace(cfg.WatchFile) != ""
    switch {
    case !hasURL && !hasFile:
        return errors.New("config: a watch url or watch file is required (or set WATCH_URL / WATCH_FILE)")
    case hasURL && hasFile:
        return errors.New("config: watch url and watch file are mutually exclusive")
    case cfg.Browser && !hasURL:
        return errors.New("config: browser mode needs a watch url")
    }
    if hasURL {
        if err := checkHTTPURL(cfg.WatchURL); err != nil {
            return fmt.Errorf("config: watch url: %w", err)
        }
    }
    if cfg.LLMBaseURL != "" {
        if err := checkHTTPURL(cfg.LLMBaseURL); err != nil {
            return fmt.Errorf("config: llm base url: %w", err)
        }
    }
    if cfg.MaxCandidates < 0 || cfg.MaxChars < 0 {
        return errors.New("config: negative limits are not allowed")
    }
    if cfg.Debounce < 0 || cfg.Delay < 0 || cfg.CompletionTimeout < 0 || cfg.PollInterval < 0 {
        return errors.New("config: negative durations are not allowed")
    }
    if cfg.Order != "" {
        if _, err := scan.ParseOrder(cfg.Order); err != nil {
            return fmt.Errorf("config: %w", err)
        }
    }
    if cfg.StopPolicy != "" {
        if _, err := pipeline.ParseStopPolicy(cfg.StopPolicy); err != nil {
            return fmt.Errorf("config: %w", err)
        }
    }
    return nil
}

func checkHTTPURL(raw string) error {
    u, err := url.Parse(strings.TrimSpace(raw))
    if err != nil {
        return err
    }
    if u.Scheme != "http" && u.Scheme != "https" {
        return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
    }
    if u.Host == "" {
        return errors.New("missing host")
    }
    return nil
}
