package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/autodiscover/internal/app"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath     string
		envFiles       string
		llmBaseURL     string
		llmModel       string
		llmKey         string
		timeout        time.Duration
		watchURL       string
		watchFile      string
		useBrowser     bool
		browserRemote  string
		pollInterval   time.Duration
		debounce       time.Duration
		delay          time.Duration
		maxCandidates  int
		maxChars       int
		order          string
		stopPolicy     string
		controlAddr    string
		webhookURL     string
		transcriptPath string
		jsonEvents     bool
		once           bool
		verbose        bool
		showVersion    bool
	)

	flag.StringVar(&configPath, "config", os.Getenv("AUTODISCOVER_CONFIG"), "Path to YAML or JSON config file")
	flag.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files to load before reading the environment")
	flag.StringVar(&llmBaseURL, "llm.base", "", "OpenAI-compatible base URL (env LLM_BASE_URL)")
	flag.StringVar(&llmModel, "llm.model", "", "Model name (env LLM_MODEL)")
	flag.StringVar(&llmKey, "llm.key", "", "API key for the OpenAI-compatible server (env LLM_API_KEY)")
	flag.DurationVar(&timeout, "llm.timeout", 0, "Per-question completion timeout (default 30s, env COMPLETION_TIMEOUT)")
	flag.StringVar(&watchURL, "watch.url", "", "Page to watch (env WATCH_URL)")
	flag.StringVar(&watchFile, "watch.file", "", "Local HTML file to watch (env WATCH_FILE)")
	flag.BoolVar(&useBrowser, "browser", false, "Render the watched URL in Chrome and observe DOM mutations")
	flag.StringVar(&browserRemote, "browser.remote", "", "DevTools WebSocket URL of a running Chrome (env BROWSER_REMOTE)")
	flag.DurationVar(&pollInterval, "poll", 0, "Change polling interval for the URL, file or browser source")
	flag.DurationVar(&debounce, "debounce", 0, "Quiet period after the last change before a cycle runs (default 1200ms, env DEBOUNCE)")
	flag.DurationVar(&delay, "delay", 0, "Pause after each question sent (default 800ms)")
	flag.IntVar(&maxCandidates, "max.candidates", 0, "Maximum candidate blocks per cycle (default 4)")
	flag.IntVar(&maxChars, "max.chars", 0, "Maximum characters sent per question (default 8000)")
	flag.StringVar(&order, "order", "", "Candidate order: score or document (default score)")
	flag.StringVar(&stopPolicy, "stop.policy", "", "What happens to an in-flight answer after stop: discard or emit (default discard)")
	flag.StringVar(&controlAddr, "control.addr", "", "Listen address for the control surface, e.g. 127.0.0.1:8787 (env CONTROL_ADDR)")
	flag.StringVar(&webhookURL, "webhook", "", "POST every event to this URL (env WEBHOOK_URL)")
	flag.StringVar(&transcriptPath, "transcript", "", "Write the session transcript here on exit; .pdf renders a PDF (env TRANSCRIPT_PATH)")
	flag.BoolVar(&jsonEvents, "json", false, "Print events to stdout as JSON lines")
	flag.BoolVar(&once, "once", false, "Run a single cycle and exit")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("autodiscover " + app.Version())
		return
	}

	if err := app.LoadEnvFiles(strings.Split(envFiles, ",")...); err != nil {
		log.Warn().Err(err).Msg("loading env files")
	}

	cfg := app.Config{
		LLMBaseURL:        llmBaseURL,
		LLMModel:          llmModel,
		LLMAPIKey:         llmKey,
		CompletionTimeout: timeout,
		WatchURL:          watchURL,
		WatchFile:         watchFile,
		Browser:           useBrowser,
		BrowserRemote:     browserRemote,
		PollInterval:      pollInterval,
		Debounce:          debounce,
		Delay:             delay,
		MaxCandidates:     maxCandidates,
		MaxChars:          maxChars,
		Order:             order,
		StopPolicy:        stopPolicy,
		ControlAddr:       controlAddr,
		WebhookURL:        webhookURL,
		TranscriptPath:    transcriptPath,
		Once:              once,
		Verbose:           verbose,
	}

	// Precedence: flags > env > config file.
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("load config file")
		}
		fileCfg := app.Config{}
		if err := app.ApplyFileConfig(&fileCfg, fc); err != nil {
			log.Fatal().Err(err).Msg("invalid config file")
		}
		app.ApplyEnvOverrides(&fileCfg)
		overlay(&cfg, fileCfg)
	} else {
		app.ApplyEnvToConfig(&cfg)
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, jsonEvents); err != nil {
		log.Error().Err(err).Msg("run failed")
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

// overlay fills unset flag values from the merged file and env config.
func overlay(cfg *app.Config, from app.Config) {
	str := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	dur := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}
	str(&cfg.LLMBaseURL, from.LLMBaseURL)
	str(&cfg.LLMModel, from.LLMModel)
	str(&cfg.LLMAPIKey, from.LLMAPIKey)
	str(&cfg.WatchURL, from.WatchURL)
	str(&cfg.WatchFile, from.WatchFile)
	str(&cfg.BrowserRemote, from.BrowserRemote)
	str(&cfg.Order, from.Order)
	str(&cfg.StopPolicy, from.StopPolicy)
	str(&cfg.ControlAddr, from.ControlAddr)
	str(&cfg.WebhookURL, from.WebhookURL)
	str(&cfg.TranscriptPath, from.TranscriptPath)
	dur(&cfg.CompletionTimeout, from.CompletionTimeout)
	dur(&cfg.PollInterval, from.PollInterval)
	dur(&cfg.Debounce, from.Debounce)
	dur(&cfg.Delay, from.Delay)
	if cfg.MaxCandidates == 0 {
		cfg.MaxCandidates = from.MaxCandidates
	}
	if cfg.MaxChars == 0 {
		cfg.MaxChars = from.MaxChars
	}
	cfg.Browser = cfg.Browser || from.Browser
	cfg.Verbose = cfg.Verbose || from.Verbose
}

func run(ctx context.Context, cfg app.Config, jsonEvents bool) error {
	var events io.Writer
	if jsonEvents {
		events = os.Stdout
	}
	a, err := app.New(ctx, cfg, events)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}
