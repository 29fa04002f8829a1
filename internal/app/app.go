package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/autodiscover/internal/browser"
	"github.com/hyperifyio/autodiscover/internal/coalesce"
	"github.com/hyperifyio/autodiscover/internal/control"
	"github.com/hyperifyio/autodiscover/internal/document"
	"github.com/hyperifyio/autodiscover/internal/fetch"
	"github.com/hyperifyio/autodiscover/internal/llm"
	"github.com/hyperifyio/autodiscover/internal/metrics"
	"github.com/hyperifyio/autodiscover/internal/notify"
	"github.com/hyperifyio/autodiscover/internal/pipeline"
	"github.com/hyperifyio/autodiscover/internal/scan"
)

// TranscriptSize is how many recent events the transcript and the control
// surface's event list keep.
const TranscriptSize = 500

// UserAgent identifies page fetches.
var UserAgent = "autodiscover/" + BuildVersion

// ErrNoDocumentSource is returned when neither a URL nor a file is configured.
var ErrNoDocumentSource = errors.New("no document source configured")

type App struct {
	cfg Config

	completer  *llm.Completer
	processor  *pipeline.Processor
	controller *pipeline.Controller
	transcript *notify.Transcript
	webhook    *notify.Async
	sink       *notify.Router
	metrics    *metrics.Metrics
	session    *browser.Session

	loader document.Loader
	source pipeline.SourceFunc
}

// New assembles the session from cfg. It does not start observation. When
// events is non-nil every event is also written to it as a JSON line.
func New(ctx context.Context, cfg Config, events io.Writer) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	fetchClient := newFetchHTTPClient()
	a := &App{cfg: cfg, metrics: metrics.New()}

	a.completer = llm.NewCompleter(llm.Settings{
		BaseURL:    cfg.LLMBaseURL,
		APIKey:     cfg.LLMAPIKey,
		Model:      cfg.LLMModel,
		Timeout:    cfg.CompletionTimeout,
		HTTPClient: newCompletionHTTPClient(cfg.CompletionTimeout),
	})
	a.preflight(ctx)

	if err := a.openDocument(ctx, fetchClient); err != nil {
		return nil, err
	}

	a.transcript = notify.NewTranscript(TranscriptSize, cfg.TranscriptPath)
	sinks := []notify.Sink{notify.LogSink{}, a.transcript}
	if events != nil {
		sinks = append(sinks, notify.NewLines(events))
	}
	if cfg.WebhookURL != "" {
		a.webhook = notify.NewAsync(notify.NewWebhook(cfg.WebhookURL, notify.WithWebhookClient(fetchClient)), 64)
		sinks = append(sinks, a.webhook)
	}
	a.sink = notify.NewRouter(sinks...)

	order := scan.OrderScore
	if cfg.Order != "" {
		order, _ = scan.ParseOrder(cfg.Order)
	}
	policy := pipeline.StopDiscard
	if cfg.StopPolicy != "" {
		policy, _ = pipeline.ParseStopPolicy(cfg.StopPolicy)
	}
	delay := cfg.Delay
	if delay == 0 {
		delay = pipeline.DefaultDelay
	}
	a.processor = &pipeline.Processor{
		Loader:     a.loader,
		Scanner:    scan.New(scan.Options{MaxCandidates: cfg.MaxCandidates, Order: order}),
		Completer:  a.completer,
		Sink:       a.sink,
		Session:    pipeline.NewSession(),
		Metrics:    a.metrics,
		MaxChars:   cfg.MaxChars,
		Delay:      delay,
		StopPolicy: policy,
	}
	a.metrics.Gauge("autodiscover_seen_texts", "Distinct candidate texts already processed.", func() float64 {
		return float64(a.processor.Session.Len())
	})
	if a.webhook != nil {
		a.metrics.Gauge("autodiscover_webhook_dropped", "Events dropped because the webhook queue was full.", func() float64 {
			return float64(a.webhook.Dropped())
		})
	}
	if !cfg.Once {
		a.controller = pipeline.NewController(a.processor, pipeline.ControllerOptions{
			Source: a.source,
			Window: cfg.Debounce,
		})
	}
	return a, nil
}

// preflight lists the endpoint's models. It is best-effort: an unreachable
// endpoint is logged and the session still starts, since the endpoint can be
// changed at runtime.
func (a *App) preflight(ctx context.Context) {
	if a.cfg.LLMBaseURL == "" {
		log.Warn().Msg("no LLM base URL configured; completions will fail until one is set")
		return
	}
	lister, ok := a.completer.Lister()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	models, err := lister.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
		return
	}
	if len(models.Models) > 0 {
		log.Info().Int("count", len(models.Models)).Msg("LLM models available")
	} else {
		log.Warn().Msg("LLM returned zero models")
	}
}

// openDocument picks the loader and change source for the configured target.
func (a *App) openDocument(ctx context.Context, httpClient *http.Client) error {
	cfg := a.cfg
	switch {
	case cfg.WatchFile != "":
		a.loader = document.FileLoader{Path: cfg.WatchFile}
		a.source = func() (coalesce.Source, error) {
			return document.NewFileSource(cfg.WatchFile, cfg.PollInterval), nil
		}
	case cfg.WatchURL != "" && cfg.Browser:
		s, err := browser.Open(ctx, browser.Config{RemoteURL: cfg.BrowserRemote, Stealth: true}, cfg.WatchURL)
		if err != nil {
			return err
		}
		a.session = s
		a.loader = s
		a.source = func() (coalesce.Source, error) {
			return browser.NewMutationSource(s, cfg.PollInterval), nil
		}
	case cfg.WatchURL != "":
		newClient := func() *fetch.Client {
			return &fetch.Client{
				HTTPClient:        httpClient,
				UserAgent:         UserAgent,
				MaxAttempts:       2,
				PerRequestTimeout: 15 * time.Second,
				Conditional:       true,
			}
		}
		a.loader = &fetch.Loader{URL: cfg.WatchURL, Client: newClient()}
		a.source = func() (coalesce.Source, error) {
			return fetch.NewPollSource(cfg.WatchURL, newClient(), cfg.PollInterval), nil
		}
	default:
		return ErrNoDocumentSource
	}
	return nil
}

// Controller exposes the session controller; nil in once mode.
func (a *App) Controller() *pipeline.Controller { return a.controller }

// Transcript exposes the recent events.
func (a *App) Transcript() *notify.Transcript { return a.transcript }

// Run observes the document until ctx is done. In once mode it runs a single
// cycle and returns.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Once {
		sum, err := a.processor.Cycle(ctx)
		log.Info().
			Int("candidates", sum.Candidates).
			Int("skipped", sum.Skipped).
			Int("sent", sum.Sent).
			Int("answers", sum.Answers).
			Int("unparsed", sum.Unparsed).
			Int("errors", sum.Errors).
			Bool("fallback", sum.Fallback).
			Msg("cycle complete")
		return err
	}

	if err := a.controller.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	var srvErr chan error
	var srv *http.Server
	if a.cfg.ControlAddr != "" {
		ln, err := net.Listen("tcp", a.cfg.ControlAddr)
		if err != nil {
			return fmt.Errorf("control listen: %w", err)
		}
		srv = &http.Server{
			Handler:           control.NewRouter(ctx, a.controller, a.transcript, a.metrics.Handler()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		srvErr = make(chan error, 1)
		go func() { srvErr <- srv.Serve(ln) }()
		log.Info().Str("addr", ln.Addr().String()).Msg("control surface listening")
	}

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control server: %w", err)
		}
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("control server shutdown")
		}
	}
	return nil
}

// Close stops observation, flushes the sinks and releases the browser.
func (a *App) Close() {
	if a.controller != nil {
		a.controller.Close()
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			log.Warn().Err(err).Msg("closing sinks")
		}
	}
	if a.session != nil {
		_ = a.session.Close()
	}
}
