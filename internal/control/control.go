// Package control serves the local HTTP surface for stopping, starting and
// reconfiguring a running session.
package control

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "strings"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/autodiscover/internal/notify"
    "github.com/hyperifyio/autodiscover/internal/pipeline"
)

// Controller is the part of pipeline.Controller the surface drives.
type Controller interface {
    Start(ctx context.Context) error
    Stop()
    Trigger() error
    Reset()
    SetAPIKey(key string) error
    SetEndpoint(url string) error
    Status() pipeline.Status
}

// EventLog lists recent events, oldest first.
type EventLog interface {
    Recent() []notify.Event
}

// Server routes control requests to a Controller. Start uses the context the
// server was built with, so a session outlives the request that started it.
type Server struct {
    ctx     context.Context
    ctrl    Controller
    events  EventLog
    metrics http.Handler
}

// NewRouter returns the control routes. events and metrics may be nil.
func NewRouter(ctx context.Context, ctrl Controller, events EventLog, metrics http.Handler) http.Handler {
    s := &Server{ctx: ctx, ctrl: ctrl, events: events, metrics: metrics}
    r := chi.NewRouter()
    r.Use(middleware.Recoverer)
    r.Post("/stop", s.handleStop)
    r.Post("/start", s.handleStart)
    r.Post("/trigger", s.handleTrigger)
    r.Post("/reset", s.handleReset)
    r.Put("/config/key", s.handleKey)
    r.Put("/config/endpoint", s.handleEndpoint)
    r.Get("/status", s.handleStatus)
    r.Get("/events", s.handleEvents)
    if metrics != nil {
        r.Method(http.MethodGet, "/metrics", metrics)
    }
    return r
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
    s.ctrl.Stop()
    writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
    if err := s.ctrl.Start(s.ctx); err != nil {
        log.Warn().Err(err).Msg("control: start failed")
        writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
        return
    }
    writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
    err := s.ctrl.Trigger()
    switch {
    case err == nil:
        writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
    case errors.Is(err, pipeline.ErrCycleActive), errors.Is(err, pipeline.ErrNotRunning):
        writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
    default:
        writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
    }
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
    s.ctrl.Reset()
    writeJSON(w, http.StatusOK, s.ctrl.Status())
}

type keyRequest struct {
    Key string `json:"key"`
}

type endpointRequest struct {
    URL string `json:"url"`
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
    var req keyRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "invalid request body", http.StatusBadRequest)
        return
    }
    if err := s.ctrl.SetAPIKey(strings.TrimSpace(req.Key)); err != nil {
        writeJSON(w, http.StatusNotImplemented, map[string]string{"error": err.Error()})
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request) {
    var req endpointRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "invalid request body", http.StatusBadRequest)
        return
    }
    u := strings.TrimSpace(req.URL)
    if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
        http.Error(w, "url must be http or https", http.StatusBadRequest)
        return
    }
    if err := s.ctrl.SetEndpoint(u); err != nil {
        writeJSON(w, http.StatusNotImplemented, map[string]string{"error": err.Error()})
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
    events := []notify.Event{}
    if s.events != nil {
        events = append(events, s.events.Recent()...)
    }
    if k := r.URL.Query().Get("kind"); k != "" {
        filtered := events[:0]
        for _, ev := range events {
            if string(ev.Kind) == k {
                filtered = append(filtered, ev)
            }
        }
        events = filtered
    }
    writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    if err := json.NewEncoder(w).Encode(v); err != nil {
        log.Debug().Err(err).Msg("control: write response")
    }
}
