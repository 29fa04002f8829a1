package metrics

import (
    "io"
    "net/http/httptest"
    "strings"
    "testing"
    "time"
)

func TestHandler_ExposesCounters(t *testing.T) {
    m := New()
    m.CycleStarted()
    m.CycleSkipped()
    m.Candidate()
    m.Duplicate()
    m.Completed(OutcomeResult, 150*time.Millisecond)
    m.Completed(OutcomeError, time.Second)
    m.Gauge("autodiscover_seen_texts", "Texts remembered.", func() float64 { return 7 })

    rec := httptest.NewRecorder()
    m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
    body, _ := io.ReadAll(rec.Body)
    out := string(body)
    for _, want := range []string{
        "autodiscover_cycles_total 1",
        "autodiscover_cycles_skipped_total 1",
        `autodiscover_completions_total{outcome="result"} 1`,
        `autodiscover_completions_total{outcome="error"} 1`,
        "autodiscover_completion_seconds_count 2",
        "autodiscover_seen_texts 7",
    } {
        if !strings.Contains(out, want) {
            t.Fatalf("metrics output missing %q:\n%s", want, out)
        }
    }
}

func TestNilMetricsIsNoop(t *testing.T) {
    var m *Metrics
    m.CycleStarted()
    m.Completed(OutcomeRaw, time.Millisecond)
    m.Gauge("x", "y", func() float64 { return 0 })
    rec := httptest.NewRecorder()
    m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
    if rec.Code != 404 {
        t.Fatalf("code=%d", rec.Code)
    }
}
