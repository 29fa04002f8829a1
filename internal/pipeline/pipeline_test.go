package pipeline

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/hyperifyio/autodiscover/internal/clock"
    "github.com/hyperifyio/autodiscover/internal/coalesce"
    "github.com/hyperifyio/autodiscover/internal/document"
    "github.com/hyperifyio/autodiscover/internal/llm"
    "github.com/hyperifyio/autodiscover/internal/notify"
    "github.com/hyperifyio/autodiscover/internal/textnorm"
)

const quiz = "Questão 3: Qual é a capital da França?\nA) Paris\nB) Londres\nC) Roma\nD) Lisboa"

type eventLog struct {
    mu     sync.Mutex
    events []notify.Event
}

func (l *eventLog) Send(_ context.Context, ev notify.Event) error {
    l.mu.Lock()
    defer l.mu.Unlock()
    l.events = append(l.events, ev)
    return nil
}

func (l *eventLog) Close() error { return nil }

func (l *eventLog) ofKind(k notify.Kind) []notify.Event {
    l.mu.Lock()
    defer l.mu.Unlock()
    var out []notify.Event
    for _, ev := range l.events {
        if ev.Kind == k {
            out = append(out, ev)
        }
    }
    return out
}

func (l *eventLog) hasStatus(msg string) bool {
    for _, ev := range l.ofKind(notify.KindStatus) {
        if ev.Message == msg {
            return true
        }
    }
    return false
}

// scripted answers each call with the next reply; a reply of "!" fails.
type scripted struct {
    mu      sync.Mutex
    replies []string
    texts   []string
    block   chan struct{}
    entered chan struct{}
}

func (s *scripted) Complete(ctx context.Context, text string) (llm.Reply, error) {
    s.mu.Lock()
    s.texts = append(s.texts, text)
    i := len(s.texts) - 1
    s.mu.Unlock()
    if s.entered != nil {
        s.entered <- struct{}{}
    }
    if s.block != nil {
        <-s.block
    }
    r := "A"
    if i < len(s.replies) {
        r = s.replies[i]
    }
    if r == "!" {
        return llm.Reply{}, errors.New("completion transport error: HTTP 500 Internal Server Error")
    }
    return llm.Reply{Raw: r}, nil
}

func (s *scripted) calls() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.texts)
}

func docOf(texts ...string) document.Loader {
    items := make([]document.Element, 0, len(texts))
    for i, t := range texts {
        items = append(items, document.StaticElement{TagName: "div", IDValue: "q" + string(rune('1'+i)), Content: t, Style: document.Shown})
    }
    return document.LoaderFunc(func(context.Context) (document.Document, error) {
        return &document.Static{Items: items, Page: "page text"}, nil
    })
}

func waitFor(t *testing.T, what string, cond func() bool) {
    t.Helper()
    deadline := time.Now().Add(2 * time.Second)
    for !cond() {
        if time.Now().After(deadline) {
            t.Fatalf("timed out waiting for %s", what)
        }
        time.Sleep(2 * time.Millisecond)
    }
}

func TestCycle_EndToEndWithCompletionServer(t *testing.T) {
    var hits int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/v1/chat/completions" {
            http.NotFound(w, r)
            return
        }
        atomic.AddInt32(&hits, 1)
        w.Header().Set("Content-Type", "application/json")
        _ = json.NewEncoder(w).Encode(map[string]any{
            "choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "D) correct"}}},
        })
    }))
    defer srv.Close()

    sink := &eventLog{}
    p := &Processor{
        Loader:    docOf(quiz),
        Completer: llm.NewCompleter(llm.Settings{BaseURL: srv.URL + "/v1", Model: "m"}),
        Sink:      sink,
        Session:   NewSession(),
    }
    sum, err := p.Cycle(context.Background())
    if err != nil {
        t.Fatalf("cycle: %v", err)
    }
    results := sink.ofKind(notify.KindResult)
    if len(results) != 1 || results[0].Letter != "D" || results[0].Source != "q1" || results[0].Raw != "D) correct" {
        t.Fatalf("unexpected results %+v", results)
    }
    if sum.Sent != 1 || sum.Answers != 1 {
        t.Fatalf("unexpected summary %+v", sum)
    }
    if !sink.hasStatus(notify.StatusSending) || !sink.hasStatus(notify.Answered('D')) {
        t.Fatalf("missing status notices")
    }

    sum, err = p.Cycle(context.Background())
    if err != nil {
        t.Fatalf("second cycle: %v", err)
    }
    if atomic.LoadInt32(&hits) != 1 {
        t.Fatalf("identical text sent again: hits=%d", hits)
    }
    if sum.Skipped != 1 || len(sink.ofKind(notify.KindResult)) != 1 {
        t.Fatalf("second cycle should only skip: %+v", sum)
    }
}

func TestCycle_CollidingTextsAreBothProcessed(t *testing.T) {
    a := "Questão 1: qual? Ez\nA) sim\nB) não"
    b := "Questão 1: qual? FY\nA) sim\nB) não"
    if textnorm.Fingerprint(a) != textnorm.Fingerprint(b) {
        t.Fatalf("fixture texts must share a fingerprint")
    }
    comp := &scripted{replies: []string{"A", "B"}}
    p := &Processor{Loader: docOf(a, b), Completer: comp, Sink: &eventLog{}, Session: NewSession()}
    if _, err := p.Cycle(context.Background()); err != nil {
        t.Fatalf("cycle: %v", err)
    }
    if comp.calls() != 2 {
        t.Fatalf("calls=%d, want both colliding texts sent", comp.calls())
    }
    if p.Session.Len() != 2 {
        t.Fatalf("session len=%d", p.Session.Len())
    }
}

func TestCycle_ErrorsDoNotAbortBatch(t *testing.T) {
    sink := &eventLog{}
    comp := &scripted{replies: []string{"!", "no idea", "C."}}
    q2 := "Pergunta 2: qual cor?\nA) azul\nB) verde"
    q3 := "Question 3: which?\nA) one\nB) two\nC) three"
    p := &Processor{Loader: docOf(quiz, q2, q3), Completer: comp, Sink: sink, Session: NewSession()}
    sum, err := p.Cycle(context.Background())
    if err != nil {
        t.Fatalf("cycle: %v", err)
    }
    if comp.calls() != 3 || sum.Errors != 1 || sum.Unparsed != 1 || sum.Answers != 1 {
        t.Fatalf("unexpected summary %+v calls=%d", sum, comp.calls())
    }
    if errs := sink.ofKind(notify.KindError); len(errs) != 1 || errs[0].Message == "" {
        t.Fatalf("unexpected error events %+v", errs)
    }
    if raws := sink.ofKind(notify.KindRaw); len(raws) != 1 || raws[0].Raw != "no idea" {
        t.Fatalf("unexpected raw events %+v", raws)
    }
    if res := sink.ofKind(notify.KindResult); len(res) != 1 || res[0].Letter != "C" {
        t.Fatalf("unexpected results %+v", res)
    }
    if !sink.hasStatus(notify.StatusAPIError) || !sink.hasStatus(notify.StatusNoLetter) {
        t.Fatalf("missing error notices")
    }
}

func TestCycle_FallsBackToPageText(t *testing.T) {
    comp := &scripted{replies: []string{"B"}}
    sink := &eventLog{}
    p := &Processor{Loader: docOf("just a paragraph of ordinary prose here"), Completer: comp, Sink: sink, Session: NewSession()}
    sum, err := p.Cycle(context.Background())
    if err != nil {
        t.Fatalf("cycle: %v", err)
    }
    if !sum.Fallback || comp.calls() != 1 || comp.texts[0] != "page text" {
        t.Fatalf("fallback not used: %+v %v", sum, comp.texts)
    }
    if res := sink.ofKind(notify.KindResult); len(res) != 1 || res[0].Source != "body" {
        t.Fatalf("unexpected results %+v", res)
    }
}

func TestCycle_TruncatesLongText(t *testing.T) {
    comp := &scripted{}
    long := "Question?\nA) yes\nB) no\n"
    for textnorm.Len(long) < 200 {
        long += "filler words "
    }
    p := &Processor{Loader: docOf(long), Completer: comp, Sink: &eventLog{}, Session: NewSession(), MaxChars: 50}
    if _, err := p.Cycle(context.Background()); err != nil {
        t.Fatalf("cycle: %v", err)
    }
    want := textnorm.Normalize(long, 50)
    if comp.texts[0] != want || textnorm.Len(want) != 50+textnorm.Len(textnorm.TruncatedMarker) {
        t.Fatalf("text not truncated: %q", comp.texts[0])
    }
}

func TestCycle_ConcurrentTriggerIsDropped(t *testing.T) {
    comp := &scripted{block: make(chan struct{}), entered: make(chan struct{}, 1)}
    p := &Processor{Loader: docOf(quiz), Completer: comp, Sink: &eventLog{}, Session: NewSession()}
    done := make(chan error, 1)
    go func() {
        _, err := p.Cycle(context.Background())
        done <- err
    }()
    <-comp.entered
    if _, err := p.Cycle(context.Background()); !errors.Is(err, ErrCycleActive) {
        t.Fatalf("want ErrCycleActive, got %v", err)
    }
    close(comp.block)
    if err := <-done; err != nil {
        t.Fatalf("first cycle: %v", err)
    }
    if comp.calls() != 1 {
        t.Fatalf("dropped trigger must not queue a call, calls=%d", comp.calls())
    }
    if p.Session.Processing() {
        t.Fatalf("flag not released")
    }
}

func TestCycle_InterRequestDelay(t *testing.T) {
    clk := clock.NewManual(time.Unix(0, 0))
    comp := &scripted{}
    q2 := "Pergunta 2: qual cor?\nA) azul\nB) verde"
    p := &Processor{Loader: docOf(quiz, q2), Completer: comp, Sink: &eventLog{}, Session: NewSession(), Clock: clk, Delay: DefaultDelay}
    done := make(chan struct{})
    go func() {
        _, _ = p.Cycle(context.Background())
        close(done)
    }()
    waitFor(t, "first call and delay timer", func() bool { return comp.calls() == 1 && clk.Pending() == 1 })
    clk.Advance(DefaultDelay - time.Millisecond)
    time.Sleep(10 * time.Millisecond)
    if comp.calls() != 1 {
        t.Fatalf("second call before the delay elapsed")
    }
    clk.Advance(time.Millisecond)
    waitFor(t, "second call", func() bool { return comp.calls() == 2 })
    waitFor(t, "final delay timer", func() bool { return clk.Pending() == 1 })
    clk.Advance(DefaultDelay)
    <-done
}

func TestCycle_StopPolicy(t *testing.T) {
    for _, policy := range []StopPolicy{StopDiscard, StopEmit} {
        t.Run(policy.String(), func(t *testing.T) {
            var stopped atomic.Bool
            comp := &scripted{replies: []string{"B"}, block: make(chan struct{}), entered: make(chan struct{}, 1)}
            sink := &eventLog{}
            p := &Processor{Loader: docOf(quiz), Completer: comp, Sink: sink, Session: NewSession(), StopPolicy: policy, Stopped: stopped.Load}
            done := make(chan struct{})
            go func() {
                _, _ = p.Cycle(context.Background())
                close(done)
            }()
            <-comp.entered
            stopped.Store(true)
            close(comp.block)
            <-done
            got := len(sink.ofKind(notify.KindResult))
            if policy == StopDiscard && got != 0 {
                t.Fatalf("discard policy emitted %d results", got)
            }
            if policy == StopEmit && got != 1 {
                t.Fatalf("emit policy emitted %d results", got)
            }
        })
    }
}

func TestSession_ResetAllowsReprocessing(t *testing.T) {
    s := NewSession()
    if !s.MarkSeen("x") || s.MarkSeen("x") || !s.Seen("x") {
        t.Fatalf("seen tracking broken")
    }
    s.Reset()
    if s.Seen("x") || s.Len() != 0 || !s.MarkSeen("x") {
        t.Fatalf("reset did not clear")
    }
}

type reconfigurable struct {
    scripted
    key, url string
}

func (r *reconfigurable) SetAPIKey(k string)  { r.key = k }
func (r *reconfigurable) SetBaseURL(u string) { r.url = u }

func TestController_LifecycleWithManualClock(t *testing.T) {
    clk := clock.NewManual(time.Unix(0, 0))
    var src *coalesce.ChanSource
    comp := &reconfigurable{}
    sink := &eventLog{}
    page := quiz
    var mu sync.Mutex
    loader := document.LoaderFunc(func(ctx context.Context) (document.Document, error) {
        mu.Lock()
        defer mu.Unlock()
        return docOf(page).Load(ctx)
    })
    p := &Processor{Loader: loader, Completer: comp, Sink: sink, Clock: clk}
    c := NewController(p, ControllerOptions{Source: func() (coalesce.Source, error) {
        src = coalesce.NewChanSource()
        return src, nil
    }})
    defer c.Close()

    if err := c.Start(context.Background()); err != nil {
        t.Fatalf("start: %v", err)
    }
    if !sink.hasStatus(notify.StatusActive) {
        t.Fatalf("missing active notice")
    }
    clk.Advance(DefaultInitialDelay - time.Millisecond)
    if comp.calls() != 0 {
        t.Fatalf("cycle ran before the initial delay")
    }
    clk.Advance(time.Millisecond)
    waitFor(t, "initial cycle", func() bool { return c.Status().Cycles == 1 })
    if len(sink.ofKind(notify.KindResult)) != 1 {
        t.Fatalf("initial cycle reported no result")
    }

    mu.Lock()
    page = "Question 4: which?\nA) one\nB) two"
    mu.Unlock()
    for i := 0; i < 5; i++ {
        src.Notify()
    }
    waitFor(t, "debounce timer", func() bool { return clk.Pending() > 0 })
    clk.Advance(coalesce.DefaultWindow)
    waitFor(t, "debounced cycle", func() bool { return c.Status().Cycles == 2 })

    if err := c.SetAPIKey("k"); err != nil || comp.key != "k" {
        t.Fatalf("set key: %v %q", err, comp.key)
    }
    if err := c.SetEndpoint("http://x/v1"); err != nil || comp.url != "http://x/v1" {
        t.Fatalf("set endpoint: %v %q", err, comp.url)
    }

    st := c.Status()
    if !st.Running || st.SeenTexts != 2 || st.Cycles != 2 {
        t.Fatalf("unexpected status %+v", st)
    }

    c.Stop()
    if !sink.hasStatus(notify.StatusStopped) {
        t.Fatalf("missing stopped notice")
    }
    if err := c.Trigger(); !errors.Is(err, ErrNotRunning) {
        t.Fatalf("trigger after stop: %v", err)
    }
    src.Notify()
    clk.Advance(10 * coalesce.DefaultWindow)
    time.Sleep(10 * time.Millisecond)
    if comp.calls() != 2 {
        t.Fatalf("changes after stop triggered a cycle")
    }

    c.Reset()
    if c.Status().SeenTexts != 0 {
        t.Fatalf("reset did not clear the session")
    }
    if err := c.Start(context.Background()); err != nil {
        t.Fatalf("restart: %v", err)
    }
    if err := c.Trigger(); err != nil {
        t.Fatalf("trigger: %v", err)
    }
    waitFor(t, "triggered cycle", func() bool { return comp.calls() == 3 })
}

// ctxWaiter blocks every call until its context ends.
type ctxWaiter struct {
    entered chan struct{}
    done    chan error
}

func (w *ctxWaiter) Complete(ctx context.Context, text string) (llm.Reply, error) {
    w.entered <- struct{}{}
    <-ctx.Done()
    w.done <- ctx.Err()
    return llm.Reply{}, ctx.Err()
}

func TestController_RestartCancelsCycleFromPreviousRun(t *testing.T) {
    clk := clock.NewManual(time.Unix(0, 0))
    comp := &ctxWaiter{entered: make(chan struct{}, 1), done: make(chan error, 1)}
    p := &Processor{Loader: docOf(quiz), Completer: comp, Sink: &eventLog{}, Clock: clk, StopPolicy: StopEmit}
    c := NewController(p, ControllerOptions{})

    if err := c.Start(context.Background()); err != nil {
        t.Fatalf("start: %v", err)
    }
    if err := c.Trigger(); err != nil {
        t.Fatalf("trigger: %v", err)
    }
    select {
    case <-comp.entered:
    case <-time.After(2 * time.Second):
        t.Fatalf("completion never started")
    }
    c.Stop()
    select {
    case <-comp.done:
        t.Fatalf("stop must let the in-flight call finish")
    case <-time.After(20 * time.Millisecond):
    }

    if err := c.Start(context.Background()); err != nil {
        t.Fatalf("restart: %v", err)
    }
    select {
    case err := <-comp.done:
        if !errors.Is(err, context.Canceled) {
            t.Fatalf("old cycle ended with %v, want context.Canceled", err)
        }
    case <-time.After(2 * time.Second):
        t.Fatalf("restart did not cancel the previous run's cycle")
    }

    finished := make(chan struct{})
    go func() { c.Close(); close(finished) }()
    select {
    case <-finished:
    case <-time.After(2 * time.Second):
        t.Fatalf("close blocked on the old cycle")
    }
}

func TestController_SetAPIKeyUnsupported(t *testing.T) {
    c := NewController(&Processor{Completer: &scripted{}}, ControllerOptions{})
    if err := c.SetAPIKey("k"); !errors.Is(err, ErrNotReconfigurable) {
        t.Fatalf("want ErrNotReconfigurable, got %v", err)
    }
}

func TestParseStopPolicy(t *testing.T) {
    if p, err := ParseStopPolicy("emit"); err != nil || p != StopEmit {
        t.Fatalf("emit: %v %v", p, err)
    }
    if p, err := ParseStopPolicy(""); err != nil || p != StopDiscard {
        t.Fatalf("default: %v %v", p, err)
    }
    if _, err := ParseStopPolicy("later"); err == nil {
        t.Fatalf("expected error")
    }
}
