package document

import (
    "context"
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"
)

const quizPage = `<!doctype html>
<html>
  <head><title>Prova</title><style>.x{}</style></head>
  <body>
    <div id="quiz">
      <p>Questão 3: Qual é a capital da França?</p>
      <ul>
        <li>A) Paris</li>
        <li>B) Londres</li>
        <li>C) Roma</li>
      </ul>
    </div>
    <div id="hidden-note" style="display: none">A) secret B) stuff</div>
    <div id="ghost" style="opacity:0.01">ghost text</div>
    <div id="bad" style="opacity: banana">bad style</div>
    <section hidden><p id="inside">inside hidden</p></section>
    <img src="x.png" alt="Figure: a map of Europe">
    <img src="y.png" aria-label="Chart of results">
    <script>var a = "A) not text";</script>
  </body>
</html>`

func findByID(t *testing.T, els []Element, id string) Element {
    t.Helper()
    for _, el := range els {
        if el.ID() == id {
            return el
        }
    }
    t.Fatalf("element #%s not found", id)
    return nil
}

func TestFromHTML_InnerTextKeepsBlockLines(t *testing.T) {
    doc, err := FromHTML([]byte(quizPage))
    if err != nil {
        t.Fatalf("parse: %v", err)
    }
    if doc.Title != "Prova" {
        t.Fatalf("title=%q", doc.Title)
    }
    els, err := doc.Elements(context.Background())
    if err != nil {
        t.Fatalf("elements: %v", err)
    }
    quiz := findByID(t, els, "quiz")
    text := quiz.Text()
    for _, want := range []string{"Questão 3: Qual é a capital da França?", "\nA) Paris", "\nB) Londres", "\nC) Roma"} {
        if !strings.Contains(text, want) {
            t.Fatalf("quiz text missing %q:\n%s", want, text)
        }
    }
    if quiz.Tag() != "div" {
        t.Fatalf("tag=%q", quiz.Tag())
    }
    for _, el := range els {
        if el.Tag() == "script" || el.Tag() == "style" {
            t.Fatalf("non-rendered element enumerated: %s", el.Tag())
        }
    }
}

func TestFromHTML_ComputedVisibility(t *testing.T) {
    doc, err := FromHTML([]byte(quizPage))
    if err != nil {
        t.Fatalf("parse: %v", err)
    }
    els, _ := doc.Elements(context.Background())

    v, err := findByID(t, els, "quiz").Visibility()
    if err != nil || !v.Visible() {
        t.Fatalf("quiz should be visible: %+v %v", v, err)
    }
    v, _ = findByID(t, els, "hidden-note").Visibility()
    if v.Visible() || v.Display != "none" {
        t.Fatalf("display:none element reported visible: %+v", v)
    }
    v, _ = findByID(t, els, "ghost").Visibility()
    if v.Visible() {
        t.Fatalf("opacity 0.01 reported visible: %+v", v)
    }
    v, _ = findByID(t, els, "inside").Visibility()
    if v.Visible() {
        t.Fatalf("descendant of hidden section reported visible: %+v", v)
    }
    if _, err := findByID(t, els, "bad").Visibility(); err == nil {
        t.Fatalf("expected a style error for an unparseable opacity")
    }
}

func TestFromHTML_VisibleTextIncludesImageLabels(t *testing.T) {
    doc, err := FromHTML([]byte(quizPage))
    if err != nil {
        t.Fatalf("parse: %v", err)
    }
    text, err := doc.VisibleText(context.Background())
    if err != nil {
        t.Fatalf("visible text: %v", err)
    }
    if !strings.Contains(text, "Qual é a capital da França?") {
        t.Fatalf("missing body text:\n%s", text)
    }
    if !strings.HasSuffix(text, "\nFigure: a map of Europe\nChart of results") {
        t.Fatalf("image labels not appended:\n%s", text)
    }
    if strings.Contains(text, "secret") || strings.Contains(text, "not text") {
        t.Fatalf("hidden or script text leaked:\n%s", text)
    }
}

func TestFromHTML_VisibleChildOfHiddenParent(t *testing.T) {
    page := `<html><body>
<div id="outer" style="visibility:hidden">parent words
  <p id="inner" style="visibility: visible">A) shown option</p>
  <p id="still">B) still hidden</p>
</div>
<p>after</p>
</body></html>`
    doc, err := FromHTML([]byte(page))
    if err != nil {
        t.Fatalf("parse: %v", err)
    }
    els, _ := doc.Elements(context.Background())
    if got := findByID(t, els, "outer").Text(); got != "A) shown option" {
        t.Fatalf("outer text = %q", got)
    }
    if got := findByID(t, els, "still").Text(); got != "" {
        t.Fatalf("inherited hidden text rendered: %q", got)
    }
    v, _ := findByID(t, els, "inner").Visibility()
    if !v.Visible() {
        t.Fatalf("visibility:visible child reported hidden: %+v", v)
    }

    text, _ := doc.VisibleText(context.Background())
    if !strings.Contains(text, "A) shown option") || !strings.Contains(text, "after") {
        t.Fatalf("visible text lost rendered lines: %q", text)
    }
    if strings.Contains(text, "parent words") || strings.Contains(text, "still hidden") {
        t.Fatalf("hidden text leaked: %q", text)
    }
}

func TestSourceID_PrefersIDThenTag(t *testing.T) {
    if got := SourceID(StaticElement{TagName: "div", IDValue: "q1"}); got != "q1" {
        t.Fatalf("got %q", got)
    }
    if got := SourceID(StaticElement{TagName: "section"}); got != "section" {
        t.Fatalf("got %q", got)
    }
    if got := SourceID(nil); got != "" {
        t.Fatalf("got %q", got)
    }
}

func TestParseOpacity(t *testing.T) {
    cases := map[string]float64{"0": 0, "0.5": 0.5, "50%": 0.5, "2": 1, "-1": 0}
    for in, want := range cases {
        got, err := parseOpacity(in)
        if err != nil || got != want {
            t.Fatalf("parseOpacity(%q)=%v,%v want %v", in, got, err, want)
        }
    }
}

func TestFileLoaderAndSource(t *testing.T) {
    dir := t.TempDir()
    p := filepath.Join(dir, "page.html")
    if err := os.WriteFile(p, []byte(quizPage), 0o644); err != nil {
        t.Fatalf("write: %v", err)
    }
    doc, err := FileLoader{Path: p}.Load(context.Background())
    if err != nil {
        t.Fatalf("load: %v", err)
    }
    if els, _ := doc.Elements(context.Background()); len(els) == 0 {
        t.Fatalf("expected elements from file")
    }

    src := NewFileSource(p, 10*time.Millisecond)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    ch, err := src.Changes(ctx)
    if err != nil {
        t.Fatalf("changes: %v", err)
    }
    if err := os.WriteFile(p, []byte(quizPage+"<p>more</p>"), 0o644); err != nil {
        t.Fatalf("rewrite: %v", err)
    }
    select {
    case <-ch:
    case <-time.After(2 * time.Second):
        t.Fatalf("no change signal after rewrite")
    }
    _ = src.Close()
}

func TestFileSource_MissingFile(t *testing.T) {
    src := NewFileSource(filepath.Join(t.TempDir(), "nope.html"), 0)
    if _, err := src.Changes(context.Background()); err == nil {
        t.Fatalf("expected error for missing file")
    }
}
