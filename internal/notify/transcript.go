package notify

import (
    "context"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    "github.com/jung-kurt/gofpdf"
)

// DefaultTranscriptSize is how many recent events a Transcript keeps.
const DefaultTranscriptSize = 200

// Transcript keeps the most recent events of the session in memory and can
// render them as Markdown or PDF. When Path is set, Close writes the
// transcript there; a ".pdf" extension selects PDF output.
type Transcript struct {
    Path string

    mu     sync.Mutex
    size   int
    events []Event
}

// NewTranscript keeps up to size events (DefaultTranscriptSize when size <= 0).
func NewTranscript(size int, path string) *Transcript {
    if size <= 0 {
        size = DefaultTranscriptSize
    }
    return &Transcript{Path: path, size: size}
}

func (t *Transcript) Send(_ context.Context, ev Event) error {
    t.mu.Lock()
    defer t.mu.Unlock()
    t.events = append(t.events, ev)
    if over := len(t.events) - t.size; over > 0 {
        t.events = append(t.events[:0], t.events[over:]...)
    }
    return nil
}

// Recent returns a copy of the kept events, oldest first.
func (t *Transcript) Recent() []Event {
    t.mu.Lock()
    defer t.mu.Unlock()
    out := make([]Event, len(t.events))
    copy(out, t.events)
    return out
}

// Markdown renders the kept events as a Markdown document.
func (t *Transcript) Markdown() string {
    events := t.Recent()
    var b strings.Builder
    b.WriteString("# Session transcript\n\n")
    if len(events) == 0 {
        b.WriteString("No events.\n")
        return b.String()
    }
    answers := 0
    for _, ev := range events {
        if ev.Kind == KindResult {
            answers++
        }
    }
    fmt.Fprintf(&b, "%d events, %d answers.\n\n## Events\n\n", len(events), answers)
    for _, ev := range events {
        stamp := ev.Time.UTC().Format(time.RFC3339)
        switch ev.Kind {
        case KindResult:
            fmt.Fprintf(&b, "- %s **%s** from `%s`\n", stamp, ev.Letter, ev.Source)
        case KindRaw:
            fmt.Fprintf(&b, "- %s no letter in reply: %s\n", stamp, oneLine(ev.Raw, 160))
        case KindError:
            fmt.Fprintf(&b, "- %s error: %s\n", stamp, oneLine(ev.Message, 160))
        default:
            fmt.Fprintf(&b, "- %s %s\n", stamp, ev.Message)
        }
    }
    return b.String()
}

// WritePDF renders the transcript to a PDF file.
func (t *Transcript) WritePDF(outPath string) error {
    pdf := gofpdf.New("P", "mm", "A4", "")
    tr := pdf.UnicodeTranslatorFromDescriptor("")
    pdf.AddPage()
    for _, line := range strings.Split(t.Markdown(), "\n") {
        s := strings.TrimSpace(line)
        switch {
        case s == "":
            pdf.Ln(4)
        case strings.HasPrefix(s, "## "):
            pdf.SetFont("Helvetica", "B", 12)
            pdf.CellFormat(0, 8, tr(strings.TrimPrefix(s, "## ")), "", 1, "L", false, 0, "")
        case strings.HasPrefix(s, "# "):
            pdf.SetFont("Helvetica", "B", 14)
            pdf.CellFormat(0, 8, tr(strings.TrimPrefix(s, "# ")), "", 1, "L", false, 0, "")
        default:
            pdf.SetFont("Helvetica", "", 10)
            s = strings.NewReplacer("**", "", "`", "").Replace(s)
            pdf.MultiCell(0, 5, tr(s), "", "L", false)
        }
    }
    return pdf.OutputFileAndClose(outPath)
}

// Close writes the transcript to Path, if set.
func (t *Transcript) Close() error {
    if t.Path == "" {
        return nil
    }
    if strings.EqualFold(filepath.Ext(t.Path), ".pdf") {
        if err := t.WritePDF(t.Path); err != nil {
            return fmt.Errorf("write transcript pdf: %w", err)
        }
        return nil
    }
    if err := os.WriteFile(t.Path, []byte(t.Markdown()), 0o644); err != nil {
        return fmt.Errorf("write transcript: %w", err)
    }
    return nil
}

func oneLine(s string, n int) string {
    s = strings.Join(strings.Fields(s), " ")
    r := []rune(s)
    if len(r) > n {
        return string(r[:n]) + "..."
    }
    return s
}
