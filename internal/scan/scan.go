// Package scan finds the blocks of a rendered document most likely to hold a
// multiple-choice question with its lettered options.
package scan

import (
    "context"
    "fmt"
    "sort"
    "strings"

    "github.com/rs/zerolog/log"

    "github.com/hyperifyio/autodiscover/internal/document"
    "github.com/hyperifyio/autodiscover/internal/textnorm"
)

// Order decides how qualifying candidates are ranked before the cap.
type Order int

const (
    // OrderScore ranks by descending score, keeping document order on ties.
    OrderScore Order = iota
    // OrderDocument keeps document order regardless of score.
    OrderDocument
)

func (o Order) String() string {
    switch o {
    case OrderDocument:
        return "document"
    default:
        return "score"
    }
}

// ParseOrder maps "score" or "document" to an Order.
func ParseOrder(s string) (Order, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "", "score":
        return OrderScore, nil
    case "document", "scan":
        return OrderDocument, nil
    }
    return OrderScore, fmt.Errorf("unknown candidate order %q", s)
}

// Defaults used when Options fields are zero.
const (
    DefaultMaxCandidates = 4
    DefaultMinChars      = 20
    DefaultMaxChars      = 15000
    DefaultDedupPrefix   = 200
)

// Options tunes a Scanner. Zero values pick the defaults.
type Options struct {
    MaxCandidates int
    // Elements qualify only when their trimmed text length lies strictly
    // between MinChars and MaxChars.
    MinChars int
    MaxChars int
    // DedupPrefix is how many leading characters of the collapsed text
    // identify a block.
    DedupPrefix int
    Order       Order
}

func (o *Options) defaults() {
    if o.MaxCandidates <= 0 {
        o.MaxCandidates = DefaultMaxCandidates
    }
    if o.MinChars <= 0 {
        o.MinChars = DefaultMinChars
    }
    if o.MaxChars <= 0 {
        o.MaxChars = DefaultMaxChars
    }
    if o.DedupPrefix <= 0 {
        o.DedupPrefix = DefaultDedupPrefix
    }
}

// Candidate is a visible block suspected of holding a question.
type Candidate struct {
    Element document.Element
    // Source names the element for result events.
    Source  string
    Text    string
    Score   float64
    Signals Signals
    // Rule is the eligibility rule that admitted the block, or "fallback".
    Rule string
}

// Scanner ranks document blocks as question candidates.
type Scanner struct {
    Options Options
}

// New returns a scanner with the given options.
func New(opts Options) *Scanner {
    opts.defaults()
    return &Scanner{Options: opts}
}

// Scan returns up to MaxCandidates candidates, most relevant first. It
// returns an empty slice when nothing qualifies; see Fallback.
func (s *Scanner) Scan(ctx context.Context, doc document.Document) ([]Candidate, error) {
    opts := s.Options
    opts.defaults()

    els, err := doc.Elements(ctx)
    if err != nil {
        return nil, fmt.Errorf("enumerate elements: %w", err)
    }
    found := make([]Candidate, 0, 16)
    for i, el := range els {
        if i%256 == 0 {
            if err := ctx.Err(); err != nil {
                return nil, err
            }
        }
        text := strings.TrimSpace(el.Text())
        n := textnorm.Len(text)
        if n <= opts.MinChars || n >= opts.MaxChars {
            continue
        }
        if !visible(el) {
            continue
        }
        sig, rule := Classify(text)
        if rule == "" {
            continue
        }
        found = append(found, Candidate{
            Element: el,
            Source:  document.SourceID(el),
            Text:    text,
            Score:   Score(text, sig),
            Signals: sig,
            Rule:    rule,
        })
    }

    if opts.Order == OrderScore {
        sort.SliceStable(found, func(i, j int) bool { return found[i].Score > found[j].Score })
    }

    out := make([]Candidate, 0, opts.MaxCandidates)
    seen := make(map[string]struct{}, len(found))
    for _, c := range found {
        key := textnorm.Prefix(textnorm.Collapse(c.Text), opts.DedupPrefix)
        if _, dup := seen[key]; dup {
            continue
        }
        seen[key] = struct{}{}
        out = append(out, c)
        if len(out) >= opts.MaxCandidates {
            break
        }
    }
    log.Debug().Int("elements", len(els)).Int("qualified", len(found)).Int("kept", len(out)).Str("order", opts.Order.String()).Msg("scan complete")
    return out, nil
}

// Fallback wraps the document's whole visible text as a single candidate.
// It returns no candidate when the page has no text at all.
func (s *Scanner) Fallback(ctx context.Context, doc document.Document) ([]Candidate, error) {
    text, err := doc.VisibleText(ctx)
    if err != nil {
        return nil, fmt.Errorf("capture visible text: %w", err)
    }
    text = strings.TrimSpace(text)
    if text == "" {
        return nil, nil
    }
    sig := Detect(text)
    return []Candidate{{
        Source:  "body",
        Text:    text,
        Score:   Score(text, sig),
        Signals: sig,
        Rule:    "fallback",
    }}, nil
}

// visible applies the computed-style filter. Probe failures count as
// visible so legitimate content is never dropped silently.
func visible(el document.Element) bool {
    v, err := el.Visibility()
    if err != nil {
        log.Debug().Err(err).Str("tag", el.Tag()).Msg("visibility probe failed; treating as visible")
        return true
    }
    return v.Visible()
}
