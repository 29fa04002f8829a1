package browser

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strconv"

    "github.com/hyperifyio/autodiscover/internal/document"
)

// snapshotScript captures every element under body with its rendered text
// and computed style, plus the page text with image labels appended.
const snapshotScript = `() => {
    const skip = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE']);
    const out = { elements: [], page: '' };
    const body = document.body;
    if (!body) return JSON.stringify(out);
    for (const el of body.querySelectorAll('*')) {
        if (skip.has(el.tagName)) continue;
        const item = { tag: el.tagName.toLowerCase(), id: el.id || '', text: '' };
        try {
            const cs = window.getComputedStyle(el);
            item.display = cs.display;
            item.visibility = cs.visibility;
            item.opacity = cs.opacity;
        } catch (e) {
            item.probeError = String(e);
        }
        item.text = (el.innerText !== undefined ? el.innerText : el.textContent) || '';
        out.elements.push(item);
    }
    const labels = [];
    for (const img of body.querySelectorAll('img')) {
        const label = ((img.getAttribute('alt') || '').trim()) || ((img.getAttribute('aria-label') || '').trim());
        if (label) labels.push(label);
    }
    out.page = [body.innerText || ''].concat(labels).join('\n');
    return JSON.stringify(out);
}`

type snapshot struct {
    Elements []snapshotElement `json:"elements"`
    Page     string            `json:"page"`
}

type snapshotElement struct {
    Tag        string `json:"tag"`
    ID         string `json:"id"`
    Text       string `json:"text"`
    Display    string `json:"display"`
    Visibility string `json:"visibility"`
    Opacity    string `json:"opacity"`
    ProbeError string `json:"probeError"`
}

// decodeSnapshot turns the snapshot script's JSON into a static document.
// Elements whose style probe failed keep the failure so the scanner can
// fail open on them.
func decodeSnapshot(raw string) (*document.Static, error) {
    var snap snapshot
    if err := json.Unmarshal([]byte(raw), &snap); err != nil {
        return nil, fmt.Errorf("browser: decode snapshot: %w", err)
    }
    doc := &document.Static{Page: snap.Page, Items: make([]document.Element, 0, len(snap.Elements))}
    for _, e := range snap.Elements {
        el := document.StaticElement{TagName: e.Tag, IDValue: e.ID, Content: e.Text}
        if e.ProbeError != "" {
            el.StyleErr = errors.New(e.ProbeError)
        } else {
            opacity := 1.0
            if e.Opacity != "" {
                v, err := strconv.ParseFloat(e.Opacity, 64)
                if err != nil {
                    el.StyleErr = fmt.Errorf("opacity %q: %w", e.Opacity, err)
                }
                opacity = v
            }
            el.Style = document.Visibility{Display: e.Display, Visibility: e.Visibility, Opacity: opacity}
        }
        doc.Items = append(doc.Items, el)
    }
    return doc, nil
}

// Load captures the tab's current DOM. The session satisfies
// document.Loader.
func (s *Session) Load(ctx context.Context) (document.Document, error) {
    raw, err := s.eval(ctx, snapshotScript)
    if err != nil {
        return nil, fmt.Errorf("browser: snapshot: %w", err)
    }
    doc, err := decodeSnapshot(raw)
    if err != nil {
        return nil, err
    }
    return doc, nil
}
