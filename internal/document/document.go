// Package document exposes the read-only view of a rendered page that the
// scanner works on: elements with their rendered text and computed
// visibility, plus a whole-page text capture used as a fallback.
package document

import (
    "context"
)

// MinOpacity is the opacity below which an element counts as invisible.
const MinOpacity = 0.02

// Visibility is the subset of computed style the scanner looks at.
type Visibility struct {
    Display    string
    Visibility string
    Opacity    float64
}

// Shown is the computed style of an ordinary rendered element.
var Shown = Visibility{Display: "block", Visibility: "visible", Opacity: 1}

// Visible reports whether the element is visually rendered.
func (v Visibility) Visible() bool {
    return v.Display != "none" && v.Visibility != "hidden" && v.Opacity >= MinOpacity
}

// Element is a handle to a node of the host document. The core never
// mutates it.
type Element interface {
    // Text is the rendered text of the element and its descendants.
    Text() string
    // Visibility returns the computed style. Errors mean the probe failed
    // (detached node, cross-origin frame, unparseable style).
    Visibility() (Visibility, error)
    Tag() string
    ID() string
}

// Document enumerates elements under the body and captures page text.
type Document interface {
    Elements(ctx context.Context) ([]Element, error)
    // VisibleText returns the page's rendered text followed by the alt or
    // aria-label text of its images, one per line.
    VisibleText(ctx context.Context) (string, error)
}

// Loader produces a fresh view of the document for each processing cycle.
type Loader interface {
    Load(ctx context.Context) (Document, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Document, error)

func (f LoaderFunc) Load(ctx context.Context) (Document, error) { return f(ctx) }

// SourceID names an element for result events: its id when set, otherwise
// its lower-case tag name.
func SourceID(el Element) string {
    if el == nil {
        return ""
    }
    if id := el.ID(); id != "" {
        return id
    }
    return el.Tag()
}

// Static is an in-memory Document, handy for fixtures and for callers that
// already hold extracted text.
type Static struct {
    Items []Element
    Page  string
}

func (s *Static) Elements(ctx context.Context) ([]Element, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }
    return s.Items, nil
}

func (s *Static) VisibleText(ctx context.Context) (string, error) {
    if err := ctx.Err(); err != nil {
        return "", err
    }
    return s.Page, nil
}

// StaticElement is a fixed Element value.
type StaticElement struct {
    TagName  string
    IDValue  string
    Content  string
    Style    Visibility
    StyleErr error
}

func (e StaticElement) Text() string { return e.Content }

func (e StaticElement) Visibility() (Visibility, error) {
    if e.StyleErr != nil {
        return Visibility{}, e.StyleErr
    }
    return e.Style, nil
}

func (e StaticElement) Tag() string { return e.TagName }

func (e StaticElement) ID() string { return e.IDValue }
