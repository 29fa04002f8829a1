package document

import (
    "bytes"
    "context"
    "fmt"
    "io"
    "strconv"
    "strings"

    "golang.org/x/net/html"
)

// HTMLDocument is a Document over a parsed HTML snapshot. Computed style is
// approximated from inline style declarations and the hidden attribute,
// inherited the way the browser would render them: a display:none ancestor
// hides its subtree, visibility inherits, opacity multiplies.
type HTMLDocument struct {
    Title    string
    body     *html.Node
    elements []Element
}

// FromHTML parses an HTML document.
func FromHTML(input []byte) (*HTMLDocument, error) {
    return Parse(bytes.NewReader(input))
}

// Parse reads and parses an HTML document.
func Parse(r io.Reader) (*HTMLDocument, error) {
    node, err := html.Parse(r)
    if err != nil {
        return nil, fmt.Errorf("parse html: %w", err)
    }
    d := &HTMLDocument{Title: strings.TrimSpace(findTitle(node)), body: findFirst(node, "body")}
    if d.body != nil {
        d.walk(d.body, inherited{visibility: "visible", opacity: 1})
    }
    return d, nil
}

type inherited struct {
    hidden     bool // some ancestor has display:none
    visibility string
    opacity    float64
}

type htmlElement struct {
    node   *html.Node
    text   string
    vis    Visibility
    visErr error
}

func (e *htmlElement) Text() string { return e.text }

func (e *htmlElement) Visibility() (Visibility, error) { return e.vis, e.visErr }

func (e *htmlElement) Tag() string { return strings.ToLower(e.node.Data) }

func (e *htmlElement) ID() string { return attr(e.node, "id") }

// walk records every rendered element below n in document order.
func (d *HTMLDocument) walk(n *html.Node, parent inherited) {
    for c := n.FirstChild; c != nil; c = c.NextSibling {
        if c.Type != html.ElementNode {
            continue
        }
        if isNonRendered(c) {
            continue
        }
        vis, err := computeStyle(c, parent)
        next := inherited{hidden: vis.Display == "none", visibility: vis.Visibility, opacity: vis.Opacity}
        if err != nil {
            // An unparseable declaration must not hide the subtree.
            next = parent
        }
        el := &htmlElement{node: c, vis: vis, visErr: err}
        if vis.Display != "none" {
            el.text = innerText(c, parent.visibility)
        }
        d.elements = append(d.elements, el)
        d.walk(c, next)
    }
}

func (d *HTMLDocument) Elements(ctx context.Context) ([]Element, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }
    return d.elements, nil
}

// VisibleText returns the body's rendered text followed by every image's alt
// or aria-label text on its own line.
func (d *HTMLDocument) VisibleText(ctx context.Context) (string, error) {
    if err := ctx.Err(); err != nil {
        return "", err
    }
    if d.body == nil {
        return "", nil
    }
    var b strings.Builder
    b.WriteString(innerText(d.body, "visible"))
    var walk func(*html.Node)
    walk = func(n *html.Node) {
        if n.Type == html.ElementNode && strings.EqualFold(n.Data, "img") {
            label := strings.TrimSpace(attr(n, "alt"))
            if label == "" {
                label = strings.TrimSpace(attr(n, "aria-label"))
            }
            if label != "" {
                b.WriteString("\n")
                b.WriteString(label)
            }
        }
        for c := n.FirstChild; c != nil; c = c.NextSibling {
            walk(c)
        }
    }
    walk(d.body)
    return b.String(), nil
}

func findTitle(n *html.Node) string {
    head := findFirst(n, "head")
    if head == nil {
        return ""
    }
    t := findFirst(head, "title")
    if t == nil || t.FirstChild == nil {
        return ""
    }
    return t.FirstChild.Data
}

func findFirst(n *html.Node, tag string) *html.Node {
    var res *html.Node
    var dfs func(*html.Node)
    dfs = func(cur *html.Node) {
        if res != nil {
            return
        }
        if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
            res = cur
            return
        }
        for c := cur.FirstChild; c != nil; c = c.NextSibling {
            dfs(c)
            if res != nil {
                return
            }
        }
    }
    dfs(n)
    return res
}

func attr(n *html.Node, key string) string {
    for _, a := range n.Attr {
        if strings.EqualFold(a.Key, key) {
            return a.Val
        }
    }
    return ""
}

func hasAttr(n *html.Node, key string) bool {
    for _, a := range n.Attr {
        if strings.EqualFold(a.Key, key) {
            return true
        }
    }
    return false
}

func isNonRendered(n *html.Node) bool {
    switch strings.ToLower(n.Data) {
    case "script", "style", "noscript", "template", "head", "meta", "link":
        return true
    }
    return false
}

// computeStyle derives the element's computed visibility from its inline
// style and what it inherits from ancestors.
func computeStyle(n *html.Node, parent inherited) (Visibility, error) {
    v := Visibility{Display: "block", Visibility: parent.visibility, Opacity: parent.opacity}
    if parent.hidden {
        v.Display = "none"
    }
    if hasAttr(n, "hidden") {
        v.Display = "none"
    }
    decls := parseStyle(attr(n, "style"))
    if d, ok := decls["display"]; ok && d != "" {
        if d == "none" || v.Display != "none" {
            v.Display = d
        }
    }
    if vis, ok := decls["visibility"]; ok {
        switch vis {
        case "hidden", "collapse":
            v.Visibility = "hidden"
        case "visible":
            v.Visibility = "visible"
        }
    }
    if op, ok := decls["opacity"]; ok {
        f, err := parseOpacity(op)
        if err != nil {
            return Visibility{}, fmt.Errorf("element <%s>: %w", strings.ToLower(n.Data), err)
        }
        v.Opacity = parent.opacity * f
    }
    return v, nil
}

// parseStyle splits an inline style attribute into lower-cased declarations.
// Later declarations win; !important markers are dropped.
func parseStyle(style string) map[string]string {
    out := map[string]string{}
    for _, decl := range strings.Split(style, ";") {
        colon := strings.IndexByte(decl, ':')
        if colon <= 0 {
            continue
        }
        key := strings.ToLower(strings.TrimSpace(decl[:colon]))
        val := strings.ToLower(strings.TrimSpace(decl[colon+1:]))
        val = strings.TrimSpace(strings.TrimSuffix(val, "!important"))
        out[key] = val
    }
    return out
}

func parseOpacity(s string) (float64, error) {
    s = strings.TrimSpace(s)
    percent := strings.HasSuffix(s, "%")
    s = strings.TrimSuffix(s, "%")
    f, err := strconv.ParseFloat(s, 64)
    if err != nil {
        return 0, fmt.Errorf("parse opacity %q: %w", s, err)
    }
    if percent {
        f /= 100
    }
    if f < 0 {
        f = 0
    }
    if f > 1 {
        f = 1
    }
    return f, nil
}
