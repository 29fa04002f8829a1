package document

import (
    "strings"

    "golang.org/x/net/html"
)

// innerText approximates the browser's innerText for n: text of rendered
// descendants, block boundaries as line breaks, whitespace collapsed outside
// preformatted blocks. visibility is what n inherits from its ancestors.
func innerText(n *html.Node, visibility string) string {
    var b strings.Builder
    collectText(&b, n, false, visibility != "hidden")
    return normalizeWhitespace(b.String())
}

// collectText walks n. Text under visibility:hidden is skipped but its
// descendants are still visited, since they may set visibility:visible.
func collectText(b *strings.Builder, n *html.Node, inPre, visible bool) {
    if n.Type == html.ElementNode {
        if isNonRendered(n) || isNotDisplayed(n) {
            return
        }
        switch parseStyle(attr(n, "style"))["visibility"] {
        case "hidden", "collapse":
            visible = false
        case "visible":
            visible = true
        }
        name := strings.ToLower(n.Data)
        switch {
        case name == "pre":
            inPre = true
            b.WriteString("\n")
        case name == "br" || name == "hr":
            b.WriteString("\n")
        case name == "img":
            return
        case isBlock(name):
            b.WriteString("\n")
        case name == "td" || name == "th":
            b.WriteString(" ")
        }
    }

    if n.Type == html.TextNode && visible {
        data := n.Data
        if !inPre {
            data = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ").Replace(data)
        }
        b.WriteString(data)
    }

    for c := n.FirstChild; c != nil; c = c.NextSibling {
        collectText(b, c, inPre, visible)
    }

    if n.Type == html.ElementNode {
        name := strings.ToLower(n.Data)
        switch {
        case name == "p" || (len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6'):
            b.WriteString("\n\n")
        case name == "pre" || isBlock(name):
            b.WriteString("\n")
        }
    }
}

// isNotDisplayed reports subtrees the browser does not lay out at all.
func isNotDisplayed(n *html.Node) bool {
    return hasAttr(n, "hidden") || parseStyle(attr(n, "style"))["display"] == "none"
}

func isBlock(name string) bool {
    switch name {
    case "address", "article", "aside", "blockquote", "dd", "details", "dialog", "div", "dl", "dt",
        "fieldset", "figcaption", "figure", "footer", "form", "header", "li", "main", "nav", "ol",
        "p", "section", "summary", "table", "tr", "ul", "h1", "h2", "h3", "h4", "h5", "h6", "legend", "option":
        return true
    }
    return false
}

func normalizeWhitespace(s string) string {
    // Collapse multiple spaces and blank lines
    lines := strings.Split(s, "\n")
    out := make([]string, 0, len(lines))
    for _, line := range lines {
        trimmed := strings.TrimSpace(line)
        if trimmed == "" {
            // Keep at most one consecutive blank
            if len(out) > 0 && out[len(out)-1] == "" {
                continue
            }
            out = append(out, "")
            continue
        }
        out = append(out, collapseSpaces(trimmed))
    }
    for len(out) > 0 && out[0] == "" {
        out = out[1:]
    }
    for len(out) > 0 && out[len(out)-1] == "" {
        out = out[:len(out)-1]
    }
    return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
    var b strings.Builder
    lastSpace := false
    for _, r := range s {
        if r == ' ' || r == '\t' || r == '\r' || r == '\u00a0' {
            if !lastSpace {
                b.WriteByte(' ')
                lastSpace = true
            }
            continue
        }
        b.WriteRune(r)
        lastSpace = false
    }
    return b.String()
}
