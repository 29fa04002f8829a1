// Package answer reduces a free-form completion reply to a single option
// letter A-E.
package answer

import (
    "regexp"
    "strings"
    "unicode"
    "unicode/utf8"
)

// Answer is the letter extracted from a reply. The zero value is NotFound.
type Answer struct {
    Letter byte
    Found  bool
}

// NotFound means no rule recognised a letter.
var NotFound = Answer{}

func (a Answer) String() string {
    if !a.Found {
        return "none"
    }
    return string(a.Letter)
}

func found(c byte) Answer {
    if c >= 'a' && c <= 'e' {
        c -= 'a' - 'A'
    }
    return Answer{Letter: c, Found: true}
}

// Rule tries to read a letter from the whole reply.
type Rule struct {
    Name  string
    Match func(reply string) (Answer, bool)
}

var (
    lineSplitRe   = regexp.MustCompile(`\r?\n`)
    lineLeadRe    = regexp.MustCompile(`(?i)^([A-E])[).\-]\s*`)
    anyMarkerRe   = regexp.MustCompile(`(?i)[A-E][).\-]`)
    alternativaRe = regexp.MustCompile(`(?i)alternativa[:\s]*([A-E])`)
)

// Rules are evaluated top to bottom; the first match wins.
var Rules = []Rule{
    {Name: "line", Match: matchLine},
    {Name: "standalone", Match: matchStandalone},
    {Name: "marker", Match: matchMarker},
    {Name: "alternativa", Match: matchAlternativa},
}

// Extract returns the answer letter carried by reply, or NotFound.
func Extract(reply string) Answer {
    a, _ := ExtractWithRule(reply)
    return a
}

// ExtractWithRule is Extract that also names the rule that matched. The rule
// name is empty when nothing matched.
func ExtractWithRule(reply string) (Answer, string) {
    if strings.TrimSpace(reply) == "" {
        return NotFound, ""
    }
    for _, r := range Rules {
        if a, ok := r.Match(reply); ok {
            return a, r.Name
        }
    }
    return NotFound, ""
}

// matchLine looks at each non-empty trimmed line in order for a bare letter,
// a letter with its marker, or a line that starts with a lettered option.
func matchLine(reply string) (Answer, bool) {
    for _, l := range lineSplitRe.Split(reply, -1) {
        l = strings.TrimSpace(l)
        if l == "" {
            continue
        }
        if len(l) == 1 && isOption(l[0]) {
            return found(l[0]), true
        }
        if m := lineLeadRe.FindStringSubmatch(l); m != nil {
            return found(m[1][0]), true
        }
    }
    return NotFound, false
}

// matchStandalone finds the first letter A-E that stands alone as a word and
// is followed by ")", ".", ":", "-", whitespace or the end of the reply.
func matchStandalone(reply string) (Answer, bool) {
    for i := 0; i < len(reply); i++ {
        c := reply[i]
        if !isOption(c) {
            continue
        }
        if i > 0 && isASCIIWord(reply[i-1]) {
            continue
        }
        if i+1 == len(reply) {
            return found(c), true
        }
        next := reply[i+1]
        if isASCIIWord(next) {
            continue
        }
        switch next {
        case ')', '.', ':', '-':
            return found(c), true
        }
        if r, _ := utf8.DecodeRuneInString(reply[i+1:]); unicode.IsSpace(r) {
            return found(c), true
        }
    }
    return NotFound, false
}

func matchMarker(reply string) (Answer, bool) {
    if loc := anyMarkerRe.FindStringIndex(reply); loc != nil {
        return found(reply[loc[0]]), true
    }
    return NotFound, false
}

func matchAlternativa(reply string) (Answer, bool) {
    if m := alternativaRe.FindStringSubmatch(reply); m != nil {
        return found(m[1][0]), true
    }
    return NotFound, false
}

func isOption(c byte) bool {
    return (c >= 'A' && c <= 'E') || (c >= 'a' && c <= 'e')
}

func isASCIIWord(c byte) bool {
    return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
