package scan

import (
    "regexp"
    "strings"
    "unicode"
    "unicode/utf8"

    "github.com/hyperifyio/autodiscover/internal/textnorm"
)

// Signals records which markers a block of text carries.
type Signals struct {
    // Alternatives is set when a lettered option starts the text or a line.
    Alternatives bool
    // Question is set when the text carries a question word or a "?".
    Question bool
}

// features are the measurements eligibility and scoring rules look at.
type features struct {
    Signals
    length       int
    letterTokens int
    numbered     bool
}

var (
    // A lettered option at the start of the text or of a line: "A)", "b.", "C-".
    alternativeLineRe = regexp.MustCompile(`(?i)(?:^|\n)[A-E][).\-]`)
    // Any lettered option token. Upper case only, so prose such as "home."
    // does not count as an option.
    letterTokenRe = regexp.MustCompile(`[A-E][).\-]`)
    // A numbered item such as "12)".
    numberedItemRe = regexp.MustCompile(`[0-9]+\)`)
)

// questionWords are matched as whole words, case-insensitively.
var questionWords = []string{"pergunta", "questão", "questao", "question", "q:"}

// SignalRule detects one signal in a trimmed text and records it.
type SignalRule struct {
    Name  string
    Match func(text string) bool
    Set   func(s *Signals)
}

// SignalRules lists the signal detectors. Each is independent of the others.
var SignalRules = []SignalRule{
    {Name: "alternatives", Match: alternativeLineRe.MatchString, Set: func(s *Signals) { s.Alternatives = true }},
    {Name: "question", Match: hasQuestionMarker, Set: func(s *Signals) { s.Question = true }},
}

// EligibilityRule admits a block as a candidate.
type EligibilityRule struct {
    Name string
    Test func(f features) bool
}

// EligibilityRules are tried in order; the first that passes names the
// reason a block qualified.
var EligibilityRules = []EligibilityRule{
    {Name: "lettered-options", Test: func(f features) bool { return f.Alternatives && f.letterTokens >= 2 }},
    {Name: "alternatives-and-question", Test: func(f features) bool { return f.Alternatives && f.Question }},
    {Name: "question-numbered-or-short", Test: func(f features) bool { return f.Question && (f.numbered || f.length < 800) }},
}

// Detect runs every signal rule over text.
func Detect(text string) Signals {
    var s Signals
    for _, r := range SignalRules {
        if r.Match(text) {
            r.Set(&s)
        }
    }
    return s
}

func measure(text string) features {
    f := features{Signals: Detect(text), length: textnorm.Len(text)}
    if f.Alternatives {
        f.letterTokens = len(letterTokenRe.FindAllStringIndex(text, -1))
    }
    f.numbered = numberedItemRe.MatchString(text)
    return f
}

// Classify reports whether text qualifies as a candidate and under which
// rule. The empty rule name means it does not qualify.
func Classify(text string) (Signals, string) {
    f := measure(text)
    for _, r := range EligibilityRules {
        if r.Test(f) {
            return f.Signals, r.Name
        }
    }
    return f.Signals, ""
}

// Score ranks a qualifying text: two points for lettered options, one for a
// question marker, and up to ten more for brevity, reaching zero at 1000
// characters.
func Score(text string, s Signals) float64 {
    score := 0.0
    if s.Alternatives {
        score += 2
    }
    if s.Question {
        score++
    }
    if n := textnorm.Len(text); n < 1000 {
        score += float64(1000-n) / 100
    }
    return score
}

func hasQuestionMarker(text string) bool {
    if strings.Contains(text, "?") {
        return true
    }
    lower := strings.ToLower(text)
    for _, w := range questionWords {
        if containsWord(lower, w) {
            return true
        }
    }
    return false
}

// containsWord reports whether word occurs in s with no letter or digit
// directly before it and, when word ends in a letter, none directly after.
// Accented letters count as letters, unlike regexp's ASCII \b.
func containsWord(s, word string) bool {
    for start := 0; start < len(s); {
        i := strings.Index(s[start:], word)
        if i < 0 {
            return false
        }
        i += start
        end := i + len(word)
        if !wordRuneBefore(s, i) && (!endsInWordRune(word) || !wordRuneAt(s, end)) {
            return true
        }
        start = i + 1
    }
    return false
}

func isWordRune(r rune) bool {
    return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func wordRuneBefore(s string, i int) bool {
    if i == 0 {
        return false
    }
    r, _ := utf8.DecodeLastRuneInString(s[:i])
    return isWordRune(r)
}

func wordRuneAt(s string, i int) bool {
    if i >= len(s) {
        return false
    }
    r, _ := utf8.DecodeRuneInString(s[i:])
    return isWordRune(r)
}

func endsInWordRune(w string) bool {
    r := []rune(w)
    return len(r) > 0 && isWordRune(r[len(r)-1])
}
