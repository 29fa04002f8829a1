// Package textnorm bounds free text into comparable strings and computes the
// compact fingerprints used to skip text that was already sent.
package textnorm

import (
    "strings"
    "unicode"
    "unicode/utf8"

    "golang.org/x/text/unicode/norm"
)

// DefaultMaxChars caps every text that leaves the process.
const DefaultMaxChars = 8000

// TruncatedMarker is appended to texts cut at the cap. It must not start with
// whitespace: a cut landing on a space would otherwise leave a run that a
// second Normalize collapses.
const TruncatedMarker = "...[texto cortado]"

// Normalize composes text to NFC, collapses whitespace runs and cuts the
// result to maxChars runes, appending TruncatedMarker when it had to cut.
// A maxChars of zero or less disables truncation.
func Normalize(text string, maxChars int) string {
    s := Collapse(text)
    if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
        return s
    }
    return Prefix(s, maxChars) + TruncatedMarker
}

// Collapse composes text to NFC, replaces every run of two or more whitespace
// characters with a single space and trims both ends. Single whitespace
// characters, including lone newlines, are kept as-is.
func Collapse(text string) string {
    s := norm.NFC.String(text)
    var b strings.Builder
    b.Grow(len(s))
    run := 0
    var pending rune
    flush := func() {
        switch {
        case run == 1:
            b.WriteRune(pending)
        case run > 1:
            b.WriteByte(' ')
        }
        run = 0
    }
    for _, r := range s {
        if unicode.IsSpace(r) {
            if run == 0 {
                pending = r
            }
            run++
            continue
        }
        flush()
        b.WriteRune(r)
    }
    flush()
    return strings.TrimSpace(b.String())
}

// Prefix returns the first n runes of s, never splitting a UTF-8 sequence.
func Prefix(s string, n int) string {
    if n <= 0 {
        return ""
    }
    i := 0
    for idx := range s {
        if i == n {
            return s[:idx]
        }
        i++
    }
    return s
}

// Len reports the length of s in characters.
func Len(s string) int {
    return utf8.RuneCountInString(s)
}

// Fingerprint returns the djb2 digest of s over UTF-16 code units, reduced
// modulo 2^32. Distinct texts can share a fingerprint; callers that need
// content equality must confirm on the text itself.
func Fingerprint(s string) uint32 {
    h := uint32(5381)
    for _, r := range s {
        if r >= 0x10000 {
            r1, r2 := utf16Pair(r)
            h = h*33 + uint32(r1)
            h = h*33 + uint32(r2)
            continue
        }
        h = h*33 + uint32(r)
    }
    return h
}

func utf16Pair(r rune) (rune, rune) {
    r -= 0x10000
    return 0xd800 + (r>>10)&0x3ff, 0xdc00 + r&0x3ff
}
