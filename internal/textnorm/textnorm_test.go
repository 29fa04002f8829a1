package textnorm

import (
    "strings"
    "testing"
)

func TestCollapse_RunsBecomeSingleSpace(t *testing.T) {
    in := "  Qual  a capital\t\tda França?\n\nA) Paris\nB) Roma  "
    got := Collapse(in)
    want := "Qual a capital da França? A) Paris\nB) Roma"
    if got != want {
        t.Fatalf("Collapse=%q, want %q", got, want)
    }
}

func TestCollapse_ComposesDecomposedAccents(t *testing.T) {
    // "questão" written with a combining tilde
    in := "questa\u0303o"
    if got := Collapse(in); got != "questão" {
        t.Fatalf("expected NFC composition, got %q", got)
    }
}

func TestNormalize_Idempotent(t *testing.T) {
    inputs := []string{
        "",
        "   ",
        "A) one\n\n\nB) two",
        "Pergunta 1:   quanto é 2+2?\r\n\tA) 3  B) 4",
        strings.Repeat("word  ", 50),
    }
    for _, in := range inputs {
        once := Normalize(in, DefaultMaxChars)
        twice := Normalize(once, DefaultMaxChars)
        if once != twice {
            t.Fatalf("not idempotent for %q: %q vs %q", in, once, twice)
        }
    }
}

func TestNormalize_IdempotentAfterTruncation(t *testing.T) {
    const cap = 20
    inputs := []string{
        // the cut lands right after a newline
        strings.Repeat("a", 19) + "\n" + strings.Repeat("b", 10),
        // the cut lands right after a space
        strings.Repeat("a", 19) + " " + strings.Repeat("b", 10),
        strings.Repeat("x", 200),
        strings.Repeat("ab  cd\n\n", 30),
        strings.Repeat("questão ", 10),
    }
    for _, in := range inputs {
        once := Normalize(in, cap)
        twice := Normalize(once, cap)
        if once != twice {
            t.Fatalf("not idempotent for %q: %q vs %q", in, once, twice)
        }
        if !strings.HasSuffix(once, TruncatedMarker) {
            t.Fatalf("expected truncation for %q, got %q", in, once)
        }
    }
}

func TestNormalize_TruncatesToCapPlusMarker(t *testing.T) {
    in := strings.Repeat("ab  cd ", 40)
    collapsed := Collapse(in)
    const cap = 50
    got := Normalize(in, cap)
    if Len(got) != cap+Len(TruncatedMarker) {
        t.Fatalf("len=%d, want %d", Len(got), cap+Len(TruncatedMarker))
    }
    if !strings.HasPrefix(got, Prefix(collapsed, cap)) {
        t.Fatalf("output does not start with the first %d chars of the collapsed input", cap)
    }
    if !strings.HasSuffix(got, TruncatedMarker) {
        t.Fatalf("missing truncation marker: %q", got)
    }
}

func TestNormalize_CountsCharactersNotBytes(t *testing.T) {
    in := strings.Repeat("ç", 10)
    if got := Normalize(in, 10); got != in {
        t.Fatalf("10 runes under cap 10 should not be cut, got %q", got)
    }
    got := Normalize(in, 4)
    if got != "çççç"+TruncatedMarker {
        t.Fatalf("unexpected truncation %q", got)
    }
}

func TestNormalize_ZeroCapDisablesTruncation(t *testing.T) {
    in := strings.Repeat("x", 9000)
    if got := Normalize(in, 0); got != in {
        t.Fatalf("expected no truncation with cap 0")
    }
}

func TestFingerprint_KnownValues(t *testing.T) {
    if got := Fingerprint(""); got != 5381 {
        t.Fatalf("Fingerprint(\"\")=%d, want 5381", got)
    }
    // 5381*33 + 'a'
    if got := Fingerprint("a"); got != 5381*33+97 {
        t.Fatalf("Fingerprint(\"a\")=%d", got)
    }
}

func TestFingerprint_CollisionPair(t *testing.T) {
    // djb2 collides on "Ez" and "FY"; a shared prefix keeps the collision.
    a := "Questão 1: qual? Ez"
    b := "Questão 1: qual? FY"
    if Fingerprint(a) != Fingerprint(b) {
        t.Fatalf("expected collision between %q and %q", a, b)
    }
}

func TestFingerprint_SurrogatePairs(t *testing.T) {
    // U+1F600 is encoded as two UTF-16 code units
    s := "\U0001F600"
    h := uint32(5381)
    h = h*33 + 0xd83d
    h = h*33 + 0xde00
    if got := Fingerprint(s); got != h {
        t.Fatalf("Fingerprint(emoji)=%d, want %d", got, h)
    }
}
