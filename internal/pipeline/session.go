package pipeline

import (
    "sync"
    "sync/atomic"

    "github.com/hyperifyio/autodiscover/internal/textnorm"
)

// Session is the state of one observation session: the texts already sent
// for completion and the flag that keeps cycles from overlapping.
//
// Texts are indexed by their 32-bit fingerprint, and the exact texts are kept
// per fingerprint so two different texts that happen to collide are both
// processed.
type Session struct {
    mu    sync.Mutex
    seen  map[uint32][]string
    count int

    processing atomic.Bool
}

func NewSession() *Session {
    return &Session{seen: make(map[uint32][]string)}
}

// MarkSeen records text and reports whether it was new.
func (s *Session) MarkSeen(text string) bool {
    h := textnorm.Fingerprint(text)
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, t := range s.seen[h] {
        if t == text {
            return false
        }
    }
    s.seen[h] = append(s.seen[h], text)
    s.count++
    return true
}

// Seen reports whether text has been recorded.
func (s *Session) Seen(text string) bool {
    h := textnorm.Fingerprint(text)
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, t := range s.seen[h] {
        if t == text {
            return true
        }
    }
    return false
}

// Len is the number of distinct texts recorded.
func (s *Session) Len() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.count
}

// Reset forgets every recorded text.
func (s *Session) Reset() {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.seen = make(map[uint32][]string)
    s.count = 0
}

// begin claims the processing flag. It fails when a cycle is running.
func (s *Session) begin() bool { return s.processing.CompareAndSwap(false, true) }

func (s *Session) end() { s.processing.Store(false) }

// Processing reports whether a cycle is running.
func (s *Session) Processing() bool { return s.processing.Load() }
