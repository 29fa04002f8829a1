// Package notify delivers pipeline events to their consumers: logs, webhooks,
// in-process callbacks, JSON lines and a session transcript.
package notify

import (
    "context"
    "fmt"
    "time"
)

// Kind classifies an Event.
type Kind string

const (
    // KindResult carries an extracted answer letter.
    KindResult Kind = "result"
    // KindRaw carries a reply no letter could be read from.
    KindRaw Kind = "raw"
    // KindError carries a completion failure.
    KindError Kind = "error"
    // KindStatus carries a short human-readable notice.
    KindStatus Kind = "status"
)

// Status notices.
const (
    StatusSending  = "sending question"
    StatusNoLetter = "no valid letter"
    StatusAPIError = "API error"
    StatusStopped  = "stopped"
    StatusActive   = "active"
)

// Event is one observable outcome of the pipeline.
type Event struct {
    Kind    Kind      `json:"kind"`
    Letter  string    `json:"letter,omitempty"`
    Raw     string    `json:"raw,omitempty"`
    Source  string    `json:"source,omitempty"`
    Message string    `json:"message,omitempty"`
    Time    time.Time `json:"time"`
}

// Result builds a result event for letter found in raw, read from the
// element named source.
func Result(letter byte, raw, source string) Event {
    return Event{Kind: KindResult, Letter: string(letter), Raw: raw, Source: source, Time: time.Now()}
}

// Raw builds an event for a reply without a recognisable letter.
func Raw(raw string) Event {
    return Event{Kind: KindRaw, Raw: raw, Time: time.Now()}
}

// Error builds an event for a failed completion.
func Error(message string) Event {
    return Event{Kind: KindError, Message: message, Time: time.Now()}
}

// Status builds a notice.
func Status(message string) Event {
    return Event{Kind: KindStatus, Message: message, Time: time.Now()}
}

// Answered is the notice shown when a letter was found.
func Answered(letter byte) string { return fmt.Sprintf("answer: %c", letter) }

// Sink is the output interface. Implementations deliver events to different
// backends.
type Sink interface {
    Send(ctx context.Context, ev Event) error
    Close() error
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Send(context.Context, Event) error { return nil }
func (discard) Close() error                      { return nil }
