// Package upstream talks to OpenAI-compatible chat-completions endpoints:
// it opens streaming requests, maps HTTP failures onto the gateway error
// taxonomy, and parses the SSE byte stream into events.
package upstream

import (
	"bytes"
	"strings"
)

// maxLineBuffer caps the SSE line accumulator. Unframed upstream data
// cannot grow the buffer without bound; on overflow the oldest half is
// discarded.
const maxLineBuffer = 64 * 1024

// Event is one parsed SSE event. Done marks the [DONE] sentinel.
type Event struct {
	Type string
	Data string
	Done bool
}

// EventParser incrementally parses an SSE byte stream. Feed it raw chunks
// as they arrive; incomplete lines are carried over to the next call.
type EventParser struct {
	buf       []byte
	eventType string
}

// NewEventParser returns an empty parser.
func NewEventParser() *EventParser {
	return &EventParser{}
}

// Feed consumes one chunk and returns the events it completed.
func (p *EventParser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)
	if len(p.buf) > maxLineBuffer {
		p.buf = p.buf[len(p.buf)/2:]
	}

	var events []Event
	for {
		nl := bytes.IndexByte(p.buf, '\n')
		if nl < 0 {
			break
		}
		line := strings.TrimSuffix(string(p.buf[:nl]), "\r")
		p.buf = p.buf[nl+1:]

		switch {
		case line == "":
			p.eventType = ""
		case strings.HasPrefix(line, "data: "):
			payload := line[len("data: "):]
			if payload == "[DONE]" {
				events = append(events, Event{Done: true})
				continue
			}
			events = append(events, Event{Type: p.eventType, Data: payload})
		case strings.HasPrefix(line, "event:"):
			p.eventType = strings.TrimSpace(line[len("event:"):])
		default:
			// id: lines and ": " comments carry nothing we act on.
		}
	}
	return events
}
