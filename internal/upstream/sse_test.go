package upstream

import (
	"strings"
	"testing"
)

func TestEventParserBasic(t *testing.T) {
	p := NewEventParser()
	events := p.Feed([]byte("data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n"))

	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].Data != `{"a":1}` || events[1].Data != `{"b":2}` {
		t.Errorf("Unexpected payloads: %+v", events)
	}
	if !events[2].Done {
		t.Error("Expected [DONE] sentinel")
	}
}

func TestEventParserSplitAcrossChunks(t *testing.T) {
	p := NewEventParser()
	var events []Event
	for _, chunk := range []string{"da", "ta: {\"a\"", ":1}\n", "\ndata: [D", "ONE]\n\n"} {
		events = append(events, p.Feed([]byte(chunk))...)
	}

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Data != `{"a":1}` {
		t.Errorf("Unexpected payload: %q", events[0].Data)
	}
	if !events[1].Done {
		t.Error("Expected [DONE]")
	}
}

func TestEventParserCRLF(t *testing.T) {
	p := NewEventParser()
	events := p.Feed([]byte("data: {\"a\":1}\r\n\r\n"))
	if len(events) != 1 || events[0].Data != `{"a":1}` {
		t.Errorf("CRLF handling broken: %+v", events)
	}
}

func TestEventParserEventTypeLines(t *testing.T) {
	p := NewEventParser()
	events := p.Feed([]byte("event: message\ndata: {\"a\":1}\n\ndata: {\"b\":2}\n\n"))

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Type != "message" {
		t.Errorf("Expected event type carried, got %q", events[0].Type)
	}
	// Blank line resets the accumulator.
	if events[1].Type != "" {
		t.Errorf("Expected type reset after blank line, got %q", events[1].Type)
	}
}

func TestEventParserIgnoresCommentsAndIDs(t *testing.T) {
	p := NewEventParser()
	events := p.Feed([]byte(": keep-alive\nid: 42\ndata: {\"a\":1}\n\n"))
	if len(events) != 1 || events[0].Data != `{"a":1}` {
		t.Errorf("Comment/id lines mishandled: %+v", events)
	}
}

func TestEventParserBufferCap(t *testing.T) {
	p := NewEventParser()
	// A newline-free flood must not grow the buffer without bound.
	flood := strings.Repeat("x", maxLineBuffer)
	p.Feed([]byte(flood))
	p.Feed([]byte(flood))

	if len(p.buf) > maxLineBuffer {
		t.Errorf("Buffer exceeded cap: %d bytes", len(p.buf))
	}

	// Parser still works after overflow.
	events := p.Feed([]byte("\ndata: {\"ok\":true}\n\n"))
	found := false
	for _, ev := range events {
		if ev.Data == `{"ok":true}` {
			found = true
		}
	}
	if !found {
		t.Error("Parser did not recover after overflow")
	}
}
