// Package adapter implements per-model-family request shaping and text
// post-processing hooks.
//
// Responsibilities:
//   - Match a model id to the family that needs special handling
//   - Tweak the outbound OpenAI payload before dispatch (PrepareRequest)
//   - Post-process streamed text deltas, extracting tool calls that some
//     families embed as XML in the text channel (ProcessTextContent)
package adapter

import (
	"strings"

	"github.com/claudeway/claudeway/internal/anthropic"
	"github.com/claudeway/claudeway/internal/openai"
)

// ExtractedToolCall is a tool call recovered from model text output rather
// than the tool_calls channel. Arguments is a JSON object string.
type ExtractedToolCall struct {
	Name      string
	Arguments string
}

// Segment is one ordered piece of processed output: either text or an
// extracted tool call. Tool is nil for text segments.
type Segment struct {
	Text string
	Tool *ExtractedToolCall
}

// TextResult is the outcome of feeding one text delta to an adapter. The
// segments preserve the position of extracted tool calls relative to the
// surrounding text. Segments may be empty when the adapter is holding
// bytes back, and may include text buffered from earlier deltas.
type TextResult struct {
	Segments    []Segment
	Transformed bool
}

// Adapter customizes upstream interaction for one model family. Adapters
// carry per-request parse state; the registry hands out a fresh instance
// for every request.
type Adapter interface {
	Name() string
	ShouldHandle(modelID string) bool
	PrepareRequest(payload *openai.ChatRequest, req *anthropic.CanonicalRequest)
	ProcessTextContent(delta string) TextResult
	Reset()

	// Flush returns any text the adapter held back waiting for more
	// input. Called once when the upstream stream ends.
	Flush() string
}

// Factory builds a fresh adapter instance.
type Factory func() Adapter

// Registry selects the adapter for a model id. First match wins; the
// default adapter is always last and matches everything.
type Registry struct {
	factories []Factory
}

// NewRegistry returns the registry with the built-in family adapters.
func NewRegistry() *Registry {
	return &Registry{factories: []Factory{
		func() Adapter { return &MiniMax{} },
		func() Adapter { return NewGrok() },
		func() Adapter { return &Default{} },
	}}
}

// Select returns a fresh adapter for the model id.
func (r *Registry) Select(modelID string) Adapter {
	for _, f := range r.factories {
		a := f()
		if a.ShouldHandle(modelID) {
			return a
		}
	}
	return &Default{}
}

// Default passes requests and text through untouched.
type Default struct{}

func (*Default) Name() string             { return "default" }
func (*Default) ShouldHandle(string) bool { return true }
func (*Default) Reset()                   {}
func (*Default) Flush() string            { return "" }

func (*Default) PrepareRequest(*openai.ChatRequest, *anthropic.CanonicalRequest) {}

func (*Default) ProcessTextContent(delta string) TextResult {
	return TextResult{Segments: []Segment{{Text: delta}}}
}

// MiniMax moves extended-reasoning requests onto the family's
// reasoning_split flag.
type MiniMax struct{}

func (*MiniMax) Name() string { return "minimax" }

func (*MiniMax) ShouldHandle(modelID string) bool {
	return strings.Contains(strings.ToLower(modelID), "minimax")
}

func (*MiniMax) PrepareRequest(payload *openai.ChatRequest, req *anthropic.CanonicalRequest) {
	if req.Thinking != nil {
		payload.ReasoningSplit = true
	}
}

func (*MiniMax) ProcessTextContent(delta string) TextResult {
	return TextResult{Segments: []Segment{{Text: delta}}}
}

func (*MiniMax) Reset()        {}
func (*MiniMax) Flush() string { return "" }

// grokToolNote steers Grok back to the wire tool_calls channel. Without it
// the model tends to write tool invocations as XML inside its text output.
const grokToolNote = "When calling tools, always use the structured tool_calls mechanism of the API. Never write tool invocations as XML or plain text in your reply."

// Grok prepends a tool-format note and recovers XML-embedded tool calls
// from the text channel when the model emits them anyway.
type Grok struct {
	parser *XMLToolParser
}

// NewGrok returns a Grok adapter with a fresh XML parser.
func NewGrok() *Grok {
	return &Grok{parser: NewXMLToolParser()}
}

func (*Grok) Name() string { return "grok" }

func (*Grok) ShouldHandle(modelID string) bool {
	id := strings.ToLower(modelID)
	return strings.Contains(id, "grok") || strings.Contains(id, "x-ai")
}

func (g *Grok) PrepareRequest(payload *openai.ChatRequest, req *anthropic.CanonicalRequest) {
	if len(payload.Tools) == 0 {
		return
	}
	note := openai.ChatMessage{Role: "system", Content: grokToolNote}
	payload.Messages = append([]openai.ChatMessage{note}, payload.Messages...)
}

func (g *Grok) ProcessTextContent(delta string) TextResult {
	return g.parser.Feed(delta)
}

func (g *Grok) Reset()        { g.parser.Reset() }
func (g *Grok) Flush() string { return g.parser.Flush() }
