package adapter

import (
	"testing"

	"github.com/claudeway/claudeway/internal/anthropic"
	"github.com/claudeway/claudeway/internal/openai"
)

func TestRegistrySelection(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		model string
		want  string
	}{
		{"MiniMax-M1", "minimax"},
		{"abab-minimax-chat", "minimax"},
		{"grok-3", "grok"},
		{"x-ai/grok-2", "grok"},
		{"gpt-4o", "default"},
		{"deepseek-chat", "default"},
	}
	for _, tt := range tests {
		if got := r.Select(tt.model).Name(); got != tt.want {
			t.Errorf("Select(%q) = %s, want %s", tt.model, got, tt.want)
		}
	}
}

func TestRegistryReturnsFreshInstances(t *testing.T) {
	r := NewRegistry()
	a := r.Select("grok-3").(*Grok)
	b := r.Select("grok-3").(*Grok)
	if a == b || a.parser == b.parser {
		t.Error("Expected independent adapter instances per request")
	}
}

func TestMiniMaxReasoningSplit(t *testing.T) {
	adp := &MiniMax{}
	payload := &openai.ChatRequest{Model: "MiniMax-M1"}

	adp.PrepareRequest(payload, &anthropic.CanonicalRequest{})
	if payload.ReasoningSplit {
		t.Error("Expected no reasoning_split without thinking")
	}

	adp.PrepareRequest(payload, &anthropic.CanonicalRequest{
		Thinking: &anthropic.Thinking{Type: "enabled", BudgetTokens: 1024},
	})
	if !payload.ReasoningSplit {
		t.Error("Expected reasoning_split with thinking present")
	}
}

func TestGrokPrependsToolNote(t *testing.T) {
	adp := NewGrok()
	payload := &openai.ChatRequest{
		Model:    "grok-3",
		Messages: []openai.ChatMessage{{Role: "user", Content: "hi"}},
		Tools: []openai.Tool{{
			Type:     "function",
			Function: openai.FunctionDef{Name: "bash"},
		}},
	}
	adp.PrepareRequest(payload, &anthropic.CanonicalRequest{})

	if len(payload.Messages) != 2 {
		t.Fatalf("Expected prepended system note, got %d messages", len(payload.Messages))
	}
	if payload.Messages[0].Role != "system" {
		t.Errorf("Expected system note first, got %q", payload.Messages[0].Role)
	}
}

func TestGrokSkipsNoteWithoutTools(t *testing.T) {
	adp := NewGrok()
	payload := &openai.ChatRequest{
		Model:    "grok-3",
		Messages: []openai.ChatMessage{{Role: "user", Content: "hi"}},
	}
	adp.PrepareRequest(payload, &anthropic.CanonicalRequest{})
	if len(payload.Messages) != 1 {
		t.Errorf("Expected no note without tools, got %d messages", len(payload.Messages))
	}
}

func TestDefaultPassthrough(t *testing.T) {
	adp := &Default{}
	res := adp.ProcessTextContent("unchanged text")
	if len(res.Segments) != 1 || res.Segments[0].Text != "unchanged text" {
		t.Errorf("Expected passthrough, got %+v", res)
	}
	if res.Transformed {
		t.Error("Expected no transformation")
	}
	if adp.Flush() != "" {
		t.Error("Expected empty flush")
	}
}
