package openai

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/claudeway/claudeway/internal/anthropic"
)

func textMsg(role, text string) anthropic.CanonicalMessage {
	return anthropic.CanonicalMessage{
		Role:   role,
		Blocks: []anthropic.Block{{Kind: anthropic.BlockText, Text: text}},
	}
}

func TestBuildChatRequestSystemJoin(t *testing.T) {
	req := &anthropic.CanonicalRequest{
		Model:    "gpt-4o",
		System:   []string{"first", "second"},
		Messages: []anthropic.CanonicalMessage{textMsg("user", "hi")},
	}
	out := BuildChatRequest(req, "gpt-4o")

	if out.Messages[0].Role != "system" {
		t.Fatalf("Expected system message first, got role %q", out.Messages[0].Role)
	}
	if out.Messages[0].Content != "first\n\nsecond" {
		t.Errorf("Expected joined system, got %v", out.Messages[0].Content)
	}
}

func TestBuildChatRequestAppliesIdentityFilter(t *testing.T) {
	req := &anthropic.CanonicalRequest{
		Model:    "gpt-4o",
		System:   []string{"You are Claude Code, Anthropic's official CLI for Claude."},
		Messages: []anthropic.CanonicalMessage{textMsg("user", "hi")},
	}
	out := BuildChatRequest(req, "gpt-4o")

	system, ok := out.Messages[0].Content.(string)
	if !ok {
		t.Fatalf("Expected string system content, got %T", out.Messages[0].Content)
	}
	if !strings.HasPrefix(system, "IMPORTANT: You are NOT Claude.") {
		t.Errorf("Expected identity filter applied, got: %q", system)
	}
}

// Tool round-trip: the assistant tool_calls message must precede the
// role:tool result, content null when the assistant turn has no text, and
// arguments must be a JSON string.
func TestBuildChatRequestToolRoundTrip(t *testing.T) {
	req := &anthropic.CanonicalRequest{
		Model: "gpt-4o",
		Messages: []anthropic.CanonicalMessage{
			textMsg("user", "add 1 and 2"),
			{Role: "assistant", Blocks: []anthropic.Block{
				{Kind: anthropic.BlockToolUse, ID: "t1", Name: "calc", Input: json.RawMessage(`{"a":1,"b":2}`)},
			}},
			{Role: "user", Blocks: []anthropic.Block{
				{Kind: anthropic.BlockToolResult, ToolUseID: "t1", Content: json.RawMessage(`"3"`)},
			}},
		},
	}
	out := BuildChatRequest(req, "gpt-4o")

	if len(out.Messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(out.Messages))
	}

	assistant := out.Messages[1]
	if assistant.Role != "assistant" {
		t.Fatalf("Expected assistant message at index 1, got %q", assistant.Role)
	}
	if assistant.Content != nil {
		t.Errorf("Expected null content for tool-only assistant turn, got %v", assistant.Content)
	}
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("Expected one tool call, got %d", len(assistant.ToolCalls))
	}
	tc := assistant.ToolCalls[0]
	if tc.ID != "t1" || tc.Type != "function" || tc.Function.Name != "calc" {
		t.Errorf("Unexpected tool call: %+v", tc)
	}
	if tc.Function.Arguments != `{"a":1,"b":2}` {
		t.Errorf("Expected JSON-string arguments, got %q", tc.Function.Arguments)
	}

	toolMsg := out.Messages[2]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "t1" {
		t.Errorf("Expected tool message for t1, got %+v", toolMsg)
	}
	if toolMsg.Content != "3" {
		t.Errorf("Expected unwrapped string content, got %v", toolMsg.Content)
	}

	// Marshal check: assistant content must serialize as JSON null.
	raw, err := json.Marshal(assistant)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(raw), `"content":null`) {
		t.Errorf("Expected content:null on the wire, got %s", raw)
	}
}

func TestBuildChatRequestToolResultsPrecedeUserText(t *testing.T) {
	req := &anthropic.CanonicalRequest{
		Model: "gpt-4o",
		Messages: []anthropic.CanonicalMessage{
			{Role: "assistant", Blocks: []anthropic.Block{
				{Kind: anthropic.BlockToolUse, ID: "t1", Name: "calc", Input: json.RawMessage(`{}`)},
			}},
			{Role: "user", Blocks: []anthropic.Block{
				{Kind: anthropic.BlockText, Text: "and now?"},
				{Kind: anthropic.BlockToolResult, ToolUseID: "t1", Content: json.RawMessage(`"3"`)},
			}},
		},
	}
	out := BuildChatRequest(req, "gpt-4o")

	if out.Messages[1].Role != "tool" {
		t.Errorf("Expected tool message before user text, got %q", out.Messages[1].Role)
	}
	if out.Messages[2].Role != "user" || out.Messages[2].Content != "and now?" {
		t.Errorf("Expected trailing user text, got %+v", out.Messages[2])
	}
}

func TestBuildChatRequestImageDataURL(t *testing.T) {
	req := &anthropic.CanonicalRequest{
		Model: "gpt-4o",
		Messages: []anthropic.CanonicalMessage{
			{Role: "user", Blocks: []anthropic.Block{
				{Kind: anthropic.BlockText, Text: "what is this"},
				{Kind: anthropic.BlockImage, MediaType: "image/png", Data: "AAAA"},
			}},
		},
	}
	out := BuildChatRequest(req, "gpt-4o")

	parts, ok := out.Messages[0].Content.([]ContentPart)
	if !ok {
		t.Fatalf("Expected content parts for multimodal turn, got %T", out.Messages[0].Content)
	}
	if len(parts) != 2 || parts[1].Type != "image_url" {
		t.Fatalf("Expected text + image_url parts, got %+v", parts)
	}
	if parts[1].ImageURL.URL != "data:image/png;base64,AAAA" {
		t.Errorf("Unexpected data URL: %q", parts[1].ImageURL.URL)
	}
}

func TestBuildChatRequestToolChoice(t *testing.T) {
	base := func(tc *anthropic.ToolChoice) *anthropic.CanonicalRequest {
		return &anthropic.CanonicalRequest{
			Model:      "gpt-4o",
			ToolChoice: tc,
			Messages:   []anthropic.CanonicalMessage{textMsg("user", "x")},
		}
	}

	out := BuildChatRequest(base(&anthropic.ToolChoice{Type: "auto"}), "gpt-4o")
	if out.ToolChoice != "auto" {
		t.Errorf("Expected auto passthrough, got %v", out.ToolChoice)
	}

	out = BuildChatRequest(base(&anthropic.ToolChoice{Type: "any"}), "gpt-4o")
	if out.ToolChoice != "required" {
		t.Errorf("Expected any -> required, got %v", out.ToolChoice)
	}

	out = BuildChatRequest(base(&anthropic.ToolChoice{Type: "tool", Name: "calc"}), "gpt-4o")
	forced, ok := out.ToolChoice.(ToolChoiceFunction)
	if !ok || forced.Function.Name != "calc" {
		t.Errorf("Expected forced function choice, got %v", out.ToolChoice)
	}
}

func TestStripURIFormat(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"link": map[string]interface{}{
				"type":   "string",
				"format": "uri",
			},
			"when": map[string]interface{}{
				"type":   "string",
				"format": "date-time",
			},
		},
	}
	out := stripURIFormat(schema)

	props := out["properties"].(map[string]interface{})
	link := props["link"].(map[string]interface{})
	if _, present := link["format"]; present {
		t.Error("Expected uri format removed")
	}
	when := props["when"].(map[string]interface{})
	if when["format"] != "date-time" {
		t.Error("Expected non-uri format preserved")
	}
	// Original schema untouched.
	orig := schema["properties"].(map[string]interface{})["link"].(map[string]interface{})
	if orig["format"] != "uri" {
		t.Error("Expected original schema unmodified")
	}
}

func TestBuildChatRequestStreamOptions(t *testing.T) {
	req := &anthropic.CanonicalRequest{
		Model:    "gpt-4o",
		Stream:   true,
		Messages: []anthropic.CanonicalMessage{textMsg("user", "x")},
	}
	out := BuildChatRequest(req, "gpt-4o")
	if out.StreamOptions == nil || !out.StreamOptions.IncludeUsage {
		t.Error("Expected stream_options.include_usage when streaming")
	}

	req.Stream = false
	out = BuildChatRequest(req, "gpt-4o")
	if out.StreamOptions != nil {
		t.Error("Expected no stream_options when not streaming")
	}
}
