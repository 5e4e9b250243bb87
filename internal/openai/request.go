package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/claudeway/claudeway/internal/anthropic"
)

// BuildChatRequest translates a canonical request into the OpenAI
// chat-completions payload sent upstream. upstreamModel is the resolved
// upstream model id, which may differ from the model the client asked for.
func BuildChatRequest(req *anthropic.CanonicalRequest, upstreamModel string) *ChatRequest {
	out := &ChatRequest{
		Model:       upstreamModel,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.StopSequences,
		Stream:      req.Stream,
	}
	if req.Stream {
		out.StreamOptions = &StreamOptions{IncludeUsage: true}
	}

	if len(req.System) > 0 {
		system := strings.Join(req.System, "\n\n")
		if NeedsIdentityFilter(system) {
			system = FilterIdentity(system)
		}
		out.Messages = append(out.Messages, ChatMessage{Role: "system", Content: system})
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "user":
			out.Messages = append(out.Messages, buildUserMessages(msg)...)
		case "assistant":
			out.Messages = append(out.Messages, buildAssistantMessage(msg))
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{
			Type: "function",
			Function: FunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  stripURIFormat(t.InputSchema),
			},
		})
	}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Type {
		case "auto", "none":
			out.ToolChoice = req.ToolChoice.Type
		case "any":
			// OpenAI's closest equivalent to "must call some tool".
			out.ToolChoice = "required"
		case "tool":
			out.ToolChoice = ToolChoiceFunction{
				Type:     "function",
				Function: ToolChoiceFuncName{Name: req.ToolChoice.Name},
			}
		}
	}

	return out
}

// buildUserMessages expands one canonical user turn. Tool results become
// role:"tool" messages and are emitted before the remaining user content.
func buildUserMessages(msg anthropic.CanonicalMessage) []ChatMessage {
	var tools []ChatMessage
	var parts []ContentPart
	textOnly := true

	for _, blk := range msg.Blocks {
		switch blk.Kind {
		case anthropic.BlockToolResult:
			tools = append(tools, ChatMessage{
				Role:       "tool",
				ToolCallID: blk.ToolUseID,
				Content:    anthropic.ToolResultText(blk.Content),
			})
		case anthropic.BlockText:
			parts = append(parts, ContentPart{Type: "text", Text: blk.Text})
		case anthropic.BlockImage:
			textOnly = false
			parts = append(parts, ContentPart{
				Type: "image_url",
				ImageURL: &ImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", blk.MediaType, blk.Data),
				},
			})
		}
	}

	out := tools
	if len(parts) > 0 {
		user := ChatMessage{Role: "user", Content: parts}
		if textOnly {
			// Collapse pure-text turns to a plain string; some upstreams
			// reject content arrays outside multimodal requests.
			var sb strings.Builder
			for _, p := range parts {
				sb.WriteString(p.Text)
			}
			user.Content = sb.String()
		}
		out = append(out, user)
	}
	return out
}

// buildAssistantMessage folds one canonical assistant turn into a single
// message carrying joined text and any tool calls. Content is JSON null when
// the turn had no text.
func buildAssistantMessage(msg anthropic.CanonicalMessage) ChatMessage {
	var texts []string
	var calls []ToolCall

	for _, blk := range msg.Blocks {
		switch blk.Kind {
		case anthropic.BlockText:
			texts = append(texts, blk.Text)
		case anthropic.BlockToolUse:
			calls = append(calls, ToolCall{
				ID:   blk.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      blk.Name,
					Arguments: string(blk.Input),
				},
			})
		}
	}

	out := ChatMessage{Role: "assistant", ToolCalls: calls}
	if len(texts) > 0 {
		out.Content = strings.Join(texts, "\n")
	}
	return out
}

// stripURIFormat returns a deep copy of the schema with every "format":"uri"
// property removed. Several upstreams reject the uri format qualifier.
func stripURIFormat(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	cleaned := stripURIFormatValue(schema)
	out, ok := cleaned.(map[string]interface{})
	if !ok {
		return schema
	}
	return out
}

func stripURIFormatValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if k == "format" {
				if s, ok := child.(string); ok && s == "uri" {
					continue
				}
			}
			out[k] = stripURIFormatValue(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = stripURIFormatValue(child)
		}
		return out
	case json.RawMessage:
		var decoded interface{}
		if err := json.Unmarshal(val, &decoded); err != nil {
			return val
		}
		return stripURIFormatValue(decoded)
	default:
		return v
	}
}
