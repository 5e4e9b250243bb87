package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/claudeway/claudeway/internal/errs"
)

// BlockKind tags the canonical content block variants.
type BlockKind int

const (
	BlockText BlockKind = iota
	BlockImage
	BlockToolUse
	BlockToolResult
)

// Block is one canonical content block. Kind selects the populated fields.
type Block struct {
	Kind BlockKind

	// BlockText
	Text string

	// BlockImage
	MediaType string
	Data      string

	// BlockToolUse
	ID    string
	Name  string
	Input json.RawMessage

	// BlockToolResult
	ToolUseID string
	Content   json.RawMessage
	IsError   bool
}

// CanonicalMessage is one normalized conversation turn.
type CanonicalMessage struct {
	Role   string
	Blocks []Block
}

// CanonicalRequest is the internal request form produced by Normalize and
// consumed by the OpenAI request builder and the adapters.
type CanonicalRequest struct {
	Model         string
	System        []string
	Messages      []CanonicalMessage
	Tools         []Tool
	ToolChoice    *ToolChoice
	MaxTokens     int
	Temperature   *float64
	TopP          *float64
	StopSequences []string
	Stream        bool
	Thinking      *Thinking
}

// Normalize validates a wire request and produces the canonical form plus
// the names of parameters that were dropped for upstream compatibility.
func Normalize(req *MessagesRequest) (*CanonicalRequest, []string, error) {
	if req.Model == "" {
		return nil, nil, errs.New(errs.KindInvalidRequest, "model: must not be empty")
	}
	if len(req.Messages) == 0 {
		return nil, nil, errs.New(errs.KindInvalidRequest, "messages: must not be empty")
	}

	out := &CanonicalRequest{
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.StopSequences,
		Stream:        req.Stream,
		Thinking:      req.Thinking,
		Tools:         req.Tools,
		ToolChoice:    req.ToolChoice,
	}

	for _, seg := range req.System {
		out.System = append(out.System, seg.Text)
	}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Type {
		case "auto", "none", "any":
		case "tool":
			if req.ToolChoice.Name == "" {
				return nil, nil, errs.New(errs.KindInvalidRequest, "tool_choice.name: required when type is \"tool\"")
			}
		default:
			return nil, nil, errs.Newf(errs.KindInvalidRequest, "tool_choice.type: unknown value %q", req.ToolChoice.Type)
		}
	}

	// Tool_result blocks must reference a tool_use id seen earlier in the
	// conversation; duplicate ids within one turn are discarded, first wins.
	seenToolUse := make(map[string]bool)

	for i, msg := range req.Messages {
		if msg.Role != "user" && msg.Role != "assistant" {
			return nil, nil, errs.Newf(errs.KindInvalidRequest, "messages[%d].role: must be \"user\" or \"assistant\", got %q", i, msg.Role)
		}

		cm := CanonicalMessage{Role: msg.Role}
		turnToolUse := make(map[string]bool)
		turnToolResult := make(map[string]bool)

		for j, blk := range msg.Content {
			path := fmt.Sprintf("messages[%d].content[%d]", i, j)

			switch blk.Type {
			case "text":
				cm.Blocks = append(cm.Blocks, Block{Kind: BlockText, Text: blk.Text})

			case "thinking", "redacted_thinking":
				// Replayed reasoning from a prior assistant response.
				// Upstreams never accept it back; silently elide.
				if msg.Role != "assistant" {
					return nil, nil, errs.Newf(errs.KindInvalidRequest, "%s: thinking blocks are only valid on assistant turns", path)
				}

			case "image":
				if msg.Role != "user" {
					return nil, nil, errs.Newf(errs.KindInvalidRequest, "%s: image blocks are only valid on user turns", path)
				}
				if blk.Source == nil || blk.Source.Data == "" {
					return nil, nil, errs.Newf(errs.KindInvalidRequest, "%s.source: required for image blocks", path)
				}
				cm.Blocks = append(cm.Blocks, Block{
					Kind:      BlockImage,
					MediaType: blk.Source.MediaType,
					Data:      blk.Source.Data,
				})

			case "tool_use":
				if msg.Role != "assistant" {
					return nil, nil, errs.Newf(errs.KindInvalidRequest, "%s: tool_use blocks are only valid on assistant turns", path)
				}
				if blk.ID == "" || blk.Name == "" {
					return nil, nil, errs.Newf(errs.KindInvalidRequest, "%s: tool_use requires id and name", path)
				}
				if turnToolUse[blk.ID] {
					continue // duplicate within the turn, first wins
				}
				turnToolUse[blk.ID] = true
				seenToolUse[blk.ID] = true
				input := blk.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				cm.Blocks = append(cm.Blocks, Block{
					Kind:  BlockToolUse,
					ID:    blk.ID,
					Name:  blk.Name,
					Input: input,
				})

			case "tool_result":
				if msg.Role != "user" {
					return nil, nil, errs.Newf(errs.KindInvalidRequest, "%s: tool_result blocks are only valid on user turns", path)
				}
				if blk.ToolUseID == "" {
					return nil, nil, errs.Newf(errs.KindInvalidRequest, "%s.tool_use_id: required", path)
				}
				if !seenToolUse[blk.ToolUseID] {
					return nil, nil, errs.Newf(errs.KindInvalidRequest, "%s.tool_use_id: %q does not match any earlier tool_use", path, blk.ToolUseID)
				}
				if turnToolResult[blk.ToolUseID] {
					continue // duplicate within the turn, first wins
				}
				turnToolResult[blk.ToolUseID] = true
				cm.Blocks = append(cm.Blocks, Block{
					Kind:      BlockToolResult,
					ToolUseID: blk.ToolUseID,
					Content:   blk.Content,
					IsError:   blk.IsError,
				})

			default:
				return nil, nil, errs.Newf(errs.KindInvalidRequest, "%s.type: unknown block type %q", path, blk.Type)
			}
		}

		out.Messages = append(out.Messages, cm)
	}

	var dropped []string
	if req.TopK != nil {
		dropped = append(dropped, "top_k")
	}
	if len(req.Metadata) > 0 {
		dropped = append(dropped, "metadata")
	}

	return out, dropped, nil
}

// ToolResultText flattens a tool_result content payload to the string sent
// upstream: bare strings are unwrapped, structured content is re-serialized.
func ToolResultText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	// Arrays of {type:"text"} blocks are common from Anthropic clients;
	// concatenate their text rather than forwarding raw JSON.
	var blocks []ContentBlock
	if err := json.Unmarshal(content, &blocks); err == nil && len(blocks) > 0 {
		joined := ""
		allText := true
		for _, b := range blocks {
			if b.Type != "text" {
				allText = false
				break
			}
			joined += b.Text
		}
		if allText {
			return joined
		}
	}
	return string(content)
}
