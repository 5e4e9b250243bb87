package translate

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/claudeway/claudeway/internal/anthropic"
)

// Assembler is a Sink that folds the translated event stream into a single
// non-streaming response body. The dispatcher uses it when the client sets
// stream:false; the upstream is still consumed as a stream.
type Assembler struct {
	log *zap.Logger

	messageID  string
	model      string
	stopReason anthropic.StopReason
	output     int
	blocks     []*assembledBlock
	byIndex    map[int]*assembledBlock
	errMsg     string
}

type assembledBlock struct {
	typ      string
	text     strings.Builder
	thinking strings.Builder
	id       string
	name     string
	argsJSON strings.Builder
}

// NewAssembler returns an empty assembler.
func NewAssembler(log *zap.Logger) *Assembler {
	return &Assembler{log: log, byIndex: make(map[int]*assembledBlock)}
}

// Send records one event. It never fails; assembly is in-memory.
func (a *Assembler) Send(ev anthropic.Event) error {
	switch e := ev.(type) {
	case anthropic.MessageStart:
		a.messageID = e.Message.ID
		a.model = e.Message.Model
	case anthropic.ContentBlockStart:
		b := &assembledBlock{
			typ:  e.ContentBlock.Type,
			id:   e.ContentBlock.ID,
			name: e.ContentBlock.Name,
		}
		a.blocks = append(a.blocks, b)
		a.byIndex[e.Index] = b
	case anthropic.ContentBlockDelta:
		b := a.byIndex[e.Index]
		if b == nil {
			return nil
		}
		b.text.WriteString(e.Delta.Text)
		b.thinking.WriteString(e.Delta.Thinking)
		b.argsJSON.WriteString(e.Delta.PartialJSON)
	case anthropic.MessageDelta:
		a.stopReason = e.Delta.StopReason
		a.output = e.Usage.OutputTokens
	case anthropic.ErrorEvent:
		a.errMsg = e.Error.Message
	}
	return nil
}

// Err returns the mid-stream error message, if the stream failed.
func (a *Assembler) Err() string { return a.errMsg }

// Response builds the final body. inputTokens comes from the upstream
// usage report; block order follows the stream.
func (a *Assembler) Response(inputTokens int) *anthropic.Response {
	content := make([]anthropic.ResponseBlock, 0, len(a.blocks))
	for _, b := range a.blocks {
		switch b.typ {
		case "text":
			content = append(content, anthropic.ResponseBlock{Type: "text", Text: b.text.String()})
		case "thinking":
			content = append(content, anthropic.ResponseBlock{Type: "thinking", Thinking: b.thinking.String()})
		case "tool_use":
			input := json.RawMessage(b.argsJSON.String())
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			} else if !json.Valid(input) {
				a.log.Warn("assembled tool arguments were not valid JSON, substituting empty object",
					zap.String("message_id", a.messageID),
					zap.String("tool", b.name))
				input = json.RawMessage(`{}`)
			}
			content = append(content, anthropic.ResponseBlock{
				Type:  "tool_use",
				ID:    b.id,
				Name:  b.name,
				Input: input,
			})
		}
	}

	stop := a.stopReason
	if stop == "" {
		stop = anthropic.StopEndTurn
	}
	return &anthropic.Response{
		ID:           a.messageID,
		Type:         "message",
		Role:         "assistant",
		Content:      content,
		Model:        a.model,
		StopReason:   &stop,
		StopSequence: nil,
		Usage: anthropic.Usage{
			InputTokens:  inputTokens,
			OutputTokens: a.output,
		},
	}
}
