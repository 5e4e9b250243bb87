package anthropic

import "encoding/json"

// Event is one Anthropic SSE event payload. Each variant reports its SSE
// event name through EventType; the JSON "type" field always matches it.
type Event interface {
	EventType() string
}

// MessageStart opens a streamed message.
type MessageStart struct {
	Type    string   `json:"type"`
	Message Response `json:"message"`
}

func (MessageStart) EventType() string { return "message_start" }

// NewMessageStart builds the opening event with placeholder usage; token
// counts are only known once the upstream reports them at stream end.
func NewMessageStart(messageID, model string) MessageStart {
	return MessageStart{
		Type: "message_start",
		Message: Response{
			ID:      messageID,
			Type:    "message",
			Role:    "assistant",
			Content: []ResponseBlock{},
			Model:   model,
		},
	}
}

// Ping keeps the connection alive between content events.
type Ping struct {
	Type string `json:"type"`
}

func (Ping) EventType() string { return "ping" }

// NewPing returns the ping event.
func NewPing() Ping { return Ping{Type: "ping"} }

// StartBlock is the content_block payload of a content_block_start event.
// Text blocks open with an explicit empty text field and tool blocks with
// an empty input object; ResponseBlock's omitempty tags would drop both.
type StartBlock struct {
	Type     string          `json:"type"`
	Text     *string         `json:"text,omitempty"`
	Thinking *string         `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
}

// ContentBlockStart opens content block Index.
type ContentBlockStart struct {
	Type         string     `json:"type"`
	Index        int        `json:"index"`
	ContentBlock StartBlock `json:"content_block"`
}

func (ContentBlockStart) EventType() string { return "content_block_start" }

// NewTextStart opens a text block with the wire form
// {type:"text", text:""}.
func NewTextStart(index int) ContentBlockStart {
	empty := ""
	return ContentBlockStart{
		Type:         "content_block_start",
		Index:        index,
		ContentBlock: StartBlock{Type: "text", Text: &empty},
	}
}

// NewThinkingStart opens a reasoning block.
func NewThinkingStart(index int) ContentBlockStart {
	return ContentBlockStart{
		Type:         "content_block_start",
		Index:        index,
		ContentBlock: StartBlock{Type: "thinking"},
	}
}

// NewToolStart opens a tool_use block with an empty input object.
func NewToolStart(index int, id, name string) ContentBlockStart {
	return ContentBlockStart{
		Type:  "content_block_start",
		Index: index,
		ContentBlock: StartBlock{
			Type:  "tool_use",
			ID:    id,
			Name:  name,
			Input: json.RawMessage(`{}`),
		},
	}
}

// Delta is the payload of a content_block_delta event.
type Delta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// ContentBlockDelta carries incremental content for block Index.
type ContentBlockDelta struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta Delta  `json:"delta"`
}

func (ContentBlockDelta) EventType() string { return "content_block_delta" }

// ContentBlockStop closes content block Index.
type ContentBlockStop struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

func (ContentBlockStop) EventType() string { return "content_block_stop" }

// MessageDeltaBody carries the final stop reason.
type MessageDeltaBody struct {
	StopReason   StopReason `json:"stop_reason"`
	StopSequence *string    `json:"stop_sequence"`
}

// MessageDeltaUsage carries only output tokens; input tokens ride on
// message_start.
type MessageDeltaUsage struct {
	OutputTokens int `json:"output_tokens"`
}

// MessageDelta closes out the message metadata before message_stop.
type MessageDelta struct {
	Type  string            `json:"type"`
	Delta MessageDeltaBody  `json:"delta"`
	Usage MessageDeltaUsage `json:"usage"`
}

func (MessageDelta) EventType() string { return "message_delta" }

// MessageStop terminates the message.
type MessageStop struct {
	Type string `json:"type"`
}

func (MessageStop) EventType() string { return "message_stop" }

// ErrorEventBody is the error detail inside an error event.
type ErrorEventBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorEvent surfaces a mid-stream failure after the HTTP status is
// already committed.
type ErrorEvent struct {
	Type  string         `json:"type"`
	Error ErrorEventBody `json:"error"`
}

func (ErrorEvent) EventType() string { return "error" }
