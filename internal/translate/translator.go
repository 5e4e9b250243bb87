package translate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/claudeway/claudeway/internal/adapter"
	"github.com/claudeway/claudeway/internal/anthropic"
	"github.com/claudeway/claudeway/internal/openai"
)

// Sink receives the translated Anthropic events. The streaming SSE writer
// and the non-streaming assembler both implement it.
type Sink interface {
	Send(ev anthropic.Event) error
}

type state int

const (
	stateNew state = iota
	stateHeaderSent
	stateStreaming
	stateEnded
	stateErrored
)

// Translator converts one upstream chunk stream into one Anthropic event
// stream. It is request-local and not safe for concurrent use.
type Translator struct {
	sink    Sink
	adapter adapter.Adapter
	log     *zap.Logger
	model   string

	messageID string
	st        state
	table     *blockTable

	usage      *openai.Usage
	stopReason anthropic.StopReason
	stopSet    bool
	sawData    bool

	// Argument fragments for upstream tool_call indices whose name has
	// not arrived yet. Flushed into the block once the name shows up.
	pendingArgs map[int][]string

	syntheticSeq int
}

// New builds a translator for one request.
func New(sink Sink, adp adapter.Adapter, model string, log *zap.Logger) *Translator {
	return &Translator{
		sink:        sink,
		adapter:     adp,
		log:         log,
		model:       model,
		messageID:   newMessageID(),
		table:       newBlockTable(),
		pendingArgs: make(map[int][]string),
	}
}

func newMessageID() string {
	return fmt.Sprintf("msg_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// MessageID returns the generated message id.
func (t *Translator) MessageID() string { return t.messageID }

// Start emits the message_start and initial ping events. Called before the
// first upstream byte to minimize time to first event.
func (t *Translator) Start() error {
	if t.st != stateNew {
		return nil
	}
	if err := t.sink.Send(anthropic.NewMessageStart(t.messageID, t.model)); err != nil {
		return err
	}
	t.st = stateHeaderSent
	if err := t.sink.Send(anthropic.NewPing()); err != nil {
		return err
	}
	t.st = stateStreaming
	return nil
}

// HandleChunk processes one SSE data payload from the upstream. Payloads
// that fail to parse are logged and skipped; the stream continues.
func (t *Translator) HandleChunk(data string) error {
	if t.st == stateEnded || t.st == stateErrored {
		return nil
	}

	var chunk openai.Chunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		t.log.Debug("skipping unparseable upstream chunk",
			zap.String("message_id", t.messageID),
			zap.Error(err))
		return nil
	}
	t.sawData = true

	if chunk.Usage != nil {
		t.usage = chunk.Usage
	}
	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]
	d := choice.Delta

	if reasoning := d.ReasoningText(); reasoning != "" {
		if err := t.emitReasoning(reasoning); err != nil {
			return err
		}
	}

	if d.Content != "" {
		res := t.adapter.ProcessTextContent(d.Content)
		for _, seg := range res.Segments {
			if seg.Tool != nil {
				if err := t.emitSyntheticTool(seg.Tool); err != nil {
					return err
				}
				continue
			}
			if err := t.emitText(seg.Text); err != nil {
				return err
			}
		}
	}

	for _, tc := range d.ToolCalls {
		if err := t.handleToolDelta(tc); err != nil {
			return err
		}
	}

	if choice.FinishReason != "" {
		t.stopReason = mapFinishReason(choice.FinishReason)
		t.stopSet = true
		if err := t.closeAllOpen(); err != nil {
			return err
		}
	}
	return nil
}

func (t *Translator) emitReasoning(text string) error {
	if t.table.reasoning == nil {
		b := t.table.openReasoning()
		if err := t.sink.Send(anthropic.NewThinkingStart(b.index)); err != nil {
			return err
		}
	}
	return t.sink.Send(anthropic.ContentBlockDelta{
		Type:  "content_block_delta",
		Index: t.table.reasoning.index,
		Delta: anthropic.Delta{Type: "thinking_delta", Thinking: text},
	})
}

func (t *Translator) emitText(text string) error {
	if text == "" {
		return nil
	}
	if t.table.reasoning != nil {
		if err := t.closeBlock(t.table.closeReasoning()); err != nil {
			return err
		}
	}
	if t.table.text == nil {
		b := t.table.openText()
		if err := t.sink.Send(anthropic.NewTextStart(b.index)); err != nil {
			return err
		}
	}
	return t.sink.Send(anthropic.ContentBlockDelta{
		Type:  "content_block_delta",
		Index: t.table.text.index,
		Delta: anthropic.Delta{Type: "text_delta", Text: text},
	})
}

// emitSyntheticTool emits a tool call recovered from the text channel as a
// complete start/delta/stop triple.
func (t *Translator) emitSyntheticTool(tc *adapter.ExtractedToolCall) error {
	if err := t.closeTextAndReasoning(); err != nil {
		return err
	}
	t.syntheticSeq++
	id := fmt.Sprintf("tool_%d_%d", time.Now().UnixMilli(), t.syntheticSeq)
	b := t.table.openTool(-1, id, tc.Name)
	b.args.WriteString(tc.Arguments)

	if err := t.sink.Send(anthropic.NewToolStart(b.index, id, tc.Name)); err != nil {
		return err
	}
	err := t.sink.Send(anthropic.ContentBlockDelta{
		Type:  "content_block_delta",
		Index: b.index,
		Delta: anthropic.Delta{Type: "input_json_delta", PartialJSON: tc.Arguments},
	})
	if err != nil {
		return err
	}
	return t.closeBlock(b)
}

func (t *Translator) handleToolDelta(tc openai.ToolCallDelta) error {
	b := t.table.tool(tc.Index)
	if b == nil {
		if tc.Function.Name == "" {
			// Argument bytes before the name; hold them until the tool
			// can be opened.
			if tc.Function.Arguments != "" {
				t.pendingArgs[tc.Index] = append(t.pendingArgs[tc.Index], tc.Function.Arguments)
			}
			return nil
		}
		if err := t.closeTextAndReasoning(); err != nil {
			return err
		}
		id := tc.ID
		if id == "" {
			t.syntheticSeq++
			id = fmt.Sprintf("tool_%d_%d", time.Now().UnixMilli(), t.syntheticSeq)
		}
		b = t.table.openTool(tc.Index, id, tc.Function.Name)
		if err := t.sink.Send(anthropic.NewToolStart(b.index, id, tc.Function.Name)); err != nil {
			return err
		}
		for _, frag := range t.pendingArgs[tc.Index] {
			if err := t.emitToolArgs(b, frag); err != nil {
				return err
			}
		}
		delete(t.pendingArgs, tc.Index)
	}

	if tc.Function.Arguments != "" {
		return t.emitToolArgs(b, tc.Function.Arguments)
	}
	return nil
}

func (t *Translator) emitToolArgs(b *block, frag string) error {
	b.args.WriteString(frag)
	return t.sink.Send(anthropic.ContentBlockDelta{
		Type:  "content_block_delta",
		Index: b.index,
		Delta: anthropic.Delta{Type: "input_json_delta", PartialJSON: frag},
	})
}

func (t *Translator) closeTextAndReasoning() error {
	if t.table.text != nil {
		if err := t.closeBlock(t.table.closeText()); err != nil {
			return err
		}
	}
	if t.table.reasoning != nil {
		if err := t.closeBlock(t.table.closeReasoning()); err != nil {
			return err
		}
	}
	return nil
}

func (t *Translator) closeBlock(b *block) error {
	if b == nil {
		return nil
	}
	b.open = false
	if b.kind == blockTool {
		args := b.args.String()
		if args != "" && !json.Valid([]byte(args)) {
			t.log.Warn("tool arguments did not form valid JSON",
				zap.String("message_id", t.messageID),
				zap.String("tool", b.name),
				zap.Int("bytes", len(args)))
		}
	}
	return t.sink.Send(anthropic.ContentBlockStop{
		Type:  "content_block_stop",
		Index: b.index,
	})
}

func (t *Translator) closeAllOpen() error {
	for _, b := range t.table.openBlocks() {
		if err := t.closeBlock(b); err != nil {
			return err
		}
	}
	t.table.text = nil
	t.table.reasoning = nil
	return nil
}

// Finish ends the stream normally: flushes adapter-held text, closes open
// blocks in open order, and emits message_delta and message_stop.
func (t *Translator) Finish() error {
	if t.st == stateEnded || t.st == stateErrored {
		return nil
	}

	if held := t.adapter.Flush(); held != "" {
		if err := t.emitText(held); err != nil {
			return err
		}
	}
	if len(t.pendingArgs) > 0 {
		t.log.Warn("dropping tool_call fragments that never received a name",
			zap.String("message_id", t.messageID),
			zap.Int("indices", len(t.pendingArgs)))
	}
	if err := t.closeAllOpen(); err != nil {
		return err
	}

	reason := t.stopReason
	if !t.stopSet {
		reason = anthropic.StopEndTurn
	}
	outputTokens := 0
	if t.usage != nil {
		outputTokens = t.usage.CompletionTokens
	}
	err := t.sink.Send(anthropic.MessageDelta{
		Type:  "message_delta",
		Delta: anthropic.MessageDeltaBody{StopReason: reason, StopSequence: nil},
		Usage: anthropic.MessageDeltaUsage{OutputTokens: outputTokens},
	})
	if err != nil {
		return err
	}
	if err := t.sink.Send(anthropic.MessageStop{Type: "message_stop"}); err != nil {
		return err
	}
	t.st = stateEnded
	return nil
}

// Fail ends the stream after a mid-stream upstream failure: open blocks are
// closed best-effort and an error event is emitted. Only valid once the
// header has been sent; earlier failures are reported as plain HTTP errors
// by the dispatcher.
func (t *Translator) Fail(message string) {
	if t.st == stateEnded || t.st == stateErrored || t.st == stateNew {
		return
	}
	_ = t.closeAllOpen()
	_ = t.sink.Send(anthropic.ErrorEvent{
		Type:  "error",
		Error: anthropic.ErrorEventBody{Type: "api_error", Message: message},
	})
	t.st = stateErrored
}

// ForceStopReason overrides the stop reason ahead of Finish. Used when the
// request deadline expires after data has flowed.
func (t *Translator) ForceStopReason(r anthropic.StopReason) {
	t.stopReason = r
	t.stopSet = true
}

// Started reports whether message_start has been emitted.
func (t *Translator) Started() bool { return t.st != stateNew }

// SawUpstreamData reports whether at least one upstream chunk parsed. The
// dispatcher uses it to tell a deadline that cut off a producing stream
// from one where the upstream never answered.
func (t *Translator) SawUpstreamData() bool { return t.sawData }

// Usage returns the last usage report from the upstream, or nil.
func (t *Translator) Usage() *openai.Usage { return t.usage }

// StopReason returns the recorded stop reason, defaulting to end_turn.
func (t *Translator) StopReason() anthropic.StopReason {
	if !t.stopSet {
		return anthropic.StopEndTurn
	}
	return t.stopReason
}

func mapFinishReason(fr string) anthropic.StopReason {
	switch fr {
	case "length":
		return anthropic.StopMaxTokens
	case "tool_calls", "function_call":
		return anthropic.StopToolUse
	case "content_filter":
		return anthropic.StopStopSequence
	default:
		return anthropic.StopEndTurn
	}
}
