// Package translate converts OpenAI chat-completion chunk streams into
// Anthropic SSE event streams.
//
// Responsibilities:
//   - Track content block lifecycle and index assignment (blocktable.go)
//   - Drive the per-request translation state machine (translator.go)
//   - Assemble non-streaming responses from the same event flow (assemble.go)
package translate

import "strings"

type blockKind int

const (
	blockText blockKind = iota
	blockReasoning
	blockTool
)

// block is one content block the translator has opened. Tool blocks
// accumulate their argument bytes for end-of-stream validation.
type block struct {
	kind  blockKind
	index int
	open  bool

	// blockTool
	id   string
	name string
	args strings.Builder
}

// blockTable assigns monotonically increasing block indices and tracks
// which blocks are open. At most one text and one reasoning block are open
// at any time; tool blocks are keyed by the upstream tool_call index.
type blockTable struct {
	blocks     []*block
	next       int
	text       *block
	reasoning  *block
	byUpstream map[int]*block
}

func newBlockTable() *blockTable {
	return &blockTable{byUpstream: make(map[int]*block)}
}

func (t *blockTable) alloc(kind blockKind) *block {
	b := &block{kind: kind, index: t.next, open: true}
	t.next++
	t.blocks = append(t.blocks, b)
	return b
}

// openText opens a new text block. The caller must have closed the
// previous one.
func (t *blockTable) openText() *block {
	t.text = t.alloc(blockText)
	return t.text
}

// openReasoning opens a new reasoning block.
func (t *blockTable) openReasoning() *block {
	t.reasoning = t.alloc(blockReasoning)
	return t.reasoning
}

// openTool opens a tool block. upstreamIdx < 0 registers no upstream
// mapping (synthetic tool calls extracted from text).
func (t *blockTable) openTool(upstreamIdx int, id, name string) *block {
	b := t.alloc(blockTool)
	b.id = id
	b.name = name
	if upstreamIdx >= 0 {
		t.byUpstream[upstreamIdx] = b
	}
	return b
}

// tool returns the block mapped to an upstream tool_call index, or nil.
func (t *blockTable) tool(upstreamIdx int) *block {
	return t.byUpstream[upstreamIdx]
}

func (t *blockTable) closeText() *block {
	b := t.text
	if b != nil {
		b.open = false
		t.text = nil
	}
	return b
}

func (t *blockTable) closeReasoning() *block {
	b := t.reasoning
	if b != nil {
		b.open = false
		t.reasoning = nil
	}
	return b
}

// openBlocks returns the still-open blocks in the order they were opened.
func (t *blockTable) openBlocks() []*block {
	var out []*block
	for _, b := range t.blocks {
		if b.open {
			out = append(out, b)
		}
	}
	return out
}
