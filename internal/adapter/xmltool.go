package adapter

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	xmlBlockOpen  = "<function_calls>"
	xmlBlockClose = "</function_calls>"

	// maxHoldback bounds how much of an unclosed block is buffered while
	// waiting for its close tag. Past this the block is treated as plain
	// text so a runaway stream cannot grow the buffer without limit.
	maxHoldback = 64 * 1024
)

var (
	invokeRe = regexp.MustCompile(`(?s)<invoke name="([^"]+)">(.*?)</invoke>`)
	paramRe  = regexp.MustCompile(`(?s)<parameter name="([^"]+)">(.*?)</parameter>`)

	xmlUnescaper = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&amp;", "&",
	)
)

// XMLToolParser recovers tool calls that a model wrote as a
// <function_calls> XML block inside its text output. It is streaming-safe:
// text that might be the start of a block is held back until either the
// block completes or the input proves it was plain text.
type XMLToolParser struct {
	buf strings.Builder
}

// NewXMLToolParser returns an empty parser.
func NewXMLToolParser() *XMLToolParser {
	return &XMLToolParser{}
}

// Feed consumes one text delta and returns the segments safe to emit. Text
// around an extracted block keeps its position relative to the tool calls.
func (p *XMLToolParser) Feed(delta string) TextResult {
	p.buf.WriteString(delta)
	buf := p.buf.String()
	p.buf.Reset()

	var res TextResult
	appendText := func(s string) {
		if s == "" {
			return
		}
		// Merge with a preceding text segment so callers see contiguous
		// text as one delta.
		if n := len(res.Segments); n > 0 && res.Segments[n-1].Tool == nil {
			res.Segments[n-1].Text += s
			return
		}
		res.Segments = append(res.Segments, Segment{Text: s})
	}

	for {
		open := strings.Index(buf, xmlBlockOpen)
		if open < 0 {
			// Hold back a tail that could still grow into the marker.
			tail := partialMarkerLen(buf)
			appendText(buf[:len(buf)-tail])
			p.buf.WriteString(buf[len(buf)-tail:])
			break
		}

		closeIdx := strings.Index(buf[open:], xmlBlockClose)
		if closeIdx < 0 {
			if len(buf)-open > maxHoldback {
				// The block never closed within the cap; surface it as
				// text and stop treating it as a candidate.
				appendText(buf)
				break
			}
			// Block opened but not yet closed; emit the preceding text
			// and wait for more input.
			appendText(buf[:open])
			p.buf.WriteString(buf[open:])
			break
		}

		end := open + closeIdx + len(xmlBlockClose)
		block := buf[open:end]
		calls := parseInvokes(block)
		appendText(buf[:open])
		if len(calls) == 0 {
			// Complete but unparseable; surface it as text rather than
			// swallowing model output.
			appendText(block)
		} else {
			for i := range calls {
				res.Segments = append(res.Segments, Segment{Tool: &calls[i]})
			}
			res.Transformed = true
		}
		buf = buf[end:]
	}

	return res
}

// Flush returns any held-back text. Incomplete blocks at stream end are
// surfaced as text.
func (p *XMLToolParser) Flush() string {
	out := p.buf.String()
	p.buf.Reset()
	return out
}

// Reset discards all parser state.
func (p *XMLToolParser) Reset() {
	p.buf.Reset()
}

// parseInvokes extracts the tool calls from one complete block. Arguments
// preserve parameter order.
func parseInvokes(block string) []ExtractedToolCall {
	var calls []ExtractedToolCall
	for _, inv := range invokeRe.FindAllStringSubmatch(block, -1) {
		name := inv[1]
		var args strings.Builder
		args.WriteByte('{')
		for i, param := range paramRe.FindAllStringSubmatch(inv[2], -1) {
			if i > 0 {
				args.WriteByte(',')
			}
			k, _ := json.Marshal(param[1])
			v, _ := json.Marshal(xmlUnescaper.Replace(param[2]))
			args.Write(k)
			args.WriteByte(':')
			args.Write(v)
		}
		args.WriteByte('}')
		calls = append(calls, ExtractedToolCall{Name: name, Arguments: args.String()})
	}
	return calls
}

// partialMarkerLen reports the length of the longest buffer suffix that is
// a proper prefix of the block-open marker.
func partialMarkerLen(buf string) int {
	max := len(xmlBlockOpen) - 1
	if len(buf) < max {
		max = len(buf)
	}
	for l := max; l > 0; l-- {
		if strings.HasSuffix(buf, xmlBlockOpen[:l]) {
			return l
		}
	}
	return 0
}
