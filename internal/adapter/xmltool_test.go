package adapter

import (
	"strings"
	"testing"
)

func collect(results ...TextResult) (string, []ExtractedToolCall) {
	var text strings.Builder
	var calls []ExtractedToolCall
	for _, r := range results {
		for _, seg := range r.Segments {
			if seg.Tool != nil {
				calls = append(calls, *seg.Tool)
				continue
			}
			text.WriteString(seg.Text)
		}
	}
	return text.String(), calls
}

func TestXMLToolParserSingleBlock(t *testing.T) {
	p := NewXMLToolParser()
	in := "I'll run it.\n<function_calls>\n<invoke name=\"bash\">\n<parameter name=\"command\">ls</parameter>\n</invoke>\n</function_calls>\nDone."

	res := p.Feed(in)
	if !res.Transformed {
		t.Error("Expected Transformed to be set")
	}

	if len(res.Segments) != 3 {
		t.Fatalf("Expected 3 segments (text, tool, text), got %d: %+v", len(res.Segments), res.Segments)
	}
	if res.Segments[0].Text != "I'll run it.\n" {
		t.Errorf("Unexpected leading text: %q", res.Segments[0].Text)
	}
	tool := res.Segments[1].Tool
	if tool == nil || tool.Name != "bash" {
		t.Fatalf("Expected bash tool segment, got %+v", res.Segments[1])
	}
	if tool.Arguments != `{"command":"ls"}` {
		t.Errorf("Unexpected arguments: %q", tool.Arguments)
	}
	if res.Segments[2].Text != "\nDone." {
		t.Errorf("Unexpected trailing text: %q", res.Segments[2].Text)
	}
	if held := p.Flush(); held != "" {
		t.Errorf("Expected empty flush, got %q", held)
	}
}

// Residual text must equal the original with the block excised.
func TestXMLToolParserRoundTrip(t *testing.T) {
	block := "<function_calls>\n<invoke name=\"read\">\n<parameter name=\"path\">/tmp/a</parameter>\n</invoke>\n<invoke name=\"write\">\n<parameter name=\"path\">/tmp/b</parameter>\n<parameter name=\"data\">hi</parameter>\n</invoke>\n</function_calls>"
	pre, post := "before ", " after"

	p := NewXMLToolParser()
	text, calls := collect(p.Feed(pre + block + post))
	text += p.Flush()

	if text != pre+post {
		t.Errorf("Residual text mismatch:\ngot:  %q\nwant: %q", text, pre+post)
	}
	if len(calls) != 2 {
		t.Fatalf("Expected 2 tool calls, got %d", len(calls))
	}
	if calls[0].Name != "read" || calls[0].Arguments != `{"path":"/tmp/a"}` {
		t.Errorf("Unexpected first call: %+v", calls[0])
	}
	if calls[1].Name != "write" || calls[1].Arguments != `{"path":"/tmp/b","data":"hi"}` {
		t.Errorf("Unexpected second call: %+v", calls[1])
	}
}

func TestXMLToolParserSplitAcrossDeltas(t *testing.T) {
	in := "run:\n<function_calls>\n<invoke name=\"bash\">\n<parameter name=\"command\">echo hi</parameter>\n</invoke>\n</function_calls>ok"
	for _, size := range []int{1, 3, 7, 16} {
		p := NewXMLToolParser()
		var results []TextResult
		for i := 0; i < len(in); i += size {
			end := i + size
			if end > len(in) {
				end = len(in)
			}
			results = append(results, p.Feed(in[i:end]))
		}
		text, calls := collect(results...)
		text += p.Flush()

		if text != "run:\nok" {
			t.Errorf("size %d: residual text %q", size, text)
		}
		if len(calls) != 1 || calls[0].Name != "bash" || calls[0].Arguments != `{"command":"echo hi"}` {
			t.Errorf("size %d: unexpected calls %+v", size, calls)
		}
	}
}

func TestXMLToolParserIncompleteBlockFlushedAsText(t *testing.T) {
	p := NewXMLToolParser()
	in := "start <function_calls>\n<invoke name=\"x\">"

	res := p.Feed(in)
	text, calls := collect(res)
	if len(calls) != 0 {
		t.Fatalf("Expected no calls from incomplete block, got %+v", calls)
	}
	if text != "start " {
		t.Errorf("Expected only preceding text emitted, got %q", text)
	}
	if held := p.Flush(); held != "<function_calls>\n<invoke name=\"x\">" {
		t.Errorf("Expected incomplete block surfaced at flush, got %q", held)
	}
}

func TestXMLToolParserPlainAngleBracket(t *testing.T) {
	p := NewXMLToolParser()
	text, calls := collect(p.Feed("a < b and a <f"), p.Feed("ine day"))
	text += p.Flush()

	if len(calls) != 0 {
		t.Errorf("Expected no calls, got %+v", calls)
	}
	if text != "a < b and a <fine day" {
		t.Errorf("Plain text mangled: %q", text)
	}
}

func TestXMLToolParserUnescapesEntities(t *testing.T) {
	p := NewXMLToolParser()
	in := `<function_calls><invoke name="bash"><parameter name="command">echo &quot;a &amp; b&quot; &lt;ok&gt;</parameter></invoke></function_calls>`
	_, calls := collect(p.Feed(in))
	if len(calls) != 1 {
		t.Fatalf("Expected one call, got %d", len(calls))
	}
	want := `{"command":"echo \"a & b\" <ok>"}`
	if calls[0].Arguments != want {
		t.Errorf("Arguments = %q, want %q", calls[0].Arguments, want)
	}
}

func TestXMLToolParserMalformedBlockSurfacedAsText(t *testing.T) {
	p := NewXMLToolParser()
	in := "x<function_calls>not actually invokes</function_calls>y"
	text, calls := collect(p.Feed(in))
	text += p.Flush()

	if len(calls) != 0 {
		t.Errorf("Expected no calls, got %+v", calls)
	}
	if text != in {
		t.Errorf("Expected malformed block preserved, got %q", text)
	}
}

func TestXMLToolParserUnclosedBlockBounded(t *testing.T) {
	p := NewXMLToolParser()
	p.Feed(`<function_calls><invoke name="x">`)

	chunk := strings.Repeat("y", 4096)
	var emitted int
	for i := 0; i < 32; i++ {
		for _, seg := range p.Feed(chunk).Segments {
			if seg.Tool != nil {
				t.Fatal("Unexpected tool call from an unclosed block")
			}
			emitted += len(seg.Text)
		}
	}
	if emitted == 0 {
		t.Fatal("Expected the unclosed block surfaced as text once past the hold-back cap")
	}
	if held := p.Flush(); len(held) > maxHoldback+len(xmlBlockOpen) {
		t.Errorf("Parser held %d bytes across feeds, want at most %d", len(held), maxHoldback)
	}
}
