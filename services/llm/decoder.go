package llm

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"github.com/emancancode/emanai/services/relay/datatypes"
)

// ollamaStreamChunk is one decoded NDJSON record from /api/chat.
type ollamaStreamChunk struct {
	Message    datatypes.Message `json:"message"`
	Thinking   string            `json:"thinking,omitempty"`
	Done       bool              `json:"done"`
	DoneReason string            `json:"done_reason,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// streamDecoder reassembles NDJSON records from arbitrarily sized byte
// chunks. Bytes after the last newline are carried over until the next
// Feed or Flush, so the decoded record sequence is identical no matter
// how the transport splits the stream.
type streamDecoder struct {
	buf []byte
}

// Feed appends a raw chunk and returns every record completed by it.
// Blank lines are skipped; lines that fail to decode are dropped with a
// warning.
func (d *streamDecoder) Feed(p []byte) []ollamaStreamChunk {
	d.buf = append(d.buf, p...)
	var out []ollamaStreamChunk
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return out
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]
		if chunk, ok := decodeStreamLine(line); ok {
			out = append(out, chunk)
		}
	}
}

// Flush decodes the retained trailing bytes, if any. Called once at end
// of stream for upstreams that do not terminate the final record with a
// newline.
func (d *streamDecoder) Flush() (ollamaStreamChunk, bool) {
	line := d.buf
	d.buf = nil
	return decodeStreamLine(line)
}

func decodeStreamLine(line []byte) (ollamaStreamChunk, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return ollamaStreamChunk{}, false
	}
	var chunk ollamaStreamChunk
	if err := json.Unmarshal(line, &chunk); err != nil {
		slog.Warn("Skipping malformed stream line", "error", err)
		return ollamaStreamChunk{}, false
	}
	return chunk, true
}
