package llm

import (
	"regexp"
	"strings"
)

var (
	thinkingBlockRe = regexp.MustCompile(`(?s)<<THINKING>>.*?</THINKING>>`)
	thinkBlockRe    = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

const (
	responseOpenMarker  = "<<RESPONSE>>"
	responseCloseMarker = "</RESPONSE>>"
)

// FilterReasoning strips model reasoning markup from a text fragment.
//
// Three passes, in order: <<THINKING>>...</THINKING>> blocks are removed
// with their contents, <<RESPONSE>> / </RESPONSE>> markers are removed
// with their contents kept, and <think>...</think> blocks are removed
// with their contents. Matching is non-greedy and spans newlines.
//
// The filter is applied per fragment. A marker pair split across two
// upstream records is not recognized and the literal text passes through.
func FilterReasoning(text string) string {
	out := thinkingBlockRe.ReplaceAllString(text, "")
	out = strings.ReplaceAll(out, responseOpenMarker, "")
	out = strings.ReplaceAll(out, responseCloseMarker, "")
	return thinkBlockRe.ReplaceAllString(out, "")
}
