package llm

import (
	"strings"
	"testing"
)

// TestFilterReasoning_ThinkingBlocks verifies that double-chevron
// thinking blocks are removed with their contents, across newlines and
// for every occurrence.
func TestFilterReasoning_ThinkingBlocks(t *testing.T) {
	t.Parallel()

	in := "before <<THINKING>>secret\nstuff</THINKING>> middle " +
		"<<THINKING>>more</THINKING>> after"
	got := FilterReasoning(in)
	want := "before  middle  after"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

// TestFilterReasoning_ResponseMarkers verifies that response markers
// are stripped while their contents survive.
func TestFilterReasoning_ResponseMarkers(t *testing.T) {
	t.Parallel()

	got := FilterReasoning("<<RESPONSE>>The answer is 42.</RESPONSE>>")
	if got != "The answer is 42." {
		t.Errorf("Expected contents kept, got %q", got)
	}
}

// TestFilterReasoning_ThinkTags verifies removal of lowercase think
// tags with contents.
func TestFilterReasoning_ThinkTags(t *testing.T) {
	t.Parallel()

	got := FilterReasoning("Hello <think>hmm,\nlet me see</think>world")
	if got != "Hello world" {
		t.Errorf("Expected %q, got %q", "Hello world", got)
	}
}

// TestFilterReasoning_Combined runs all three passes on one fragment.
func TestFilterReasoning_Combined(t *testing.T) {
	t.Parallel()

	in := "<<THINKING>>plan</THINKING>><<RESPONSE>>Hi<think>aside</think> there</RESPONSE>>"
	got := FilterReasoning(in)
	if got != "Hi there" {
		t.Errorf("Expected %q, got %q", "Hi there", got)
	}
}

// TestFilterReasoning_EmptyResult verifies that a fragment consisting
// only of markup filters to the empty string.
func TestFilterReasoning_EmptyResult(t *testing.T) {
	t.Parallel()

	cases := []string{
		"<<THINKING>>only thinking</THINKING>>",
		"<think>only think</think>",
		"<<RESPONSE>></RESPONSE>>",
		"",
	}
	for _, in := range cases {
		if got := FilterReasoning(in); got != "" {
			t.Errorf("FilterReasoning(%q) = %q, expected empty", in, got)
		}
	}
}

// TestFilterReasoning_UnpairedMarkers verifies per-fragment behavior:
// an opening marker with no closer in the same fragment passes through
// untouched except for the literal response markers.
func TestFilterReasoning_UnpairedMarkers(t *testing.T) {
	t.Parallel()

	// No closing tag in this fragment, so the thinking pass cannot match.
	got := FilterReasoning("<<THINKING>>partial thought")
	if got != "<<THINKING>>partial thought" {
		t.Errorf("Unpaired thinking marker should pass through, got %q", got)
	}

	// Response markers are plain string replacements, pairing not required.
	got = FilterReasoning("tail</RESPONSE>>")
	if got != "tail" {
		t.Errorf("Expected lone response marker stripped, got %q", got)
	}
}

// TestFilterReasoning_NonGreedy verifies minimal matching between
// multiple block pairs.
func TestFilterReasoning_NonGreedy(t *testing.T) {
	t.Parallel()

	in := "<think>a</think>keep<think>b</think>"
	if got := FilterReasoning(in); got != "keep" {
		t.Errorf("Expected %q, got %q", "keep", got)
	}
}

// TestFilterReasoning_PlainText verifies text without markup is
// returned byte for byte.
func TestFilterReasoning_PlainText(t *testing.T) {
	t.Parallel()

	in := strings.Repeat("ordinary streaming text. ", 10)
	if got := FilterReasoning(in); got != in {
		t.Errorf("Plain text should be unchanged")
	}
}
