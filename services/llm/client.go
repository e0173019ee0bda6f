package llm

import (
	"context"
	"encoding/json"

	"github.com/emancancode/emanai/services/relay/datatypes"
)

type GenerationParams struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float32 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
}

// StreamEventType classifies events delivered to a StreamCallback.
type StreamEventType int

const (
	// StreamEventToken carries a content fragment.
	StreamEventToken StreamEventType = iota
	// StreamEventDone marks the upstream done record.
	StreamEventDone
	// StreamEventError carries an in-stream upstream error.
	StreamEventError
)

// StreamEvent is one callback delivery during a streaming chat.
type StreamEvent struct {
	Type       StreamEventType
	Content    string
	DoneReason string
	Error      string
}

// StreamCallback receives stream events in order. Returning a non-nil
// error aborts the stream.
type StreamCallback func(event StreamEvent) error

// LLMClient defines the standard interface for any chat backend.
type LLMClient interface {
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
	ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams, callback StreamCallback) error
	ListModels(ctx context.Context) (json.RawMessage, error)
}
