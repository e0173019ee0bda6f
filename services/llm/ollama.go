package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emancancode/emanai/services/relay/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("emanai.llm.ollama")

const (
	defaultBaseURL     = "https://ollama.emancancode.online"
	defaultModel       = "huihui_ai/deepseek-r1-abliterated:32b-qwen-distill"
	defaultTemperature = float32(0.7)
	defaultMaxTokens   = 8192
)

type OllamaClient struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []datatypes.Message `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message   datatypes.Message `json:"message"`
	CreatedAt string            `json:"created_at"`
	Done      bool              `json:"done"`
}

// NewOllamaClient builds a client from the environment. OLLAMA_BASE_URL,
// OLLAMA_MODEL, TEMPERATURE and MAX_TOKENS are all optional and fall back
// to the hosted defaults.
func NewOllamaClient() (*OllamaClient, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		slog.Warn("OLLAMA_MODEL not set, using default", "default_model", defaultModel)
		model = defaultModel
	}
	temperature := defaultTemperature
	if raw := os.Getenv("TEMPERATURE"); raw != "" {
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid TEMPERATURE %q: %w", raw, err)
		}
		temperature = float32(v)
	}
	maxTokens := defaultMaxTokens
	if raw := os.Getenv("MAX_TOKENS"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_TOKENS %q: %w", raw, err)
		}
		maxTokens = v
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client",
		"base_url", baseURL, "default_model", model,
		"temperature", temperature, "max_tokens", maxTokens)
	return &OllamaClient{
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

var _ LLMClient = (*OllamaClient)(nil)

// Chat implements the LLMClient interface (non-streaming).
func (o *OllamaClient) Chat(ctx context.Context, messages []datatypes.Message,
	params GenerationParams) (string, error) {

	ctx, span := tracer.Start(ctx, "OllamaClient.Chat")
	defer span.End()

	payload := o.buildChatRequest(messages, params, false)
	span.SetAttributes(attribute.String("llm.model", payload.Model))

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", fmt.Errorf("ollama chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		span.SetStatus(codes.Error, "non-200 response")
		return "", fmt.Errorf("ollama chat failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	return parsed.Message.Content, nil
}

// ChatStream implements the LLMClient interface (streaming).
//
// # Description
//
// Posts the transcript to {base}/api/chat with stream:true and feeds the
// NDJSON response body through a streamDecoder. Each decoded record maps
// to at most one callback event: a token event for non-empty content, an
// error event for an in-stream error field. The done record ends the
// stream. A callback error aborts the stream and is returned wrapped.
//
// # Inputs
//
//   - ctx: Cancellation aborts the in-flight read.
//   - messages: Full transcript, forwarded verbatim.
//   - params: Optional model/temperature/num_predict overrides.
//   - callback: Receives events in stream order.
//
// # Outputs
//
//   - error: nil on a clean done record or EOF; wrapped error otherwise.
func (o *OllamaClient) ChatStream(ctx context.Context, messages []datatypes.Message,
	params GenerationParams, callback StreamCallback) error {

	ctx, span := tracer.Start(ctx, "OllamaClient.ChatStream")
	defer span.End()

	payload := o.buildChatRequest(messages, params, true)
	span.SetAttributes(
		attribute.String("llm.model", payload.Model),
		attribute.Int("llm.message_count", len(messages)),
	)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("ollama chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		span.SetStatus(codes.Error, "non-200 response")
		return fmt.Errorf("ollama chat failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	decoder := &streamDecoder{}
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, chunk := range decoder.Feed(buf[:n]) {
				done, err := o.deliverChunk(chunk, callback)
				if err != nil {
					span.RecordError(err)
					return err
				}
				if done {
					return nil
				}
			}
		}
		if readErr == io.EOF {
			if chunk, ok := decoder.Flush(); ok {
				if _, err := o.deliverChunk(chunk, callback); err != nil {
					span.RecordError(err)
					return err
				}
			}
			return nil
		}
		if readErr != nil {
			span.RecordError(readErr)
			span.SetStatus(codes.Error, "stream read failed")
			return fmt.Errorf("ollama stream read failed: %w", readErr)
		}
	}
}

// deliverChunk maps one decoded record to callback events. The returned
// bool reports whether the stream is finished.
func (o *OllamaClient) deliverChunk(chunk ollamaStreamChunk,
	callback StreamCallback) (bool, error) {

	if chunk.Error != "" {
		// Best effort: the callback sees the error before we fail.
		_ = callback(StreamEvent{Type: StreamEventError, Error: chunk.Error})
		return true, fmt.Errorf("ollama stream error: %s", chunk.Error)
	}
	if content := chunk.Message.Content; content != "" {
		event := StreamEvent{Type: StreamEventToken, Content: content}
		if err := callback(event); err != nil {
			return true, fmt.Errorf("stream callback failed: %w", err)
		}
	}
	if chunk.Done {
		event := StreamEvent{Type: StreamEventDone, DoneReason: chunk.DoneReason}
		if err := callback(event); err != nil {
			return true, fmt.Errorf("stream callback failed: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// ListModels proxies the upstream /api/tags listing and returns the raw
// JSON document.
func (o *OllamaClient) ListModels(ctx context.Context) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.ListModels")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create tags request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("ollama tags request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags failed with status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read tags response: %w", err)
	}
	return json.RawMessage(raw), nil
}

func (o *OllamaClient) buildChatRequest(messages []datatypes.Message,
	params GenerationParams, stream bool) ollamaChatRequest {

	model := params.Model
	if model == "" {
		model = o.model
	}
	temperature := o.temperature
	if params.Temperature != nil {
		temperature = *params.Temperature
	}
	maxTokens := o.maxTokens
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}
	return ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Options: map[string]any{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	}
}
