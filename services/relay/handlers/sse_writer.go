// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/emancancode/emanai/services/relay/session"
)

// =============================================================================
// SSE Writer
// =============================================================================

// sseWriter writes relay events to an HTTP response in SSE wire format:
//
//	event: {name}
//	data: {json}
//
// followed by a blank line. Heartbeats are bare comment lines (":").
// Every write flushes immediately; SSE is useless buffered.
//
// # Event Payloads
//
//   - response: {"text": "..."}
//   - error:    {"message": "..."}
//   - done:     {"ok": true}
//
// # Thread Safety
//
// Thread-safe via mutex. The session serializes its writes, but the
// writer does not rely on that.
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

var _ session.Sink = (*sseWriter)(nil)

// NewSSEWriter wraps a ResponseWriter for SSE output.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - session.Sink: Ready to write events.
//   - error: Non-nil if the ResponseWriter cannot flush.
func NewSSEWriter(w http.ResponseWriter) (session.Sink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// WriteResponse writes one filtered content fragment.
func (w *sseWriter) WriteResponse(text string) error {
	return w.writeEvent("response", map[string]any{"text": text})
}

// WriteError writes the terminal error event.
func (w *sseWriter) WriteError(message string) error {
	return w.writeEvent("error", map[string]any{"message": message})
}

// WriteDone writes the terminal done event.
func (w *sseWriter) WriteDone() error {
	return w.writeEvent("done", map[string]any{"ok": true})
}

// WriteKeepAlive writes a bare SSE comment. Clients ignore it; proxies
// and load balancers see traffic and keep the connection open.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, ":\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) writeEvent(name string, payload any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures response headers for SSE streaming. Must be
// called before the first body write.
//
//   - Content-Type: text/event-stream
//   - Cache-Control: no-cache
//   - Connection: keep-alive
//   - X-Accel-Buffering: no (disables nginx buffering)
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
