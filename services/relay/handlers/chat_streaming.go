// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/emancancode/emanai/services/llm"
	"github.com/emancancode/emanai/services/relay/datatypes"
	"github.com/emancancode/emanai/services/relay/observability"
	"github.com/emancancode/emanai/services/relay/session"
)

var tracer = otel.Tracer("emanai.relay.handlers")

// HandleChatStream relays one chat request as an SSE stream.
//
// # Description
//
// Validates the request, switches the response to SSE, and hands the
// stream to a relay session. The session owns the heartbeat, the
// reasoning filter, and the terminal event; this handler classifies the
// outcome for logs and metrics.
//
// A request without messages is rejected with 400 before any SSE bytes
// are written. After the stream starts, failures surface as SSE error
// events, not HTTP status codes.
//
// # Inputs
//
//   - client: Upstream chat backend.
//   - registry: In-flight session registry for shutdown broadcast.
//   - cfg: Session tunables (heartbeat interval, logger).
//
// # Outputs
//
//   - gin.HandlerFunc: Registered at POST /api/chat.
func HandleChatStream(client llm.LLMClient, registry *session.Registry,
	cfg session.Config) gin.HandlerFunc {

	return func(c *gin.Context) {
		endpoint := observability.EndpointChatStream
		ctx, span := tracer.Start(c.Request.Context(), "HandleChatStream")
		defer span.End()

		start := time.Now()
		success := false
		if m := observability.DefaultMetrics; m != nil {
			m.StreamStarted(endpoint)
			defer func() {
				m.StreamEnded(endpoint)
				m.RecordRequest(endpoint, success)
				m.RecordStreamDuration(endpoint, time.Since(start).Seconds(), success)
			}()
		}

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.SetStatus(codes.Error, "invalid request body")
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "No messages provided"})
			return
		}
		if err := req.Validate(); err != nil {
			span.SetStatus(codes.Error, "validation failed")
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "No messages provided"})
			return
		}

		span.SetAttributes(
			attribute.Int("chat.message_count", len(req.Messages)),
			attribute.String("chat.model", req.Model),
		)

		SetSSEHeaders(c.Writer)
		sink, err := NewSSEWriter(c.Writer)
		if err != nil {
			span.SetStatus(codes.Error, "streaming unsupported")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
			return
		}
		c.Writer.WriteHeader(http.StatusOK)
		c.Writer.Flush()

		sess := session.New(uuid.NewString(), sink, registry, cfg)
		_, runErr := sess.Run(ctx, client, req.Messages,
			llm.GenerationParams{Model: req.Model})

		switch sess.State() {
		case session.StateCompleted:
			success = true
			span.SetStatus(codes.Ok, "")
		case session.StateDisconnected:
			// Nothing owed to the client; counted by the session.
			span.SetAttributes(attribute.Bool("chat.client_disconnected", true))
		default:
			span.RecordError(runErr)
			span.SetStatus(codes.Error, "stream failed")
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeUpstream)
			}
		}
	}
}
