// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/emancancode/emanai/services/relay/conversation"
	"github.com/emancancode/emanai/services/relay/datatypes"
	"github.com/emancancode/emanai/services/relay/observability"
)

// ConversationHandler serves the conversation CRUD surface over a
// DocumentStore.
type ConversationHandler struct {
	store conversation.DocumentStore
}

func NewConversationHandler(store conversation.DocumentStore) *ConversationHandler {
	return &ConversationHandler{store: store}
}

// List handles GET /api/conversations.
func (h *ConversationHandler) List(c *gin.Context) {
	summaries, err := h.store.List()
	if err != nil {
		h.storeError(c, "list conversations", err)
		return
	}
	if summaries == nil {
		summaries = []datatypes.ConversationSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// Get handles GET /api/conversations/:id.
func (h *ConversationHandler) Get(c *gin.Context) {
	convo, err := h.store.Load(c.Param("id"))
	if errors.Is(err, conversation.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	if err != nil {
		h.storeError(c, "load conversation", err)
		return
	}
	c.JSON(http.StatusOK, convo)
}

// CreateOrMerge handles POST /api/conversations.
//
// # Description
//
// Reconciles the submitted transcript against the store before writing
// anything. An exact match is acknowledged without a write, so clients
// that re-post unchanged transcripts on every sync cannot fork
// duplicates. A prefix match means the client extended a known
// conversation; the stored document absorbs the longer transcript.
// Anything else becomes a new conversation.
//
// Responses:
//
//   - exact:  {"success":true,"id":...,"duplicate":true}
//   - prefix: {"success":true,"id":...,"merged":true}
//   - new:    {"success":true,"id":...}
func (h *ConversationHandler) CreateOrMerge(c *gin.Context) {
	var body datatypes.Conversation
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if len(body.Messages) > 0 {
		stored, err := h.store.All()
		if err != nil {
			h.storeError(c, "scan conversations", err)
			return
		}
		switch match := conversation.Match(body.Messages, stored); match.Kind {
		case conversation.MatchExact:
			c.JSON(http.StatusOK, gin.H{
				"success": true, "id": match.ID, "duplicate": true,
			})
			return
		case conversation.MatchPrefix:
			if h.merge(c, match.ID, &body) {
				return
			}
			// Merge failed; fall through and create a new conversation.
		}
	}

	if body.ID == "" {
		body.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if body.Created.IsZero() {
		body.Created = now
	}
	body.Updated = now
	if err := h.store.Save(&body); err != nil {
		h.storeError(c, "save conversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": body.ID})
}

// merge overwrites the matched conversation with the longer transcript.
// Returns true when it produced a response.
func (h *ConversationHandler) merge(c *gin.Context, id string,
	body *datatypes.Conversation) bool {

	convo, err := h.store.Load(id)
	if err != nil {
		slog.Warn("Failed to load conversation for merge",
			"conversation_id", id, "error", err)
		convo = &datatypes.Conversation{ID: id}
	}
	convo.Messages = body.Messages
	if body.Title != "" {
		convo.Title = body.Title
	}
	convo.Updated = time.Now().UTC()
	if err := h.store.Save(convo); err != nil {
		slog.Warn("Failed to merge conversation",
			"conversation_id", id, "error", err)
		return false
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id, "merged": true})
	return true
}

// Update handles PUT /api/conversations/:id. The body id must equal the
// path id; the document is overwritten as-is.
func (h *ConversationHandler) Update(c *gin.Context) {
	var body datatypes.Conversation
	if err := c.ShouldBindJSON(&body); err != nil || body.ID != c.Param("id") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := h.store.Save(&body); err != nil {
		h.storeError(c, "save conversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Delete handles DELETE /api/conversations/:id.
func (h *ConversationHandler) Delete(c *gin.Context) {
	err := h.store.Delete(c.Param("id"))
	if errors.Is(err, conversation.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false})
		return
	}
	if err != nil {
		h.storeError(c, "delete conversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ConversationHandler) storeError(c *gin.Context, op string, err error) {
	slog.Error("Conversation store operation failed", "op", op, "error", err)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(observability.EndpointConversations, observability.ErrorCodeStore)
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Storage failure"})
}
