// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emancancode/emanai/services/relay/conversation"
)

func newConversationRouter(t *testing.T) (*gin.Engine, conversation.DocumentStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := conversation.NewFileStore(t.TempDir())
	require.NoError(t, err)

	h := NewConversationHandler(store)
	router := gin.New()
	router.GET("/api/conversations", h.List)
	router.POST("/api/conversations", h.CreateOrMerge)
	router.GET("/api/conversations/:id", h.Get)
	router.PUT("/api/conversations/:id", h.Update)
	router.DELETE("/api/conversations/:id", h.Delete)
	return router, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string,
	body any) *httptest.ResponseRecorder {

	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func transcript(pairs ...string) []map[string]string {
	out := make([]map[string]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, map[string]string{"role": pairs[i], "content": pairs[i+1]})
	}
	return out
}

func TestConversations_ListEmpty(t *testing.T) {
	router, _ := newConversationRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/conversations", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	convos, ok := body["conversations"].([]any)
	require.True(t, ok, "conversations must be an array, got %T", body["conversations"])
	assert.Empty(t, convos)
}

func TestConversations_CreateNew(t *testing.T) {
	router, store := newConversationRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/conversations", map[string]any{
		"title":    "First chat",
		"messages": transcript("user", "hi", "assistant", "hello"),
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotContains(t, body, "duplicate")
	assert.NotContains(t, body, "merged")
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	saved, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "First chat", saved.Title)
	assert.Len(t, saved.Messages, 2)
	assert.False(t, saved.Created.IsZero())
	assert.False(t, saved.Updated.IsZero())
}

func TestConversations_ExactDuplicateNotRewritten(t *testing.T) {
	router, store := newConversationRouter(t)

	payload := map[string]any{
		"messages": transcript("user", "hi", "assistant", "hello"),
	}
	first := decodeBody(t, doJSON(t, router, http.MethodPost, "/api/conversations", payload))
	id := first["id"].(string)

	saved, err := store.Load(id)
	require.NoError(t, err)
	originalUpdated := saved.Updated

	second := decodeBody(t, doJSON(t, router, http.MethodPost, "/api/conversations", payload))
	assert.Equal(t, true, second["success"])
	assert.Equal(t, true, second["duplicate"])
	assert.Equal(t, id, second["id"])

	// The acknowledged duplicate must not touch the stored document.
	saved, err = store.Load(id)
	require.NoError(t, err)
	assert.True(t, saved.Updated.Equal(originalUpdated))

	summaries, err := store.List()
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestConversations_PrefixMerge(t *testing.T) {
	router, store := newConversationRouter(t)

	short := map[string]any{"messages": transcript("user", "hi")}
	first := decodeBody(t, doJSON(t, router, http.MethodPost, "/api/conversations", short))
	id := first["id"].(string)

	longer := map[string]any{
		"title":    "Named later",
		"messages": transcript("user", "hi", "assistant", "hello"),
	}
	second := decodeBody(t, doJSON(t, router, http.MethodPost, "/api/conversations", longer))
	assert.Equal(t, true, second["merged"])
	assert.Equal(t, id, second["id"])

	saved, err := store.Load(id)
	require.NoError(t, err)
	assert.Len(t, saved.Messages, 2)
	assert.Equal(t, "Named later", saved.Title)

	summaries, err := store.List()
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestConversations_DivergentCreatesNew(t *testing.T) {
	router, store := newConversationRouter(t)

	doJSON(t, router, http.MethodPost, "/api/conversations",
		map[string]any{"messages": transcript("user", "hi")})
	doJSON(t, router, http.MethodPost, "/api/conversations",
		map[string]any{"messages": transcript("user", "different opener")})

	summaries, err := store.List()
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestConversations_GetAndNotFound(t *testing.T) {
	router, _ := newConversationRouter(t)

	created := decodeBody(t, doJSON(t, router, http.MethodPost, "/api/conversations",
		map[string]any{"messages": transcript("user", "hi")}))
	id := created["id"].(string)

	w := doJSON(t, router, http.MethodGet, "/api/conversations/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, id, body["id"])

	w = doJSON(t, router, http.MethodGet, "/api/conversations/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Conversation not found", decodeBody(t, w)["error"])
}

func TestConversations_UpdateRequiresMatchingID(t *testing.T) {
	router, store := newConversationRouter(t)

	created := decodeBody(t, doJSON(t, router, http.MethodPost, "/api/conversations",
		map[string]any{"messages": transcript("user", "hi")}))
	id := created["id"].(string)

	w := doJSON(t, router, http.MethodPut, "/api/conversations/"+id, map[string]any{
		"id":       id,
		"title":    "Renamed",
		"messages": transcript("user", "hi"),
	})
	assert.Equal(t, http.StatusOK, w.Code)

	saved, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", saved.Title)

	w = doJSON(t, router, http.MethodPut, "/api/conversations/"+id, map[string]any{
		"id": "someone-else",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request", decodeBody(t, w)["error"])
}

func TestConversations_Delete(t *testing.T) {
	router, _ := newConversationRouter(t)

	created := decodeBody(t, doJSON(t, router, http.MethodPost, "/api/conversations",
		map[string]any{"messages": transcript("user", "hi")}))
	id := created["id"].(string)

	w := doJSON(t, router, http.MethodDelete, "/api/conversations/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["success"])

	w = doJSON(t, router, http.MethodDelete, "/api/conversations/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["success"])
}
