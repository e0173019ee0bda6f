// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var chatValidator = validator.New()

// Message is a single chat turn. Clients send arbitrary JSON objects per
// turn (role/content plus whatever UI metadata they attach), so the raw
// document is preserved verbatim and forwarded to the upstream unchanged.
// Role and Content are extracted for logging and stream handling only.
type Message struct {
	Role    string
	Content string

	raw json.RawMessage
}

// NewMessage builds a plain role/content message. Used by tests and the
// smoke-test CLI; client-supplied messages come in through UnmarshalJSON.
func NewMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var probe struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	m.Role = probe.Role
	m.Content = probe.Content
	m.raw = append(m.raw[:0], data...)
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	if m.raw != nil {
		return m.raw, nil
	}
	return json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{m.Role, m.Content})
}

// Canonical returns the message as JSON with object keys sorted at every
// level. Two messages that differ only in key order canonicalize to the
// same bytes.
func (m Message) Canonical() ([]byte, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("canonicalize message: %w", err)
	}
	// encoding/json sorts map keys on output.
	return json.Marshal(v)
}

// Equal reports structural equality of the full message documents, not
// just role and content.
func (m Message) Equal(other Message) bool {
	a, errA := m.Canonical()
	b, errB := other.Canonical()
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// ChatRequest is the POST /api/chat body.
//
// # Description
//
//	Carries the full transcript to relay upstream. Model is optional and
//	falls back to the server's configured default.
type ChatRequest struct {
	Messages []Message `json:"messages" validate:"required,min=1"`
	Model    string    `json:"model,omitempty"`
}

func (r *ChatRequest) Validate() error {
	return chatValidator.Struct(r)
}
