// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// Conversation is one persisted transcript. Stored as a single JSON
// document keyed by ID.
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`
}

// ConversationSummary is the listing projection. Message bodies are
// omitted so listing stays cheap even with long transcripts.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
	Model        string    `json:"model,omitempty"`
	MessageCount int       `json:"messageCount"`
}

// Summarize projects a conversation onto its listing form.
func (c *Conversation) Summarize() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		Title:        c.Title,
		Created:      c.Created,
		Updated:      c.Updated,
		Model:        c.Model,
		MessageCount: len(c.Messages),
	}
}
