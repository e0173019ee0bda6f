// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emancancode/emanai/services/relay/datatypes"
)

// ErrNotFound is returned when the requested conversation id has no
// stored document.
var ErrNotFound = errors.New("conversation not found")

// DocumentStore persists one JSON document per conversation.
//
// # Description
//
// Save is a full-document overwrite; there are no partial updates. All
// reads return decoded copies, so callers may mutate results freely.
type DocumentStore interface {
	// List returns summaries ordered by Updated, newest first.
	List() ([]datatypes.ConversationSummary, error)
	// All returns full documents in the same order as List. Used by the
	// matcher, which needs message bodies.
	All() ([]datatypes.Conversation, error)
	// Load returns the document for id, or ErrNotFound.
	Load(id string) (*datatypes.Conversation, error)
	// Save overwrites the document keyed by convo.ID.
	Save(convo *datatypes.Conversation) error
	// Delete removes the document for id, or returns ErrNotFound.
	Delete(id string) error
	// Close releases backend resources.
	Close() error
}

// FileStore keeps each conversation as {dir}/{id}.json.
type FileStore struct {
	dir string
}

var _ DocumentStore = (*FileStore)(nil)

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create conversation dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) List() ([]datatypes.ConversationSummary, error) {
	convos, err := s.All()
	if err != nil {
		return nil, err
	}
	summaries := make([]datatypes.ConversationSummary, 0, len(convos))
	for i := range convos {
		summaries = append(summaries, convos[i].Summarize())
	}
	return summaries, nil
}

func (s *FileStore) All() ([]datatypes.Conversation, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation dir: %w", err)
	}
	var convos []datatypes.Conversation
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			slog.Warn("Skipping unreadable conversation file",
				"file", entry.Name(), "error", err)
			continue
		}
		var convo datatypes.Conversation
		if err := json.Unmarshal(data, &convo); err != nil {
			slog.Warn("Skipping corrupt conversation file",
				"file", entry.Name(), "error", err)
			continue
		}
		convos = append(convos, convo)
	}
	sortByUpdated(convos)
	return convos, nil
}

func (s *FileStore) Load(id string) (*datatypes.Conversation, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}
	var convo datatypes.Conversation
	if err := json.Unmarshal(data, &convo); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	return &convo, nil
}

func (s *FileStore) Save(convo *datatypes.Conversation) error {
	data, err := json.MarshalIndent(convo, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", convo.ID, err)
	}
	if err := os.WriteFile(s.path(convo.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write conversation %s: %w", convo.ID, err)
	}
	return nil
}

func (s *FileStore) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(id string) string {
	// Ids are server-generated UUIDs, but a client-supplied id must not
	// escape the store directory.
	return filepath.Join(s.dir, filepath.Base(id)+".json")
}

func sortByUpdated(convos []datatypes.Conversation) {
	sort.SliceStable(convos, func(i, j int) bool {
		return convos[i].Updated.After(convos[j].Updated)
	})
}
