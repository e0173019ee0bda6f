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

	badger "github.com/dgraph-io/badger/v4"
	"github.com/emancancode/emanai/services/relay/datatypes"
)

// BadgerStore implements DocumentStore on an embedded badger DB. Selected
// with CONVO_BACKEND=badger; useful once a transcript directory grows past
// what per-request directory scans handle comfortably.
type BadgerStore struct {
	db *badger.DB
}

var _ DocumentStore = (*BadgerStore)(nil)

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) List() ([]datatypes.ConversationSummary, error) {
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

func (s *BadgerStore) All() ([]datatypes.Conversation, error) {
	var convos []datatypes.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var convo datatypes.Conversation
				if err := json.Unmarshal(val, &convo); err != nil {
					// Mirror the file backend: skip what cannot decode.
					return nil
				}
				convos = append(convos, convo)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversations: %w", err)
	}
	sortByUpdated(convos)
	return convos, nil
}

func (s *BadgerStore) Load(id string) (*datatypes.Conversation, error) {
	var convo datatypes.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &convo)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	return &convo, nil
}

func (s *BadgerStore) Save(convo *datatypes.Conversation) error {
	data, err := json.Marshal(convo)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", convo.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(convo.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write conversation %s: %w", convo.ID, err)
	}
	return nil
}

func (s *BadgerStore) Delete(id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(id)); err != nil {
			return err
		}
		return txn.Delete([]byte(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
