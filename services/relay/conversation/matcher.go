// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import "github.com/emancancode/emanai/services/relay/datatypes"

// MatchKind classifies how a candidate transcript relates to the store.
type MatchKind int

const (
	// MatchNone means no stored conversation matched.
	MatchNone MatchKind = iota
	// MatchExact means a stored conversation holds the identical transcript.
	MatchExact
	// MatchPrefix means a stored conversation is a strict prefix of the
	// candidate, i.e. the candidate extends it.
	MatchPrefix
)

// MatchResult identifies the matched conversation, if any.
type MatchResult struct {
	Kind MatchKind
	ID   string
}

// Match classifies a candidate transcript against stored conversations.
//
// # Description
//
// Two passes. The exact pass returns the first stored conversation whose
// transcript equals the candidate message for message. The prefix pass
// then looks for stored conversations that the candidate extends: a
// non-empty stored transcript no longer than the candidate whose messages
// all equal the candidate's leading messages. The longest such prefix
// wins; equal lengths keep the earlier conversation in slice order.
//
// Message equality is structural over the full message documents, so
// transcripts re-sent with reordered JSON keys still match.
func Match(candidate []datatypes.Message, stored []datatypes.Conversation) MatchResult {
	for i := range stored {
		if transcriptsEqual(stored[i].Messages, candidate) {
			return MatchResult{Kind: MatchExact, ID: stored[i].ID}
		}
	}

	best := MatchResult{Kind: MatchNone}
	bestLen := 0
	for i := range stored {
		n := len(stored[i].Messages)
		if n == 0 || n > len(candidate) {
			continue
		}
		if !transcriptsEqual(stored[i].Messages, candidate[:n]) {
			continue
		}
		if n > bestLen {
			best = MatchResult{Kind: MatchPrefix, ID: stored[i].ID}
			bestLen = n
		}
	}
	return best
}

func transcriptsEqual(a, b []datatypes.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
