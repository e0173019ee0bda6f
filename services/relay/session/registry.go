// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"errors"
	"sync"
)

// ErrServerShutdown is the cause handed to in-flight sessions when the
// process is stopping.
var ErrServerShutdown = errors.New("server shutting down")

// Registry tracks in-flight sessions so shutdown can notify them instead
// of abandoning live streams with dangling timers.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Active returns the number of in-flight sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown fails every in-flight session with a best-effort shutdown
// error event. Safe to call more than once.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.Unlock()

	// Fail deregisters each session, so the lock must not be held here.
	for _, s := range snapshot {
		s.Fail(ErrServerShutdown)
	}
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}
