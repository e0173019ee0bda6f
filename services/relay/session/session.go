// Copyright (C) 2025 EmanAI (eman@emancancode.online)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emancancode/emanai/services/llm"
	"github.com/emancancode/emanai/services/relay/datatypes"
	"github.com/emancancode/emanai/services/relay/observability"
)

// ErrSessionClosed is returned by writes attempted after a terminal
// transition.
var ErrSessionClosed = errors.New("session closed")

// ErrClientGone wraps sink write failures, which mean the downstream
// connection is no longer usable.
var ErrClientGone = errors.New("client connection lost")

// Sink receives the session's outbound events. Implementations are
// called from at most one goroutine at a time.
type Sink interface {
	WriteResponse(text string) error
	WriteError(message string) error
	WriteDone() error
	WriteKeepAlive() error
}

// State is the relay session lifecycle position.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state absorbs all further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateDisconnected || s == StateFailed
}

// Config carries per-session tunables.
type Config struct {
	HeartbeatInterval time.Duration
	Logger            *slog.Logger
}

// DefaultConfig matches the production relay: a keepalive comment every
// 15 seconds.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 15 * time.Second,
		Logger:            slog.Default(),
	}
}

// Session owns one streaming relay request from upstream connect to
// terminal transition.
//
// # Description
//
// All sink writes are gated on a single active flag under one mutex.
// Exactly one terminal transition wins; it performs the terminal event
// write (done or error), stops the heartbeat, and deregisters the
// session. Token and keepalive writes observed after the flag drops are
// refused with ErrSessionClosed, so a late heartbeat tick or upstream
// fragment can never trail the terminal event on the wire.
type Session struct {
	id       string
	sink     Sink
	registry *Registry
	log      *slog.Logger

	heartbeatInterval time.Duration
	heartbeatStop     chan struct{}

	mu          sync.Mutex
	active      bool
	state       State
	started     time.Time
	accumulated strings.Builder
}

// New creates an idle session and registers it. A nil registry is
// allowed for tests.
func New(id string, sink Sink, registry *Registry, cfg Config) *Session {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Session{
		id:                id,
		sink:              sink,
		registry:          registry,
		log:               cfg.Logger.With("session_id", id),
		heartbeatInterval: cfg.HeartbeatInterval,
		heartbeatStop:     make(chan struct{}),
		active:            true,
		state:             StateIdle,
	}
	if registry != nil {
		registry.add(s)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the accumulated filtered response so far.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accumulated.String()
}

// Run relays one chat stream through the sink and blocks until a
// terminal transition.
//
// # Description
//
// Starts the heartbeat, streams from the client, and classifies the
// outcome: a clean stream completes with a done event, a cancelled
// context or failed sink write is a client disconnect (logged, nothing
// emitted), and anything else fails the session with one best-effort
// error event. The accumulated filtered text is returned in every case;
// the error return is nil for completion and disconnect.
func (s *Session) Run(ctx context.Context, client llm.LLMClient,
	messages []datatypes.Message, params llm.GenerationParams) (string, error) {

	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	s.transition(StateConnecting)
	go s.runHeartbeat()

	err := client.ChatStream(ctx, messages, params, s.onEvent)
	switch {
	case err == nil:
		s.Complete()
		return s.Text(), nil
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrClientGone),
		errors.Is(err, ErrSessionClosed):
		s.Disconnect()
		return s.Text(), nil
	default:
		s.Fail(err)
		return s.Text(), err
	}
}

// onEvent is the stream callback. Token fragments are filtered before
// they reach the sink; fragments that filter to nothing are dropped.
func (s *Session) onEvent(event llm.StreamEvent) error {
	switch event.Type {
	case llm.StreamEventToken:
		s.transition(StateStreaming)
		text := llm.FilterReasoning(event.Content)
		if text == "" {
			return nil
		}
		return s.writeResponse(text)
	case llm.StreamEventDone:
		s.log.Debug("Upstream stream finished", "done_reason", event.DoneReason)
	case llm.StreamEventError:
		// The terminal error event is written once by Fail.
		s.log.Debug("Upstream reported stream error", "error", event.Error)
	}
	return nil
}

// Complete emits the terminal done event. Idempotent.
func (s *Session) Complete() {
	if !s.finish(StateCompleted) {
		return
	}
	if err := s.sink.WriteDone(); err != nil {
		s.log.Debug("Done event write failed", "error", err)
	}
	s.log.Info("Relay session completed", "response_chars", len(s.Text()))
}

// Fail emits one best-effort error event. Idempotent.
func (s *Session) Fail(cause error) {
	if !s.finish(StateFailed) {
		return
	}
	if err := s.sink.WriteError(clientErrorMessage(cause)); err != nil {
		s.log.Debug("Error event write failed", "error", err)
	}
	s.log.Error("Relay session failed", "error", cause)
}

// Disconnect stops the session without emitting anything. The client is
// gone; there is nobody to write to. Idempotent.
func (s *Session) Disconnect() {
	if !s.finish(StateDisconnected) {
		return
	}
	s.log.Info("Client disconnected mid-stream",
		"response_chars", len(s.Text()))
	if m := observability.DefaultMetrics; m != nil {
		m.RecordClientDisconnect(observability.EndpointChatStream)
	}
}

// finish performs the terminal check-and-set. Only the first caller gets
// true and with it the right to perform the terminal sink write.
func (s *Session) finish(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	s.active = false
	s.state = next
	close(s.heartbeatStop)
	if s.registry != nil {
		s.registry.remove(s.id)
	}
	return true
}

// transition moves to a non-terminal state; no-op once terminal.
func (s *Session) transition(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active || next <= s.state {
		return
	}
	s.state = next
}

func (s *Session) writeResponse(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrSessionClosed
	}
	if err := s.sink.WriteResponse(text); err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	if s.accumulated.Len() == 0 && !s.started.IsZero() {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTimeToFirstToken(observability.EndpointChatStream,
				time.Since(s.started).Seconds())
		}
	}
	s.accumulated.WriteString(text)
	return nil
}

func (s *Session) writeKeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrSessionClosed
	}
	if err := s.sink.WriteKeepAlive(); err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	return nil
}

func (s *Session) runHeartbeat() {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.heartbeatStop:
			return
		case <-ticker.C:
			if err := s.writeKeepAlive(); err != nil {
				if !errors.Is(err, ErrSessionClosed) {
					s.log.Debug("Keepalive write failed", "error", err)
				}
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(observability.EndpointChatStream)
			}
		}
	}
}

// clientErrorMessage maps an internal failure to the message shown to
// the client. Upstream-reported text is forwarded; transport errors get
// a generic line so connection detail stays out of the UI.
func clientErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrServerShutdown):
		return "Server shutting down"
	case errors.Is(err, context.DeadlineExceeded):
		return "Upstream request timed out"
	default:
		msg := err.Error()
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return msg
	}
}
