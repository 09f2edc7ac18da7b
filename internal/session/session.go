// Package session tracks the bot's connection status and whether the
// "connected" notification has already fired for the current activation.
package session

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

const storeTimeout = 3 * time.Second

// Session holds the activation-notified flag. The flag survives restarts
// through its Store. Every observation re-reads the store, so replicas
// sharing a store see each other's writes; the in-memory copy is only used
// when the store cannot be read.
type Session struct {
	mu       sync.Mutex
	store    Store
	key      string
	notified bool
}

// New loads the flag stored under key. A missing or unreadable value
// starts the session as not notified.
func New(ctx context.Context, store Store, key string) *Session {
	s := &Session{store: store, key: key}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	val, ok, err := store.Get(ctx, key)
	if err != nil {
		slog.Warn("reading activation flag failed, assuming not notified", "key", key, "err", err)
		return s
	}
	if ok {
		s.notified = val == "true"
	}
	return s
}

// ActivationNotified reports whether the connected notification already
// fired for the current activation.
func (s *Session) ActivationNotified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notified
}

// Observe records a freshly polled status and reports whether the caller
// should fire the one-shot connected notification. An active status with
// the flag clear sets the flag and returns true; any inactive status clears
// the flag. Check and update happen under one lock.
func (s *Session) Observe(ctx context.Context, st Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refresh(ctx)
	if st.IsActive() {
		if s.notified {
			return false
		}
		s.notified = true
		s.persist(ctx)
		return true
	}

	// Inactive always writes "false", mirroring the flag being re-armed on
	// every non-active observation.
	s.notified = false
	s.persist(ctx)
	return false
}

func (s *Session) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	val, ok, err := s.store.Get(ctx, s.key)
	if err != nil {
		slog.Warn("reading activation flag failed, using cached value", "key", s.key, "cached", s.notified, "err", err)
		return
	}
	s.notified = ok && val == "true"
}

func (s *Session) persist(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := s.store.Set(ctx, s.key, strconv.FormatBool(s.notified)); err != nil {
		slog.Warn("persisting activation flag failed", "key", s.key, "value", s.notified, "err", err)
	}
}
