// Package memory provides an in-process repository used for wiring and
// tests. It honours the persistence port's contract, including duplicate
// key reporting for entities with a uniqueness key, and stands in for the
// document store the deployed system delegates to.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/issue-tracker/internal/faults"
)

// Option customises a store during construction.
type Option[T any] func(*Store[T])

// WithUniqueKey registers a uniqueness key extractor (for example the user
// email). An empty extracted key disables the check for that entity.
func WithUniqueKey[T any](key func(T) string) Option[T] {
	return func(s *Store[T]) {
		s.uniqueKey = key
	}
}

// Store is a thread-safe in-memory repository for one aggregate type.
type Store[T any] struct {
	id        func(T) string
	uniqueKey func(T) string

	mu        sync.RWMutex
	items     map[string]T
	uniqueIdx map[string]string
}

// New constructs a Store keyed by the supplied id extractor.
func New[T any](id func(T) string, opts ...Option[T]) (*Store[T], error) {
	if id == nil {
		return nil, errors.New("memory store: id extractor is required")
	}

	s := &Store[T]{
		id:        id,
		items:     make(map[string]T),
		uniqueIdx: make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Save inserts or updates the entity. A uniqueness key held by a different
// entity fails with faults.ErrDuplicateKey.
func (s *Store[T]) Save(_ context.Context, entity T) (T, error) {
	var zero T

	entityID := s.id(entity)
	if entityID == "" {
		return zero, errors.New("memory store: entity id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uniqueKey != nil {
		if key := s.uniqueKey(entity); key != "" {
			if holder, ok := s.uniqueIdx[key]; ok && holder != entityID {
				return zero, fmt.Errorf("memory store: key %q: %w", key, faults.ErrDuplicateKey)
			}
			s.uniqueIdx[key] = entityID
		}
	}

	s.items[entityID] = entity
	return entity, nil
}

// FindByID returns the entity and whether it exists.
func (s *Store[T]) FindByID(_ context.Context, id string) (T, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.items[id]
	return entity, ok, nil
}

// Exists reports whether an entity with the id is stored.
func (s *Store[T]) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.items[id]
	return ok, nil
}
