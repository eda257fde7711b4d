package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/planmesh/core"
)

// InMemoryStore is a volatile DocumentStore implementation storing documents
// in process local maps. It is safe for concurrent access and best suited for
// tests or ephemeral demo runs. Returned payloads are copies to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]map[string]map[string][]byte // session -> kind -> id -> json
	order map[string]map[string][]string          // session -> kind -> insertion order
}

// NewInMemoryStore constructs an empty in-memory document store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		docs:  make(map[string]map[string]map[string][]byte),
		order: make(map[string]map[string][]string),
	}
}

// Upsert stores the JSON serialization of value under (sessionID, kind, id).
func (s *InMemoryStore) Upsert(_ context.Context, sessionID, kind, id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s/%s/%s: %w", sessionID, kind, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kinds, ok := s.docs[sessionID]
	if !ok {
		kinds = make(map[string]map[string][]byte)
		s.docs[sessionID] = kinds
		s.order[sessionID] = make(map[string][]string)
	}
	byID, ok := kinds[kind]
	if !ok {
		byID = make(map[string][]byte)
		kinds[kind] = byID
	}
	if _, exists := byID[id]; !exists {
		s.order[sessionID][kind] = append(s.order[sessionID][kind], id)
	}
	byID[id] = data
	return nil
}

// Get unmarshals the stored document into out.
func (s *InMemoryStore) Get(_ context.Context, sessionID, kind, id string, out any) error {
	s.mu.RLock()
	data, ok := s.lookupLocked(sessionID, kind, id)
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s/%s/%s: %w", sessionID, kind, id, core.ErrDocumentNotFound)
	}
	return json.Unmarshal(data, out)
}

// QueryBySession lists all documents of a kind within a session in insertion order.
func (s *InMemoryStore) QueryBySession(_ context.Context, sessionID, kind string) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order[sessionID][kind]
	res := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		if data, ok := s.lookupLocked(sessionID, kind, id); ok {
			res = append(res, json.RawMessage(append([]byte(nil), data...)))
		}
	}
	return res, nil
}

// DeleteSession removes every document belonging to the session.
func (s *InMemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, sessionID)
	delete(s.order, sessionID)
	return nil
}

// lookupLocked resolves a document; caller must hold at least the read lock.
func (s *InMemoryStore) lookupLocked(sessionID, kind, id string) ([]byte, bool) {
	kinds, ok := s.docs[sessionID]
	if !ok {
		return nil, false
	}
	byID, ok := kinds[kind]
	if !ok {
		return nil, false
	}
	data, ok := byID[id]
	return data, ok
}
