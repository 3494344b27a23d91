package session

import (
	"context"
	"sync"
)

// Memory is an in-memory token resolver for tests and development.
type Memory struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewMemory creates an empty in-memory resolver.
func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]string)}
}

// Put registers a token for a user id.
func (m *Memory) Put(token, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = userID
}

// Delete removes a token.
func (m *Memory) Delete(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
}

// Resolve looks up the user id for a token.
func (m *Memory) Resolve(_ context.Context, token string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	userID, ok := m.tokens[token]
	if !ok {
		return "", ErrNoSession
	}
	return userID, nil
}
