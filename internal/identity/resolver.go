// Package identity turns opaque client credentials into player identities.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrUnknownCredential = errors.New("unknown credential")

// Resolver maps a credential to an identity.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (string, error)
}

// MemoryResolver is a fixed token table, used in tests and dev mode.
type MemoryResolver struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{tokens: make(map[string]string)}
}

// Set binds credential to identity.
func (m *MemoryResolver) Set(credential, identity string) {
	m.mu.Lock()
	m.tokens[credential] = identity
	m.mu.Unlock()
}

// Revoke forgets credential.
func (m *MemoryResolver) Revoke(credential string) {
	m.mu.Lock()
	delete(m.tokens, credential)
	m.mu.Unlock()
}

func (m *MemoryResolver) Resolve(ctx context.Context, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", ErrUnknownCredential
	}
	m.mu.RLock()
	id, ok := m.tokens[credential]
	m.mu.RUnlock()
	if !ok {
		return "", ErrUnknownCredential
	}
	return id, nil
}
