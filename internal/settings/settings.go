// Package settings persists the dev menu's boolean flags.
package settings

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// KeyOnboardingFinished gates the first-run explanation shown by the overlay UI.
const KeyOnboardingFinished = "onboardingFinished"

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("settings store closed")

// Store persists boolean flags. Missing keys read as false.
type Store interface {
	Bool(ctx context.Context, key string) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
	Close() error
}

// OnboardingFinished reads the onboarding flag.
func OnboardingFinished(ctx context.Context, s Store) (bool, error) {
	return s.Bool(ctx, KeyOnboardingFinished)
}

// SetOnboardingFinished writes the onboarding flag.
func SetOnboardingFinished(ctx context.Context, s Store, finished bool) error {
	return s.SetBool(ctx, KeyOnboardingFinished, finished)
}

// Open opens the store for path, choosing the backend by extension:
// .db, .sqlite and .sqlite3 use SQLite, anything else a JSON file.
// An empty path opens an in-memory store.
func Open(path string) (Store, error) {
	if path == "" {
		return NewMemoryStore(), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := OpenFile(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// MemoryStore keeps flags in memory only.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]bool
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]bool)}
}

// Bool implements Store.
func (m *MemoryStore) Bool(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	return m.values[key], nil
}

// SetBool implements Store.
func (m *MemoryStore) SetBool(_ context.Context, key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if key == "" {
		return fmt.Errorf("settings key is required")
	}
	m.values[key] = value
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
