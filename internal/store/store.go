// Package store adapts a key-value backend to the chat collection.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"localchat/internal/models"
)

// DefaultKey is the single key holding the whole collection.
const DefaultKey = "chats"

// Backend is a persistent string key-value store.
type Backend interface {
	Read(ctx context.Context, key string) (string, bool, error)
	Write(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// ChatStore loads and saves the collection as one JSON blob under one key.
type ChatStore struct {
	backend Backend
	key     string
}

// NewChatStore wraps backend. An empty key falls back to DefaultKey.
func NewChatStore(backend Backend, key string) *ChatStore {
	if key == "" {
		key = DefaultKey
	}
	return &ChatStore{backend: backend, key: key}
}

// Key reports the storage key of the collection.
func (s *ChatStore) Key() string {
	return s.key
}

// LoadAll returns the stored collection, or an empty one when nothing is stored.
// A malformed blob is returned as an error and left untouched.
func (s *ChatStore) LoadAll(ctx context.Context) (models.Collection, error) {
	if s == nil || s.backend == nil {
		return nil, errors.New("chat store not initialized")
	}
	raw, ok, err := s.backend.Read(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.key, err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return make(models.Collection), nil
	}
	var coll models.Collection
	if err := json.Unmarshal([]byte(raw), &coll); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	if coll == nil {
		coll = make(models.Collection)
	}
	return coll, nil
}

// SaveAll overwrites the stored collection.
func (s *ChatStore) SaveAll(ctx context.Context, coll models.Collection) error {
	if s == nil || s.backend == nil {
		return errors.New("chat store not initialized")
	}
	if coll == nil {
		coll = make(models.Collection)
	}
	data, err := json.Marshal(coll)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.key, err)
	}
	if err := s.backend.Write(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("write %s: %w", s.key, err)
	}
	return nil
}

// Clear drops the stored collection.
func (s *ChatStore) Clear(ctx context.Context) error {
	if s == nil || s.backend == nil {
		return errors.New("chat store not initialized")
	}
	if err := s.backend.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("remove %s: %w", s.key, err)
	}
	return nil
}
