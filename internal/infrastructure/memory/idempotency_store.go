package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

type keyEntry struct {
	value     string
	expiresAt time.Time
}

// IdempotencyStore llaves con TTL en un mapa; mismo contrato que el almacén de Redis.
type IdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]keyEntry
	now  func() time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{keys: make(map[string]keyEntry), now: time.Now}
}

func (s *IdempotencyStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return "", domain.ErrNotFound
	}
	return e.value, nil
}

func (s *IdempotencyStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.keys[key] = keyEntry{value: value, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *IdempotencyStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = keyEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *IdempotencyStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

// live devuelve la entrada si existe y no venció; las vencidas se limpian al leerlas.
func (s *IdempotencyStore) live(key string) (keyEntry, bool) {
	e, ok := s.keys[key]
	if !ok {
		return keyEntry{}, false
	}
	if s.now().After(e.expiresAt) {
		delete(s.keys, key)
		return keyEntry{}, false
	}
	return e, true
}
