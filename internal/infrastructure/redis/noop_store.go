package redis

import (
	"context"
	"time"
)

// NoopIdempotencyStore sin Redis: siempre deja pasar y el libro resuelve la llave contra
// las transacciones ya escritas.
type NoopIdempotencyStore struct{}

func NewNoopIdempotencyStore() *NoopIdempotencyStore {
	return &NoopIdempotencyStore{}
}

func (NoopIdempotencyStore) Get(context.Context, string) (string, error) {
	return "", ErrKeyNotFound
}

func (NoopIdempotencyStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (NoopIdempotencyStore) Set(context.Context, string, string, time.Duration) error { return nil }

func (NoopIdempotencyStore) Del(context.Context, string) error { return nil }
