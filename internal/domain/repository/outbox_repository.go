package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// OutboxRepository puerto del outbox transaccional.
type OutboxRepository interface {
	Create(ctx context.Context, event *entity.OutboxEvent) error
	// FindUnpublished devuelve hasta limit eventos pendientes con reintentos < maxRetries.
	FindUnpublished(ctx context.Context, limit, maxRetries int) ([]*entity.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string) error
	IncrementRetry(ctx context.Context, id, lastError string) error
}
