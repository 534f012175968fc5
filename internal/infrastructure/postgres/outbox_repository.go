package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.OutboxRepository = (*OutboxRepo)(nil)

// OutboxRepo outbox transaccional sobre PostgreSQL.
type OutboxRepo struct {
	q Querier
}

// NewOutboxRepository construye el adaptador. Pasar pool o tx (Querier).
func NewOutboxRepository(q Querier) *OutboxRepo {
	return &OutboxRepo{q: q}
}

// Create inserta el evento; dentro de TxRunner queda en la misma transacción del commit.
func (r *OutboxRepo) Create(ctx context.Context, e *entity.OutboxEvent) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO outbox_events (id, tenant_id, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.TenantID, e.AggregateID, e.EventType, []byte(e.Payload), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// FindUnpublished pendientes en orden de creación. maxRetries <= 0 no filtra por reintentos.
func (r *OutboxRepo) FindUnpublished(ctx context.Context, limit, maxRetries int) ([]*entity.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, tenant_id, aggregate_id, event_type, payload, created_at, published_at, retry_count, last_error
		FROM outbox_events
		WHERE published_at IS NULL AND ($2 <= 0 OR retry_count < $2)
		ORDER BY created_at, seq
		LIMIT $1`, limit, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("find unpublished events: %w", err)
	}
	defer rows.Close()

	var out []*entity.OutboxEvent
	for rows.Next() {
		var (
			e       entity.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.AggregateID, &e.EventType, &payload,
			&e.CreatedAt, &e.PublishedAt, &e.RetryCount, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = payload
		out = append(out, &e)
	}
	return out, rows.Err()
}

// MarkPublished marca el evento como entregado al broker.
func (r *OutboxRepo) MarkPublished(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementRetry suma un reintento y guarda el último error.
func (r *OutboxRepo) IncrementRetry(ctx context.Context, id, lastError string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE outbox_events SET retry_count = retry_count + 1, last_error = $2 WHERE id = $1`, id, lastError)
	if err != nil {
		return fmt.Errorf("increment event retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
