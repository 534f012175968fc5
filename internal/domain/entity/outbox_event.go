package entity

import (
	"encoding/json"
	"time"
)

// OutboxEvent evento escrito en la misma transacción del commit y publicado después por el relay.
type OutboxEvent struct {
	ID          string
	TenantID    string
	AggregateID string // bodega:producto; key del mensaje en Kafka
	EventType   string // inventory.stock.<tipo>
	Payload     json.RawMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
	RetryCount  int
	LastError   string
}

// IsPublished indica si el evento ya salió al broker.
func (e *OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}
