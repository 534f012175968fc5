package inventory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
)

// EventTypePrefix prefijo de los tipos de evento publicados (inventory.stock.<tipo>).
const EventTypePrefix = "inventory.stock."

// StockChangedEvent payload del evento de outbox, uno por transacción confirmada.
type StockChangedEvent struct {
	TransactionID string            `json:"transaction_id"`
	CorrelationID string            `json:"correlation_id"`
	TenantID      string            `json:"tenant_id"`
	WarehouseID   string            `json:"warehouse_id"`
	ProductID     string            `json:"product_id"`
	Type          string            `json:"type"`
	Quantity      quantity.Quantity `json:"quantity"`
	LotRefs       []entity.LotRef   `json:"lot_refs,omitempty"`
	Reference     string            `json:"reference,omitempty"`
	OnHand        quantity.Quantity `json:"on_hand"`
	Reserved      quantity.Quantity `json:"reserved"`
	Available     quantity.Quantity `json:"available"`
	LowStock      bool              `json:"low_stock"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// newOutboxEvent arma el evento con el saldo ya aplicado. low_stock se marca en salidas cuando
// el disponible queda en o por debajo del punto de reorden del producto (si tiene uno).
func newOutboxEvent(tx *entity.StockTransaction, after entity.StockBalance, product *entity.Product) (*entity.OutboxEvent, error) {
	available := after.Available()
	low := false
	if product != nil && product.ReorderPoint.IsPositive() && (tx.Type.DecreasesOnHand() || tx.Type == entity.TxReservation) {
		low = !available.GreaterThan(product.ReorderPoint)
	}

	payload, err := json.Marshal(StockChangedEvent{
		TransactionID: tx.ID,
		CorrelationID: tx.CorrelationID,
		TenantID:      tx.TenantID,
		WarehouseID:   tx.WarehouseID,
		ProductID:     tx.ProductID,
		Type:          string(tx.Type),
		Quantity:      tx.Quantity,
		LotRefs:       tx.LotRefs,
		Reference:     tx.Reference,
		OnHand:        after.OnHand,
		Reserved:      after.Reserved,
		Available:     available,
		LowStock:      low,
		OccurredAt:    tx.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return &entity.OutboxEvent{
		ID:          uuid.New().String(),
		TenantID:    tx.TenantID,
		AggregateID: tx.WarehouseID + ":" + tx.ProductID,
		EventType:   EventTypePrefix + string(tx.Type),
		Payload:     payload,
		CreatedAt:   tx.CreatedAt,
	}, nil
}
