package entity

import (
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
)

// Lot sub-cantidad fechada de un producto en una bodega (trazabilidad y vencimiento).
// Un lote en cero queda inerte; no se purga.
type Lot struct {
	TenantID    string
	WarehouseID string
	ProductID   string
	LotNumber   string
	ExpiryDate  *time.Time // nil = no vence
	ReceivedAt  time.Time
	Quantity    quantity.Quantity
	UpdatedAt   time.Time
}

// ExpiryDay reduce un vencimiento a su fecha calendario (medianoche UTC), la misma
// precisión con que se persiste. Conserva el día tal como lo escribió quien lo envía.
func ExpiryDay(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
