package entity

import (
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
)

// StockBalance saldo materializado por (tenant, bodega, producto).
// Se crea perezosamente en la primera transacción y nunca se borra.
type StockBalance struct {
	TenantID    string
	WarehouseID string
	ProductID   string
	OnHand      quantity.Quantity
	Reserved    quantity.Quantity
	UpdatedAt   time.Time
}

// NewStockBalance saldo en cero para la llave.
func NewStockBalance(tenantID, warehouseID, productID string) *StockBalance {
	return &StockBalance{TenantID: tenantID, WarehouseID: warehouseID, ProductID: productID}
}

// Available on-hand menos reservado.
func (b StockBalance) Available() quantity.Quantity {
	return b.OnHand.Sub(b.Reserved)
}

// Apply devuelve el saldo resultante de aplicar tx; no modifica b.
// Si el resultado rompe on-hand >= 0, reservado >= 0 o reservado <= on-hand devuelve
// BalanceInvariantViolationError: el chequeo de disponibilidad ya debía haberlo impedido.
func (b StockBalance) Apply(tx *StockTransaction) (StockBalance, error) {
	next := b
	next.UpdatedAt = tx.CreatedAt

	switch {
	case tx.Type.IncreasesOnHand():
		next.OnHand = b.OnHand.Add(tx.Quantity)
	case tx.Type.DecreasesOnHand():
		next.OnHand = b.OnHand.Sub(tx.Quantity)
	case tx.Type == TxReservation:
		next.Reserved = b.Reserved.Add(tx.Quantity)
	case tx.Type == TxRelease:
		next.Reserved = b.Reserved.Sub(tx.Quantity)
	default:
		return b, domain.ErrInvalidInput
	}

	if tx.Quantity.IsNegative() || next.OnHand.IsNegative() || next.Reserved.IsNegative() || next.Available().IsNegative() {
		return b, &domain.BalanceInvariantViolationError{
			TransactionType: string(tx.Type),
			OnHand:          b.OnHand.String(),
			Reserved:        b.Reserved.String(),
			Delta:           tx.Quantity.String(),
		}
	}
	return next, nil
}
