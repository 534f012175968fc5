package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// StockBalanceRepository define el puerto para consultar/actualizar el saldo por (tenant, bodega, producto).
// GetForUpdate y Upsert solo tienen sentido dentro de una transacción (TxRunner).
type StockBalanceRepository interface {
	// Get lectura sin bloqueo; devuelve un saldo en cero si la llave no existe.
	Get(ctx context.Context, tenantID, warehouseID, productID string) (*entity.StockBalance, error)
	// GetForUpdate crea la fila si falta y la bloquea en exclusiva hasta el fin de la transacción.
	// Si no obtiene el bloqueo dentro del límite configurado devuelve domain.ErrLockTimeout.
	GetForUpdate(ctx context.Context, tenantID, warehouseID, productID string) (*entity.StockBalance, error)
	Upsert(ctx context.Context, balance *entity.StockBalance) error
}
