package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// LotRepository puerto del índice de lotes por (tenant, bodega, producto).
// Las escrituras ocurren siempre bajo el bloqueo del saldo de la misma llave.
type LotRepository interface {
	List(ctx context.Context, tenantID, warehouseID, productID string) ([]*entity.Lot, error)
	// Get devuelve nil, nil si el lote no existe.
	Get(ctx context.Context, tenantID, warehouseID, productID, lotNumber string) (*entity.Lot, error)
	Upsert(ctx context.Context, lot *entity.Lot) error
}
