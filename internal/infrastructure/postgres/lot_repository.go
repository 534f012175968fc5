package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.LotRepository = (*LotRepo)(nil)

// LotRepo índice de lotes sobre PostgreSQL.
type LotRepo struct {
	q Querier
}

// NewLotRepository construye el adaptador. Pasar pool o tx (Querier).
func NewLotRepository(q Querier) *LotRepo {
	return &LotRepo{q: q}
}

const selectLot = `
	SELECT tenant_id, warehouse_id, product_id, lot_number, expiry_date, received_at, quantity, updated_at
	FROM stock_lots WHERE tenant_id = $1 AND warehouse_id = $2 AND product_id = $3`

// List todos los lotes de la llave, incluidos los que quedaron en cero.
func (r *LotRepo) List(ctx context.Context, tenantID, warehouseID, productID string) ([]*entity.Lot, error) {
	rows, err := r.q.Query(ctx, selectLot+` ORDER BY lot_number`, tenantID, warehouseID, productID)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()

	var out []*entity.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Get devuelve nil, nil si el lote no existe.
func (r *LotRepo) Get(ctx context.Context, tenantID, warehouseID, productID, lotNumber string) (*entity.Lot, error) {
	l, err := scanLot(r.q.QueryRow(ctx, selectLot+` AND lot_number = $4`, tenantID, warehouseID, productID, lotNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}
	return l, nil
}

// Upsert guarda la cantidad del lote; vencimiento y recepción se fijan en la primera entrada.
func (r *LotRepo) Upsert(ctx context.Context, l *entity.Lot) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO stock_lots (tenant_id, warehouse_id, product_id, lot_number, expiry_date, received_at, quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, warehouse_id, product_id, lot_number)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
		l.TenantID, l.WarehouseID, l.ProductID, l.LotNumber, l.ExpiryDate, l.ReceivedAt, l.Quantity.Decimal(), l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert lot: %w", err)
	}
	return nil
}

func scanLot(row pgx.Row) (*entity.Lot, error) {
	var (
		l   entity.Lot
		qty decimal.Decimal
	)
	if err := row.Scan(&l.TenantID, &l.WarehouseID, &l.ProductID, &l.LotNumber, &l.ExpiryDate, &l.ReceivedAt, &qty, &l.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	l.Quantity, err = toQuantity(qty)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
