package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.StockBalanceRepository = (*StockBalanceRepo)(nil)

// StockBalanceRepo implementación de StockBalanceRepository sobre PostgreSQL (usable con pool o tx).
type StockBalanceRepo struct {
	q Querier
}

// NewStockBalanceRepository construye el adaptador de saldos. Pasar pool o tx (Querier).
func NewStockBalanceRepository(q Querier) *StockBalanceRepo {
	return &StockBalanceRepo{q: q}
}

const selectBalance = `
	SELECT tenant_id, warehouse_id, product_id, on_hand, reserved, updated_at
	FROM stock_balances WHERE tenant_id = $1 AND warehouse_id = $2 AND product_id = $3`

// Get obtiene el saldo actual; si la llave no existe devuelve uno en cero.
func (r *StockBalanceRepo) Get(ctx context.Context, tenantID, warehouseID, productID string) (*entity.StockBalance, error) {
	b, err := scanBalance(r.q.QueryRow(ctx, selectBalance, tenantID, warehouseID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.NewStockBalance(tenantID, warehouseID, productID), nil
		}
		return nil, fmt.Errorf("get stock balance: %w", err)
	}
	return b, nil
}

// GetForUpdate crea la fila si falta y la bloquea (SELECT FOR UPDATE). Con lock_timeout
// vencido o deadlock devuelve domain.ErrLockTimeout.
func (r *StockBalanceRepo) GetForUpdate(ctx context.Context, tenantID, warehouseID, productID string) (*entity.StockBalance, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO stock_balances (tenant_id, warehouse_id, product_id, on_hand, reserved, updated_at)
		VALUES ($1, $2, $3, 0, 0, now())
		ON CONFLICT (tenant_id, warehouse_id, product_id) DO NOTHING`,
		tenantID, warehouseID, productID,
	)
	if err != nil {
		if isLockTimeout(err) {
			return nil, domain.ErrLockTimeout
		}
		return nil, fmt.Errorf("ensure stock balance: %w", err)
	}

	b, err := scanBalance(r.q.QueryRow(ctx, selectBalance+" FOR UPDATE", tenantID, warehouseID, productID))
	if err != nil {
		if isLockTimeout(err) {
			return nil, domain.ErrLockTimeout
		}
		return nil, fmt.Errorf("get stock balance for update: %w", err)
	}
	return b, nil
}

// Upsert escribe on_hand y reserved. Los CHECK de la tabla respaldan los invariantes.
func (r *StockBalanceRepo) Upsert(ctx context.Context, b *entity.StockBalance) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO stock_balances (tenant_id, warehouse_id, product_id, on_hand, reserved, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, warehouse_id, product_id)
		DO UPDATE SET on_hand = EXCLUDED.on_hand, reserved = EXCLUDED.reserved, updated_at = EXCLUDED.updated_at`,
		b.TenantID, b.WarehouseID, b.ProductID, b.OnHand.Decimal(), b.Reserved.Decimal(), b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert stock balance: %w", err)
	}
	return nil
}

func scanBalance(row pgx.Row) (*entity.StockBalance, error) {
	var (
		onHand, reserved decimal.Decimal
		out              entity.StockBalance
	)
	if err := row.Scan(&out.TenantID, &out.WarehouseID, &out.ProductID, &onHand, &reserved, &out.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if out.OnHand, err = toQuantity(onHand); err != nil {
		return nil, err
	}
	if out.Reserved, err = toQuantity(reserved); err != nil {
		return nil, err
	}
	return &out, nil
}
