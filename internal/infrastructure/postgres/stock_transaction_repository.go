package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.StockTransactionRepository = (*StockTransactionRepo)(nil)

// StockTransactionRepo libro de transacciones sobre PostgreSQL. Solo inserta; un trigger
// de la tabla rechaza UPDATE y DELETE.
type StockTransactionRepo struct {
	q Querier
}

// NewStockTransactionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockTransactionRepository(q Querier) *StockTransactionRepo {
	return &StockTransactionRepo{q: q}
}

const selectTransaction = `
	SELECT id, correlation_id, tenant_id, warehouse_id, product_id, type, quantity, lot_refs,
	       reference, reason, idempotency_key, created_by, created_at
	FROM stock_transactions`

// Create inserta la transacción.
func (r *StockTransactionRepo) Create(ctx context.Context, tx *entity.StockTransaction) error {
	refs := tx.LotRefs
	if refs == nil {
		refs = []entity.LotRef{}
	}
	lotRefs, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("marshal lot refs: %w", err)
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO stock_transactions (id, correlation_id, tenant_id, warehouse_id, product_id, type, quantity,
			lot_refs, reference, reason, idempotency_key, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		tx.ID, tx.CorrelationID, tx.TenantID, tx.WarehouseID, tx.ProductID, string(tx.Type), tx.Quantity.Decimal(),
		lotRefs, tx.Reference, tx.Reason, tx.IdempotencyKey, tx.CreatedBy, tx.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert stock transaction: %w", err)
	}
	return nil
}

// GetByID obtiene una transacción del tenant.
func (r *StockTransactionRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.StockTransaction, error) {
	tx, err := scanTransaction(r.q.QueryRow(ctx, selectTransaction+` WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get stock transaction: %w", err)
	}
	return tx, nil
}

// ListByCorrelation transacciones de un mismo comando (dos en un traslado).
func (r *StockTransactionRepo) ListByCorrelation(ctx context.Context, tenantID, correlationID string) ([]*entity.StockTransaction, error) {
	return r.list(ctx, selectTransaction+` WHERE tenant_id = $1 AND correlation_id = $2 ORDER BY created_at, seq`, tenantID, correlationID)
}

// ListByIdempotencyKey transacciones escritas con la llave de idempotencia dada.
func (r *StockTransactionRepo) ListByIdempotencyKey(ctx context.Context, tenantID, key string) ([]*entity.StockTransaction, error) {
	if key == "" {
		return nil, nil
	}
	return r.list(ctx, selectTransaction+` WHERE tenant_id = $1 AND idempotency_key = $2 ORDER BY created_at, seq`, tenantID, key)
}

// List historial filtrado en orden de creación.
func (r *StockTransactionRepo) List(ctx context.Context, f repository.TransactionFilter) ([]*entity.StockTransaction, error) {
	var sb strings.Builder
	sb.WriteString(selectTransaction)
	sb.WriteString(` WHERE tenant_id = $1 AND product_id = $2`)
	args := []any{f.TenantID, f.ProductID}
	if f.WarehouseID != "" {
		args = append(args, f.WarehouseID)
		fmt.Fprintf(&sb, ` AND warehouse_id = $%d`, len(args))
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		fmt.Fprintf(&sb, ` AND created_at >= $%d`, len(args))
	}
	sb.WriteString(` ORDER BY created_at, seq`)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}
	return r.list(ctx, sb.String(), args...)
}

func (r *StockTransactionRepo) list(ctx context.Context, query string, args ...any) ([]*entity.StockTransaction, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock transactions: %w", err)
	}
	defer rows.Close()

	var out []*entity.StockTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stock transactions: %w", err)
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (*entity.StockTransaction, error) {
	var (
		tx      entity.StockTransaction
		txType  string
		qty     decimal.Decimal
		lotRefs []byte
	)
	if err := row.Scan(&tx.ID, &tx.CorrelationID, &tx.TenantID, &tx.WarehouseID, &tx.ProductID, &txType, &qty,
		&lotRefs, &tx.Reference, &tx.Reason, &tx.IdempotencyKey, &tx.CreatedBy, &tx.CreatedAt); err != nil {
		return nil, err
	}
	tx.Type = entity.TransactionType(txType)
	var err error
	if tx.Quantity, err = toQuantity(qty); err != nil {
		return nil, err
	}
	if len(lotRefs) > 0 {
		if err := json.Unmarshal(lotRefs, &tx.LotRefs); err != nil {
			return nil, fmt.Errorf("unmarshal lot refs: %w", err)
		}
		if len(tx.LotRefs) == 0 {
			tx.LotRefs = nil
		}
	}
	return &tx, nil
}
