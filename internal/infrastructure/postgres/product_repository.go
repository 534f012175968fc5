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

var _ repository.ProductRepository = (*ProductRepo)(nil)

// ProductRepo implementación del puerto ProductRepository sobre PostgreSQL (usable con pool o tx).
type ProductRepo struct {
	q Querier
}

// NewProductRepository construye el adaptador de persistencia para productos. Pasar pool o tx (Querier).
func NewProductRepository(q Querier) *ProductRepo {
	return &ProductRepo{q: q}
}

// Create persiste un nuevo producto. SKU es único por tenant.
func (r *ProductRepo) Create(ctx context.Context, product *entity.Product) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO products (tenant_id, id, sku, name, lot_tracked, deduction_strategy, reorder_point, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		product.TenantID, product.ID, product.SKU, product.Name, product.LotTracked,
		product.DeductionStrategy, product.ReorderPoint.Decimal(), product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID obtiene un producto del tenant.
func (r *ProductRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.Product, error) {
	var (
		p       entity.Product
		reorder decimal.Decimal
	)
	err := r.q.QueryRow(ctx, `
		SELECT tenant_id, id, sku, name, lot_tracked, deduction_strategy, reorder_point, created_at, updated_at
		FROM products WHERE tenant_id = $1 AND id = $2`, tenantID, id,
	).Scan(&p.TenantID, &p.ID, &p.SKU, &p.Name, &p.LotTracked, &p.DeductionStrategy, &reorder, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	if p.ReorderPoint, err = toQuantity(reorder); err != nil {
		return nil, err
	}
	return &p, nil
}
