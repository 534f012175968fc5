package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	domaininv "github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// BalanceView saldo de una llave tal como se expone hacia afuera.
type BalanceView struct {
	TenantID    string
	WarehouseID string
	ProductID   string
	OnHand      quantity.Quantity
	Reserved    quantity.Quantity
	Available   quantity.Quantity
	UpdatedAt   time.Time
}

func newBalanceView(b entity.StockBalance) BalanceView {
	return BalanceView{
		TenantID:    b.TenantID,
		WarehouseID: b.WarehouseID,
		ProductID:   b.ProductID,
		OnHand:      b.OnHand,
		Reserved:    b.Reserved,
		Available:   b.Available(),
		UpdatedAt:   b.UpdatedAt,
	}
}

// TransactionQuery filtro de ListTransactions. WarehouseID y Since son opcionales.
type TransactionQuery struct {
	TenantID    string
	ProductID   string
	WarehouseID string
	Since       *time.Time
	Limit       int
}

// LotView desglose de lotes de una llave, en el orden en que se descontarían.
type LotView struct {
	WarehouseID string
	ProductID   string
	Strategy    string
	Lots        []*entity.Lot
	Total       quantity.Quantity
	OnHand      quantity.Quantity
	// Consistent false si la suma de lotes no coincide con el on-hand del saldo.
	Consistent bool
}

// GetBalance lectura sin bloqueo; una llave sin movimientos devuelve ceros.
func (l *Ledger) GetBalance(ctx context.Context, tenantID, warehouseID, productID string) (*BalanceView, error) {
	if tenantID == "" || warehouseID == "" || productID == "" {
		return nil, domain.ErrInvalidInput
	}
	b, err := l.balances.Get(ctx, tenantID, warehouseID, productID)
	if err != nil {
		return nil, classify(err)
	}
	view := newBalanceView(*b)
	return &view, nil
}

// ListTransactions historial de auditoría en orden de creación ascendente.
func (l *Ledger) ListTransactions(ctx context.Context, q TransactionQuery) ([]*entity.StockTransaction, error) {
	if q.TenantID == "" || q.ProductID == "" {
		return nil, fmt.Errorf("%w: tenant y producto son obligatorios", domain.ErrInvalidInput)
	}
	if q.Limit < 0 {
		return nil, fmt.Errorf("%w: limit negativo", domain.ErrInvalidInput)
	}
	txs, err := l.transactions.List(ctx, repository.TransactionFilter{
		TenantID:    q.TenantID,
		ProductID:   q.ProductID,
		WarehouseID: q.WarehouseID,
		Since:       q.Since,
		Limit:       q.Limit,
	})
	if err != nil {
		return nil, classify(err)
	}
	return txs, nil
}

// GetLotBreakdown lotes de la llave ordenados según la estrategia del producto.
func (l *Ledger) GetLotBreakdown(ctx context.Context, tenantID, warehouseID, productID string) (*LotView, error) {
	if tenantID == "" || warehouseID == "" || productID == "" {
		return nil, domain.ErrInvalidInput
	}
	product, err := l.products.GetByID(ctx, tenantID, productID)
	if err != nil {
		return nil, classify(err)
	}
	strategy, err := domaininv.NormalizeStrategy(product.DeductionStrategy, l.cfg.DefaultStrategy)
	if err != nil {
		return nil, err
	}
	lots, err := l.lots.List(ctx, tenantID, warehouseID, productID)
	if err != nil {
		return nil, classify(err)
	}
	b, err := l.balances.Get(ctx, tenantID, warehouseID, productID)
	if err != nil {
		return nil, classify(err)
	}

	sorted := domaininv.SortLots(lots, strategy)
	nonEmpty := make([]*entity.Lot, 0, len(sorted))
	for _, lot := range sorted {
		if lot.Quantity.IsPositive() {
			nonEmpty = append(nonEmpty, lot)
		}
	}
	total := domaininv.TotalLots(lots)
	return &LotView{
		WarehouseID: warehouseID,
		ProductID:   productID,
		Strategy:    strategy,
		Lots:        nonEmpty,
		Total:       total,
		OnHand:      b.OnHand,
		Consistent:  !product.LotTracked || total.Equal(b.OnHand),
	}, nil
}
