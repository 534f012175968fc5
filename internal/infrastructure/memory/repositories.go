package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// BalanceRepository implementa repository.StockBalanceRepository.
type BalanceRepository struct {
	s   *Store
	uow *unitOfWork
}

var _ repository.StockBalanceRepository = (*BalanceRepository)(nil)

func (r *BalanceRepository) Get(_ context.Context, tenantID, warehouseID, productID string) (*entity.StockBalance, error) {
	k := balanceKey{tenantID, warehouseID, productID}
	if r.uow != nil {
		if b, ok := r.uow.balances[k]; ok {
			return &b, nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if b, ok := r.s.balances[k]; ok {
		return &b, nil
	}
	return entity.NewStockBalance(tenantID, warehouseID, productID), nil
}

// GetForUpdate toma el semáforo de la llave (reentrante dentro de la misma unidad de trabajo).
func (r *BalanceRepository) GetForUpdate(ctx context.Context, tenantID, warehouseID, productID string) (*entity.StockBalance, error) {
	if r.uow == nil {
		return nil, errOutsideTx
	}
	k := balanceKey{tenantID, warehouseID, productID}
	if !r.uow.held[k] {
		if err := r.s.acquire(ctx, k); err != nil {
			return nil, err
		}
		r.uow.held[k] = true
	}
	return r.Get(ctx, tenantID, warehouseID, productID)
}

func (r *BalanceRepository) Upsert(_ context.Context, b *entity.StockBalance) error {
	if r.uow == nil {
		return errOutsideTx
	}
	k := balanceKey{b.TenantID, b.WarehouseID, b.ProductID}
	if !r.uow.held[k] {
		return errOutsideTx
	}
	r.uow.balances[k] = *b
	return nil
}

// TransactionRepository implementa repository.StockTransactionRepository.
type TransactionRepository struct {
	s   *Store
	uow *unitOfWork
}

var _ repository.StockTransactionRepository = (*TransactionRepository)(nil)

func (r *TransactionRepository) Create(_ context.Context, tx *entity.StockTransaction) error {
	if r.uow == nil {
		return errOutsideTx
	}
	r.uow.transactions = append(r.uow.transactions, cloneTx(*tx))
	return nil
}

func (r *TransactionRepository) GetByID(_ context.Context, tenantID, id string) (*entity.StockTransaction, error) {
	found := r.filter(func(tx *entity.StockTransaction) bool { return tx.TenantID == tenantID && tx.ID == id })
	if len(found) == 0 {
		return nil, domain.ErrNotFound
	}
	return found[0], nil
}

func (r *TransactionRepository) ListByCorrelation(_ context.Context, tenantID, correlationID string) ([]*entity.StockTransaction, error) {
	return r.filter(func(tx *entity.StockTransaction) bool {
		return tx.TenantID == tenantID && tx.CorrelationID == correlationID
	}), nil
}

func (r *TransactionRepository) ListByIdempotencyKey(_ context.Context, tenantID, key string) ([]*entity.StockTransaction, error) {
	return r.filter(func(tx *entity.StockTransaction) bool {
		return tx.TenantID == tenantID && key != "" && tx.IdempotencyKey == key
	}), nil
}

func (r *TransactionRepository) List(_ context.Context, f repository.TransactionFilter) ([]*entity.StockTransaction, error) {
	out := r.filter(func(tx *entity.StockTransaction) bool {
		if tx.TenantID != f.TenantID || tx.ProductID != f.ProductID {
			return false
		}
		if f.WarehouseID != "" && tx.WarehouseID != f.WarehouseID {
			return false
		}
		return f.Since == nil || !tx.CreatedAt.Before(*f.Since)
	})
	// Empates de created_at (las dos patas de un traslado) quedan en orden de inserción.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// filter recorre lo confirmado y, dentro de una unidad de trabajo, lo que está en staging.
func (r *TransactionRepository) filter(match func(*entity.StockTransaction) bool) []*entity.StockTransaction {
	r.s.mu.RLock()
	all := make([]entity.StockTransaction, 0, len(r.s.transactions))
	all = append(all, r.s.transactions...)
	r.s.mu.RUnlock()
	if r.uow != nil {
		all = append(all, r.uow.transactions...)
	}

	var out []*entity.StockTransaction
	for i := range all {
		tx := cloneTx(all[i])
		if match(&tx) {
			out = append(out, &tx)
		}
	}
	return out
}

func cloneTx(tx entity.StockTransaction) entity.StockTransaction {
	if tx.LotRefs != nil {
		tx.LotRefs = append([]entity.LotRef(nil), tx.LotRefs...)
	}
	return tx
}

// LotRepository implementa repository.LotRepository.
type LotRepository struct {
	s   *Store
	uow *unitOfWork
}

var _ repository.LotRepository = (*LotRepository)(nil)

func (r *LotRepository) List(_ context.Context, tenantID, warehouseID, productID string) ([]*entity.Lot, error) {
	bk := balanceKey{tenantID, warehouseID, productID}
	merged := make(map[lotKey]entity.Lot)
	r.s.mu.RLock()
	for k, l := range r.s.lots {
		if k.balanceKey == bk {
			merged[k] = l
		}
	}
	r.s.mu.RUnlock()
	if r.uow != nil {
		for k, l := range r.uow.lots {
			if k.balanceKey == bk {
				merged[k] = l
			}
		}
	}

	out := make([]*entity.Lot, 0, len(merged))
	for _, l := range merged {
		l := l
		out = append(out, &l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LotNumber < out[j].LotNumber })
	return out, nil
}

// Get devuelve nil, nil si el lote no existe.
func (r *LotRepository) Get(_ context.Context, tenantID, warehouseID, productID, lotNumber string) (*entity.Lot, error) {
	k := lotKey{balanceKey{tenantID, warehouseID, productID}, lotNumber}
	if r.uow != nil {
		if l, ok := r.uow.lots[k]; ok {
			return &l, nil
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if l, ok := r.s.lots[k]; ok {
		return &l, nil
	}
	return nil, nil
}

func (r *LotRepository) Upsert(_ context.Context, lot *entity.Lot) error {
	if r.uow == nil {
		return errOutsideTx
	}
	k := lotKey{balanceKey{lot.TenantID, lot.WarehouseID, lot.ProductID}, lot.LotNumber}
	r.uow.lots[k] = *lot
	return nil
}

// OutboxRepository implementa repository.OutboxRepository. Create escribe en la unidad de
// trabajo; el resto opera sobre lo confirmado (lo usa el relay).
type OutboxRepository struct {
	s   *Store
	uow *unitOfWork
}

var _ repository.OutboxRepository = (*OutboxRepository)(nil)

func (r *OutboxRepository) Create(_ context.Context, e *entity.OutboxEvent) error {
	if r.uow == nil {
		r.s.mu.Lock()
		r.s.outbox = append(r.s.outbox, *e)
		r.s.mu.Unlock()
		return nil
	}
	r.uow.outbox = append(r.uow.outbox, *e)
	return nil
}

func (r *OutboxRepository) FindUnpublished(_ context.Context, limit, maxRetries int) ([]*entity.OutboxEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.OutboxEvent
	for i := range r.s.outbox {
		e := r.s.outbox[i]
		if e.PublishedAt != nil || (maxRetries > 0 && e.RetryCount >= maxRetries) {
			continue
		}
		out = append(out, &e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkPublished(_ context.Context, id string) error {
	return r.update(id, func(e *entity.OutboxEvent) {
		now := time.Now().UTC()
		e.PublishedAt = &now
	})
}

func (r *OutboxRepository) IncrementRetry(_ context.Context, id string, lastError string) error {
	return r.update(id, func(e *entity.OutboxEvent) {
		e.RetryCount++
		e.LastError = lastError
	})
}

func (r *OutboxRepository) update(id string, fn func(*entity.OutboxEvent)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			fn(&r.s.outbox[i])
			return nil
		}
	}
	return domain.ErrNotFound
}

// ProductRepository implementa repository.ProductRepository.
type ProductRepository struct {
	s *Store
}

var _ repository.ProductRepository = (*ProductRepository)(nil)

func (r *ProductRepository) GetByID(_ context.Context, tenantID, id string) (*entity.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[productKey{tenantID, id}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *ProductRepository) Create(_ context.Context, p *entity.Product) error {
	if p.TenantID == "" || p.ID == "" {
		return domain.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := productKey{p.TenantID, p.ID}
	if _, ok := r.s.products[k]; ok {
		return domain.ErrDuplicate
	}
	for pk, existing := range r.s.products {
		if pk.tenant == p.TenantID && p.SKU != "" && existing.SKU == p.SKU {
			return domain.ErrDuplicate
		}
	}
	r.s.products[k] = *p
	return nil
}
