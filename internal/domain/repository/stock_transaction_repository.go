package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// TransactionFilter criterio de ListTransactions. WarehouseID y Since son opcionales.
type TransactionFilter struct {
	TenantID    string
	ProductID   string
	WarehouseID string
	Since       *time.Time
	Limit       int // 0 = sin límite
}

// StockTransactionRepository puerto del libro de transacciones (solo inserción).
type StockTransactionRepository interface {
	Create(ctx context.Context, tx *entity.StockTransaction) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.StockTransaction, error)
	ListByCorrelation(ctx context.Context, tenantID, correlationID string) ([]*entity.StockTransaction, error)
	ListByIdempotencyKey(ctx context.Context, tenantID, key string) ([]*entity.StockTransaction, error)
	// List ordena por created_at ascendente (y por id para empates).
	List(ctx context.Context, filter TransactionFilter) ([]*entity.StockTransaction, error)
}
