package inventory

import (
	"context"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// Garantiza atomicidad del commit del libro: si fn falla o el commit falla no queda ninguna escritura,
// y los bloqueos tomados con GetForUpdate se liberan al salir.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		balanceRepo repository.StockBalanceRepository,
		txRepo repository.StockTransactionRepository,
		lotRepo repository.LotRepository,
		outboxRepo repository.OutboxRepository,
	) error) error
}

// IdempotencyStore guarda llaves de idempotencia con TTL (SetNX marca "en proceso").
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// PostCommitHook se invoca solo después de que el commit retornó con éxito.
// Un hook no puede deshacer el commit; sus errores solo se registran.
type PostCommitHook func(ctx context.Context, txs []*entity.StockTransaction) error

// Recorder recibe las métricas del libro.
type Recorder interface {
	ObserveCommand(command, outcome string, elapsed time.Duration)
	LockTimeout()
	InvariantViolation()
}

type nopRecorder struct{}

func (nopRecorder) ObserveCommand(string, string, time.Duration) {}
func (nopRecorder) LockTimeout()                                 {}
func (nopRecorder) InvariantViolation()                          {}
