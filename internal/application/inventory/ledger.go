package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// pendingMarker valor de la llave de idempotencia mientras el comando está en curso.
const pendingMarker = "processing"

// Config parámetros del libro.
type Config struct {
	DefaultStrategy string        // FEFO, FIFO o LIFO para productos sin estrategia propia
	IdempotencyTTL  time.Duration // vida de la llave ya aplicada en el almacén rápido

	// PendingTTL vida de la marca "processing". Corta: si el proceso muere antes de
	// resolverla, el reintento cae al chequeo durable en vez de quedar bloqueado.
	PendingTTL time.Duration
}

// defaultPendingTTL alcanza para la espera del bloqueo más el commit.
const defaultPendingTTL = 30 * time.Second

// ExecuteResult transacciones escritas (o reproducidas) por un comando.
type ExecuteResult struct {
	// Transaction la principal; en un traslado es la salida (transfer_out).
	Transaction  *entity.StockTransaction
	Transactions []*entity.StockTransaction
	// Balances saldo resultante por bodega tocada; vacío si Replayed.
	Balances []BalanceView
	// Replayed true si la llave de idempotencia ya estaba aplicada y no se escribió nada.
	Replayed bool
}

// Ledger servicio de aplicación del libro de stock: serializa por llave de saldo, valida
// disponibilidad, resuelve lotes y confirma todo en una sola transacción.
type Ledger struct {
	txRunner     TxRunner
	products     repository.ProductRepository
	balances     repository.StockBalanceRepository
	transactions repository.StockTransactionRepository
	lots         repository.LotRepository
	idempotency  IdempotencyStore
	metrics      Recorder
	hooks        []PostCommitHook
	log          *logger.Logger
	cfg          Config
	now          func() time.Time
}

// NewLedger construye el servicio. balances, transactions y lots son los repositorios de
// lectura fuera de transacción (consultas y reproducción de idempotencia).
func NewLedger(
	txRunner TxRunner,
	products repository.ProductRepository,
	balances repository.StockBalanceRepository,
	transactions repository.StockTransactionRepository,
	lots repository.LotRepository,
	idempotency IdempotencyStore,
	log *logger.Logger,
	cfg Config,
) *Ledger {
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = entity.StrategyFEFO
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = defaultPendingTTL
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Ledger{
		txRunner:     txRunner,
		products:     products,
		balances:     balances,
		transactions: transactions,
		lots:         lots,
		idempotency:  idempotency,
		metrics:      nopRecorder{},
		log:          log.Component("ledger"),
		cfg:          cfg,
		now:          time.Now,
	}
}

// WithRecorder instala el receptor de métricas.
func (l *Ledger) WithRecorder(r Recorder) *Ledger {
	if r != nil {
		l.metrics = r
	}
	return l
}

// OnCommit registra un hook que corre después de cada commit exitoso, en orden de registro.
func (l *Ledger) OnCommit(hook PostCommitHook) {
	l.hooks = append(l.hooks, hook)
}

// Execute aplica un comando de stock. Todo o nada: ante cualquier error no queda escritura.
func (l *Ledger) Execute(ctx context.Context, cmd Command) (*ExecuteResult, error) {
	start := time.Now()
	res, err := l.execute(ctx, cmd)

	kind := "unknown"
	if cmd != nil {
		kind = string(cmd.Kind())
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = ErrorCode(err)
	case res.Replayed:
		outcome = "replayed"
	}
	l.metrics.ObserveCommand(kind, outcome, time.Since(start))
	return res, err
}

func (l *Ledger) execute(ctx context.Context, cmd Command) (*ExecuteResult, error) {
	ex, err := l.prepare(ctx, cmd)
	if err != nil {
		return nil, classify(err)
	}

	claimed, replay, err := l.claim(ctx, ex.meta)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return replayResult(replay), nil
	}

	// El commit no se cancela a mitad de camino: la espera del bloqueo ya está acotada.
	runCtx := context.WithoutCancel(ctx)
	err = l.txRunner.Run(runCtx, func(
		balanceRepo repository.StockBalanceRepository,
		txRepo repository.StockTransactionRepository,
		lotRepo repository.LotRepository,
		outboxRepo repository.OutboxRepository,
	) error {
		scope := &txScope{balances: balanceRepo, transactions: txRepo, lots: lotRepo, outbox: outboxRepo}
		for _, st := range lockedStages {
			if err := st.run(l, runCtx, ex, scope); err != nil {
				l.log.Debug().Err(err).Str("stage", st.name).Str("correlation_id", ex.correlationID).Msg("comando rechazado")
				return err
			}
		}
		return nil
	})

	if errors.Is(err, errReplayed) {
		if claimed {
			l.remember(runCtx, ex.meta, ex.replay[0].CorrelationID)
		}
		return replayResult(ex.replay), nil
	}
	if err != nil {
		if claimed {
			l.forget(runCtx, ex.meta)
		}
		err = classify(err)
		if errors.Is(err, domain.ErrStorageFailure) {
			l.log.Error().Err(err).Str("correlation_id", ex.correlationID).Str("command", string(cmd.Kind())).Msg("fallo de almacenamiento, rollback")
		}
		return nil, err
	}

	if claimed {
		l.remember(runCtx, ex.meta, ex.correlationID)
	}

	res := &ExecuteResult{}
	for _, lg := range ex.legs {
		res.Transactions = append(res.Transactions, lg.tx)
		res.Balances = append(res.Balances, newBalanceView(lg.next))
	}
	res.Transaction = res.Transactions[0]

	l.log.Info().
		Str("tenant_id", ex.meta.TenantID).
		Str("product_id", ex.meta.ProductID).
		Str("command", string(cmd.Kind())).
		Str("quantity", ex.meta.Quantity.String()).
		Str("correlation_id", ex.correlationID).
		Msg("comando de stock confirmado")

	l.runHooks(runCtx, res.Transactions)
	return res, nil
}

// claim camino rápido de idempotencia. Si el almacén no responde se sigue adelante: el chequeo
// bajo bloqueo (dedupe) es el respaldo durable.
func (l *Ledger) claim(ctx context.Context, meta Meta) (claimed bool, replay []*entity.StockTransaction, err error) {
	if meta.IdempotencyKey == "" || l.idempotency == nil {
		return false, nil, nil
	}
	key := idempotencyKey(meta)
	ok, err := l.idempotency.SetNX(ctx, key, pendingMarker, l.cfg.PendingTTL)
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("almacén de idempotencia no disponible")
		return false, nil, nil
	}
	if ok {
		return true, nil, nil
	}

	val, err := l.idempotency.Get(ctx, key)
	if err != nil {
		return false, nil, nil
	}
	if val == pendingMarker {
		return false, nil, domain.ErrIdempotencyInProgress
	}
	txs, err := l.transactions.ListByCorrelation(ctx, meta.TenantID, val)
	if err != nil || len(txs) == 0 {
		return false, nil, nil
	}
	return false, txs, nil
}

func (l *Ledger) remember(ctx context.Context, meta Meta, correlationID string) {
	if err := l.idempotency.Set(ctx, idempotencyKey(meta), correlationID, l.cfg.IdempotencyTTL); err != nil {
		l.log.Warn().Err(err).Msg("no se pudo guardar la llave de idempotencia")
	}
}

func (l *Ledger) forget(ctx context.Context, meta Meta) {
	if err := l.idempotency.Del(ctx, idempotencyKey(meta)); err != nil {
		l.log.Warn().Err(err).Msg("no se pudo liberar la llave de idempotencia")
	}
}

func (l *Ledger) runHooks(ctx context.Context, txs []*entity.StockTransaction) {
	for i, hook := range l.hooks {
		if err := hook(ctx, txs); err != nil {
			l.log.Error().Err(err).Int("hook", i).Str("correlation_id", txs[0].CorrelationID).Msg("hook post-commit falló")
		}
	}
}

func idempotencyKey(meta Meta) string {
	return "idem:" + meta.TenantID + ":" + meta.IdempotencyKey
}

func replayResult(txs []*entity.StockTransaction) *ExecuteResult {
	res := &ExecuteResult{Transactions: txs, Replayed: true}
	res.Transaction = txs[0]
	for _, tx := range txs {
		if tx.Type == entity.TxTransferOut {
			res.Transaction = tx
		}
	}
	return res
}

// known errores de la taxonomía; cualquier otro se reporta como fallo de almacenamiento.
var known = []error{
	domain.ErrInvalidInput,
	domain.ErrInvalidQuantity,
	domain.ErrNotFound,
	domain.ErrDuplicate,
	domain.ErrInsufficientStock,
	domain.ErrInsufficientLotStock,
	domain.ErrLotBalanceMismatch,
	domain.ErrLockTimeout,
	domain.ErrBalanceInvariantViolation,
	domain.ErrStorageFailure,
	domain.ErrIdempotencyInProgress,
}

func classify(err error) error {
	for _, k := range known {
		if errors.Is(err, k) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrStorageFailure, err)
}

// ErrorCode código estable para métricas y respuestas HTTP.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrInsufficientLotStock):
		return "insufficient_lot_stock"
	case errors.Is(err, domain.ErrLotBalanceMismatch):
		return "lot_balance_mismatch"
	case errors.Is(err, domain.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, domain.ErrBalanceInvariantViolation):
		return "balance_invariant_violation"
	case errors.Is(err, domain.ErrIdempotencyInProgress):
		return "idempotency_in_progress"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "storage_failure"
	}
}
