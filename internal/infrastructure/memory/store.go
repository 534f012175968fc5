// Package memory implementación en memoria del almacenamiento del libro. Respeta los mismos
// contratos que el adaptador de Postgres (bloqueo exclusivo por saldo con espera acotada y
// commit atómico) y se usa en tests y con STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var errOutsideTx = errors.New("operación solo válida dentro de una transacción")

type balanceKey struct {
	tenant, warehouse, product string
}

type lotKey struct {
	balanceKey
	lot string
}

type productKey struct {
	tenant, id string
}

// Store estado confirmado más los semáforos de bloqueo por llave de saldo.
type Store struct {
	mu           sync.RWMutex
	balances     map[balanceKey]entity.StockBalance
	transactions []entity.StockTransaction
	lots         map[lotKey]entity.Lot
	outbox       []entity.OutboxEvent
	products     map[productKey]entity.Product
	failNext     error

	locksMu     sync.Mutex
	locks       map[balanceKey]chan struct{}
	lockTimeout time.Duration
}

// NewStore crea un almacén vacío. lockTimeout acota la espera de GetForUpdate.
func NewStore(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &Store{
		balances:    make(map[balanceKey]entity.StockBalance),
		lots:        make(map[lotKey]entity.Lot),
		products:    make(map[productKey]entity.Product),
		locks:       make(map[balanceKey]chan struct{}),
		lockTimeout: lockTimeout,
	}
}

// FailNextCommit hace que el próximo commit falle con err sin aplicar nada.
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

// Repositorios de lectura/escritura fuera de transacción.
func (s *Store) Balances() *BalanceRepository         { return &BalanceRepository{s: s} }
func (s *Store) Transactions() *TransactionRepository { return &TransactionRepository{s: s} }
func (s *Store) Lots() *LotRepository                 { return &LotRepository{s: s} }
func (s *Store) Outbox() *OutboxRepository            { return &OutboxRepository{s: s} }
func (s *Store) Products() *ProductRepository         { return &ProductRepository{s: s} }

func (s *Store) semaphore(k balanceKey) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[k]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[k] = ch
	}
	return ch
}

func (s *Store) acquire(ctx context.Context, k balanceKey) error {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case s.semaphore(k) <- struct{}{}:
		return nil
	case <-timer.C:
		return domain.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release(k balanceKey) {
	<-s.semaphore(k)
}

// Run ejecuta fn en una unidad de trabajo. Las escrituras quedan en staging hasta que fn retorna
// sin error; entonces se aplican todas juntas. Los bloqueos se liberan siempre al salir.
func (s *Store) Run(ctx context.Context, fn func(
	balanceRepo repository.StockBalanceRepository,
	txRepo repository.StockTransactionRepository,
	lotRepo repository.LotRepository,
	outboxRepo repository.OutboxRepository,
) error) error {
	uow := newUnitOfWork()
	defer func() {
		for k := range uow.held {
			s.release(k)
		}
	}()

	err := fn(
		&BalanceRepository{s: s, uow: uow},
		&TransactionRepository{s: s, uow: uow},
		&LotRepository{s: s, uow: uow},
		&OutboxRepository{s: s, uow: uow},
	)
	if err != nil {
		return err
	}
	return s.apply(uow)
}

func (s *Store) apply(uow *unitOfWork) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return fmt.Errorf("commit transaction: %w", err)
	}
	for k, b := range uow.balances {
		s.balances[k] = b
	}
	s.transactions = append(s.transactions, uow.transactions...)
	for k, l := range uow.lots {
		s.lots[k] = l
	}
	s.outbox = append(s.outbox, uow.outbox...)
	return nil
}

// unitOfWork escrituras pendientes y bloqueos tomados por una transacción.
type unitOfWork struct {
	held         map[balanceKey]bool
	balances     map[balanceKey]entity.StockBalance
	transactions []entity.StockTransaction
	lots         map[lotKey]entity.Lot
	outbox       []entity.OutboxEvent
}

func newUnitOfWork() *unitOfWork {
	return &unitOfWork{
		held:     make(map[balanceKey]bool),
		balances: make(map[balanceKey]entity.StockBalance),
		lots:     make(map[lotKey]entity.Lot),
	}
}
