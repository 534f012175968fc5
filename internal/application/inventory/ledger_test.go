package inventory_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const (
	tenant   = "t1"
	wh1      = "w1"
	wh2      = "w2"
	plain    = "p-plain"
	tracked  = "p-lot"
	reorder  = "p-reorder"
	lifoProd = "p-lifo"
)

type fakeRecorder struct {
	mu         sync.Mutex
	outcomes   []string
	timeouts   int
	violations int
}

func (r *fakeRecorder) ObserveCommand(_ string, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) LockTimeout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts++
}

func (r *fakeRecorder) InvariantViolation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations++
}

type fixture struct {
	ledger *inventory.Ledger
	store  *memory.Store
	rec    *fakeRecorder
}

func newFixture(t *testing.T, lockTimeout time.Duration, idem inventory.IdempotencyStore) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore(lockTimeout)
	products := store.Products()
	for _, p := range []*entity.Product{
		{ID: plain, TenantID: tenant, SKU: "PLAIN"},
		{ID: tracked, TenantID: tenant, SKU: "LOT", LotTracked: true},
		{ID: lifoProd, TenantID: tenant, SKU: "LIFO", LotTracked: true, DeductionStrategy: entity.StrategyLIFO},
		{ID: reorder, TenantID: tenant, SKU: "REORDER", ReorderPoint: quantity.FromInt(5)},
	} {
		require.NoError(t, products.Create(ctx, p))
	}

	rec := &fakeRecorder{}
	ledger := inventory.NewLedger(
		store, products, store.Balances(), store.Transactions(), store.Lots(),
		idem, logger.NewNop(), inventory.Config{},
	).WithRecorder(rec)
	return &fixture{ledger: ledger, store: store, rec: rec}
}

func meta(product, qty string) inventory.Meta {
	return inventory.Meta{TenantID: tenant, ProductID: product, Quantity: quantity.MustParse(qty), UserID: "u1"}
}

func (f *fixture) exec(t *testing.T, cmd inventory.Command) *inventory.ExecuteResult {
	t.Helper()
	res, err := f.ledger.Execute(context.Background(), cmd)
	require.NoError(t, err)
	return res
}

func (f *fixture) balance(t *testing.T, warehouse, product string) *inventory.BalanceView {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), tenant, warehouse, product)
	require.NoError(t, err)
	return b
}

func date(s string) *time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &d
}

// ──────────────────────────────────────────────────────────────────────────────
// Escenario base y propiedades de saldo
// ──────────────────────────────────────────────────────────────────────────────

// on-hand 100, reserva 30 → disponible 70; despacho 80 rechazado; despacho 70 deja 30/30/0.
func TestLedger_EscenarioReservaYDespacho(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()

	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "100"), WarehouseID: wh1})
	f.exec(t, inventory.ReserveStock{Meta: meta(plain, "30"), WarehouseID: wh1})
	assert.Equal(t, "70.0000", f.balance(t, wh1, plain).Available.String())

	_, err := f.ledger.Execute(ctx, inventory.ShipStock{Meta: meta(plain, "80"), WarehouseID: wh1})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "80.0000", stockErr.Requested)
	assert.Equal(t, "70.0000", stockErr.Available)

	res := f.exec(t, inventory.ShipStock{Meta: meta(plain, "70"), WarehouseID: wh1})
	assert.Equal(t, entity.TxShipment, res.Transaction.Type)

	b := f.balance(t, wh1, plain)
	assert.Equal(t, "30.0000", b.OnHand.String())
	assert.Equal(t, "30.0000", b.Reserved.String())
	assert.Equal(t, "0.0000", b.Available.String())

	txs, err := f.ledger.ListTransactions(ctx, inventory.TransactionQuery{TenantID: tenant, ProductID: plain})
	require.NoError(t, err)
	require.Len(t, txs, 3, "el rechazo no deja transacción")
	assert.Equal(t, []entity.TransactionType{entity.TxReceipt, entity.TxReservation, entity.TxShipment},
		[]entity.TransactionType{txs[0].Type, txs[1].Type, txs[2].Type})
}

func TestLedger_ReservaIdaYVuelta(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "12.5"), WarehouseID: wh1})
	before := f.balance(t, wh1, plain)

	f.exec(t, inventory.ReserveStock{Meta: meta(plain, "4.25"), WarehouseID: wh1})
	f.exec(t, inventory.ReleaseReservation{Meta: meta(plain, "4.25"), WarehouseID: wh1, ReservationRef: "SO-1"})

	after := f.balance(t, wh1, plain)
	assert.True(t, before.Reserved.Equal(after.Reserved))
	assert.True(t, before.OnHand.Equal(after.OnHand))
}

func TestLedger_LecturaIdempotente(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "3"), WarehouseID: wh1})
	assert.Equal(t, f.balance(t, wh1, plain), f.balance(t, wh1, plain))

	zero := f.balance(t, wh2, plain)
	assert.True(t, zero.OnHand.IsZero(), "llave sin movimientos devuelve ceros")
}

func TestLedger_TrasladoConservaTotal(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "50"), WarehouseID: wh1})

	res := f.exec(t, inventory.TransferStock{Meta: meta(plain, "20"), SourceWarehouseID: wh1, DestWarehouseID: wh2})
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, entity.TxTransferOut, res.Transaction.Type)
	assert.Equal(t, res.Transactions[0].CorrelationID, res.Transactions[1].CorrelationID)
	require.Len(t, res.Balances, 2)

	src, dst := f.balance(t, wh1, plain), f.balance(t, wh2, plain)
	assert.Equal(t, "30.0000", src.OnHand.String())
	assert.Equal(t, "20.0000", dst.OnHand.String())
	assert.Equal(t, "50.0000", src.OnHand.Add(dst.OnHand).String())

	_, err := f.ledger.Execute(ctx, inventory.TransferStock{Meta: meta(plain, "31"), SourceWarehouseID: wh1, DestWarehouseID: wh2})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	only, err := f.ledger.ListTransactions(ctx, inventory.TransactionQuery{TenantID: tenant, ProductID: plain, WarehouseID: wh2})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, entity.TxTransferIn, only[0].Type)
}

func TestLedger_Ajustes(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	f.exec(t, inventory.AdjustStock{Meta: meta(plain, "10"), WarehouseID: wh1, AdjustmentType: inventory.AdjustmentFound})
	res := f.exec(t, inventory.AdjustStock{Meta: meta(plain, "4"), WarehouseID: wh1, AdjustmentType: inventory.AdjustmentDamage})
	assert.Equal(t, entity.TxAdjustmentOut, res.Transaction.Type)
	assert.Equal(t, "damage", res.Transaction.Reason)
	assert.Equal(t, "6.0000", f.balance(t, wh1, plain).OnHand.String())

	// Ajuste en cero se registra igual
	res = f.exec(t, inventory.AdjustStock{Meta: meta(plain, "0"), WarehouseID: wh1, AdjustmentType: inventory.AdjustmentLoss})
	assert.True(t, res.Transaction.Quantity.IsZero())

	_, err := f.ledger.Execute(ctx, inventory.AdjustStock{Meta: meta(plain, "7"), WarehouseID: wh1, AdjustmentType: inventory.AdjustmentLoss})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

// ──────────────────────────────────────────────────────────────────────────────
// Concurrencia
// ──────────────────────────────────────────────────────────────────────────────

// Dos despachos de 7 sobre 10 disponibles: exactamente uno gana.
func TestLedger_DespachosConcurrentes(t *testing.T) {
	f := newFixture(t, 5*time.Second, nil)
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "10"), WarehouseID: wh1})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ledger.Execute(context.Background(), inventory.ShipStock{Meta: meta(plain, "7"), WarehouseID: wh1})
		}(i)
	}
	wg.Wait()

	ok, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientStock):
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, "3.0000", f.balance(t, wh1, plain).OnHand.String())
}

// Traslados en sentidos opuestos entre las mismas bodegas no se bloquean entre sí.
func TestLedger_TrasladosCruzadosSinDeadlock(t *testing.T) {
	f := newFixture(t, 5*time.Second, nil)
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "100"), WarehouseID: wh1})
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "100"), WarehouseID: wh2})

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []error
	for i := 0; i < 20; i++ {
		src, dst := wh1, wh2
		if i%2 == 1 {
			src, dst = wh2, wh1
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Execute(context.Background(), inventory.TransferStock{Meta: meta(plain, "1"), SourceWarehouseID: src, DestWarehouseID: dst})
			if err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, failures)
	total := f.balance(t, wh1, plain).OnHand.Add(f.balance(t, wh2, plain).OnHand)
	assert.Equal(t, "200.0000", total.String())
}

func TestLedger_TimeoutDeBloqueo(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond, nil)
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "10"), WarehouseID: wh1})

	holding, done := make(chan struct{}), make(chan struct{})
	defer close(done)
	go func() {
		_ = f.store.Run(context.Background(), func(b repository.StockBalanceRepository, _ repository.StockTransactionRepository, _ repository.LotRepository, _ repository.OutboxRepository) error {
			_, err := b.GetForUpdate(context.Background(), tenant, wh1, plain)
			close(holding)
			<-done
			return err
		})
	}()
	<-holding

	_, err := f.ledger.Execute(context.Background(), inventory.ShipStock{Meta: meta(plain, "1"), WarehouseID: wh1})
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, 1, f.rec.timeouts)
}

// ──────────────────────────────────────────────────────────────────────────────
// Lotes
// ──────────────────────────────────────────────────────────────────────────────

func TestLedger_DespachoFEFO(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	f.exec(t, inventory.ReceiveStock{Meta: meta(tracked, "5"), WarehouseID: wh1, LotNumber: "B", ExpiryDate: date("2024-02-01")})
	f.exec(t, inventory.ReceiveStock{Meta: meta(tracked, "5"), WarehouseID: wh1, LotNumber: "A", ExpiryDate: date("2024-01-01")})

	res := f.exec(t, inventory.ShipStock{Meta: meta(tracked, "7"), WarehouseID: wh1})
	require.Len(t, res.Transaction.LotRefs, 2)
	assert.Equal(t, "A", res.Transaction.LotRefs[0].LotNumber)
	assert.Equal(t, "5.0000", res.Transaction.LotRefs[0].Quantity.String())
	assert.Equal(t, "B", res.Transaction.LotRefs[1].LotNumber)
	assert.Equal(t, "2.0000", res.Transaction.LotRefs[1].Quantity.String())

	view, err := f.ledger.GetLotBreakdown(ctx, tenant, wh1, tracked)
	require.NoError(t, err)
	assert.Equal(t, entity.StrategyFEFO, view.Strategy)
	require.Len(t, view.Lots, 1)
	assert.Equal(t, "B", view.Lots[0].LotNumber)
	assert.Equal(t, "3.0000", view.Lots[0].Quantity.String())
	assert.True(t, view.Consistent)
}

func TestLedger_EstrategiaDelProducto(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	f.exec(t, inventory.ReceiveStock{Meta: meta(lifoProd, "5"), WarehouseID: wh1, LotNumber: "OLD"})
	f.exec(t, inventory.ReceiveStock{Meta: meta(lifoProd, "5"), WarehouseID: wh1, LotNumber: "NEW"})

	res := f.exec(t, inventory.ShipStock{Meta: meta(lifoProd, "2"), WarehouseID: wh1})
	require.Len(t, res.Transaction.LotRefs, 1)
	assert.Equal(t, "NEW", res.Transaction.LotRefs[0].LotNumber)
}

func TestLedger_EntradaAcumulaSobreLote(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	f.exec(t, inventory.ReceiveStock{Meta: meta(tracked, "2"), WarehouseID: wh1, LotNumber: "A", ExpiryDate: date("2024-01-01")})
	f.exec(t, inventory.ReceiveStock{Meta: meta(tracked, "3"), WarehouseID: wh1, LotNumber: "A", ExpiryDate: date("2024-01-01")})

	view, err := f.ledger.GetLotBreakdown(ctx, tenant, wh1, tracked)
	require.NoError(t, err)
	require.Len(t, view.Lots, 1)
	assert.Equal(t, "5.0000", view.Lots[0].Quantity.String())

	_, err = f.ledger.Execute(ctx, inventory.ReceiveStock{Meta: meta(tracked, "1"), WarehouseID: wh1, LotNumber: "A", ExpiryDate: date("2025-01-01")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "mismo lote con otro vencimiento")
}

func TestLedger_TrasladoMueveLotes(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	f.exec(t, inventory.ReceiveStock{Meta: meta(tracked, "4"), WarehouseID: wh1, LotNumber: "A", ExpiryDate: date("2024-01-01")})
	f.exec(t, inventory.ReceiveStock{Meta: meta(tracked, "4"), WarehouseID: wh1, LotNumber: "B", ExpiryDate: date("2024-03-01")})

	res := f.exec(t, inventory.TransferStock{Meta: meta(tracked, "6"), SourceWarehouseID: wh1, DestWarehouseID: wh2})
	assert.Equal(t, res.Transactions[0].LotRefs, res.Transactions[1].LotRefs)

	dst, err := f.ledger.GetLotBreakdown(ctx, tenant, wh2, tracked)
	require.NoError(t, err)
	require.Len(t, dst.Lots, 2)
	assert.Equal(t, "A", dst.Lots[0].LotNumber)
	assert.Equal(t, "4.0000", dst.Lots[0].Quantity.String())
	assert.True(t, dst.Lots[0].ExpiryDate.Equal(*date("2024-01-01")))
	assert.Equal(t, "2.0000", dst.Lots[1].Quantity.String())
	assert.True(t, dst.Consistent)

	src, err := f.ledger.GetLotBreakdown(ctx, tenant, wh1, tracked)
	require.NoError(t, err)
	assert.Equal(t, "2.0000", src.Total.String())
	assert.True(t, src.Consistent)
}

func TestLedger_LotesNoCuadranConSaldo(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	f.exec(t, inventory.ReceiveStock{Meta: meta(tracked, "5"), WarehouseID: wh1, LotNumber: "A"})

	// Saldo alterado por fuera del libro
	require.NoError(t, f.store.Run(ctx, func(b repository.StockBalanceRepository, _ repository.StockTransactionRepository, _ repository.LotRepository, _ repository.OutboxRepository) error {
		bal, err := b.GetForUpdate(ctx, tenant, wh1, tracked)
		if err != nil {
			return err
		}
		bal.OnHand = quantity.FromInt(9)
		return b.Upsert(ctx, bal)
	}))

	_, err := f.ledger.Execute(ctx, inventory.ShipStock{Meta: meta(tracked, "1"), WarehouseID: wh1})
	assert.ErrorIs(t, err, domain.ErrLotBalanceMismatch)

	view, err := f.ledger.GetLotBreakdown(ctx, tenant, wh1, tracked)
	require.NoError(t, err)
	assert.False(t, view.Consistent)
}

// ──────────────────────────────────────────────────────────────────────────────
// Validación, fallas y efectos posteriores
// ──────────────────────────────────────────────────────────────────────────────

func TestLedger_ValidacionDeForma(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  inventory.Command
		want error
	}{
		{"despacho en cero", inventory.ShipStock{Meta: meta(plain, "0"), WarehouseID: wh1}, domain.ErrInvalidQuantity},
		{"cantidad negativa", inventory.ReceiveStock{Meta: meta(plain, "-1"), WarehouseID: wh1}, domain.ErrInvalidQuantity},
		{"sin bodega", inventory.ReserveStock{Meta: meta(plain, "1")}, domain.ErrInvalidInput},
		{"sin tenant", inventory.ShipStock{Meta: inventory.Meta{ProductID: plain, Quantity: quantity.FromInt(1)}, WarehouseID: wh1}, domain.ErrInvalidInput},
		{"traslado a la misma bodega", inventory.TransferStock{Meta: meta(plain, "1"), SourceWarehouseID: wh1, DestWarehouseID: wh1}, domain.ErrInvalidInput},
		{"tipo de ajuste desconocido", inventory.AdjustStock{Meta: meta(plain, "1"), WarehouseID: wh1, AdjustmentType: "theft"}, domain.ErrInvalidInput},
		{"producto inexistente", inventory.ReceiveStock{Meta: meta("nope", "1"), WarehouseID: wh1}, domain.ErrNotFound},
		{"lote obligatorio", inventory.ReceiveStock{Meta: meta(tracked, "1"), WarehouseID: wh1}, domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.Execute(ctx, tc.cmd)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	txs, err := f.store.Transactions().List(ctx, repository.TransactionFilter{TenantID: tenant, ProductID: plain})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestLedger_FalloDeCommitNoDejaRastro(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "10"), WarehouseID: wh1})

	var fired int
	f.ledger.OnCommit(func(context.Context, []*entity.StockTransaction) error {
		fired++
		return nil
	})
	f.store.FailNextCommit(errors.New("conexión perdida"))

	_, err := f.ledger.Execute(ctx, inventory.ShipStock{Meta: meta(plain, "4"), WarehouseID: wh1})
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.Equal(t, 0, fired, "sin commit no hay notificación")
	assert.Equal(t, "10.0000", f.balance(t, wh1, plain).OnHand.String())

	events, err := f.store.Outbox().FindUnpublished(ctx, 100, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1, "solo el evento de la recepción")

	f.exec(t, inventory.ShipStock{Meta: meta(plain, "4"), WarehouseID: wh1})
	assert.Equal(t, 1, fired)
}

func TestLedger_HookConErrorNoAfectaResultado(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "1"), WarehouseID: wh2})

	var got []*entity.StockTransaction
	f.ledger.OnCommit(func(_ context.Context, txs []*entity.StockTransaction) error {
		got = txs
		return errors.New("downstream caído")
	})

	res := f.exec(t, inventory.TransferStock{Meta: meta(plain, "0.5"), SourceWarehouseID: wh2, DestWarehouseID: wh1})
	require.Len(t, got, 2)
	assert.Equal(t, res.Transactions, got)
	assert.Equal(t, "0.5000", f.balance(t, wh1, plain).OnHand.String())
}

func TestLedger_LiberarMasDeLoReservado(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "10"), WarehouseID: wh1})
	f.exec(t, inventory.ReserveStock{Meta: meta(plain, "2"), WarehouseID: wh1})

	_, err := f.ledger.Execute(ctx, inventory.ReleaseReservation{Meta: meta(plain, "3"), WarehouseID: wh1})
	assert.ErrorIs(t, err, domain.ErrBalanceInvariantViolation)
	assert.Equal(t, 1, f.rec.violations)
	assert.Equal(t, "2.0000", f.balance(t, wh1, plain).Reserved.String())
}

func TestLedger_IdempotenciaCaminoRapido(t *testing.T) {
	f := newFixture(t, time.Second, memory.NewIdempotencyStore())
	ctx := context.Background()

	m := meta(plain, "10")
	m.IdempotencyKey = "rcv-1"
	first := f.exec(t, inventory.ReceiveStock{Meta: m, WarehouseID: wh1})
	assert.False(t, first.Replayed)

	second := f.exec(t, inventory.ReceiveStock{Meta: m, WarehouseID: wh1})
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, "10.0000", f.balance(t, wh1, plain).OnHand.String())
	assert.Contains(t, f.rec.outcomes, "replayed")

	txs, err := f.ledger.ListTransactions(ctx, inventory.TransactionQuery{TenantID: tenant, ProductID: plain})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

// Sin almacén rápido la llave se resuelve contra el libro, bajo el bloqueo.
func TestLedger_IdempotenciaRespaldoDurable(t *testing.T) {
	f := newFixture(t, time.Second, nil)

	m := meta(plain, "3")
	m.IdempotencyKey = "trf-9"
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "10"), WarehouseID: wh1})
	first := f.exec(t, inventory.TransferStock{Meta: m, SourceWarehouseID: wh1, DestWarehouseID: wh2})
	second := f.exec(t, inventory.TransferStock{Meta: m, SourceWarehouseID: wh1, DestWarehouseID: wh2})

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, entity.TxTransferOut, second.Transaction.Type)
	assert.Equal(t, "7.0000", f.balance(t, wh1, plain).OnHand.String())
}

func TestLedger_IdempotenciaEnCurso(t *testing.T) {
	idem := memory.NewIdempotencyStore()
	f := newFixture(t, time.Second, idem)
	ctx := context.Background()
	_, err := idem.SetNX(ctx, "idem:"+tenant+":busy", "processing", time.Minute)
	require.NoError(t, err)

	m := meta(plain, "1")
	m.IdempotencyKey = "busy"
	_, err = f.ledger.Execute(ctx, inventory.ReceiveStock{Meta: m, WarehouseID: wh1})
	assert.ErrorIs(t, err, domain.ErrIdempotencyInProgress)
}

func TestLedger_EventoDeOutboxConStockBajo(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	f.exec(t, inventory.ReceiveStock{Meta: meta(reorder, "10"), WarehouseID: wh1})
	f.exec(t, inventory.ShipStock{Meta: meta(reorder, "6"), WarehouseID: wh1})

	events, err := f.store.Outbox().FindUnpublished(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, inventory.EventTypePrefix+"receipt", events[0].EventType)
	assert.Equal(t, inventory.EventTypePrefix+"shipment", events[1].EventType)

	var receipt, shipment map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &receipt))
	require.NoError(t, json.Unmarshal(events[1].Payload, &shipment))
	assert.Equal(t, false, receipt["low_stock"])
	assert.Equal(t, true, shipment["low_stock"])
	assert.Equal(t, "4.0000", shipment["available"])
}

// ──────────────────────────────────────────────────────────────────────────────
// Orden del historial
// ──────────────────────────────────────────────────────────────────────────────

// gatedProducts detiene la primera consulta al catálogo hasta que se cierre release.
type gatedProducts struct {
	repository.ProductRepository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedProducts) GetByID(ctx context.Context, tenantID, id string) (*entity.Product, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.ProductRepository.GetByID(ctx, tenantID, id)
}

// replay recorre el historial en el orden devuelto y falla si algún saldo intermedio es inválido.
func replay(t *testing.T, txs []*entity.StockTransaction) map[string]entity.StockBalance {
	t.Helper()
	running := make(map[string]entity.StockBalance)
	for _, tx := range txs {
		b, ok := running[tx.WarehouseID]
		if !ok {
			b = *entity.NewStockBalance(tx.TenantID, tx.WarehouseID, tx.ProductID)
		}
		next, err := b.Apply(tx)
		require.NoError(t, err, "%s %s en %s", tx.Type, tx.Quantity, tx.WarehouseID)
		running[tx.WarehouseID] = next
	}
	return running
}

// Un despacho que empezó antes que la recepción pero confirmó después queda después en el historial.
func TestLedger_HistorialEnOrdenDeCommit(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	gate := &gatedProducts{ProductRepository: f.store.Products(), entered: make(chan struct{}), release: make(chan struct{})}
	slow := inventory.NewLedger(f.store, gate, f.store.Balances(), f.store.Transactions(), f.store.Lots(), nil, logger.NewNop(), inventory.Config{})

	shipErr := make(chan error, 1)
	go func() {
		_, err := slow.Execute(ctx, inventory.ShipStock{Meta: meta(plain, "10"), WarehouseID: wh1})
		shipErr <- err
	}()
	<-gate.entered
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "10"), WarehouseID: wh1})
	close(gate.release)
	require.NoError(t, <-shipErr)

	txs, err := f.ledger.ListTransactions(ctx, inventory.TransactionQuery{TenantID: tenant, ProductID: plain, WarehouseID: wh1})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, entity.TxReceipt, txs[0].Type)
	assert.Equal(t, entity.TxShipment, txs[1].Type)
	assert.True(t, txs[1].CreatedAt.After(txs[0].CreatedAt))
	assert.True(t, replay(t, txs)[wh1].OnHand.IsZero())
}

// Las dos patas de un traslado comparten created_at; la salida siempre se lista primero,
// también cuando la bodega destino ordena antes que la origen.
func TestLedger_TrasladoSalidaAntesQueEntrada(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "10"), WarehouseID: wh2})
	for i := 0; i < 5; i++ {
		f.exec(t, inventory.TransferStock{Meta: meta(plain, "1"), SourceWarehouseID: wh2, DestWarehouseID: wh1})
	}

	txs, err := f.ledger.ListTransactions(ctx, inventory.TransactionQuery{TenantID: tenant, ProductID: plain})
	require.NoError(t, err)
	require.Len(t, txs, 11)
	for i := 1; i < len(txs); i += 2 {
		assert.Equal(t, entity.TxTransferOut, txs[i].Type, "posición %d", i)
		assert.Equal(t, entity.TxTransferIn, txs[i+1].Type, "posición %d", i+1)
		assert.Equal(t, txs[i].CorrelationID, txs[i+1].CorrelationID)
	}
	final := replay(t, txs)
	assert.Equal(t, "5.0000", final[wh1].OnHand.String())
	assert.Equal(t, "5.0000", final[wh2].OnHand.String())
}

func TestLedger_HistorialDesde(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	for _, q := range []string{"1", "2", "3"} {
		f.exec(t, inventory.ReceiveStock{Meta: meta(plain, q), WarehouseID: wh1})
	}
	all, err := f.ledger.ListTransactions(ctx, inventory.TransactionQuery{TenantID: tenant, ProductID: plain})
	require.NoError(t, err)
	require.Len(t, all, 3)

	since := all[1].CreatedAt
	txs, err := f.ledger.ListTransactions(ctx, inventory.TransactionQuery{TenantID: tenant, ProductID: plain, Since: &since})
	require.NoError(t, err)
	require.Len(t, txs, 2, "Since es inclusivo")
	assert.Equal(t, "2.0000", txs[0].Quantity.String())
	assert.Equal(t, "3.0000", txs[1].Quantity.String())

	later := all[2].CreatedAt.Add(time.Second)
	txs, err = f.ledger.ListTransactions(ctx, inventory.TransactionQuery{TenantID: tenant, ProductID: plain, Since: &later})
	require.NoError(t, err)
	assert.Empty(t, txs)

	txs, err = f.ledger.ListTransactions(ctx, inventory.TransactionQuery{TenantID: tenant, ProductID: plain, Since: &since, Limit: 1})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "2.0000", txs[0].Quantity.String())
}

// ──────────────────────────────────────────────────────────────────────────────
// Vencimientos y rango
// ──────────────────────────────────────────────────────────────────────────────

// El vencimiento se guarda como fecha: dos entradas del mismo día a distinta hora son el mismo lote.
func TestLedger_VencimientoEsFechaCalendario(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	afternoon := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	morning := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

	f.exec(t, inventory.ReceiveStock{Meta: meta(tracked, "2"), WarehouseID: wh1, LotNumber: "A", ExpiryDate: &afternoon})
	f.exec(t, inventory.ReceiveStock{Meta: meta(tracked, "2"), WarehouseID: wh1, LotNumber: "A", ExpiryDate: &afternoon})
	f.exec(t, inventory.ReceiveStock{Meta: meta(tracked, "1"), WarehouseID: wh1, LotNumber: "A", ExpiryDate: &morning})

	view, err := f.ledger.GetLotBreakdown(ctx, tenant, wh1, tracked)
	require.NoError(t, err)
	require.Len(t, view.Lots, 1)
	assert.Equal(t, "5.0000", view.Lots[0].Quantity.String())
	require.NotNil(t, view.Lots[0].ExpiryDate)
	assert.True(t, view.Lots[0].ExpiryDate.Equal(*date("2024-01-01")))
}

func TestLedger_SaldoFueraDeRango(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	f.exec(t, inventory.ReceiveStock{Meta: meta(plain, "99999999999999"), WarehouseID: wh1})

	_, err := f.ledger.Execute(context.Background(), inventory.ReceiveStock{Meta: meta(plain, "1"), WarehouseID: wh1})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	assert.False(t, domain.IsRetryable(err))
	assert.Equal(t, "99999999999999.0000", f.balance(t, wh1, plain).OnHand.String())
}

// ──────────────────────────────────────────────────────────────────────────────
// Vida de las llaves de idempotencia
// ──────────────────────────────────────────────────────────────────────────────

type ttlSpy struct {
	*memory.IdempotencyStore
	mu    sync.Mutex
	setNX []time.Duration
	set   []time.Duration
}

func (s *ttlSpy) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	s.setNX = append(s.setNX, ttl)
	s.mu.Unlock()
	return s.IdempotencyStore.SetNX(ctx, key, value, ttl)
}

func (s *ttlSpy) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	s.set = append(s.set, ttl)
	s.mu.Unlock()
	return s.IdempotencyStore.Set(ctx, key, value, ttl)
}

func TestLedger_MarcaEnCursoVidaCorta(t *testing.T) {
	spy := &ttlSpy{IdempotencyStore: memory.NewIdempotencyStore()}
	store := memory.NewStore(time.Second)
	require.NoError(t, store.Products().Create(context.Background(), &entity.Product{ID: plain, TenantID: tenant, SKU: "PLAIN"}))
	ledger := inventory.NewLedger(store, store.Products(), store.Balances(), store.Transactions(), store.Lots(), spy, logger.NewNop(),
		inventory.Config{IdempotencyTTL: time.Hour, PendingTTL: 5 * time.Second})

	m := meta(plain, "1")
	m.IdempotencyKey = "k-1"
	_, err := ledger.Execute(context.Background(), inventory.ReceiveStock{Meta: m, WarehouseID: wh1})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{5 * time.Second}, spy.setNX)
	assert.Equal(t, []time.Duration{time.Hour}, spy.set)
}

// Una marca "processing" huérfana (proceso caído antes de resolverla) vence y el reintento
// se resuelve contra el libro: se reproduce el original sin escribir de nuevo.
func TestLedger_MarcaHuerfanaVenceYCaeAlLibro(t *testing.T) {
	idem := memory.NewIdempotencyStore()
	f := newFixture(t, time.Second, idem)
	ctx := context.Background()

	m := meta(plain, "4")
	m.IdempotencyKey = "crash-1"
	first := f.exec(t, inventory.ReceiveStock{Meta: m, WarehouseID: wh1})
	require.NoError(t, idem.Set(ctx, "idem:"+tenant+":crash-1", "processing", 20*time.Millisecond))

	_, err := f.ledger.Execute(ctx, inventory.ReceiveStock{Meta: m, WarehouseID: wh1})
	assert.ErrorIs(t, err, domain.ErrIdempotencyInProgress)

	time.Sleep(50 * time.Millisecond)
	again := f.exec(t, inventory.ReceiveStock{Meta: m, WarehouseID: wh1})
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Transaction.ID, again.Transaction.ID)
	assert.Equal(t, "4.0000", f.balance(t, wh1, plain).OnHand.String())
}
