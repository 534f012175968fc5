package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	domaininv "github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// errReplayed aborta la transacción sin escrituras cuando la llave de idempotencia ya fue aplicada.
var errReplayed = errors.New("comando ya aplicado")

// leg efecto de un comando sobre una llave de saldo. Un traslado tiene dos (salida y entrada).
type leg struct {
	warehouseID string
	txType      entity.TransactionType
	reason      string
	lotNumber   string
	expiryDate  *time.Time

	balance   *entity.StockBalance
	next      entity.StockBalance
	plan      domaininv.AllocationPlan
	lotRefs   []entity.LotRef
	lotWrites []*entity.Lot
	tx        *entity.StockTransaction
}

// execution estado de un comando mientras atraviesa las etapas.
type execution struct {
	cmd           Command
	meta          Meta
	product       *entity.Product
	strategy      string
	legs          []*leg
	correlationID string
	now           time.Time // se fija en acquireLocks
	replay        []*entity.StockTransaction
}

// txScope repositorios atados a la transacción en curso.
type txScope struct {
	balances     repository.StockBalanceRepository
	transactions repository.StockTransactionRepository
	lots         repository.LotRepository
	outbox       repository.OutboxRepository
}

type stage struct {
	name string
	run  func(l *Ledger, ctx context.Context, ex *execution, s *txScope) error
}

// Etapas que corren dentro de la transacción, en orden. La liberación del bloqueo es
// implícita al terminar la transacción (commit o rollback).
var lockedStages = []stage{
	{"lock", (*Ledger).acquireLocks},
	{"dedupe", (*Ledger).checkAlreadyApplied},
	{"availability", (*Ledger).checkAvailability},
	{"lots", (*Ledger).resolveLots},
	{"commit", (*Ledger).commit},
}

// prepare etapa 1: validación de forma y enriquecimiento con el catálogo. No escribe nada.
func (l *Ledger) prepare(ctx context.Context, cmd Command) (*execution, error) {
	if cmd == nil {
		return nil, domain.ErrInvalidInput
	}
	meta := cmd.Base()
	if meta.TenantID == "" || meta.ProductID == "" {
		return nil, fmt.Errorf("%w: tenant y producto son obligatorios", domain.ErrInvalidInput)
	}
	if meta.Quantity.IsNegative() {
		return nil, fmt.Errorf("%w: %s es negativa", domain.ErrInvalidQuantity, meta.Quantity)
	}

	ex := &execution{cmd: cmd, meta: meta, correlationID: uuid.New().String()}
	zeroAllowed := false

	switch c := cmd.(type) {
	case ReceiveStock:
		ex.legs = []*leg{{warehouseID: c.WarehouseID, txType: entity.TxReceipt, lotNumber: c.LotNumber, expiryDate: entity.ExpiryDay(c.ExpiryDate)}}
	case AdjustStock:
		if !c.AdjustmentType.IsValid() {
			return nil, fmt.Errorf("%w: tipo de ajuste %q", domain.ErrInvalidInput, c.AdjustmentType)
		}
		adj := &leg{warehouseID: c.WarehouseID, txType: entity.TxAdjustmentOut, reason: string(c.AdjustmentType)}
		if c.AdjustmentType.IsPositive() {
			adj.txType = entity.TxAdjustmentIn
			adj.lotNumber = c.LotNumber
			adj.expiryDate = entity.ExpiryDay(c.ExpiryDate)
		}
		ex.legs = []*leg{adj}
		zeroAllowed = true
	case TransferStock:
		if c.SourceWarehouseID == c.DestWarehouseID {
			return nil, fmt.Errorf("%w: bodega origen y destino iguales", domain.ErrInvalidInput)
		}
		ex.legs = []*leg{
			{warehouseID: c.SourceWarehouseID, txType: entity.TxTransferOut},
			{warehouseID: c.DestWarehouseID, txType: entity.TxTransferIn},
		}
	case ShipStock:
		ex.legs = []*leg{{warehouseID: c.WarehouseID, txType: entity.TxShipment}}
	case ReserveStock:
		ex.legs = []*leg{{warehouseID: c.WarehouseID, txType: entity.TxReservation}}
	case ReleaseReservation:
		ex.legs = []*leg{{warehouseID: c.WarehouseID, txType: entity.TxRelease, reason: c.ReservationRef}}
		zeroAllowed = true
	default:
		return nil, fmt.Errorf("%w: comando %T", domain.ErrInvalidInput, cmd)
	}

	for _, lg := range ex.legs {
		if lg.warehouseID == "" {
			return nil, fmt.Errorf("%w: bodega obligatoria", domain.ErrInvalidInput)
		}
	}
	if meta.Quantity.IsZero() && !zeroAllowed {
		return nil, fmt.Errorf("%w: debe ser mayor que cero", domain.ErrInvalidQuantity)
	}

	product, err := l.products.GetByID(ctx, meta.TenantID, meta.ProductID)
	if err != nil {
		return nil, err
	}
	ex.product = product
	ex.strategy, err = domaininv.NormalizeStrategy(product.DeductionStrategy, l.cfg.DefaultStrategy)
	if err != nil {
		return nil, err
	}

	if product.LotTracked && meta.Quantity.IsPositive() {
		for _, lg := range ex.legs {
			if (lg.txType == entity.TxReceipt || lg.txType == entity.TxAdjustmentIn) && lg.lotNumber == "" {
				return nil, fmt.Errorf("%w: el producto maneja lotes, falta lot_number", domain.ErrInvalidInput)
			}
		}
	}
	return ex, nil
}

// acquireLocks etapa 2: lockAndLoad de cada llave en orden de bodega ascendente, para que dos
// traslados en sentidos opuestos entre las mismas bodegas no se bloqueen mutuamente.
func (l *Ledger) acquireLocks(ctx context.Context, ex *execution, s *txScope) error {
	ordered := make([]*leg, len(ex.legs))
	copy(ordered, ex.legs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].warehouseID < ordered[j].warehouseID })

	for _, lg := range ordered {
		b, err := s.balances.GetForUpdate(ctx, ex.meta.TenantID, lg.warehouseID, ex.meta.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrLockTimeout) {
				l.metrics.LockTimeout()
				l.log.Warn().
					Str("tenant_id", ex.meta.TenantID).
					Str("warehouse_id", lg.warehouseID).
					Str("product_id", ex.meta.ProductID).
					Msg("tiempo de espera agotado al bloquear saldo")
			}
			return err
		}
		lg.balance = b
	}
	// La hora del libro se toma con las llaves tomadas: quien esperó el bloqueo queda después
	// de quien lo soltó, y el orden por created_at coincide con el de commit.
	ex.now = l.now().UTC()
	return nil
}

// checkAlreadyApplied con el bloqueo tomado, una llave de idempotencia ya registrada en el libro
// significa que el comando se aplicó antes: se aborta sin escribir y se devuelve lo original.
func (l *Ledger) checkAlreadyApplied(ctx context.Context, ex *execution, s *txScope) error {
	if ex.meta.IdempotencyKey == "" {
		return nil
	}
	existing, err := s.transactions.ListByIdempotencyKey(ctx, ex.meta.TenantID, ex.meta.IdempotencyKey)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		ex.replay = existing
		return errReplayed
	}
	return nil
}

// checkAvailability etapa 3: toda salida o reserva exige requested <= available.
// Entradas y liberaciones nunca se rechazan por insuficiencia.
func (l *Ledger) checkAvailability(_ context.Context, ex *execution, _ *txScope) error {
	for _, lg := range ex.legs {
		if !needsAvailability(lg.txType) {
			continue
		}
		available := lg.balance.Available()
		if ex.meta.Quantity.GreaterThan(available) {
			return &domain.InsufficientStockError{
				WarehouseID: lg.warehouseID,
				ProductID:   ex.meta.ProductID,
				Requested:   ex.meta.Quantity.String(),
				Available:   available.String(),
			}
		}
	}
	return nil
}

func needsAvailability(t entity.TransactionType) bool {
	return t.DecreasesOnHand() || t == entity.TxReservation
}

// resolveLots etapa 4: solo productos con lote. Las salidas eligen lotes con la estrategia del
// producto; las entradas acumulan sobre el lote indicado; el destino de un traslado recibe los
// mismos lotes (número, vencimiento y fecha de recepción) que salieron del origen.
func (l *Ledger) resolveLots(ctx context.Context, ex *execution, s *txScope) error {
	if !ex.product.LotTracked {
		return nil
	}
	var transferred domaininv.AllocationPlan
	for _, lg := range ex.legs {
		switch {
		case lg.txType.DecreasesOnHand():
			lots, err := s.lots.List(ctx, ex.meta.TenantID, lg.warehouseID, ex.meta.ProductID)
			if err != nil {
				return err
			}
			if total := domaininv.TotalLots(lots); !total.Equal(lg.balance.OnHand) {
				l.log.Error().
					Str("tenant_id", ex.meta.TenantID).
					Str("warehouse_id", lg.warehouseID).
					Str("product_id", ex.meta.ProductID).
					Str("on_hand", lg.balance.OnHand.String()).
					Str("lot_total", total.String()).
					Msg("lotes no cuadran con el saldo")
				return &domain.LotBalanceMismatchError{
					WarehouseID: lg.warehouseID,
					ProductID:   ex.meta.ProductID,
					OnHand:      lg.balance.OnHand.String(),
					LotTotal:    total.String(),
				}
			}
			plan, err := domaininv.SelectForDeduction(lots, ex.meta.Quantity, ex.strategy)
			if err != nil {
				return err
			}
			lg.plan = plan
			lg.lotRefs = plan.LotRefs()
			for _, a := range plan.Allocations {
				lot := a.Lot
				lot.Quantity = lot.Quantity.Sub(a.Quantity)
				lot.UpdatedAt = ex.now
				lg.lotWrites = append(lg.lotWrites, &lot)
			}
			if lg.txType == entity.TxTransferOut {
				transferred = plan
			}

		case lg.txType == entity.TxTransferIn:
			for _, a := range transferred.Allocations {
				incoming := a.Lot
				incoming.WarehouseID = lg.warehouseID
				lot, err := l.mergeLot(ctx, s, ex, incoming, a.Quantity)
				if err != nil {
					return err
				}
				lg.lotWrites = append(lg.lotWrites, lot)
				lg.lotRefs = append(lg.lotRefs, entity.LotRef{LotNumber: lot.LotNumber, Quantity: a.Quantity})
			}

		case lg.txType.IncreasesOnHand() && ex.meta.Quantity.IsPositive():
			incoming := entity.Lot{
				TenantID:    ex.meta.TenantID,
				WarehouseID: lg.warehouseID,
				ProductID:   ex.meta.ProductID,
				LotNumber:   lg.lotNumber,
				ExpiryDate:  lg.expiryDate,
				ReceivedAt:  ex.now,
			}
			lot, err := l.mergeLot(ctx, s, ex, incoming, ex.meta.Quantity)
			if err != nil {
				return err
			}
			lg.lotWrites = append(lg.lotWrites, lot)
			lg.lotRefs = []entity.LotRef{{LotNumber: lot.LotNumber, Quantity: ex.meta.Quantity}}
		}
	}
	return nil
}

// mergeLot suma qty al lote existente o crea uno nuevo con los datos de incoming.
// Un lote conserva el vencimiento de su primera entrada; uno distinto es entrada inválida.
func (l *Ledger) mergeLot(ctx context.Context, s *txScope, ex *execution, incoming entity.Lot, q quantity.Quantity) (*entity.Lot, error) {
	existing, err := s.lots.Get(ctx, incoming.TenantID, incoming.WarehouseID, incoming.ProductID, incoming.LotNumber)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		lot := incoming
		lot.Quantity = q
		lot.UpdatedAt = ex.now
		return &lot, nil
	}
	if !sameExpiry(existing.ExpiryDate, incoming.ExpiryDate) && incoming.ExpiryDate != nil {
		return nil, fmt.Errorf("%w: el lote %s ya existe con otro vencimiento", domain.ErrInvalidInput, existing.LotNumber)
	}
	lot := *existing
	lot.Quantity = lot.Quantity.Add(q)
	lot.UpdatedAt = ex.now
	return &lot, nil
}

func sameExpiry(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// commit etapa 5: calcula todos los saldos nuevos (una violación de invariante aborta antes de
// escribir) y luego escribe transacciones, saldos, lotes y eventos de outbox en la misma tx.
func (l *Ledger) commit(ctx context.Context, ex *execution, s *txScope) error {
	for _, lg := range ex.legs {
		lg.tx = &entity.StockTransaction{
			ID:             uuid.New().String(),
			CorrelationID:  ex.correlationID,
			TenantID:       ex.meta.TenantID,
			WarehouseID:    lg.warehouseID,
			ProductID:      ex.meta.ProductID,
			Type:           lg.txType,
			Quantity:       ex.meta.Quantity,
			LotRefs:        lg.lotRefs,
			Reference:      ex.meta.Reference,
			Reason:         lg.reason,
			IdempotencyKey: ex.meta.IdempotencyKey,
			CreatedBy:      ex.meta.UserID,
			CreatedAt:      ex.now,
		}
		next, err := lg.balance.Apply(lg.tx)
		if err != nil {
			if errors.Is(err, domain.ErrBalanceInvariantViolation) {
				l.metrics.InvariantViolation()
				l.log.Error().Err(err).
					Str("tenant_id", ex.meta.TenantID).
					Str("warehouse_id", lg.warehouseID).
					Str("product_id", ex.meta.ProductID).
					Str("type", string(lg.txType)).
					Str("quantity", ex.meta.Quantity.String()).
					Msg("ALERTA: violación de invariante de saldo, operación abortada")
			}
			return err
		}
		if !next.OnHand.InRange() {
			return fmt.Errorf("%w: el saldo de %s quedaría fuera de rango", domain.ErrInvalidQuantity, lg.warehouseID)
		}
		lg.next = next
	}

	for _, lg := range ex.legs {
		if err := s.transactions.Create(ctx, lg.tx); err != nil {
			return err
		}
		if err := s.balances.Upsert(ctx, &lg.next); err != nil {
			return err
		}
		for _, lot := range lg.lotWrites {
			if err := s.lots.Upsert(ctx, lot); err != nil {
				return err
			}
		}
		event, err := newOutboxEvent(lg.tx, lg.next, ex.product)
		if err != nil {
			return err
		}
		if err := s.outbox.Create(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
