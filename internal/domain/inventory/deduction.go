package inventory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
)

// Allocation cantidad tomada de un lote. Lot es una copia: el plan nunca toca los lotes de entrada.
type Allocation struct {
	Lot      entity.Lot
	Quantity quantity.Quantity
}

// AllocationPlan lotes a debitar, en orden, para cubrir una salida.
type AllocationPlan struct {
	Strategy    string
	Allocations []Allocation
}

// Total cantidad cubierta por el plan.
func (p AllocationPlan) Total() quantity.Quantity {
	total := quantity.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Quantity)
	}
	return total
}

// LotRefs pares (lote, cantidad) para la transacción del libro.
func (p AllocationPlan) LotRefs() []entity.LotRef {
	refs := make([]entity.LotRef, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		refs = append(refs, entity.LotRef{LotNumber: a.Lot.LotNumber, Quantity: a.Quantity})
	}
	return refs
}

// NormalizeStrategy valida el nombre de la estrategia; vacío devuelve def.
func NormalizeStrategy(s, def string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		s = strings.ToUpper(def)
	}
	switch s {
	case entity.StrategyFEFO, entity.StrategyFIFO, entity.StrategyLIFO:
		return s, nil
	}
	return "", fmt.Errorf("%w: estrategia %q", domain.ErrInvalidInput, s)
}

// SortLots devuelve una copia de lots en el orden de consumo de la estrategia.
//
//	FEFO: vencimiento ascendente, sin vencimiento al final; empates por recepción y número de lote.
//	FIFO: recepción ascendente.  LIFO: recepción descendente.
func SortLots(lots []*entity.Lot, strategy string) []*entity.Lot {
	out := make([]*entity.Lot, len(lots))
	copy(out, lots)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch strategy {
		case entity.StrategyFEFO:
			if c := compareExpiry(a, b); c != 0 {
				return c < 0
			}
			if !a.ReceivedAt.Equal(b.ReceivedAt) {
				return a.ReceivedAt.Before(b.ReceivedAt)
			}
		case entity.StrategyFIFO:
			if !a.ReceivedAt.Equal(b.ReceivedAt) {
				return a.ReceivedAt.Before(b.ReceivedAt)
			}
		case entity.StrategyLIFO:
			if !a.ReceivedAt.Equal(b.ReceivedAt) {
				return a.ReceivedAt.After(b.ReceivedAt)
			}
		}
		return a.LotNumber < b.LotNumber
	})
	return out
}

func compareExpiry(a, b *entity.Lot) int {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate == nil:
		return 0
	case a.ExpiryDate == nil:
		return 1
	case b.ExpiryDate == nil:
		return -1
	case a.ExpiryDate.Before(*b.ExpiryDate):
		return -1
	case a.ExpiryDate.After(*b.ExpiryDate):
		return 1
	}
	return 0
}

// SelectForDeduction recorre los lotes en el orden de la estrategia tomando min(lote, restante)
// hasta cubrir needed. Falla con InsufficientLotStockError si la suma de los lotes no alcanza.
func SelectForDeduction(lots []*entity.Lot, needed quantity.Quantity, strategy string) (AllocationPlan, error) {
	plan := AllocationPlan{Strategy: strategy}
	if needed.IsNegative() {
		return plan, fmt.Errorf("%w: %s", domain.ErrInvalidQuantity, needed)
	}
	if _, err := NormalizeStrategy(strategy, ""); err != nil {
		return plan, err
	}

	available := quantity.Zero
	for _, l := range lots {
		if l.Quantity.IsPositive() {
			available = available.Add(l.Quantity)
		}
	}
	if available.LessThan(needed) {
		return plan, &domain.InsufficientLotStockError{Requested: needed.String(), Available: available.String()}
	}

	remaining := needed
	for _, l := range SortLots(lots, strategy) {
		if !remaining.IsPositive() {
			break
		}
		if !l.Quantity.IsPositive() {
			continue
		}
		take := quantity.Min(l.Quantity, remaining)
		plan.Allocations = append(plan.Allocations, Allocation{Lot: *l, Quantity: take})
		remaining = remaining.Sub(take)
	}
	return plan, nil
}

// TotalLots suma de las cantidades de los lotes (para conciliar contra el on-hand).
func TotalLots(lots []*entity.Lot) quantity.Quantity {
	total := quantity.Zero
	for _, l := range lots {
		total = total.Add(l.Quantity)
	}
	return total
}
