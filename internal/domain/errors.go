package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound                  = errors.New("recurso no encontrado")
	ErrInvalidInput              = errors.New("entrada inválida")
	ErrDuplicate                 = errors.New("recurso duplicado")
	ErrInvalidQuantity           = errors.New("cantidad inválida")
	ErrUnauthorized              = errors.New("no autorizado")
	ErrInsufficientStock         = errors.New("stock insuficiente")
	ErrInsufficientLotStock      = errors.New("stock insuficiente en lotes")
	ErrLotBalanceMismatch        = errors.New("lotes no cuadran con el saldo")
	ErrLockTimeout               = errors.New("tiempo de espera agotado al bloquear el saldo")
	ErrBalanceInvariantViolation = errors.New("violación de invariante de saldo")
	ErrStorageFailure            = errors.New("fallo de almacenamiento")
	ErrIdempotencyInProgress     = errors.New("operación con la misma llave de idempotencia en curso")
)

// InsufficientStockError rechazo del chequeo de disponibilidad con los valores involucrados.
type InsufficientStockError struct {
	WarehouseID string
	ProductID   string
	Requested   string
	Available   string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: bodega %s producto %s, solicitado %s, disponible %s",
		ErrInsufficientStock, e.WarehouseID, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InsufficientLotStockError la suma de los lotes no alcanza para la cantidad pedida.
type InsufficientLotStockError struct {
	Requested string
	Available string
}

func (e *InsufficientLotStockError) Error() string {
	return fmt.Sprintf("%s: solicitado %s, en lotes %s", ErrInsufficientLotStock, e.Requested, e.Available)
}

func (e *InsufficientLotStockError) Is(target error) bool { return target == ErrInsufficientLotStock }

// LotBalanceMismatchError los lotes de un producto con lote no suman el on-hand del saldo.
type LotBalanceMismatchError struct {
	WarehouseID string
	ProductID   string
	OnHand      string
	LotTotal    string
}

func (e *LotBalanceMismatchError) Error() string {
	return fmt.Sprintf("%s: bodega %s producto %s, on-hand %s, suma de lotes %s",
		ErrLotBalanceMismatch, e.WarehouseID, e.ProductID, e.OnHand, e.LotTotal)
}

func (e *LotBalanceMismatchError) Is(target error) bool { return target == ErrLotBalanceMismatch }

// BalanceInvariantViolationError aplicar una transacción dejaría el saldo en un estado imposible.
// Es un error de programación o de integridad: se aborta y se escala, nunca se corrige.
type BalanceInvariantViolationError struct {
	TransactionType string
	OnHand          string
	Reserved        string
	Delta           string
}

func (e *BalanceInvariantViolationError) Error() string {
	return fmt.Sprintf("%s: tipo %s, on-hand %s, reservado %s, delta %s",
		ErrBalanceInvariantViolation, e.TransactionType, e.OnHand, e.Reserved, e.Delta)
}

func (e *BalanceInvariantViolationError) Is(target error) bool {
	return target == ErrBalanceInvariantViolation
}

// IsRetryable indica si el llamador puede reintentar (con backoff) la misma operación.
// ErrStorageFailure solo es seguro de reintentar si el llamador envía llave de idempotencia.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrStorageFailure) ||
		errors.Is(err, ErrIdempotencyInProgress)
}
