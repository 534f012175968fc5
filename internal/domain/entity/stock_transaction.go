package entity

import (
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
)

// TransactionType tipo de transacción del libro de stock. La cantidad siempre es no negativa;
// la dirección la determina el tipo.
type TransactionType string

const (
	TxReceipt       TransactionType = "receipt"        // entrada de compra
	TxAdjustmentIn  TransactionType = "adjustment_in"  // ajuste positivo
	TxAdjustmentOut TransactionType = "adjustment_out" // ajuste negativo
	TxTransferOut   TransactionType = "transfer_out"   // salida por traslado (bodega origen)
	TxTransferIn    TransactionType = "transfer_in"    // entrada por traslado (bodega destino)
	TxShipment      TransactionType = "shipment"       // despacho
	TxReservation   TransactionType = "reservation"    // compromete stock sin moverlo
	TxRelease       TransactionType = "release"        // libera una reserva
)

// IsValid indica si el tipo es conocido.
func (t TransactionType) IsValid() bool {
	switch t {
	case TxReceipt, TxAdjustmentIn, TxAdjustmentOut, TxTransferOut, TxTransferIn,
		TxShipment, TxReservation, TxRelease:
		return true
	}
	return false
}

// IncreasesOnHand entradas físicas.
func (t TransactionType) IncreasesOnHand() bool {
	return t == TxReceipt || t == TxAdjustmentIn || t == TxTransferIn
}

// DecreasesOnHand salidas físicas; son las que consumen lotes.
func (t TransactionType) DecreasesOnHand() bool {
	return t == TxShipment || t == TxAdjustmentOut || t == TxTransferOut
}

// LotRef porción de una transacción atribuida a un lote.
type LotRef struct {
	LotNumber string            `json:"lot_number"`
	Quantity  quantity.Quantity `json:"quantity"`
}

// StockTransaction registro inmutable del libro; fuente de verdad para conciliar saldos.
// Un traslado son dos transacciones (transfer_out, transfer_in) con el mismo CorrelationID.
type StockTransaction struct {
	ID             string
	CorrelationID  string
	TenantID       string
	WarehouseID    string
	ProductID      string
	Type           TransactionType
	Quantity       quantity.Quantity
	LotRefs        []LotRef
	Reference      string // documento de negocio de origen (pedido, OC, nota de ajuste)
	Reason         string // tipo de ajuste o referencia de reserva
	IdempotencyKey string
	CreatedBy      string
	CreatedAt      time.Time
}
