package inventory

import (
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
)

// CommandKind identifica cada intención de cambio de stock.
type CommandKind string

const (
	KindReceive  CommandKind = "receive"
	KindAdjust   CommandKind = "adjust"
	KindTransfer CommandKind = "transfer"
	KindShip     CommandKind = "ship"
	KindReserve  CommandKind = "reserve"
	KindRelease  CommandKind = "release"
)

// Command es cualquiera de las seis intenciones que acepta Ledger.Execute.
type Command interface {
	Kind() CommandKind
	Base() Meta
}

// Meta campos comunes a todos los comandos. El tenant siempre viaja explícito.
type Meta struct {
	TenantID       string
	ProductID      string
	Quantity       quantity.Quantity
	Reference      string // documento de negocio de origen
	IdempotencyKey string // opcional; reenviar la misma llave no vuelve a aplicar el comando
	UserID         string
}

// Base devuelve los campos comunes.
func (m Meta) Base() Meta { return m }

// AdjustmentType motivo del ajuste; determina el signo.
type AdjustmentType string

const (
	AdjustmentReceipt AdjustmentType = "receipt"
	AdjustmentFound   AdjustmentType = "found"
	AdjustmentLoss    AdjustmentType = "loss"
	AdjustmentDamage  AdjustmentType = "damage"
	AdjustmentOut     AdjustmentType = "adjustment_out"
)

// IsValid indica si el tipo de ajuste es conocido.
func (a AdjustmentType) IsValid() bool {
	switch a {
	case AdjustmentReceipt, AdjustmentFound, AdjustmentLoss, AdjustmentDamage, AdjustmentOut:
		return true
	}
	return false
}

// IsPositive true para los ajustes que suman al on-hand.
func (a AdjustmentType) IsPositive() bool {
	return a == AdjustmentReceipt || a == AdjustmentFound
}

// ReceiveStock entrada de mercancía. LotNumber es obligatorio para productos con lote.
type ReceiveStock struct {
	Meta
	WarehouseID string
	LotNumber   string
	ExpiryDate  *time.Time
}

func (ReceiveStock) Kind() CommandKind { return KindReceive }

// AdjustStock ajuste de conteo; puede ser cero (se registra igual).
type AdjustStock struct {
	Meta
	WarehouseID    string
	AdjustmentType AdjustmentType
	LotNumber      string // solo ajustes positivos de productos con lote
	ExpiryDate     *time.Time
}

func (AdjustStock) Kind() CommandKind { return KindAdjust }

// TransferStock traslado entre bodegas; se valida solo contra el saldo de origen.
type TransferStock struct {
	Meta
	SourceWarehouseID string
	DestWarehouseID   string
}

func (TransferStock) Kind() CommandKind { return KindTransfer }

// ShipStock despacho.
type ShipStock struct {
	Meta
	WarehouseID string
}

func (ShipStock) Kind() CommandKind { return KindShip }

// ReserveStock compromete stock disponible (no on-hand) para un pedido.
type ReserveStock struct {
	Meta
	WarehouseID string
}

func (ReserveStock) Kind() CommandKind { return KindReserve }

// ReleaseReservation devuelve stock reservado; nunca pasa por el chequeo de disponibilidad.
type ReleaseReservation struct {
	Meta
	WarehouseID    string
	ReservationRef string
}

func (ReleaseReservation) Kind() CommandKind { return KindRelease }
