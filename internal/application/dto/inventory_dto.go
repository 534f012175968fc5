package dto

import (
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
)

// StockCommandRequest body para POST /api/inventory/commands. Type elige el comando
// (receive, adjust, transfer, ship, reserve, release) y con él los campos que aplican.
// Quantity viaja como string para no perder precisión.
type StockCommandRequest struct {
	Type              string     `json:"type"`
	ProductID         string     `json:"product_id"`
	Quantity          string     `json:"quantity"`
	WarehouseID       string     `json:"warehouse_id,omitempty"`
	SourceWarehouseID string     `json:"source_warehouse_id,omitempty"`
	DestWarehouseID   string     `json:"dest_warehouse_id,omitempty"`
	AdjustmentType    string     `json:"adjustment_type,omitempty"`
	LotNumber         string     `json:"lot_number,omitempty"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	Reference         string     `json:"reference,omitempty"`
	ReservationRef    string     `json:"reservation_ref,omitempty"`
}

// CommandResponse resultado de un comando aplicado o reproducido por idempotencia.
type CommandResponse struct {
	CorrelationID string                `json:"correlation_id"`
	Replayed      bool                  `json:"replayed"`
	Transactions  []TransactionResponse `json:"transactions"`
	Balances      []BalanceResponse     `json:"balances,omitempty"`
}

// LotRefResponse porción de una transacción atribuida a un lote.
type LotRefResponse struct {
	LotNumber string            `json:"lot_number"`
	Quantity  quantity.Quantity `json:"quantity"`
}

// TransactionResponse una fila del libro.
type TransactionResponse struct {
	ID             string            `json:"id"`
	CorrelationID  string            `json:"correlation_id"`
	WarehouseID    string            `json:"warehouse_id"`
	ProductID      string            `json:"product_id"`
	Type           string            `json:"type"`
	Quantity       quantity.Quantity `json:"quantity"`
	LotRefs        []LotRefResponse  `json:"lot_refs,omitempty"`
	Reference      string            `json:"reference,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	CreatedBy      string            `json:"created_by,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// TransactionListResponse historial de un producto.
type TransactionListResponse struct {
	Total        int                   `json:"total"`
	Transactions []TransactionResponse `json:"transactions"`
}

// BalanceResponse saldo de una llave bodega-producto.
type BalanceResponse struct {
	WarehouseID string            `json:"warehouse_id"`
	ProductID   string            `json:"product_id"`
	OnHand      quantity.Quantity `json:"on_hand"`
	Reserved    quantity.Quantity `json:"reserved"`
	Available   quantity.Quantity `json:"available"`
	UpdatedAt   *time.Time        `json:"updated_at,omitempty"`
}

// LotResponse un lote con saldo.
type LotResponse struct {
	LotNumber  string            `json:"lot_number"`
	ExpiryDate *time.Time        `json:"expiry_date,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
	Quantity   quantity.Quantity `json:"quantity"`
}

// LotBreakdownResponse lotes en el orden en que se descontarían.
type LotBreakdownResponse struct {
	WarehouseID string            `json:"warehouse_id"`
	ProductID   string            `json:"product_id"`
	Strategy    string            `json:"strategy"`
	Lots        []LotResponse     `json:"lots"`
	Total       quantity.Quantity `json:"total"`
	OnHand      quantity.Quantity `json:"on_hand"`
	Consistent  bool              `json:"consistent"`
}
