package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
)

// CommandInput forma plana de un comando tal como llega de un adaptador (HTTP, cola).
// Build la traduce al comando tipado; los campos que no aplican al tipo se ignoran.
type CommandInput struct {
	TenantID          string
	UserID            string
	IdempotencyKey    string
	Type              string
	ProductID         string
	Quantity          string
	WarehouseID       string
	SourceWarehouseID string
	DestWarehouseID   string
	AdjustmentType    string
	LotNumber         string
	ExpiryDate        *time.Time
	Reference         string
	ReservationRef    string
}

// Build valida la forma mínima (tipo conocido, cantidad parseable) y arma el comando.
// El resto de validaciones las hace el libro al ejecutarlo.
func (in CommandInput) Build() (Command, error) {
	q, err := quantity.Parse(in.Quantity)
	if err != nil {
		return nil, err
	}
	meta := Meta{
		TenantID:       in.TenantID,
		ProductID:      strings.TrimSpace(in.ProductID),
		Quantity:       q,
		Reference:      in.Reference,
		IdempotencyKey: strings.TrimSpace(in.IdempotencyKey),
		UserID:         in.UserID,
	}
	lot := strings.TrimSpace(in.LotNumber)

	switch CommandKind(strings.ToLower(strings.TrimSpace(in.Type))) {
	case KindReceive:
		return ReceiveStock{Meta: meta, WarehouseID: in.WarehouseID, LotNumber: lot, ExpiryDate: in.ExpiryDate}, nil
	case KindAdjust:
		return AdjustStock{
			Meta:           meta,
			WarehouseID:    in.WarehouseID,
			AdjustmentType: AdjustmentType(strings.ToLower(in.AdjustmentType)),
			LotNumber:      lot,
			ExpiryDate:     in.ExpiryDate,
		}, nil
	case KindTransfer:
		return TransferStock{Meta: meta, SourceWarehouseID: in.SourceWarehouseID, DestWarehouseID: in.DestWarehouseID}, nil
	case KindShip:
		return ShipStock{Meta: meta, WarehouseID: in.WarehouseID}, nil
	case KindReserve:
		return ReserveStock{Meta: meta, WarehouseID: in.WarehouseID}, nil
	case KindRelease:
		return ReleaseReservation{Meta: meta, WarehouseID: in.WarehouseID, ReservationRef: in.ReservationRef}, nil
	default:
		return nil, fmt.Errorf("%w: tipo de comando %q", domain.ErrInvalidInput, in.Type)
	}
}
