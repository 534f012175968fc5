package dto

import (
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
)

// CreateProductRequest entrada para registrar un producto en el catálogo del libro.
type CreateProductRequest struct {
	SKU               string `json:"sku"`
	Name              string `json:"name"`
	LotTracked        bool   `json:"lot_tracked"`
	DeductionStrategy string `json:"deduction_strategy,omitempty"` // FEFO | FIFO | LIFO; vacío = la del servicio
	ReorderPoint      string `json:"reorder_point,omitempty"`
}

// ProductResponse salida de un producto.
type ProductResponse struct {
	ID                string            `json:"id"`
	SKU               string            `json:"sku"`
	Name              string            `json:"name"`
	LotTracked        bool              `json:"lot_tracked"`
	DeductionStrategy string            `json:"deduction_strategy,omitempty"`
	ReorderPoint      quantity.Quantity `json:"reorder_point"`
	CreatedAt         time.Time         `json:"created_at"`
}
