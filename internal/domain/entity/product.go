package entity

import (
	"time"

	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
)

// Estrategias de descuento de lotes.
const (
	StrategyFEFO = "FEFO" // primero en vencer, primero en salir
	StrategyFIFO = "FIFO" // primero en entrar (fecha de recepción)
	StrategyLIFO = "LIFO" // último en entrar
)

// Product datos de catálogo que el libro necesita: si maneja lotes, con qué estrategia
// se descuentan y el punto de reorden para la alerta de stock bajo.
type Product struct {
	ID                string
	TenantID          string
	SKU               string // código único por tenant
	Name              string
	LotTracked        bool
	DeductionStrategy string // vacío = estrategia por defecto de la configuración
	ReorderPoint      quantity.Quantity
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
