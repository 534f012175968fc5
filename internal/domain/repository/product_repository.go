package repository

import (
	"context"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// ProductRepository define el puerto de lectura del catálogo que usa el libro (DIP).
type ProductRepository interface {
	// GetByID devuelve domain.ErrNotFound si el producto no existe para el tenant.
	GetByID(ctx context.Context, tenantID, id string) (*entity.Product, error)
	Create(ctx context.Context, product *entity.Product) error
}
