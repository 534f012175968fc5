package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// ProductUseCase registro y lectura del catálogo que consulta el libro de stock.
// El stock no vive aquí: solo si el producto maneja lotes, su estrategia y el punto de reorden.
type ProductUseCase struct {
	repo repository.ProductRepository
}

// NewProductUseCase construye el caso de uso.
func NewProductUseCase(repo repository.ProductRepository) *ProductUseCase {
	return &ProductUseCase{repo: repo}
}

// Create registra un producto para el tenant. SKU repetido devuelve domain.ErrDuplicate.
func (uc *ProductUseCase) Create(ctx context.Context, tenantID string, in dto.CreateProductRequest) (*dto.ProductResponse, error) {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	if tenantID == "" || in.SKU == "" || in.Name == "" {
		return nil, fmt.Errorf("%w: sku y name son requeridos", domain.ErrInvalidInput)
	}
	strategy := strings.ToUpper(strings.TrimSpace(in.DeductionStrategy))
	switch strategy {
	case "", entity.StrategyFEFO, entity.StrategyFIFO, entity.StrategyLIFO:
	default:
		return nil, fmt.Errorf("%w: estrategia %q", domain.ErrInvalidInput, in.DeductionStrategy)
	}
	reorder := quantity.Zero
	if in.ReorderPoint != "" {
		q, err := quantity.Parse(in.ReorderPoint)
		if err != nil {
			return nil, err
		}
		if q.IsNegative() {
			return nil, fmt.Errorf("%w: punto de reorden negativo", domain.ErrInvalidQuantity)
		}
		reorder = q
	}

	now := time.Now().UTC()
	product := &entity.Product{
		ID:                uuid.New().String(),
		TenantID:          tenantID,
		SKU:               in.SKU,
		Name:              in.Name,
		LotTracked:        in.LotTracked,
		DeductionStrategy: strategy,
		ReorderPoint:      reorder,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := uc.repo.Create(ctx, product); err != nil {
		return nil, err
	}
	return toProductResponse(product), nil
}

// GetByID obtiene un producto del tenant; domain.ErrNotFound si no existe.
func (uc *ProductUseCase) GetByID(ctx context.Context, tenantID, id string) (*dto.ProductResponse, error) {
	product, err := uc.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return toProductResponse(product), nil
}

func toProductResponse(p *entity.Product) *dto.ProductResponse {
	return &dto.ProductResponse{
		ID:                p.ID,
		SKU:               p.SKU,
		Name:              p.Name,
		LotTracked:        p.LotTracked,
		DeductionStrategy: p.DeductionStrategy,
		ReorderPoint:      p.ReorderPoint,
		CreatedAt:         p.CreatedAt,
	}
}
