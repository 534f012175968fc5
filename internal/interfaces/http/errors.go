package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
)

// statusByCode estado HTTP por código estable del libro.
var statusByCode = map[string]int{
	"invalid_input":               fiber.StatusBadRequest,
	"invalid_quantity":            fiber.StatusBadRequest,
	"not_found":                   fiber.StatusNotFound,
	"duplicate":                   fiber.StatusConflict,
	"insufficient_stock":          fiber.StatusConflict,
	"insufficient_lot_stock":      fiber.StatusConflict,
	"lot_balance_mismatch":        fiber.StatusConflict,
	"idempotency_in_progress":     fiber.StatusConflict,
	"lock_timeout":                fiber.StatusServiceUnavailable,
	"storage_failure":             fiber.StatusServiceUnavailable,
	"unauthorized":                fiber.StatusUnauthorized,
	"balance_invariant_violation": fiber.StatusInternalServerError,
}

// writeError traduce un error del libro a la respuesta HTTP. Los reintentables llevan Retry-After.
func writeError(c *fiber.Ctx, err error) error {
	code := inventory.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = fiber.StatusInternalServerError
	}
	if domain.IsRetryable(err) {
		c.Set(fiber.HeaderRetryAfter, "1")
	}

	body := dto.ErrorResponse{Code: strings.ToUpper(code), Message: err.Error(), Details: errorDetails(err)}
	if status >= fiber.StatusInternalServerError {
		// No se filtran detalles de almacenamiento al cliente.
		body.Message = "error interno"
	}
	return c.Status(status).JSON(body)
}

func errorDetails(err error) map[string]string {
	var stock *domain.InsufficientStockError
	if errors.As(err, &stock) {
		return map[string]string{
			"warehouse_id": stock.WarehouseID,
			"product_id":   stock.ProductID,
			"requested":    stock.Requested,
			"available":    stock.Available,
		}
	}
	var lots *domain.InsufficientLotStockError
	if errors.As(err, &lots) {
		return map[string]string{"requested": lots.Requested, "available": lots.Available}
	}
	var mismatch *domain.LotBalanceMismatchError
	if errors.As(err, &mismatch) {
		return map[string]string{
			"warehouse_id": mismatch.WarehouseID,
			"product_id":   mismatch.ProductID,
			"on_hand":      mismatch.OnHand,
			"lot_total":    mismatch.LotTotal,
		}
	}
	return nil
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token sin tenant"})
}
