package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
)

// HeaderIdempotencyKey header con la llave de idempotencia del llamador.
const HeaderIdempotencyKey = "Idempotency-Key"

// StockLedger operaciones del libro que expone el handler. Lo implementa *inventory.Ledger.
type StockLedger interface {
	Execute(ctx context.Context, cmd inventory.Command) (*inventory.ExecuteResult, error)
	GetBalance(ctx context.Context, tenantID, warehouseID, productID string) (*inventory.BalanceView, error)
	ListTransactions(ctx context.Context, q inventory.TransactionQuery) ([]*entity.StockTransaction, error)
	GetLotBreakdown(ctx context.Context, tenantID, warehouseID, productID string) (*inventory.LotView, error)
}

// InventoryHandler maneja las peticiones HTTP del libro de stock (protegido).
type InventoryHandler struct {
	ledger StockLedger
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(ledger StockLedger) *InventoryHandler {
	return &InventoryHandler{ledger: ledger}
}

// ExecuteCommand godoc
// @Summary      Aplicar un comando de stock
// @Description  receive, adjust, transfer, ship, reserve o release. Con Idempotency-Key,
//
//	reenviar el mismo comando devuelve el resultado original (200, replayed=true).
//
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                   false  "llave de idempotencia"
// @Param        body             body    dto.StockCommandRequest  true   "comando"
// @Success      201  {object}  dto.CommandResponse
// @Success      200  {object}  dto.CommandResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      503  {object}  dto.ErrorResponse
// @Router       /api/inventory/commands [post]
func (h *InventoryHandler) ExecuteCommand(c *fiber.Ctx) error {
	tenantID := GetCompanyID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in dto.StockCommandRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	cmd, err := inventory.CommandInput{
		TenantID:          tenantID,
		UserID:            GetUserID(c),
		IdempotencyKey:    c.Get(HeaderIdempotencyKey),
		Type:              in.Type,
		ProductID:         in.ProductID,
		Quantity:          in.Quantity,
		WarehouseID:       in.WarehouseID,
		SourceWarehouseID: in.SourceWarehouseID,
		DestWarehouseID:   in.DestWarehouseID,
		AdjustmentType:    in.AdjustmentType,
		LotNumber:         in.LotNumber,
		ExpiryDate:        in.ExpiryDate,
		Reference:         in.Reference,
		ReservationRef:    in.ReservationRef,
	}.Build()
	if err != nil {
		return writeError(c, err)
	}

	res, err := h.ledger.Execute(c.UserContext(), cmd)
	if err != nil {
		return writeError(c, err)
	}

	out := dto.CommandResponse{
		CorrelationID: res.Transaction.CorrelationID,
		Replayed:      res.Replayed,
		Transactions:  toTransactionResponses(res.Transactions),
	}
	for _, b := range res.Balances {
		out.Balances = append(out.Balances, toBalanceResponse(b))
	}
	status := fiber.StatusCreated
	if res.Replayed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(out)
}

// GetBalance godoc
// @Summary      Saldo de un producto en una bodega
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        warehouse_id  path  string  true  "bodega"
// @Param        product_id    path  string  true  "producto"
// @Success      200  {object}  dto.BalanceResponse
// @Router       /api/inventory/balances/{warehouse_id}/{product_id} [get]
func (h *InventoryHandler) GetBalance(c *fiber.Ctx) error {
	tenantID := GetCompanyID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	b, err := h.ledger.GetBalance(c.UserContext(), tenantID, c.Params("warehouse_id"), c.Params("product_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBalanceResponse(*b))
}

// ListTransactions godoc
// @Summary      Historial de transacciones de un producto
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        product_id    query  string  true   "producto"
// @Param        warehouse_id  query  string  false  "bodega"
// @Param        since         query  string  false  "RFC3339"
// @Param        limit         query  int     false  "máximo de filas (0 = todas)"
// @Success      200  {object}  dto.TransactionListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/inventory/transactions [get]
func (h *InventoryHandler) ListTransactions(c *fiber.Ctx) error {
	tenantID := GetCompanyID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	q := inventory.TransactionQuery{
		TenantID:    tenantID,
		ProductID:   c.Query("product_id"),
		WarehouseID: c.Query("warehouse_id"),
		Limit:       c.QueryInt("limit", 0),
	}
	if s := c.Query("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return writeError(c, domain.ErrInvalidInput)
		}
		q.Since = &since
	}
	txs, err := h.ledger.ListTransactions(c.UserContext(), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.TransactionListResponse{Total: len(txs), Transactions: toTransactionResponses(txs)})
}

// GetLots godoc
// @Summary      Desglose de lotes en orden de descuento
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        warehouse_id  path  string  true  "bodega"
// @Param        product_id    path  string  true  "producto"
// @Success      200  {object}  dto.LotBreakdownResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/inventory/lots/{warehouse_id}/{product_id} [get]
func (h *InventoryHandler) GetLots(c *fiber.Ctx) error {
	tenantID := GetCompanyID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	v, err := h.ledger.GetLotBreakdown(c.UserContext(), tenantID, c.Params("warehouse_id"), c.Params("product_id"))
	if err != nil {
		return writeError(c, err)
	}
	out := dto.LotBreakdownResponse{
		WarehouseID: v.WarehouseID,
		ProductID:   v.ProductID,
		Strategy:    v.Strategy,
		Lots:        make([]dto.LotResponse, 0, len(v.Lots)),
		Total:       v.Total,
		OnHand:      v.OnHand,
		Consistent:  v.Consistent,
	}
	for _, l := range v.Lots {
		out.Lots = append(out.Lots, dto.LotResponse{
			LotNumber:  l.LotNumber,
			ExpiryDate: l.ExpiryDate,
			ReceivedAt: l.ReceivedAt,
			Quantity:   l.Quantity,
		})
	}
	return c.JSON(out)
}

func toBalanceResponse(b inventory.BalanceView) dto.BalanceResponse {
	out := dto.BalanceResponse{
		WarehouseID: b.WarehouseID,
		ProductID:   b.ProductID,
		OnHand:      b.OnHand,
		Reserved:    b.Reserved,
		Available:   b.Available,
	}
	if !b.UpdatedAt.IsZero() {
		t := b.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

func toTransactionResponses(txs []*entity.StockTransaction) []dto.TransactionResponse {
	out := make([]dto.TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		r := dto.TransactionResponse{
			ID:             tx.ID,
			CorrelationID:  tx.CorrelationID,
			WarehouseID:    tx.WarehouseID,
			ProductID:      tx.ProductID,
			Type:           string(tx.Type),
			Quantity:       tx.Quantity,
			Reference:      tx.Reference,
			Reason:         tx.Reason,
			IdempotencyKey: tx.IdempotencyKey,
			CreatedBy:      tx.CreatedBy,
			CreatedAt:      tx.CreatedAt,
		}
		for _, ref := range tx.LotRefs {
			r.LotRefs = append(r.LotRefs, dto.LotRefResponse{LotNumber: ref.LotNumber, Quantity: ref.Quantity})
		}
		out = append(out, r)
	}
	return out
}
