package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain/quantity"
)

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return strings.Contains(err.Error(), "23505")
}

// isLockTimeout lock_timeout vencido (55P03) o deadlock detectado (40P01). Ambos se reportan
// como ErrLockTimeout: el llamador puede reintentar.
func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "55P03" || pgErr.Code == "40P01"
	}
	return false
}

// toQuantity NUMERIC(18,4) leído como decimal.
func toQuantity(d decimal.Decimal) (quantity.Quantity, error) {
	return quantity.FromDecimal(d)
}
