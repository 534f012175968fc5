// Package quantity implementa la cantidad de inventario de escala fija (4 decimales).
// Toda la aritmética es exacta sobre shopspring/decimal; nunca pasa por float64.
package quantity

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
)

// Scale número de decimales con que se almacena y compara toda cantidad.
const Scale int32 = 4

// MaxIntegerDigits dígitos enteros que caben en NUMERIC(18,4).
const MaxIntegerDigits int32 = 18 - Scale

// limit primer valor que ya no cabe: 10^MaxIntegerDigits.
var limit = decimal.New(1, MaxIntegerDigits)

// Quantity valor inmutable de escala fija. El valor cero es una cantidad válida (0.0000).
type Quantity struct {
	d decimal.Decimal
}

// Zero cantidad nula.
var Zero = Quantity{}

// Parse construye una cantidad desde un string numérico.
// Rechaza con ErrInvalidQuantity lo que no es número o tiene más de 4 decimales significativos:
// redondear aquí escondería una diferencia real.
func Parse(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("%w: vacía", domain.ErrInvalidQuantity)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", domain.ErrInvalidQuantity, s)
	}
	return FromDecimal(d)
}

// MustParse como Parse pero hace panic; solo para constantes y tests.
func MustParse(s string) Quantity {
	q, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return q
}

// FromDecimal valida que d quepa en la escala fija y en el rango persistible.
func FromDecimal(d decimal.Decimal) (Quantity, error) {
	if !d.Round(Scale).Equal(d) {
		return Zero, fmt.Errorf("%w: %s excede %d decimales", domain.ErrInvalidQuantity, d.String(), Scale)
	}
	q := Quantity{d: d.Round(Scale)}
	if !q.InRange() {
		return Zero, fmt.Errorf("%w: %s excede %d dígitos enteros", domain.ErrInvalidQuantity, d.String(), MaxIntegerDigits)
	}
	return q, nil
}

// InRange reporta si q cabe en NUMERIC(18,4). Las sumas no lo garantizan por sí solas.
func (q Quantity) InRange() bool {
	return q.d.Abs().LessThan(limit)
}

// FromInt cantidad entera.
func FromInt(n int64) Quantity {
	return Quantity{d: decimal.NewFromInt(n)}
}

// Decimal devuelve el valor subyacente (para persistencia NUMERIC).
func (q Quantity) Decimal() decimal.Decimal { return q.d }

func (q Quantity) Add(o Quantity) Quantity { return Quantity{d: q.d.Add(o.d)} }
func (q Quantity) Sub(o Quantity) Quantity { return Quantity{d: q.d.Sub(o.d)} }

// Mul multiplica y redondea a la escala fija (mitad lejos de cero).
func (q Quantity) Mul(o Quantity) Quantity { return Quantity{d: q.d.Mul(o.d).Round(Scale)} }

// Div divide y redondea a la escala fija. Dividir por cero es ErrInvalidQuantity.
func (q Quantity) Div(o Quantity) (Quantity, error) {
	if o.d.IsZero() {
		return Zero, fmt.Errorf("%w: división por cero", domain.ErrInvalidQuantity)
	}
	return Quantity{d: q.d.DivRound(o.d, Scale)}, nil
}

func (q Quantity) Neg() Quantity { return Quantity{d: q.d.Neg()} }

func (q Quantity) IsZero() bool     { return q.d.IsZero() }
func (q Quantity) IsNegative() bool { return q.d.Sign() < 0 }
func (q Quantity) IsPositive() bool { return q.d.Sign() > 0 }

func (q Quantity) Cmp(o Quantity) int                 { return q.d.Cmp(o.d) }
func (q Quantity) Equal(o Quantity) bool              { return q.d.Equal(o.d) }
func (q Quantity) GreaterThan(o Quantity) bool        { return q.d.GreaterThan(o.d) }
func (q Quantity) GreaterThanOrEqual(o Quantity) bool { return q.d.GreaterThanOrEqual(o.d) }
func (q Quantity) LessThan(o Quantity) bool           { return q.d.LessThan(o.d) }

// String representación con exactamente 4 decimales ("12.5000").
func (q Quantity) String() string { return q.d.StringFixed(Scale) }

// Min el menor de a y b.
func Min(a, b Quantity) Quantity {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Sum suma todas las cantidades.
func Sum(qs ...Quantity) Quantity {
	total := Zero
	for _, q := range qs {
		total = total.Add(q)
	}
	return total
}

// MarshalJSON serializa como string para no perder precisión en clientes JS.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + q.String() + `"`), nil
}

// UnmarshalJSON acepta string o número JSON.
func (q *Quantity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*q = Zero
		return nil
	}
	parsed, err := Parse(string(bytes.Trim(b, `"`)))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
