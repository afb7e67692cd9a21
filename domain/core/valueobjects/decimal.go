package valueobjects

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// decimalPrecision is the working precision for every arithmetic operation.
const decimalPrecision = 34

// ErrDivisionByZero is returned by Div when the divisor is zero
var ErrDivisionByZero = errors.New("division by zero")

// Decimal is an immutable arbitrary-precision decimal.
// Every operation returns a fresh value and never mutates its receiver.
type Decimal struct {
	value apd.Decimal
}

// NewDecimal parses a decimal string such as "1200" or "12.5"
func NewDecimal(s string) (Decimal, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(strings.TrimSpace(s)); err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Decimal{}, fmt.Errorf("invalid decimal %q: not finite", s)
	}
	return Decimal{value: d}, nil
}

// MustDecimal is NewDecimal for literals known to be valid. It panics otherwise.
func MustDecimal(s string) Decimal {
	d, err := NewDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NewDecimalFromInt64 creates a Decimal from an integer
func NewDecimalFromInt64(i int64) Decimal {
	var d apd.Decimal
	d.SetInt64(i)
	return Decimal{value: d}
}

// Zero returns the zero decimal
func Zero() Decimal {
	return NewDecimalFromInt64(0)
}

// String renders the decimal in plain (non-exponent) notation
func (d Decimal) String() string {
	return d.value.Text('f')
}

// IsZero reports whether the value equals zero
func (d Decimal) IsZero() bool {
	return d.value.IsZero()
}

// Sign returns -1, 0 or +1
func (d Decimal) Sign() int {
	return d.value.Sign()
}

// Cmp compares d and other numerically
func (d Decimal) Cmp(other Decimal) int {
	return d.value.Cmp(&other.value)
}

// Equal reports numeric equality, so 4 equals 4.00
func (d Decimal) Equal(other Decimal) bool {
	return d.Cmp(other) == 0
}

// Add returns the sum of d and other.
func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(decimalPrecision)
	ctx.Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Mul returns the product of d and other.
func (d Decimal) Mul(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(decimalPrecision)
	ctx.Mul(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Div returns the quotient of d divided by other.
func (d Decimal) Div(other Decimal) (Decimal, error) {
	if other.IsZero() {
		return Decimal{}, ErrDivisionByZero
	}
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(decimalPrecision)
	if _, err := ctx.Quo(&result, &d.value, &other.value); err != nil {
		return Decimal{}, err
	}
	return Decimal{value: result}, nil
}

// Round rounds half-up to the given number of fractional digits
func (d Decimal) Round(places int32) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(decimalPrecision)
	ctx.Rounding = apd.RoundHalfUp
	ctx.Quantize(&result, &d.value, -places)
	return Decimal{value: result}
}

// Float64 is a lossy conversion used for metrics and threshold filters
func (d Decimal) Float64() float64 {
	f, err := d.value.Float64()
	if err != nil {
		return 0
	}
	return f
}

// MarshalJSON renders the decimal as a JSON string to keep full precision
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare JSON numbers
func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*d = Decimal{}
		return nil
	}
	parsed, err := NewDecimal(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
