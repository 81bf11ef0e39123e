package wallet

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/googlepaypasses/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const defaultCurrencyPlaces = 2

var (
	maxMicros = decimal.NewFromInt(math.MaxInt64)
	minMicros = decimal.NewFromInt(math.MinInt64)
)

// CurrencyPlaces returns the number of minor-unit digits of an ISO 4217 code.
func CurrencyPlaces(code string) int {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return defaultCurrencyPlaces
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

// Micros encodes price as price * 1000^places, truncated toward zero.
// The exponent scales with the currency's decimal places rather than being a fixed 10^6;
// passes issued so far carry amounts in this encoding.
// Amounts that do not fit an int64 are rejected with domain.ErrInvalidInput.
func Micros(price decimal.Decimal, places int) (int64, error) {
	scaled := price.Mul(decimal.New(1, int32(3*places))).Truncate(0)
	if scaled.GreaterThan(maxMicros) || scaled.LessThan(minMicros) {
		return 0, errors.Wrapf(domain.ErrInvalidInput, "price %s with %d places overflows micros", price, places)
	}
	return scaled.IntPart(), nil
}

// faceValue is nil when the price cannot be encoded; the pass is still issued without it.
func (b *Builder) faceValue(price decimal.Decimal, code string) *Money {
	micros, err := Micros(price, CurrencyPlaces(code))
	if err != nil {
		b.logger.WithField("currency", code).Warn("dropping face value: ", err)
		return nil
	}
	return &Money{Micros: micros, CurrencyCode: code}
}
