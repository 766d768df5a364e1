// Package units converts between human quantities and the integer base
// units stored in the ledger, and between currency and minor units.
//
// Every conversion rounds half away from zero.
package units

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"magazin/backend/internal/domain"
)

var (
	ErrInvalidUnit     = errors.New("invalid unit")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

var (
	thousand = decimal.NewFromInt(1000)
	hundred  = decimal.NewFromInt(100)
)

// ParseUnit accepts canonical unit names and the short labels used on
// shelf tags.
func ParseUnit(raw string) (domain.Unit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "piece", "buc", "pcs":
		return domain.UnitPiece, nil
	case "kilogram", "kg":
		return domain.UnitKilogram, nil
	case "liter", "litre", "l":
		return domain.UnitLiter, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidUnit, raw)
}

// Factor is the number of base units in one human unit.
func Factor(unit domain.Unit) (int64, error) {
	switch unit {
	case domain.UnitPiece:
		return 1, nil
	case domain.UnitKilogram, domain.UnitLiter:
		return 1000, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, unit)
}

func ToBase(unit domain.Unit, human float64) (int64, error) {
	factor, err := Factor(unit)
	if err != nil {
		return 0, err
	}
	d, err := fromFloat(human)
	if err != nil {
		return 0, err
	}
	return d.Mul(decimal.NewFromInt(factor)).Round(0).IntPart(), nil
}

func FromBase(unit domain.Unit, base int64) (float64, error) {
	factor, err := Factor(unit)
	if err != nil {
		return 0, err
	}
	if factor == 1 {
		return float64(base), nil
	}
	f, _ := decimal.NewFromInt(base).Div(thousand).Float64()
	return f, nil
}

// IsWhole reports whether human is an integral amount. Piece products
// can only be sold in whole pieces.
func IsWhole(human float64) bool {
	return !math.IsNaN(human) && !math.IsInf(human, 0) && human == math.Trunc(human)
}

func CurrencyToMinor(amount float64) (int64, error) {
	d, err := fromFloat(amount)
	if err != nil {
		return 0, err
	}
	return d.Mul(hundred).Round(0).IntPart(), nil
}

func MinorToCurrency(minor int64) float64 {
	f, _ := decimal.NewFromInt(minor).Div(hundred).Float64()
	return f
}

// BaseUnitPrice converts a price per human unit into a price per base unit.
func BaseUnitPrice(unit domain.Unit, pricePerUnitCents int64) (int64, error) {
	factor, err := Factor(unit)
	if err != nil {
		return 0, err
	}
	if factor == 1 {
		return pricePerUnitCents, nil
	}
	return decimal.NewFromInt(pricePerUnitCents).Div(decimal.NewFromInt(factor)).Round(0).IntPart(), nil
}

// Amount prices qtyBase base units at pricePerUnitCents per human unit.
// It is used for receipt line totals and for stock-in cost values.
func Amount(unit domain.Unit, qtyBase int64, pricePerUnitCents int64) (int64, error) {
	factor, err := Factor(unit)
	if err != nil {
		return 0, err
	}
	return decimal.NewFromInt(qtyBase).
		Mul(decimal.NewFromInt(pricePerUnitCents)).
		Div(decimal.NewFromInt(factor)).
		Round(0).
		IntPart(), nil
}

func fromFloat(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidQuantity, v)
	}
	return decimal.NewFromFloat(v), nil
}
