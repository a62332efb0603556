// Package uom converts and compares quantities expressed in units of measure.
package uom

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrCategoryMismatch indicates a conversion between unrelated units.
var ErrCategoryMismatch = errors.New("uom: units belong to different categories")

// ErrInvalidUnit indicates a unit without a usable ratio.
var ErrInvalidUnit = errors.New("uom: unit ratio must be positive")

// DefaultRounding is used when a unit carries no rounding step.
var DefaultRounding = decimal.New(1, -2)

// Unit represents a unit of measure. Ratio is the amount of the category's
// reference unit contained in one of this unit (Dozen = 12, Unit = 1).
type Unit struct {
	ID         int64
	Name       string
	CategoryID int64
	Ratio      decimal.Decimal
	Rounding   decimal.Decimal
}

// Step returns the rounding step of the unit.
func (u Unit) Step() decimal.Decimal {
	if u.Rounding.Sign() <= 0 {
		return DefaultRounding
	}
	return u.Rounding
}

// Round rounds value half-up to a multiple of rounding.
func Round(value, rounding decimal.Decimal) decimal.Decimal {
	if rounding.Sign() <= 0 {
		return value
	}
	return value.Div(rounding).Round(0).Mul(rounding)
}

// RoundUp rounds value away from zero to a multiple of rounding.
func RoundUp(value, rounding decimal.Decimal) decimal.Decimal {
	if rounding.Sign() <= 0 {
		return value
	}
	steps := value.Abs().Div(rounding).Ceil()
	rounded := steps.Mul(rounding)
	if value.Sign() < 0 {
		return rounded.Neg()
	}
	return rounded
}

// IsZero reports whether value rounds to zero at the given precision.
func IsZero(value, rounding decimal.Decimal) bool {
	return Round(value, rounding).IsZero()
}

// Compare returns -1, 0 or 1. Values whose difference rounds to zero at the
// given precision compare equal.
func Compare(a, b, rounding decimal.Decimal) int {
	delta := a.Sub(b)
	if IsZero(delta, rounding) {
		return 0
	}
	return delta.Sign()
}

// Convert expresses qty, given in from, in the to unit, rounded up at the
// precision of the target unit.
func Convert(qty decimal.Decimal, from, to Unit) (decimal.Decimal, error) {
	if from.ID != 0 && from.ID == to.ID {
		return qty, nil
	}
	if from.CategoryID != to.CategoryID {
		return decimal.Zero, fmt.Errorf("%w: %s -> %s", ErrCategoryMismatch, from.Name, to.Name)
	}
	if from.Ratio.Sign() <= 0 || to.Ratio.Sign() <= 0 {
		return decimal.Zero, ErrInvalidUnit
	}
	amount := qty.Mul(from.Ratio).Div(to.Ratio)
	return RoundUp(amount, to.Step()), nil
}
