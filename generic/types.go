/*
Package generic provides the shared primitives of the absence engine.

PURPOSE:
  This package contains domain-agnostic types used by every other package:
  identifiers, quantities, date windows and the error taxonomy. It has no
  knowledge of rules, departments or approval steps.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 25 days of paid leave)
  - Identifiers: Type-safe IDs for users, rights, departments, requests

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing user/department IDs

USAGE:
  quantity := generic.NewAmountFromInt(25, generic.UnitDays)
  right := absence.Right{ID: "annual", Quantity: quantity}

SEE ALSO:
  - period.go: Date windows and annual cycles
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays  Unit = "days"
	UnitHours Unit = "hours"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

// ParseAmount parses a decimal string such as "12.5".
func ParseAmount(s string, unit Unit) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d, Unit: unit}, nil
}

func (a Amount) IsZero() bool     { return a.Value.IsZero() }
func (a Amount) IsNegative() bool { return a.Value.IsNegative() }
func (a Amount) String() string   { return a.Value.String() + " " + string(a.Unit) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type RightID string
type DepartmentID string
type CollectionID string
type RequestID string
type StepID string
