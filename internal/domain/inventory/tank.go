// Package inventory models the physical fuel tanks a station draws from.
package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a station has no tank for a fuel type.
var ErrNotFound = errors.New("fuel tank not found")

// InsufficientInventoryError indicates a dispense larger than the tank's
// current level. The level is checked, never clamped.
type InsufficientInventoryError struct {
	StationRef string
	FuelType   string
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient %s fuel at station %s: have %s, need %s",
		e.FuelType, e.StationRef, e.Available, e.Requested)
}

// FuelTank is one station tank. Invariant: 0 <= CurrentLevel <= Capacity.
// Version supports optimistic concurrency on saves.
type FuelTank struct {
	StationRef   string
	FuelType     string
	CurrentLevel decimal.Decimal
	Capacity     decimal.Decimal
	MinimumLevel decimal.Decimal
	Version      int64
}

// Dispense removes qty from the tank, failing when the level does not
// cover it.
func (t *FuelTank) Dispense(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return errors.Errorf("dispense quantity must be positive, got %s", qty)
	}
	if qty.GreaterThan(t.CurrentLevel) {
		return &InsufficientInventoryError{
			StationRef: t.StationRef,
			FuelType:   t.FuelType,
			Requested:  qty,
			Available:  t.CurrentLevel,
		}
	}
	t.CurrentLevel = t.CurrentLevel.Sub(qty)
	return nil
}

// Refill adds qty to the tank, failing when it would exceed capacity.
func (t *FuelTank) Refill(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return errors.Errorf("refill quantity must be positive, got %s", qty)
	}
	next := t.CurrentLevel.Add(qty)
	if next.GreaterThan(t.Capacity) {
		return errors.Errorf("refill of %s would exceed capacity %s of %s tank at station %s",
			qty, t.Capacity, t.FuelType, t.StationRef)
	}
	t.CurrentLevel = next
	return nil
}

// BelowMinimum reports whether the tank has dropped under its reorder
// threshold.
func (t *FuelTank) BelowMinimum() bool {
	return t.CurrentLevel.LessThan(t.MinimumLevel)
}

// Repository defines read operations for fuel tanks. Dispensing happens
// through the ledger store so it stays atomic with the commit.
type Repository interface {
	GetByFuelType(ctx context.Context, stationRef, fuelType string) (*FuelTank, error)
	ListByStation(ctx context.Context, stationRef string) ([]FuelTank, error)
}
