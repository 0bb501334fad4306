// Package loyalty holds the point-accrual policy and customer loyalty
// accounts.
package loyalty

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/averden/stationledger/internal/domain/money"
	"github.com/averden/stationledger/internal/domain/sale"
)

// ErrNotFound is returned when a customer has no loyalty account.
var ErrNotFound = errors.New("loyalty account not found")

// InsufficientBalanceError indicates a redemption larger than the
// account's balance. The balance is never driven negative.
type InsufficientBalanceError struct {
	CustomerRef string
	Balance     int64
	Requested   int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient loyalty balance for customer %s: have %d, need %d",
		e.CustomerRef, e.Balance, e.Requested)
}

// Rates maps a transaction kind to loyalty points earned per whole
// currency unit, floored. It satisfies sale.PointsPolicy so the rate
// table can change without touching the composer.
type Rates map[sale.Kind]int64

// DefaultRates is the standing accrual table.
func DefaultRates() Rates {
	return Rates{
		sale.KindFuel:    10,
		sale.KindProduct: 5,
		sale.KindService: 2,
	}
}

// PointsFor returns floor(total * rate) for the kind, or 0 for a kind
// without a configured rate.
func (r Rates) PointsFor(kind sale.Kind, total decimal.Decimal) int64 {
	rate, ok := r[kind]
	if !ok {
		return 0
	}
	return money.FloorUnits(total, rate)
}

// Account is a customer's loyalty point balance.
type Account struct {
	CustomerRef   string
	PointsBalance int64
	Version       int64
}

// Credit adds earned points to the balance.
func (a *Account) Credit(points int64) {
	if points > 0 {
		a.PointsBalance += points
	}
}

// Redeem removes points from the balance, failing if the account does
// not hold enough.
func (a *Account) Redeem(points int64) error {
	if points <= 0 {
		return nil
	}
	if points > a.PointsBalance {
		return &InsufficientBalanceError{
			CustomerRef: a.CustomerRef,
			Balance:     a.PointsBalance,
			Requested:   points,
		}
	}
	a.PointsBalance -= points
	return nil
}

// Reverse removes previously earned points on refund, clamping at zero.
// Unlike Redeem it never fails: points already spent elsewhere are gone.
func (a *Account) Reverse(points int64) {
	if points <= 0 {
		return
	}
	a.PointsBalance -= points
	if a.PointsBalance < 0 {
		a.PointsBalance = 0
	}
}

// Repository defines read operations for loyalty accounts. Mutations go
// through the ledger store so they stay atomic with the rest of a
// commit.
type Repository interface {
	GetByCustomer(ctx context.Context, customerRef string) (*Account, error)
}
