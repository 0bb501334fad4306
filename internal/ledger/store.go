package ledger

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/averden/stationledger/internal/domain/inventory"
	"github.com/averden/stationledger/internal/domain/loyalty"
	"github.com/averden/stationledger/internal/domain/sale"
)

// ErrVersionConflict is returned by a StoreTx when a guarded write lost
// a race: the row's version (or status) changed since it was read. The
// coordinator treats it as transient and retries the whole unit.
var ErrVersionConflict = errors.New("version conflict")

// ConcurrencyConflictError is surfaced after the bounded retries on
// ErrVersionConflict are exhausted.
type ConcurrencyConflictError struct {
	Attempts int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("commit conflicted with concurrent updates after %d attempts", e.Attempts)
}

// Store is the atomic unit-of-work boundary the coordinator runs
// against. Atomic executes fn inside one transaction: either every write
// fn performed is visible afterwards, or none is.
type Store interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error
}

// StoreTx exposes the per-entity primitives available inside one atomic
// unit. Save methods are version-guarded and return ErrVersionConflict
// on a lost update; UpdateTransactionStatus is guarded on the expected
// current status the same way.
type StoreTx interface {
	Tank(ctx context.Context, stationRef, fuelType string) (*inventory.FuelTank, error)
	SaveTank(ctx context.Context, tank *inventory.FuelTank) error

	Account(ctx context.Context, customerRef string) (*loyalty.Account, error)
	SaveAccount(ctx context.Context, account *loyalty.Account) error

	InsertTransaction(ctx context.Context, t *sale.Transaction) error
	GetTransaction(ctx context.Context, id string) (*sale.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, from, to sale.PaymentStatus) error
}
