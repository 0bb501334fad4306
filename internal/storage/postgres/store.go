package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/averden/stationledger/internal/domain/inventory"
	"github.com/averden/stationledger/internal/domain/loyalty"
	"github.com/averden/stationledger/internal/domain/sale"
	"github.com/averden/stationledger/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// Store implements ledger.Store on PostgreSQL: each Atomic call runs in
// one database transaction, so a failed commit leaves no partial state.
// Reads inside the unit take row locks (FOR UPDATE) and writes carry a
// version guard, so concurrent commits against the same tank or account
// serialize instead of losing updates.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Atomic executes fn inside a database transaction, committing on nil
// and rolling back on error.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledger.StoreTx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &storeTx{tx: tx})
	})
}

type storeTx struct {
	tx pgx.Tx
}

func (s *storeTx) Tank(ctx context.Context, stationRef, fuelType string) (*inventory.FuelTank, error) {
	return getTank(ctx, s.tx, getTankForUpdateSQL, stationRef, fuelType)
}

func (s *storeTx) SaveTank(ctx context.Context, tank *inventory.FuelTank) error {
	tag, err := s.tx.Exec(ctx, updateTankSQL,
		tank.StationRef, tank.FuelType, tank.Version, tank.CurrentLevel)
	if err != nil {
		return fmt.Errorf("saving %s tank at station %q: %w", tank.FuelType, tank.StationRef, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrVersionConflict
	}
	tank.Version++
	return nil
}

func (s *storeTx) Account(ctx context.Context, customerRef string) (*loyalty.Account, error) {
	return getAccount(ctx, s.tx, getAccountForUpdateSQL, customerRef)
}

func (s *storeTx) SaveAccount(ctx context.Context, account *loyalty.Account) error {
	tag, err := s.tx.Exec(ctx, updateAccountSQL,
		account.CustomerRef, account.Version, account.PointsBalance)
	if err != nil {
		return fmt.Errorf("saving account for customer %q: %w", account.CustomerRef, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrVersionConflict
	}
	account.Version++
	return nil
}

func (s *storeTx) InsertTransaction(ctx context.Context, t *sale.Transaction) error {
	return insertTransaction(ctx, s.tx, t)
}

func (s *storeTx) GetTransaction(ctx context.Context, id string) (*sale.Transaction, error) {
	return getTransaction(ctx, s.tx, id)
}

func (s *storeTx) UpdateTransactionStatus(ctx context.Context, id string, from, to sale.PaymentStatus) error {
	tag, err := s.tx.Exec(ctx, updateTransactionStatusSQL, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("updating status of transaction %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or the status moved underneath us;
		// the coordinator re-reads on retry and reports precisely.
		return ledger.ErrVersionConflict
	}
	return nil
}
