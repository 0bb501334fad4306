package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/averden/stationledger/internal/domain/loyalty"
)

const (
	getAccountSQL = `SELECT customer_ref, points_balance, version
		FROM loyalty_accounts WHERE customer_ref = $1`

	getAccountForUpdateSQL = getAccountSQL + ` FOR UPDATE`

	upsertAccountSQL = `INSERT INTO loyalty_accounts (customer_ref, points_balance)
		VALUES ($1, $2)
		ON CONFLICT (customer_ref) DO NOTHING`

	updateAccountSQL = `UPDATE loyalty_accounts SET points_balance = $3, version = version + 1
		WHERE customer_ref = $1 AND version = $2`
)

var _ loyalty.Repository = (*AccountRepository)(nil)

// AccountRepository implements loyalty.Repository backed by PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns an AccountRepository that uses the given
// pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// GetByCustomer returns the loyalty account for a customer.
func (r *AccountRepository) GetByCustomer(ctx context.Context, customerRef string) (*loyalty.Account, error) {
	return getAccount(ctx, r.pool, getAccountSQL, customerRef)
}

// Enroll creates an empty account for the customer if none exists.
func (r *AccountRepository) Enroll(ctx context.Context, customerRef string) error {
	_, err := r.pool.Exec(ctx, upsertAccountSQL, customerRef, 0)
	if err != nil {
		return fmt.Errorf("enrolling customer %q: %w", customerRef, err)
	}
	return nil
}

func getAccount(ctx context.Context, q querier, sql, customerRef string) (*loyalty.Account, error) {
	rows, err := q.Query(ctx, sql, customerRef)
	if err != nil {
		return nil, fmt.Errorf("getting account for customer %q: %w", customerRef, err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAccount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loyalty.ErrNotFound
		}
		return nil, fmt.Errorf("getting account for customer %q: %w", customerRef, err)
	}
	return &a, nil
}

func scanAccount(row pgx.CollectableRow) (loyalty.Account, error) {
	var a loyalty.Account
	err := row.Scan(&a.CustomerRef, &a.PointsBalance, &a.Version)
	return a, err
}
