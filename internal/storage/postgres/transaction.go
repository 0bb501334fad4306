package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/averden/stationledger/internal/domain/sale"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// SQL helpers serve the standalone repositories and the atomic store.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	insertTransactionSQL = `INSERT INTO transactions
		(id, kind, items, date, subtotal, tax, total, payment_method, payment_status,
		 loyalty_points_earned, loyalty_points_redeemed, customer_ref, employee_ref, station_ref, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	selectTransactionSQL = `SELECT id, kind, items, date, subtotal, tax, total, payment_method, payment_status,
		 loyalty_points_earned, loyalty_points_redeemed, customer_ref, employee_ref, station_ref, notes
		FROM transactions`

	getTransactionByIDSQL = selectTransactionSQL + ` WHERE id = $1`

	listTransactionsByCustomerSQL = selectTransactionSQL + ` WHERE customer_ref = $1 ORDER BY date DESC`

	updateTransactionStatusSQL = `UPDATE transactions SET payment_status = $3
		WHERE id = $1 AND payment_status = $2`
)

var _ sale.Repository = (*TransactionRepository)(nil)

// TransactionRepository implements sale.Repository backed by PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository returns a TransactionRepository that uses the
// given pool.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Create persists a new transaction. Line items are serialized to JSON
// for storage in the JSONB column.
func (r *TransactionRepository) Create(ctx context.Context, t *sale.Transaction) error {
	return insertTransaction(ctx, r.pool, t)
}

// GetByID returns a single transaction by its identifier.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*sale.Transaction, error) {
	return getTransaction(ctx, r.pool, id)
}

// ListByCustomer returns the customer's transactions, newest first.
func (r *TransactionRepository) ListByCustomer(ctx context.Context, customerRef string) ([]sale.Transaction, error) {
	rows, err := r.pool.Query(ctx, listTransactionsByCustomerSQL, customerRef)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for customer %q: %w", customerRef, err)
	}
	return pgx.CollectRows(rows, scanTransaction)
}

func insertTransaction(ctx context.Context, q querier, t *sale.Transaction) error {
	itemsJSON, err := json.Marshal(t.Items)
	if err != nil {
		return fmt.Errorf("marshaling transaction items: %w", err)
	}

	_, err = q.Exec(ctx, insertTransactionSQL,
		t.ID, string(t.Kind), itemsJSON, t.Date, t.Subtotal, t.Tax, t.Total,
		string(t.PaymentMethod), string(t.PaymentStatus),
		t.LoyaltyPointsEarned, t.LoyaltyPointsRedeemed,
		t.CustomerRef, t.EmployeeRef, t.StationRef, t.Notes,
	)
	if err != nil {
		return fmt.Errorf("creating transaction %q: %w", t.ID, err)
	}
	return nil
}

func getTransaction(ctx context.Context, q querier, id string) (*sale.Transaction, error) {
	rows, err := q.Query(ctx, getTransactionByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting transaction %q: %w", id, err)
	}

	t, err := pgx.CollectExactlyOneRow(rows, scanTransaction)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sale.ErrNotFound
		}
		return nil, fmt.Errorf("getting transaction %q: %w", id, err)
	}
	return &t, nil
}

func scanTransaction(row pgx.CollectableRow) (sale.Transaction, error) {
	var (
		t         sale.Transaction
		kind      string
		method    string
		status    string
		itemsJSON []byte
	)
	err := row.Scan(
		&t.ID, &kind, &itemsJSON, &t.Date, &t.Subtotal, &t.Tax, &t.Total,
		&method, &status,
		&t.LoyaltyPointsEarned, &t.LoyaltyPointsRedeemed,
		&t.CustomerRef, &t.EmployeeRef, &t.StationRef, &t.Notes,
	)
	if err != nil {
		return sale.Transaction{}, err
	}
	if err := json.Unmarshal(itemsJSON, &t.Items); err != nil {
		return sale.Transaction{}, fmt.Errorf("unmarshaling transaction items: %w", err)
	}
	t.Kind = sale.Kind(kind)
	t.PaymentMethod = sale.PaymentMethod(method)
	t.PaymentStatus = sale.PaymentStatus(status)
	return t, nil
}
