// Package ledger applies a composed transaction's side effects — tank
// levels, loyalty balances, the persisted record — as one atomic unit.
package ledger

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/averden/stationledger/internal/domain/sale"
)

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 25 * time.Millisecond
)

// Coordinator commits transactions and drives the payment lifecycle.
// Every mutating operation runs inside a single Store unit of work and
// is retried a bounded number of times on version conflicts.
type Coordinator struct {
	store       Store
	maxAttempts int
	backoff     time.Duration
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxAttempts sets how many times a conflicting unit of work is
// tried before ConcurrencyConflictError is surfaced.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between conflict retries. The delay
// grows linearly with the attempt number.
func WithBackoff(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// WithTracerProvider sets the tracer provider used for commit spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) {
		c.tracer = tp.Tracer("stationledger/ledger")
	}
}

// NewCoordinator creates a Coordinator over the given store.
func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		tracer:      otel.Tracer("stationledger/ledger"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commit validates t, applies its side effects and persists it, all or
// nothing:
//
//  1. Each fuel item is dispensed from its station tank; a short level
//     fails the whole commit with InsufficientInventoryError, it never
//     clamps.
//  2. Earned points are credited to the customer account, then redeemed
//     points are debited; overdrawing fails with
//     InsufficientBalanceError.
//  3. The record is inserted only after 1–2 succeed.
//
// If any step fails no partial state survives. On a version conflict
// the whole unit is retried with backoff up to the attempt limit, then
// ConcurrencyConflictError is returned. The returned transaction has its
// ID, date and default status filled in.
func (c *Coordinator) Commit(ctx context.Context, t *sale.Transaction) (*sale.Transaction, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.Commit")
	defer span.End()

	if t == nil {
		return nil, errors.New("nil transaction")
	}

	committed := *t
	if committed.ID == "" {
		committed.ID = uuid.New().String()
	}
	if committed.Date.IsZero() {
		committed.Date = c.now()
	}
	if committed.PaymentStatus == "" {
		committed.PaymentStatus = sale.StatusPending
	}
	if err := committed.Validate(); err != nil {
		return nil, err
	}

	err := c.withRetry(ctx, func(ctx context.Context, tx StoreTx) error {
		return c.apply(ctx, tx, &committed)
	})
	if err != nil {
		return nil, err
	}
	return &committed, nil
}

// apply performs the commit steps inside one unit of work.
func (c *Coordinator) apply(ctx context.Context, tx StoreTx, t *sale.Transaction) error {
	if t.Kind == sale.KindFuel {
		if err := c.dispenseFuel(ctx, tx, t); err != nil {
			return err
		}
	}

	if t.CustomerRef != "" && (t.LoyaltyPointsEarned > 0 || t.LoyaltyPointsRedeemed > 0) {
		account, err := tx.Account(ctx, t.CustomerRef)
		if err != nil {
			return errors.Wrapf(err, "load account %s", t.CustomerRef)
		}
		// Credit before redeem: points earned on this sale may pay
		// for part of it.
		account.Credit(t.LoyaltyPointsEarned)
		if err := account.Redeem(t.LoyaltyPointsRedeemed); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, account); err != nil {
			return errors.Wrapf(err, "save account %s", t.CustomerRef)
		}
	}

	if err := tx.InsertTransaction(ctx, t); err != nil {
		return errors.Wrapf(err, "insert transaction %s", t.ID)
	}
	return nil
}

func (c *Coordinator) dispenseFuel(ctx context.Context, tx StoreTx, t *sale.Transaction) error {
	for _, item := range t.Items {
		tank, err := tx.Tank(ctx, t.StationRef, item.FuelType)
		if err != nil {
			return errors.Wrapf(err, "load %s tank at station %s", item.FuelType, t.StationRef)
		}
		if err := tank.Dispense(item.Quantity); err != nil {
			return err
		}
		if err := tx.SaveTank(ctx, tank); err != nil {
			return errors.Wrapf(err, "save %s tank at station %s", item.FuelType, t.StationRef)
		}
		if tank.BelowMinimum() {
			zctx.From(ctx).Warn("fuel tank below minimum level",
				zap.String("station_ref", tank.StationRef),
				zap.String("fuel_type", tank.FuelType),
				zap.String("current_level", tank.CurrentLevel.String()),
				zap.String("minimum_level", tank.MinimumLevel.String()),
			)
		}
	}
	return nil
}

// MarkPaid moves a pending transaction to paid.
func (c *Coordinator) MarkPaid(ctx context.Context, id string) (*sale.Transaction, error) {
	return c.transition(ctx, "ledger.MarkPaid", id, (*sale.Transaction).MarkPaid, nil)
}

// MarkFailed moves a pending transaction to failed.
func (c *Coordinator) MarkFailed(ctx context.Context, id string) (*sale.Transaction, error) {
	return c.transition(ctx, "ledger.MarkFailed", id, (*sale.Transaction).MarkFailed, nil)
}

// Refund moves a paid transaction to refunded and reverses the loyalty
// points it earned, clamped at zero. Fuel already dispensed is not
// returned to the tank: the product left the premises, so a refund is a
// purely financial event. That asymmetry is a business rule, not an
// oversight.
func (c *Coordinator) Refund(ctx context.Context, id string) (*sale.Transaction, error) {
	return c.transition(ctx, "ledger.Refund", id, (*sale.Transaction).MarkRefunded, c.reverseLoyalty)
}

func (c *Coordinator) reverseLoyalty(ctx context.Context, tx StoreTx, t *sale.Transaction) error {
	if t.CustomerRef == "" || t.LoyaltyPointsEarned <= 0 {
		return nil
	}
	account, err := tx.Account(ctx, t.CustomerRef)
	if err != nil {
		return errors.Wrapf(err, "load account %s", t.CustomerRef)
	}
	account.Reverse(t.LoyaltyPointsEarned)
	if err := tx.SaveAccount(ctx, account); err != nil {
		return errors.Wrapf(err, "save account %s", t.CustomerRef)
	}
	return nil
}

// transition loads the transaction, applies the pure state move, then
// runs the optional side effect and the guarded status update in the
// same unit of work.
func (c *Coordinator) transition(
	ctx context.Context,
	spanName, id string,
	move func(*sale.Transaction) error,
	sideEffect func(context.Context, StoreTx, *sale.Transaction) error,
) (*sale.Transaction, error) {
	ctx, span := c.tracer.Start(ctx, spanName)
	defer span.End()

	var result *sale.Transaction
	err := c.withRetry(ctx, func(ctx context.Context, tx StoreTx) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		from := t.PaymentStatus
		if err := move(t); err != nil {
			return err
		}
		if sideEffect != nil {
			if err := sideEffect(ctx, tx, t); err != nil {
				return err
			}
		}
		if err := tx.UpdateTransactionStatus(ctx, id, from, t.PaymentStatus); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// withRetry runs fn in an atomic unit, retrying on version conflicts
// with linear backoff until the attempt limit.
func (c *Coordinator) withRetry(ctx context.Context, fn func(context.Context, StoreTx) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = c.store.Atomic(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrVersionConflict) {
			return lastErr
		}
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return &ConcurrencyConflictError{Attempts: c.maxAttempts}
}
