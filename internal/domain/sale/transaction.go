package sale

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a transaction's payment.
type PaymentStatus string

const (
	StatusPending  PaymentStatus = "pending"
	StatusPaid     PaymentStatus = "paid"
	StatusFailed   PaymentStatus = "failed"
	StatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod is an opaque label for how the customer paid.
type PaymentMethod string

const (
	MethodCash          PaymentMethod = "cash"
	MethodCard          PaymentMethod = "card"
	MethodMobile        PaymentMethod = "mobile"
	MethodLoyaltyPoints PaymentMethod = "loyalty_points"
)

// Transaction is one persisted sale: fuel dispensed, retail products, or
// a service. Customer, employee and station are weak references (ids
// resolved through their own repositories), never owning pointers —
// those entities live and die independently of the ledger.
type Transaction struct {
	ID                    string
	Kind                  Kind
	Items                 []LineItem
	Date                  time.Time
	Subtotal              decimal.Decimal
	Tax                   decimal.Decimal
	Total                 decimal.Decimal
	PaymentMethod         PaymentMethod
	PaymentStatus         PaymentStatus
	LoyaltyPointsEarned   int64
	LoyaltyPointsRedeemed int64
	CustomerRef           string
	EmployeeRef           string
	StationRef            string
	Notes                 string
}

// validStatuses is used when accepting a caller-supplied initial status.
var validStatuses = map[PaymentStatus]bool{
	StatusPending:  true,
	StatusPaid:     true,
	StatusFailed:   true,
	StatusRefunded: true,
}

// MarkPaid moves a pending transaction to paid.
func (t *Transaction) MarkPaid() error {
	return t.transition(StatusPaid, StatusPending)
}

// MarkFailed moves a pending transaction to failed. Failed is terminal.
func (t *Transaction) MarkFailed() error {
	return t.transition(StatusFailed, StatusPending)
}

// MarkRefunded moves a paid transaction to refunded. Refunded is
// terminal. Loyalty reversal and the no-restock rule for fuel are
// handled by the ledger coordinator, not here; this is the pure state
// move.
func (t *Transaction) MarkRefunded() error {
	return t.transition(StatusRefunded, StatusPaid)
}

func (t *Transaction) transition(to PaymentStatus, allowedFrom PaymentStatus) error {
	if t.PaymentStatus != allowedFrom {
		return &InvalidTransitionError{From: t.PaymentStatus, To: to}
	}
	t.PaymentStatus = to
	return nil
}

// Terminal reports whether the transaction can no longer change state.
func (t *Transaction) Terminal() bool {
	return t.PaymentStatus == StatusFailed || t.PaymentStatus == StatusRefunded
}

// Validate checks the closed transaction invariants: at least one item,
// every item valid and of a kind compatible with the transaction kind,
// and total == subtotal + tax.
func (t *Transaction) Validate() error {
	if len(t.Items) == 0 {
		return validationErrorf("items", "at least one item required")
	}
	for _, item := range t.Items {
		if item.Kind != t.Kind {
			return validationErrorf("items", "%s item in %s transaction", item.Kind, t.Kind)
		}
		if err := item.Validate(); err != nil {
			return err
		}
	}
	if !validStatuses[t.PaymentStatus] {
		return validationErrorf("payment_status", "unknown status %q", t.PaymentStatus)
	}
	if !t.Total.Equal(t.Subtotal.Add(t.Tax)) {
		return validationErrorf("total", "got %s, want subtotal %s + tax %s", t.Total, t.Subtotal, t.Tax)
	}
	if t.LoyaltyPointsRedeemed < 0 {
		return validationErrorf("loyalty_points_redeemed", "must not be negative")
	}
	if t.LoyaltyPointsRedeemed > 0 && t.CustomerRef == "" {
		return validationErrorf("customer_ref", "required to redeem loyalty points")
	}
	if t.PaymentMethod == MethodLoyaltyPoints && t.LoyaltyPointsRedeemed == 0 {
		return validationErrorf("payment_method", "loyalty_points payment requires redeemed points")
	}
	return nil
}

// Repository defines persistence operations for transactions.
type Repository interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByID(ctx context.Context, id string) (*Transaction, error)
	ListByCustomer(ctx context.Context, customerRef string) ([]Transaction, error)
}
