package sale

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingTransaction(t *testing.T) *Transaction {
	t.Helper()
	tx, err := Compose(KindService, []LineItem{
		mustItem(t, KindService, ItemParams{Name: "Oil Change", UnitPrice: decimal.RequireFromString("49.99")}),
	}, testTaxRate, testPolicy)
	require.NoError(t, err)
	return tx
}

func TestMarkPaid(t *testing.T) {
	tx := pendingTransaction(t)

	require.NoError(t, tx.MarkPaid())
	assert.Equal(t, StatusPaid, tx.PaymentStatus)
}

func TestMarkPaid_FromPaid(t *testing.T) {
	tx := pendingTransaction(t)
	require.NoError(t, tx.MarkPaid())

	err := tx.MarkPaid()

	var trErr *InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StatusPaid, trErr.From)
	assert.Equal(t, StatusPaid, trErr.To)
}

func TestMarkFailed(t *testing.T) {
	tx := pendingTransaction(t)

	require.NoError(t, tx.MarkFailed())
	assert.Equal(t, StatusFailed, tx.PaymentStatus)
	assert.True(t, tx.Terminal())
}

func TestMarkRefunded_RequiresPaid(t *testing.T) {
	tx := pendingTransaction(t)

	err := tx.MarkRefunded()

	var trErr *InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, StatusPending, trErr.From)
}

func TestMarkRefunded(t *testing.T) {
	tx := pendingTransaction(t)
	require.NoError(t, tx.MarkPaid())

	require.NoError(t, tx.MarkRefunded())
	assert.Equal(t, StatusRefunded, tx.PaymentStatus)
	assert.True(t, tx.Terminal())
}

func TestTerminalStatesRejectAllMoves(t *testing.T) {
	for _, terminal := range []PaymentStatus{StatusFailed, StatusRefunded} {
		tx := pendingTransaction(t)
		tx.PaymentStatus = terminal

		var trErr *InvalidTransitionError
		assert.ErrorAs(t, tx.MarkPaid(), &trErr)
		assert.ErrorAs(t, tx.MarkFailed(), &trErr)
		assert.ErrorAs(t, tx.MarkRefunded(), &trErr)
		assert.Equal(t, terminal, tx.PaymentStatus)
	}
}

func TestTransactionValidate_BrokenTotal(t *testing.T) {
	tx := pendingTransaction(t)
	tx.Tax = tx.Tax.Add(decimal.RequireFromString("0.01"))

	var vErr *ValidationError
	require.ErrorAs(t, tx.Validate(), &vErr)
	assert.Equal(t, "total", vErr.Field)
}

func TestTransactionValidate_RedeemWithoutCustomer(t *testing.T) {
	tx := pendingTransaction(t)
	tx.LoyaltyPointsRedeemed = 10

	var vErr *ValidationError
	require.ErrorAs(t, tx.Validate(), &vErr)
	assert.Equal(t, "customer_ref", vErr.Field)
}

func TestTransactionValidate_LoyaltyMethodNeedsRedeemedPoints(t *testing.T) {
	tx := pendingTransaction(t)
	tx.PaymentMethod = MethodLoyaltyPoints

	var vErr *ValidationError
	require.ErrorAs(t, tx.Validate(), &vErr)
	assert.Equal(t, "payment_method", vErr.Field)
}

func TestTransactionValidate_UnknownStatus(t *testing.T) {
	tx := pendingTransaction(t)
	tx.PaymentStatus = PaymentStatus("disputed")

	var vErr *ValidationError
	require.ErrorAs(t, tx.Validate(), &vErr)
	assert.Equal(t, "payment_status", vErr.Field)
}
