package sale

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildItem_Fuel(t *testing.T) {
	item, err := BuildItem(KindFuel, ItemParams{
		FuelType:  FuelRegular,
		Quantity:  decimal.RequireFromString("10"),
		UnitPrice: decimal.RequireFromString("3.59"),
	})

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("35.90").Equal(item.Total))
	assert.Equal(t, FuelRegular, item.FuelType)
}

func TestBuildItem_FuelMissingType(t *testing.T) {
	_, err := BuildItem(KindFuel, ItemParams{
		Quantity:  decimal.NewFromInt(10),
		UnitPrice: decimal.RequireFromString("3.59"),
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "fuel_type", vErr.Field)
}

func TestBuildItem_ProductMissingRef(t *testing.T) {
	_, err := BuildItem(KindProduct, ItemParams{
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: decimal.RequireFromString("2.99"),
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "product", vErr.Field)
}

func TestBuildItem_ServiceForcesQuantityOne(t *testing.T) {
	item, err := BuildItem(KindService, ItemParams{
		Name:      "Oil Change",
		UnitPrice: decimal.RequireFromString("49.99"),
	})

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(item.Quantity))
	assert.True(t, decimal.RequireFromString("49.99").Equal(item.Total))
}

func TestBuildItem_NonPositiveQuantity(t *testing.T) {
	_, err := BuildItem(KindFuel, ItemParams{
		FuelType:  FuelDiesel,
		Quantity:  decimal.Zero,
		UnitPrice: decimal.RequireFromString("4.19"),
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "quantity", vErr.Field)
}

func TestBuildItem_NegativeUnitPrice(t *testing.T) {
	_, err := BuildItem(KindProduct, ItemParams{
		Name:      "Chips",
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: decimal.RequireFromString("-0.01"),
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "unit_price", vErr.Field)
}

func TestBuildItem_UnknownKind(t *testing.T) {
	_, err := BuildItem(Kind("subscription"), ItemParams{
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: decimal.NewFromInt(5),
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "kind", vErr.Field)
}

func TestBuildItem_RoundsTotalOnce(t *testing.T) {
	// 7.333 gal * 3.599 = 26.391467 -> 26.39
	item, err := BuildItem(KindFuel, ItemParams{
		FuelType:  FuelPremium,
		Quantity:  decimal.RequireFromString("7.333"),
		UnitPrice: decimal.RequireFromString("3.599"),
	})

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("26.39").Equal(item.Total))
}

func TestLineItemValidate_TamperedTotal(t *testing.T) {
	item, err := BuildItem(KindProduct, ItemParams{
		Name:       "Coffee",
		ProductRef: "prod-coffee",
		Quantity:   decimal.NewFromInt(2),
		UnitPrice:  decimal.RequireFromString("2.99"),
	})
	require.NoError(t, err)

	// A mismatched total is an error, never silently recomputed.
	item.Total = item.Total.Add(decimal.RequireFromString("0.01"))

	var vErr *ValidationError
	require.ErrorAs(t, item.Validate(), &vErr)
	assert.Equal(t, "total", vErr.Field)
}
