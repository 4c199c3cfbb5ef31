package money_test

import (
	"testing"

	"github.com/mExOms/backtester/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_AddSub(t *testing.T) {
	a := money.NewFromInt(100)
	b, err := money.NewFromString("25.5")
	require.NoError(t, err)

	assert.True(t, a.Add(b).Equal(money.NewFromInt(0).Add(money.New(1255, -1))))
	assert.True(t, a.Sub(b).Equal(money.New(745, -1)))
}

func TestMoney_DivByZeroIsSafe(t *testing.T) {
	a := money.NewFromInt(100)
	assert.True(t, a.Div(money.Zero).IsZero())
	assert.True(t, a.DivInt(0).IsZero())
}

func TestMoney_HalfEvenRounding(t *testing.T) {
	// 0.000000005 rounds to the nearest even 8th digit: 0.00000000
	a, err := money.NewFromString("0.000000005")
	require.NoError(t, err)
	assert.Equal(t, "0.00000000", a.String())

	// 0.000000015 rounds up to 0.00000002 (nearest even)
	b, err := money.NewFromString("0.000000015")
	require.NoError(t, err)
	assert.Equal(t, "0.00000002", b.String())
}

func TestMoney_PercentOf(t *testing.T) {
	orderValue := money.NewFromInt(10000)
	fee := orderValue.PercentOf(decimal.NewFromFloat(0.26))
	assert.Equal(t, "26.00000000", fee.String())
}

func TestMoney_ApplyPercent(t *testing.T) {
	entry := money.NewFromInt(100)
	sl := entry.ApplyPercent(decimal.NewFromInt(-5))
	assert.Equal(t, "95.00000000", sl.String())

	tp := entry.ApplyPercent(decimal.NewFromInt(10))
	assert.Equal(t, "110.00000000", tp.String())
}

func TestMoney_EqualityIsByValue(t *testing.T) {
	a := money.New(150, -2)      // 1.50
	b, _ := money.NewFromString("1.5")
	assert.True(t, a.Equal(b))
}

func TestMoney_JSONRoundTrip(t *testing.T) {
	a := money.NewFromFloat(1234.5678)

	data, err := a.MarshalJSON()
	require.NoError(t, err)

	var b money.Money
	require.NoError(t, b.UnmarshalJSON(data))
	assert.True(t, a.Equal(b))
}

func TestMoney_MaxMin(t *testing.T) {
	a := money.NewFromInt(10)
	b := money.NewFromInt(20)
	assert.True(t, money.Max(a, b).Equal(b))
	assert.True(t, money.Min(a, b).Equal(a))
}

func TestSum(t *testing.T) {
	values := []money.Money{money.NewFromInt(1), money.NewFromInt(2), money.NewFromInt(3)}
	assert.True(t, money.Sum(values).Equal(money.NewFromInt(6)))
	assert.True(t, money.Sum(nil).IsZero())
}
