package engine

import (
	"testing"

	"callmarket/internal/common"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

func testParams() common.Params {
	return common.Params{
		InterestRate:      decimal.Zero,
		MarginRatio:       decimal.RequireFromString("0.5"),
		MarginPremium:     decimal.RequireFromString("0.1"),
		MarginTargetRatio: decimal.RequireFromString("0.4"),
	}
}

func settled(participant string, cash, shares int64) common.ParticipantState {
	state := common.NewParticipantState(participant, 1, cash, shares)
	state.ResultingCash = cash
	state.ResultingShares = shares
	return state
}

// --- Tests ------------------------------------------------------------------

func TestAccount_Identities(t *testing.T) {
	params := testParams()
	params.InterestRate = decimal.RequireFromString("0.05")

	bought := bid("A", "alice", 50, 4)
	bought.Executed = 4
	sold := offer("B", "alice", 40, 3)
	sold.Executed = 1

	state := Account(common.NewParticipantState("alice", 1, 1000, 10), []*common.Order{bought, sold}, 50, 2, params)

	assert.Equal(t, int64(3), state.NetShares)
	assert.Equal(t, int64(-150), state.TransactionCost)
	assert.Equal(t, int64(850), state.CashAfterTrade)
	assert.Equal(t, int64(13), state.ResultingShares)
	assert.Equal(t, int64(26), state.DividendEarned)
	assert.Equal(t, int64(42), state.InterestEarned, "interest floors 42.5")
	assert.Equal(t, int64(918), state.ResultingCash)
	assert.False(t, state.MarginViolation)
	require.NoError(t, state.Balanced())
}

func TestAccount_NegativeCashInterestFloors(t *testing.T) {
	params := testParams()
	params.InterestRate = decimal.RequireFromString("0.05")

	state := Account(common.NewParticipantState("bob", 1, -110, 10), nil, 50, 0, params)

	assert.Equal(t, int64(-6), state.InterestEarned, "floor of -5.5")
	assert.Equal(t, int64(-116), state.ResultingCash)
	require.NoError(t, state.Balanced())
}

func TestAccount_ShortPaysDividend(t *testing.T) {
	state := Account(common.NewParticipantState("carol", 1, 1000, -5), nil, 10, 3, testParams())

	assert.Equal(t, int64(-15), state.DividendEarned)
	assert.Equal(t, int64(985), state.ResultingCash)
}

func TestAccount_FlagsViolations(t *testing.T) {
	short := Account(common.NewParticipantState("short", 1, 1000, -10), nil, 100, 0, testParams())
	assert.True(t, short.ShortViolation)
	assert.False(t, short.DebtViolation)
	assert.True(t, short.MarginViolation)

	debt := Account(common.NewParticipantState("debt", 1, -1000, 10), nil, 100, 0, testParams())
	assert.False(t, debt.ShortViolation)
	assert.True(t, debt.DebtViolation)
	assert.True(t, debt.MarginViolation)
}

func TestShortViolation(t *testing.T) {
	ratio := decimal.RequireFromString("0.5")

	assert.True(t, ShortViolation(200, -4, 100, ratio))
	assert.True(t, ShortViolation(800, -4, 100, ratio), "boundary is a violation")
	assert.False(t, ShortViolation(801, -4, 100, ratio))
	assert.False(t, ShortViolation(0, 0, 100, ratio))
	assert.False(t, ShortViolation(-500, 3, 100, ratio))
}

func TestDebtViolation(t *testing.T) {
	ratio := decimal.RequireFromString("0.5")

	assert.True(t, DebtViolation(-250, 5, 100, ratio), "boundary is a violation")
	assert.False(t, DebtViolation(-249, 5, 100, ratio))
	assert.True(t, DebtViolation(-1, 0, 100, ratio))
	assert.False(t, DebtViolation(0, -3, 100, ratio))
}

func TestBuyIn(t *testing.T) {
	o := BuyIn(settled("short", 1000, -10), 100, testParams())
	require.NotNil(t, o)

	assert.Equal(t, common.Bid, o.Side)
	assert.Equal(t, int64(110), o.Price)
	assert.Equal(t, int64(6), o.Quantity, "ceil((1000 - 400) / 110)")
	assert.True(t, o.Forced)
	assert.Equal(t, "short", o.Participant)
	assert.NotEmpty(t, o.ID)
}

func TestBuyIn_NothingToBuy(t *testing.T) {
	assert.Nil(t, BuyIn(settled("short", 1000, -1), 100, testParams()))
}

func TestBuyIn_DeterministicID(t *testing.T) {
	a := BuyIn(settled("short", 1000, -10), 100, testParams())
	b := BuyIn(settled("short", 900, -10), 120, testParams())
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.ID, b.ID)

	next := settled("short", 1000, -10)
	next.Round = 2
	c := BuyIn(next, 100, testParams())
	require.NotNil(t, c)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestSellOff(t *testing.T) {
	o := SellOff(settled("debt", -1000, 10), 100, testParams())
	require.NotNil(t, o)

	assert.Equal(t, common.Offer, o.Side)
	assert.Equal(t, int64(90), o.Price)
	assert.Equal(t, int64(7), o.Quantity, "ceil((1000 - 400) / 90)")
	assert.True(t, o.Forced)
}

func TestSellOff_CappedAtHoldings(t *testing.T) {
	o := SellOff(settled("debt", -10000, 10), 100, testParams())
	require.NotNil(t, o)
	assert.Equal(t, int64(10), o.Quantity)
}

func TestSellOff_NoShares(t *testing.T) {
	assert.Nil(t, SellOff(settled("debt", -100, 0), 100, testParams()))
}

func TestSellOff_PriceFloor(t *testing.T) {
	params := testParams()
	params.MarginPremium = decimal.RequireFromString("0.9")

	o := SellOff(settled("debt", -100, 10), 1, params)
	require.NotNil(t, o)
	assert.Equal(t, int64(1), o.Price)
}

func TestRoundMul_HalfEven(t *testing.T) {
	premium := decimal.RequireFromString("1.1")
	assert.Equal(t, int64(16), roundMul(15, premium), "16.5")
	assert.Equal(t, int64(28), roundMul(25, premium), "27.5")
	assert.Equal(t, int64(110), roundMul(100, premium))
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, int64(6), ceilDiv(600, 110))
	assert.Equal(t, int64(5), ceilDiv(550, 110))
	assert.Equal(t, int64(0), ceilDiv(0, 110))
	assert.Equal(t, int64(-1), ceilDiv(-150, 110))
}

func TestNextCountdown(t *testing.T) {
	tests := []struct {
		name     string
		entering *int
		violated bool
		delay    int
		want     *int
	}{
		{"clean stays clean", nil, false, 2, nil},
		{"violation cleared", common.Countdown(1), false, 2, nil},
		{"first violation starts the delay", nil, true, 2, common.Countdown(2)},
		{"first violation without delay", nil, true, 0, common.Countdown(0)},
		{"persisting violation counts down", common.Countdown(2), true, 2, common.Countdown(1)},
		{"due stays due", common.Countdown(0), true, 2, common.Countdown(0)},
		{"forced and cured", common.Countdown(0), false, 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextCountdown(tt.entering, tt.violated, tt.delay))
		})
	}
}
