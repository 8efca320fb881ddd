package common

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantState_Next(t *testing.T) {
	p := NewParticipantState("alice", 4, 100, 2)
	p.ResultingCash = 250
	p.ResultingShares = -3
	p.NetShares = -5
	p.ShortViolation = true
	p.BuyInCountdown = Countdown(1)

	next := p.Next()

	assert.Equal(t, ParticipantState{
		Participant:    "alice",
		Round:          5,
		CashBefore:     250,
		SharesBefore:   -3,
		BuyInCountdown: Countdown(1),
	}, next)

	// The handed over countdown is a copy.
	*next.BuyInCountdown = 7
	assert.Equal(t, 1, *p.BuyInCountdown)
}

func TestParticipantState_Due(t *testing.T) {
	p := NewParticipantState("alice", 1, 0, 0)
	assert.False(t, p.BuyInDue())
	assert.False(t, p.SellOffDue())

	p.BuyInCountdown = Countdown(1)
	assert.False(t, p.BuyInDue())

	p.BuyInCountdown = Countdown(0)
	assert.True(t, p.BuyInDue())
	assert.False(t, p.SellOffDue())
}

func TestParticipantState_ZeroValueHasNoViolation(t *testing.T) {
	var p ParticipantState
	assert.False(t, p.BuyInDue())
	assert.False(t, p.SellOffDue())

	decoded := ParticipantState{}
	require.NoError(t, json.Unmarshal([]byte(`{"participant":"short","cash_before":1000,"shares_before":-10}`), &decoded))
	assert.Nil(t, decoded.BuyInCountdown)
	assert.Nil(t, decoded.SellOffCountdown)
	assert.False(t, decoded.BuyInDue())
	assert.Contains(t, decoded.String(), "buy-in none, sell-off none")
}

func TestParticipantState_Balanced(t *testing.T) {
	p := ParticipantState{
		Participant:     "alice",
		CashBefore:      1000,
		SharesBefore:    10,
		NetShares:       3,
		TransactionCost: -150,
		InterestEarned:  42,
		DividendEarned:  26,
		ResultingCash:   918,
		ResultingShares: 13,
	}
	assert.NoError(t, p.Balanced())

	p.ResultingCash++
	assert.ErrorContains(t, p.Balanced(), "resulting cash")

	p.ResultingCash--
	p.ResultingShares++
	assert.ErrorContains(t, p.Balanced(), "resulting shares")
}

func TestHoldings(t *testing.T) {
	states := []ParticipantState{
		{SharesBefore: 10, ResultingShares: -2},
		{SharesBefore: -4, ResultingShares: 7},
		{SharesBefore: 0, ResultingShares: 0},
	}

	float, short := Holdings(states)
	assert.Equal(t, int64(10), float)
	assert.Equal(t, int64(4), short)

	float, short = ResultingHoldings(states)
	assert.Equal(t, int64(7), float)
	assert.Equal(t, int64(2), short)
}

func TestParams(t *testing.T) {
	valid := Params{
		MarginRatio:   decimal.RequireFromString("0.5"),
		MarginPremium: decimal.RequireFromString("0.1"),
	}
	assert.NoError(t, valid.Validate())
	assert.Equal(t, DefaultMaxPasses, valid.Passes())

	valid.MaxPasses = 3
	assert.Equal(t, 3, valid.Passes())
	valid.MaxPasses = 50
	assert.Equal(t, DefaultMaxPasses, valid.Passes())

	negative := decimal.RequireFromString("-0.1")
	tests := map[string]func(*Params){
		"zero margin ratio":  func(p *Params) { p.MarginRatio = decimal.Zero },
		"premium of one":     func(p *Params) { p.MarginPremium = decimal.NewFromInt(1) },
		"negative interest":  func(p *Params) { p.InterestRate = negative },
		"negative target":    func(p *Params) { p.MarginTargetRatio = negative },
		"negative short cap": func(p *Params) { p.ShortLimitRatio = &negative },
		"negative delay":     func(p *Params) { p.MarginDelay = -1 },
		"negative passes":    func(p *Params) { p.MaxPasses = -1 },
	}
	for name, modify := range tests {
		t.Run(name, func(t *testing.T) {
			p := valid
			modify(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
		})
	}
}
