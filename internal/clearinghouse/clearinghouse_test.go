package clearinghouse

import (
	"context"
	"fmt"
	"testing"

	"callmarket/internal/common"
	"callmarket/internal/engine"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

func newTestClearinghouse(workers uint) *Clearinghouse {
	return New(engine.New(engine.WithLogger(zerolog.Nop())), workers)
}

func testRound(group string, price int64) engine.Round {
	return engine.Round{
		Group:  group,
		Number: 1,
		Orders: []*common.Order{
			{ID: group + "-b", Participant: "alice", Side: common.Bid, Price: price, Quantity: 2},
			{ID: group + "-o", Participant: "bob", Side: common.Offer, Price: price, Quantity: 2},
		},
		Participants: []common.ParticipantState{
			common.NewParticipantState("alice", 1, 1000, 0),
			common.NewParticipantState("bob", 1, 1000, 5),
		},
		Params: common.Params{
			MarginRatio:       decimal.RequireFromString("0.5"),
			MarginPremium:     decimal.RequireFromString("0.1"),
			MarginTargetRatio: decimal.RequireFromString("0.4"),
		},
		LastPrice: 1,
	}
}

// --- Tests ------------------------------------------------------------------

func TestClearAll_KeepsInputOrder(t *testing.T) {
	rounds := make([]engine.Round, 20)
	for i := range rounds {
		rounds[i] = testRound(fmt.Sprintf("g%02d", i), int64(10+i))
	}

	results, err := newTestClearinghouse(4).ClearAll(context.Background(), rounds)
	require.NoError(t, err)
	require.Len(t, results, len(rounds))

	for i, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, rounds[i].Group, r.Market.Group)
		assert.Equal(t, int64(10+i), r.Market.Price)
		assert.Equal(t, int64(2), r.Market.Volume)
	}
}

func TestClearAll_SingleWorker(t *testing.T) {
	rounds := []engine.Round{testRound("a", 5), testRound("b", 6)}

	results, err := newTestClearinghouse(1).ClearAll(context.Background(), rounds)
	require.NoError(t, err)
	assert.Equal(t, int64(5), results[0].Market.Price)
	assert.Equal(t, int64(6), results[1].Market.Price)
}

func TestClearAll_Empty(t *testing.T) {
	results, err := newTestClearinghouse(4).ClearAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClearAll_DuplicateGroup(t *testing.T) {
	_, err := newTestClearinghouse(4).ClearAll(context.Background(), []engine.Round{
		testRound("a", 5),
		testRound("a", 6),
	})
	assert.ErrorIs(t, err, ErrDuplicateGroup)
}

func TestClearAll_FailingGroupAbortsBatch(t *testing.T) {
	bad := testRound("bad", 5)
	bad.Params.MarginRatio = decimal.Zero

	results, err := newTestClearinghouse(2).ClearAll(context.Background(), []engine.Round{
		testRound("a", 5),
		bad,
		testRound("c", 5),
	})
	assert.ErrorIs(t, err, engine.ErrInvalidParams)
	assert.ErrorContains(t, err, "group bad")
	assert.Nil(t, results)
}
