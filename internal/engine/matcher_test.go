package engine

import (
	"testing"

	"callmarket/internal/common"

	"github.com/stretchr/testify/assert"
)

// --- Setup & Helpers --------------------------------------------------------

func bid(id, participant string, price, quantity int64) *common.Order {
	return &common.Order{ID: id, Participant: participant, Side: common.Bid, Price: price, Quantity: quantity}
}

func offer(id, participant string, price, quantity int64) *common.Order {
	return &common.Order{ID: id, Participant: participant, Side: common.Offer, Price: price, Quantity: quantity}
}

func executed(orders []*common.Order) map[string]int64 {
	out := make(map[string]int64, len(orders))
	for _, o := range orders {
		out[o.ID] = o.Executed
	}
	return out
}

// --- Tests ------------------------------------------------------------------

func TestMatchOrders_PartialFillAtTheMargin(t *testing.T) {
	orders := []*common.Order{
		bid("A", "a", 12, 5),
		bid("B", "b", 12, 8),
		bid("C", "c", 11, 4),
		bid("D", "d", 9, 10),
		offer("E", "e", 8, 3),
		offer("F", "f", 10, 6),
		offer("G", "g", 10, 2),
		offer("H", "h", 11, 5),
	}

	volume := MatchOrders(orders, 10)

	assert.Equal(t, int64(11), volume)
	assert.Equal(t, map[string]int64{
		// Larger bid first at equal prices.
		"B": 8, "A": 3, "C": 0,
		// Out of the money.
		"D": 0, "H": 0,
		// Smaller side fills completely.
		"E": 3, "F": 6, "G": 2,
	}, executed(orders))
}

func TestMatchOrders_StableTies(t *testing.T) {
	orders := []*common.Order{
		offer("S", "s", 10, 3),
		bid("first", "a", 10, 2),
		bid("second", "b", 10, 2),
	}

	volume := MatchOrders(orders, 10)

	assert.Equal(t, int64(3), volume)
	assert.Equal(t, map[string]int64{"S": 3, "first": 2, "second": 1}, executed(orders))
}

func TestMatchOrders_BalancedSides(t *testing.T) {
	orders := []*common.Order{
		bid("A", "a", 10, 4),
		offer("B", "b", 10, 4),
	}
	assert.Equal(t, int64(4), MatchOrders(orders, 10))
	assert.Equal(t, map[string]int64{"A": 4, "B": 4}, executed(orders))
}

func TestMatchOrders_SkipsCancelledAndResets(t *testing.T) {
	cancelled := bid("A", "a", 20, 5)
	cancelled.Cancelled = true
	cancelled.Executed = 7
	orders := []*common.Order{
		cancelled,
		bid("B", "b", 10, 1),
		offer("C", "c", 10, 5),
	}

	volume := MatchOrders(orders, 10)

	assert.Equal(t, int64(1), volume)
	assert.Equal(t, map[string]int64{"A": 0, "B": 1, "C": 1}, executed(orders))
}

func TestMatchOrders_NothingCrosses(t *testing.T) {
	orders := []*common.Order{
		bid("A", "a", 5, 5),
		offer("B", "b", 6, 5),
	}
	assert.Zero(t, MatchOrders(orders, 5))
	assert.Equal(t, map[string]int64{"A": 0, "B": 0}, executed(orders))
}

func TestQuotes_SplitsLiveOrders(t *testing.T) {
	cancelled := offer("C", "c", 3, 3)
	cancelled.Cancelled = true
	bids, offers := quotes([]*common.Order{
		bid("A", "a", 10, 1),
		offer("B", "b", 9, 2),
		cancelled,
		offer("D", "d", 8, 0),
	})
	assert.Equal(t, []Quote{{Price: 10, Quantity: 1}}, bids)
	assert.Equal(t, []Quote{{Price: 9, Quantity: 2}}, offers)
}
