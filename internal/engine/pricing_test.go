package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

func q(pairs ...int64) []Quote {
	out := make([]Quote, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Quote{Price: pairs[i], Quantity: pairs[i+1]})
	}
	return out
}

// --- Tests ------------------------------------------------------------------

func TestDiscoverPrice_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		bids      []Quote
		offers    []Quote
		lastPrice int64
		price     int64
		volume    int64
		principle Principle
	}{
		{
			name:      "maximum volume on a one-sided overlap",
			bids:      q(1, 1, 2, 2),
			offers:    q(1, 1, 2, 2),
			lastPrice: 7,
			price:     2,
			volume:    2,
			principle: MaximumVolume,
		},
		{
			name:      "minimum residual",
			bids:      q(4, 2, 6, 1),
			offers:    q(4, 1, 6, 1),
			lastPrice: 7,
			price:     6,
			volume:    1,
			principle: MinimumResidual,
		},
		{
			name:      "market pressure",
			bids:      q(55, 4),
			offers:    q(50, 10),
			lastPrice: 7,
			price:     50,
			volume:    4,
			principle: MarketPressure,
		},
		{
			name:      "reference price picks the highest candidate",
			bids:      q(5, 10, 6, 10),
			offers:    q(5, 10, 6, 10),
			lastPrice: 1,
			price:     6,
			volume:    10,
			principle: ReferencePrice,
		},
		{
			name:      "no crossing orders keep the last price",
			bids:      q(1, 1),
			offers:    q(10, 1),
			lastPrice: 5,
			price:     5,
			volume:    0,
			principle: ReferencePrice,
		},
		{
			name:      "no offers",
			bids:      q(10, 3),
			lastPrice: 9,
			price:     9,
			volume:    0,
			principle: NoOrders,
		},
		{
			name:      "no bids",
			offers:    q(10, 3),
			lastPrice: 9,
			price:     9,
			volume:    0,
			principle: NoOrders,
		},
		{
			// Maximum volume alone does not settle this book: 6 and 10
			// both match 22 with a residual of 1, both under sell
			// pressure, so market pressure takes the lower price.
			name:      "several levels aggregated per price",
			bids:      q(10, 5, 10, 6, 11, 5, 11, 6),
			offers:    q(5, 5, 5, 6, 6, 5, 6, 7),
			lastPrice: 8,
			price:     6,
			volume:    22,
			principle: MarketPressure,
		},
		{
			name:      "single crossing price",
			bids:      q(10, 5, 9, 5),
			offers:    q(9, 6, 12, 5),
			lastPrice: 1,
			price:     9,
			volume:    6,
			principle: MaximumVolume,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DiscoverPrice(tt.bids, tt.offers, tt.lastPrice)
			require.NoError(t, err)
			assert.Equal(t, tt.price, d.Price, "price")
			assert.Equal(t, tt.volume, d.Volume, "volume")
			assert.Equal(t, tt.principle, d.Principle, "principle %s", d.Principle)
		})
	}
}

type flatLevel struct {
	price    int64
	quantity int64
}

func flatten(levels []*PriceLevel) []flatLevel {
	out := make([]flatLevel, len(levels))
	for i, l := range levels {
		out[i] = flatLevel{price: l.price, quantity: l.quantity}
	}
	return out
}

func TestCallBook_Aggregates(t *testing.T) {
	book := NewCallBookFromQuotes(q(10, 5, 11, 6, 10, 6), q(6, 7, 5, 5, 6, 5, 7, 0))

	assert.Equal(t, []flatLevel{{10, 11}, {11, 6}}, flatten(book.bids.Items()))
	// Empty quotes never make a level.
	assert.Equal(t, []flatLevel{{5, 5}, {6, 12}}, flatten(book.asks.Items()))
	assert.Equal(t, int64(17), book.bidQuantity)
	assert.Equal(t, int64(17), book.askQuantity)
}

func TestCallBook_Candidates(t *testing.T) {
	book := NewCallBookFromQuotes(q(10, 11, 11, 11), q(5, 11, 6, 12))

	assert.Equal(t, []Candidate{
		{Price: 5, CBQ: 22, CSQ: 11},
		{Price: 6, CBQ: 22, CSQ: 23},
		{Price: 10, CBQ: 22, CSQ: 23},
		{Price: 11, CBQ: 11, CSQ: 23},
	}, book.Candidates())
}

func TestCallBook_CandidatesSharedPrices(t *testing.T) {
	book := NewCallBookFromQuotes(q(4, 2, 6, 1), q(4, 1, 6, 1))

	assert.Equal(t, []Candidate{
		{Price: 4, CBQ: 3, CSQ: 1},
		{Price: 6, CBQ: 1, CSQ: 2},
	}, book.Candidates())
}

func TestFinalize_Invariant(t *testing.T) {
	_, err := finalize(nil, ReferencePrice)
	assert.ErrorIs(t, err, ErrPriceInvariant)

	_, err = finalize([]Candidate{{Price: 1}, {Price: 2}}, ReferencePrice)
	assert.ErrorIs(t, err, ErrPriceInvariant)

	d, err := finalize([]Candidate{{Price: 3, CBQ: 4, CSQ: 2}}, MinimumResidual)
	require.NoError(t, err)
	assert.Equal(t, Discovery{Price: 3, Volume: 2, Principle: MinimumResidual}, d)
}

func TestMarketPressure_KeepsBothSides(t *testing.T) {
	out := marketPressure([]Candidate{
		{Price: 4, CBQ: 10, CSQ: 5},
		{Price: 5, CBQ: 8, CSQ: 8},
		{Price: 7, CBQ: 3, CSQ: 9},
		{Price: 8, CBQ: 2, CSQ: 9},
	})
	assert.Equal(t, []Candidate{
		{Price: 5, CBQ: 8, CSQ: 8},
		{Price: 7, CBQ: 3, CSQ: 9},
	}, out)
}

func TestPrinciple_String(t *testing.T) {
	assert.Equal(t, "maximum volume", MaximumVolume.String())
	assert.Equal(t, "reference price", ReferencePrice.String())
	assert.Equal(t, "principle(9)", Principle(9).String())
}
