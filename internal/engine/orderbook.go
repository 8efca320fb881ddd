package engine

import (
	"callmarket/internal/common"

	"github.com/tidwall/btree"
)

// Quote is an aggregated or individual (price, quantity) pair on one side
// of the call book.
type Quote struct {
	Price    int64
	Quantity int64
}

type PriceLevel struct {
	price    int64
	quantity int64
}

type PriceLevels = btree.BTreeG[*PriceLevel]

// CallBook collects the bids and offers of one clearing pass. Unlike a
// continuous book nothing rests or matches on insertion: the book is only
// read once the whole batch is in.
type CallBook struct {
	// Both sides are sorted least first. Cumulative bid quantities are read
	// by walking the bid side in reverse.
	bids *PriceLevels
	asks *PriceLevels

	bidQuantity int64 // Track the bid-side liquidity of the book.
	askQuantity int64 // Track the ask-side liquidity of the book.
}

func NewCallBook() *CallBook {
	less := func(a, b *PriceLevel) bool {
		return a.price < b.price
	}
	return &CallBook{
		bids: btree.NewBTreeG(less),
		asks: btree.NewBTreeG(less),
	}
}

// NewCallBookFromQuotes aggregates the given quotes per price.
func NewCallBookFromQuotes(bids, offers []Quote) *CallBook {
	book := NewCallBook()
	for _, q := range bids {
		book.Add(common.Bid, q)
	}
	for _, q := range offers {
		book.Add(common.Offer, q)
	}
	return book
}

// Add aggregates a quote into its price level. Empty quotes are ignored so
// they never contribute a candidate price.
func (book *CallBook) Add(side common.Side, q Quote) {
	if q.Quantity <= 0 {
		return
	}

	var levels *PriceLevels
	switch side {
	case common.Bid:
		levels = book.bids
		book.bidQuantity += q.Quantity
	case common.Offer:
		levels = book.asks
		book.askQuantity += q.Quantity
	default:
		return
	}

	// Levels comparator only accounts for price levels, so we search with a
	// dummy level.
	level, ok := levels.GetMut(&PriceLevel{price: q.Price})
	if ok {
		level.quantity += q.Quantity
		return
	}
	levels.Set(&PriceLevel{price: q.Price, quantity: q.Quantity})
}

// Empty reports whether either side of the book has no orders.
func (book *CallBook) Empty() bool {
	return book.bids.Len() == 0 || book.asks.Len() == 0
}

// Candidates returns every distinct price in either side of the book, in
// ascending order, with its cumulative bid and offer quantity.
func (book *CallBook) Candidates() []Candidate {
	prices := make([]int64, 0, book.bids.Len()+book.asks.Len())
	bids, asks := book.bids.Items(), book.asks.Items()

	// Merge the two ascending sides into one ascending set of prices.
	var i, j int
	for i < len(bids) || j < len(asks) {
		switch {
		case j == len(asks) || (i < len(bids) && bids[i].price < asks[j].price):
			prices = append(prices, bids[i].price)
			i++
		case i == len(bids) || asks[j].price < bids[i].price:
			prices = append(prices, asks[j].price)
			j++
		default:
			prices = append(prices, bids[i].price)
			i++
			j++
		}
	}

	candidates := make([]Candidate, len(prices))
	for k, p := range prices {
		candidates[k].Price = p
	}

	// CSQ accumulates offers upwards.
	var csq int64
	j = 0
	for k := range candidates {
		for j < len(asks) && asks[j].price <= candidates[k].Price {
			csq += asks[j].quantity
			j++
		}
		candidates[k].CSQ = csq
	}

	// CBQ accumulates bids downwards.
	var cbq int64
	i = len(bids) - 1
	for k := len(candidates) - 1; k >= 0; k-- {
		for i >= 0 && bids[i].price >= candidates[k].Price {
			cbq += bids[i].quantity
			i--
		}
		candidates[k].CBQ = cbq
	}

	return candidates
}
